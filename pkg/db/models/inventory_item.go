package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem tracks on-hand stock per product. Stock is decremented at
// payment confirmation, not at order creation.
type InventoryItem struct {
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	Stock     int       `gorm:"column:stock;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
