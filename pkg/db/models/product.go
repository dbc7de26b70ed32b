package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog listing.
type Product struct {
	ID                     uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SKU                    string         `gorm:"column:sku;not null"`
	Title                  string         `gorm:"column:title;not null"`
	IsActive               bool           `gorm:"column:is_active;not null;default:true"`
	PriceCents             int            `gorm:"column:price_cents;not null"`
	SubscriptionPriceCents *int           `gorm:"column:subscription_price_cents"`
	StripePriceID          *string        `gorm:"column:stripe_price_id"`
	WeightGrams            int            `gorm:"column:weight_grams;not null;default:0"`
	Preorder               bool           `gorm:"column:preorder;not null;default:false"`
	Inventory              *InventoryItem `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt              time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
