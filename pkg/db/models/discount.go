package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/maisonverdier/boutique-backend/pkg/enums"
)

// Discount is a redeemable code. Codes are stored upper-cased; lookups
// normalize before matching.
type Discount struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code       string             `gorm:"column:code;not null;uniqueIndex"`
	Type       enums.DiscountType `gorm:"column:type;type:discount_type;not null"`
	Value      int                `gorm:"column:value;not null"`
	UsageLimit *int               `gorm:"column:usage_limit"`
	UsageCount int                `gorm:"column:usage_count;not null;default:0"`
	ExpiresAt  *time.Time         `gorm:"column:expires_at"`
	Disabled   bool               `gorm:"column:disabled;not null;default:false"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
