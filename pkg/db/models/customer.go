package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Customer holds the account row plus the provider-side subscription
// linkage. The schedule itself lives at the payment provider; only ids and
// the skipped-dates record are kept here.
type Customer struct {
	ID                     uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email                  string         `gorm:"column:email;not null;uniqueIndex"`
	FirstName              string         `gorm:"column:first_name"`
	LastName               string         `gorm:"column:last_name"`
	StripeCustomerID       *string        `gorm:"column:stripe_customer_id"`
	SubscriptionScheduleID *string        `gorm:"column:subscription_schedule_id"`
	SubscriptionProductID  *uuid.UUID     `gorm:"column:subscription_product_id;type:uuid"`
	SubscriptionSkipped    pq.StringArray `gorm:"column:subscription_skipped;type:text[]"`
	CreatedAt              time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
