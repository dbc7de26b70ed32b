package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/maisonverdier/boutique-backend/pkg/enums"
	"github.com/maisonverdier/boutique-backend/pkg/types"
)

// Order is the customer order row. Status moves along three independent
// axes; the lifecycle engine is the only writer of those columns and of the
// metadata history journal.
type Order struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber       int64                   `gorm:"column:order_number;not null;default:nextval('order_number_seq')"`
	CustomerID        *uuid.UUID              `gorm:"column:customer_id;type:uuid"`
	Email             string                  `gorm:"column:email;not null"`
	Status            enums.OrderStatus       `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus     enums.PaymentStatus     `gorm:"column:payment_status;type:payment_status;not null;default:'not_paid'"`
	FulfillmentStatus enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:fulfillment_status;not null;default:'not_fulfilled'"`
	ShippingMethod    enums.ShippingMethod    `gorm:"column:shipping_method;type:shipping_method;not null;default:'home'"`
	SubtotalCents     int                     `gorm:"column:subtotal_cents;not null"`
	DiscountCents     int                     `gorm:"column:discount_cents;not null;default:0"`
	ShippingFeeCents  int                     `gorm:"column:shipping_fee_cents;not null;default:0"`
	TotalCents        int                     `gorm:"column:total_cents;not null"`
	WeightGrams       int                     `gorm:"column:weight_grams;not null;default:0"`
	DiscountCode      *string                 `gorm:"column:discount_code"`
	ShippingAddress   types.Address           `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	Metadata          types.OrderMetadata     `gorm:"column:metadata;type:jsonb;serializer:json"`
	Items             []OrderLineItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// Type derives the computed order classification used by list filters.
func (o *Order) Type() enums.OrderType {
	if o.Metadata.Subscription || o.Metadata.SubscriptionScheduleID != "" {
		return enums.OrderTypeSubscription
	}
	for _, item := range o.Items {
		if item.Preorder {
			return enums.OrderTypePreorder
		}
	}
	if o.Metadata.Imported {
		return enums.OrderTypeImported
	}
	return enums.OrderTypeStandard
}
