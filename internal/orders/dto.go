package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/maisonverdier/boutique-backend/pkg/db/models"
	"github.com/maisonverdier/boutique-backend/pkg/enums"
	"github.com/maisonverdier/boutique-backend/pkg/types"
)

// LineItemInput is one requested cart line. Prices are never read from the
// caller; only product and quantity matter.
type LineItemInput struct {
	ProductID uuid.UUID
	Qty       int
}

// CreateOrderInput captures a checkout request.
type CreateOrderInput struct {
	CustomerID     *uuid.UUID
	Email          string
	ShippingMethod enums.ShippingMethod
	Address        types.Address
	Items          []LineItemInput
	DiscountCode   *string
}

// CreateOrderResult returns the persisted order plus the provider secret
// the client needs to complete payment.
type CreateOrderResult struct {
	Order        *models.Order `json:"order"`
	ClientSecret string        `json:"client_secret"`
}

// CreateIntentInput is what the payment gateway needs to open a payment.
type CreateIntentInput struct {
	AmountCents int
	Currency    string
	Email       string
	OrderRef    string
}

// SearchFilters describe the inputs supported by the order lists. Type is
// computed from metadata and line items, not stored.
type SearchFilters struct {
	Status            *enums.OrderStatus
	PaymentStatus     *enums.PaymentStatus
	FulfillmentStatus *enums.FulfillmentStatus
	Type              *enums.OrderType
	DateFrom          *time.Time
	DateTo            *time.Time
	Query             string
}

// OrderList wraps the paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
