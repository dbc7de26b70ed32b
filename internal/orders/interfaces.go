package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maisonverdier/boutique-backend/pkg/db/models"
	"github.com/maisonverdier/boutique-backend/pkg/pagination"
)

// Repository defines persistence operations for order tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByIDs(ctx context.Context, orderIDs []uuid.UUID) ([]models.Order, error)
	FindPreorderShippable(ctx context.Context, productIDs []uuid.UUID) ([]models.Order, error)
	Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params, filters SearchFilters) (*OrderList, error)
	Search(ctx context.Context, params pagination.Params, filters SearchFilters) (*OrderList, error)
}

// PaymentIntent is the gateway-side view of a payment.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Succeeded    bool
	Status       string
}

// PaymentGateway is the narrow payment-provider surface the engine uses.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, in CreateIntentInput) (*PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
	RefundPaymentIntent(ctx context.Context, intentID string) error
	PaymentIntentForInvoice(ctx context.Context, invoiceID string) (string, error)
}

// EmailVerifier checks that an address can plausibly receive mail.
type EmailVerifier interface {
	VerifyDomain(ctx context.Context, email string) error
}
