package subscriptions

import (
	"context"
	"time"
)

// Phase is one contiguous interval of a provider schedule. A zero EndDate
// means the phase is open-ended.
type Phase struct {
	PriceID   string
	Quantity  int
	StartDate time.Time
	EndDate   time.Time
}

// Schedule is the provider-side view of a customer's recurring deliveries.
type Schedule struct {
	ID     string
	Status string
	Phases []Phase
}

// SetupIntent carries the payment-method collection state plus the
// metadata stashed at subscribe time.
type SetupIntent struct {
	ID            string
	ClientSecret  string
	Succeeded     bool
	Status        string
	PaymentMethod string
	Metadata      map[string]string
}

// PaymentGateway is the narrow provider surface the schedule manager uses.
type PaymentGateway interface {
	EnsureCustomer(ctx context.Context, email, name string, existingID *string) (string, error)
	CreateRecurringPrice(ctx context.Context, productName string, amountCents int) (string, error)
	CreateSetupIntent(ctx context.Context, providerCustomerID string, metadata map[string]string) (*SetupIntent, error)
	GetSetupIntent(ctx context.Context, intentID string) (*SetupIntent, error)
	SetDefaultPaymentMethod(ctx context.Context, providerCustomerID, paymentMethodID string) error
	CreateSchedule(ctx context.Context, providerCustomerID string, phases []Phase) (*Schedule, error)
	GetSchedule(ctx context.Context, scheduleID string) (*Schedule, error)
	UpdateSchedulePhases(ctx context.Context, scheduleID string, phases []Phase) error
	CancelSchedule(ctx context.Context, scheduleID string) error
}
