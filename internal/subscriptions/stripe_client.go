package subscriptions

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/price"
	"github.com/stripe/stripe-go/v84/setupintent"
	"github.com/stripe/stripe-go/v84/subscriptionschedule"

	pkgerrors "github.com/maisonverdier/boutique-backend/pkg/errors"
	pkgstripe "github.com/maisonverdier/boutique-backend/pkg/stripe"
)

type stripeGateway struct{}

// NewStripeGateway wraps the Stripe schedule surface so the manager can be
// tested against a stub.
func NewStripeGateway(api *pkgstripe.Client) PaymentGateway {
	if api == nil {
		return nil
	}
	return &stripeGateway{}
}

func (g *stripeGateway) EnsureCustomer(ctx context.Context, email, name string, existingID *string) (string, error) {
	if existingID != nil && *existingID != "" {
		return *existingID, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx

	created, err := customer.New(params)
	if err != nil {
		return "", pkgerrors.WrapUpstream(err, "create provider customer")
	}
	return created.ID, nil
}

// CreateRecurringPrice registers a quarterly recurring price for the boxed
// product.
func (g *stripeGateway) CreateRecurringPrice(ctx context.Context, productName string, amountCents int) (string, error) {
	params := &stripe.PriceParams{
		UnitAmount: stripe.Int64(int64(amountCents)),
		Currency:   stripe.String("eur"),
		Recurring: &stripe.PriceRecurringParams{
			Interval:      stripe.String("month"),
			IntervalCount: stripe.Int64(3),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(productName),
		},
	}
	params.Context = ctx

	created, err := price.New(params)
	if err != nil {
		return "", pkgerrors.WrapUpstream(err, "create recurring price")
	}
	return created.ID, nil
}

func (g *stripeGateway) CreateSetupIntent(ctx context.Context, providerCustomerID string, metadata map[string]string) (*SetupIntent, error) {
	params := &stripe.SetupIntentParams{
		Customer: stripe.String(providerCustomerID),
		Usage:    stripe.String("off_session"),
	}
	params.Context = ctx
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}

	created, err := setupintent.New(params)
	if err != nil {
		return nil, pkgerrors.WrapUpstream(err, "create setup intent")
	}
	return mapSetupIntent(created), nil
}

func (g *stripeGateway) GetSetupIntent(ctx context.Context, intentID string) (*SetupIntent, error) {
	params := &stripe.SetupIntentParams{}
	params.Context = ctx

	intent, err := setupintent.Get(intentID, params)
	if err != nil {
		return nil, pkgerrors.WrapUpstream(err, "retrieve setup intent")
	}
	return mapSetupIntent(intent), nil
}

func (g *stripeGateway) SetDefaultPaymentMethod(ctx context.Context, providerCustomerID, paymentMethodID string) error {
	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	params.Context = ctx

	if _, err := customer.Update(providerCustomerID, params); err != nil {
		return pkgerrors.WrapUpstream(err, "set default payment method")
	}
	return nil
}

// CreateSchedule opens a phased schedule that cancels itself after the last
// phase instead of renewing.
func (g *stripeGateway) CreateSchedule(ctx context.Context, providerCustomerID string, phases []Phase) (*Schedule, error) {
	if len(phases) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "schedule requires at least one phase")
	}

	params := &stripe.SubscriptionScheduleParams{
		Customer:    stripe.String(providerCustomerID),
		StartDate:   stripe.Int64(phases[0].StartDate.Unix()),
		EndBehavior: stripe.String("cancel"),
	}
	params.Context = ctx

	// On create the provider derives each phase start from the previous
	// phase end, so only end dates are sent.
	for _, phase := range phases {
		phaseParams := &stripe.SubscriptionSchedulePhaseParams{
			Items: []*stripe.SubscriptionSchedulePhaseItemParams{
				{
					Price:    stripe.String(phase.PriceID),
					Quantity: stripe.Int64(int64(phase.Quantity)),
				},
			},
		}
		if !phase.EndDate.IsZero() {
			phaseParams.EndDate = stripe.Int64(phase.EndDate.Unix())
		}
		params.Phases = append(params.Phases, phaseParams)
	}

	created, err := subscriptionschedule.New(params)
	if err != nil {
		return nil, pkgerrors.WrapUpstream(err, "create subscription schedule")
	}
	return mapSchedule(created), nil
}

func (g *stripeGateway) GetSchedule(ctx context.Context, scheduleID string) (*Schedule, error) {
	params := &stripe.SubscriptionScheduleParams{}
	params.Context = ctx

	schedule, err := subscriptionschedule.Get(scheduleID, params)
	if err != nil {
		return nil, pkgerrors.WrapUpstream(err, "retrieve subscription schedule")
	}
	return mapSchedule(schedule), nil
}

func (g *stripeGateway) UpdateSchedulePhases(ctx context.Context, scheduleID string, phases []Phase) error {
	params := &stripe.SubscriptionScheduleParams{
		EndBehavior: stripe.String("cancel"),
	}
	params.Context = ctx

	for _, phase := range phases {
		phaseParams := &stripe.SubscriptionSchedulePhaseParams{
			Items: []*stripe.SubscriptionSchedulePhaseItemParams{
				{
					Price:    stripe.String(phase.PriceID),
					Quantity: stripe.Int64(int64(phase.Quantity)),
				},
			},
			StartDate: stripe.Int64(phase.StartDate.Unix()),
		}
		if !phase.EndDate.IsZero() {
			phaseParams.EndDate = stripe.Int64(phase.EndDate.Unix())
		}
		params.Phases = append(params.Phases, phaseParams)
	}

	if _, err := subscriptionschedule.Update(scheduleID, params); err != nil {
		return pkgerrors.WrapUpstream(err, "update subscription schedule")
	}
	return nil
}

func (g *stripeGateway) CancelSchedule(ctx context.Context, scheduleID string) error {
	params := &stripe.SubscriptionScheduleCancelParams{}
	params.Context = ctx

	if _, err := subscriptionschedule.Cancel(scheduleID, params); err != nil {
		return pkgerrors.WrapUpstream(err, "cancel subscription schedule")
	}
	return nil
}

func mapSetupIntent(intent *stripe.SetupIntent) *SetupIntent {
	if intent == nil {
		return nil
	}
	mapped := &SetupIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
		Succeeded:    intent.Status == stripe.SetupIntentStatusSucceeded,
		Metadata:     intent.Metadata,
	}
	if intent.PaymentMethod != nil {
		mapped.PaymentMethod = intent.PaymentMethod.ID
	}
	return mapped
}

func mapSchedule(schedule *stripe.SubscriptionSchedule) *Schedule {
	if schedule == nil {
		return nil
	}
	mapped := &Schedule{
		ID:     schedule.ID,
		Status: string(schedule.Status),
	}
	for _, phase := range schedule.Phases {
		if phase == nil {
			continue
		}
		converted := Phase{Quantity: 1}
		if phase.StartDate > 0 {
			converted.StartDate = time.Unix(phase.StartDate, 0).UTC()
		}
		if phase.EndDate > 0 {
			converted.EndDate = time.Unix(phase.EndDate, 0).UTC()
		}
		if len(phase.Items) > 0 && phase.Items[0] != nil {
			if phase.Items[0].Price != nil {
				converted.PriceID = phase.Items[0].Price.ID
			}
			if phase.Items[0].Quantity > 0 {
				converted.Quantity = int(phase.Items[0].Quantity)
			}
		}
		mapped.Phases = append(mapped.Phases, converted)
	}
	return mapped
}
