package orders

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/invoice"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	pkgerrors "github.com/maisonverdier/boutique-backend/pkg/errors"
	pkgstripe "github.com/maisonverdier/boutique-backend/pkg/stripe"
)

type stripeGateway struct{}

// NewStripeGateway wraps the Stripe payment surface so the engine can be
// tested against a stub.
func NewStripeGateway(api *pkgstripe.Client) PaymentGateway {
	if api == nil {
		return nil
	}
	return &stripeGateway{}
}

func (g *stripeGateway) CreatePaymentIntent(ctx context.Context, in CreateIntentInput) (*PaymentIntent, error) {
	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "eur"
	}

	params := &stripe.PaymentIntentParams{
		Amount:       stripe.Int64(int64(in.AmountCents)),
		Currency:     stripe.String(currency),
		ReceiptEmail: stripe.String(in.Email),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if in.OrderRef != "" {
		params.AddMetadata("order_ref", in.OrderRef)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, pkgerrors.WrapUpstream(err, "create payment intent")
	}
	return mapPaymentIntent(pi), nil
}

func (g *stripeGateway) GetPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return nil, pkgerrors.WrapUpstream(err, "retrieve payment intent")
	}
	return mapPaymentIntent(pi), nil
}

func (g *stripeGateway) RefundPaymentIntent(ctx context.Context, intentID string) error {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx

	if _, err := refund.New(params); err != nil {
		return pkgerrors.WrapUpstream(err, "refund payment intent")
	}
	return nil
}

// PaymentIntentForInvoice recovers the payment intent behind an invoice.
// Subscription orders bill via invoices, so refunds route through here.
func (g *stripeGateway) PaymentIntentForInvoice(ctx context.Context, invoiceID string) (string, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx

	inv, err := invoice.Get(invoiceID, params)
	if err != nil {
		return "", pkgerrors.WrapUpstream(err, "retrieve invoice")
	}

	if inv.Payments != nil {
		for _, payment := range inv.Payments.Data {
			if payment == nil || payment.Payment == nil || payment.Payment.PaymentIntent == nil {
				continue
			}
			if payment.Payment.PaymentIntent.ID != "" {
				return payment.Payment.PaymentIntent.ID, nil
			}
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeNotFound, "invoice carries no payment intent")
}

func mapPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	if pi == nil {
		return nil
	}
	return &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Succeeded:    pi.Status == stripe.PaymentIntentStatusSucceeded,
	}
}
