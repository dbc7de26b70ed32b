package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/maisonverdier/boutique-backend/api/middleware"
	"github.com/maisonverdier/boutique-backend/api/responses"
	"github.com/maisonverdier/boutique-backend/api/validators"
	"github.com/maisonverdier/boutique-backend/internal/subscriptions"
	"github.com/maisonverdier/boutique-backend/pkg/logger"
)

type subscribeRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
}

// Subscribe opens the payment-method collection for a recurring delivery
// schedule on the given product.
func Subscribe(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req subscribeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Subscribe(r.Context(), middleware.CustomerIDFromContext(r.Context()), req.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type confirmSetupRequest struct {
	SetupIntentID string `json:"setup_intent_id" validate:"required"`
}

// ConfirmSubscription verifies the collected payment method and creates the
// phased schedule.
func ConfirmSubscription(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmSetupRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ConfirmSetup(r.Context(), middleware.CustomerIDFromContext(r.Context()), req.SetupIntentID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "active"})
	}
}

type skipRequest struct {
	Date string `json:"date" validate:"required"`
}

// SkipDelivery removes one upcoming delivery from the caller's schedule.
func SkipDelivery(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req skipRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Skip(r.Context(), middleware.CustomerIDFromContext(r.Context()), req.Date); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "skipped"})
	}
}

// UnskipDelivery restores a previously skipped delivery.
func UnskipDelivery(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req skipRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Unskip(r.Context(), middleware.CustomerIDFromContext(r.Context()), req.Date); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "restored"})
	}
}

// CancelSubscription terminates the caller's schedule at the provider.
func CancelSubscription(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Cancel(r.Context(), middleware.CustomerIDFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "canceled"})
	}
}
