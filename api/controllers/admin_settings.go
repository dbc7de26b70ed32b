package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/maisonverdier/boutique-backend/api/responses"
	"github.com/maisonverdier/boutique-backend/api/validators"
	"github.com/maisonverdier/boutique-backend/internal/settings"
	"github.com/maisonverdier/boutique-backend/internal/subscriptions"
	pkgerrors "github.com/maisonverdier/boutique-backend/pkg/errors"
	"github.com/maisonverdier/boutique-backend/pkg/logger"
)

func AdminGetDeliveryCalendar(svc settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dates, err := svc.DeliveryCalendar(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"dates": dates})
	}
}

type calendarRequest struct {
	Dates []string `json:"dates" validate:"required,min=1"`
}

// AdminSetDeliveryCalendar stores a new calendar. Existing schedules are
// untouched until the admin triggers a resync.
func AdminSetDeliveryCalendar(svc settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req calendarRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetDeliveryCalendar(r.Context(), req.Dates); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"dates": req.Dates})
	}
}

// AdminResyncSchedules rebuilds every active schedule against the stored
// calendar and reports per-customer outcomes.
func AdminResyncSchedules(settingsSvc settings.Service, subsSvc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dates, err := settingsSvc.DeliveryCalendar(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		results, err := subsSvc.ResyncAll(r.Context(), dates)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, results)
	}
}

func AdminGetShippingRates(svc settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rates, err := svc.ShippingRates(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if rates == nil {
			rates = json.RawMessage(`{}`)
		}
		responses.WriteSuccess(w, rates)
	}
}

func AdminSetShippingRates(svc settings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
			return
		}

		if err := svc.SetShippingRates(r.Context(), payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payload)
	}
}
