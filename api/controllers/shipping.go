package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/maisonverdier/boutique-backend/api/responses"
	"github.com/maisonverdier/boutique-backend/api/validators"
	"github.com/maisonverdier/boutique-backend/internal/shipping"
	"github.com/maisonverdier/boutique-backend/pkg/logger"
)

// SearchRelays lists carrier pickup points around a postal code. Public:
// the storefront calls it before checkout.
func SearchRelays(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		country := strings.TrimSpace(r.URL.Query().Get("country"))
		postalCode := strings.TrimSpace(r.URL.Query().Get("postal_code"))

		points, err := svc.SearchRelays(r.Context(), country, postalCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, points)
	}
}

type shipRequest struct {
	Force bool `json:"force"`
}

// AdminShipOrder creates the parcel for one order. With force, the previous
// shipment is canceled and replaced.
func AdminShipOrder(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseURLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req shipRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.Ship(r.Context(), orderID, req.Force)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type bulkShipRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids" validate:"required,min=1"`
}

// AdminBulkShip processes a batch of orders with per-order isolation.
func AdminBulkShip(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkShipRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		results, err := svc.BulkShip(r.Context(), req.OrderIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, results)
	}
}

// AdminShipPreorders ships the whole paid preorder backlog.
func AdminShipPreorders(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.ShipAllPreorders(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// AdminTrackOrder proxies the carrier's live status for an order's parcel.
func AdminTrackOrder(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseURLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tracking, err := svc.Track(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tracking)
	}
}
