package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/maisonverdier/boutique-backend/api/middleware"
	"github.com/maisonverdier/boutique-backend/api/responses"
	"github.com/maisonverdier/boutique-backend/api/validators"
	internalorders "github.com/maisonverdier/boutique-backend/internal/orders"
	"github.com/maisonverdier/boutique-backend/pkg/enums"
	pkgerrors "github.com/maisonverdier/boutique-backend/pkg/errors"
	"github.com/maisonverdier/boutique-backend/pkg/logger"
	"github.com/maisonverdier/boutique-backend/pkg/pagination"
	"github.com/maisonverdier/boutique-backend/pkg/types"
)

type createOrderRequest struct {
	Email          string            `json:"email" validate:"required,email"`
	ShippingMethod string            `json:"shipping_method" validate:"required"`
	Address        types.Address     `json:"address"`
	Items          []lineItemPayload `json:"items" validate:"required,min=1,dive"`
	DiscountCode   *string           `json:"discount_code,omitempty"`
}

type lineItemPayload struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,min=1"`
}

// CreateOrder opens a checkout: the cart is priced server-side and the
// response carries the payment client secret.
func CreateOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParseShippingMethod(req.ShippingMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "mode de livraison invalide"))
			return
		}

		input := internalorders.CreateOrderInput{
			Email:          req.Email,
			ShippingMethod: method,
			Address:        req.Address,
			DiscountCode:   req.DiscountCode,
		}
		if customerID := middleware.CustomerIDFromContext(r.Context()); customerID != uuid.Nil {
			input.CustomerID = &customerID
		}
		for _, item := range req.Items {
			input.Items = append(input.Items, internalorders.LineItemInput{
				ProductID: item.ProductID,
				Qty:       item.Qty,
			})
		}

		result, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ConfirmOrder re-checks the payment with the provider and completes the
// order when captured. Safe to call repeatedly.
func ConfirmOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseURLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Confirm(r.Context(), orderID, middleware.CustomerIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// OrderDetail returns one of the caller's own orders.
func OrderDetail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseURLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customerID := middleware.CustomerIDFromContext(r.Context())
		if order.CustomerID == nil || *order.CustomerID != customerID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "cette commande ne vous appartient pas"))
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// ListMyOrders returns the caller's order page, newest first.
func ListMyOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := parseOrderFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListCustomerOrders(r.Context(), middleware.CustomerIDFromContext(r.Context()), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func parsePageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

func parseOrderFilters(r *http.Request) (internalorders.SearchFilters, error) {
	filters := internalorders.SearchFilters{
		Query: strings.TrimSpace(r.URL.Query().Get("q")),
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("payment_status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return filters, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status filter")
		}
		filters.PaymentStatus = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("fulfillment_status")); raw != "" {
		status, err := enums.ParseFulfillmentStatus(raw)
		if err != nil {
			return filters, pkgerrors.New(pkgerrors.CodeValidation, "invalid fulfillment status filter")
		}
		filters.FulfillmentStatus = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		orderType, err := enums.ParseOrderType(raw)
		if err != nil {
			return filters, pkgerrors.New(pkgerrors.CodeValidation, "invalid type filter")
		}
		filters.Type = &orderType
	}

	dateFrom, err := validators.ParseQueryDate(r, "date_from")
	if err != nil {
		return filters, err
	}
	filters.DateFrom = dateFrom

	dateTo, err := validators.ParseQueryDate(r, "date_to")
	if err != nil {
		return filters, err
	}
	filters.DateTo = dateTo

	return filters, nil
}
