package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maisonverdier/boutique-backend/internal/catalog"
	"github.com/maisonverdier/boutique-backend/internal/inventory"
	"github.com/maisonverdier/boutique-backend/pkg/db"
	"github.com/maisonverdier/boutique-backend/pkg/db/models"
	"github.com/maisonverdier/boutique-backend/pkg/enums"
	pkgerrors "github.com/maisonverdier/boutique-backend/pkg/errors"
	"github.com/maisonverdier/boutique-backend/pkg/logger"
	"github.com/maisonverdier/boutique-backend/pkg/pagination"
	"github.com/maisonverdier/boutique-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ratesReader interface {
	ShippingRates(ctx context.Context) (json.RawMessage, error)
}

// RateTable is the admin-configured shipping fee table.
type RateTable struct {
	RelayCents     int `json:"relay_cents"`
	HomeCents      int `json:"home_cents"`
	FreeAboveCents int `json:"free_above_cents"`
}

// ShipmentUpdate carries the carrier identifiers the coordinator hands back
// to the engine once a parcel exists.
type ShipmentUpdate struct {
	ShipmentID     string
	TrackingNumber string
	Reshipped      bool
}

// Service owns the order state machine. It is the only writer of status
// columns and of the metadata history journal.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	Confirm(ctx context.Context, orderID, customerID uuid.UUID) (*models.Order, error)
	Refund(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListCustomerOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params, filters SearchFilters) (*OrderList, error)
	AdminSearch(ctx context.Context, params pagination.Params, filters SearchFilters) (*OrderList, error)
	AddNote(ctx context.Context, orderID uuid.UUID, text string) (uuid.UUID, error)
	RemoveNote(ctx context.Context, orderID, noteID uuid.UUID) error
	MarkShipped(ctx context.Context, orderID uuid.UUID, update ShipmentUpdate) (*models.Order, error)
	ResetFulfillment(ctx context.Context, orderID uuid.UUID) error
	RecordShippingFailure(ctx context.Context, orderID uuid.UUID, cause string) error
}

type service struct {
	repo       Repository
	tx         txRunner
	payments   PaymentGateway
	catalog    catalog.Repository
	catalogSvc catalog.Service
	inventory  inventory.Adjuster
	emails     EmailVerifier
	rates      ratesReader
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the order lifecycle engine with the required dependencies.
func NewService(
	repo Repository,
	tx txRunner,
	payments PaymentGateway,
	catalogRepo catalog.Repository,
	adjuster inventory.Adjuster,
	emails EmailVerifier,
	rates ratesReader,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if payments == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if adjuster == nil {
		return nil, fmt.Errorf("inventory adjuster required")
	}
	if emails == nil {
		return nil, fmt.Errorf("email verifier required")
	}
	catalogSvc, err := catalog.NewService(catalogRepo)
	if err != nil {
		return nil, err
	}
	return &service{
		repo:       repo,
		tx:         tx,
		payments:   payments,
		catalog:    catalogRepo,
		catalogSvc: catalogSvc,
		inventory:  adjuster,
		emails:     emails,
		rates:      rates,
		logg:       logg,
		now:        time.Now,
	}, nil
}

// Create validates the cart against current catalog data, opens a payment
// intent, and persists the pending order. Stock is not decremented here;
// that happens on confirmed payment so abandoned checkouts never hold
// inventory.
func (s *service) Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}
	if err := s.emails.VerifyDomain(ctx, input.Email); err != nil {
		return nil, err
	}

	products, err := s.loadProducts(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	subtotal := 0
	weight := 0
	lineItems := make([]models.OrderLineItem, 0, len(input.Items))
	for _, item := range input.Items {
		product := products[item.ProductID]

		if !product.Preorder {
			stock := 0
			if product.Inventory != nil {
				stock = product.Inventory.Stock
			}
			if stock < item.Qty {
				return nil, pkgerrors.New(pkgerrors.CodeConflict,
					fmt.Sprintf("stock insuffisant pour « %s »", product.Title))
			}
		}

		lineTotal := product.PriceCents * item.Qty
		subtotal += lineTotal
		weight += product.WeightGrams * item.Qty

		productID := product.ID
		lineItems = append(lineItems, models.OrderLineItem{
			ProductID:      &productID,
			Name:           product.Title,
			UnitPriceCents: product.PriceCents,
			Qty:            item.Qty,
			WeightGrams:    product.WeightGrams,
			Preorder:       product.Preorder,
			TotalCents:     lineTotal,
		})
	}

	discountCents := 0
	var discountCode *string
	if input.DiscountCode != nil && strings.TrimSpace(*input.DiscountCode) != "" {
		discount, err := s.catalogSvc.ValidateDiscount(ctx, *input.DiscountCode, s.now())
		if err != nil {
			return nil, err
		}
		discountCents = catalog.ApplyDiscount(discount, subtotal)
		code := discount.Code
		discountCode = &code
	}

	shippingFee := s.shippingFee(ctx, input.ShippingMethod, subtotal-discountCents)
	total := subtotal - discountCents + shippingFee

	intent, err := s.payments.CreatePaymentIntent(ctx, CreateIntentInput{
		AmountCents: total,
		Currency:    "eur",
		Email:       input.Email,
		OrderRef:    uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	metadata := types.OrderMetadata{Version: 1, PaymentIntentID: intent.ID}
	metadata.AppendHistory(now, "created", "Commande créée")

	order := &models.Order{
		CustomerID:        input.CustomerID,
		Email:             strings.TrimSpace(input.Email),
		Status:            enums.OrderStatusPending,
		PaymentStatus:     enums.PaymentStatusNotPaid,
		FulfillmentStatus: enums.FulfillmentStatusNotFulfilled,
		ShippingMethod:    input.ShippingMethod,
		SubtotalCents:     subtotal,
		DiscountCents:     discountCents,
		ShippingFeeCents:  shippingFee,
		TotalCents:        total,
		WeightGrams:       weight,
		DiscountCode:      discountCode,
		ShippingAddress:   input.Address,
		Metadata:          metadata,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		created, err := repo.Create(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}
		for i := range lineItems {
			lineItems[i].OrderID = created.ID
		}
		if err := repo.CreateLineItems(ctx, lineItems); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist line items")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order.Items = lineItems
	return &CreateOrderResult{Order: order, ClientSecret: intent.ClientSecret}, nil
}

// Confirm re-reads the authoritative payment state and, if captured, flips
// the order to completed/captured, decrements stock once, and bumps the
// discount usage counter. Re-invocation on a completed order is a no-op.
func (s *service) Confirm(ctx context.Context, orderID, customerID uuid.UUID) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	// Guest orders carry no customer; anyone holding the order id may
	// trigger the confirm, which only acts on the provider's own verdict.
	if order.CustomerID != nil && *order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cette commande ne vous appartient pas")
	}

	if order.Status == enums.OrderStatusCompleted {
		return order, nil
	}
	if order.Metadata.PaymentIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "aucun paiement associé à cette commande")
	}

	intent, err := s.payments.GetPaymentIntent(ctx, order.Metadata.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if !intent.Succeeded {
		// Not an error: the caller polls until the provider captures.
		return order, nil
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		for _, item := range order.Items {
			if item.Preorder || item.ProductID == nil {
				continue
			}
			if err := s.inventory.Decrement(ctx, tx, *item.ProductID, item.Qty); err != nil {
				return err
			}
		}

		if order.DiscountCode != nil {
			catalogRepo := s.catalog.WithTx(tx)
			discount, err := catalogRepo.FindDiscountByCode(ctx, *order.DiscountCode)
			if err == nil {
				if err := catalogRepo.IncrementDiscountUsage(ctx, discount.ID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment discount usage")
				}
			} else if !db.IsNotFound(err) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discount")
			}
		}

		metadata := order.Metadata
		metadata.AppendHistory(now, "payment_confirmed", "Paiement confirmé")

		updates := map[string]any{
			"status":         enums.OrderStatusCompleted,
			"payment_status": enums.PaymentStatusCaptured,
			"metadata":       metadata,
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		order.Status = enums.OrderStatusCompleted
		order.PaymentStatus = enums.PaymentStatusCaptured
		order.Metadata = metadata
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Refund issues a full refund with the provider first and only then flips
// local state. The invoice reference wins over the raw intent reference
// because subscription orders bill through invoices.
func (s *service) Refund(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == enums.PaymentStatusRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cette commande a déjà été remboursée")
	}

	intentID := order.Metadata.PaymentIntentID
	if order.Metadata.InvoiceID != "" {
		intentID, err = s.payments.PaymentIntentForInvoice(ctx, order.Metadata.InvoiceID)
		if err != nil {
			return nil, err
		}
	}
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "aucun paiement trouvé pour cette commande")
	}

	if err := s.payments.RefundPaymentIntent(ctx, intentID); err != nil {
		// Gateway refused: local state stays untouched.
		return nil, err
	}

	now := s.now()
	metadata := order.Metadata
	metadata.AppendHistory(now, "refunded", "Commande remboursée")

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Update(ctx, order.ID, map[string]any{
			"status":         enums.OrderStatusCanceled,
			"payment_status": enums.PaymentStatusRefunded,
			"metadata":       metadata,
		})
	})
	if err != nil {
		// The provider refund already happened and cannot be undone here.
		if s.logg != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()),
				"refund persisted at provider but local update failed", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "refund issued but order update failed")
	}

	order.Status = enums.OrderStatusCanceled
	order.PaymentStatus = enums.PaymentStatusRefunded
	order.Metadata = metadata
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.loadOrder(ctx, orderID)
}

func (s *service) ListCustomerOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params, filters SearchFilters) (*OrderList, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	list, err := s.repo.ListByCustomer(ctx, customerID, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list customer orders")
	}
	return list, nil
}

func (s *service) AdminSearch(ctx context.Context, params pagination.Params, filters SearchFilters) (*OrderList, error) {
	list, err := s.repo.Search(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search orders")
	}
	return list, nil
}

// AddNote appends an internal note to the order metadata. Notes live next
// to the history journal but are removable, unlike history entries.
func (s *service) AddNote(ctx context.Context, orderID uuid.UUID, text string) (uuid.UUID, error) {
	if strings.TrimSpace(text) == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "note text required")
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return uuid.Nil, err
	}

	metadata := order.Metadata
	noteID := metadata.AddNote(s.now(), strings.TrimSpace(text))

	if err := s.repo.Update(ctx, order.ID, map[string]any{"metadata": metadata}); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store note")
	}
	return noteID, nil
}

func (s *service) RemoveNote(ctx context.Context, orderID, noteID uuid.UUID) error {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}

	metadata := order.Metadata
	if !metadata.RemoveNote(noteID) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "note not found")
	}

	if err := s.repo.Update(ctx, order.ID, map[string]any{"metadata": metadata}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove note")
	}
	return nil
}

// MarkShipped is the shipping coordinator's only way to advance the
// fulfillment axis. Both invariants are enforced here: no code path can ship
// an unpaid order, and an order whose fulfillment already advanced (shipped,
// delivered) must go through ResetFulfillment first.
func (s *service) MarkShipped(ctx context.Context, orderID uuid.UUID, update ShipmentUpdate) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusCompleted || order.PaymentStatus != enums.PaymentStatusCaptured {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order must be completed and captured before shipping")
	}
	if order.FulfillmentStatus != enums.FulfillmentStatusNotFulfilled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "fulfillment already advanced for this order")
	}

	now := s.now()
	metadata := order.Metadata
	metadata.ShipmentID = update.ShipmentID
	metadata.TrackingNumber = update.TrackingNumber
	metadata.ShippingFailure = ""
	if update.Reshipped {
		metadata.AppendHistory(now, "reshipped", "Commande réexpédiée")
	} else {
		metadata.AppendHistory(now, "shipped", "Commande expédiée")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Update(ctx, order.ID, map[string]any{
			"fulfillment_status": enums.FulfillmentStatusShipped,
			"metadata":           metadata,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order shipped")
	}

	order.FulfillmentStatus = enums.FulfillmentStatusShipped
	order.Metadata = metadata
	return order, nil
}

// ResetFulfillment re-opens the fulfillment axis for a forced re-ship. No
// history entry is written; the single reshipped entry comes from the
// subsequent MarkShipped.
func (s *service) ResetFulfillment(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}

	metadata := order.Metadata
	metadata.ShipmentID = ""
	metadata.TrackingNumber = ""
	metadata.ShippingFailure = ""

	err = s.repo.Update(ctx, order.ID, map[string]any{
		"fulfillment_status": enums.FulfillmentStatusNotFulfilled,
		"metadata":           metadata,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset fulfillment")
	}
	return nil
}

func (s *service) RecordShippingFailure(ctx context.Context, orderID uuid.UUID, cause string) error {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}

	metadata := order.Metadata
	metadata.ShippingFailure = cause

	if err := s.repo.Update(ctx, order.ID, map[string]any{"metadata": metadata}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record shipping failure")
	}
	return nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "commande introuvable")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) loadProducts(ctx context.Context, items []LineItemInput) (map[uuid.UUID]*models.Product, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}

	products, err := s.catalog.FindProductsByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	byID := make(map[uuid.UUID]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "produit introuvable")
		}
		if !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("le produit « %s » n'est plus disponible", product.Title))
		}
	}
	return byID, nil
}

func (s *service) shippingFee(ctx context.Context, method enums.ShippingMethod, payableCents int) int {
	if s.rates == nil {
		return 0
	}
	raw, err := s.rates.ShippingRates(ctx)
	if err != nil || len(raw) == 0 {
		return 0
	}

	var table RateTable
	if err := json.Unmarshal(raw, &table); err != nil {
		return 0
	}
	if table.FreeAboveCents > 0 && payableCents >= table.FreeAboveCents {
		return 0
	}
	if method == enums.ShippingMethodRelay {
		return table.RelayCents
	}
	return table.HomeCents
}

func validateCreateInput(input CreateOrderInput) error {
	if strings.TrimSpace(input.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "adresse e-mail requise")
	}
	if !input.ShippingMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "mode de livraison invalide")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "le panier est vide")
	}
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "la quantité doit être positive")
		}
	}
	if input.ShippingMethod == enums.ShippingMethodRelay {
		if input.Address.Relay == nil || strings.TrimSpace(input.Address.Relay.Code) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "un point relais est requis pour ce mode de livraison")
		}
	}
	if field := input.Address.Validate(); field != "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "adresse incomplète").
			WithDetails(map[string]string{"field": field})
	}
	return nil
}
