package shipping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/maisonverdier/boutique-backend/internal/orders"
	"github.com/maisonverdier/boutique-backend/pkg/db"
	"github.com/maisonverdier/boutique-backend/pkg/db/models"
	"github.com/maisonverdier/boutique-backend/pkg/enums"
	pkgerrors "github.com/maisonverdier/boutique-backend/pkg/errors"
	"github.com/maisonverdier/boutique-backend/pkg/logger"
	"github.com/maisonverdier/boutique-backend/pkg/metrics"
	"github.com/maisonverdier/boutique-backend/pkg/sendcloud"
	"github.com/maisonverdier/boutique-backend/pkg/types"
)

const (
	flowSingle   = "single"
	flowBulk     = "bulk"
	flowPreorder = "preorder"

	// fallbackWeightGrams keeps the carrier from rejecting imported orders
	// that predate weight tracking.
	fallbackWeightGrams = 1000
)

// BulkResult is one order's outcome within a batch shipment.
type BulkResult struct {
	OrderID uuid.UUID `json:"order_id"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// PreorderReport summarizes a release-day shipping run.
type PreorderReport struct {
	Shipped int          `json:"shipped"`
	Failed  int          `json:"failed"`
	Results []BulkResult `json:"results"`
}

// Service coordinates parcel creation with the carrier and hands the result
// to the lifecycle engine. It never writes order state directly.
type Service interface {
	SearchRelays(ctx context.Context, country, postalCode string) ([]sendcloud.ServicePoint, error)
	Ship(ctx context.Context, orderID uuid.UUID, force bool) (*models.Order, error)
	BulkShip(ctx context.Context, orderIDs []uuid.UUID) ([]BulkResult, error)
	ShipAllPreorders(ctx context.Context) (*PreorderReport, error)
	Track(ctx context.Context, orderID uuid.UUID) (*sendcloud.Tracking, error)
}

type service struct {
	repo    orders.Repository
	engine  orderEngine
	carrier Carrier
	catalog preorderCatalog
	metrics *metrics.ShippingMetrics
	logg    *logger.Logger
}

// NewService builds the fulfillment coordinator with the required dependencies.
func NewService(
	repo orders.Repository,
	engine orderEngine,
	carrier Carrier,
	catalog preorderCatalog,
	shippingMetrics *metrics.ShippingMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if engine == nil {
		return nil, fmt.Errorf("order engine required")
	}
	if carrier == nil {
		return nil, fmt.Errorf("carrier client required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{
		repo:    repo,
		engine:  engine,
		carrier: carrier,
		catalog: catalog,
		metrics: shippingMetrics,
		logg:    logg,
	}, nil
}

// SearchRelays lists carrier pickup points around a postal code.
func (s *service) SearchRelays(ctx context.Context, country, postalCode string) ([]sendcloud.ServicePoint, error) {
	if strings.TrimSpace(postalCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code postal requis")
	}
	points, err := s.carrier.SearchServicePoints(ctx, country, postalCode)
	if err != nil {
		return nil, pkgerrors.WrapUpstream(err, "search service points")
	}
	return points, nil
}

// Ship creates a parcel for one order. With force, an existing shipment is
// canceled best-effort and fulfillment is reset first, so the order ends up
// with exactly one new parcel and a single reshipped journal entry.
func (s *service) Ship(ctx context.Context, orderID uuid.UUID, force bool) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if force {
		if err := reshippable(order); err != nil {
			return nil, err
		}
		if err := s.forceReopen(ctx, order); err != nil {
			return nil, err
		}
		order.FulfillmentStatus = enums.FulfillmentStatusNotFulfilled
	}

	if err := eligibility(order); err != nil {
		return nil, err
	}

	shipped, err := s.createShipment(ctx, order, force, flowSingle)
	if err != nil {
		return nil, err
	}
	return shipped, nil
}

// BulkShip processes a batch with per-order isolation: one carrier failure
// never aborts the rest of the batch.
func (s *service) BulkShip(ctx context.Context, orderIDs []uuid.UUID) ([]BulkResult, error) {
	if len(orderIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one order id required")
	}

	found, err := s.repo.FindByIDs(ctx, orderIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load orders")
	}
	byID := make(map[uuid.UUID]*models.Order, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	results := make([]BulkResult, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		result := BulkResult{OrderID: orderID}
		order, ok := byID[orderID]
		if !ok {
			result.Error = "commande introuvable"
			results = append(results, result)
			continue
		}
		if err := s.shipOne(ctx, order, flowBulk); err != nil {
			result.Error = err.Error()
		} else {
			result.Success = true
		}
		results = append(results, result)
	}
	return results, nil
}

// ShipAllPreorders ships every paid, unfulfilled order holding a preorder
// line item. Meant for release day, when the whole backlog goes out at once.
func (s *service) ShipAllPreorders(ctx context.Context) (*PreorderReport, error) {
	productIDs, err := s.catalog.FindPreorderProductIDs(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load preorder products")
	}
	if len(productIDs) == 0 {
		return &PreorderReport{}, nil
	}

	shippable, err := s.repo.FindPreorderShippable(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shippable preorders")
	}

	report := &PreorderReport{Results: make([]BulkResult, 0, len(shippable))}
	for i := range shippable {
		order := &shippable[i]
		result := BulkResult{OrderID: order.ID}
		if err := s.shipOne(ctx, order, flowPreorder); err != nil {
			result.Error = err.Error()
			report.Failed++
		} else {
			result.Success = true
			report.Shipped++
		}
		report.Results = append(report.Results, result)
	}
	return report, nil
}

// Track proxies the carrier's parcel status for an order's shipment.
func (s *service) Track(ctx context.Context, orderID uuid.UUID) (*sendcloud.Tracking, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Metadata.ShipmentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "aucune expédition pour cette commande")
	}
	tracking, err := s.carrier.Track(ctx, order.Metadata.ShipmentID)
	if err != nil {
		return nil, pkgerrors.WrapUpstream(err, "track parcel")
	}
	return tracking, nil
}

func (s *service) shipOne(ctx context.Context, order *models.Order, flow string) error {
	if err := eligibility(order); err != nil {
		return err
	}
	_, err := s.createShipment(ctx, order, false, flow)
	return err
}

// forceReopen cancels the previous parcel best-effort and resets the
// fulfillment axis. A cancel failure is logged, not fatal: the carrier
// refuses cancels once a parcel is handed over, and the re-ship must still
// proceed.
func (s *service) forceReopen(ctx context.Context, order *models.Order) error {
	var soft error
	if order.Metadata.ShipmentID != "" {
		if err := s.carrier.CancelParcel(ctx, order.Metadata.ShipmentID); err != nil {
			soft = multierr.Append(soft, fmt.Errorf("cancel parcel %s: %w", order.Metadata.ShipmentID, err))
		} else if s.metrics != nil {
			s.metrics.IncCanceled()
		}
	}
	if soft != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()),
			"previous parcel could not be canceled: "+soft.Error())
	}

	if err := s.engine.ResetFulfillment(ctx, order.ID); err != nil {
		return err
	}
	order.Metadata.ShipmentID = ""
	order.Metadata.TrackingNumber = ""
	order.Metadata.ShippingFailure = ""
	return nil
}

func (s *service) createShipment(ctx context.Context, order *models.Order, reshipped bool, flow string) (*models.Order, error) {
	address, err := s.resolveDestination(ctx, order)
	if err != nil {
		s.noteFailure(ctx, order.ID, err, flow)
		return nil, err
	}

	parcel, err := s.carrier.CreateParcel(ctx, sendcloud.ParcelRequest{
		OrderNumber: fmt.Sprintf("%d", order.OrderNumber),
		WeightGrams: parcelWeight(order),
		Address:     address,
		Email:       order.Email,
	})
	if err != nil {
		wrapped := pkgerrors.WrapUpstream(err, "create parcel")
		s.noteFailure(ctx, order.ID, wrapped, flow)
		return nil, wrapped
	}

	shipped, err := s.engine.MarkShipped(ctx, order.ID, orders.ShipmentUpdate{
		ShipmentID:     parcel.ID,
		TrackingNumber: parcel.TrackingNumber,
		Reshipped:      reshipped,
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncCreated(flow)
	}
	return shipped, nil
}

// resolveDestination builds the carrier address block. Relay orders carry
// only the relay code at checkout; the postal address is fetched from the
// carrier on first use and cached on the order.
func (s *service) resolveDestination(ctx context.Context, order *models.Order) (sendcloud.ParcelAddress, error) {
	shipTo := order.ShippingAddress
	name := strings.TrimSpace(shipTo.FirstName + " " + shipTo.LastName)

	if order.ShippingMethod == enums.ShippingMethodRelay {
		relay := shipTo.Relay
		if relay == nil || strings.TrimSpace(relay.Code) == "" {
			return sendcloud.ParcelAddress{}, pkgerrors.New(pkgerrors.CodeStateConflict,
				"aucun point relais associé à cette commande")
		}
		if !relay.HasFullAddress() {
			resolved, err := s.backfillRelay(ctx, order)
			if err != nil {
				return sendcloud.ParcelAddress{}, err
			}
			relay = resolved
		}
		address := sendcloud.ParcelAddress{
			Name:           name,
			Address:        relay.Street,
			PostalCode:     relay.PostalCode,
			City:           relay.City,
			Country:        relayCountry(relay),
			ToServicePoint: relay.Code,
		}
		if shipTo.Phone != nil {
			address.Phone = *shipTo.Phone
		}
		return address, nil
	}

	line := shipTo.Line1
	if shipTo.Line2 != nil && strings.TrimSpace(*shipTo.Line2) != "" {
		line = strings.TrimSpace(line + " " + *shipTo.Line2)
	}
	address := sendcloud.ParcelAddress{
		Name:       name,
		Address:    line,
		PostalCode: shipTo.PostalCode,
		City:       shipTo.City,
		Country:    shipTo.Country,
	}
	if shipTo.Phone != nil {
		address.Phone = *shipTo.Phone
	}
	return address, nil
}

// backfillRelay resolves the relay code against the carrier and caches the
// postal address on the order. A vanished relay is surfaced immediately so
// the admin can pick a new pickup point; retrying would not help.
func (s *service) backfillRelay(ctx context.Context, order *models.Order) (*types.RelayPoint, error) {
	code := order.ShippingAddress.Relay.Code
	point, err := s.carrier.GetServicePoint(ctx, code)
	if err != nil {
		if errors.Is(err, sendcloud.ErrServicePointNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("le point relais %s n'existe plus chez le transporteur", code))
		}
		return nil, pkgerrors.WrapUpstream(err, "resolve service point")
	}

	resolved := &types.RelayPoint{
		Code:       code,
		Name:       point.Name,
		Street:     point.Street,
		PostalCode: point.PostalCode,
		City:       point.City,
		Country:    point.Country,
	}

	address := order.ShippingAddress
	address.Relay = resolved
	if err := s.repo.Update(ctx, order.ID, map[string]any{"shipping_address": address}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cache relay address")
	}
	order.ShippingAddress = address
	return resolved, nil
}

func (s *service) noteFailure(ctx context.Context, orderID uuid.UUID, cause error, flow string) {
	if s.metrics != nil {
		s.metrics.IncFailed(flow)
	}
	if err := s.engine.RecordShippingFailure(ctx, orderID, cause.Error()); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), "record shipping failure", err)
	}
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

func paid(order *models.Order) error {
	if order.Status != enums.OrderStatusCompleted || order.PaymentStatus != enums.PaymentStatusCaptured {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "la commande n'est pas payée")
	}
	return nil
}

// eligibility gates the normal shipping path: the order is paid and its
// fulfillment axis has not advanced. Fulfilled, shipped and delivered orders
// are all rejected.
func eligibility(order *models.Order) error {
	if err := paid(order); err != nil {
		return err
	}
	if order.FulfillmentStatus != enums.FulfillmentStatusNotFulfilled {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "commande déjà expédiée")
	}
	return nil
}

// reshippable gates the force path and runs before any state is touched, so
// a rejected request leaves the previous parcel and metadata intact. A
// delivered order stays final even under force.
func reshippable(order *models.Order) error {
	if err := paid(order); err != nil {
		return err
	}
	if order.FulfillmentStatus == enums.FulfillmentStatusDelivered {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "commande déjà livrée")
	}
	return nil
}

func parcelWeight(order *models.Order) int {
	if order.WeightGrams > 0 {
		return order.WeightGrams
	}
	return fallbackWeightGrams
}

func relayCountry(relay *types.RelayPoint) string {
	if strings.TrimSpace(relay.Country) != "" {
		return relay.Country
	}
	return "FR"
}
