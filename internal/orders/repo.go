package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maisonverdier/boutique-backend/pkg/db/models"
	"github.com/maisonverdier/boutique-backend/pkg/enums"
	"github.com/maisonverdier/boutique-backend/pkg/pagination"
)

// SQL fragments for the computed order type. Subscription orders are tagged
// in metadata, preorders derive from line items, imported orders carry the
// import flag.
const (
	subscriptionClause = "(COALESCE(metadata->>'subscription', 'false') = 'true' OR COALESCE(metadata->>'subscription_schedule_id', '') <> '')"
	preorderClause     = "EXISTS (SELECT 1 FROM order_line_items oli WHERE oli.order_id = orders.id AND oli.preorder)"
	importedClause     = "COALESCE(metadata->>'imported', 'false') = 'true'"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Omit("Items").Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIDs(ctx context.Context, orderIDs []uuid.UUID) ([]models.Order, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id IN ?", orderIDs).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// FindPreorderShippable lists completed, unfulfilled, non-subscription
// orders containing at least one preorder line for the given products.
func (r *repository) FindPreorderShippable(ctx context.Context, productIDs []uuid.UUID) ([]models.Order, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ?", enums.OrderStatusCompleted).
		Where("fulfillment_status = ?", enums.FulfillmentStatusNotFulfilled).
		Where("NOT " + subscriptionClause).
		Where("EXISTS (SELECT 1 FROM order_line_items oli WHERE oli.order_id = orders.id AND oli.preorder AND oli.product_id IN ?)", productIDs).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params, filters SearchFilters) (*OrderList, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("customer_id = ?", customerID)
	return r.list(ctx, query, params, filters)
}

func (r *repository) Search(ctx context.Context, params pagination.Params, filters SearchFilters) (*OrderList, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	return r.list(ctx, query, params, filters)
}

func (r *repository) list(ctx context.Context, query *gorm.DB, params pagination.Params, filters SearchFilters) (*OrderList, error) {
	normalizedLimit := pagination.NormalizeLimit(params.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)

	decodedCursor, err := pagination.ParseCursor(strings.TrimSpace(params.Cursor))
	if err != nil {
		return nil, err
	}

	query = applyFilters(query, filters)

	if decodedCursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", decodedCursor.CreatedAt, decodedCursor.CreatedAt, decodedCursor.ID)
	}

	var orders []models.Order
	err = query.
		Preload("Items").
		Order("created_at DESC").Order("id DESC").
		Limit(limitWithBuffer).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	list := &OrderList{}
	if len(orders) > normalizedLimit {
		orders = orders[:normalizedLimit]
		last := orders[len(orders)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	list.Orders = orders
	return list, nil
}

func applyFilters(query *gorm.DB, filters SearchFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filters.PaymentStatus)
	}
	if filters.FulfillmentStatus != nil {
		query = query.Where("fulfillment_status = ?", *filters.FulfillmentStatus)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	if q := strings.TrimSpace(filters.Query); q != "" {
		like := "%" + q + "%"
		query = query.Where(
			"email ILIKE ? OR order_number::text LIKE ? OR COALESCE(metadata->>'tracking_number', '') ILIKE ?",
			like, like, like,
		)
	}
	if filters.Type != nil {
		query = applyTypeFilter(query, *filters.Type)
	}
	return query
}

func applyTypeFilter(query *gorm.DB, orderType enums.OrderType) *gorm.DB {
	switch orderType {
	case enums.OrderTypeSubscription:
		return query.Where(subscriptionClause)
	case enums.OrderTypePreorder:
		return query.Where("NOT " + subscriptionClause).Where(preorderClause)
	case enums.OrderTypeImported:
		return query.Where("NOT " + subscriptionClause).
			Where("NOT " + preorderClause).
			Where(importedClause)
	case enums.OrderTypeStandard:
		return query.Where("NOT " + subscriptionClause).
			Where("NOT " + preorderClause).
			Where("NOT (" + importedClause + ")")
	default:
		return query
	}
}
