package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/maisonverdier/boutique-backend/pkg/db/models"
	"github.com/maisonverdier/boutique-backend/pkg/enums"
	"github.com/maisonverdier/boutique-backend/pkg/pagination"
	"github.com/maisonverdier/boutique-backend/pkg/types"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ordersTable := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number INTEGER NOT NULL,
  customer_id TEXT,
  email TEXT NOT NULL,
  status TEXT NOT NULL,
  payment_status TEXT NOT NULL,
  fulfillment_status TEXT NOT NULL,
  shipping_method TEXT NOT NULL,
  subtotal_cents INTEGER NOT NULL,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  shipping_fee_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  weight_grams INTEGER NOT NULL DEFAULT 0,
  discount_code TEXT,
  shipping_address TEXT,
  metadata TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	lineItems := `
CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT,
  name TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  qty INTEGER NOT NULL,
  weight_grams INTEGER NOT NULL DEFAULT 0,
  preorder INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(ordersTable).Error)
	require.NoError(t, db.Exec(lineItems).Error)
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, customerID uuid.UUID, number int64, created time.Time, status enums.OrderStatus, payment enums.PaymentStatus, fulfillment enums.FulfillmentStatus) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:                uuid.New(),
		OrderNumber:       number,
		CustomerID:        &customerID,
		Email:             "client@example.fr",
		Status:            status,
		PaymentStatus:     payment,
		FulfillmentStatus: fulfillment,
		ShippingMethod:    enums.ShippingMethodHome,
		SubtotalCents:     2400,
		TotalCents:        2400,
		WeightGrams:       500,
		ShippingAddress: types.Address{
			Line1:      "12 rue des Lilas",
			City:       "Lyon",
			PostalCode: "69003",
			Country:    "FR",
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, db.Create(order).Error)

	item := &models.OrderLineItem{
		ID:             uuid.New(),
		OrderID:        order.ID,
		Name:           "Coffret découverte",
		UnitPriceCents: 2400,
		Qty:            1,
		WeightGrams:    500,
		TotalCents:     2400,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	require.NoError(t, db.Create(item).Error)
	return order
}

func TestRepositoryListByCustomer_pagination(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	customerID := uuid.New()
	now := time.Now().UTC()
	seedOrder(t, db, customerID, 1, now.Add(-time.Hour), enums.OrderStatusCompleted, enums.PaymentStatusCaptured, enums.FulfillmentStatusShipped)
	seedOrder(t, db, customerID, 2, now, enums.OrderStatusPending, enums.PaymentStatusNotPaid, enums.FulfillmentStatusNotFulfilled)
	seedOrder(t, db, uuid.New(), 3, now, enums.OrderStatusPending, enums.PaymentStatusNotPaid, enums.FulfillmentStatusNotFulfilled)

	list, err := repo.ListByCustomer(context.Background(), customerID, pagination.Params{Limit: 1}, SearchFilters{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.NotEmpty(t, list.NextCursor)
	assert.Equal(t, int64(2), list.Orders[0].OrderNumber)
	require.Len(t, list.Orders[0].Items, 1)
	assert.Equal(t, "Coffret découverte", list.Orders[0].Items[0].Name)

	second, err := repo.ListByCustomer(context.Background(), customerID, pagination.Params{Limit: 1, Cursor: list.NextCursor}, SearchFilters{})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.Equal(t, int64(1), second.Orders[0].OrderNumber)
	assert.Empty(t, second.NextCursor)
}

func TestRepositorySearch_statusFilters(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	// Distinct window keeps this test isolated on the shared in-memory DB.
	base := time.Date(2031, 4, 1, 12, 0, 0, 0, time.UTC)
	customerID := uuid.New()
	shippable := seedOrder(t, db, customerID, 10, base, enums.OrderStatusCompleted, enums.PaymentStatusCaptured, enums.FulfillmentStatusNotFulfilled)
	seedOrder(t, db, customerID, 11, base.Add(time.Minute), enums.OrderStatusCompleted, enums.PaymentStatusCaptured, enums.FulfillmentStatusShipped)
	seedOrder(t, db, customerID, 12, base.Add(2*time.Minute), enums.OrderStatusPending, enums.PaymentStatusNotPaid, enums.FulfillmentStatusNotFulfilled)

	from := base.Add(-time.Minute)
	to := base.Add(10 * time.Minute)
	filters := SearchFilters{
		Status:            ptr(enums.OrderStatusCompleted),
		PaymentStatus:     ptr(enums.PaymentStatusCaptured),
		FulfillmentStatus: ptr(enums.FulfillmentStatusNotFulfilled),
		DateFrom:          &from,
		DateTo:            &to,
	}
	list, err := repo.Search(context.Background(), pagination.Params{Limit: 10}, filters)
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, shippable.ID, list.Orders[0].ID)
	assert.Empty(t, list.NextCursor)
}

func TestRepositoryUpdateAndFindByIDs(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	customerID := uuid.New()
	now := time.Now().UTC()
	first := seedOrder(t, db, customerID, 20, now.Add(-time.Minute), enums.OrderStatusCompleted, enums.PaymentStatusCaptured, enums.FulfillmentStatusNotFulfilled)
	second := seedOrder(t, db, customerID, 21, now, enums.OrderStatusCompleted, enums.PaymentStatusCaptured, enums.FulfillmentStatusNotFulfilled)

	require.NoError(t, repo.Update(context.Background(), first.ID, map[string]any{
		"fulfillment_status": enums.FulfillmentStatusShipped,
	}))

	orders, err := repo.FindByIDs(context.Background(), []uuid.UUID{first.ID, second.ID})
	require.NoError(t, err)
	require.Len(t, orders, 2)

	byID := map[uuid.UUID]models.Order{}
	for _, o := range orders {
		byID[o.ID] = o
	}
	assert.Equal(t, enums.FulfillmentStatusShipped, byID[first.ID].FulfillmentStatus)
	assert.Equal(t, enums.FulfillmentStatusNotFulfilled, byID[second.ID].FulfillmentStatus)
	require.Len(t, byID[second.ID].Items, 1)
}

func ptr[T any](v T) *T {
	return &v
}
