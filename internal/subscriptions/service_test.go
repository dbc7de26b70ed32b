package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/maisonverdier/boutique-backend/internal/catalog"
	"github.com/maisonverdier/boutique-backend/internal/customers"
	"github.com/maisonverdier/boutique-backend/pkg/db/models"
	pkgerrors "github.com/maisonverdier/boutique-backend/pkg/errors"
)

type stubCustomersRepo struct {
	customer   *models.Customer
	subscribed []models.Customer
	updates    []map[string]any
	updateErr  error
}

func (s *stubCustomersRepo) WithTx(tx *gorm.DB) customers.Repository { return s }

func (s *stubCustomersRepo) FindByID(ctx context.Context, customerID uuid.UUID) (*models.Customer, error) {
	if s.customer == nil || s.customer.ID != customerID {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *s.customer
	return &clone, nil
}

func (s *stubCustomersRepo) FindByEmail(ctx context.Context, email string) (*models.Customer, error) {
	panic("not implemented")
}

func (s *stubCustomersRepo) ListWithActiveSchedules(ctx context.Context) ([]models.Customer, error) {
	return s.subscribed, nil
}

func (s *stubCustomersRepo) Update(ctx context.Context, customerID uuid.UUID, updates map[string]any) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, updates)
	if s.customer != nil && s.customer.ID == customerID {
		if v, ok := updates["subscription_schedule_id"]; ok {
			if v == nil {
				s.customer.SubscriptionScheduleID = nil
			} else if id, ok := v.(string); ok {
				s.customer.SubscriptionScheduleID = &id
			}
		}
		if v, ok := updates["subscription_skipped"]; ok {
			if arr, ok := v.(pq.StringArray); ok {
				s.customer.SubscriptionSkipped = arr
			}
		}
		if v, ok := updates["stripe_customer_id"]; ok {
			if id, ok := v.(string); ok {
				s.customer.StripeCustomerID = &id
			}
		}
	}
	return nil
}

type stubSubCatalogRepo struct {
	product *models.Product
}

func (s *stubSubCatalogRepo) WithTx(tx *gorm.DB) catalog.Repository { return s }

func (s *stubSubCatalogRepo) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if s.product == nil || s.product.ID != productID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.product, nil
}

func (s *stubSubCatalogRepo) FindProductsByIDs(ctx context.Context, productIDs []uuid.UUID) ([]models.Product, error) {
	panic("not implemented")
}

func (s *stubSubCatalogRepo) FindPreorderProductIDs(ctx context.Context) ([]uuid.UUID, error) {
	panic("not implemented")
}

func (s *stubSubCatalogRepo) FindDiscountByCode(ctx context.Context, code string) (*models.Discount, error) {
	panic("not implemented")
}

func (s *stubSubCatalogRepo) IncrementDiscountUsage(ctx context.Context, discountID uuid.UUID) error {
	panic("not implemented")
}

type stubScheduleGateway struct {
	schedule       *Schedule
	setupIntent    *SetupIntent
	createdPhases  []Phase
	createErr      error
	updatedPhases  []Phase
	updateCalls    int
	updateErrFor   map[string]error
	canceled       []string
	createdPrices  int
	setupRequests  []map[string]string
	defaultMethods []string
}

func (g *stubScheduleGateway) EnsureCustomer(ctx context.Context, email, name string, existingID *string) (string, error) {
	if existingID != nil && *existingID != "" {
		return *existingID, nil
	}
	return "cus_new", nil
}

func (g *stubScheduleGateway) CreateRecurringPrice(ctx context.Context, productName string, amountCents int) (string, error) {
	g.createdPrices++
	return "price_stub", nil
}

func (g *stubScheduleGateway) CreateSetupIntent(ctx context.Context, providerCustomerID string, metadata map[string]string) (*SetupIntent, error) {
	g.setupRequests = append(g.setupRequests, metadata)
	return &SetupIntent{ID: "seti_new", ClientSecret: "seti_secret", Metadata: metadata}, nil
}

func (g *stubScheduleGateway) GetSetupIntent(ctx context.Context, intentID string) (*SetupIntent, error) {
	if g.setupIntent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no such intent")
	}
	return g.setupIntent, nil
}

func (g *stubScheduleGateway) SetDefaultPaymentMethod(ctx context.Context, providerCustomerID, paymentMethodID string) error {
	g.defaultMethods = append(g.defaultMethods, paymentMethodID)
	return nil
}

func (g *stubScheduleGateway) CreateSchedule(ctx context.Context, providerCustomerID string, phases []Phase) (*Schedule, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.createdPhases = phases
	return &Schedule{ID: "sub_sched_new", Status: "active", Phases: phases}, nil
}

func (g *stubScheduleGateway) GetSchedule(ctx context.Context, scheduleID string) (*Schedule, error) {
	if g.schedule == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no such schedule")
	}
	return g.schedule, nil
}

func (g *stubScheduleGateway) UpdateSchedulePhases(ctx context.Context, scheduleID string, phases []Phase) error {
	if err, ok := g.updateErrFor[scheduleID]; ok {
		return err
	}
	g.updateCalls++
	g.updatedPhases = phases
	return nil
}

func (g *stubScheduleGateway) CancelSchedule(ctx context.Context, scheduleID string) error {
	g.canceled = append(g.canceled, scheduleID)
	return nil
}

type stubSubTxRunner struct{}

func (s *stubSubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubSubAdjuster struct {
	decrements map[uuid.UUID]int
}

func (s *stubSubAdjuster) Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if s.decrements == nil {
		s.decrements = map[uuid.UUID]int{}
	}
	s.decrements[productID] += qty
	return nil
}

func (s *stubSubAdjuster) Increment(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	panic("not implemented")
}

type stubCalendar struct {
	dates []string
}

func (s *stubCalendar) DeliveryCalendar(ctx context.Context) ([]string, error) {
	return s.dates, nil
}

type stubGuard struct {
	taken map[string]bool
}

func (s *stubGuard) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.taken == nil {
		s.taken = map[string]bool{}
	}
	if s.taken[key] {
		return false, nil
	}
	s.taken[key] = true
	return true, nil
}

func (s *stubGuard) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.taken, key)
	}
	return nil
}

func (s *stubGuard) IdempotencyKey(scope, id string) string {
	return "boutique:idempotency:" + scope + ":" + id
}

func day(value string) time.Time {
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		panic(err)
	}
	return parsed.UTC()
}

type subFixture struct {
	svc       *service
	customers *stubCustomersRepo
	gateway   *stubScheduleGateway
	adjuster  *stubSubAdjuster
	guard     *stubGuard
	customer  *models.Customer
	product   *models.Product
}

func newSubFixture(t *testing.T, calendar []string) *subFixture {
	t.Helper()

	stock := 5
	product := &models.Product{
		ID:         uuid.New(),
		Title:      "Box trimestrielle",
		IsActive:   true,
		PriceCents: 4900,
		Inventory:  &models.InventoryItem{Stock: stock},
	}
	customer := &models.Customer{
		ID:        uuid.New(),
		Email:     "claire@example.fr",
		FirstName: "Claire",
		LastName:  "Moreau",
	}

	repo := &stubCustomersRepo{customer: customer}
	gateway := &stubScheduleGateway{}
	adjuster := &stubSubAdjuster{}
	guard := &stubGuard{}

	svc := &service{
		customers: repo,
		catalog:   &stubSubCatalogRepo{product: product},
		gateway:   gateway,
		tx:        &stubSubTxRunner{},
		inventory: adjuster,
		calendar:  &stubCalendar{dates: calendar},
		guard:     guard,
		now:       func() time.Time { return day("2025-01-15") },
	}

	return &subFixture{
		svc:       svc,
		customers: repo,
		gateway:   gateway,
		adjuster:  adjuster,
		guard:     guard,
		customer:  customer,
		product:   product,
	}
}

func TestSubscribeRejectsActiveSchedule(t *testing.T) {
	f := newSubFixture(t, []string{"2025-03-01"})
	scheduleID := "sub_sched_existing"
	f.customer.SubscriptionScheduleID = &scheduleID

	_, err := f.svc.Subscribe(context.Background(), f.customer.ID, f.product.ID)
	if err == nil {
		t.Fatal("expected conflict for customer with an active schedule")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict code, got %v", err)
	}
}

func TestSubscribeStashesCalendarInIntentMetadata(t *testing.T) {
	f := newSubFixture(t, []string{"2025-03-01", "2025-06-01"})

	result, err := f.svc.Subscribe(context.Background(), f.customer.ID, f.product.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if result.ClientSecret != "seti_secret" {
		t.Fatalf("expected the intent client secret, got %q", result.ClientSecret)
	}
	if len(f.gateway.setupRequests) != 1 {
		t.Fatalf("expected one setup intent, got %d", len(f.gateway.setupRequests))
	}
	metadata := f.gateway.setupRequests[0]
	if metadata[metadataDeliveryDates] != "2025-03-01,2025-06-01" {
		t.Fatalf("unexpected delivery dates metadata %q", metadata[metadataDeliveryDates])
	}
	if metadata[metadataProductID] != f.product.ID.String() {
		t.Fatalf("unexpected product metadata %q", metadata[metadataProductID])
	}
}

func TestSubscribePrefersSubscriptionPrice(t *testing.T) {
	f := newSubFixture(t, []string{"2025-03-01"})
	subPrice := 3900
	f.product.SubscriptionPriceCents = &subPrice

	if _, err := f.svc.Subscribe(context.Background(), f.customer.ID, f.product.ID); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if f.gateway.createdPrices != 1 {
		t.Fatalf("expected one recurring price, got %d", f.gateway.createdPrices)
	}
}

func confirmFixture(t *testing.T, dates string) *subFixture {
	t.Helper()

	f := newSubFixture(t, nil)
	providerID := "cus_existing"
	f.customer.StripeCustomerID = &providerID
	f.gateway.setupIntent = &SetupIntent{
		ID:            "seti_done",
		Succeeded:     true,
		PaymentMethod: "pm_card",
		Metadata: map[string]string{
			metadataProductID:     f.product.ID.String(),
			metadataPriceID:       "price_stub",
			metadataDeliveryDates: dates,
		},
	}
	return f
}

func TestConfirmSetupBuildsContiguousPhases(t *testing.T) {
	f := confirmFixture(t, "2025-03-01,2025-06-01,2025-09-01")

	if err := f.svc.ConfirmSetup(context.Background(), f.customer.ID, "seti_done"); err != nil {
		t.Fatalf("confirm setup: %v", err)
	}

	phases := f.gateway.createdPhases
	if len(phases) != 3 {
		t.Fatalf("expected 3 phases, got %d", len(phases))
	}
	if !phases[0].EndDate.Equal(phases[1].StartDate) || !phases[1].EndDate.Equal(phases[2].StartDate) {
		t.Fatal("phases are not contiguous")
	}
	wantFinal := day("2025-09-01").Add(finalPhaseExtension)
	if !phases[2].EndDate.Equal(wantFinal) {
		t.Fatalf("expected final phase to end %s, got %s", wantFinal, phases[2].EndDate)
	}
	if f.adjuster.decrements[f.product.ID] != 1 {
		t.Fatalf("expected one stock decrement, got %d", f.adjuster.decrements[f.product.ID])
	}
	if f.customer.SubscriptionScheduleID == nil || *f.customer.SubscriptionScheduleID != "sub_sched_new" {
		t.Fatal("schedule id was not stored on the customer")
	}
	if len(f.gateway.defaultMethods) != 1 || f.gateway.defaultMethods[0] != "pm_card" {
		t.Fatalf("expected the collected payment method to become default, got %v", f.gateway.defaultMethods)
	}
}

func TestConfirmSetupDropsPastDates(t *testing.T) {
	f := confirmFixture(t, "2024-12-01,2025-03-01")

	if err := f.svc.ConfirmSetup(context.Background(), f.customer.ID, "seti_done"); err != nil {
		t.Fatalf("confirm setup: %v", err)
	}
	if len(f.gateway.createdPhases) != 1 {
		t.Fatalf("expected the past date to be dropped, got %d phases", len(f.gateway.createdPhases))
	}
	if !f.gateway.createdPhases[0].StartDate.Equal(day("2025-03-01")) {
		t.Fatalf("unexpected first phase start %s", f.gateway.createdPhases[0].StartDate)
	}
}

func TestConfirmSetupIdempotent(t *testing.T) {
	f := confirmFixture(t, "2025-03-01")

	if err := f.svc.ConfirmSetup(context.Background(), f.customer.ID, "seti_done"); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if err := f.svc.ConfirmSetup(context.Background(), f.customer.ID, "seti_done"); err != nil {
		t.Fatalf("second confirm should be a no-op, got %v", err)
	}
	if f.adjuster.decrements[f.product.ID] != 1 {
		t.Fatalf("expected exactly one decrement, got %d", f.adjuster.decrements[f.product.ID])
	}
}

func TestConfirmSetupGuardBlocksConcurrentReplay(t *testing.T) {
	f := confirmFixture(t, "2025-03-01")
	f.guard.taken = map[string]bool{
		f.guard.IdempotencyKey(setupGuardScope, "seti_done"): true,
	}

	err := f.svc.ConfirmSetup(context.Background(), f.customer.ID, "seti_done")
	if err == nil {
		t.Fatal("expected replay to be rejected")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict code, got %v", err)
	}
	if f.adjuster.decrements[f.product.ID] != 0 {
		t.Fatal("replay must not touch stock")
	}
}

func TestConfirmSetupRetriesAfterGatewayFailure(t *testing.T) {
	f := confirmFixture(t, "2025-03-01,2025-06-01")
	f.gateway.createErr = errors.New("stripe: temporarily unavailable")

	err := f.svc.ConfirmSetup(context.Background(), f.customer.ID, "seti_done")
	if err == nil {
		t.Fatal("expected the gateway failure to surface")
	}
	if len(f.guard.taken) != 0 {
		t.Fatal("guard must be released when no schedule was created")
	}

	f.gateway.createErr = nil
	if err := f.svc.ConfirmSetup(context.Background(), f.customer.ID, "seti_done"); err != nil {
		t.Fatalf("retry after transient failure: %v", err)
	}
	if len(f.gateway.createdPhases) != 2 {
		t.Fatalf("expected the retry to create 2 phases, got %d", len(f.gateway.createdPhases))
	}
}

func TestConfirmSetupRejectsPendingIntent(t *testing.T) {
	f := confirmFixture(t, "2025-03-01")
	f.gateway.setupIntent.Succeeded = false

	err := f.svc.ConfirmSetup(context.Background(), f.customer.ID, "seti_done")
	if err == nil {
		t.Fatal("expected a pending intent to be rejected")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func skipFixture(t *testing.T) *subFixture {
	t.Helper()

	f := newSubFixture(t, nil)
	scheduleID := "sub_sched_live"
	f.customer.SubscriptionScheduleID = &scheduleID
	f.gateway.schedule = &Schedule{
		ID:     scheduleID,
		Status: "active",
		Phases: buildPhases("price_stub", []time.Time{
			day("2025-01-01"), day("2025-03-01"), day("2025-06-01"),
		}),
	}
	return f
}

func TestSkipRemovesTargetAndPreservesCurrentPhase(t *testing.T) {
	f := skipFixture(t)

	if err := f.svc.Skip(context.Background(), f.customer.ID, "2025-03-01"); err != nil {
		t.Fatalf("skip: %v", err)
	}

	phases := f.gateway.updatedPhases
	if len(phases) != 2 {
		t.Fatalf("expected current + one future phase, got %d", len(phases))
	}
	if !phases[0].StartDate.Equal(day("2025-01-01")) {
		t.Fatal("in-progress phase must be preserved")
	}
	if !phases[0].EndDate.Equal(day("2025-06-01")) {
		t.Fatalf("current phase must stretch to the next kept start, got end %s", phases[0].EndDate)
	}
	if !phases[1].StartDate.Equal(day("2025-06-01")) {
		t.Fatalf("unexpected future phase start %s", phases[1].StartDate)
	}
	if len(f.customer.SubscriptionSkipped) != 1 || f.customer.SubscriptionSkipped[0] != "2025-03-01" {
		t.Fatalf("skip record not stored, got %v", f.customer.SubscriptionSkipped)
	}
}

func TestSkipQuotaOnePerCalendarYear(t *testing.T) {
	f := skipFixture(t)
	f.customer.SubscriptionSkipped = pq.StringArray{"2025-02-01"}

	err := f.svc.Skip(context.Background(), f.customer.ID, "2025-03-01")
	if err == nil {
		t.Fatal("expected a second skip in the same year to fail")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict code, got %v", err)
	}
	if f.gateway.updateCalls != 0 {
		t.Fatal("quota rejection must not reach the provider")
	}
}

func TestSkipUnknownDate(t *testing.T) {
	f := skipFixture(t)

	err := f.svc.Skip(context.Background(), f.customer.ID, "2025-04-15")
	if err == nil {
		t.Fatal("expected unknown delivery date to fail")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUnskipRestoresDate(t *testing.T) {
	f := skipFixture(t)
	f.customer.SubscriptionSkipped = pq.StringArray{"2025-03-01"}
	f.gateway.schedule.Phases = buildPhases("price_stub", []time.Time{
		day("2025-01-01"), day("2025-06-01"),
	})

	if err := f.svc.Unskip(context.Background(), f.customer.ID, "2025-03-01"); err != nil {
		t.Fatalf("unskip: %v", err)
	}

	phases := f.gateway.updatedPhases
	if len(phases) != 3 {
		t.Fatalf("expected the date back in the schedule, got %d phases", len(phases))
	}
	if !phases[1].StartDate.Equal(day("2025-03-01")) {
		t.Fatalf("restored phase missing, got start %s", phases[1].StartDate)
	}
	if len(f.customer.SubscriptionSkipped) != 0 {
		t.Fatalf("skip record should be cleared, got %v", f.customer.SubscriptionSkipped)
	}
}

func TestUnskipLockedInsideTwentyFourHours(t *testing.T) {
	f := skipFixture(t)
	f.customer.SubscriptionSkipped = pq.StringArray{"2025-01-16"}
	f.svc.now = func() time.Time { return day("2025-01-16").Add(-2 * time.Hour) }

	err := f.svc.Unskip(context.Background(), f.customer.ID, "2025-01-16")
	if err == nil {
		t.Fatal("expected the lockout window to reject the unskip")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict code, got %v", err)
	}
}

func TestUnskipRequiresSkipRecord(t *testing.T) {
	f := skipFixture(t)

	err := f.svc.Unskip(context.Background(), f.customer.ID, "2025-03-01")
	if err == nil {
		t.Fatal("expected unskip without a record to fail")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancelClearsLinkage(t *testing.T) {
	f := skipFixture(t)

	if err := f.svc.Cancel(context.Background(), f.customer.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(f.gateway.canceled) != 1 || f.gateway.canceled[0] != "sub_sched_live" {
		t.Fatalf("expected the provider schedule to be canceled, got %v", f.gateway.canceled)
	}
	if f.customer.SubscriptionScheduleID != nil {
		t.Fatal("schedule linkage should be cleared")
	}
}

func TestResyncAllIsolatesFailures(t *testing.T) {
	f := skipFixture(t)

	okID := "sub_sched_ok"
	badID := "sub_sched_bad"
	f.customers.subscribed = []models.Customer{
		{ID: uuid.New(), SubscriptionScheduleID: &okID},
		{ID: uuid.New(), SubscriptionScheduleID: &badID},
	}
	f.gateway.updateErrFor = map[string]error{
		badID: fmt.Errorf("provider unavailable"),
	}

	results, err := f.svc.ResyncAll(context.Background(), []string{"2025-03-01", "2025-06-01"})
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected a result per customer, got %d", len(results))
	}
	if !results[0].Success {
		t.Fatalf("first customer should resync, got error %q", results[0].Error)
	}
	if results[1].Success || results[1].Error == "" {
		t.Fatal("second customer's failure must be recorded, not dropped")
	}
}

func TestResyncAllExcludesSkippedDates(t *testing.T) {
	f := skipFixture(t)

	scheduleID := "sub_sched_live"
	f.customers.subscribed = []models.Customer{
		{
			ID:                     f.customer.ID,
			SubscriptionScheduleID: &scheduleID,
			SubscriptionSkipped:    pq.StringArray{"2025-03-01"},
		},
	}

	if _, err := f.svc.ResyncAll(context.Background(), []string{"2025-03-01", "2025-06-01"}); err != nil {
		t.Fatalf("resync: %v", err)
	}

	for _, phase := range f.gateway.updatedPhases {
		if sameDay(phase.StartDate, day("2025-03-01")) && !phase.StartDate.Equal(day("2025-01-01")) {
			t.Fatal("skipped date must stay out of the rebuilt schedule")
		}
	}
	if len(f.gateway.updatedPhases) != 2 {
		t.Fatalf("expected current phase + one future phase, got %d", len(f.gateway.updatedPhases))
	}
}
