package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/maisonverdier/boutique-backend/internal/catalog"
	"github.com/maisonverdier/boutique-backend/internal/customers"
	"github.com/maisonverdier/boutique-backend/internal/inventory"
	"github.com/maisonverdier/boutique-backend/pkg/db"
	"github.com/maisonverdier/boutique-backend/pkg/db/models"
	pkgerrors "github.com/maisonverdier/boutique-backend/pkg/errors"
	"github.com/maisonverdier/boutique-backend/pkg/logger"
)

const (
	metadataProductID     = "product_id"
	metadataPriceID       = "price_id"
	metadataDeliveryDates = "delivery_dates"

	setupGuardScope = "subscription-setup"
	setupGuardTTL   = 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type calendarReader interface {
	DeliveryCalendar(ctx context.Context) ([]string, error)
}

type idempotencyGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// SubscribeResult returns only the secret needed to collect the payment
// method; no schedule exists yet at this point.
type SubscribeResult struct {
	ClientSecret string `json:"client_secret"`
}

// ResyncResult is one customer's outcome of a calendar resynchronization.
type ResyncResult struct {
	CustomerID uuid.UUID `json:"customer_id"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// Service owns the customer's recurring delivery schedule.
type Service interface {
	Subscribe(ctx context.Context, customerID, productID uuid.UUID) (*SubscribeResult, error)
	ConfirmSetup(ctx context.Context, customerID uuid.UUID, setupIntentID string) error
	Skip(ctx context.Context, customerID uuid.UUID, date string) error
	Unskip(ctx context.Context, customerID uuid.UUID, date string) error
	Cancel(ctx context.Context, customerID uuid.UUID) error
	ResyncAll(ctx context.Context, calendar []string) ([]ResyncResult, error)
}

type service struct {
	customers customers.Repository
	catalog   catalog.Repository
	gateway   PaymentGateway
	tx        txRunner
	inventory inventory.Adjuster
	calendar  calendarReader
	guard     idempotencyGuard
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the schedule manager with the required dependencies.
func NewService(
	customersRepo customers.Repository,
	catalogRepo catalog.Repository,
	gateway PaymentGateway,
	tx txRunner,
	adjuster inventory.Adjuster,
	calendar calendarReader,
	guard idempotencyGuard,
	logg *logger.Logger,
) (Service, error) {
	if customersRepo == nil {
		return nil, fmt.Errorf("customers repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if adjuster == nil {
		return nil, fmt.Errorf("inventory adjuster required")
	}
	if calendar == nil {
		return nil, fmt.Errorf("calendar reader required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	return &service{
		customers: customersRepo,
		catalog:   catalogRepo,
		gateway:   gateway,
		tx:        tx,
		inventory: adjuster,
		calendar:  calendar,
		guard:     guard,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// Subscribe opens the payment-method collection flow. Schedule construction
// is deferred to ConfirmSetup; the delivery calendar travels in the intent's
// metadata so the confirmed setup builds against the calendar the customer
// saw.
func (s *service) Subscribe(ctx context.Context, customerID, productID uuid.UUID) (*SubscribeResult, error) {
	customer, err := s.loadCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer.SubscriptionScheduleID != nil && *customer.SubscriptionScheduleID != "" {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "vous avez déjà un abonnement actif")
	}

	product, err := s.catalog.FindProduct(ctx, productID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "produit introuvable")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "ce produit n'est plus disponible")
	}
	if product.Inventory == nil || product.Inventory.Stock < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("stock insuffisant pour « %s »", product.Title))
	}

	dates, err := s.calendar.DeliveryCalendar(ctx)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "le calendrier de livraison n'est pas configuré")
	}

	amountCents := product.PriceCents
	if product.SubscriptionPriceCents != nil {
		amountCents = *product.SubscriptionPriceCents
	}

	providerCustomerID, err := s.gateway.EnsureCustomer(ctx, customer.Email,
		strings.TrimSpace(customer.FirstName+" "+customer.LastName), customer.StripeCustomerID)
	if err != nil {
		return nil, err
	}
	if customer.StripeCustomerID == nil || *customer.StripeCustomerID != providerCustomerID {
		if err := s.customers.Update(ctx, customer.ID, map[string]any{"stripe_customer_id": providerCustomerID}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store provider customer id")
		}
	}

	priceID, err := s.gateway.CreateRecurringPrice(ctx, product.Title, amountCents)
	if err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreateSetupIntent(ctx, providerCustomerID, map[string]string{
		metadataProductID:     product.ID.String(),
		metadataPriceID:       priceID,
		metadataDeliveryDates: strings.Join(dates, ","),
	})
	if err != nil {
		return nil, err
	}

	return &SubscribeResult{ClientSecret: intent.ClientSecret}, nil
}

// ConfirmSetup verifies the collected payment method and builds the phased
// schedule from the calendar carried in the intent. A redis guard keyed on
// the intent id keeps a re-invocation from creating a second schedule.
func (s *service) ConfirmSetup(ctx context.Context, customerID uuid.UUID, setupIntentID string) error {
	if strings.TrimSpace(setupIntentID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "setup intent id required")
	}

	customer, err := s.loadCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if customer.SubscriptionScheduleID != nil && *customer.SubscriptionScheduleID != "" {
		// Already confirmed earlier: idempotent no-op.
		return nil
	}
	if customer.StripeCustomerID == nil || *customer.StripeCustomerID == "" {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "aucune souscription en attente")
	}

	intent, err := s.gateway.GetSetupIntent(ctx, setupIntentID)
	if err != nil {
		return err
	}
	if !intent.Succeeded {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "le moyen de paiement n'a pas été validé")
	}

	productID, priceID, dates, err := parseIntentMetadata(intent.Metadata)
	if err != nil {
		return err
	}

	key := s.guard.IdempotencyKey(setupGuardScope, intent.ID)
	acquired, err := s.guard.SetNX(ctx, key, customerID.String(), setupGuardTTL)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire setup guard")
	}
	if !acquired {
		return pkgerrors.New(pkgerrors.CodeConflict, "cette confirmation a déjà été traitée")
	}

	// Until the schedule exists at the provider a failure is retryable, so
	// the guard is released on every early exit. Once CreateSchedule
	// succeeds the guard stays held: a retry would create a second schedule.
	if intent.PaymentMethod != "" {
		if err := s.gateway.SetDefaultPaymentMethod(ctx, *customer.StripeCustomerID, intent.PaymentMethod); err != nil {
			s.releaseGuard(ctx, key)
			return err
		}
	}

	now := s.now()
	starts := futureDates(dates, now)
	if len(starts) == 0 {
		s.releaseGuard(ctx, key)
		return pkgerrors.New(pkgerrors.CodeStateConflict, "aucune date de livraison à venir dans le calendrier")
	}

	schedule, err := s.gateway.CreateSchedule(ctx, *customer.StripeCustomerID, buildPhases(priceID, starts))
	if err != nil {
		s.releaseGuard(ctx, key)
		return err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.customers.WithTx(tx)
		if err := repo.Update(ctx, customer.ID, map[string]any{
			"subscription_schedule_id": schedule.ID,
			"subscription_product_id":  productID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store schedule linkage")
		}
		return s.inventory.Decrement(ctx, tx, productID, 1)
	})
	if err != nil {
		// The provider schedule already exists and cannot be rolled back here.
		if s.logg != nil {
			s.logg.Error(s.logg.WithCustomerID(ctx, customer.ID.String()),
				"schedule created at provider but local linkage failed", err)
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "schedule created but linkage update failed")
	}
	return nil
}

func (s *service) releaseGuard(ctx context.Context, key string) {
	if err := s.guard.Del(ctx, key); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "setup guard release failed: "+err.Error())
	}
}

// Skip removes one future delivery, bounded by a one-per-calendar-year
// quota. The phase in progress is always preserved.
func (s *service) Skip(ctx context.Context, customerID uuid.UUID, date string) error {
	customer, scheduleID, err := s.loadSubscribed(ctx, customerID)
	if err != nil {
		return err
	}

	target, err := parseDate(date)
	if err != nil {
		return err
	}

	now := s.now()
	if !target.After(now) {
		return pkgerrors.New(pkgerrors.CodeValidation, "seule une livraison à venir peut être sautée")
	}

	yearPrefix := fmt.Sprintf("%04d-", target.Year())
	for _, skipped := range customer.SubscriptionSkipped {
		if strings.HasPrefix(skipped, yearPrefix) {
			return pkgerrors.New(pkgerrors.CodeConflict, "vous avez déjà sauté une livraison cette année")
		}
	}

	schedule, err := s.gateway.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}

	current := currentPhase(schedule, now)
	starts := make([]time.Time, 0, len(schedule.Phases))
	found := false
	priceID := schedulePriceID(schedule)
	for _, phase := range schedule.Phases {
		if !phase.StartDate.After(now) {
			continue
		}
		if sameDay(phase.StartDate, target) {
			found = true
			continue
		}
		starts = append(starts, phase.StartDate)
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "aucune livraison prévue à cette date")
	}

	if err := s.gateway.UpdateSchedulePhases(ctx, scheduleID, rebuildPhases(current, priceID, starts)); err != nil {
		return err
	}

	skipped := append(pq.StringArray{}, customer.SubscriptionSkipped...)
	skipped = append(skipped, target.Format(dateLayout))
	if err := s.customers.Update(ctx, customer.ID, map[string]any{"subscription_skipped": skipped}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record skipped date")
	}
	return nil
}

// Unskip restores a previously skipped delivery. Rejected inside the final
// 24 hours before the phase start, once the billing cycle for that date is
// effectively locked in.
func (s *service) Unskip(ctx context.Context, customerID uuid.UUID, date string) error {
	customer, scheduleID, err := s.loadSubscribed(ctx, customerID)
	if err != nil {
		return err
	}

	target, err := parseDate(date)
	if err != nil {
		return err
	}

	formatted := target.Format(dateLayout)
	index := -1
	for i, skipped := range customer.SubscriptionSkipped {
		if skipped == formatted {
			index = i
			break
		}
	}
	if index == -1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cette date n'a pas été sautée")
	}

	now := s.now()
	if target.Sub(now) <= 24*time.Hour {
		return pkgerrors.New(pkgerrors.CodeConflict, "cette livraison ne peut plus être rétablie (moins de 24 heures)")
	}

	schedule, err := s.gateway.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}

	current := currentPhase(schedule, now)
	priceID := schedulePriceID(schedule)
	starts := []time.Time{target}
	for _, phase := range schedule.Phases {
		if !phase.StartDate.After(now) || sameDay(phase.StartDate, target) {
			continue
		}
		starts = append(starts, phase.StartDate)
	}

	if err := s.gateway.UpdateSchedulePhases(ctx, scheduleID, rebuildPhases(current, priceID, starts)); err != nil {
		return err
	}

	skipped := append(pq.StringArray{}, customer.SubscriptionSkipped[:index]...)
	skipped = append(skipped, customer.SubscriptionSkipped[index+1:]...)
	if err := s.customers.Update(ctx, customer.ID, map[string]any{"subscription_skipped": skipped}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear skipped date")
	}
	return nil
}

// Cancel terminates the provider schedule. The product linkage is kept for
// historical display; only the schedule id is cleared.
func (s *service) Cancel(ctx context.Context, customerID uuid.UUID) error {
	customer, scheduleID, err := s.loadSubscribed(ctx, customerID)
	if err != nil {
		return err
	}

	if err := s.gateway.CancelSchedule(ctx, scheduleID); err != nil {
		return err
	}

	if err := s.customers.Update(ctx, customer.ID, map[string]any{"subscription_schedule_id": nil}); err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithCustomerID(ctx, customer.ID.String()),
				"schedule canceled at provider but local unlink failed", err)
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "schedule canceled but unlink failed")
	}
	return nil
}

// ResyncAll rebuilds every active schedule against a new delivery calendar.
// Failures are isolated per customer; the walk never aborts early.
func (s *service) ResyncAll(ctx context.Context, calendar []string) ([]ResyncResult, error) {
	dates, err := parseDates(calendar)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery calendar requires at least one date")
	}

	subscribed, err := s.customers.ListWithActiveSchedules(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscribed customers")
	}

	now := s.now()
	results := make([]ResyncResult, 0, len(subscribed))
	for _, customer := range subscribed {
		result := ResyncResult{CustomerID: customer.ID}
		if err := s.resyncOne(ctx, &customer, dates, now); err != nil {
			result.Error = err.Error()
		} else {
			result.Success = true
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *service) resyncOne(ctx context.Context, customer *models.Customer, dates []time.Time, now time.Time) error {
	if customer.SubscriptionScheduleID == nil || *customer.SubscriptionScheduleID == "" {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no active schedule")
	}

	schedule, err := s.gateway.GetSchedule(ctx, *customer.SubscriptionScheduleID)
	if err != nil {
		return err
	}

	skipped := make(map[string]struct{}, len(customer.SubscriptionSkipped))
	for _, date := range customer.SubscriptionSkipped {
		skipped[date] = struct{}{}
	}

	starts := make([]time.Time, 0, len(dates))
	for _, date := range futureDates(dates, now) {
		if _, ok := skipped[date.Format(dateLayout)]; ok {
			continue
		}
		starts = append(starts, date)
	}

	current := currentPhase(schedule, now)
	return s.gateway.UpdateSchedulePhases(ctx, *customer.SubscriptionScheduleID,
		rebuildPhases(current, schedulePriceID(schedule), starts))
}

func (s *service) loadCustomer(ctx context.Context, customerID uuid.UUID) (*models.Customer, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "client introuvable")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	return customer, nil
}

func (s *service) loadSubscribed(ctx context.Context, customerID uuid.UUID) (*models.Customer, string, error) {
	customer, err := s.loadCustomer(ctx, customerID)
	if err != nil {
		return nil, "", err
	}
	if customer.SubscriptionScheduleID == nil || *customer.SubscriptionScheduleID == "" {
		return nil, "", pkgerrors.New(pkgerrors.CodeNotFound, "aucun abonnement actif")
	}
	return customer, *customer.SubscriptionScheduleID, nil
}

func schedulePriceID(schedule *Schedule) string {
	for _, phase := range schedule.Phases {
		if phase.PriceID != "" {
			return phase.PriceID
		}
	}
	return ""
}

func parseIntentMetadata(metadata map[string]string) (uuid.UUID, string, []time.Time, error) {
	productID, err := uuid.Parse(metadata[metadataProductID])
	if err != nil {
		return uuid.Nil, "", nil, pkgerrors.New(pkgerrors.CodeStateConflict, "setup intent carries no product reference")
	}
	priceID := metadata[metadataPriceID]
	if priceID == "" {
		return uuid.Nil, "", nil, pkgerrors.New(pkgerrors.CodeStateConflict, "setup intent carries no price reference")
	}
	raw := strings.Split(metadata[metadataDeliveryDates], ",")
	dates, err := parseDates(raw)
	if err != nil || len(dates) == 0 {
		return uuid.Nil, "", nil, pkgerrors.New(pkgerrors.CodeStateConflict, "setup intent carries no delivery calendar")
	}
	return productID, priceID, dates, nil
}
