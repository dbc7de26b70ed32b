package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/maisonverdier/boutique-backend/pkg/db"
	pkgerrors "github.com/maisonverdier/boutique-backend/pkg/errors"
)

const (
	// KeyDeliveryCalendar holds the sorted list of ISO delivery dates used
	// to build subscription phases.
	KeyDeliveryCalendar = "delivery_calendar"
	// KeyShippingRates holds the admin-configured rate table.
	KeyShippingRates = "shipping_rates"

	dateLayout = "2006-01-02"
)

// Service exposes the typed settings the rest of the system reads.
type Service interface {
	DeliveryCalendar(ctx context.Context) ([]string, error)
	SetDeliveryCalendar(ctx context.Context, dates []string) error
	ShippingRates(ctx context.Context) (json.RawMessage, error)
	SetShippingRates(ctx context.Context, value json.RawMessage) error
}

type service struct {
	repo Repository
}

// NewService builds a settings service with the required dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	return &service{repo: repo}, nil
}

// DeliveryCalendar returns the stored dates; an unset calendar is empty,
// not an error.
func (s *service) DeliveryCalendar(ctx context.Context) ([]string, error) {
	raw, err := s.repo.Get(ctx, KeyDeliveryCalendar)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery calendar")
	}

	var dates []string
	if err := json.Unmarshal(raw, &dates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode delivery calendar")
	}
	return dates, nil
}

// SetDeliveryCalendar validates and stores the calendar. Changing it does
// not touch existing schedules; the admin resyncs those explicitly.
func (s *service) SetDeliveryCalendar(ctx context.Context, dates []string) error {
	if err := ValidateCalendar(dates); err != nil {
		return err
	}

	raw, err := json.Marshal(dates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode delivery calendar")
	}
	if err := s.repo.Set(ctx, KeyDeliveryCalendar, raw); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store delivery calendar")
	}
	return nil
}

func (s *service) ShippingRates(ctx context.Context) (json.RawMessage, error) {
	raw, err := s.repo.Get(ctx, KeyShippingRates)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping rates")
	}
	return raw, nil
}

func (s *service) SetShippingRates(ctx context.Context, value json.RawMessage) error {
	if !json.Valid(value) {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping rates must be valid JSON")
	}
	if err := s.repo.Set(ctx, KeyShippingRates, value); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store shipping rates")
	}
	return nil
}

// ValidateCalendar checks that every date parses, that there are no
// duplicates, and that the list is sorted ascending.
func ValidateCalendar(dates []string) error {
	if len(dates) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery calendar requires at least one date")
	}

	seen := make(map[string]struct{}, len(dates))
	var prev time.Time
	for i, date := range dates {
		parsed, err := time.Parse(dateLayout, date)
		if err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid calendar date %q (expected YYYY-MM-DD)", date))
		}
		if _, ok := seen[date]; ok {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("duplicate calendar date %q", date))
		}
		seen[date] = struct{}{}

		if i > 0 && !parsed.After(prev) {
			return pkgerrors.New(pkgerrors.CodeValidation, "calendar dates must be sorted ascending")
		}
		prev = parsed
	}
	return nil
}
