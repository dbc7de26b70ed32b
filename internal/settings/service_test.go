package settings

import (
	"context"
	"encoding/json"
	"testing"

	"gorm.io/gorm"

	pkgerrors "github.com/maisonverdier/boutique-backend/pkg/errors"
)

type stubSettingsRepo struct {
	values map[string]json.RawMessage
}

func (s *stubSettingsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubSettingsRepo) Get(ctx context.Context, key string) (json.RawMessage, error) {
	if raw, ok := s.values[key]; ok {
		return raw, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubSettingsRepo) Set(ctx context.Context, key string, value json.RawMessage) error {
	if s.values == nil {
		s.values = make(map[string]json.RawMessage)
	}
	s.values[key] = value
	return nil
}

func TestSetDeliveryCalendarRoundTrip(t *testing.T) {
	repo := &stubSettingsRepo{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	dates := []string{"2025-01-01", "2025-04-01", "2025-07-01"}
	if err := svc.SetDeliveryCalendar(context.Background(), dates); err != nil {
		t.Fatalf("set calendar: %v", err)
	}

	got, err := svc.DeliveryCalendar(context.Background())
	if err != nil {
		t.Fatalf("get calendar: %v", err)
	}
	if len(got) != 3 || got[0] != "2025-01-01" || got[2] != "2025-07-01" {
		t.Fatalf("unexpected calendar: %v", got)
	}
}

func TestDeliveryCalendarUnsetIsEmpty(t *testing.T) {
	svc, err := NewService(&stubSettingsRepo{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	got, err := svc.DeliveryCalendar(context.Background())
	if err != nil {
		t.Fatalf("get calendar: %v", err)
	}
	if got != nil {
		t.Fatalf("expected empty calendar, got %v", got)
	}
}

func TestValidateCalendarRejections(t *testing.T) {
	cases := []struct {
		name  string
		dates []string
	}{
		{name: "empty", dates: nil},
		{name: "malformed date", dates: []string{"01/02/2025"}},
		{name: "duplicate", dates: []string{"2025-01-01", "2025-01-01"}},
		{name: "unsorted", dates: []string{"2025-04-01", "2025-01-01"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCalendar(tc.dates)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
