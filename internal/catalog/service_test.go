package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maisonverdier/boutique-backend/pkg/db/models"
	"github.com/maisonverdier/boutique-backend/pkg/enums"
	pkgerrors "github.com/maisonverdier/boutique-backend/pkg/errors"
)

type stubCatalogRepo struct {
	discount *models.Discount
	findErr  error
}

func (s *stubCatalogRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubCatalogRepo) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	panic("not implemented")
}

func (s *stubCatalogRepo) FindProductsByIDs(ctx context.Context, productIDs []uuid.UUID) ([]models.Product, error) {
	panic("not implemented")
}

func (s *stubCatalogRepo) FindPreorderProductIDs(ctx context.Context) ([]uuid.UUID, error) {
	panic("not implemented")
}

func (s *stubCatalogRepo) FindDiscountByCode(ctx context.Context, code string) (*models.Discount, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.discount, nil
}

func (s *stubCatalogRepo) IncrementDiscountUsage(ctx context.Context, discountID uuid.UUID) error {
	return nil
}

func intPtr(v int) *int            { return &v }
func timePtr(t time.Time) *time.Time { return &t }

func TestValidateDiscountRejectsDisabledExpiredExhausted(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		discount models.Discount
	}{
		{
			name:     "disabled",
			discount: models.Discount{Code: "SPRING", Type: enums.DiscountTypeFixed, Value: 500, Disabled: true},
		},
		{
			name:     "expired",
			discount: models.Discount{Code: "SPRING", Type: enums.DiscountTypeFixed, Value: 500, ExpiresAt: timePtr(now.Add(-time.Hour))},
		},
		{
			name:     "usage exhausted",
			discount: models.Discount{Code: "SPRING", Type: enums.DiscountTypeFixed, Value: 500, UsageLimit: intPtr(3), UsageCount: 3},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, err := NewService(&stubCatalogRepo{discount: &tc.discount})
			if err != nil {
				t.Fatalf("new service: %v", err)
			}

			_, err = svc.ValidateDiscount(context.Background(), "spring", now)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeConflict {
				t.Fatalf("expected conflict, got %v", err)
			}
		})
	}
}

func TestValidateDiscountUnknownCode(t *testing.T) {
	svc, err := NewService(&stubCatalogRepo{findErr: gorm.ErrRecordNotFound})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.ValidateDiscount(context.Background(), "NOPE", time.Now())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestValidateDiscountAcceptsUsableCode(t *testing.T) {
	now := time.Now()
	discount := &models.Discount{
		Code:       "WELCOME10",
		Type:       enums.DiscountTypePercentage,
		Value:      10,
		UsageLimit: intPtr(100),
		UsageCount: 99,
		ExpiresAt:  timePtr(now.Add(24 * time.Hour)),
	}

	svc, err := NewService(&stubCatalogRepo{discount: discount})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	got, err := svc.ValidateDiscount(context.Background(), "welcome10", now)
	if err != nil {
		t.Fatalf("expected valid discount, got %v", err)
	}
	if got.Code != "WELCOME10" {
		t.Fatalf("unexpected discount returned: %+v", got)
	}
}

func TestApplyDiscountPercentageRounds(t *testing.T) {
	discount := &models.Discount{Type: enums.DiscountTypePercentage, Value: 33}

	// 33% of 9.99 is 3.2967, invoices round to 3.30.
	if got := ApplyDiscount(discount, 999); got != 330 {
		t.Fatalf("expected 330 cents off, got %d", got)
	}
}

func TestApplyDiscountFixedCapsAtSubtotal(t *testing.T) {
	discount := &models.Discount{Type: enums.DiscountTypeFixed, Value: 5000}

	if got := ApplyDiscount(discount, 1200); got != 1200 {
		t.Fatalf("fixed discount should cap at subtotal, got %d", got)
	}
}
