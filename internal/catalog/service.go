package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maisonverdier/boutique-backend/pkg/db"
	"github.com/maisonverdier/boutique-backend/pkg/db/models"
	"github.com/maisonverdier/boutique-backend/pkg/enums"
	pkgerrors "github.com/maisonverdier/boutique-backend/pkg/errors"
)

// Service exposes discount validation on top of catalog reads.
type Service interface {
	ValidateDiscount(ctx context.Context, code string, now time.Time) (*models.Discount, error)
}

type service struct {
	repo Repository
}

// NewService builds a catalog service with the required dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

// ValidateDiscount re-checks a code server-side. A disabled, expired or
// usage-exhausted discount is never valid regardless of code match.
func (s *service) ValidateDiscount(ctx context.Context, code string, now time.Time) (*models.Discount, error) {
	discount, err := s.repo.FindDiscountByCode(ctx, code)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "code promo inconnu")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load discount")
	}

	if discount.Disabled {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "ce code promo n'est plus actif")
	}
	if discount.ExpiresAt != nil && !discount.ExpiresAt.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "ce code promo a expiré")
	}
	if discount.UsageLimit != nil && discount.UsageCount >= *discount.UsageLimit {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "ce code promo a atteint sa limite d'utilisation")
	}
	return discount, nil
}

// ApplyDiscount computes the amount in cents taken off the given subtotal.
// Percentage math goes through decimals so 33% of 9.99 rounds the way an
// invoice would, not the way float64 does.
func ApplyDiscount(discount *models.Discount, subtotalCents int) int {
	if discount == nil || subtotalCents <= 0 {
		return 0
	}

	var amount int
	switch discount.Type {
	case enums.DiscountTypePercentage:
		cut := decimal.NewFromInt(int64(subtotalCents)).
			Mul(decimal.NewFromInt(int64(discount.Value))).
			Div(decimal.NewFromInt(100)).
			Round(0)
		amount = int(cut.IntPart())
	case enums.DiscountTypeFixed:
		amount = discount.Value
	}

	if amount > subtotalCents {
		amount = subtotalCents
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}
