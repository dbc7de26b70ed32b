package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/maisonverdier/boutique-backend/pkg/errors"
)

// Adjuster moves stock levels. Both the order engine (on payment
// confirmation) and the subscription manager (on setup confirmation) share
// this narrow surface instead of reaching into each other.
type Adjuster interface {
	Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Increment(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type adjusterImpl struct{}

// NewAdjuster exposes the default guarded-SQL implementation.
func NewAdjuster() Adjuster {
	return adjusterImpl{}
}

// Decrement removes qty units, refusing to go below zero. The guard makes
// the decrement atomic with whatever status flip shares the transaction.
func (adjusterImpl) Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock decrement")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET stock = stock - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND stock >= ?
	`, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "stock insuffisant")
	}
	return nil
}

// Increment returns qty units to stock.
func (adjusterImpl) Increment(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock increment")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET stock = stock + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ?
	`, qty, productID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "increment stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory row not found")
	}
	return nil
}
