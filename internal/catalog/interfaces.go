package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maisonverdier/boutique-backend/pkg/db/models"
)

// Repository defines catalog persistence reads plus the discount usage
// counter write.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	FindProductsByIDs(ctx context.Context, productIDs []uuid.UUID) ([]models.Product, error)
	FindPreorderProductIDs(ctx context.Context) ([]uuid.UUID, error)
	FindDiscountByCode(ctx context.Context, code string) (*models.Discount, error)
	IncrementDiscountUsage(ctx context.Context, discountID uuid.UUID) error
}
