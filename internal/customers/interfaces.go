package customers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/maisonverdier/boutique-backend/pkg/db/models"
)

// Repository defines persistence operations for customer rows, including
// the provider-side subscription linkage columns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, customerID uuid.UUID) (*models.Customer, error)
	FindByEmail(ctx context.Context, email string) (*models.Customer, error)
	ListWithActiveSchedules(ctx context.Context) ([]models.Customer, error)
	Update(ctx context.Context, customerID uuid.UUID, updates map[string]any) error
}
