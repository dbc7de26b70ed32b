package shipping

import (
	"context"

	"github.com/google/uuid"

	"github.com/maisonverdier/boutique-backend/internal/orders"
	"github.com/maisonverdier/boutique-backend/pkg/db/models"
	"github.com/maisonverdier/boutique-backend/pkg/sendcloud"
)

// Carrier is the narrow parcel-carrier surface the coordinator uses.
// *sendcloud.Client satisfies it.
type Carrier interface {
	SearchServicePoints(ctx context.Context, country, postalCode string) ([]sendcloud.ServicePoint, error)
	GetServicePoint(ctx context.Context, code string) (*sendcloud.ServicePoint, error)
	CreateParcel(ctx context.Context, req sendcloud.ParcelRequest) (*sendcloud.Parcel, error)
	CancelParcel(ctx context.Context, parcelID string) error
	Track(ctx context.Context, parcelID string) (*sendcloud.Tracking, error)
}

// orderEngine is the slice of the lifecycle engine the coordinator drives.
// Fulfillment state only ever changes through these calls.
type orderEngine interface {
	MarkShipped(ctx context.Context, orderID uuid.UUID, update orders.ShipmentUpdate) (*models.Order, error)
	ResetFulfillment(ctx context.Context, orderID uuid.UUID) error
	RecordShippingFailure(ctx context.Context, orderID uuid.UUID, cause string) error
}

type preorderCatalog interface {
	FindPreorderProductIDs(ctx context.Context) ([]uuid.UUID, error)
}
