package purchases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	"github.com/angelmondragon/beatstore-backend/pkg/pagination"
)

// Repository persists purchase rows. Finders return (nil, nil) when no row matches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	FindByTriple(ctx context.Context, userID, beatID uuid.UUID, variant enums.DownloadType) (*models.Purchase, error)
	FindByIntentRef(ctx context.Context, intentRef string) (*models.Purchase, error)
	InsertIfAbsent(ctx context.Context, purchase *models.Purchase) (bool, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from []enums.PaymentStatus, updates StatusUpdate) (bool, error)
	DeleteIfStatus(ctx context.Context, id uuid.UUID, from []enums.PaymentStatus) (bool, error)
	HasCompleted(ctx context.Context, userID, beatID uuid.UUID, variant enums.DownloadType) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filters LibraryFilters, cursor *pagination.Cursor, limit int) ([]models.Purchase, error)
	ListOpenBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Purchase, error)
}

// StatusUpdate is the column set written by a compare-and-set transition.
type StatusUpdate struct {
	Status    enums.PaymentStatus
	PricePaid *decimal.Decimal
	IntentRef *string
}

// LibraryFilters narrows a buyer's purchase listing.
type LibraryFilters struct {
	Status *enums.PaymentStatus
	BeatID *uuid.UUID
}
