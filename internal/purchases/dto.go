package purchases

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	"github.com/angelmondragon/beatstore-backend/pkg/pagination"
)

// PurchaseDTO is the buyer-facing view of a purchase.
type PurchaseDTO struct {
	ID              uuid.UUID           `json:"id"`
	BeatID          uuid.UUID           `json:"beat_id"`
	DownloadType    enums.DownloadType  `json:"download_type"`
	PricePaid       string              `json:"price_paid"`
	PaymentMethod   string              `json:"payment_method"`
	PaymentStatus   enums.PaymentStatus `json:"payment_status"`
	PaymentIntentID string              `json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func ToDTO(p models.Purchase) PurchaseDTO {
	return PurchaseDTO{
		ID:              p.ID,
		BeatID:          p.BeatID,
		DownloadType:    p.DownloadType,
		PricePaid:       p.PricePaid.StringFixed(2),
		PaymentMethod:   p.PaymentMethod,
		PaymentStatus:   p.PaymentStatus,
		PaymentIntentID: p.IntentRef(),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// LibraryParams holds the caller's listing inputs.
type LibraryParams struct {
	pagination.Params
	Filters LibraryFilters
}
