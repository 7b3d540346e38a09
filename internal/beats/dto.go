package beats

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	"github.com/angelmondragon/beatstore-backend/pkg/pagination"
)

type VariantDTO struct {
	DownloadType enums.DownloadType `json:"download_type"`
	Price        *string            `json:"price"`
	Available    bool               `json:"available"`
}

type BeatDTO struct {
	ID         uuid.UUID    `json:"id"`
	Name       string       `json:"name"`
	Genre      string       `json:"genre"`
	BPM        int          `json:"bpm"`
	Scale      string       `json:"scale"`
	Price      string       `json:"price"`
	HasPreview bool         `json:"has_preview"`
	HasCover   bool         `json:"has_cover_art"`
	Variants   []VariantDTO `json:"variants"`
	CreatedAt  time.Time    `json:"created_at"`
}

func ToDTO(beat models.Beat) BeatDTO {
	variants := make([]VariantDTO, 0, 3)
	for _, variant := range enums.AllDownloadTypes() {
		dto := VariantDTO{DownloadType: variant, Available: beat.Purchasable(variant)}
		if price, ok := beat.VariantPrice(variant); ok {
			formatted := price.StringFixed(2)
			dto.Price = &formatted
		}
		variants = append(variants, dto)
	}
	return BeatDTO{
		ID:         beat.ID,
		Name:       beat.Name,
		Genre:      beat.Genre,
		BPM:        beat.BPM,
		Scale:      beat.Scale,
		Price:      beat.Price.StringFixed(2),
		HasPreview: hasKey(beat.SnippetKey),
		HasCover:   hasKey(beat.CoverArtKey),
		Variants:   variants,
		CreatedAt:  beat.CreatedAt,
	}
}

func hasKey(key *string) bool {
	return key != nil && *key != ""
}

// ListParams carries catalog listing inputs.
type ListParams struct {
	pagination.Params
	Filters ListFilters
}

// CreateBeatInput is the admin payload for a new catalog entry.
type CreateBeatInput struct {
	Name         string           `json:"name" validate:"required,min=1,max=200"`
	Genre        string           `json:"genre" validate:"required,max=50"`
	BPM          int              `json:"bpm" validate:"required,min=20,max=400"`
	Scale        string           `json:"scale" validate:"required,max=30"`
	Price        decimal.Decimal  `json:"price"`
	CoverArtKey  *string          `json:"cover_art_key" validate:"omitempty,max=255"`
	SnippetKey   *string          `json:"snippet_key" validate:"omitempty,max=255"`
	MP3FileKey   *string          `json:"mp3_file_key" validate:"omitempty,max=255"`
	WAVFileKey   *string          `json:"wav_file_key" validate:"omitempty,max=255"`
	StemsFileKey *string          `json:"stems_file_key" validate:"omitempty,max=255"`
	MP3Price     *decimal.Decimal `json:"mp3_price"`
	WAVPrice     *decimal.Decimal `json:"wav_price"`
	StemsPrice   *decimal.Decimal `json:"stems_price"`
}
