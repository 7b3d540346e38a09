package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beatstore-backend/pkg/enums"
)

// Beat is a catalog entry sold in up to three variants.
type Beat struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Name        string          `gorm:"column:name;type:text;not null"`
	Genre       string          `gorm:"column:genre;type:text;not null"`
	BPM         int             `gorm:"column:bpm;not null"`
	Scale       string          `gorm:"column:scale;type:text;not null"`
	CoverArtKey *string         `gorm:"column:cover_art_key"`
	SnippetKey  *string         `gorm:"column:snippet_key"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(6,2);not null"`

	MP3FileKey   *string          `gorm:"column:mp3_file_key"`
	WAVFileKey   *string          `gorm:"column:wav_file_key"`
	StemsFileKey *string          `gorm:"column:stems_file_key"`
	MP3Price     *decimal.Decimal `gorm:"column:mp3_price;type:numeric(6,2)"`
	WAVPrice     *decimal.Decimal `gorm:"column:wav_price;type:numeric(6,2)"`
	StemsPrice   *decimal.Decimal `gorm:"column:stems_price;type:numeric(6,2)"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Beat) TableName() string { return "beats" }

// VariantFileKey returns the storage key of the variant asset, if any.
func (b *Beat) VariantFileKey(variant enums.DownloadType) (string, bool) {
	var key *string
	switch variant {
	case enums.DownloadTypeMP3:
		key = b.MP3FileKey
	case enums.DownloadTypeWAV:
		key = b.WAVFileKey
	case enums.DownloadTypeStems:
		key = b.StemsFileKey
	}
	if key == nil || strings.TrimSpace(*key) == "" {
		return "", false
	}
	return *key, true
}

// VariantPrice returns the configured price of the variant, if any.
func (b *Beat) VariantPrice(variant enums.DownloadType) (decimal.Decimal, bool) {
	var price *decimal.Decimal
	switch variant {
	case enums.DownloadTypeMP3:
		price = b.MP3Price
	case enums.DownloadTypeWAV:
		price = b.WAVPrice
	case enums.DownloadTypeStems:
		price = b.StemsPrice
	}
	if price == nil {
		return decimal.Zero, false
	}
	return *price, true
}

// Purchasable reports whether the variant has both a price and an asset.
func (b *Beat) Purchasable(variant enums.DownloadType) bool {
	_, hasKey := b.VariantFileKey(variant)
	_, hasPrice := b.VariantPrice(variant)
	return hasKey && hasPrice
}

// AssetKeys lists every storage key referenced by the beat.
func (b *Beat) AssetKeys() []string {
	keys := []string{}
	for _, key := range []*string{b.CoverArtKey, b.SnippetKey, b.MP3FileKey, b.WAVFileKey, b.StemsFileKey} {
		if key != nil && strings.TrimSpace(*key) != "" {
			keys = append(keys, *key)
		}
	}
	return keys
}
