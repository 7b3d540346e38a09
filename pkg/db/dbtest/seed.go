package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
)

// SeedUser inserts a buyer with a unique username and email.
func SeedUser(t testing.TB, db *gorm.DB) models.User {
	t.Helper()
	id := uuid.New()
	user := models.User{
		ID:           id,
		Username:     "buyer_" + id.String()[:8],
		Email:        id.String()[:8] + "@example.com",
		PasswordHash: "x",
		Role:         enums.UserRoleBuyer,
		IsActive:     true,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedBeat inserts a beat with every variant priced and stored. mutate may
// adjust the row before insert.
func SeedBeat(t testing.TB, db *gorm.DB, mutate func(*models.Beat)) models.Beat {
	t.Helper()
	id := uuid.New()
	key := func(variant string) *string {
		k := "beats/" + id.String() + "/" + variant
		return &k
	}
	price := func(v string) *decimal.Decimal {
		d := decimal.RequireFromString(v)
		return &d
	}
	snippet := "snippets/" + id.String() + ".mp3"
	beat := models.Beat{
		ID:           id,
		Name:         "Night Drive",
		Genre:        "trap",
		BPM:          140,
		Scale:        "A minor",
		SnippetKey:   &snippet,
		Price:        decimal.RequireFromString("19.99"),
		MP3FileKey:   key("full.mp3"),
		WAVFileKey:   key("full.wav"),
		StemsFileKey: key("stems.zip"),
		MP3Price:     price("19.99"),
		WAVPrice:     price("29.99"),
		StemsPrice:   price("99.99"),
	}
	if mutate != nil {
		mutate(&beat)
	}
	if err := db.Create(&beat).Error; err != nil {
		t.Fatalf("seed beat: %v", err)
	}
	return beat
}
