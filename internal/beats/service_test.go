package beats

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/pagination"
	"github.com/angelmondragon/beatstore-backend/pkg/storage"
)

func newTestService(t *testing.T) (Service, *gorm.DB, *storage.Local) {
	t.Helper()
	db := dbtest.Open(t)
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{Repo: NewRepository(db), Storage: store})
	require.NoError(t, err)
	return svc, db, store
}

func putAsset(t *testing.T, store storage.Store, key, body string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), key, bytes.NewReader([]byte(body)), int64(len(body)), "audio/mpeg"))
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, db, _ := newTestService(t)
	base := time.Now().UTC().Add(-time.Hour)
	genres := []string{"trap", "drill", "trap"}
	var ids []uuid.UUID
	for i, genre := range genres {
		beat := dbtest.SeedBeat(t, db, func(b *models.Beat) {
			b.Genre = genre
			b.BPM = 120 + i*10
			b.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		})
		ids = append(ids, beat.ID)
	}

	ctx := context.Background()
	page, err := svc.List(ctx, ListParams{Params: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, ids[2], page.Items[0].ID)
	require.NotEmpty(t, page.NextCursor)

	rest, err := svc.List(ctx, ListParams{Params: pagination.Params{Limit: 2, Cursor: page.NextCursor}})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	require.Equal(t, ids[0], rest.Items[0].ID)

	trap, err := svc.List(ctx, ListParams{Filters: ListFilters{Genre: "TRAP"}})
	require.NoError(t, err)
	require.Len(t, trap.Items, 2)

	minBPM := 130
	fast, err := svc.List(ctx, ListParams{Filters: ListFilters{BPMMin: &minBPM}})
	require.NoError(t, err)
	require.Len(t, fast.Items, 2)

	maxBPM := 100
	_, err = svc.List(ctx, ListParams{Filters: ListFilters{BPMMin: &minBPM, BPMMax: &maxBPM}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetReportsVariantAvailability(t *testing.T) {
	svc, db, _ := newTestService(t)
	beat := dbtest.SeedBeat(t, db, func(b *models.Beat) { b.StemsFileKey = nil })

	dto, err := svc.Get(context.Background(), beat.ID)
	require.NoError(t, err)
	require.Len(t, dto.Variants, 3)
	available := map[enums.DownloadType]bool{}
	for _, v := range dto.Variants {
		available[v.DownloadType] = v.Available
	}
	require.True(t, available[enums.DownloadTypeMP3])
	require.False(t, available[enums.DownloadTypeStems])

	_, err = svc.Get(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestOpenPreview(t *testing.T) {
	svc, db, store := newTestService(t)
	beat := dbtest.SeedBeat(t, db, nil)

	_, err := svc.OpenPreview(context.Background(), beat.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "snippet missing from storage")

	putAsset(t, store, *beat.SnippetKey, "snippet-bytes")
	preview, err := svc.OpenPreview(context.Background(), beat.ID)
	require.NoError(t, err)
	defer preview.Object.Body.Close()
	body, err := io.ReadAll(preview.Object.Body)
	require.NoError(t, err)
	require.Equal(t, "snippet-bytes", string(body))
	require.Equal(t, "Night_Drive_preview.mp3", preview.Filename)
}

func TestCreateValidatesAssetsAndPrices(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	putAsset(t, store, "beats/new/full.mp3", "mp3")

	mp3Key := "beats/new/full.mp3"
	wavKey := "beats/new/full.wav"
	mp3Price := decimal.RequireFromString("19.99")
	input := CreateBeatInput{
		Name:       "Sunset",
		Genre:      "lofi",
		BPM:        85,
		Scale:      "C major",
		Price:      decimal.RequireFromString("19.99"),
		MP3FileKey: &mp3Key,
		WAVFileKey: &wavKey,
		MP3Price:   &mp3Price,
	}

	_, err := svc.Create(ctx, input)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Contains(t, pkgerrors.As(err).Details(), "wav_file_key")

	input.WAVFileKey = nil
	input.Price = decimal.RequireFromString("0")
	_, err = svc.Create(ctx, input)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	input.Price = decimal.RequireFromString("19.99")
	dto, err := svc.Create(ctx, input)
	require.NoError(t, err)
	require.Equal(t, "Sunset", dto.Name)
	require.True(t, dto.Variants[0].Available)
	require.False(t, dto.Variants[1].Available)
}

func TestFileStem(t *testing.T) {
	require.Equal(t, "Night_Drive", FileStem("Night Drive"))
	require.Equal(t, "beat", FileStem("../../"))
	require.Equal(t, "Lo-Fi_v2", FileStem("Lo-Fi v2!"))
	require.Equal(t, "Cafe_Noir", FileStem("Café Noir"))
	require.Equal(t, "Cafe_Noir", FileStem("Cafe\u0301 Noir"))
	require.Equal(t, "beat", FileStem("夜"))
}

func TestDisplayStemKeepsLetters(t *testing.T) {
	require.Equal(t, "Café_Noir", DisplayStem("Café Noir"))
	require.Equal(t, "Café_Noir", DisplayStem("Cafe\u0301 Noir"))
	require.Equal(t, "夜の街", DisplayStem("夜の街"))
	require.Equal(t, "beat", DisplayStem("../../"))
}

func TestContentDisposition(t *testing.T) {
	require.Equal(t, `inline; filename="Night_Drive.mp3"`, ContentDisposition("inline", "Night_Drive.mp3", "Night_Drive.mp3"))
	require.Equal(t, `attachment; filename="beat.wav"`, ContentDisposition("attachment", "beat.wav", ""))
	require.Equal(t,
		`attachment; filename="beat_wav.wav"; filename*=UTF-8''%E5%A4%9C_wav.wav`,
		ContentDisposition("attachment", "beat_wav.wav", "夜_wav.wav"))
	require.Equal(t,
		`inline; filename="Cafe_Noir_preview.mp3"; filename*=UTF-8''Caf%C3%A9_Noir_preview.mp3`,
		ContentDisposition("inline", "Cafe_Noir_preview.mp3", "Café_Noir_preview.mp3"))
}
