package downloads

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/internal/beats"
	"github.com/angelmondragon/beatstore-backend/internal/purchases"
	"github.com/angelmondragon/beatstore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/storage"
)

type gateFixture struct {
	db    *gorm.DB
	svc   *Service
	store *storage.Local
	user  models.User
	beat  models.Beat
}

func newGateFixture(t *testing.T) gateFixture {
	t.Helper()
	db := dbtest.Open(t)
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Purchases: purchases.NewRepository(db),
		Beats:     beats.NewRepository(db),
		Storage:   store,
	})
	require.NoError(t, err)
	beat := dbtest.SeedBeat(t, db, func(b *models.Beat) { b.Name = "Night Drive" })
	for _, variant := range enums.AllDownloadTypes() {
		key, ok := beat.VariantFileKey(variant)
		require.True(t, ok)
		body := "asset-" + string(variant)
		require.NoError(t, store.Put(context.Background(), key, bytes.NewReader([]byte(body)), int64(len(body)), variant.ContentType()))
	}
	return gateFixture{db: db, svc: svc, store: store, user: dbtest.SeedUser(t, db), beat: beat}
}

func (f gateFixture) purchase(t *testing.T, variant enums.DownloadType, status enums.PaymentStatus) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Purchase{
		ID:            uuid.New(),
		UserID:        f.user.ID,
		BeatID:        f.beat.ID,
		DownloadType:  variant,
		PricePaid:     decimal.RequireFromString("29.99"),
		PaymentMethod: models.PaymentMethodStripe,
		PaymentStatus: status,
	}).Error)
}

func TestAuthorizeRequiresCompletedPurchaseForExactTriple(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	f.purchase(t, enums.DownloadTypeWAV, enums.PaymentStatusCompleted)
	f.purchase(t, enums.DownloadTypeStems, enums.PaymentStatusPending)

	require.NoError(t, f.svc.Authorize(ctx, f.user.ID, f.beat.ID, enums.DownloadTypeWAV))

	cases := []struct {
		name    string
		userID  uuid.UUID
		beatID  uuid.UUID
		variant enums.DownloadType
	}{
		{name: "other variant", userID: f.user.ID, beatID: f.beat.ID, variant: enums.DownloadTypeMP3},
		{name: "pending purchase", userID: f.user.ID, beatID: f.beat.ID, variant: enums.DownloadTypeStems},
		{name: "other buyer", userID: uuid.New(), beatID: f.beat.ID, variant: enums.DownloadTypeWAV},
		{name: "missing beat", userID: f.user.ID, beatID: uuid.New(), variant: enums.DownloadTypeWAV},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.svc.Authorize(ctx, tc.userID, tc.beatID, tc.variant)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "got %v", err)
			require.Equal(t, purchaseRequired, pkgerrors.As(err).Message())
		})
	}
}

func TestAuthorizeRejectsUnknownVariant(t *testing.T) {
	f := newGateFixture(t)
	err := f.svc.Authorize(context.Background(), f.user.ID, f.beat.ID, enums.DownloadType("flac"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestOpenStreamsEntitledAsset(t *testing.T) {
	f := newGateFixture(t)
	f.purchase(t, enums.DownloadTypeStems, enums.PaymentStatusCompleted)

	asset, err := f.svc.Open(context.Background(), f.user.ID, f.beat.ID, enums.DownloadTypeStems)
	require.NoError(t, err)
	defer asset.Object.Body.Close()

	body, err := io.ReadAll(asset.Object.Body)
	require.NoError(t, err)
	require.Equal(t, "asset-stems", string(body))
	require.Equal(t, "application/zip", asset.ContentType)
	require.Equal(t, "Night_Drive_stems.zip", asset.Filename)
	require.Equal(t, `attachment; filename="Night_Drive_stems.zip"`, asset.ContentDisposition())
}

func TestOpenKeepsAccentedBeatName(t *testing.T) {
	f := newGateFixture(t)
	require.NoError(t, f.db.Model(&f.beat).Update("name", "Café Noir").Error)
	f.purchase(t, enums.DownloadTypeMP3, enums.PaymentStatusCompleted)

	asset, err := f.svc.Open(context.Background(), f.user.ID, f.beat.ID, enums.DownloadTypeMP3)
	require.NoError(t, err)
	defer asset.Object.Body.Close()

	require.Equal(t, "Cafe_Noir_mp3.mp3", asset.Filename)
	require.Equal(t, "Café_Noir_mp3.mp3", asset.DisplayName)
	require.Equal(t, `attachment; filename="Cafe_Noir_mp3.mp3"; filename*=UTF-8''Caf%C3%A9_Noir_mp3.mp3`, asset.ContentDisposition())
}

func TestOpenDeniedBeforeTouchingStorage(t *testing.T) {
	f := newGateFixture(t)
	_, err := f.svc.Open(context.Background(), f.user.ID, f.beat.ID, enums.DownloadTypeMP3)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestOpenMissingAssetIsNotFound(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	f.purchase(t, enums.DownloadTypeMP3, enums.PaymentStatusCompleted)
	require.NoError(t, f.db.Model(&models.Beat{}).Where("id = ?", f.beat.ID).Update("mp3_file_key", "beats/missing.mp3").Error)

	_, err := f.svc.Open(ctx, f.user.ID, f.beat.ID, enums.DownloadTypeMP3)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestFilename(t *testing.T) {
	require.Equal(t, "Night_Drive_mp3.mp3", Filename("Night Drive", enums.DownloadTypeMP3))
	require.Equal(t, "beat_wav.wav", Filename("", enums.DownloadTypeWAV))
}
