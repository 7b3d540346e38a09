package purchases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	"github.com/angelmondragon/beatstore-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a purchases repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) first(ctx context.Context, query string, args ...any) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.WithContext(ctx).Where(query, args...).First(&purchase).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repository) FindByTriple(ctx context.Context, userID, beatID uuid.UUID, variant enums.DownloadType) (*models.Purchase, error) {
	return r.first(ctx, "user_id = ? AND beat_id = ? AND download_type = ?", userID, beatID, string(variant))
}

func (r *repository) FindByIntentRef(ctx context.Context, intentRef string) (*models.Purchase, error) {
	if intentRef == "" {
		return nil, nil
	}
	return r.first(ctx, "stripe_payment_intent_id = ?", intentRef)
}

// InsertIfAbsent creates the row unless the (user, beat, variant) triple exists.
// It never raises on the uniqueness constraint, so callers inside a Postgres
// transaction can keep using it.
func (r *repository) InsertIfAbsent(ctx context.Context, purchase *models.Purchase) (bool, error) {
	if purchase.ID == uuid.Nil {
		purchase.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "beat_id"}, {Name: "download_type"}},
			DoNothing: true,
		}).
		Create(purchase)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from []enums.PaymentStatus, update StatusUpdate) (bool, error) {
	values := map[string]any{
		"payment_status": string(update.Status),
		"updated_at":     time.Now().UTC(),
	}
	if update.PricePaid != nil {
		values["price_paid"] = *update.PricePaid
	}
	if update.IntentRef != nil {
		values["stripe_payment_intent_id"] = *update.IntentRef
	}

	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND payment_status IN ?", id, statusStrings(from)).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) DeleteIfStatus(ctx context.Context, id uuid.UUID, from []enums.PaymentStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND payment_status IN ?", id, statusStrings(from)).
		Delete(&models.Purchase{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) HasCompleted(ctx context.Context, userID, beatID uuid.UUID, variant enums.DownloadType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("user_id = ? AND beat_id = ? AND download_type = ? AND payment_status = ?",
			userID, beatID, string(variant), string(enums.PaymentStatusCompleted)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, filters LibraryFilters, cursor *pagination.Cursor, limit int) ([]models.Purchase, error) {
	qb := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filters.Status != nil {
		qb = qb.Where("payment_status = ?", string(*filters.Status))
	}
	if filters.BeatID != nil {
		qb = qb.Where("beat_id = ?", *filters.BeatID)
	}
	if cursor != nil {
		qb = qb.Where("((created_at < ?) OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Purchase
	err := qb.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *repository) ListOpenBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Purchase, error) {
	var rows []models.Purchase
	err := r.db.WithContext(ctx).
		Where("payment_status IN ? AND created_at < ?", statusStrings(openStatuses), cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func statusStrings(statuses []enums.PaymentStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
