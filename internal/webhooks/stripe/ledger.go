package stripewebhook

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
)

// Ledger records every received processor event once, keyed by event id.
type Ledger interface {
	WithTx(tx *gorm.DB) Ledger
	Record(ctx context.Context, eventID, eventType string, payload []byte) (*models.StripeWebhookEvent, bool, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	FindByEventID(ctx context.Context, eventID string) (*models.StripeWebhookEvent, error)
	CountUnprocessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) Ledger {
	return &ledger{db: db}
}

func (l *ledger) WithTx(tx *gorm.DB) Ledger {
	if tx == nil {
		return l
	}
	return &ledger{db: tx}
}

// Record inserts the event unless its id is already known. The bool reports
// whether this call created the row.
func (l *ledger) Record(ctx context.Context, eventID, eventType string, payload []byte) (*models.StripeWebhookEvent, bool, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	row := &models.StripeWebhookEvent{
		ID:            uuid.New(),
		StripeEventID: eventID,
		EventType:     eventType,
		Payload:       string(payload),
	}
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "stripe_event_id"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return row, true, nil
	}

	existing, err := l.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (l *ledger) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return l.db.WithContext(ctx).
		Model(&models.StripeWebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"processed": true, "processed_at": now, "last_error": nil}).Error
}

func (l *ledger) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	if len(reason) > 1000 {
		reason = reason[:1000]
	}
	return l.db.WithContext(ctx).
		Model(&models.StripeWebhookEvent{}).
		Where("id = ? AND processed = ?", id, false).
		Update("last_error", reason).Error
}

func (l *ledger) FindByEventID(ctx context.Context, eventID string) (*models.StripeWebhookEvent, error) {
	var row models.StripeWebhookEvent
	err := l.db.WithContext(ctx).Where("stripe_event_id = ?", eventID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (l *ledger) CountUnprocessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&models.StripeWebhookEvent{}).
		Where("processed = ? AND created_at < ?", false, cutoff).
		Count(&count).Error
	return count, err
}
