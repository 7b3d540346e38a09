package models

import (
	"time"

	"github.com/google/uuid"
)

// StripeWebhookEvent is the ledger row for a received processor event.
type StripeWebhookEvent struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	StripeEventID string     `gorm:"column:stripe_event_id;type:text;not null;uniqueIndex"`
	EventType     string     `gorm:"column:event_type;type:text;not null"`
	Processed     bool       `gorm:"column:processed;not null;default:false"`
	ProcessedAt   *time.Time `gorm:"column:processed_at"`
	LastError     *string    `gorm:"column:last_error"`
	Payload       string     `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (StripeWebhookEvent) TableName() string { return "stripe_webhook_events" }
