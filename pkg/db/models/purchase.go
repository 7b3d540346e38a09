package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beatstore-backend/pkg/enums"
)

const (
	PaymentMethodStripe = "stripe"

	// PurchaseTripleConstraint enforces one purchase per buyer, beat and variant.
	PurchaseTripleConstraint = "uq_purchases_user_beat_download_type"
)

// Purchase is the entitlement record for a (buyer, beat, variant) triple.
type Purchase struct {
	ID                    uuid.UUID           `gorm:"type:uuid;primaryKey"`
	UserID                uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	BeatID                uuid.UUID           `gorm:"column:beat_id;type:uuid;not null"`
	DownloadType          enums.DownloadType  `gorm:"column:download_type;type:text;not null"`
	PricePaid             decimal.Decimal     `gorm:"column:price_paid;type:numeric(6,2);not null"`
	PaymentMethod         string              `gorm:"column:payment_method;type:text;not null;default:'stripe'"`
	PaymentStatus         enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	StripePaymentIntentID *string             `gorm:"column:stripe_payment_intent_id"`
	StripeSessionID       *string             `gorm:"column:stripe_session_id"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Purchase) TableName() string { return "purchases" }

// IntentRef returns the processor reference or an empty string.
func (p *Purchase) IntentRef() string {
	if p.StripePaymentIntentID == nil {
		return ""
	}
	return *p.StripePaymentIntentID
}
