package checkout

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/beatstore-backend/pkg/enums"
)

type CreateIntentRequest struct {
	DownloadType string `json:"download_type" validate:"required"`
}

type IntentResponse struct {
	ClientSecret    string             `json:"client_secret"`
	PaymentIntentID string             `json:"payment_intent_id"`
	PurchaseID      uuid.UUID          `json:"purchase_id"`
	DownloadType    enums.DownloadType `json:"download_type"`
	Amount          string             `json:"amount"`
	AmountMinor     int64              `json:"amount_minor"`
	Currency        string             `json:"currency"`
	Reused          bool               `json:"reused"`
}

type ConfirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required,max=255"`
	DownloadType    string `json:"download_type,omitempty"`
}

type ConfirmResponse struct {
	Message      string             `json:"message"`
	PurchaseID   uuid.UUID          `json:"purchase_id"`
	DownloadType enums.DownloadType `json:"download_type"`
}
