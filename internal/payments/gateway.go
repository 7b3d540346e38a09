package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/beatstore-backend/pkg/enums"
)

// IntentStatus mirrors the processor's payment intent status strings.
type IntentStatus string

const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentStatusRequiresAction        IntentStatus = "requires_action"
	IntentStatusRequiresCapture       IntentStatus = "requires_capture"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusCanceled              IntentStatus = "canceled"
)

// Reusable reports whether the buyer can still complete the intent client-side.
func (s IntentStatus) Reusable() bool {
	switch s {
	case IntentStatusRequiresPaymentMethod,
		IntentStatusRequiresConfirmation,
		IntentStatusRequiresAction,
		IntentStatusRequiresCapture,
		IntentStatusProcessing:
		return true
	}
	return false
}

// AwaitingBuyer reports whether the intent still waits on buyer input.
func (s IntentStatus) AwaitingBuyer() bool {
	return strings.HasPrefix(string(s), "requires_")
}

// Intent is the gateway-neutral view of a payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	AmountMinor  int64
	Currency     string
	Metadata     map[string]string
}

// Gateway creates and inspects payment intents at the external processor.
type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	CancelIntent(ctx context.Context, intentID string) (*Intent, error)
}

const (
	MetadataUserID       = "user_id"
	MetadataBeatID       = "beat_id"
	MetadataDownloadType = "download_type"
	MetadataBeatName     = "beat_name"
)

// IntentMetadata binds an intent to the purchase triple it pays for.
type IntentMetadata struct {
	UserID       uuid.UUID
	BeatID       uuid.UUID
	DownloadType enums.DownloadType
	BeatName     string
}

// Map renders the metadata in the processor's string map form.
func (m IntentMetadata) Map() map[string]string {
	out := map[string]string{
		MetadataUserID:       m.UserID.String(),
		MetadataBeatID:       m.BeatID.String(),
		MetadataDownloadType: string(m.DownloadType),
	}
	if m.BeatName != "" {
		out[MetadataBeatName] = m.BeatName
	}
	return out
}

// Matches reports whether the metadata belongs to the given triple.
func (m IntentMetadata) Matches(userID, beatID uuid.UUID, variant enums.DownloadType) bool {
	return m.UserID == userID && m.BeatID == beatID && m.DownloadType == variant
}

// ParseMetadata extracts the purchase triple from intent metadata.
func ParseMetadata(raw map[string]string) (IntentMetadata, error) {
	var meta IntentMetadata
	if len(raw) == 0 {
		return meta, fmt.Errorf("intent metadata missing")
	}

	userID, err := uuid.Parse(strings.TrimSpace(raw[MetadataUserID]))
	if err != nil {
		return meta, fmt.Errorf("intent metadata %s: %w", MetadataUserID, err)
	}
	beatID, err := uuid.Parse(strings.TrimSpace(raw[MetadataBeatID]))
	if err != nil {
		return meta, fmt.Errorf("intent metadata %s: %w", MetadataBeatID, err)
	}
	variant, err := enums.ParseDownloadType(raw[MetadataDownloadType])
	if err != nil {
		return meta, fmt.Errorf("intent metadata %s: %w", MetadataDownloadType, err)
	}

	meta.UserID = userID
	meta.BeatID = beatID
	meta.DownloadType = variant
	meta.BeatName = raw[MetadataBeatName]
	return meta, nil
}
