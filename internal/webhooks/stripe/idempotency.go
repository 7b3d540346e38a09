package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const guardProvider = "stripe"

// GuardStore is the Redis surface the guard needs.
type GuardStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	WebhookEventKey(provider, eventID string) string
}

// IdempotencyGuard is a Redis fast path in front of the ledger. It only
// remembers events the ledger already holds; the ledger stays authoritative.
type IdempotencyGuard struct {
	store GuardStore
	ttl   time.Duration
}

func NewIdempotencyGuard(store GuardStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &IdempotencyGuard{store: store, ttl: ttl}, nil
}

// Seen reports whether the event was recorded before.
func (g *IdempotencyGuard) Seen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	seen, err := g.store.Exists(ctx, g.store.WebhookEventKey(guardProvider, eventID))
	if err != nil {
		return false, fmt.Errorf("check webhook key: %w", err)
	}
	return seen, nil
}

// Mark remembers the event once the ledger holds it.
func (g *IdempotencyGuard) Mark(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if _, err := g.store.SetNX(ctx, g.store.WebhookEventKey(guardProvider, eventID), "1", g.ttl); err != nil {
		return fmt.Errorf("set webhook key: %w", err)
	}
	return nil
}
