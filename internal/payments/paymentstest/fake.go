// Package paymentstest provides an in-memory payments.Gateway for tests.
package paymentstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/beatstore-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
)

// Gateway keeps intents in memory and counts every call.
type Gateway struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*payments.Intent

	CreateCalls   int
	RetrieveCalls int
	CancelCalls   int

	// Err, when set, is returned by every call.
	Err error
	// RetrieveErr, when set, fails RetrieveIntent only.
	RetrieveErr error
}

func New() *Gateway {
	return &Gateway{intents: map[string]*payments.Intent{}}
}

func (g *Gateway) CreateIntent(_ context.Context, amountMinor int64, currency string, metadata map[string]string) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CreateCalls++
	if g.Err != nil {
		return nil, g.Err
	}
	g.seq++
	id := fmt.Sprintf("pi_test_%d", g.seq)
	intent := &payments.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       payments.IntentStatusRequiresPaymentMethod,
		AmountMinor:  amountMinor,
		Currency:     currency,
		Metadata:     copyMap(metadata),
	}
	g.intents[id] = intent
	return clone(intent), nil
}

func (g *Gateway) RetrieveIntent(_ context.Context, intentID string) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.RetrieveCalls++
	if g.Err != nil {
		return nil, g.Err
	}
	if g.RetrieveErr != nil {
		return nil, g.RetrieveErr
	}
	intent, ok := g.intents[intentID]
	if !ok {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, payments.ErrIntentNotFound, "payment intent not found")
	}
	return clone(intent), nil
}

func (g *Gateway) CancelIntent(_ context.Context, intentID string) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CancelCalls++
	if g.Err != nil {
		return nil, g.Err
	}
	intent, ok := g.intents[intentID]
	if !ok {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, payments.ErrIntentNotFound, "payment intent not found")
	}
	intent.Status = payments.IntentStatusCanceled
	return clone(intent), nil
}

// Put registers or replaces an intent as the processor would report it.
func (g *Gateway) Put(intent payments.Intent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent.Metadata = copyMap(intent.Metadata)
	g.intents[intent.ID] = &intent
}

// SetStatus moves a stored intent to the given status.
func (g *Gateway) SetStatus(intentID string, status payments.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[intentID]; ok {
		intent.Status = status
	}
}

func clone(intent *payments.Intent) *payments.Intent {
	out := *intent
	out.Metadata = copyMap(intent.Metadata)
	return &out
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Status reports the stored status of an intent, or "" when unknown.
func (g *Gateway) Status(intentID string) payments.IntentStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[intentID]; ok {
		return intent.Status
	}
	return ""
}
