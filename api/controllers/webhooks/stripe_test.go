package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	stripewebhook "github.com/angelmondragon/beatstore-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
)

const testSecret = "whsec_test"

type fakeSigningClient struct{ secret string }

func (f fakeSigningClient) SigningSecret() string { return f.secret }

type fakeWebhookService struct {
	events   []string
	payloads [][]byte
	outcome  stripewebhook.Outcome
	err      error
}

func (f *fakeWebhookService) Receive(_ context.Context, event *stripe.Event, payload []byte) (stripewebhook.Outcome, error) {
	f.events = append(f.events, event.ID)
	f.payloads = append(f.payloads, payload)
	if f.err != nil {
		return "", f.err
	}
	if f.outcome == "" {
		return stripewebhook.OutcomeProcessed, nil
	}
	return f.outcome, nil
}

func TestStripeWebhookAcceptsSignedEvent(t *testing.T) {
	svc := &fakeWebhookService{}
	payload := buildStripeEvent(t, "evt_1", "payment_intent.succeeded")

	rec := serveWebhook(t, svc, payload, signStripePayload(payload, testSecret, time.Now()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"evt_1"}, svc.events)
	assert.Equal(t, payload, svc.payloads[0])
	assert.Contains(t, rec.Body.String(), `"outcome":"processed"`)
}

func TestStripeWebhookAcknowledgesDuplicates(t *testing.T) {
	svc := &fakeWebhookService{outcome: stripewebhook.OutcomeDuplicate}
	payload := buildStripeEvent(t, "evt_1", "payment_intent.succeeded")

	rec := serveWebhook(t, svc, payload, signStripePayload(payload, testSecret, time.Now()))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"duplicate"`)
}

func TestStripeWebhookRejectsBadSignatures(t *testing.T) {
	payload := buildStripeEvent(t, "evt_2", "payment_intent.succeeded")

	cases := map[string]string{
		"missing":      "",
		"wrong secret": signStripePayload(payload, "whsec_other", time.Now()),
		"stale":        signStripePayload(payload, testSecret, time.Now().Add(-time.Hour)),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &fakeWebhookService{}
			rec := serveWebhook(t, svc, payload, header)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, svc.events, "unverified events must not reach the ledger")
		})
	}
}

func TestStripeWebhookRejectsOversizedBody(t *testing.T) {
	svc := &fakeWebhookService{}
	payload := bytes.Repeat([]byte("a"), MaxPayloadBytes+1)

	rec := serveWebhook(t, svc, payload, signStripePayload(payload, testSecret, time.Now()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.events)
}

func TestStripeWebhookLedgerFailureIsRetryable(t *testing.T) {
	svc := &fakeWebhookService{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "record webhook event")}
	payload := buildStripeEvent(t, "evt_3", "payment_intent.succeeded")

	rec := serveWebhook(t, svc, payload, signStripePayload(payload, testSecret, time.Now()))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func serveWebhook(t *testing.T, svc StripeWebhookService, payload []byte, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if header != "" {
		req.Header.Set("Stripe-Signature", header)
	}
	rec := httptest.NewRecorder()
	StripeWebhook(svc, fakeSigningClient{secret: testSecret}, nil).ServeHTTP(rec, req)
	return rec
}

func buildStripeEvent(t *testing.T, id, eventType string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data": map[string]any{
			"object": map[string]any{
				"id":       "pi_123",
				"object":   "payment_intent",
				"amount":   2999,
				"currency": "usd",
				"status":   "succeeded",
			},
		},
	})
	require.NoError(t, err)
	return payload
}

func signStripePayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts.Unix(), payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
