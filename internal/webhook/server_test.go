package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/suspectuso/premium-bot/internal/billing"
	"github.com/suspectuso/premium-bot/internal/config"
	"github.com/suspectuso/premium-bot/internal/lock"
	"github.com/suspectuso/premium-bot/internal/storage"
	"github.com/suspectuso/premium-bot/internal/storage/memstore"
)

const testSecret = "whsec_test"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeReconciler struct {
	mu      sync.Mutex
	events  []billing.PaymentEvent
	outcome billing.Outcome
	err     error
}

func (f *fakeReconciler) Apply(_ context.Context, ev billing.PaymentEvent) (billing.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.outcome, f.err
}

func testConfig() *config.Config {
	cfg := &config.Config{Debug: true}
	cfg.Stripe.WebhookSecret = testSecret
	cfg.Stripe.Tolerance = 5 * time.Minute
	return cfg
}

func checkoutEvent(eventID, eventType, externalID, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": %q,
		"created": 1740830400,
		"api_version": "2023-10-16",
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"client_reference_id": %q,
			"customer": "cus_1",
			"subscription": "sub_1",
			"payment_status": %q,
			"status": "complete"
		}}
	}`, eventID, eventType, externalID, paymentStatus))
}

func post(t *testing.T, h http.Handler, payload []byte, secret string) *httptest.ResponseRecorder {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func outcomeOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["outcome"]
}

func TestStripeCheckoutCompleted(t *testing.T) {
	rec := &fakeReconciler{outcome: billing.OutcomeApplied}
	srv := NewServer(testConfig(), rec, nil, zerolog.Nop())

	resp := post(t, srv.Handler(), checkoutEvent("evt_1", "checkout.session.completed", "42", "paid"), testSecret)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "applied", outcomeOf(t, resp))
	require.Len(t, rec.events, 1)

	ev := rec.events[0]
	assert.Equal(t, "42", ev.ExternalID)
	assert.Equal(t, "evt_1", ev.EventID)
	assert.Equal(t, "cus_1", ev.CustomerRef)
	assert.Equal(t, "sub_1", ev.SubscriptionRef)
	assert.True(t, ev.Completed)
	assert.True(t, ev.Verified)
	assert.Equal(t, int64(1740830400), ev.OccurredAt.Unix())
	assert.NotEmpty(t, resp.Header().Get(requestIDHeader))
}

func TestStripeUnpaidSessionIsNotCompleted(t *testing.T) {
	rec := &fakeReconciler{outcome: billing.OutcomeIgnored}
	srv := NewServer(testConfig(), rec, nil, zerolog.Nop())

	resp := post(t, srv.Handler(), checkoutEvent("evt_1", "checkout.session.completed", "42", "unpaid"), testSecret)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, rec.events, 1)
	assert.False(t, rec.events[0].Completed)
}

func TestStripeAsyncPaymentSucceeded(t *testing.T) {
	rec := &fakeReconciler{outcome: billing.OutcomeApplied}
	srv := NewServer(testConfig(), rec, nil, zerolog.Nop())

	resp := post(t, srv.Handler(), checkoutEvent("evt_2", "checkout.session.async_payment_succeeded", "42", "paid"), testSecret)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].Completed)
}

func TestStripeBadSignature(t *testing.T) {
	rec := &fakeReconciler{}
	srv := NewServer(testConfig(), rec, nil, zerolog.Nop())

	resp := post(t, srv.Handler(), checkoutEvent("evt_1", "checkout.session.completed", "42", "paid"), "whsec_other")

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, rec.events)
}

func TestStripeMissingSignature(t *testing.T) {
	rec := &fakeReconciler{}
	srv := NewServer(testConfig(), rec, nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe",
		bytes.NewReader(checkoutEvent("evt_1", "checkout.session.completed", "42", "paid")))
	resp := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, rec.events)
}

func TestStripeOtherEventTypeIgnored(t *testing.T) {
	rec := &fakeReconciler{}
	srv := NewServer(testConfig(), rec, nil, zerolog.Nop())

	resp := post(t, srv.Handler(), checkoutEvent("evt_1", "checkout.session.expired", "42", "unpaid"), testSecret)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ignored", outcomeOf(t, resp))
	assert.Empty(t, rec.events)
}

func TestStripeMissingClientReference(t *testing.T) {
	rec := &fakeReconciler{}
	srv := NewServer(testConfig(), rec, nil, zerolog.Nop())

	resp := post(t, srv.Handler(), checkoutEvent("evt_1", "checkout.session.completed", "", "paid"), testSecret)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "dropped", outcomeOf(t, resp))
	assert.Empty(t, rec.events)
}

func TestStripeRetryableFailure(t *testing.T) {
	rec := &fakeReconciler{err: fmt.Errorf("%w: store down", billing.ErrRetryable)}
	srv := NewServer(testConfig(), rec, nil, zerolog.Nop())

	resp := post(t, srv.Handler(), checkoutEvent("evt_1", "checkout.session.completed", "42", "paid"), testSecret)

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestStripeBodyTooLarge(t *testing.T) {
	rec := &fakeReconciler{}
	srv := NewServer(testConfig(), rec, nil, zerolog.Nop())

	payload := []byte(`{"pad":"` + strings.Repeat("x", maxBodyBytes) + `"}`)
	resp := post(t, srv.Handler(), payload, testSecret)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	assert.Empty(t, rec.events)
}

func TestStripeRedeliveryEndToEnd(t *testing.T) {
	store := memstore.New()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := store.Create(context.Background(), storage.NewUser("42", "Ana", "ana", now))
	require.NoError(t, err)

	r := billing.NewReconciler(store, lock.NewLocal(), zerolog.Nop())
	srv := NewServer(testConfig(), r, nil, zerolog.Nop())
	payload := checkoutEvent("evt_1", "checkout.session.completed", "42", "paid")

	first := post(t, srv.Handler(), payload, testSecret)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "applied", outcomeOf(t, first))

	second := post(t, srv.Handler(), payload, testSecret)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "duplicate", outcomeOf(t, second))

	user, err := store.FindByExternalID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusPaid, user.Status)
	assert.Equal(t, "evt_1", user.LastAppliedEventID)
	assert.Equal(t, "cus_1", user.CustomerRef)

	unknown := post(t, srv.Handler(), checkoutEvent("evt_9", "checkout.session.completed", "777", "paid"), testSecret)
	require.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, "dropped", outcomeOf(t, unknown))
}

func TestHealth(t *testing.T) {
	srv := NewServer(testConfig(), &fakeReconciler{}, nil, zerolog.Nop())

	resp := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "OK", resp.Body.String())
}

func TestTelegramRouteMountedWhenGiven(t *testing.T) {
	var called bool
	tg := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	withTG := NewServer(testConfig(), &fakeReconciler{}, tg, zerolog.Nop())
	resp := httptest.NewRecorder()
	withTG.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader("{}")))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, called)

	without := NewServer(testConfig(), &fakeReconciler{}, nil, zerolog.Nop())
	resp = httptest.NewRecorder()
	without.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader("{}")))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRecoveryReturns500(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(zerolog.Nop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestRequestIDPropagated(t *testing.T) {
	srv := NewServer(testConfig(), &fakeReconciler{}, nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-123")
	resp := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resp, req)

	assert.Equal(t, "req-123", resp.Header().Get(requestIDHeader))
}
