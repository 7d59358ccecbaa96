package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/chatpay/internal/domain"
	"github.com/punchamoorthee/chatpay/internal/gateway"
	"github.com/punchamoorthee/chatpay/internal/service"
)

// claimOnlyPayments implements just enough of the payment store for the
// webhook accept path.
type claimOnlyPayments struct {
	mu     sync.Mutex
	claims map[string]bool
}

func (f *claimOnlyPayments) CreatePayment(context.Context, *domain.PaymentTransaction) error {
	return nil
}

func (f *claimOnlyPayments) GetByTrackingID(context.Context, string) (*domain.PaymentTransaction, error) {
	return nil, domain.ErrNotFound
}

func (f *claimOnlyPayments) GetByOrderID(context.Context, string) (*domain.PaymentTransaction, error) {
	return nil, domain.ErrNotFound
}

func (f *claimOnlyPayments) ApplyEvent(context.Context, string, string, string, []string, string, string) (*domain.PaymentTransaction, error) {
	return nil, domain.ErrNotFound
}

func (f *claimOnlyPayments) ClaimEvent(_ context.Context, eventID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claims[eventID] {
		return domain.ErrDuplicateEvent
	}
	f.claims[eventID] = true
	return nil
}

func (f *claimOnlyPayments) MarkEventProcessed(context.Context, string) error { return nil }

func (f *claimOnlyPayments) MarkEventFailed(context.Context, string, error) error { return nil }

func newTestHandler(t *testing.T) (*Handler, *gateway.SignatureVerifier, *service.WebhookProcessor) {
	t.Helper()
	logger := slogt.New(t)
	verifier := gateway.NewSignatureVerifier("test_secret")
	wallet := service.NewWalletService(nil, nil, nil, false, logger)
	payments := &claimOnlyPayments{claims: make(map[string]bool)}
	webhooks := service.NewWebhookProcessor(verifier, payments, wallet, nil, 16, logger)
	webhooks.Start()
	t.Cleanup(webhooks.Close)

	h := NewHandler(wallet, webhooks, nil, nil,
		func() error { return nil },
		func() error { return nil },
		logger)
	return h, verifier, webhooks
}

func TestWebhookHandlerBadSignature(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/webhook",
		strings.NewReader(`{"event":"payment.captured"}`))
	req.Header.Set("X-Razorpay-Signature", "forged")
	req.Header.Set("X-Razorpay-Event-Id", "evt_1")
	rec := httptest.NewRecorder()

	h.Webhook(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Invalid webhook signature", body["error"])
}

func TestWebhookHandlerAcceptAndReplay(t *testing.T) {
	h, verifier, _ := newTestHandler(t)

	payload := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1"}}}}`)
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/webhook", strings.NewReader(string(payload)))
		req.Header.Set("X-Razorpay-Signature", verifier.Sign(payload))
		req.Header.Set("X-Razorpay-Event-Id", "evt_replay")
		rec := httptest.NewRecorder()
		h.Webhook(rec, req)
		return rec
	}

	first := send()
	assert.Equal(t, http.StatusOK, first.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &body))
	assert.Equal(t, "webhook_accepted", body["status"])

	second := send()
	assert.Equal(t, http.StatusOK, second.Code)
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "duplicate_event_skipped", body["status"])
}

func TestValidateVPAHandler(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/upi/validate",
		strings.NewReader(`{"vpa":"alice@okhdfc"}`))
	rec := httptest.NewRecorder()
	h.ValidateVPA(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body domain.VPAValidationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Valid)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/wallet/upi/validate",
		strings.NewReader(`{"vpa":"not a vpa"}`))
	rec = httptest.NewRecorder()
	h.ValidateVPA(rec, req)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Valid)
	assert.Equal(t, "Invalid VPA format", body.Error)
}

func TestHealthDegraded(t *testing.T) {
	logger := slogt.New(t)
	h := NewHandler(nil, nil, nil, nil,
		func() error { return assert.AnError },
		func() error { return nil },
		logger)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status     string                    `json:"status"`
		Components map[string]map[string]any `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, false, body.Components["database"]["healthy"])
}

func TestRouterWalletRoutePrecedence(t *testing.T) {
	h, _, _ := newTestHandler(t)
	router := NewRouter(h, nil, slogt.New(t))

	// /wallet/health must hit the health probe, not GetWallet with
	// userId="health".
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallet/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "wallet", body["service"])
}

func TestRouterNotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)
	router := NewRouter(h, nil, slogt.New(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
