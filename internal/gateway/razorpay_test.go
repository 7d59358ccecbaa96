package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaiseConversion(t *testing.T) {
	assert.Equal(t, int64(10050), ToPaise(decimal.RequireFromString("100.50")))
	assert.Equal(t, int64(100), ToPaise(decimal.NewFromInt(1)))
	assert.True(t, FromPaise(10050).Equal(decimal.RequireFromString("100.50")))
	assert.True(t, FromPaise(1).Equal(decimal.RequireFromString("0.01")))
}

func TestCreateOrder(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "key_id", user)
		require.Equal(t, "key_secret", pass)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(Order{
			ID:       "order_abc123",
			Amount:   50000,
			Currency: "INR",
			Status:   "created",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key_id", "key_secret", 5*time.Second)
	order, err := c.CreateOrder(context.Background(), decimal.NewFromInt(500), "RCPT_X",
		map[string]string{"payment_type": "balance_topup"})
	require.NoError(t, err)

	assert.Equal(t, "order_abc123", order.ID)
	assert.Equal(t, float64(50000), captured["amount"])
	assert.Equal(t, "INR", captured["currency"])
	assert.Equal(t, "RCPT_X", captured["receipt"])
}

func TestFetchPaymentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"description":"The id provided does not exist"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key_id", "key_secret", 5*time.Second)
	_, err := c.FetchPayment(context.Background(), "pay_missing")
	require.Error(t, err)

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	assert.Equal(t, "payment fetch", gwErr.Op)
}

func TestFetchOrderNotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders/order_abc123", r.URL.Path)
		json.NewEncoder(w).Encode(Order{
			ID:     "order_abc123",
			Status: "paid",
			Notes:  map[string]string{"payment_type": "balance_topup", "user_id": "user_1"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key_id", "key_secret", 5*time.Second)
	order, err := c.FetchOrder(context.Background(), "order_abc123")
	require.NoError(t, err)
	assert.Equal(t, "balance_topup", order.Notes["payment_type"])
	assert.Equal(t, "user_1", order.Notes["user_id"])
}

func TestCreatePaymentLinkUPIOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		method := payload["options"].(map[string]any)["checkout"].(map[string]any)["method"].(map[string]any)
		assert.Equal(t, true, method["upi"])
		assert.Equal(t, false, method["card"])

		json.NewEncoder(w).Encode(PaymentLink{ID: "plink_1", ShortURL: "https://rzp.io/l/x", Status: "created"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key_id", "key_secret", 5*time.Second)
	link, err := c.CreatePaymentLink(context.Background(), decimal.NewFromInt(100), "Test", "Alice", nil)
	require.NoError(t, err)
	assert.Equal(t, "plink_1", link.ID)
}
