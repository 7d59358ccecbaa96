package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/punchamoorthee/chatpay/internal/domain"
	"github.com/punchamoorthee/chatpay/internal/gateway"
	"github.com/punchamoorthee/chatpay/internal/llm"
	"github.com/punchamoorthee/chatpay/internal/service"
)

func TestRespondServiceError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", fmt.Errorf("%w: bad amount", service.ErrValidation), http.StatusBadRequest},
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"insufficient funds", domain.ErrInsufficientFunds, http.StatusPaymentRequired},
		{"gateway failure", &gateway.Error{StatusCode: 500, Op: "order create"}, http.StatusBadGateway},
		{"backend rate limit", &llm.BackendError{StatusCode: http.StatusTooManyRequests}, http.StatusTooManyRequests},
		{"backend auth", &llm.BackendError{StatusCode: http.StatusUnauthorized}, http.StatusUnauthorized},
		{"backend other", &llm.BackendError{StatusCode: http.StatusInternalServerError}, http.StatusBadGateway},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondServiceError(rec, tc.err)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestGatewayErrorBodyNeverForwarded(t *testing.T) {
	rec := httptest.NewRecorder()
	respondServiceError(rec, &gateway.Error{StatusCode: 400, Body: `{"error":"secret internals"}`, Op: "order create"})
	assert.NotContains(t, rec.Body.String(), "secret internals")
}
