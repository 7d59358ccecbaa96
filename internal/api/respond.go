package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/punchamoorthee/chatpay/internal/domain"
	"github.com/punchamoorthee/chatpay/internal/gateway"
	"github.com/punchamoorthee/chatpay/internal/llm"
	"github.com/punchamoorthee/chatpay/internal/service"
)

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

// respondServiceError maps typed service errors to HTTP statuses. Upstream
// bodies (gateway, LLM backends) are never forwarded to clients.
func respondServiceError(w http.ResponseWriter, err error) {
	var gwErr *gateway.Error
	var beErr *llm.BackendError

	switch {
	case errors.Is(err, service.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, domain.ErrInsufficientFunds):
		respondError(w, http.StatusPaymentRequired, "Insufficient balance")
	case errors.As(err, &gwErr):
		respondError(w, http.StatusBadGateway, "Payment gateway request failed")
	case errors.As(err, &beErr):
		switch beErr.StatusCode {
		case http.StatusTooManyRequests:
			respondError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
		case http.StatusUnauthorized, http.StatusForbidden:
			respondError(w, http.StatusUnauthorized, "API authentication failed. Please check server configuration.")
		default:
			respondError(w, http.StatusBadGateway, "Upstream completion request failed")
		}
	default:
		respondError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}
