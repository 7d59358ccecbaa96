package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/punchamoorthee/chatpay/internal/domain"
	"github.com/punchamoorthee/chatpay/internal/llm"
	"github.com/punchamoorthee/chatpay/internal/service"
)

// Handler carries the wired services for all HTTP endpoints.
type Handler struct {
	wallet   *service.WalletService
	webhooks *service.WebhookProcessor
	chat     *service.ChatService
	registry *llm.Registry
	validate *validator.Validate
	logger   *slog.Logger

	dbPing    func() error
	cachePing func() error
}

func NewHandler(wallet *service.WalletService, webhooks *service.WebhookProcessor, chat *service.ChatService, registry *llm.Registry, dbPing, cachePing func() error, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterValidation("vpa", func(fl validator.FieldLevel) bool {
		return service.ValidVPA(fl.Field().String())
	})
	return &Handler{
		wallet:    wallet,
		webhooks:  webhooks,
		chat:      chat,
		registry:  registry,
		validate:  v,
		logger:    logger,
		dbPing:    dbPing,
		cachePing: cachePing,
	}
}

func queryInt(r *http.Request, key string, def, min, max int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// GetWallet returns the balance plus recent transactions.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	recent := queryInt(r, "include_transactions", 5, 0, 20)

	resp, err := h.wallet.GetWallet(r.Context(), userID, recent)
	if err != nil {
		h.logger.Error("wallet request failed", "user_id", userID, "error", err)
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetTransactions returns paginated history, newest first.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	limit := queryInt(r, "limit", 50, 1, 100)
	offset := queryInt(r, "offset", 0, 0, 1<<30)

	txs, err := h.wallet.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("transaction history failed", "user_id", userID, "error", err)
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, txs)
}

// AddMoney creates a gateway order for a wallet top-up.
func (h *Handler) AddMoney(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	var req domain.AddBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	resp, err := h.wallet.CreateTopUpOrder(r.Context(), userID, req.Amount)
	if err != nil {
		h.logger.Error("add money failed", "user_id", userID, "error", err)
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Webhook receives gateway deliveries. The body must stay raw until the
// signature over its exact bytes is verified; only a signature failure is a
// 400, every other outcome is a 200 with a status string.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Stream read error")
		return
	}

	signature := r.Header.Get("X-Razorpay-Signature")
	eventID := r.Header.Get("X-Razorpay-Event-Id")

	status, err := h.webhooks.Accept(r.Context(), rawBody, signature, eventID)
	if errors.Is(err, domain.ErrInvalidSignature) {
		respondError(w, http.StatusBadRequest, "Invalid webhook signature")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": status})
}

// VerifyPayment is the synchronous verify-and-credit endpoint.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	var req domain.VerifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Payment ID and Order ID are required")
		return
	}

	resp, err := h.wallet.VerifyAndCredit(r.Context(), userID, req.PaymentID, req.OrderID)
	if err != nil {
		h.logger.Error("payment verification failed",
			"user_id", userID, "payment_id", req.PaymentID, "order_id", req.OrderID, "error", err)
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// CreateUPIPayment starts a peer-to-peer UPI collect flow.
func (h *Handler) CreateUPIPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.CollectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid UPI payment request")
		return
	}

	resp, err := h.wallet.CreateUPIPayment(r.Context(), req)
	if err != nil {
		h.logger.Error("UPI payment failed", "payer_vpa", req.PayerVPA, "error", err)
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// UPIPaymentStatus reads a tracked payment by tracking id.
func (h *Handler) UPIPaymentStatus(w http.ResponseWriter, r *http.Request) {
	trackingID := mux.Vars(r)["trackingId"]

	record, err := h.wallet.PaymentStatus(r.Context(), trackingID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// ValidateVPA checks VPA structure.
func (h *Handler) ValidateVPA(w http.ResponseWriter, r *http.Request) {
	var req domain.VPAValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	respondJSON(w, http.StatusOK, h.wallet.ValidateVPA(r.Context(), req.VPA))
}

// WalletHealth is the wallet subsystem health probe.
func (h *Handler) WalletHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "wallet",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Health reports overall service health with per-component detail.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	components := map[string]map[string]any{
		"database": {"healthy": true},
		"cache":    {"status": "healthy"},
	}
	healthy := true

	if err := h.dbPing(); err != nil {
		components["database"] = map[string]any{"healthy": false, "error": err.Error()}
		healthy = false
	}
	if err := h.cachePing(); err != nil {
		components["cache"] = map[string]any{"status": "unhealthy", "error": err.Error()}
		healthy = false
	}

	status := "healthy"
	if !healthy {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    "v1",
		"components": components,
	})
}
