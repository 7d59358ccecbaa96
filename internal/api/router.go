package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every endpoint. Fixed wallet paths (webhook, upi,
// health) are registered before the {userId} routes so they never match
// as user ids.
func NewRouter(h *Handler, allowedOrigins []string, logger *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(CORSMiddleware(allowedOrigins))
	r.Use(LoggingMiddleware(logger))
	r.Use(MetricsMiddleware)

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.Health).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()

	wallet := apiV1.PathPrefix("/wallet").Subrouter()
	wallet.HandleFunc("/webhook", h.Webhook).Methods("POST")
	wallet.HandleFunc("/upi/pay", h.CreateUPIPayment).Methods("POST")
	wallet.HandleFunc("/upi/status/{trackingId}", h.UPIPaymentStatus).Methods("GET")
	wallet.HandleFunc("/upi/validate", h.ValidateVPA).Methods("POST")
	wallet.HandleFunc("/health", h.WalletHealth).Methods("GET")
	wallet.HandleFunc("/{userId}", h.GetWallet).Methods("GET")
	wallet.HandleFunc("/{userId}/transactions", h.GetTransactions).Methods("GET")
	wallet.HandleFunc("/{userId}/add", h.AddMoney).Methods("POST")
	wallet.HandleFunc("/{userId}/verify-payment", h.VerifyPayment).Methods("POST")

	apiV1.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	apiV1.HandleFunc("/sessions/{sessionId}", h.DeleteSession).Methods("DELETE")
	apiV1.HandleFunc("/sessions/{sessionId}/messages", h.SendMessage).Methods("POST")
	apiV1.HandleFunc("/sessions/{sessionId}/messages", h.GetMessages).Methods("GET")
	apiV1.HandleFunc("/images/sessions/{sessionId}/messages", h.SendImageMessage).Methods("POST")
	apiV1.HandleFunc("/backends", h.Backends).Methods("GET")
	apiV1.HandleFunc("/providers", h.Providers).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Not found")
	})
	return r
}
