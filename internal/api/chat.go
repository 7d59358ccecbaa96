package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/punchamoorthee/chatpay/internal/domain"
)

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

// CreateSession opens a new chat session, optionally bound to a wallet user.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	sess, err := h.chat.CreateSession(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("session creation failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create session. Please try again.")
		return
	}
	respondJSON(w, http.StatusOK, domain.SessionResponse{
		SessionID: sess.SessionID,
		CreatedAt: sess.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresIn: 3600,
	})
}

// SendMessage runs one conversation turn.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	var req domain.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "Message is required")
		return
	}

	resp, err := h.chat.SendMessage(r.Context(), sessionID, req)
	if err != nil {
		h.logger.Error("message request failed", "session_id", sessionID, "error", err)
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// SendImageMessage accepts a multipart text message with an attached image.
// The image filename is stored as an annotation; the file itself is
// discarded and only the text goes upstream.
func (h *Handler) SendImageMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed multipart body")
		return
	}
	message := r.FormValue("message")
	if message == "" {
		respondError(w, http.StatusBadRequest, "Message is required")
		return
	}

	var filename string
	if file, header, err := r.FormFile("image"); err == nil {
		filename = header.Filename
		file.Close()
	}

	resp, err := h.chat.SendTextMessage(r.Context(), sessionID, message, filename, "")
	if err != nil {
		h.logger.Error("image message failed", "session_id", sessionID, "error", err)
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetMessages returns the full message history of a session.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	msgs, err := h.chat.MessageHistory(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, domain.MessageHistoryResponse{
		Messages:   msgs,
		TotalCount: len(msgs),
	})
}

// DeleteSession removes a session and its messages.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	if err := h.chat.DeleteSession(r.Context(), sessionID); err != nil {
		h.logger.Error("session delete failed", "session_id", sessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Session deleted successfully"})
}

// Backends lists the configured completion backends and their models.
func (h *Handler) Backends(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"backends":        h.registry.Backends(),
		"default_backend": h.registry.DefaultBackend(),
	})
}

// Providers lists all "backend/model" selectors.
func (h *Handler) Providers(w http.ResponseWriter, r *http.Request) {
	all, byBackend, def := h.registry.Providers()
	respondJSON(w, http.StatusOK, map[string]any{
		"available_providers":  all,
		"providers_by_backend": byBackend,
		"default_provider":     def,
	})
}
