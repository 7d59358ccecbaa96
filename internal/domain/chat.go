package domain

import "time"

// ChatSession groups messages for one conversation. UserID is optional; it is
// required only when per-message wallet debits are enabled.
type ChatSession struct {
	ID        int64     `json:"-"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one stored turn of a conversation.
type ChatMessage struct {
	ID            int64     `json:"-"`
	SessionID     string    `json:"session_id"`
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	ImageFilename string    `json:"image_filename,omitempty"`
	TokensUsed    int       `json:"tokens_used,omitempty"`
	ResponseTime  float64   `json:"response_time,omitempty"`
	ModelUsed     string    `json:"model_used,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// APIUsage logs one upstream completion call for accounting.
type APIUsage struct {
	ID           int64
	SessionID    string
	UserID       string
	Endpoint     string
	TokensUsed   int
	ResponseTime float64
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
}

// MessageRequest is the inbound chat message payload. Provider selects the
// backend and model in "backend/model" form; empty means the configured
// default.
type MessageRequest struct {
	Message  string `json:"message" validate:"required"`
	Provider string `json:"provider,omitempty"`
}

// MessageResponse is the assistant reply returned to the client.
type MessageResponse struct {
	ID            string `json:"id"`
	Content       string `json:"content"`
	Role          string `json:"role"`
	CreatedAt     string `json:"created_at"`
	ImageFilename string `json:"image_filename,omitempty"`
}

// SessionResponse is returned on session creation.
type SessionResponse struct {
	SessionID string `json:"session_id"`
	CreatedAt string `json:"created_at"`
	ExpiresIn int    `json:"expires_in"`
}

// MessageHistoryResponse wraps the full message log of a session.
type MessageHistoryResponse struct {
	Messages   []ChatMessage `json:"messages"`
	TotalCount int           `json:"total_count"`
}
