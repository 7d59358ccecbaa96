package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/chatpay/internal/domain"
)

// ChatStore persists sessions, messages and upstream usage records.
type ChatStore struct {
	db *pgxpool.Pool
}

func NewChatStore(db *pgxpool.Pool) *ChatStore {
	return &ChatStore{db: db}
}

func (s *ChatStore) CreateSession(ctx context.Context, sess *domain.ChatSession) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO chat_sessions (session_id, user_id) VALUES ($1, $2)
		 RETURNING id, created_at, updated_at`,
		sess.SessionID, sess.UserID,
	).Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("session insert failed: %w", err)
	}
	return nil
}

func (s *ChatStore) GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	var sess domain.ChatSession
	err := s.db.QueryRow(ctx,
		`SELECT id, session_id, user_id, created_at, updated_at
		 FROM chat_sessions WHERE session_id = $1`, sessionID,
	).Scan(&sess.ID, &sess.SessionID, &sess.UserID, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session query failed: %w", err)
	}
	return &sess, nil
}

// DeleteSession removes a session and all of its messages.
func (s *ChatStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("message delete failed: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM chat_sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("session delete failed: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *ChatStore) AddMessage(ctx context.Context, msg *domain.ChatMessage) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO chat_messages (session_id, role, content, image_filename, tokens_used, response_time, model_used)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		msg.SessionID, msg.Role, msg.Content, msg.ImageFilename, msg.TokensUsed, msg.ResponseTime, msg.ModelUsed,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("message insert failed: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages in creation order.
func (s *ChatStore) ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, role, content, image_filename, tokens_used, response_time, model_used, created_at
		 FROM chat_messages
		 WHERE session_id = $1
		 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("message query failed: %w", err)
	}
	defer rows.Close()

	msgs := []domain.ChatMessage{}
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.ImageFilename,
			&m.TokensUsed, &m.ResponseTime, &m.ModelUsed, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("message scan failed: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *ChatStore) LogUsage(ctx context.Context, u *domain.APIUsage) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO api_usage (session_id, user_id, endpoint, tokens_used, response_time, status, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.SessionID, u.UserID, u.Endpoint, u.TokensUsed, u.ResponseTime, u.Status, u.ErrorMessage)
	if err != nil {
		return fmt.Errorf("usage insert failed: %w", err)
	}
	return nil
}
