package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/chatpay/internal/domain"
	"github.com/punchamoorthee/chatpay/internal/llm"
)

var (
	chatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatpay_chat_requests_total",
		Help: "Chat completion requests, labeled by outcome",
	}, []string{"status"})

	tokensUsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpay_tokens_used_total",
		Help: "Total upstream tokens consumed",
	})
)

// ChatStore persists sessions, messages, and usage records.
type ChatStore interface {
	CreateSession(ctx context.Context, sess *domain.ChatSession) error
	GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error)
	DeleteSession(ctx context.Context, sessionID string) error
	AddMessage(ctx context.Context, msg *domain.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
	LogUsage(ctx context.Context, u *domain.APIUsage) error
}

// ResponseCache is the chat-response cache collaborator.
type ResponseCache interface {
	Get(ctx context.Context, question string) (string, bool)
	Set(ctx context.Context, question, response string, ttl time.Duration)
}

// ChatService brokers completions against the configured backends, with a
// cache-aside on the user's current question and an optional per-message
// wallet debit.
type ChatService struct {
	store       ChatStore
	cache       ResponseCache
	registry    *llm.Registry
	ledger      Ledger
	messageCost decimal.Decimal
	logger      *slog.Logger
}

func NewChatService(store ChatStore, cache ResponseCache, registry *llm.Registry, ledger Ledger, messageCost decimal.Decimal, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		store:       store,
		cache:       cache,
		registry:    registry,
		ledger:      ledger,
		messageCost: messageCost,
		logger:      logger,
	}
}

func (s *ChatService) CreateSession(ctx context.Context, userID string) (*domain.ChatSession, error) {
	sess := &domain.ChatSession{
		SessionID: "sess_" + shortID(12),
		UserID:    userID,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("session created", "session_id", sess.SessionID)
	return sess, nil
}

func (s *ChatService) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info("session deleted", "session_id", sessionID)
	return nil
}

// MessageHistory returns the full stored conversation.
func (s *ChatService) MessageHistory(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, sessionID)
}

// SendMessage runs one conversation turn: assemble history, resolve the
// backend selector, consult the cache, call upstream, persist both sides of
// the turn, and debit the wallet when a per-message cost is configured.
func (s *ChatService) SendMessage(ctx context.Context, sessionID string, req domain.MessageRequest) (*domain.MessageResponse, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkFunds(ctx, sess); err != nil {
		return nil, err
	}

	history, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	messages := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: req.Message})

	return s.complete(ctx, sess, req.Message, "", messages, req.Provider)
}

// SendTextMessage handles the image-annotated variant: the filename is
// stored alongside the user message, and only the current text (no history)
// goes upstream.
func (s *ChatService) SendTextMessage(ctx context.Context, sessionID, message, imageFilename, provider string) (*domain.MessageResponse, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkFunds(ctx, sess); err != nil {
		return nil, err
	}
	return s.complete(ctx, sess, message, imageFilename,
		[]llm.Message{{Role: "user", Content: message}}, provider)
}

func (s *ChatService) checkFunds(ctx context.Context, sess *domain.ChatSession) error {
	if !s.messageCost.IsPositive() {
		return nil
	}
	if sess.UserID == "" {
		return fmt.Errorf("%w: session has no wallet user", ErrValidation)
	}
	ok, err := s.ledger.SufficientBalance(ctx, sess.UserID, s.messageCost)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInsufficientFunds
	}
	return nil
}

func (s *ChatService) complete(ctx context.Context, sess *domain.ChatSession, question, imageFilename string, messages []llm.Message, provider string) (*domain.MessageResponse, error) {
	start := time.Now()
	sel := s.registry.Parse(provider)

	if cached, ok := s.cache.Get(ctx, question); ok {
		s.logger.Info("cache hit for chat completion", "session_id", sess.SessionID)
		s.logUsage(ctx, sess, 0, time.Since(start), "cache_hit", "")
		chatRequests.WithLabelValues("cache_hit").Inc()
		return messageResponse(cached, imageFilename), nil
	}

	client, err := s.registry.Client(sel.Backend)
	if err != nil {
		return nil, err
	}

	completion, err := client.Complete(ctx, sel.Model, messages, 1000, 0.7)
	if err != nil {
		s.logUsage(ctx, sess, 0, time.Since(start), "error", err.Error())
		chatRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	elapsed := time.Since(start)

	s.cache.Set(ctx, question, completion.Content, 0)

	userMsg := &domain.ChatMessage{
		SessionID:     sess.SessionID,
		Role:          "user",
		Content:       question,
		ImageFilename: imageFilename,
	}
	if err := s.store.AddMessage(ctx, userMsg); err != nil {
		s.logger.Error("failed to store user message", "session_id", sess.SessionID, "error", err)
	}
	assistantMsg := &domain.ChatMessage{
		SessionID:    sess.SessionID,
		Role:         "assistant",
		Content:      completion.Content,
		TokensUsed:   completion.TokensUsed,
		ResponseTime: elapsed.Seconds(),
		ModelUsed:    sel.Model,
	}
	if err := s.store.AddMessage(ctx, assistantMsg); err != nil {
		s.logger.Error("failed to store assistant message", "session_id", sess.SessionID, "error", err)
	}

	s.logUsage(ctx, sess, completion.TokensUsed, elapsed, "success", "")
	tokensUsed.Add(float64(completion.TokensUsed))
	chatRequests.WithLabelValues("success").Inc()

	s.debitUsage(ctx, sess)

	s.logger.Info("chat completion successful",
		"session_id", sess.SessionID,
		"backend", sel.Backend.String(),
		"model", sel.Model,
		"tokens_used", completion.TokensUsed,
		"response_time", elapsed.Seconds())
	return messageResponse(completion.Content, imageFilename), nil
}

// debitUsage charges the configured per-message cost. The balance was
// checked before the upstream call; losing the race to a concurrent debit
// here is logged, not surfaced, since the completion was already delivered.
func (s *ChatService) debitUsage(ctx context.Context, sess *domain.ChatSession) {
	if !s.messageCost.IsPositive() || sess.UserID == "" {
		return
	}
	_, err := s.ledger.Debit(ctx, sess.UserID, s.messageCost,
		"Chat message", sess.SessionID, domain.RefTypeUsage)
	if err != nil && !errors.Is(err, domain.ErrInsufficientFunds) {
		s.logger.Error("usage debit failed", "user_id", sess.UserID, "session_id", sess.SessionID, "error", err)
	} else if errors.Is(err, domain.ErrInsufficientFunds) {
		s.logger.Warn("usage debit raced to insufficient funds", "user_id", sess.UserID, "session_id", sess.SessionID)
	}
}

func (s *ChatService) logUsage(ctx context.Context, sess *domain.ChatSession, tokens int, elapsed time.Duration, status, errMsg string) {
	err := s.store.LogUsage(ctx, &domain.APIUsage{
		SessionID:    sess.SessionID,
		UserID:       sess.UserID,
		Endpoint:     "chat",
		TokensUsed:   tokens,
		ResponseTime: elapsed.Seconds(),
		Status:       status,
		ErrorMessage: errMsg,
	})
	if err != nil {
		s.logger.Error("failed to log usage", "session_id", sess.SessionID, "error", err)
	}
}

func messageResponse(content, imageFilename string) *domain.MessageResponse {
	return &domain.MessageResponse{
		ID:            "msg_" + shortID(12),
		Content:       content,
		Role:          "assistant",
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		ImageFilename: imageFilename,
	}
}
