package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect builds a pgx pool and verifies connectivity, retrying the initial
// ping with exponential backoff so the server survives a database that is
// still starting up.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	err = backoff.Retry(func() error {
		return pool.Ping(ctx)
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS user_balances (
		user_id    TEXT PRIMARY KEY,
		balance    NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS balance_transactions (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		amount           NUMERIC(14,2) NOT NULL CHECK (amount > 0),
		description      TEXT NOT NULL DEFAULT '',
		reference_id     TEXT NOT NULL DEFAULT '',
		reference_type   TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_balance_tx_user_date
		ON balance_transactions (user_id, created_at DESC)`,
	// One committed credit per (user, payment reference). This is the safety
	// net beneath the event-id dedup: the webhook and verify paths cannot
	// both credit the same payment.
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_balance_tx_payment_ref
		ON balance_transactions (user_id, reference_id)
		WHERE reference_type = 'payment'`,
	`CREATE TABLE IF NOT EXISTS payment_transactions (
		tracking_id      TEXT PRIMARY KEY,
		order_id         TEXT NOT NULL,
		payment_link_id  TEXT NOT NULL DEFAULT '',
		payment_link_url TEXT NOT NULL DEFAULT '',
		upi_intent_url   TEXT NOT NULL DEFAULT '',
		payment_id       TEXT NOT NULL DEFAULT '',
		amount           NUMERIC(14,2) NOT NULL,
		payer_vpa        TEXT NOT NULL DEFAULT '',
		beneficiary_vpa  TEXT NOT NULL DEFAULT '',
		beneficiary_name TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL DEFAULT 'created',
		error_message    TEXT NOT NULL DEFAULT '',
		processed_events TEXT[] NOT NULL DEFAULT '{}',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_tx_order
		ON payment_transactions (order_id)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		event_id         TEXT PRIMARY KEY,
		event_type       TEXT NOT NULL,
		order_id         TEXT NOT NULL DEFAULT '',
		received_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at     TIMESTAMPTZ,
		processing_error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id         BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE,
		user_id    TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id             BIGSERIAL PRIMARY KEY,
		session_id     TEXT NOT NULL,
		role           TEXT NOT NULL,
		content        TEXT NOT NULL,
		image_filename TEXT NOT NULL DEFAULT '',
		tokens_used    INT NOT NULL DEFAULT 0,
		response_time  DOUBLE PRECISION NOT NULL DEFAULT 0,
		model_used     TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_session
		ON chat_messages (session_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS api_usage (
		id            BIGSERIAL PRIMARY KEY,
		session_id    TEXT NOT NULL DEFAULT '',
		user_id       TEXT NOT NULL DEFAULT '',
		endpoint      TEXT NOT NULL,
		tokens_used   INT NOT NULL DEFAULT 0,
		response_time DOUBLE PRECISION NOT NULL DEFAULT 0,
		status        TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// InitSchema creates all tables and indexes if they do not exist yet.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema init failed: %w", err)
		}
	}
	return nil
}
