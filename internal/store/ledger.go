package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/chatpay/internal/domain"
)

// LedgerStore owns the user_balances and balance_transactions tables. All
// money movement goes through Credit and Debit; balances are only ever
// updated together with an appended transaction row, inside one database
// transaction.
type LedgerStore struct {
	db *pgxpool.Pool
}

func NewLedgerStore(db *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{db: db}
}

// GetBalance reads the user's balance, lazily creating a zero row on first
// access. Absence is never an error.
func (s *LedgerStore) GetBalance(ctx context.Context, userID string) (*domain.UserBalance, error) {
	_, err := s.db.Exec(ctx,
		`INSERT INTO user_balances (user_id, balance) VALUES ($1, 0)
		 ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, fmt.Errorf("balance upsert failed: %w", err)
	}

	var ub domain.UserBalance
	var balanceStr string
	err = s.db.QueryRow(ctx,
		`SELECT user_id, balance::text, created_at, updated_at
		 FROM user_balances WHERE user_id = $1`, userID,
	).Scan(&ub.UserID, &balanceStr, &ub.CreatedAt, &ub.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("balance query failed: %w", err)
	}
	if ub.Balance, err = decimal.NewFromString(balanceStr); err != nil {
		return nil, fmt.Errorf("balance scan failed: %w", err)
	}
	return &ub, nil
}

// Credit atomically adds amount to the user's balance and appends a credit
// transaction row. The transaction runs at the default READ COMMITTED level:
// the upsert-on-conflict increment serializes concurrent credits on the
// balance row without serialization aborts, so both land.
//
// A credit with referenceType "payment" is additionally guarded by a unique
// (user_id, reference_id) index; a second credit for the same payment rolls
// back and returns domain.ErrDuplicateReference.
func (s *LedgerStore) Credit(ctx context.Context, userID string, amount decimal.Decimal, description, referenceID, referenceType string) (*domain.BalanceTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive, got %s", amount)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	rec := &domain.BalanceTransaction{
		ID:            "tx_" + uuid.NewString(),
		UserID:        userID,
		Type:          domain.TxTypeCredit,
		Amount:        amount,
		Description:   description,
		ReferenceID:   referenceID,
		ReferenceType: referenceType,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO balance_transactions (id, user_id, transaction_type, amount, description, reference_id, reference_type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		rec.ID, userID, rec.Type, amount, description, referenceID, referenceType,
	).Scan(&rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateReference
		}
		return nil, fmt.Errorf("transaction insert failed: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO user_balances (user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE
		 SET balance = user_balances.balance + EXCLUDED.balance, updated_at = now()`,
		userID, amount)
	if err != nil {
		return nil, fmt.Errorf("balance increment failed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return rec, nil
}

// Debit subtracts amount from the user's balance under a row lock and
// appends a debit transaction row. Returns domain.ErrInsufficientFunds
// without any mutation when the balance does not cover the amount. The
// transaction runs at the default READ COMMITTED level: the FOR UPDATE read
// serializes concurrent debits, and a debit that resumes after a committed
// writer sees the fresh balance instead of aborting.
func (s *LedgerStore) Debit(ctx context.Context, userID string, amount decimal.Decimal, description, referenceID, referenceType string) (*domain.BalanceTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("debit amount must be positive, got %s", amount)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var balanceStr string
	err = tx.QueryRow(ctx,
		`SELECT balance::text FROM user_balances WHERE user_id = $1 FOR UPDATE`,
		userID).Scan(&balanceStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInsufficientFunds
		}
		return nil, fmt.Errorf("balance lock failed: %w", err)
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("balance scan failed: %w", err)
	}
	if balance.LessThan(amount) {
		return nil, domain.ErrInsufficientFunds
	}

	rec := &domain.BalanceTransaction{
		ID:            "tx_" + uuid.NewString(),
		UserID:        userID,
		Type:          domain.TxTypeDebit,
		Amount:        amount,
		Description:   description,
		ReferenceID:   referenceID,
		ReferenceType: referenceType,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO balance_transactions (id, user_id, transaction_type, amount, description, reference_id, reference_type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		rec.ID, userID, rec.Type, amount, description, referenceID, referenceType,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("transaction insert failed: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE user_balances SET balance = balance - $1, updated_at = now() WHERE user_id = $2`,
		amount, userID)
	if err != nil {
		return nil, fmt.Errorf("balance decrement failed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return rec, nil
}

// ListTransactions returns the user's transaction log, newest first.
func (s *LedgerStore) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.BalanceTransaction, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, transaction_type, amount::text, description, reference_id, reference_type, created_at
		 FROM balance_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("transaction query failed: %w", err)
	}
	defer rows.Close()

	txs := []domain.BalanceTransaction{}
	for rows.Next() {
		var t domain.BalanceTransaction
		var amountStr string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &amountStr, &t.Description, &t.ReferenceID, &t.ReferenceType, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("transaction scan failed: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("amount scan failed: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// HasReference reports whether a committed payment credit already exists for
// (userID, referenceID). The verify path uses this as a cheap pre-check; the
// unique index inside Credit remains the authoritative guard.
func (s *LedgerStore) HasReference(ctx context.Context, userID, referenceID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM balance_transactions
			WHERE user_id = $1 AND reference_id = $2 AND reference_type = 'payment'
		)`, userID, referenceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("reference query failed: %w", err)
	}
	return exists, nil
}

// SufficientBalance reports whether the user's balance covers amount.
func (s *LedgerStore) SufficientBalance(ctx context.Context, userID string, amount decimal.Decimal) (bool, error) {
	var balanceStr string
	err := s.db.QueryRow(ctx,
		`SELECT balance::text FROM user_balances WHERE user_id = $1`, userID,
	).Scan(&balanceStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("balance query failed: %w", err)
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return false, fmt.Errorf("balance scan failed: %w", err)
	}
	return balance.GreaterThanOrEqual(amount), nil
}
