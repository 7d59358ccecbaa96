package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxTopUpAmount is the UPI per-transaction ceiling in rupees.
var MaxTopUpAmount = decimal.NewFromInt(200000)

// Transaction types.
const (
	TxTypeCredit = "credit"
	TxTypeDebit  = "debit"
)

// Reference types recorded on balance transactions.
const (
	RefTypePayment    = "payment"
	RefTypeUsage      = "usage"
	RefTypeAdjustment = "adjustment"
)

// UserBalance is the current wallet balance for one user. Rows are created
// lazily on first read or first credit; absence means zero.
type UserBalance struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"last_updated"`
}

// BalanceTransaction is one immutable ledger movement. The set of rows for a
// user, summed with credits positive and debits negative, always equals the
// user's current balance.
type BalanceTransaction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Type          string          `json:"transaction_type"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	ReferenceType string          `json:"reference_type,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// WalletResponse is the unified balance-plus-recent-activity view.
type WalletResponse struct {
	UserID             string               `json:"user_id"`
	Balance            decimal.Decimal      `json:"balance"`
	LastUpdated        time.Time            `json:"last_updated"`
	RecentTransactions []BalanceTransaction `json:"recent_transactions"`
}

// AddBalanceRequest asks for a top-up order of the given rupee amount.
type AddBalanceRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// CreateOrderResponse carries the gateway order the client pays against.
type CreateOrderResponse struct {
	OrderID  string          `json:"order_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	Receipt  string          `json:"receipt,omitempty"`
	KeyID    string          `json:"key_id"`
}

// VerifyPaymentRequest is the client-initiated verification of a payment.
type VerifyPaymentRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
	OrderID   string `json:"order_id" validate:"required"`
}

// VerifyPaymentResponse reports the outcome of verify-and-credit.
type VerifyPaymentResponse struct {
	Success         bool            `json:"success"`
	Message         string          `json:"message"`
	PaymentID       string          `json:"payment_id,omitempty"`
	OrderID         string          `json:"order_id,omitempty"`
	AmountCredited  decimal.Decimal `json:"amount_credited"`
	PaymentStatus   string          `json:"payment_status,omitempty"`
	BalanceCredited bool            `json:"balance_credited"`
}
