// Package service holds the reconciliation engine and the chat service. The
// engine is the only writer of ledger state: both the asynchronous webhook
// path and the synchronous verify path converge on its credit step, which is
// idempotent at (user, gateway payment id) granularity.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/chatpay/internal/domain"
	"github.com/punchamoorthee/chatpay/internal/gateway"
)

var (
	creditsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatpay_wallet_credits_applied_total",
		Help: "Ledger credits committed for captured payments",
	})

	creditsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatpay_wallet_credits_skipped_total",
		Help: "Credits skipped, labeled by reason",
	}, []string{"reason"})
)

var (
	ErrValidation = errors.New("validation failed")

	vpaPattern = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z0-9]{2,64}$`)
)

// ValidVPA reports whether s is a well-formed UPI virtual payment address.
func ValidVPA(s string) bool { return vpaPattern.MatchString(s) }

// shortID returns n hex characters of a fresh UUID, for client-facing ids.
func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// Ledger is the durable balance store the engine mutates.
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (*domain.UserBalance, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal, description, referenceID, referenceType string) (*domain.BalanceTransaction, error)
	Debit(ctx context.Context, userID string, amount decimal.Decimal, description, referenceID, referenceType string) (*domain.BalanceTransaction, error)
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.BalanceTransaction, error)
	HasReference(ctx context.Context, userID, referenceID string) (bool, error)
	SufficientBalance(ctx context.Context, userID string, amount decimal.Decimal) (bool, error)
}

// Payments is the payment tracking store plus the webhook dedup table.
type Payments interface {
	CreatePayment(ctx context.Context, p *domain.PaymentTransaction) error
	GetByTrackingID(ctx context.Context, trackingID string) (*domain.PaymentTransaction, error)
	GetByOrderID(ctx context.Context, orderID string) (*domain.PaymentTransaction, error)
	ApplyEvent(ctx context.Context, orderID, eventID, newStatus string, allowedFrom []string, paymentID, errorMessage string) (*domain.PaymentTransaction, error)
	ClaimEvent(ctx context.Context, eventID, eventType, orderID string) error
	MarkEventProcessed(ctx context.Context, eventID string) error
	MarkEventFailed(ctx context.Context, eventID string, cause error) error
}

// Gateway is the remote payment provider.
type Gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, amount decimal.Decimal, receipt string, notes map[string]string) (*gateway.Order, error)
	FetchOrder(ctx context.Context, orderID string) (*gateway.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
	CreatePaymentLink(ctx context.Context, amount decimal.Decimal, description, customerName string, notes map[string]string) (*gateway.PaymentLink, error)
}

// WalletService is the reconciliation engine.
type WalletService struct {
	ledger       Ledger
	payments     Payments
	gateway      Gateway
	refundDebits bool
	logger       *slog.Logger
}

func NewWalletService(ledger Ledger, payments Payments, gw Gateway, refundDebits bool, logger *slog.Logger) *WalletService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WalletService{
		ledger:       ledger,
		payments:     payments,
		gateway:      gw,
		refundDebits: refundDebits,
		logger:       logger,
	}
}

// GetWallet returns the balance plus the N most recent transactions.
func (s *WalletService) GetWallet(ctx context.Context, userID string, recent int) (*domain.WalletResponse, error) {
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	txs := []domain.BalanceTransaction{}
	if recent > 0 {
		if txs, err = s.ledger.ListTransactions(ctx, userID, recent, 0); err != nil {
			return nil, err
		}
	}
	return &domain.WalletResponse{
		UserID:             balance.UserID,
		Balance:            balance.Balance,
		LastUpdated:        balance.UpdatedAt,
		RecentTransactions: txs,
	}, nil
}

// ListTransactions returns paginated history, newest first.
func (s *WalletService) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.BalanceTransaction, error) {
	return s.ledger.ListTransactions(ctx, userID, limit, offset)
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than 0", ErrValidation)
	}
	if amount.GreaterThan(domain.MaxTopUpAmount) {
		return fmt.Errorf("%w: amount exceeds UPI limit of Rs. 2,00,000", ErrValidation)
	}
	return nil
}

// CreateTopUpOrder creates a gateway order whose notes tag it as a wallet
// top-up for userID. The notes travel with the order and are re-read by both
// credit paths, so the tag, not the caller, decides who gets credited.
func (s *WalletService) CreateTopUpOrder(ctx context.Context, userID string, amount decimal.Decimal) (*domain.CreateOrderResponse, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	receipt := "RCPT_" + strings.ToUpper(shortID(12))
	notes := map[string]string{
		domain.NotePaymentType: domain.PaymentTypeTopUp,
		domain.NoteUserID:      userID,
		"amount":               amount.String(),
		"created_via":          "wallet_api",
	}

	order, err := s.gateway.CreateOrder(ctx, amount, receipt, notes)
	if err != nil {
		return nil, err
	}

	s.logger.Info("top-up order created", "user_id", userID, "order_id", order.ID, "amount", amount)
	return &domain.CreateOrderResponse{
		OrderID:  order.ID,
		Amount:   amount,
		Currency: order.Currency,
		Status:   order.Status,
		Receipt:  receipt,
		KeyID:    s.gateway.KeyID(),
	}, nil
}

// creditTopUp applies the capture-and-credit effect shared by the webhook
// and verify paths. It is keyed by the gateway payment id: a committed
// credit with the same reference short-circuits, and the ledger's unique
// reference index catches the race where both paths pass the pre-check
// concurrently.
func (s *WalletService) creditTopUp(ctx context.Context, userID string, amount decimal.Decimal, paymentID, description string) (bool, error) {
	already, err := s.ledger.HasReference(ctx, userID, paymentID)
	if err != nil {
		return false, err
	}
	if already {
		creditsSkipped.WithLabelValues("already_credited").Inc()
		s.logger.Info("payment already credited, skipping", "user_id", userID, "payment_id", paymentID)
		return false, nil
	}

	_, err = s.ledger.Credit(ctx, userID, amount, description, paymentID, domain.RefTypePayment)
	if errors.Is(err, domain.ErrDuplicateReference) {
		creditsSkipped.WithLabelValues("duplicate_reference").Inc()
		s.logger.Info("payment already credited, skipping", "user_id", userID, "payment_id", paymentID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	creditsApplied.Inc()
	s.logger.Info("wallet balance credited", "user_id", userID, "payment_id", paymentID, "amount", amount)
	return true, nil
}

// VerifyAndCredit is the synchronous recovery path: it fetches the
// authoritative payment status from the gateway and, when the payment is
// captured and its order notes tag it as a top-up for this exact user,
// performs the same idempotent credit the webhook path performs.
func (s *WalletService) VerifyAndCredit(ctx context.Context, userID, paymentID, orderID string) (*domain.VerifyPaymentResponse, error) {
	payment, err := s.gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if payment.Status != "captured" {
		return &domain.VerifyPaymentResponse{
			Success:       false,
			Message:       fmt.Sprintf("Payment not captured yet. Status: %s", payment.Status),
			PaymentStatus: payment.Status,
		}, nil
	}

	order, err := s.gateway.FetchOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	amount := gateway.FromPaise(payment.Amount)
	// Purpose-tag rule: only credit when the order says top-up AND its
	// embedded user id matches the user being credited.
	if order.Notes[domain.NotePaymentType] != domain.PaymentTypeTopUp ||
		order.Notes[domain.NoteUserID] != userID || !amount.IsPositive() {
		s.logger.Warn("payment verification mismatch",
			"user_id", userID, "payment_id", paymentID,
			"payment_type", order.Notes[domain.NotePaymentType],
			"noted_user_id", order.Notes[domain.NoteUserID])
		return &domain.VerifyPaymentResponse{
			Success:       false,
			Message:       "Payment details do not match wallet top-up request",
			PaymentStatus: payment.Status,
		}, nil
	}

	credited, err := s.creditTopUp(ctx, userID, amount,
		paymentID, fmt.Sprintf("Wallet top-up via verified payment %s", paymentID))
	if err != nil {
		return nil, err
	}

	resp := &domain.VerifyPaymentResponse{
		Success:         true,
		PaymentID:       paymentID,
		OrderID:         orderID,
		PaymentStatus:   payment.Status,
		BalanceCredited: credited,
	}
	if credited {
		resp.AmountCredited = amount
		resp.Message = fmt.Sprintf("Payment verified and %s credited to wallet", amount)
	} else {
		resp.Message = "Payment already credited"
	}
	return resp, nil
}

// CreateUPIPayment starts the peer-to-peer collect flow: a gateway order, a
// UPI-only payment link, a direct UPI intent URL, and a tracking record in
// status "created".
func (s *WalletService) CreateUPIPayment(ctx context.Context, req domain.CollectRequest) (*domain.CollectResponse, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if !ValidVPA(req.PayerVPA) || !ValidVPA(req.BeneficiaryVPA) {
		return nil, fmt.Errorf("%w: invalid UPI VPA format", ErrValidation)
	}

	trackingID := "track_" + shortID(8)
	receipt := "receipt_" + shortID(12)
	notes := map[string]string{
		"payer_vpa":        req.PayerVPA,
		"beneficiary_vpa":  req.BeneficiaryVPA,
		"beneficiary_name": req.BeneficiaryName,
		"description":      req.Description,
		"tracking_id":      trackingID,
	}

	order, err := s.gateway.CreateOrder(ctx, req.Amount, receipt, notes)
	if err != nil {
		return nil, err
	}

	link, err := s.gateway.CreatePaymentLink(ctx, req.Amount, req.Description, req.BeneficiaryName, notes)
	if err != nil {
		return nil, err
	}

	record := &domain.PaymentTransaction{
		TrackingID:      trackingID,
		OrderID:         order.ID,
		PaymentLinkID:   link.ID,
		PaymentLinkURL:  link.ShortURL,
		UPIIntentURL:    upiIntentURL(req.BeneficiaryVPA, req.BeneficiaryName, req.Amount, trackingID, req.Description),
		Amount:          req.Amount,
		PayerVPA:        req.PayerVPA,
		BeneficiaryVPA:  req.BeneficiaryVPA,
		BeneficiaryName: req.BeneficiaryName,
		Description:     req.Description,
		Status:          domain.PaymentStatusCreated,
	}
	if err := s.payments.CreatePayment(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("UPI payment request created",
		"tracking_id", trackingID, "order_id", order.ID, "payment_link_id", link.ID)
	return &domain.CollectResponse{
		Success:      true,
		PaymentID:    link.ID,
		OrderID:      order.ID,
		Status:       record.Status,
		Message:      fmt.Sprintf("UPI payment request created for %s", req.BeneficiaryName),
		TrackingID:   trackingID,
		PaymentLink:  link.ShortURL,
		UPIIntentURL: record.UPIIntentURL,
	}, nil
}

// PaymentStatus returns the tracked state of a UPI payment attempt.
func (s *WalletService) PaymentStatus(ctx context.Context, trackingID string) (*domain.PaymentTransaction, error) {
	return s.payments.GetByTrackingID(ctx, trackingID)
}

// ValidateVPA checks the structural validity of a VPA.
func (s *WalletService) ValidateVPA(_ context.Context, vpa string) *domain.VPAValidationResponse {
	if !ValidVPA(vpa) {
		return &domain.VPAValidationResponse{Valid: false, VPA: vpa, Error: "Invalid VPA format"}
	}
	return &domain.VPAValidationResponse{Valid: true, VPA: vpa, AccountHolderName: "Account Holder"}
}

// upiIntentURL builds an NPCI-format intent link:
// upi://pay?pa=<vpa>&pn=<name>&tr=<ref>&am=<amount>&cu=INR&tn=<note>
func upiIntentURL(payeeVPA, payeeName string, amount decimal.Decimal, reference, note string) string {
	params := []string{
		"pa=" + url.QueryEscape(payeeVPA),
		"pn=" + url.QueryEscape(payeeName),
		"tr=" + url.QueryEscape(reference),
		"am=" + amount.String(),
		"cu=INR",
		"tn=" + url.QueryEscape(note),
	}
	return "upi://pay?" + strings.Join(params, "&")
}
