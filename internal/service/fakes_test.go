package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/chatpay/internal/domain"
	"github.com/punchamoorthee/chatpay/internal/gateway"
)

// fakeLedger mirrors the LedgerStore contract in memory: credits and debits
// mutate the balance together with an appended transaction, and payment
// references are unique per user.
type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	txs      []domain.BalanceTransaction
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[string]decimal.Decimal)}
}

func (f *fakeLedger) GetBalance(_ context.Context, userID string) (*domain.UserBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &domain.UserBalance{UserID: userID, Balance: f.balances[userID], UpdatedAt: time.Now()}, nil
}

func (f *fakeLedger) Credit(_ context.Context, userID string, amount decimal.Decimal, description, referenceID, referenceType string) (*domain.BalanceTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if referenceType == domain.RefTypePayment {
		for _, tx := range f.txs {
			if tx.UserID == userID && tx.ReferenceID == referenceID && tx.ReferenceType == domain.RefTypePayment {
				return nil, domain.ErrDuplicateReference
			}
		}
	}
	rec := domain.BalanceTransaction{
		ID:            fmt.Sprintf("tx_%d", len(f.txs)+1),
		UserID:        userID,
		Type:          domain.TxTypeCredit,
		Amount:        amount,
		Description:   description,
		ReferenceID:   referenceID,
		ReferenceType: referenceType,
		CreatedAt:     time.Now(),
	}
	f.txs = append(f.txs, rec)
	f.balances[userID] = f.balances[userID].Add(amount)
	return &rec, nil
}

func (f *fakeLedger) Debit(_ context.Context, userID string, amount decimal.Decimal, description, referenceID, referenceType string) (*domain.BalanceTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[userID].LessThan(amount) {
		return nil, domain.ErrInsufficientFunds
	}
	rec := domain.BalanceTransaction{
		ID:            fmt.Sprintf("tx_%d", len(f.txs)+1),
		UserID:        userID,
		Type:          domain.TxTypeDebit,
		Amount:        amount,
		Description:   description,
		ReferenceID:   referenceID,
		ReferenceType: referenceType,
		CreatedAt:     time.Now(),
	}
	f.txs = append(f.txs, rec)
	f.balances[userID] = f.balances[userID].Sub(amount)
	return &rec, nil
}

func (f *fakeLedger) ListTransactions(_ context.Context, userID string, limit, offset int) ([]domain.BalanceTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.BalanceTransaction{}
	for i := len(f.txs) - 1; i >= 0; i-- {
		if f.txs[i].UserID == userID {
			out = append(out, f.txs[i])
		}
	}
	if offset >= len(out) {
		return []domain.BalanceTransaction{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLedger) HasReference(_ context.Context, userID, referenceID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.txs {
		if tx.UserID == userID && tx.ReferenceID == referenceID && tx.ReferenceType == domain.RefTypePayment {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) SufficientBalance(_ context.Context, userID string, amount decimal.Decimal) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID].GreaterThanOrEqual(amount), nil
}

func (f *fakeLedger) creditCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, tx := range f.txs {
		if tx.UserID == userID && tx.Type == domain.TxTypeCredit {
			n++
		}
	}
	return n
}

// fakePayments mirrors PaymentStore: the state machine rows keyed by order id
// plus the event claim table.
type fakePayments struct {
	mu      sync.Mutex
	records map[string]*domain.PaymentTransaction // by order id
	claims  map[string]*domain.WebhookEvent
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		records: make(map[string]*domain.PaymentTransaction),
		claims:  make(map[string]*domain.WebhookEvent),
	}
}

func (f *fakePayments) CreatePayment(_ context.Context, p *domain.PaymentTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	f.records[p.OrderID] = p
	return nil
}

func (f *fakePayments) GetByTrackingID(_ context.Context, trackingID string) (*domain.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.records {
		if p.TrackingID == trackingID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakePayments) GetByOrderID(_ context.Context, orderID string) (*domain.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.records[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayments) ApplyEvent(_ context.Context, orderID, eventID, newStatus string, allowedFrom []string, paymentID, errorMessage string) (*domain.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.records[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	for _, applied := range p.ProcessedEvents {
		if applied == eventID {
			cp := *p
			return &cp, domain.ErrDuplicateEvent
		}
	}
	allowed := false
	for _, s := range allowedFrom {
		if p.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		cp := *p
		return &cp, domain.ErrStaleTransition
	}
	p.Status = newStatus
	if paymentID != "" {
		p.PaymentID = paymentID
	}
	if errorMessage != "" {
		p.ErrorMessage = errorMessage
	}
	p.ProcessedEvents = append(p.ProcessedEvents, eventID)
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (f *fakePayments) ClaimEvent(_ context.Context, eventID, eventType, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev, ok := f.claims[eventID]; ok {
		// A failed, unprocessed claim is released back to redelivery.
		if ev.ProcessedAt == nil && ev.ProcessingError != "" {
			ev.ProcessingError = ""
			ev.ReceivedAt = time.Now()
			return nil
		}
		return domain.ErrDuplicateEvent
	}
	f.claims[eventID] = &domain.WebhookEvent{
		EventID:    eventID,
		EventType:  eventType,
		OrderID:    orderID,
		ReceivedAt: time.Now(),
	}
	return nil
}

func (f *fakePayments) MarkEventProcessed(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev, ok := f.claims[eventID]; ok {
		now := time.Now()
		ev.ProcessedAt = &now
		ev.ProcessingError = ""
	}
	return nil
}

func (f *fakePayments) MarkEventFailed(_ context.Context, eventID string, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev, ok := f.claims[eventID]; ok {
		ev.ProcessingError = cause.Error()
	}
	return nil
}

// fakeGateway serves canned orders and payments.
type fakeGateway struct {
	mu       sync.Mutex
	orders   map[string]*gateway.Order
	payments map[string]*gateway.Payment
	orderSeq int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		orders:   make(map[string]*gateway.Order),
		payments: make(map[string]*gateway.Payment),
	}
}

func (f *fakeGateway) KeyID() string { return "rzp_test_key" }

func (f *fakeGateway) CreateOrder(_ context.Context, amount decimal.Decimal, receipt string, notes map[string]string) (*gateway.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderSeq++
	order := &gateway.Order{
		ID:       fmt.Sprintf("order_fake%03d", f.orderSeq),
		Amount:   gateway.ToPaise(amount),
		Currency: "INR",
		Receipt:  receipt,
		Status:   "created",
		Notes:    notes,
	}
	f.orders[order.ID] = order
	return order, nil
}

func (f *fakeGateway) FetchOrder(_ context.Context, orderID string) (*gateway.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return nil, &gateway.Error{StatusCode: 400, Op: "order fetch"}
	}
	return order, nil
}

func (f *fakeGateway) FetchPayment(_ context.Context, paymentID string) (*gateway.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment, ok := f.payments[paymentID]
	if !ok {
		return nil, &gateway.Error{StatusCode: 400, Op: "payment fetch"}
	}
	return payment, nil
}

func (f *fakeGateway) CreatePaymentLink(_ context.Context, amount decimal.Decimal, description, customerName string, notes map[string]string) (*gateway.PaymentLink, error) {
	return &gateway.PaymentLink{ID: "plink_fake", ShortURL: "https://rzp.io/l/fake", Status: "created"}, nil
}

// addCapturedPayment registers a captured payment against an order.
func (f *fakeGateway) addCapturedPayment(paymentID, orderID string, amountPaise int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[paymentID] = &gateway.Payment{
		ID:      paymentID,
		OrderID: orderID,
		Amount:  amountPaise,
		Status:  "captured",
		Method:  "upi",
	}
}

// acceptAllVerifier approves every signature; rejectVerifier refuses all.
type acceptAllVerifier struct{}

func (acceptAllVerifier) Verify([]byte, string) bool { return true }

type rejectVerifier struct{}

func (rejectVerifier) Verify([]byte, string) bool { return false }
