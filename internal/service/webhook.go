package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/chatpay/internal/domain"
	"github.com/punchamoorthee/chatpay/internal/gateway"
)

// Webhook accept outcomes, returned verbatim in the HTTP response body.
const (
	StatusAccepted    = "webhook_accepted"
	StatusDuplicate   = "duplicate_event_skipped"
	StatusErrorLogged = "error_logged"
)

var webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chatpay_webhook_events_total",
	Help: "Webhook deliveries, labeled by event type and outcome",
}, []string{"event", "outcome"})

// Verifier authenticates raw webhook bodies.
type Verifier interface {
	Verify(rawBody []byte, signature string) bool
}

// webhookEnvelope is the gateway's event wire format. Only the entity
// matching the event family is populated.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity orderEntity `json:"entity"`
		} `json:"order"`
		Refund struct {
			Entity refundEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"` // paise
	Status           string `json:"status"`
	Method           string `json:"method"`
	ErrorDescription string `json:"error_description"`
}

type orderEntity struct {
	ID         string `json:"id"`
	AmountPaid int64  `json:"amount_paid"` // paise
}

type refundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"` // paise
}

type webhookJob struct {
	eventID  string
	envelope webhookEnvelope
}

// WebhookProcessor receives gateway deliveries, authenticates and
// deduplicates them synchronously, and applies state transitions and ledger
// credits from a background worker. The HTTP response therefore carries no
// guarantee that the credit has landed yet; the verify-payment endpoint is
// the recovery path when async processing fails.
type WebhookProcessor struct {
	verifier Verifier
	payments Payments
	wallet   *WalletService
	gateway  Gateway
	logger   *slog.Logger

	jobs chan webhookJob
	wg   sync.WaitGroup
}

func NewWebhookProcessor(verifier Verifier, payments Payments, wallet *WalletService, gw Gateway, queueSize int, logger *slog.Logger) *WebhookProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &WebhookProcessor{
		verifier: verifier,
		payments: payments,
		wallet:   wallet,
		gateway:  gw,
		logger:   logger,
		jobs:     make(chan webhookJob, queueSize),
	}
}

// Start launches the background worker.
func (p *WebhookProcessor) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for job := range p.jobs {
			p.process(job)
		}
	}()
}

// Close stops intake and drains queued events.
func (p *WebhookProcessor) Close() {
	close(p.jobs)
	p.wg.Wait()
}

// Accept handles one inbound delivery: verify the signature over the raw
// bytes, claim the event id, and enqueue processing. It returns one of the
// Status* outcomes, or domain.ErrInvalidSignature when the delivery must be
// rejected outright.
func (p *WebhookProcessor) Accept(ctx context.Context, rawBody []byte, signature, eventID string) (string, error) {
	if !p.verifier.Verify(rawBody, signature) {
		p.logger.Warn("invalid webhook signature", "event_id", eventID)
		webhookEvents.WithLabelValues("unknown", "bad_signature").Inc()
		return "", domain.ErrInvalidSignature
	}

	var env webhookEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		p.logger.Error("malformed webhook payload", "event_id", eventID, "error", err)
		webhookEvents.WithLabelValues("unknown", "malformed").Inc()
		return StatusErrorLogged, nil
	}

	// Deliveries without an event id cannot be deduplicated; give them a
	// synthetic id so the claim table still records them.
	if eventID == "" {
		eventID = "evt_local_" + uuid.NewString()
		p.logger.Warn("webhook delivery missing event id", "event", env.Event, "assigned", eventID)
	}

	orderID := env.Payload.Payment.Entity.OrderID
	if orderID == "" {
		orderID = env.Payload.Order.Entity.ID
	}

	err := p.payments.ClaimEvent(ctx, eventID, env.Event, orderID)
	if errors.Is(err, domain.ErrDuplicateEvent) {
		p.logger.Info("duplicate webhook event, skipping", "event_id", eventID, "event", env.Event)
		webhookEvents.WithLabelValues(env.Event, "duplicate").Inc()
		return StatusDuplicate, nil
	}
	if err != nil {
		p.logger.Error("webhook event claim failed", "event_id", eventID, "error", err)
		webhookEvents.WithLabelValues(env.Event, "error").Inc()
		return StatusErrorLogged, nil
	}

	select {
	case p.jobs <- webhookJob{eventID: eventID, envelope: env}:
		webhookEvents.WithLabelValues(env.Event, "accepted").Inc()
		return StatusAccepted, nil
	default:
		// Queue saturated: leave the claim row unprocessed for manual
		// replay rather than blocking the gateway's delivery.
		cause := errors.New("webhook queue full")
		if markErr := p.payments.MarkEventFailed(ctx, eventID, cause); markErr != nil {
			p.logger.Error("failed to record webhook overflow", "event_id", eventID, "error", markErr)
		}
		p.logger.Error("webhook queue full, event deferred", "event_id", eventID, "event", env.Event)
		webhookEvents.WithLabelValues(env.Event, "overflow").Inc()
		return StatusErrorLogged, nil
	}
}

// process applies one claimed event. Failures are recorded on the claim row
// and logged with enough context for manual replay; they never propagate
// (the HTTP response was sent long ago).
func (p *WebhookProcessor) process(job webhookJob) {
	ctx := context.Background()
	env := job.envelope

	var err error
	switch env.Event {
	case "payment.captured":
		err = p.handleCaptured(ctx, job.eventID, env.Payload.Payment.Entity)
	case "payment.authorized":
		err = p.transition(ctx, job.eventID, env.Payload.Payment.Entity.OrderID,
			domain.PaymentStatusAuthorized, []string{domain.PaymentStatusCreated},
			env.Payload.Payment.Entity.ID, "")
	case "payment.failed":
		err = p.transition(ctx, job.eventID, env.Payload.Payment.Entity.OrderID,
			domain.PaymentStatusFailed,
			[]string{domain.PaymentStatusCreated, domain.PaymentStatusAuthorized},
			env.Payload.Payment.Entity.ID, env.Payload.Payment.Entity.ErrorDescription)
	case "order.paid":
		err = p.transition(ctx, job.eventID, env.Payload.Order.Entity.ID,
			domain.PaymentStatusPaid,
			[]string{domain.PaymentStatusCreated, domain.PaymentStatusAuthorized, domain.PaymentStatusCompleted},
			"", "")
	case "refund.created":
		err = p.handleRefund(ctx, job.eventID, env.Payload.Refund.Entity, domain.PaymentStatusRefundInitiated)
	case "refund.processed":
		err = p.handleRefund(ctx, job.eventID, env.Payload.Refund.Entity, domain.PaymentStatusRefundCompleted)
	default:
		p.logger.Info("unhandled webhook event type", "event", env.Event, "event_id", job.eventID)
	}

	if err != nil {
		p.logger.Error("webhook processing failed",
			"event", env.Event,
			"event_id", job.eventID,
			"order_id", env.Payload.Payment.Entity.OrderID,
			"error", err)
		webhookEvents.WithLabelValues(env.Event, "failed").Inc()
		if markErr := p.payments.MarkEventFailed(ctx, job.eventID, err); markErr != nil {
			p.logger.Error("failed to record webhook failure", "event_id", job.eventID, "error", markErr)
		}
		return
	}

	webhookEvents.WithLabelValues(env.Event, "processed").Inc()
	if markErr := p.payments.MarkEventProcessed(ctx, job.eventID); markErr != nil {
		p.logger.Error("failed to mark webhook processed", "event_id", job.eventID, "error", markErr)
	}
}

// transition advances the payment record state machine for one event.
// Records that do not exist (plain top-up orders have none), duplicate event
// ids, and stale transitions are logged and dropped, never treated as
// processing failures.
func (p *WebhookProcessor) transition(ctx context.Context, eventID, orderID, newStatus string, allowedFrom []string, paymentID, errorMessage string) error {
	if orderID == "" {
		p.logger.Warn("webhook event without order id, dropped", "event_id", eventID)
		return nil
	}
	rec, err := p.payments.ApplyEvent(ctx, orderID, eventID, newStatus, allowedFrom, paymentID, errorMessage)
	switch {
	case err == nil:
		p.logger.Info("payment state updated",
			"tracking_id", rec.TrackingID, "order_id", orderID, "status", newStatus, "event_id", eventID)
		return nil
	case errors.Is(err, domain.ErrNotFound):
		p.logger.Info("no tracking record for order", "order_id", orderID, "event_id", eventID)
		return nil
	case errors.Is(err, domain.ErrDuplicateEvent):
		p.logger.Info("event already applied to record", "order_id", orderID, "event_id", eventID)
		return err
	case errors.Is(err, domain.ErrStaleTransition):
		p.logger.Warn("out-of-order event dropped",
			"order_id", orderID, "event_id", eventID, "status", rec.Status, "incoming", newStatus)
		return nil
	default:
		return err
	}
}

// handleCaptured applies the completed transition and, for wallet top-up
// orders, credits the ledger. The credit is keyed by the gateway payment id
// so the verify path cannot double it.
func (p *WebhookProcessor) handleCaptured(ctx context.Context, eventID string, entity paymentEntity) error {
	err := p.transition(ctx, eventID, entity.OrderID, domain.PaymentStatusCompleted,
		[]string{domain.PaymentStatusCreated, domain.PaymentStatusAuthorized},
		entity.ID, "")
	if errors.Is(err, domain.ErrDuplicateEvent) {
		// This exact event was already fully applied, credit included.
		return nil
	}
	if err != nil {
		return err
	}

	order, err := p.gateway.FetchOrder(ctx, entity.OrderID)
	if err != nil {
		return fmt.Errorf("order notes fetch failed: %w", err)
	}

	amount := gateway.FromPaise(entity.Amount)
	userID := order.Notes[domain.NoteUserID]
	if order.Notes[domain.NotePaymentType] != domain.PaymentTypeTopUp || userID == "" || !amount.IsPositive() {
		p.logger.Info("captured payment is not a wallet top-up",
			"order_id", entity.OrderID, "payment_id", entity.ID, "event_id", eventID)
		return nil
	}

	_, err = p.wallet.creditTopUp(ctx, userID, amount,
		entity.ID, fmt.Sprintf("Wallet top-up via payment %s", entity.ID))
	if err != nil {
		return fmt.Errorf("credit for user %s failed: %w", userID, err)
	}
	return nil
}

// handleRefund records refund lifecycle events. Whether a completed refund
// also debits the wallet is a deployment decision (refundDebits); by default
// refunds are logged only.
func (p *WebhookProcessor) handleRefund(ctx context.Context, eventID string, entity refundEntity, newStatus string) error {
	amount := gateway.FromPaise(entity.Amount)
	p.logger.Info("refund event",
		"refund_id", entity.ID, "payment_id", entity.PaymentID, "amount", amount, "status", newStatus, "event_id", eventID)

	if !p.wallet.refundDebits || newStatus != domain.PaymentStatusRefundCompleted {
		return nil
	}

	payment, err := p.gateway.FetchPayment(ctx, entity.PaymentID)
	if err != nil {
		return fmt.Errorf("refund payment fetch failed: %w", err)
	}
	order, err := p.gateway.FetchOrder(ctx, payment.OrderID)
	if err != nil {
		return fmt.Errorf("refund order fetch failed: %w", err)
	}

	userID := order.Notes[domain.NoteUserID]
	if order.Notes[domain.NotePaymentType] != domain.PaymentTypeTopUp || userID == "" {
		return nil
	}

	_, err = p.wallet.ledger.Debit(ctx, userID, amount,
		fmt.Sprintf("Refund of payment %s", entity.PaymentID), entity.ID, domain.RefTypeAdjustment)
	if errors.Is(err, domain.ErrInsufficientFunds) {
		p.logger.Error("refund reversal exceeds balance, manual adjustment required",
			"user_id", userID, "refund_id", entity.ID, "amount", amount)
		return nil
	}
	return err
}
