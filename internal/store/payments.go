package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/chatpay/internal/domain"
)

// PaymentStore owns the payment_transactions state machine rows and the
// webhook_events claim table.
type PaymentStore struct {
	db *pgxpool.Pool
}

func NewPaymentStore(db *pgxpool.Pool) *PaymentStore {
	return &PaymentStore{db: db}
}

const paymentColumns = `tracking_id, order_id, payment_link_id, payment_link_url, upi_intent_url,
	payment_id, amount::text, payer_vpa, beneficiary_vpa, beneficiary_name,
	description, status, error_message, processed_events, created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.PaymentTransaction, error) {
	var p domain.PaymentTransaction
	var amountStr string
	err := row.Scan(&p.TrackingID, &p.OrderID, &p.PaymentLinkID, &p.PaymentLinkURL, &p.UPIIntentURL,
		&p.PaymentID, &amountStr, &p.PayerVPA, &p.BeneficiaryVPA, &p.BeneficiaryName,
		&p.Description, &p.Status, &p.ErrorMessage, &p.ProcessedEvents, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("amount scan failed: %w", err)
	}
	return &p, nil
}

// CreatePayment inserts a new tracking record with status "created".
func (s *PaymentStore) CreatePayment(ctx context.Context, p *domain.PaymentTransaction) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO payment_transactions
			(tracking_id, order_id, payment_link_id, payment_link_url, upi_intent_url,
			 amount, payer_vpa, beneficiary_vpa, beneficiary_name, description, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		p.TrackingID, p.OrderID, p.PaymentLinkID, p.PaymentLinkURL, p.UPIIntentURL,
		p.Amount, p.PayerVPA, p.BeneficiaryVPA, p.BeneficiaryName, p.Description, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("payment insert failed: %w", err)
	}
	return nil
}

// GetByTrackingID returns the payment record for a client-facing tracking id.
func (s *PaymentStore) GetByTrackingID(ctx context.Context, trackingID string) (*domain.PaymentTransaction, error) {
	p, err := scanPayment(s.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payment_transactions WHERE tracking_id = $1`, trackingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payment query failed: %w", err)
	}
	return p, nil
}

// GetByOrderID returns the payment record for a gateway order id.
func (s *PaymentStore) GetByOrderID(ctx context.Context, orderID string) (*domain.PaymentTransaction, error) {
	p, err := scanPayment(s.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payment_transactions WHERE order_id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payment query failed: %w", err)
	}
	return p, nil
}

// ApplyEvent advances the payment state machine for the record owning
// orderID. The transition, the duplicate check, and the recording of the
// event id are one conditional UPDATE: the row changes only if the current
// status is in allowedFrom and eventID has not already been appended to
// processed_events. A concurrent identical delivery therefore cannot slip
// between check and mark.
//
// Returns the updated record, or domain.ErrNotFound when no record owns the
// order, domain.ErrDuplicateEvent when the exact event id was already
// applied, and domain.ErrStaleTransition when the status precondition fails.
func (s *PaymentStore) ApplyEvent(ctx context.Context, orderID, eventID, newStatus string, allowedFrom []string, paymentID, errorMessage string) (*domain.PaymentTransaction, error) {
	p, err := scanPayment(s.db.QueryRow(ctx,
		`UPDATE payment_transactions
		 SET status = $3,
		     payment_id = CASE WHEN $4 <> '' THEN $4 ELSE payment_id END,
		     error_message = CASE WHEN $5 <> '' THEN $5 ELSE error_message END,
		     processed_events = array_append(processed_events, $2),
		     updated_at = now()
		 WHERE order_id = $1
		   AND status = ANY($6)
		   AND NOT (processed_events @> ARRAY[$2])
		 RETURNING `+paymentColumns,
		orderID, eventID, newStatus, paymentID, errorMessage, allowedFrom))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("payment event update failed: %w", err)
	}

	// The conditional update matched nothing: classify why.
	existing, getErr := s.GetByOrderID(ctx, orderID)
	if getErr != nil {
		return nil, getErr
	}
	for _, applied := range existing.ProcessedEvents {
		if applied == eventID {
			return existing, domain.ErrDuplicateEvent
		}
	}
	return existing, domain.ErrStaleTransition
}

// ClaimEvent records one sighting of a webhook delivery against the event id
// primary key. Exactly one in-flight delivery of a given event id holds the
// claim: a replay of a processed or still-queued event returns
// domain.ErrDuplicateEvent, while a redelivery of an event whose processing
// failed re-takes the claim so the gateway's retries can heal it.
func (s *PaymentStore) ClaimEvent(ctx context.Context, eventID, eventType, orderID string) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO webhook_events (event_id, event_type, order_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (event_id) DO UPDATE
		 SET received_at = now(), processing_error = ''
		 WHERE webhook_events.processed_at IS NULL
		   AND webhook_events.processing_error <> ''`,
		eventID, eventType, orderID)
	if err != nil {
		return fmt.Errorf("event claim failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateEvent
	}
	return nil
}

// MarkEventProcessed stamps a claimed event as fully applied.
func (s *PaymentStore) MarkEventProcessed(ctx context.Context, eventID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE webhook_events SET processed_at = now(), processing_error = '' WHERE event_id = $1`,
		eventID)
	if err != nil {
		return fmt.Errorf("event update failed: %w", err)
	}
	return nil
}

// MarkEventFailed records a processing failure; a later redelivery of the
// same event id can then re-take the claim via ClaimEvent.
func (s *PaymentStore) MarkEventFailed(ctx context.Context, eventID string, cause error) error {
	_, err := s.db.Exec(ctx,
		`UPDATE webhook_events SET processing_error = $2 WHERE event_id = $1`,
		eventID, cause.Error())
	if err != nil {
		return fmt.Errorf("event update failed: %w", err)
	}
	return nil
}
