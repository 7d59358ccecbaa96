package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses, ordered along the gateway lifecycle. Completed and failed
// are terminal for the capture flow; refund statuses only follow completed.
const (
	PaymentStatusCreated         = "created"
	PaymentStatusAuthorized      = "authorized"
	PaymentStatusCompleted       = "completed"
	PaymentStatusFailed          = "failed"
	PaymentStatusPaid            = "paid"
	PaymentStatusRefundInitiated = "refund_initiated"
	PaymentStatusRefundCompleted = "refund_completed"
)

// Order note keys the reconciliation engine matches on.
const (
	NotePaymentType = "payment_type"
	NoteUserID      = "user_id"

	PaymentTypeTopUp = "balance_topup"
)

// PaymentTransaction tracks one payment attempt initiated through the UPI
// flow, keyed by a client-facing tracking id. ProcessedEvents holds the
// webhook event ids already applied to this record.
type PaymentTransaction struct {
	TrackingID      string          `json:"tracking_id"`
	OrderID         string          `json:"order_id"`
	PaymentLinkID   string          `json:"payment_link_id"`
	PaymentLinkURL  string          `json:"payment_link,omitempty"`
	UPIIntentURL    string          `json:"upi_intent_url,omitempty"`
	PaymentID       string          `json:"payment_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	PayerVPA        string          `json:"payer_vpa"`
	BeneficiaryVPA  string          `json:"beneficiary_vpa"`
	BeneficiaryName string          `json:"beneficiary_name"`
	Description     string          `json:"description,omitempty"`
	Status          string          `json:"status"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ProcessedEvents []string        `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CollectRequest initiates a peer-to-peer UPI payment request.
type CollectRequest struct {
	PayerVPA        string          `json:"payer_vpa" validate:"required,vpa"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description" validate:"required"`
	BeneficiaryVPA  string          `json:"beneficiary_vpa" validate:"required,vpa"`
	BeneficiaryName string          `json:"beneficiary_name" validate:"required"`
}

// CollectResponse reports the created UPI payment request.
type CollectResponse struct {
	Success      bool   `json:"success"`
	PaymentID    string `json:"payment_id,omitempty"`
	OrderID      string `json:"order_id,omitempty"`
	Status       string `json:"status,omitempty"`
	Message      string `json:"message"`
	TrackingID   string `json:"tracking_id,omitempty"`
	PaymentLink  string `json:"payment_link,omitempty"`
	UPIIntentURL string `json:"upi_intent_url,omitempty"`
}

// VPAValidationRequest asks whether a VPA is well-formed.
type VPAValidationRequest struct {
	VPA string `json:"vpa" validate:"required,vpa"`
}

// VPAValidationResponse is the result of VPA validation.
type VPAValidationResponse struct {
	Valid             bool   `json:"valid"`
	VPA               string `json:"vpa"`
	AccountHolderName string `json:"account_holder_name,omitempty"`
	Error             string `json:"error,omitempty"`
}

// WebhookEvent is the dedup claim record for one gateway delivery. A row
// exists from the moment the delivery is accepted; ProcessedAt is set once
// the background processor has fully applied it, and ProcessingError records
// failures for manual replay.
type WebhookEvent struct {
	EventID         string     `json:"event_id"`
	EventType       string     `json:"event_type"`
	OrderID         string     `json:"order_id,omitempty"`
	ReceivedAt      time.Time  `json:"received_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingError string     `json:"processing_error,omitempty"`
}
