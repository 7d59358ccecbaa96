// Package gateway is the thin adapter to the Razorpay payment API. It treats
// the gateway as an untrusted, possibly-slow remote dependency: every call
// carries a bounded timeout, no retries are performed, and non-2xx responses
// surface as *Error for the caller to classify.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Error is a gateway-level failure: a transport error, timeout, or non-2xx
// response. Body is the upstream response body and must never be forwarded
// to clients verbatim.
type Error struct {
	StatusCode int
	Body       string
	Op         string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("gateway %s failed: %s", e.Op, e.Body)
	}
	return fmt.Sprintf("gateway %s failed: status %d", e.Op, e.StatusCode)
}

// Order is a gateway order as returned by the orders API.
type Order struct {
	ID        string            `json:"id"`
	Amount    int64             `json:"amount"` // paise
	Currency  string            `json:"currency"`
	Receipt   string            `json:"receipt"`
	Status    string            `json:"status"`
	Notes     map[string]string `json:"notes"`
	CreatedAt int64             `json:"created_at"`
}

// Payment is a gateway payment as returned by the payments API.
type Payment struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	Amount     int64  `json:"amount"` // paise
	Currency   string `json:"currency"`
	Status     string `json:"status"`
	Method     string `json:"method"`
	VPA        string `json:"vpa"`
	CapturedAt int64  `json:"captured_at"`
	CreatedAt  int64  `json:"created_at"`
}

// PaymentLink is a hosted payment page created via the payment-links API.
type PaymentLink struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
	Status   string `json:"status"`
}

// Client talks to the Razorpay REST API with basic auth.
type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

func NewClient(baseURL, keyID, keySecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// KeyID returns the public key id, which clients need to open the gateway
// checkout.
func (c *Client) KeyID() string { return c.keyID }

// ToPaise converts a rupee amount to the integer paise the wire format uses.
func ToPaise(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

// FromPaise converts integer paise back to a rupee amount.
func FromPaise(paise int64) decimal.Decimal {
	return decimal.NewFromInt(paise).Div(decimal.NewFromInt(100))
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway request encode failed: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("gateway request build failed: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Body: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Op: op, Body: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("gateway response decode failed: %w", err)
		}
	}
	return nil
}

// CreateOrder creates a gateway order for amount rupees with the given
// receipt and notes metadata.
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, receipt string, notes map[string]string) (*Order, error) {
	payload := map[string]any{
		"amount":   ToPaise(amount),
		"currency": "INR",
		"receipt":  receipt,
		"notes":    notes,
	}
	var order Order
	if err := c.do(ctx, "order create", http.MethodPost, "/orders", payload, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// FetchOrder reads an order, including the notes metadata attached at
// creation time.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, "order fetch", http.MethodGet, "/orders/"+orderID, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// FetchPayment reads the authoritative status of a payment.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var payment Payment
	if err := c.do(ctx, "payment fetch", http.MethodGet, "/payments/"+paymentID, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// CreatePaymentLink creates a hosted UPI-only payment page.
func (c *Client) CreatePaymentLink(ctx context.Context, amount decimal.Decimal, description, customerName string, notes map[string]string) (*PaymentLink, error) {
	payload := map[string]any{
		"amount":      ToPaise(amount),
		"currency":    "INR",
		"description": description,
		"customer": map[string]any{
			"name": customerName,
		},
		"notify": map[string]any{
			"sms":   true,
			"email": false,
		},
		"notes": notes,
		"options": map[string]any{
			"checkout": map[string]any{
				"method": map[string]any{
					"upi":        true,
					"card":       false,
					"netbanking": false,
					"wallet":     false,
				},
			},
		},
	}
	var link PaymentLink
	if err := c.do(ctx, "payment link create", http.MethodPost, "/payment_links", payload, &link); err != nil {
		return nil, err
	}
	return &link, nil
}
