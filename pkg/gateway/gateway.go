// Package gateway defines the uniform payment-gateway contract fronting the
// external payment providers, plus the registry that dispatches by name.
package gateway

import (
	"context"
	"time"

	"github.com/billhawk/billhawk/pkg/models"
)

// CreateLinkParams carries everything needed to open a provider-hosted
// checkout link. Amount is in major currency units; each adapter performs its
// own minor-unit conversion.
type CreateLinkParams struct {
	Amount               float64        `json:"amount"       validate:"required,gt=0"`
	Currency             string         `json:"currency"     validate:"required,len=3"`
	Description          string         `json:"description"`
	InvoiceID            string         `json:"invoice_id"   validate:"required"`
	ClientEmail          string         `json:"client_email" validate:"required,email"`
	ClientName           string         `json:"client_name"`
	SuccessURL           string         `json:"success_url,omitempty"`
	CancelURL            string         `json:"cancel_url,omitempty"`
	ExpiresAt            *time.Time     `json:"expires_at,omitempty"`
	AllowPartialPayments bool           `json:"allow_partial_payments"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}

// WebhookEventType is the normalized event vocabulary every adapter maps its
// provider's webhook events onto.
type WebhookEventType string

const (
	EventPaymentCompleted WebhookEventType = "payment_completed"
	EventPaymentFailed    WebhookEventType = "payment_failed"
	EventPaymentExpired   WebhookEventType = "payment_expired"
	EventPaymentDisputed  WebhookEventType = "payment_disputed"
)

// WebhookResult is the normalized outcome of parsing one provider webhook.
type WebhookResult struct {
	EventType  WebhookEventType `json:"event_type"`
	PaymentID  string           `json:"payment_id"`
	Status     string           `json:"status"`
	Amount     float64          `json:"amount,omitempty"`
	PaidAmount float64          `json:"paid_amount,omitempty"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
}

// RefundResult reports a processed refund.
type RefundResult struct {
	RefundID      string  `json:"refund_id"`
	PaymentID     string  `json:"payment_id"`
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
	Status        string  `json:"status"`
}

// Gateway wraps one external payment provider behind the common contract.
// Implementations must embed the invoice id and client email in provider-side
// metadata on link creation so webhooks can be correlated later.
type Gateway interface {
	Name() string
	CreatePaymentLink(ctx context.Context, params CreateLinkParams) (*models.PaymentLink, error)
	ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)
	GetPaymentStatus(ctx context.Context, id string) (*models.PaymentStatus, error)
	RefundPayment(ctx context.Context, id string, amount *float64) (*RefundResult, error)
}
