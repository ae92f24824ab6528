// Package models defines the core domain models for the billing lifecycle engine.
package models

import "time"

// PaymentLinkStatus represents the lifecycle state of a provider-hosted payment link.
type PaymentLinkStatus string

const (
	PaymentLinkActive            PaymentLinkStatus = "active"
	PaymentLinkCompleted         PaymentLinkStatus = "completed"
	PaymentLinkCancelled         PaymentLinkStatus = "cancelled"
	PaymentLinkRefunded          PaymentLinkStatus = "refunded"
	PaymentLinkPartiallyRefunded PaymentLinkStatus = "partially_refunded"
)

// IsTerminal reports whether the link can no longer change through webhook ingestion.
func (s PaymentLinkStatus) IsTerminal() bool {
	switch s {
	case PaymentLinkCompleted, PaymentLinkCancelled, PaymentLinkRefunded, PaymentLinkPartiallyRefunded:
		return true
	case PaymentLinkActive:
		return false
	}

	return false
}

// PaymentLink is the persisted, authoritative record of one checkout link.
// InvoiceID and ClientEmail are set at creation and never mutated; status and
// paid amount change only through webhook ingestion or refunds.
type PaymentLink struct {
	ID          string            `json:"id"           validate:"required"`
	Gateway     string            `json:"gateway"      validate:"required"`
	URL         string            `json:"url"`
	Amount      float64           `json:"amount"       validate:"required,gt=0"`
	Currency    string            `json:"currency"     validate:"required,len=3"`
	Description string            `json:"description"`
	InvoiceID   string            `json:"invoice_id"   validate:"required"`
	ClientEmail string            `json:"client_email" validate:"required,email"`
	ClientName  string            `json:"client_name"`
	Status      PaymentLinkStatus `json:"status"`
	PaidAmount  float64           `json:"paid_amount"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	PaidAt      *time.Time        `json:"paid_at,omitempty"`
}

// PaymentState is the provider-side view of a payment. It is produced on
// demand by querying a gateway and is never persisted; the PaymentLink record
// stays authoritative for application state.
type PaymentState string

const (
	PaymentPending    PaymentState = "pending"
	PaymentProcessing PaymentState = "processing"
	PaymentCompleted  PaymentState = "completed"
	PaymentFailed     PaymentState = "failed"
	PaymentCancelled  PaymentState = "cancelled"
)

type PaymentStatus struct {
	ID            string         `json:"id"`
	Status        PaymentState   `json:"status"`
	Amount        float64        `json:"amount"`
	PaidAmount    float64        `json:"paid_amount"`
	PaymentMethod string         `json:"payment_method,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
	PaidAt        *time.Time     `json:"paid_at,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}
