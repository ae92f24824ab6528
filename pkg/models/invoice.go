package models

import "time"

// InvoiceStatus represents the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// InvoicePaymentStatus tracks how much of the invoice has been settled.
type InvoicePaymentStatus string

const (
	InvoicePaymentPending InvoicePaymentStatus = "pending"
	InvoicePaymentPartial InvoicePaymentStatus = "partial"
	InvoicePaymentPaid    InvoicePaymentStatus = "paid"
	InvoicePaymentFailed  InvoicePaymentStatus = "failed"
)

type Invoice struct {
	ID             string               `json:"id"         validate:"required"`
	ClientID       string               `json:"client_id"  validate:"required"`
	ProjectID      string               `json:"project_id"`
	Number         string               `json:"number"`
	Currency       string               `json:"currency"`
	Subtotal       float64              `json:"subtotal"`
	TaxAmount      float64              `json:"tax_amount"`
	TotalAmount    float64              `json:"total_amount" validate:"gte=0"`
	PaidAmount     float64              `json:"paid_amount"`
	Status         InvoiceStatus        `json:"status"`
	PaymentStatus  InvoicePaymentStatus `json:"payment_status"`
	DueDate        time.Time            `json:"due_date"`
	LateFeeApplied bool                 `json:"late_fee_applied"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// CanTransition encodes the invoice state machine. Status only flows forward,
// except draft and cancelled which can swap. Overdue is reachable only from
// sent; paid is reachable from any non-cancelled state.
func (i *Invoice) CanTransition(to InvoiceStatus) bool {
	if i.Status == to {
		return false
	}

	switch to {
	case InvoiceDraft:
		return i.Status == InvoiceCancelled
	case InvoiceSent:
		return i.Status == InvoiceDraft
	case InvoiceOverdue:
		return i.Status == InvoiceSent
	case InvoicePaid:
		return i.Status != InvoiceCancelled
	case InvoiceCancelled:
		return i.Status == InvoiceDraft || i.Status == InvoiceSent || i.Status == InvoiceOverdue
	}

	return false
}

// FullyCovered reports whether the paid amount settles the invoice total.
func (i *Invoice) FullyCovered() bool {
	return i.PaidAmount >= i.TotalAmount
}
