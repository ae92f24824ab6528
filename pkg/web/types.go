// Package web provides HTTP request and response types for the billing API.
package web

import (
	"time"

	"github.com/billhawk/billhawk/pkg/models"
)

// CreateLinkRequest is the body for opening a payment link.
type CreateLinkRequest struct {
	Gateway              string         `json:"gateway"      validate:"required"`
	Amount               float64        `json:"amount"       validate:"required,gt=0"`
	Currency             string         `json:"currency"     validate:"required,len=3"`
	Description          string         `json:"description"`
	InvoiceID            string         `json:"invoice_id"   validate:"required"`
	ClientEmail          string         `json:"client_email" validate:"required,email"`
	ClientName           string         `json:"client_name"`
	SuccessURL           string         `json:"success_url,omitempty"  validate:"omitempty,url"`
	CancelURL            string         `json:"cancel_url,omitempty"   validate:"omitempty,url"`
	ExpiresAt            *time.Time     `json:"expires_at,omitempty"`
	AllowPartialPayments bool           `json:"allow_partial_payments"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}

// RefundRequest is the body for issuing a refund. Amount nil means a full
// refund.
type RefundRequest struct {
	Gateway   string   `json:"gateway"    validate:"required"`
	PaymentID string   `json:"payment_id" validate:"required"`
	Amount    *float64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
}

// ScheduleReminderRequest is the body for the administrative scheduling
// endpoint.
type ScheduleReminderRequest struct {
	Type       string                `json:"type"        validate:"required"`
	EntityID   string                `json:"entity_id"   validate:"required"`
	TargetDate time.Time             `json:"target_date" validate:"required"`
	Config     models.ReminderConfig `json:"config"`
}

// LateFeeRuleRequest persists an apply_late_fee automation rule bound to the
// invoice_overdue trigger.
type LateFeeRuleRequest struct {
	Name       string             `json:"name"       validate:"required,min=3"`
	Conditions []models.Condition `json:"conditions"`
	Config     map[string]any     `json:"config"`
}
