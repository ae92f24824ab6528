package models

import (
	"errors"
	"time"
)

// ReminderType identifies which kind of entity a schedule belongs to.
type ReminderType string

const (
	ReminderProjectDeadline ReminderType = "project_deadline"
	ReminderInvoicePayment  ReminderType = "invoice_payment"
	ReminderTaskDue         ReminderType = "task_due"
	ReminderClientFollowup  ReminderType = "client_followup"
)

// ReminderStatus is the lifecycle state of one schedule entry.
// Sent, cancelled and failed are terminal.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderCancelled ReminderStatus = "cancelled"
	ReminderFailed    ReminderStatus = "failed"
)

// EscalationRule is one additional fire time expressed as an offset in days
// relative to the target date. Negative offsets fire before the target.
type EscalationRule struct {
	OffsetDays int    `json:"offset_days"`
	Channel    string `json:"channel,omitempty"`
	Template   string `json:"template,omitempty"`
}

// ReminderConfig describes when and how reminders for one target date fire.
type ReminderConfig struct {
	DaysBefore      []int            `json:"days_before,omitempty"`
	DaysAfter       []int            `json:"days_after,omitempty"`
	EscalationRules []EscalationRule `json:"escalation_rules,omitempty"`
	Channel         string           `json:"channel"`
	Template        string           `json:"template"`
}

// ReminderSchedule is one persisted, armed reminder. The in-process timer
// handle is transient scheduling metadata rebuilt from these records on
// startup; the record is the source of truth.
type ReminderSchedule struct {
	ID            string         `json:"id"        validate:"required"`
	Type          ReminderType   `json:"type"      validate:"required"`
	EntityID      string         `json:"entity_id" validate:"required"`
	ScheduledAt   time.Time      `json:"scheduled_at"`
	Config        ReminderConfig `json:"config"`
	Status        ReminderStatus `json:"status"`
	Attempts      int            `json:"attempts"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ErrInvalidReminderType is returned when an unknown reminder type is supplied.
var ErrInvalidReminderType = errors.New("invalid reminder type")

// ParseReminderType validates a raw reminder type string.
func ParseReminderType(raw string) (ReminderType, error) {
	switch ReminderType(raw) {
	case ReminderProjectDeadline, ReminderInvoicePayment, ReminderTaskDue, ReminderClientFollowup:
		return ReminderType(raw), nil
	}

	return "", ErrInvalidReminderType
}
