// Package events defines the domain events the billing core publishes on the
// event bus. The workflow engine subscribes to these and matches them against
// persisted automation rules.
package events

import (
	"time"

	"github.com/billhawk/billhawk/pkg/models"
)

type EventType string

// Topic carries every billing domain event.
const Topic = "billhawk.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	PaymentReceivedEvent EventType = "payment.received"
	PaymentFailedEvent   EventType = "payment.failed"
	InvoiceSentEvent     EventType = "invoice.sent"
	InvoiceOverdueEvent  EventType = "invoice.overdue"
	ReminderDueEvent     EventType = "reminder.due"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	EntityID  string         `json:"entity_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

func (e BaseEvent) GetType() EventType {
	return e.Type
}

func (e BaseEvent) GetEntityID() string {
	return e.EntityID
}

func (e BaseEvent) GetData() map[string]any {
	return e.Data
}

// PaymentReceived fires when webhook ingestion settles a payment.
type PaymentReceived struct {
	BaseEvent

	InvoiceID  string  `json:"invoice_id"`
	Gateway    string  `json:"gateway"`
	PaymentID  string  `json:"payment_id"`
	PaidAmount float64 `json:"paid_amount"`
}

// PaymentFailed fires when a provider reports a failed or expired payment.
type PaymentFailed struct {
	BaseEvent

	InvoiceID string `json:"invoice_id"`
	Gateway   string `json:"gateway"`
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason,omitempty"`
}

// InvoiceOverdue fires exactly once per sent->overdue transition.
type InvoiceOverdue struct {
	BaseEvent

	InvoiceID string    `json:"invoice_id"`
	ClientID  string    `json:"client_id"`
	DueDate   time.Time `json:"due_date"`
	Amount    float64   `json:"amount"`
}

// InvoiceSent fires when an invoice moves from draft to sent.
type InvoiceSent struct {
	BaseEvent

	InvoiceID string `json:"invoice_id"`
	ClientID  string `json:"client_id"`
}

// ReminderDue fires when a reminder schedule's timer executes.
type ReminderDue struct {
	BaseEvent

	ScheduleID   string              `json:"schedule_id"`
	ReminderType models.ReminderType `json:"reminder_type"`
}

// TriggerFor maps a domain event type to the rule trigger vocabulary.
func TriggerFor(eventType EventType) (models.TriggerType, bool) {
	switch eventType {
	case PaymentReceivedEvent:
		return models.TriggerPaymentReceived, true
	case PaymentFailedEvent:
		return models.TriggerPaymentFailed, true
	case InvoiceSentEvent:
		return models.TriggerInvoiceSent, true
	case InvoiceOverdueEvent:
		return models.TriggerInvoiceOverdue, true
	case ReminderDueEvent:
		return models.TriggerReminderDue, true
	}

	return "", false
}
