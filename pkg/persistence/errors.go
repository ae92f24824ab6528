// Package persistence provides standardized error types for record-store operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrPaymentLinkNotFound indicates a payment link was not found by the given identifier.
	ErrPaymentLinkNotFound = errors.New("payment link not found")

	// ErrInvoiceNotFound indicates an invoice was not found by the given identifier.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrReminderNotFound indicates a reminder schedule was not found by the given identifier.
	ErrReminderNotFound = errors.New("reminder schedule not found")

	// ErrRuleNotFound indicates an automation rule was not found by the given identifier.
	ErrRuleNotFound = errors.New("automation rule not found")

	// ErrExecutionNotFound indicates a workflow execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("workflow execution not found")

	// ErrLogNotFound indicates an automation log entry was not found by the given identifier.
	ErrLogNotFound = errors.New("automation log entry not found")

	// ErrProjectNotFound indicates a project was not found by the given identifier.
	ErrProjectNotFound = errors.New("project not found")

	// ErrTaskNotFound indicates a task was not found by the given identifier.
	ErrTaskNotFound = errors.New("task not found")

	// ErrClientNotFound indicates a client was not found by the given identifier.
	ErrClientNotFound = errors.New("client not found")

	// ErrTemplateNotFound indicates a notification template was not found by name.
	ErrTemplateNotFound = errors.New("notification template not found")
)

// StoreError wraps record-store failures with operation context.
type StoreError struct {
	Op         string // Operation being performed (e.g. "Save", "GetByID")
	Collection string // Collection being accessed
	Key        string // Record key if applicable
	Err        error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s on %s/%s failed: %v", e.Op, e.Collection, e.Key, e.Err)
	}

	return fmt.Sprintf("%s on %s failed: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a store error with context.
func NewStoreError(op, collection, key string, err error) *StoreError {
	return &StoreError{Op: op, Collection: collection, Key: key, Err: err}
}

// IsNotFound reports whether err is any of the collection not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPaymentLinkNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrReminderNotFound) ||
		errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrProjectNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrTemplateNotFound)
}

// IsPaymentLinkNotFound checks if an error indicates a missing payment link.
func IsPaymentLinkNotFound(err error) bool {
	return errors.Is(err, ErrPaymentLinkNotFound)
}

// IsInvoiceNotFound checks if an error indicates a missing invoice.
func IsInvoiceNotFound(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound)
}

// IsReminderNotFound checks if an error indicates a missing reminder schedule.
func IsReminderNotFound(err error) bool {
	return errors.Is(err, ErrReminderNotFound)
}

// IsRuleNotFound checks if an error indicates a missing automation rule.
func IsRuleNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound)
}
