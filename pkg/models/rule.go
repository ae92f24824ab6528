package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TriggerType identifies the domain event a rule listens for.
type TriggerType string

const (
	TriggerPaymentReceived  TriggerType = "payment_received"
	TriggerPaymentFailed    TriggerType = "payment_failed"
	TriggerInvoiceSent      TriggerType = "invoice_sent"
	TriggerInvoiceOverdue   TriggerType = "invoice_overdue"
	TriggerProjectDeadline  TriggerType = "project_deadline_approaching"
	TriggerTaskDue          TriggerType = "task_due_approaching"
	TriggerReminderDue      TriggerType = "reminder_due"
	TriggerInvoiceGenerated TriggerType = "invoice_generated"
)

// ConditionOperator is the closed set of comparison operators a rule
// condition may use.
type ConditionOperator string

const (
	OpEq       ConditionOperator = "eq"
	OpNe       ConditionOperator = "ne"
	OpGt       ConditionOperator = "gt"
	OpLt       ConditionOperator = "lt"
	OpGte      ConditionOperator = "gte"
	OpLte      ConditionOperator = "lte"
	OpContains ConditionOperator = "contains"
	OpIn       ConditionOperator = "in"
)

// ActionType is the closed set of action kinds the engine can execute.
// GenerateInvoice and ApplyLateFee are recognized extension points that
// currently execute as no-ops.
type ActionType string

const (
	ActionSendEmail        ActionType = "send_email"
	ActionSendSMS          ActionType = "send_sms"
	ActionCreateTask       ActionType = "create_task"
	ActionUpdateStatus     ActionType = "update_status"
	ActionSendNotification ActionType = "send_notification"
	ActionWebhook          ActionType = "webhook"
	ActionGenerateInvoice  ActionType = "generate_invoice"
	ActionApplyLateFee     ActionType = "apply_late_fee"
)

// TriggerSpec binds a rule to one trigger type with optional configuration.
type TriggerSpec struct {
	Type   TriggerType    `json:"type" validate:"required"`
	Config map[string]any `json:"config,omitempty"`
}

// Condition is one field comparison evaluated against trigger data.
type Condition struct {
	Field    string            `json:"field"    validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required"`
	Value    any               `json:"value"`
}

// ActionSpec is one configured action in a rule's ordered action list.
type ActionSpec struct {
	Type   ActionType     `json:"type" validate:"required"`
	Config map[string]any `json:"config,omitempty"`
}

// AutomationRule is a persisted trigger/condition/action definition.
// Read-mostly; evaluated per matching trigger event.
type AutomationRule struct {
	ID          string       `json:"id"      validate:"required"`
	Name        string       `json:"name"    validate:"required,min=3"`
	Description string       `json:"description"`
	Trigger     TriggerSpec  `json:"trigger" validate:"required"`
	Conditions  []Condition  `json:"conditions"`
	Actions     []ActionSpec `json:"actions" validate:"min=1,dive"`
	IsActive    bool         `json:"is_active"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

var (
	// ErrUnknownOperator is returned when a condition carries an operator
	// outside the closed set.
	ErrUnknownOperator = errors.New("unknown condition operator")

	// ErrUnknownActionType is returned when a rule references an action
	// kind the engine does not model.
	ErrUnknownActionType = errors.New("unknown action type")

	// ErrUnknownTriggerType is returned when a rule references a trigger
	// kind the engine does not model.
	ErrUnknownTriggerType = errors.New("unknown trigger type")
)

// Validate checks the closed enums so malformed rules surface at load time
// rather than at execution time.
func (r *AutomationRule) Validate() error {
	switch r.Trigger.Type {
	case TriggerPaymentReceived, TriggerPaymentFailed, TriggerInvoiceSent,
		TriggerInvoiceOverdue, TriggerProjectDeadline, TriggerTaskDue,
		TriggerReminderDue, TriggerInvoiceGenerated:
	default:
		return fmt.Errorf("rule %s: trigger %q: %w", r.ID, r.Trigger.Type, ErrUnknownTriggerType)
	}

	for i, c := range r.Conditions {
		switch c.Operator {
		case OpEq, OpNe, OpGt, OpLt, OpGte, OpLte, OpContains, OpIn:
		default:
			return fmt.Errorf("rule %s: condition %d: %q: %w", r.ID, i, c.Operator, ErrUnknownOperator)
		}
	}

	for i, a := range r.Actions {
		switch a.Type {
		case ActionSendEmail, ActionSendSMS, ActionCreateTask, ActionUpdateStatus,
			ActionSendNotification, ActionWebhook, ActionGenerateInvoice, ActionApplyLateFee:
		default:
			return fmt.Errorf("rule %s: action %d: %q: %w", r.ID, i, a.Type, ErrUnknownActionType)
		}
	}

	return nil
}

// Evaluate applies the operator to a trigger-data value. Comparisons are
// numeric when both sides parse as numbers, string otherwise.
func (c Condition) Evaluate(actual any) (bool, error) {
	switch c.Operator {
	case OpEq:
		return compareEqual(actual, c.Value), nil
	case OpNe:
		return !compareEqual(actual, c.Value), nil
	case OpGt, OpLt, OpGte, OpLte:
		left, lok := toFloat(actual)
		right, rok := toFloat(c.Value)

		if !lok || !rok {
			return false, fmt.Errorf("operator %s requires numeric operands, got %T and %T", c.Operator, actual, c.Value)
		}

		switch c.Operator {
		case OpGt:
			return left > right, nil
		case OpLt:
			return left < right, nil
		case OpGte:
			return left >= right, nil
		default:
			return left <= right, nil
		}
	case OpContains:
		return strings.Contains(toString(actual), toString(c.Value)), nil
	case OpIn:
		list, ok := c.Value.([]any)
		if !ok {
			return false, fmt.Errorf("operator in requires a list value, got %T", c.Value)
		}

		for _, candidate := range list {
			if compareEqual(actual, candidate) {
				return true, nil
			}
		}

		return false, nil
	}

	return false, fmt.Errorf("%q: %w", c.Operator, ErrUnknownOperator)
}

func compareEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}

	return toString(a) == toString(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	}

	return 0, false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", v)
}
