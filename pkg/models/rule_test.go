package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		condition Condition
		actual    any
		expected  bool
	}{
		{"eq numeric match", Condition{Field: "amount", Operator: OpEq, Value: 100.0}, 100.0, true},
		{"eq numeric mismatch", Condition{Field: "amount", Operator: OpEq, Value: 100.0}, 99.0, false},
		{"eq accepts int against float", Condition{Field: "amount", Operator: OpEq, Value: 100}, 100.0, true},
		{"eq string match", Condition{Field: "gateway", Operator: OpEq, Value: "stripe"}, "stripe", true},
		{"ne", Condition{Field: "gateway", Operator: OpNe, Value: "stripe"}, "payu", true},
		{"gt true", Condition{Field: "amount", Operator: OpGt, Value: 100.0}, 150.0, true},
		{"gt false", Condition{Field: "amount", Operator: OpGt, Value: 100.0}, 50.0, false},
		{"gt equal is false", Condition{Field: "amount", Operator: OpGt, Value: 100.0}, 100.0, false},
		{"lt", Condition{Field: "amount", Operator: OpLt, Value: 100.0}, 50.0, true},
		{"gte at boundary", Condition{Field: "amount", Operator: OpGte, Value: 100.0}, 100.0, true},
		{"lte above boundary", Condition{Field: "amount", Operator: OpLte, Value: 100.0}, 101.0, false},
		{"contains", Condition{Field: "description", Operator: OpContains, Value: "urgent"}, "urgent invoice", true},
		{"contains miss", Condition{Field: "description", Operator: OpContains, Value: "urgent"}, "regular invoice", false},
		{"in hit", Condition{Field: "gateway", Operator: OpIn, Value: []any{"stripe", "payu"}}, "payu", true},
		{"in miss", Condition{Field: "gateway", Operator: OpIn, Value: []any{"stripe", "payu"}}, "razorpay", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.condition.Evaluate(tt.actual)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestConditionEvaluateErrors(t *testing.T) {
	t.Parallel()

	_, err := Condition{Field: "x", Operator: "matches", Value: "y"}.Evaluate("y")
	assert.ErrorIs(t, err, ErrUnknownOperator)

	_, err = Condition{Field: "x", Operator: OpIn, Value: "not-a-list"}.Evaluate("y")
	assert.Error(t, err)
}

func TestAutomationRuleValidate(t *testing.T) {
	t.Parallel()

	valid := &AutomationRule{
		ID:      "r1",
		Name:    "late fee on overdue",
		Trigger: TriggerSpec{Type: TriggerInvoiceOverdue},
		Conditions: []Condition{
			{Field: "amount", Operator: OpGt, Value: 100.0},
		},
		Actions: []ActionSpec{
			{Type: ActionSendEmail, Config: map[string]any{"template": "overdue_notice"}},
		},
		IsActive: true,
	}
	require.NoError(t, valid.Validate())

	badTrigger := *valid
	badTrigger.Trigger = TriggerSpec{Type: "on_full_moon"}
	assert.ErrorIs(t, badTrigger.Validate(), ErrUnknownTriggerType)

	badOperator := *valid
	badOperator.Conditions = []Condition{{Field: "amount", Operator: "between", Value: 1}}
	assert.ErrorIs(t, badOperator.Validate(), ErrUnknownOperator)

	badAction := *valid
	badAction.Actions = []ActionSpec{{Type: "send_pigeon"}}
	assert.ErrorIs(t, badAction.Validate(), ErrUnknownActionType)
}

func TestValidateActionConfig(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateActionConfig(ActionSendEmail, map[string]any{"template": "welcome"}))

	err := ValidateActionConfig(ActionSendEmail, map[string]any{})
	assert.Error(t, err)

	err = ValidateActionConfig(ActionUpdateStatus, map[string]any{
		"entity_type": "starship",
		"new_status":  "warp",
	})
	assert.Error(t, err)

	require.NoError(t, ValidateActionConfig(ActionUpdateStatus, map[string]any{
		"entity_type": "invoice",
		"new_status":  "sent",
	}))

	// Extension points accept anything.
	require.NoError(t, ValidateActionConfig(ActionApplyLateFee, map[string]any{"percent": 5}))
}
