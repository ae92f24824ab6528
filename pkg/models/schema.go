package models

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// actionConfigSchemas maps each action type to the JSON schema its
// configuration must satisfy. Validated when rules are loaded so a malformed
// rule is rejected before it ever matches a trigger.
var actionConfigSchemas = map[ActionType]map[string]any{
	ActionSendEmail: {
		"type":     "object",
		"required": []any{"template"},
		"properties": map[string]any{
			"template":  map[string]any{"type": "string", "minLength": 1},
			"recipient": map[string]any{"type": "string"},
			"subject":   map[string]any{"type": "string"},
		},
	},
	ActionSendSMS: {
		"type":     "object",
		"required": []any{"template"},
		"properties": map[string]any{
			"template": map[string]any{"type": "string", "minLength": 1},
			"phone":    map[string]any{"type": "string"},
		},
	},
	ActionCreateTask: {
		"type":     "object",
		"required": []any{"name"},
		"properties": map[string]any{
			"name":       map[string]any{"type": "string", "minLength": 1},
			"project_id": map[string]any{"type": "string"},
			"priority":   map[string]any{"type": "string", "enum": []any{"low", "medium", "high"}},
			"due_in_days": map[string]any{"type": "number"},
		},
	},
	ActionUpdateStatus: {
		"type":     "object",
		"required": []any{"entity_type", "new_status"},
		"properties": map[string]any{
			"entity_type": map[string]any{"type": "string", "enum": []any{"invoice", "project", "task"}},
			"new_status":  map[string]any{"type": "string", "minLength": 1},
		},
	},
	ActionSendNotification: {
		"type":     "object",
		"required": []any{"message"},
		"properties": map[string]any{
			"message":   map[string]any{"type": "string", "minLength": 1},
			"recipient": map[string]any{"type": "string"},
		},
	},
	ActionWebhook: {
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url":    map[string]any{"type": "string", "minLength": 1},
			"method": map[string]any{"type": "string", "enum": []any{"GET", "POST", "PUT", "PATCH"}},
			"headers": map[string]any{"type": "object"},
		},
	},
	// Extension points take any configuration.
	ActionGenerateInvoice: {"type": "object"},
	ActionApplyLateFee:    {"type": "object"},
}

// ValidateActionConfig checks an action's configuration against its schema.
func ValidateActionConfig(actionType ActionType, config map[string]any) error {
	schema, ok := actionConfigSchemas[actionType]
	if !ok {
		return fmt.Errorf("action %q: %w", actionType, ErrUnknownActionType)
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("action %q configuration invalid: %s", actionType, strings.Join(descriptions, "; "))
	}

	return nil
}

// ValidateRule runs full enum plus configuration validation on one rule.
func ValidateRule(rule *AutomationRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	for i, action := range rule.Actions {
		if err := ValidateActionConfig(action.Type, action.Config); err != nil {
			return fmt.Errorf("rule %s: action %d: %w", rule.ID, i, err)
		}
	}

	return nil
}
