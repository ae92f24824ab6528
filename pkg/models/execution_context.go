package models

// ExecutionContext carries the data one rule execution runs against. Actions
// read trigger data from it and record their results into ActionResults.
type ExecutionContext struct {
	ExecutionID   string         `json:"execution_id"`
	RuleID        string         `json:"rule_id"`
	TriggerType   TriggerType    `json:"trigger_type"`
	EntityID      string         `json:"entity_id"`
	TriggerData   map[string]any `json:"trigger_data"`
	ActionResults map[string]any `json:"action_results,omitempty"`
}

// Field resolves a trigger-data field by name. The entity id is always
// addressable as "entity_id".
func (c *ExecutionContext) Field(name string) (any, bool) {
	if name == "entity_id" {
		return c.EntityID, true
	}

	value, ok := c.TriggerData[name]

	return value, ok
}
