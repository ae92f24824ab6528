package models

import "time"

// ExecutionStatus is the lifecycle state of a workflow execution.
// An execution completes whether zero or all of its actions succeeded;
// per-action failures are recorded, never fatal to the run.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
)

// WorkflowExecution records one rule match against one trigger occurrence.
// Write-once except for the terminal update.
type WorkflowExecution struct {
	ID              string          `json:"id"      validate:"required"`
	RuleID          string          `json:"rule_id" validate:"required"`
	TriggerType     TriggerType     `json:"trigger_type"`
	EntityID        string          `json:"entity_id"`
	TriggerData     map[string]any  `json:"trigger_data,omitempty"`
	Status          ExecutionStatus `json:"status"`
	ExecutedActions []ActionType    `json:"executed_actions,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// LogStatus classifies an automation log entry.
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogError   LogStatus = "error"
	LogSkipped LogStatus = "skipped"
)

// AutomationLog is an append-only audit record. Every state transition in the
// billing core writes one; entries are never mutated and are pruned after 30
// days by the sweeper.
type AutomationLog struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	EntityID  string    `json:"entity_id"`
	Action    string    `json:"action"`
	Status    LogStatus `json:"status"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
