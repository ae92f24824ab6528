// Package workflow matches domain events against persisted automation rules
// and runs their actions.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/billhawk/billhawk/pkg/eventbus"
	"github.com/billhawk/billhawk/pkg/events"
	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/persistence"
	"github.com/billhawk/billhawk/pkg/registry"
)

// Engine evaluates active rules for each trigger occurrence. A trigger fans
// out to every matching rule; rules and their actions run in definition
// order, and a failed action never stops the remaining ones.
type Engine struct {
	rules      persistence.AutomationRuleRepository
	executions persistence.WorkflowExecutionRepository
	logs       persistence.AutomationLogRepository
	registry   *registry.Registry
	logger     *slog.Logger
}

func NewEngine(
	rules persistence.AutomationRuleRepository,
	executions persistence.WorkflowExecutionRepository,
	logs persistence.AutomationLogRepository,
	reg *registry.Registry,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		rules:      rules,
		executions: executions,
		logs:       logs,
		registry:   reg,
		logger:     logger.With("module", "workflow"),
	}
}

// Trigger runs every active rule bound to triggerType. It returns the
// executions it opened; rule-level failures are logged and do not abort the
// fan-out.
func (e *Engine) Trigger(
	ctx context.Context,
	triggerType models.TriggerType,
	entityID string,
	data map[string]any,
) ([]*models.WorkflowExecution, error) {
	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}

	executions := make([]*models.WorkflowExecution, 0)

	for _, rule := range rules {
		if rule.Trigger.Type != triggerType {
			continue
		}

		execution, err := e.runRule(ctx, rule, triggerType, entityID, data)
		if err != nil {
			e.logger.ErrorContext(ctx, "Rule execution failed",
				"rule_id", rule.ID, "trigger", triggerType, "error", err)

			continue
		}

		if execution != nil {
			executions = append(executions, execution)
		}
	}

	return executions, nil
}

// runRule opens one execution per rule match, evaluates conditions, and runs
// the action list when they pass. The execution completes in every case; a
// condition miss completes it with zero executed actions.
func (e *Engine) runRule(
	ctx context.Context,
	rule *models.AutomationRule,
	triggerType models.TriggerType,
	entityID string,
	data map[string]any,
) (*models.WorkflowExecution, error) {
	execution := &models.WorkflowExecution{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		TriggerType: triggerType,
		EntityID:    entityID,
		TriggerData: data,
		Status:      models.ExecutionRunning,
		StartedAt:   time.Now().UTC(),
	}

	if err := e.executions.Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to open execution for rule %s: %w", rule.ID, err)
	}

	executionCtx := models.ExecutionContext{
		ExecutionID:   execution.ID,
		RuleID:        rule.ID,
		TriggerType:   triggerType,
		EntityID:      entityID,
		TriggerData:   data,
		ActionResults: make(map[string]any),
	}

	var actionErrors []string

	matched, err := e.conditionsMatch(rule, &executionCtx)

	switch {
	case err != nil:
		actionErrors = append(actionErrors, err.Error())
		e.audit(ctx, rule, entityID, models.LogError, err.Error())
	case !matched:
		e.logger.DebugContext(ctx, "Rule conditions not met", "rule_id", rule.ID)
		e.audit(ctx, rule, entityID, models.LogSkipped, "conditions not met")
	default:
		for i, spec := range rule.Actions {
			if err := e.runAction(ctx, spec, &executionCtx); err != nil {
				actionErrors = append(actionErrors, fmt.Sprintf("action %d (%s): %v", i, spec.Type, err))
				e.audit(ctx, rule, entityID, models.LogError, err.Error())

				continue
			}

			execution.ExecutedActions = append(execution.ExecutedActions, spec.Type)
			e.audit(ctx, rule, entityID, models.LogSuccess, string(spec.Type)+" executed")
		}
	}

	// Executions complete even when every action failed; the errors live in
	// the record and the audit log.
	completedAt := time.Now().UTC()
	execution.Status = models.ExecutionCompleted
	execution.CompletedAt = &completedAt
	execution.ErrorMessage = strings.Join(actionErrors, "; ")

	if err := e.executions.Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to close execution %s: %w", execution.ID, err)
	}

	return execution, nil
}

// conditionsMatch evaluates rule conditions in order with short-circuit on
// the first failure. An empty condition list always matches. A condition
// naming an absent field does not match.
func (e *Engine) conditionsMatch(rule *models.AutomationRule, executionCtx *models.ExecutionContext) (bool, error) {
	for _, condition := range rule.Conditions {
		actual, ok := executionCtx.Field(condition.Field)
		if !ok {
			return false, nil
		}

		matched, err := condition.Evaluate(actual)
		if err != nil {
			return false, fmt.Errorf("rule %s: condition on %q: %w", rule.ID, condition.Field, err)
		}

		if !matched {
			return false, nil
		}
	}

	return true, nil
}

func (e *Engine) runAction(ctx context.Context, spec models.ActionSpec, executionCtx *models.ExecutionContext) error {
	action, err := e.registry.CreateAction(spec.Type, spec.Config)
	if err != nil {
		return err
	}

	result, err := action.Execute(ctx, *executionCtx, e.logger)
	if err != nil {
		return err
	}

	executionCtx.ActionResults[string(spec.Type)] = result

	return nil
}

func (e *Engine) audit(ctx context.Context, rule *models.AutomationRule, entityID string, status models.LogStatus, details string) {
	entry := &models.AutomationLog{
		ID:        uuid.NewString(),
		Type:      "workflow",
		EntityID:  entityID,
		Action:    "rule:" + rule.Name,
		Status:    status,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}

	if err := e.logs.Append(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "Failed to write workflow audit entry", "error", err)
	}
}

// BindEventBus subscribes the engine to the domain event stream so published
// billing events drive rule evaluation.
func (e *Engine) BindEventBus(bus eventbus.EventSubscriber) error {
	eventTypes := []events.EventType{
		events.PaymentReceivedEvent,
		events.PaymentFailedEvent,
		events.InvoiceSentEvent,
		events.InvoiceOverdueEvent,
		events.ReminderDueEvent,
	}

	for _, eventType := range eventTypes {
		if err := bus.Handle(eventType, e.handleEvent); err != nil {
			return fmt.Errorf("failed to bind handler for %s: %w", eventType, err)
		}
	}

	return nil
}

func (e *Engine) handleEvent(ctx context.Context, event any) error {
	domainEvent, ok := event.(interface {
		GetType() events.EventType
		GetEntityID() string
		GetData() map[string]any
	})
	if !ok {
		e.logger.WarnContext(ctx, "Dropping event of unexpected shape", "event", fmt.Sprintf("%T", event))

		return nil
	}

	triggerType, ok := events.TriggerFor(domainEvent.GetType())
	if !ok {
		return nil
	}

	_, err := e.Trigger(ctx, triggerType, domainEvent.GetEntityID(), domainEvent.GetData())

	return err
}
