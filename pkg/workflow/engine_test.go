package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/persistence"
	"github.com/billhawk/billhawk/pkg/persistence/file"
	"github.com/billhawk/billhawk/pkg/protocol"
	"github.com/billhawk/billhawk/pkg/registry"
)

// recordingAction counts executions and optionally fails.
type recordingAction struct {
	calls *int
	err   error
}

func (a *recordingAction) Execute(_ context.Context, _ models.ExecutionContext, _ *slog.Logger) (any, error) {
	*a.calls++
	if a.err != nil {
		return nil, a.err
	}

	return map[string]any{"ok": true}, nil
}

func (a *recordingAction) Validate(_ context.Context) error { return nil }

type recordingFactory struct {
	actionType models.ActionType
	calls      int
	err        error
}

func (f *recordingFactory) ID() models.ActionType { return f.actionType }

func (f *recordingFactory) Create(_ map[string]any) (protocol.Action, error) {
	return &recordingAction{calls: &f.calls, err: f.err}, nil
}

type engineFixture struct {
	engine  *Engine
	store   persistence.Persistence
	email   *recordingFactory
	webhook *recordingFactory
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := file.NewPersistence(t.TempDir())

	email := &recordingFactory{actionType: models.ActionSendEmail}
	webhook := &recordingFactory{actionType: models.ActionWebhook}

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(email)
	reg.RegisterAction(webhook)

	engine := NewEngine(store.AutomationRules(), store.WorkflowExecutions(), store.AutomationLogs(), reg, logger)

	return &engineFixture{engine: engine, store: store, email: email, webhook: webhook}
}

func (f *engineFixture) seedRule(t *testing.T, rule *models.AutomationRule) {
	t.Helper()
	require.NoError(t, f.store.AutomationRules().Save(context.Background(), rule))
}

func overdueRule(id string, conditions []models.Condition, actions ...models.ActionSpec) *models.AutomationRule {
	if len(actions) == 0 {
		actions = []models.ActionSpec{{Type: models.ActionSendEmail, Config: map[string]any{"template": "overdue"}}}
	}

	return &models.AutomationRule{
		ID:         id,
		Name:       "overdue rule " + id,
		Trigger:    models.TriggerSpec{Type: models.TriggerInvoiceOverdue},
		Conditions: conditions,
		Actions:    actions,
		IsActive:   true,
	}
}

func TestTrigger_RunsMatchingRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedRule(t, overdueRule("r1", nil))
	f.seedRule(t, &models.AutomationRule{
		ID:       "other-trigger",
		Name:     "payment received rule",
		Trigger:  models.TriggerSpec{Type: models.TriggerPaymentReceived},
		Actions:  []models.ActionSpec{{Type: models.ActionSendEmail, Config: map[string]any{"template": "receipt"}}},
		IsActive: true,
	})
	f.seedRule(t, &models.AutomationRule{
		ID:      "inactive",
		Name:    "inactive overdue rule",
		Trigger: models.TriggerSpec{Type: models.TriggerInvoiceOverdue},
		Actions: []models.ActionSpec{{Type: models.ActionSendEmail, Config: map[string]any{"template": "overdue"}}},
	})

	executions, err := f.engine.Trigger(ctx, models.TriggerInvoiceOverdue, "inv-1", map[string]any{"amount": 100.0})
	require.NoError(t, err)
	require.Len(t, executions, 1)

	assert.Equal(t, "r1", executions[0].RuleID)
	assert.Equal(t, models.ExecutionCompleted, executions[0].Status)
	assert.Equal(t, []models.ActionType{models.ActionSendEmail}, executions[0].ExecutedActions)
	assert.Equal(t, 1, f.email.calls)
}

func TestTrigger_ConditionMatch(t *testing.T) {
	tests := []struct {
		name        string
		amount      float64
		wantActions int
	}{
		{"above threshold runs actions", 150, 1},
		{"below threshold skips actions", 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			f.seedRule(t, overdueRule("r1", []models.Condition{
				{Field: "amount", Operator: models.OpGt, Value: 100.0},
			}))

			executions, err := f.engine.Trigger(ctx, models.TriggerInvoiceOverdue, "inv-1", map[string]any{"amount": tt.amount})
			require.NoError(t, err)
			require.Len(t, executions, 1, "a condition miss still opens and completes an execution")

			assert.Equal(t, models.ExecutionCompleted, executions[0].Status)
			assert.Len(t, executions[0].ExecutedActions, tt.wantActions)
			assert.Equal(t, tt.wantActions, f.email.calls)
		})
	}
}

func TestTrigger_AbsentFieldDoesNotMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedRule(t, overdueRule("r1", []models.Condition{
		{Field: "days_overdue", Operator: models.OpGt, Value: 7.0},
	}))

	executions, err := f.engine.Trigger(ctx, models.TriggerInvoiceOverdue, "inv-1", map[string]any{"amount": 100.0})
	require.NoError(t, err)
	require.Len(t, executions, 1)

	assert.Empty(t, executions[0].ExecutedActions)
	assert.Zero(t, f.email.calls)
}

func TestTrigger_ActionFailureDoesNotStopRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.email.err = errors.New("smtp unreachable")

	f.seedRule(t, overdueRule("r1", nil,
		models.ActionSpec{Type: models.ActionSendEmail, Config: map[string]any{"template": "overdue"}},
		models.ActionSpec{Type: models.ActionWebhook, Config: map[string]any{"url": "https://hooks.example.com/x"}},
	))

	executions, err := f.engine.Trigger(ctx, models.TriggerInvoiceOverdue, "inv-1", nil)
	require.NoError(t, err)
	require.Len(t, executions, 1)

	execution := executions[0]
	assert.Equal(t, models.ExecutionCompleted, execution.Status)
	assert.Equal(t, []models.ActionType{models.ActionWebhook}, execution.ExecutedActions)
	assert.Contains(t, execution.ErrorMessage, "smtp unreachable")
	assert.Equal(t, 1, f.webhook.calls)
}

func TestTrigger_FansOutToEveryMatchingRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedRule(t, overdueRule("r1", nil))
	f.seedRule(t, overdueRule("r2", nil))

	executions, err := f.engine.Trigger(ctx, models.TriggerInvoiceOverdue, "inv-1", nil)
	require.NoError(t, err)
	assert.Len(t, executions, 2)
	assert.Equal(t, 2, f.email.calls)
}

func TestTrigger_PersistsExecutions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedRule(t, overdueRule("r1", nil))

	executions, err := f.engine.Trigger(ctx, models.TriggerInvoiceOverdue, "inv-1", map[string]any{"amount": 100.0})
	require.NoError(t, err)
	require.Len(t, executions, 1)

	stored, err := f.store.WorkflowExecutions().GetByID(ctx, executions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, stored.Status)
	assert.Equal(t, "inv-1", stored.EntityID)
	require.NotNil(t, stored.CompletedAt)
}

func TestTrigger_ConditionErrorCompletesWithError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedRule(t, overdueRule("r1", []models.Condition{
		{Field: "amount", Operator: models.OpIn, Value: 100.0},
	}))

	executions, err := f.engine.Trigger(ctx, models.TriggerInvoiceOverdue, "inv-1", map[string]any{"amount": 100.0})
	require.NoError(t, err)
	require.Len(t, executions, 1)

	assert.Equal(t, models.ExecutionCompleted, executions[0].Status)
	assert.Empty(t, executions[0].ExecutedActions)
	assert.NotEmpty(t, executions[0].ErrorMessage)
}
