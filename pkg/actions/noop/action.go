// Package noop provides placeholder actions for the generate_invoice and
// apply_late_fee extension points. Rules may reference them today; they are
// recognized, logged, and do nothing.
package noop

import (
	"context"
	"log/slog"

	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/protocol"
)

type Action struct {
	actionType models.ActionType
}

func NewAction(actionType models.ActionType) *Action {
	return &Action{actionType: actionType}
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger.InfoContext(ctx, "Extension point action invoked, nothing to do",
		"action_type", a.actionType, "entity_id", executionCtx.EntityID)

	return map[string]any{"skipped": true}, nil
}

func (a *Action) Validate(_ context.Context) error {
	return nil
}

// Factory builds one no-op extension point keyed by its action type.
type Factory struct {
	Type models.ActionType
}

func (f *Factory) ID() models.ActionType {
	return f.Type
}

func (f *Factory) Create(_ map[string]any) (protocol.Action, error) {
	return NewAction(f.Type), nil
}
