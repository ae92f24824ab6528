// Package protocol defines the contracts between the workflow engine and its
// pluggable action implementations.
package protocol

import (
	"context"
	"log/slog"

	"github.com/billhawk/billhawk/pkg/models"
)

// Action is one executable automation step.
type Action interface {
	// Execute runs the action against the execution context and returns an
	// optional result recorded on the execution.
	Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error)

	// Validate checks the action's configuration.
	Validate(ctx context.Context) error
}

// ActionFactory builds actions of one type from rule configuration.
type ActionFactory interface {
	// ID returns the action type this factory builds.
	ID() models.ActionType

	// Create builds an action from its rule configuration.
	Create(config map[string]any) (Action, error)
}
