// Package updatestatus provides the update_status workflow action.
package updatestatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/persistence"
	"github.com/billhawk/billhawk/pkg/protocol"
)

// Configuration errors reported at rule load time.
var (
	ErrEntityTypeMissing = errors.New("missing 'entity_type' in configuration")
	ErrNewStatusMissing  = errors.New("missing 'new_status' in configuration")
	ErrUnknownEntityType = errors.New("unknown entity type")
)

// Action moves the trigger's entity to a new status. Invoice transitions go
// through the invoice state machine and fail when the move is not allowed.
type Action struct {
	EntityType string
	NewStatus  string
	invoices   persistence.InvoiceRepository
	projects   persistence.ProjectRepository
	tasks      persistence.TaskRepository
}

func NewAction(
	config map[string]any,
	invoices persistence.InvoiceRepository,
	projects persistence.ProjectRepository,
	tasks persistence.TaskRepository,
) (*Action, error) {
	entityType, ok := config["entity_type"].(string)
	if !ok || entityType == "" {
		return nil, ErrEntityTypeMissing
	}

	newStatus, ok := config["new_status"].(string)
	if !ok || newStatus == "" {
		return nil, ErrNewStatusMissing
	}

	return &Action{
		EntityType: entityType,
		NewStatus:  newStatus,
		invoices:   invoices,
		projects:   projects,
		tasks:      tasks,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("module", "update_status_action")

	entityID := executionCtx.EntityID

	var err error

	switch a.EntityType {
	case "invoice":
		err = a.updateInvoice(ctx, entityID)
	case "project":
		err = a.updateProject(ctx, entityID)
	case "task":
		err = a.updateTask(ctx, entityID)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownEntityType, a.EntityType)
	}

	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Status updated",
		"entity_type", a.EntityType,
		"entity_id", entityID,
		"new_status", a.NewStatus)

	return map[string]any{"entity_id": entityID, "status": a.NewStatus}, nil
}

func (a *Action) updateInvoice(ctx context.Context, id string) error {
	invoice, err := a.invoices.GetByID(ctx, id)
	if err != nil {
		return err
	}

	target := models.InvoiceStatus(a.NewStatus)
	if !invoice.CanTransition(target) {
		return fmt.Errorf("invoice %s: transition %s -> %s not allowed", id, invoice.Status, target)
	}

	invoice.Status = target
	invoice.UpdatedAt = time.Now().UTC()

	return a.invoices.Save(ctx, invoice)
}

func (a *Action) updateProject(ctx context.Context, id string) error {
	project, err := a.projects.GetByID(ctx, id)
	if err != nil {
		return err
	}

	project.Status = models.ProjectStatus(a.NewStatus)
	project.UpdatedAt = time.Now().UTC()

	return a.projects.Save(ctx, project)
}

func (a *Action) updateTask(ctx context.Context, id string) error {
	task, err := a.tasks.GetByID(ctx, id)
	if err != nil {
		return err
	}

	task.Status = models.TaskStatus(a.NewStatus)
	task.UpdatedAt = time.Now().UTC()

	return a.tasks.Save(ctx, task)
}

func (a *Action) Validate(_ context.Context) error {
	switch a.EntityType {
	case "invoice", "project", "task":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEntityType, a.EntityType)
	}

	if a.NewStatus == "" {
		return ErrNewStatusMissing
	}

	return nil
}

// Factory builds update_status actions.
type Factory struct {
	Invoices persistence.InvoiceRepository
	Projects persistence.ProjectRepository
	Tasks    persistence.TaskRepository
}

func (f *Factory) ID() models.ActionType {
	return models.ActionUpdateStatus
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.Invoices, f.Projects, f.Tasks)
}
