// Package createtask provides the create_task workflow action.
package createtask

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/persistence"
	"github.com/billhawk/billhawk/pkg/protocol"
	"github.com/billhawk/billhawk/pkg/template"
)

// ErrNameMissing is returned when the configuration names no task.
var ErrNameMissing = errors.New("missing 'name' in configuration")

// Action creates a follow-up task. The task name is a template rendered with
// the trigger data, so rules can produce names like "Chase invoice {{.entity_id}}".
type Action struct {
	Name      string
	ProjectID string
	Priority  models.TaskPriority
	DueInDays int
	tasks     persistence.TaskRepository
}

func NewAction(config map[string]any, tasks persistence.TaskRepository) (*Action, error) {
	name, ok := config["name"].(string)
	if !ok || name == "" {
		return nil, ErrNameMissing
	}

	projectID, _ := config["project_id"].(string)

	priority := models.TaskPriorityMedium
	if p, ok := config["priority"].(string); ok && p != "" {
		priority = models.TaskPriority(p)
	}

	dueInDays := 1
	if d, ok := config["due_in_days"].(float64); ok {
		dueInDays = int(d)
	}

	return &Action{
		Name:      name,
		ProjectID: projectID,
		Priority:  priority,
		DueInDays: dueInDays,
		tasks:     tasks,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("module", "create_task_action")

	data := make(map[string]any, len(executionCtx.TriggerData)+1)
	for k, v := range executionCtx.TriggerData {
		data[k] = v
	}
	data["entity_id"] = executionCtx.EntityID

	name, err := template.Render(a.Name, data)
	if err != nil {
		return nil, err
	}

	projectID := a.ProjectID
	if projectID == "" {
		if pid, ok := executionCtx.TriggerData["project_id"].(string); ok {
			projectID = pid
		}
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		Status:    models.TaskTodo,
		Priority:  a.Priority,
		DueDate:   now.AddDate(0, 0, a.DueInDays),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := a.tasks.Save(ctx, task); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Task created", "task_id", task.ID, "name", task.Name)

	return map[string]any{"task_id": task.ID, "name": task.Name}, nil
}

func (a *Action) Validate(_ context.Context) error {
	if a.Name == "" {
		return ErrNameMissing
	}

	if _, err := template.Parse(a.Name); err != nil {
		return err
	}

	return nil
}

// Factory builds create_task actions.
type Factory struct {
	Tasks persistence.TaskRepository
}

func (f *Factory) ID() models.ActionType {
	return models.ActionCreateTask
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.Tasks)
}
