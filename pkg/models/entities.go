package models

import "time"

// Client is the billing contact an invoice or payment link belongs to.
type Client struct {
	ID        string    `json:"id"    validate:"required"`
	Name      string    `json:"name"  validate:"required"`
	Email     string    `json:"email" validate:"required,email"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
)

type Project struct {
	ID        string        `json:"id"   validate:"required"`
	Name      string        `json:"name" validate:"required"`
	ClientID  string        `json:"client_id"`
	Status    ProjectStatus `json:"status"`
	StartDate time.Time     `json:"start_date"`
	EndDate   time.Time     `json:"end_date"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// TaskPriority adjusts due-date reminder lead time: high priority shortens
// it by one day, low extends it by one.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

type Task struct {
	ID        string       `json:"id"   validate:"required"`
	ProjectID string       `json:"project_id"`
	Name      string       `json:"name" validate:"required"`
	Status    TaskStatus   `json:"status"`
	Priority  TaskPriority `json:"priority"`
	DueDate   time.Time    `json:"due_date"`
	AssigneeID string      `json:"assignee_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NotificationTemplate holds a renderable subject/body pair. Placeholders use
// text/template syntax and are filled from the reminder or trigger payload.
type NotificationTemplate struct {
	ID      string `json:"id"   validate:"required"`
	Name    string `json:"name" validate:"required"`
	Channel string `json:"channel"`
	Subject string `json:"subject"`
	Body    string `json:"body" validate:"required"`
}
