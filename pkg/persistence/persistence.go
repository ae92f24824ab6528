// Package persistence provides the record-store abstraction for billing
// entities. The store is treated as a flat set of string-keyed collections
// with last-write-wins semantics; no optimistic concurrency is attempted.
package persistence

import (
	"context"
	"time"

	"github.com/billhawk/billhawk/pkg/models"
)

// PaymentLinkFilter narrows payment-link listings for analytics queries.
// Zero values mean "no constraint".
type PaymentLinkFilter struct {
	Gateway string
	From    time.Time
	To      time.Time
}

type PaymentLinkRepository interface {
	Save(ctx context.Context, link *models.PaymentLink) error
	GetByID(ctx context.Context, id string) (*models.PaymentLink, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]*models.PaymentLink, error)
	List(ctx context.Context, filter PaymentLinkFilter) ([]*models.PaymentLink, error)
}

type InvoiceRepository interface {
	Save(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, id string) (*models.Invoice, error)
	ListByStatus(ctx context.Context, status models.InvoiceStatus) ([]*models.Invoice, error)
}

type ReminderScheduleRepository interface {
	Save(ctx context.Context, schedule *models.ReminderSchedule) error
	GetByID(ctx context.Context, id string) (*models.ReminderSchedule, error)
	ListPending(ctx context.Context) ([]*models.ReminderSchedule, error)
	ListPendingByTypeAndEntity(ctx context.Context, typ models.ReminderType, entityID string) ([]*models.ReminderSchedule, error)
}

type AutomationRuleRepository interface {
	Save(ctx context.Context, rule *models.AutomationRule) error
	GetByID(ctx context.Context, id string) (*models.AutomationRule, error)
	ListActive(ctx context.Context) ([]*models.AutomationRule, error)
	Delete(ctx context.Context, id string) error
}

type WorkflowExecutionRepository interface {
	Save(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

type AutomationLogRepository interface {
	Append(ctx context.Context, entry *models.AutomationLog) error
	ListByEntity(ctx context.Context, entityID string) ([]*models.AutomationLog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

type ProjectRepository interface {
	Save(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	ListByStatus(ctx context.Context, status models.ProjectStatus) ([]*models.Project, error)
}

type TaskRepository interface {
	Save(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	ListOpenDueBefore(ctx context.Context, cutoff time.Time) ([]*models.Task, error)
}

type ClientRepository interface {
	Save(ctx context.Context, client *models.Client) error
	GetByID(ctx context.Context, id string) (*models.Client, error)
	GetByEmail(ctx context.Context, email string) (*models.Client, error)
}

type TemplateRepository interface {
	Save(ctx context.Context, template *models.NotificationTemplate) error
	GetByName(ctx context.Context, name string) (*models.NotificationTemplate, error)
}

// Persistence aggregates every collection of the record store.
type Persistence interface {
	PaymentLinks() PaymentLinkRepository
	Invoices() InvoiceRepository
	ReminderSchedules() ReminderScheduleRepository
	AutomationRules() AutomationRuleRepository
	WorkflowExecutions() WorkflowExecutionRepository
	AutomationLogs() AutomationLogRepository
	Projects() ProjectRepository
	Tasks() TaskRepository
	Clients() ClientRepository
	Templates() TemplateRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
