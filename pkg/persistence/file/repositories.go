package file

import (
	"context"
	"strings"
	"time"

	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/persistence"
)

type paymentLinkRepository struct {
	store *store
}

func (r *paymentLinkRepository) Save(_ context.Context, link *models.PaymentLink) error {
	return r.store.save(link, link.ID)
}

func (r *paymentLinkRepository) GetByID(_ context.Context, id string) (*models.PaymentLink, error) {
	link := &models.PaymentLink{}
	if err := r.store.load(id, link, persistence.ErrPaymentLinkNotFound); err != nil {
		return nil, err
	}

	return link, nil
}

func (r *paymentLinkRepository) ListByInvoice(_ context.Context, invoiceID string) ([]*models.PaymentLink, error) {
	all, err := loadAll[models.PaymentLink](r.store)
	if err != nil {
		return nil, err
	}

	matches := make([]*models.PaymentLink, 0)

	for _, link := range all {
		if link.InvoiceID == invoiceID {
			matches = append(matches, link)
		}
	}

	return matches, nil
}

func (r *paymentLinkRepository) List(_ context.Context, filter persistence.PaymentLinkFilter) ([]*models.PaymentLink, error) {
	all, err := loadAll[models.PaymentLink](r.store)
	if err != nil {
		return nil, err
	}

	matches := make([]*models.PaymentLink, 0, len(all))

	for _, link := range all {
		if filter.Gateway != "" && link.Gateway != filter.Gateway {
			continue
		}

		if !filter.From.IsZero() && link.CreatedAt.Before(filter.From) {
			continue
		}

		if !filter.To.IsZero() && link.CreatedAt.After(filter.To) {
			continue
		}

		matches = append(matches, link)
	}

	return matches, nil
}

type invoiceRepository struct {
	store *store
}

func (r *invoiceRepository) Save(_ context.Context, invoice *models.Invoice) error {
	return r.store.save(invoice, invoice.ID)
}

func (r *invoiceRepository) GetByID(_ context.Context, id string) (*models.Invoice, error) {
	invoice := &models.Invoice{}
	if err := r.store.load(id, invoice, persistence.ErrInvoiceNotFound); err != nil {
		return nil, err
	}

	return invoice, nil
}

func (r *invoiceRepository) ListByStatus(_ context.Context, status models.InvoiceStatus) ([]*models.Invoice, error) {
	all, err := loadAll[models.Invoice](r.store)
	if err != nil {
		return nil, err
	}

	matches := make([]*models.Invoice, 0)

	for _, invoice := range all {
		if invoice.Status == status {
			matches = append(matches, invoice)
		}
	}

	return matches, nil
}

type reminderRepository struct {
	store *store
}

func (r *reminderRepository) Save(_ context.Context, schedule *models.ReminderSchedule) error {
	return r.store.save(schedule, schedule.ID)
}

func (r *reminderRepository) GetByID(_ context.Context, id string) (*models.ReminderSchedule, error) {
	schedule := &models.ReminderSchedule{}
	if err := r.store.load(id, schedule, persistence.ErrReminderNotFound); err != nil {
		return nil, err
	}

	return schedule, nil
}

func (r *reminderRepository) ListPending(_ context.Context) ([]*models.ReminderSchedule, error) {
	all, err := loadAll[models.ReminderSchedule](r.store)
	if err != nil {
		return nil, err
	}

	matches := make([]*models.ReminderSchedule, 0)

	for _, schedule := range all {
		if schedule.Status == models.ReminderPending {
			matches = append(matches, schedule)
		}
	}

	return matches, nil
}

func (r *reminderRepository) ListPendingByTypeAndEntity(ctx context.Context, typ models.ReminderType, entityID string) ([]*models.ReminderSchedule, error) {
	pending, err := r.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]*models.ReminderSchedule, 0)

	for _, schedule := range pending {
		if schedule.Type == typ && schedule.EntityID == entityID {
			matches = append(matches, schedule)
		}
	}

	return matches, nil
}

type ruleRepository struct {
	store *store
}

func (r *ruleRepository) Save(_ context.Context, rule *models.AutomationRule) error {
	if err := models.ValidateRule(rule); err != nil {
		return err
	}

	return r.store.save(rule, rule.ID)
}

func (r *ruleRepository) GetByID(_ context.Context, id string) (*models.AutomationRule, error) {
	rule := &models.AutomationRule{}
	if err := r.store.load(id, rule, persistence.ErrRuleNotFound); err != nil {
		return nil, err
	}

	return rule, nil
}

func (r *ruleRepository) ListActive(_ context.Context) ([]*models.AutomationRule, error) {
	all, err := loadAll[models.AutomationRule](r.store)
	if err != nil {
		return nil, err
	}

	matches := make([]*models.AutomationRule, 0)

	for _, rule := range all {
		if rule.IsActive {
			matches = append(matches, rule)
		}
	}

	return matches, nil
}

func (r *ruleRepository) Delete(_ context.Context, id string) error {
	return r.store.delete(id, persistence.ErrRuleNotFound)
}

type executionRepository struct {
	store *store
}

func (r *executionRepository) Save(_ context.Context, execution *models.WorkflowExecution) error {
	return r.store.save(execution, execution.ID)
}

func (r *executionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	execution := &models.WorkflowExecution{}
	if err := r.store.load(id, execution, persistence.ErrExecutionNotFound); err != nil {
		return nil, err
	}

	return execution, nil
}

func (r *executionRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	all, err := loadAll[models.WorkflowExecution](r.store)
	if err != nil {
		return 0, err
	}

	deleted := 0

	for _, execution := range all {
		if execution.StartedAt.Before(cutoff) {
			if err := r.store.delete(execution.ID, persistence.ErrExecutionNotFound); err != nil {
				return deleted, err
			}

			deleted++
		}
	}

	return deleted, nil
}

type logRepository struct {
	store *store
}

func (r *logRepository) Append(_ context.Context, entry *models.AutomationLog) error {
	return r.store.save(entry, entry.ID)
}

func (r *logRepository) ListByEntity(_ context.Context, entityID string) ([]*models.AutomationLog, error) {
	all, err := loadAll[models.AutomationLog](r.store)
	if err != nil {
		return nil, err
	}

	matches := make([]*models.AutomationLog, 0)

	for _, entry := range all {
		if entry.EntityID == entityID {
			matches = append(matches, entry)
		}
	}

	return matches, nil
}

func (r *logRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	all, err := loadAll[models.AutomationLog](r.store)
	if err != nil {
		return 0, err
	}

	deleted := 0

	for _, entry := range all {
		if entry.Timestamp.Before(cutoff) {
			if err := r.store.delete(entry.ID, persistence.ErrLogNotFound); err != nil {
				return deleted, err
			}

			deleted++
		}
	}

	return deleted, nil
}

type projectRepository struct {
	store *store
}

func (r *projectRepository) Save(_ context.Context, project *models.Project) error {
	return r.store.save(project, project.ID)
}

func (r *projectRepository) GetByID(_ context.Context, id string) (*models.Project, error) {
	project := &models.Project{}
	if err := r.store.load(id, project, persistence.ErrProjectNotFound); err != nil {
		return nil, err
	}

	return project, nil
}

func (r *projectRepository) ListByStatus(_ context.Context, status models.ProjectStatus) ([]*models.Project, error) {
	all, err := loadAll[models.Project](r.store)
	if err != nil {
		return nil, err
	}

	matches := make([]*models.Project, 0)

	for _, project := range all {
		if project.Status == status {
			matches = append(matches, project)
		}
	}

	return matches, nil
}

type taskRepository struct {
	store *store
}

func (r *taskRepository) Save(_ context.Context, task *models.Task) error {
	return r.store.save(task, task.ID)
}

func (r *taskRepository) GetByID(_ context.Context, id string) (*models.Task, error) {
	task := &models.Task{}
	if err := r.store.load(id, task, persistence.ErrTaskNotFound); err != nil {
		return nil, err
	}

	return task, nil
}

func (r *taskRepository) ListOpenDueBefore(_ context.Context, cutoff time.Time) ([]*models.Task, error) {
	all, err := loadAll[models.Task](r.store)
	if err != nil {
		return nil, err
	}

	matches := make([]*models.Task, 0)

	for _, task := range all {
		open := task.Status == models.TaskTodo || task.Status == models.TaskInProgress
		if open && !task.DueDate.After(cutoff) {
			matches = append(matches, task)
		}
	}

	return matches, nil
}

type clientRepository struct {
	store *store
}

func (r *clientRepository) Save(_ context.Context, client *models.Client) error {
	return r.store.save(client, client.ID)
}

func (r *clientRepository) GetByID(_ context.Context, id string) (*models.Client, error) {
	client := &models.Client{}
	if err := r.store.load(id, client, persistence.ErrClientNotFound); err != nil {
		return nil, err
	}

	return client, nil
}

func (r *clientRepository) GetByEmail(_ context.Context, email string) (*models.Client, error) {
	all, err := loadAll[models.Client](r.store)
	if err != nil {
		return nil, err
	}

	for _, client := range all {
		if strings.EqualFold(client.Email, email) {
			return client, nil
		}
	}

	return nil, persistence.NewStoreError("GetByEmail", r.store.collection, email, persistence.ErrClientNotFound)
}

type templateRepository struct {
	store *store
}

func (r *templateRepository) Save(_ context.Context, template *models.NotificationTemplate) error {
	return r.store.save(template, template.Name)
}

func (r *templateRepository) GetByName(_ context.Context, name string) (*models.NotificationTemplate, error) {
	template := &models.NotificationTemplate{}
	if err := r.store.load(name, template, persistence.ErrTemplateNotFound); err != nil {
		return nil, err
	}

	return template, nil
}
