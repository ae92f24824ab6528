// Package redis provides a Redis-backed implementation of the record store.
// Records are JSON documents under billhawk:<collection>:<id> with a set per
// collection holding the member ids. Writes are last-write-wins; no
// optimistic concurrency, matching the record store's consistency contract.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/persistence"
)

const keyPrefix = "billhawk"

// Persistence implements persistence.Persistence on Redis.
type Persistence struct {
	client *goredis.Client

	paymentLinks *paymentLinkRepository
	invoices     *invoiceRepository
	reminders    *reminderRepository
	rules        *ruleRepository
	executions   *executionRepository
	logs         *logRepository
	projects     *projectRepository
	tasks        *taskRepository
	clients      *clientRepository
	templates    *templateRepository
}

// NewPersistence connects to Redis using a redis:// URL.
func NewPersistence(url string) (*Persistence, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return NewPersistenceWithClient(goredis.NewClient(opts)), nil
}

// NewPersistenceWithClient wraps an existing client. Useful for tests.
func NewPersistenceWithClient(client *goredis.Client) *Persistence {
	p := &Persistence{client: client}
	p.paymentLinks = &paymentLinkRepository{store: newStore(client, "payment_links")}
	p.invoices = &invoiceRepository{store: newStore(client, "invoices")}
	p.reminders = &reminderRepository{store: newStore(client, "reminder_schedules")}
	p.rules = &ruleRepository{store: newStore(client, "automation_rules")}
	p.executions = &executionRepository{store: newStore(client, "workflow_executions")}
	p.logs = &logRepository{store: newStore(client, "automation_logs")}
	p.projects = &projectRepository{store: newStore(client, "projects")}
	p.tasks = &taskRepository{store: newStore(client, "tasks")}
	p.clients = &clientRepository{store: newStore(client, "clients")}
	p.templates = &templateRepository{store: newStore(client, "notification_templates")}

	return p
}

func (p *Persistence) PaymentLinks() persistence.PaymentLinkRepository { return p.paymentLinks }
func (p *Persistence) Invoices() persistence.InvoiceRepository         { return p.invoices }
func (p *Persistence) ReminderSchedules() persistence.ReminderScheduleRepository {
	return p.reminders
}
func (p *Persistence) AutomationRules() persistence.AutomationRuleRepository { return p.rules }
func (p *Persistence) WorkflowExecutions() persistence.WorkflowExecutionRepository {
	return p.executions
}
func (p *Persistence) AutomationLogs() persistence.AutomationLogRepository { return p.logs }
func (p *Persistence) Projects() persistence.ProjectRepository             { return p.projects }
func (p *Persistence) Tasks() persistence.TaskRepository                   { return p.tasks }
func (p *Persistence) Clients() persistence.ClientRepository               { return p.clients }
func (p *Persistence) Templates() persistence.TemplateRepository           { return p.templates }

// Client exposes the underlying connection so collaborators sharing the same
// redis instance, like the fraud velocity store, reuse it.
func (p *Persistence) Client() *goredis.Client {
	return p.client
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

type store struct {
	client     *goredis.Client
	collection string
}

func newStore(client *goredis.Client, collection string) *store {
	return &store{client: client, collection: collection}
}

func (s *store) key(id string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, s.collection, id)
}

func (s *store) indexKey() string {
	return fmt.Sprintf("%s:%s", keyPrefix, s.collection)
}

func (s *store) save(ctx context.Context, v any, id string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return persistence.NewStoreError("Save", s.collection, id, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(id), data, 0)
	pipe.SAdd(ctx, s.indexKey(), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewStoreError("Save", s.collection, id, err)
	}

	return nil
}

func (s *store) load(ctx context.Context, id string, v any, notFound error) error {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return persistence.NewStoreError("GetByID", s.collection, id, notFound)
		}

		return persistence.NewStoreError("GetByID", s.collection, id, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return persistence.NewStoreError("GetByID", s.collection, id, err)
	}

	return nil
}

func (s *store) delete(ctx context.Context, id string, notFound error) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.key(id))
	pipe.SRem(ctx, s.indexKey(), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewStoreError("Delete", s.collection, id, err)
	}

	if del.Val() == 0 {
		return persistence.NewStoreError("Delete", s.collection, id, notFound)
	}

	return nil
}

func loadAll[T any](ctx context.Context, s *store) ([]*T, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, persistence.NewStoreError("List", s.collection, "", err)
	}

	out := make([]*T, 0, len(ids))

	for _, id := range ids {
		data, err := s.client.Get(ctx, s.key(id)).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue // index member without document, skip
			}

			return nil, persistence.NewStoreError("List", s.collection, id, err)
		}

		record := new(T)
		if err := json.Unmarshal(data, record); err != nil {
			return nil, persistence.NewStoreError("List", s.collection, id, err)
		}

		out = append(out, record)
	}

	return out, nil
}

type paymentLinkRepository struct{ store *store }

func (r *paymentLinkRepository) Save(ctx context.Context, link *models.PaymentLink) error {
	return r.store.save(ctx, link, link.ID)
}

func (r *paymentLinkRepository) GetByID(ctx context.Context, id string) (*models.PaymentLink, error) {
	link := &models.PaymentLink{}
	if err := r.store.load(ctx, id, link, persistence.ErrPaymentLinkNotFound); err != nil {
		return nil, err
	}

	return link, nil
}

func (r *paymentLinkRepository) ListByInvoice(ctx context.Context, invoiceID string) ([]*models.PaymentLink, error) {
	all, err := loadAll[models.PaymentLink](ctx, r.store)
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

func (r *paymentLinkRepository) List(ctx context.Context, filter persistence.PaymentLinkFilter) ([]*models.PaymentLink, error) {
	all, err := loadAll[models.PaymentLink](ctx, r.store)
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

type invoiceRepository struct{ store *store }

func (r *invoiceRepository) Save(ctx context.Context, invoice *models.Invoice) error {
	return r.store.save(ctx, invoice, invoice.ID)
}

func (r *invoiceRepository) GetByID(ctx context.Context, id string) (*models.Invoice, error) {
	invoice := &models.Invoice{}
	if err := r.store.load(ctx, id, invoice, persistence.ErrInvoiceNotFound); err != nil {
		return nil, err
	}

	return invoice, nil
}

func (r *invoiceRepository) ListByStatus(ctx context.Context, status models.InvoiceStatus) ([]*models.Invoice, error) {
	all, err := loadAll[models.Invoice](ctx, r.store)
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

type reminderRepository struct{ store *store }

func (r *reminderRepository) Save(ctx context.Context, schedule *models.ReminderSchedule) error {
	return r.store.save(ctx, schedule, schedule.ID)
}

func (r *reminderRepository) GetByID(ctx context.Context, id string) (*models.ReminderSchedule, error) {
	schedule := &models.ReminderSchedule{}
	if err := r.store.load(ctx, id, schedule, persistence.ErrReminderNotFound); err != nil {
		return nil, err
	}

	return schedule, nil
}

func (r *reminderRepository) ListPending(ctx context.Context) ([]*models.ReminderSchedule, error) {
	all, err := loadAll[models.ReminderSchedule](ctx, r.store)
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

type ruleRepository struct{ store *store }

func (r *ruleRepository) Save(ctx context.Context, rule *models.AutomationRule) error {
	if err := models.ValidateRule(rule); err != nil {
		return err
	}

	return r.store.save(ctx, rule, rule.ID)
}

func (r *ruleRepository) GetByID(ctx context.Context, id string) (*models.AutomationRule, error) {
	rule := &models.AutomationRule{}
	if err := r.store.load(ctx, id, rule, persistence.ErrRuleNotFound); err != nil {
		return nil, err
	}

	return rule, nil
}

func (r *ruleRepository) ListActive(ctx context.Context) ([]*models.AutomationRule, error) {
	all, err := loadAll[models.AutomationRule](ctx, r.store)
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

func (r *ruleRepository) Delete(ctx context.Context, id string) error {
	return r.store.delete(ctx, id, persistence.ErrRuleNotFound)
}

type executionRepository struct{ store *store }

func (r *executionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	return r.store.save(ctx, execution, execution.ID)
}

func (r *executionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	execution := &models.WorkflowExecution{}
	if err := r.store.load(ctx, id, execution, persistence.ErrExecutionNotFound); err != nil {
		return nil, err
	}

	return execution, nil
}

func (r *executionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	all, err := loadAll[models.WorkflowExecution](ctx, r.store)
	if err != nil {
		return 0, err
	}

	deleted := 0

	for _, execution := range all {
		if execution.StartedAt.Before(cutoff) {
			if err := r.store.delete(ctx, execution.ID, persistence.ErrExecutionNotFound); err != nil {
				return deleted, err
			}

			deleted++
		}
	}

	return deleted, nil
}

type logRepository struct{ store *store }

func (r *logRepository) Append(ctx context.Context, entry *models.AutomationLog) error {
	return r.store.save(ctx, entry, entry.ID)
}

func (r *logRepository) ListByEntity(ctx context.Context, entityID string) ([]*models.AutomationLog, error) {
	all, err := loadAll[models.AutomationLog](ctx, r.store)
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

func (r *logRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	all, err := loadAll[models.AutomationLog](ctx, r.store)
	if err != nil {
		return 0, err
	}

	deleted := 0

	for _, entry := range all {
		if entry.Timestamp.Before(cutoff) {
			if err := r.store.delete(ctx, entry.ID, persistence.ErrLogNotFound); err != nil {
				return deleted, err
			}

			deleted++
		}
	}

	return deleted, nil
}

type projectRepository struct{ store *store }

func (r *projectRepository) Save(ctx context.Context, project *models.Project) error {
	return r.store.save(ctx, project, project.ID)
}

func (r *projectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	project := &models.Project{}
	if err := r.store.load(ctx, id, project, persistence.ErrProjectNotFound); err != nil {
		return nil, err
	}

	return project, nil
}

func (r *projectRepository) ListByStatus(ctx context.Context, status models.ProjectStatus) ([]*models.Project, error) {
	all, err := loadAll[models.Project](ctx, r.store)
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

type taskRepository struct{ store *store }

func (r *taskRepository) Save(ctx context.Context, task *models.Task) error {
	return r.store.save(ctx, task, task.ID)
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	task := &models.Task{}
	if err := r.store.load(ctx, id, task, persistence.ErrTaskNotFound); err != nil {
		return nil, err
	}

	return task, nil
}

func (r *taskRepository) ListOpenDueBefore(ctx context.Context, cutoff time.Time) ([]*models.Task, error) {
	all, err := loadAll[models.Task](ctx, r.store)
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

type clientRepository struct{ store *store }

func (r *clientRepository) Save(ctx context.Context, client *models.Client) error {
	return r.store.save(ctx, client, client.ID)
}

func (r *clientRepository) GetByID(ctx context.Context, id string) (*models.Client, error) {
	client := &models.Client{}
	if err := r.store.load(ctx, id, client, persistence.ErrClientNotFound); err != nil {
		return nil, err
	}

	return client, nil
}

func (r *clientRepository) GetByEmail(ctx context.Context, email string) (*models.Client, error) {
	all, err := loadAll[models.Client](ctx, r.store)
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

type templateRepository struct{ store *store }

func (r *templateRepository) Save(ctx context.Context, template *models.NotificationTemplate) error {
	return r.store.save(ctx, template, template.Name)
}

func (r *templateRepository) GetByName(ctx context.Context, name string) (*models.NotificationTemplate, error) {
	template := &models.NotificationTemplate{}
	if err := r.store.load(ctx, name, template, persistence.ErrTemplateNotFound); err != nil {
		return nil, err
	}

	return template, nil
}
