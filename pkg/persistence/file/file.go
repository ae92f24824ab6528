// Package file provides a file-based implementation of the record store.
// Each collection is a directory and each record one JSON document, which
// keeps the layout inspectable and makes it the backend of choice for tests
// and local development.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/billhawk/billhawk/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root string

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

// NewPersistence creates a file persistence rooted at the given directory.
// Accepts a plain path or a file:// URL.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		paymentLinks: &paymentLinkRepository{store: newStore(cleanRoot, "payment_links")},
		invoices:     &invoiceRepository{store: newStore(cleanRoot, "invoices")},
		reminders:    &reminderRepository{store: newStore(cleanRoot, "reminder_schedules")},
		rules:        &ruleRepository{store: newStore(cleanRoot, "automation_rules")},
		executions:   &executionRepository{store: newStore(cleanRoot, "workflow_executions")},
		logs:         &logRepository{store: newStore(cleanRoot, "automation_logs")},
		projects:     &projectRepository{store: newStore(cleanRoot, "projects")},
		tasks:        &taskRepository{store: newStore(cleanRoot, "tasks")},
		clients:      &clientRepository{store: newStore(cleanRoot, "clients")},
		templates:    &templateRepository{store: newStore(cleanRoot, "notification_templates")},
	}
}

func (p *Persistence) PaymentLinks() persistence.PaymentLinkRepository      { return p.paymentLinks }
func (p *Persistence) Invoices() persistence.InvoiceRepository              { return p.invoices }
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

// HealthCheck verifies the root directory is usable.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return fmt.Errorf("file persistence root unusable: %w", err)
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to release for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// store is a directory-backed JSON document collection. A single mutex per
// collection keeps list-and-write races within one process benign; the
// cross-process policy stays last-write-wins.
type store struct {
	dir        string
	collection string
	mu         sync.RWMutex
}

func newStore(root, collection string) *store {
	return &store{dir: filepath.Join(root, collection), collection: collection}
}

func (s *store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *store) save(v any, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return persistence.NewStoreError("Save", s.collection, id, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return persistence.NewStoreError("Save", s.collection, id, err)
	}

	if err := os.WriteFile(s.path(id), data, 0o644); err != nil {
		return persistence.NewStoreError("Save", s.collection, id, err)
	}

	return nil
}

func (s *store) load(id string, v any, notFound error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.NewStoreError("GetByID", s.collection, id, notFound)
		}

		return persistence.NewStoreError("GetByID", s.collection, id, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return persistence.NewStoreError("GetByID", s.collection, id, err)
	}

	return nil
}

func (s *store) delete(id string, notFound error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return persistence.NewStoreError("Delete", s.collection, id, notFound)
		}

		return persistence.NewStoreError("Delete", s.collection, id, err)
	}

	return nil
}

// ids returns every record id in the collection.
func (s *store) ids() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := fs.Glob(os.DirFS(s.dir), "*.json")
	if err != nil {
		return nil, persistence.NewStoreError("List", s.collection, "", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, strings.TrimSuffix(entry, ".json"))
	}

	return ids, nil
}

// loadAll decodes every record in the collection into values of type T.
func loadAll[T any](s *store) ([]*T, error) {
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}

	out := make([]*T, 0, len(ids))

	for _, id := range ids {
		s.mu.RLock()
		data, err := os.ReadFile(s.path(id))
		s.mu.RUnlock()

		if err != nil {
			if os.IsNotExist(err) {
				continue // removed between list and read
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
