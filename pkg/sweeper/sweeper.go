// Package sweeper runs the periodic maintenance passes: marking invoices
// overdue, scheduling approaching-deadline reminders, and pruning old
// execution and audit records.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/billhawk/billhawk/pkg/eventbus"
	"github.com/billhawk/billhawk/pkg/events"
	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/persistence"
	"github.com/billhawk/billhawk/pkg/reminder"
)

const (
	overdueSchedule  = "@hourly"
	deadlineSchedule = "0 */6 * * *"
	pruneSchedule    = "@daily"

	deadlineHorizon = 3 * 24 * time.Hour
	retention       = 30 * 24 * time.Hour
)

var defaultDeadlineConfig = models.ReminderConfig{
	DaysBefore: []int{3, 1},
	Channel:    "email",
	Template:   "deadline_approaching",
}

// Sweeper owns the three cron passes. Each pass body is a public method so
// tests and the admin endpoints run one tick directly.
type Sweeper struct {
	store     persistence.Persistence
	scheduler *reminder.Scheduler
	publisher eventbus.EventPublisher
	clock     reminder.Clock
	logger    *slog.Logger
	cron      *cron.Cron
}

func NewSweeper(
	store persistence.Persistence,
	scheduler *reminder.Scheduler,
	publisher eventbus.EventPublisher,
	clock reminder.Clock,
	logger *slog.Logger,
) *Sweeper {
	if clock == nil {
		clock = reminder.SystemClock()
	}

	return &Sweeper{
		store:     store,
		scheduler: scheduler,
		publisher: publisher,
		clock:     clock,
		logger:    logger.With("module", "sweeper"),
	}
}

// Start registers and launches the cron entries. Pass failures are logged;
// the next tick retries naturally.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entries := []struct {
		schedule string
		name     string
		run      func(context.Context) error
	}{
		{overdueSchedule, "overdue", func(ctx context.Context) error {
			_, err := s.SweepOverdue(ctx)

			return err
		}},
		{deadlineSchedule, "deadlines", func(ctx context.Context) error {
			_, err := s.SweepDeadlines(ctx)

			return err
		}},
		{pruneSchedule, "prune", func(ctx context.Context) error {
			_, err := s.Prune(ctx)

			return err
		}},
	}

	for _, entry := range entries {
		run := entry.run
		name := entry.name

		if _, err := s.cron.AddFunc(entry.schedule, func() {
			if err := run(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Sweep pass failed", "pass", name, "error", err)
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Sweeper started")

	return nil
}

// Stop halts the cron scheduler and waits for a running pass to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// SweepOverdue moves every sent invoice past its due date to overdue and
// fires the invoice.overdue event once per transition. The status change
// itself gates re-triggering, so re-running the pass is idempotent.
func (s *Sweeper) SweepOverdue(ctx context.Context) (int, error) {
	sent, err := s.store.Invoices().ListByStatus(ctx, models.InvoiceSent)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	transitioned := 0

	for _, invoice := range sent {
		if !invoice.DueDate.Before(now) {
			continue
		}

		if !invoice.CanTransition(models.InvoiceOverdue) {
			continue
		}

		invoice.Status = models.InvoiceOverdue
		invoice.UpdatedAt = now

		if err := s.store.Invoices().Save(ctx, invoice); err != nil {
			s.logger.ErrorContext(ctx, "Failed to mark invoice overdue",
				"invoice_id", invoice.ID, "error", err)

			continue
		}

		transitioned++
		s.audit(ctx, invoice.ID, "invoice_overdue_trigger",
			"invoice "+invoice.Number+" moved to overdue")
		s.publishOverdue(ctx, invoice, now)
	}

	if transitioned > 0 {
		s.logger.InfoContext(ctx, "Overdue sweep complete", "transitioned", transitioned)
	}

	return transitioned, nil
}

func (s *Sweeper) publishOverdue(ctx context.Context, invoice *models.Invoice, now time.Time) {
	event := events.InvoiceOverdue{
		BaseEvent: events.BaseEvent{
			ID:        uuid.NewString(),
			Type:      events.InvoiceOverdueEvent,
			EntityID:  invoice.ID,
			Timestamp: now,
			Data: map[string]any{
				"invoice_id": invoice.ID,
				"client_id":  invoice.ClientID,
				"amount":     invoice.TotalAmount - invoice.PaidAmount,
				"due_date":   invoice.DueDate,
			},
		},
		InvoiceID: invoice.ID,
		ClientID:  invoice.ClientID,
		DueDate:   invoice.DueDate,
		Amount:    invoice.TotalAmount - invoice.PaidAmount,
	}

	if err := s.publisher.Publish(ctx, invoice.ID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish invoice.overdue",
			"invoice_id", invoice.ID, "error", err)
	}
}

// SweepDeadlines schedules reminders for active projects ending within three
// days and open tasks due within three days. An entity with a pending
// reminder of the matching type is skipped, so the pass never
// double-schedules.
func (s *Sweeper) SweepDeadlines(ctx context.Context) (int, error) {
	now := s.clock.Now()
	horizon := now.Add(deadlineHorizon)
	scheduled := 0

	projects, err := s.store.Projects().ListByStatus(ctx, models.ProjectActive)
	if err != nil {
		return 0, err
	}

	for _, project := range projects {
		if project.EndDate.Before(now) || project.EndDate.After(horizon) {
			continue
		}

		ok, err := s.scheduleIfAbsent(ctx, models.ReminderProjectDeadline, project.ID, project.EndDate)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to schedule project deadline reminder",
				"project_id", project.ID, "error", err)

			continue
		}

		if ok {
			scheduled++
		}
	}

	tasks, err := s.store.Tasks().ListOpenDueBefore(ctx, horizon)
	if err != nil {
		return scheduled, err
	}

	for _, task := range tasks {
		if task.DueDate.Before(now) {
			continue
		}

		ok, err := s.scheduleIfAbsent(ctx, models.ReminderTaskDue, task.ID, task.DueDate)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to schedule task due reminder",
				"task_id", task.ID, "error", err)

			continue
		}

		if ok {
			scheduled++
		}
	}

	if scheduled > 0 {
		s.logger.InfoContext(ctx, "Deadline sweep complete", "scheduled", scheduled)
	}

	return scheduled, nil
}

func (s *Sweeper) scheduleIfAbsent(ctx context.Context, typ models.ReminderType, entityID string, targetDate time.Time) (bool, error) {
	pending, err := s.store.ReminderSchedules().ListPendingByTypeAndEntity(ctx, typ, entityID)
	if err != nil {
		return false, err
	}

	if len(pending) > 0 {
		return false, nil
	}

	created, err := s.scheduler.Schedule(ctx, typ, entityID, targetDate, defaultDeadlineConfig)
	if err != nil {
		return false, err
	}

	return len(created) > 0, nil
}

// Prune deletes workflow executions and automation logs older than the
// retention window.
func (s *Sweeper) Prune(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-retention)

	executions, err := s.store.WorkflowExecutions().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	logs, err := s.store.AutomationLogs().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return executions, err
	}

	if executions+logs > 0 {
		s.logger.InfoContext(ctx, "Prune complete", "executions", executions, "logs", logs)
	}

	return executions + logs, nil
}

func (s *Sweeper) audit(ctx context.Context, entityID, action, details string) {
	entry := &models.AutomationLog{
		ID:        uuid.NewString(),
		Type:      "invoice",
		EntityID:  entityID,
		Action:    action,
		Status:    models.LogSuccess,
		Details:   details,
		Timestamp: s.clock.Now(),
	}

	if err := s.store.AutomationLogs().Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "Failed to write sweep audit entry", "error", err)
	}
}
