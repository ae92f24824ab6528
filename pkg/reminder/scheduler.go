// Package reminder schedules and fires deadline reminders. Persisted
// ReminderSchedule records are the source of truth; the in-process timers are
// transient handles rebuilt from those records on startup.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/billhawk/billhawk/pkg/eventbus"
	"github.com/billhawk/billhawk/pkg/events"
	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/notify"
	"github.com/billhawk/billhawk/pkg/persistence"
)

const defaultChannel = notify.ChannelEmail

// Scheduler arms one in-process timer per pending reminder schedule. All
// mutations of the timer map hold the mutex; firing reads the persisted
// record again so a cancellation that won the race is respected.
type Scheduler struct {
	store      persistence.Persistence
	dispatcher *notify.Dispatcher
	publisher  eventbus.EventPublisher
	clock      Clock
	logger     *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewScheduler(
	store persistence.Persistence,
	dispatcher *notify.Dispatcher,
	publisher eventbus.EventPublisher,
	clock Clock,
	logger *slog.Logger,
) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}

	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		publisher:  publisher,
		clock:      clock,
		logger:     logger.With("module", "reminder"),
		timers:     make(map[string]*time.Timer),
	}
}

// Schedule computes candidate fire times from the config's day offsets,
// persists one schedule per candidate still in the future, and arms a timer
// for each. It returns the schedules it created.
func (s *Scheduler) Schedule(
	ctx context.Context,
	typ models.ReminderType,
	entityID string,
	targetDate time.Time,
	cfg models.ReminderConfig,
) ([]*models.ReminderSchedule, error) {
	if cfg.Channel == "" {
		cfg.Channel = defaultChannel
	}

	daysBefore, err := s.adjustForPriority(ctx, typ, entityID, cfg.DaysBefore)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	created := make([]*models.ReminderSchedule, 0)

	add := func(fireAt time.Time, scheduleCfg models.ReminderConfig) error {
		if !fireAt.After(now) {
			return nil
		}

		schedule := &models.ReminderSchedule{
			ID:          uuid.NewString(),
			Type:        typ,
			EntityID:    entityID,
			ScheduledAt: fireAt,
			Config:      scheduleCfg,
			Status:      models.ReminderPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := s.store.ReminderSchedules().Save(ctx, schedule); err != nil {
			return err
		}

		s.arm(schedule.ID, fireAt.Sub(now))
		created = append(created, schedule)

		return nil
	}

	for _, days := range daysBefore {
		if err := add(targetDate.AddDate(0, 0, -days), cfg); err != nil {
			return nil, err
		}
	}

	for _, days := range cfg.DaysAfter {
		if err := add(targetDate.AddDate(0, 0, days), cfg); err != nil {
			return nil, err
		}
	}

	for _, rule := range cfg.EscalationRules {
		escalated := cfg
		if rule.Channel != "" {
			escalated.Channel = rule.Channel
		}

		if rule.Template != "" {
			escalated.Template = rule.Template
		}

		if err := add(targetDate.AddDate(0, 0, rule.OffsetDays), escalated); err != nil {
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "Reminders scheduled",
		"type", typ, "entity_id", entityID, "count", len(created))

	return created, nil
}

// adjustForPriority shifts task-due lead times by task priority: high
// shortens days_before by one (floor one day), low extends it by one.
func (s *Scheduler) adjustForPriority(ctx context.Context, typ models.ReminderType, entityID string, daysBefore []int) ([]int, error) {
	if typ != models.ReminderTaskDue || len(daysBefore) == 0 {
		return daysBefore, nil
	}

	task, err := s.store.Tasks().GetByID(ctx, entityID)
	if err != nil {
		return nil, err
	}

	adjusted := make([]int, len(daysBefore))

	for i, days := range daysBefore {
		switch task.Priority {
		case models.TaskPriorityHigh:
			days--
			if days < 1 {
				days = 1
			}
		case models.TaskPriorityLow:
			days++
		case models.TaskPriorityMedium:
		}

		adjusted[i] = days
	}

	return adjusted, nil
}

// Cancel moves pending schedules for the entity to cancelled and clears any
// live timer.
func (s *Scheduler) Cancel(ctx context.Context, typ models.ReminderType, entityID string) error {
	pending, err := s.store.ReminderSchedules().ListPendingByTypeAndEntity(ctx, typ, entityID)
	if err != nil {
		return err
	}

	for _, schedule := range pending {
		schedule.Status = models.ReminderCancelled
		schedule.UpdatedAt = s.clock.Now()

		if err := s.store.ReminderSchedules().Save(ctx, schedule); err != nil {
			return err
		}

		s.disarm(schedule.ID)
	}

	if len(pending) > 0 {
		s.logger.InfoContext(ctx, "Reminders cancelled",
			"type", typ, "entity_id", entityID, "count", len(pending))
	}

	return nil
}

// Rehydrate re-arms timers for pending schedules with future fire times.
// Schedules whose fire time elapsed while the process was down stay pending
// and never fire.
func (s *Scheduler) Rehydrate(ctx context.Context) (int, error) {
	pending, err := s.store.ReminderSchedules().ListPending(ctx)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	armed := 0

	for _, schedule := range pending {
		if !schedule.ScheduledAt.After(now) {
			continue
		}

		s.arm(schedule.ID, schedule.ScheduledAt.Sub(now))
		armed++
	}

	s.logger.InfoContext(ctx, "Reminder timers rehydrated",
		"pending", len(pending), "armed", armed)

	return armed, nil
}

// Stop clears every live timer. Persisted schedules are untouched, so a
// later Rehydrate restores them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) arm(scheduleID string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[scheduleID]; ok {
		timer.Stop()
	}

	s.timers[scheduleID] = time.AfterFunc(delay, func() {
		s.Fire(context.Background(), scheduleID)
	})
}

func (s *Scheduler) disarm(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[scheduleID]; ok {
		timer.Stop()
		delete(s.timers, scheduleID)
	}
}

// Fire executes one schedule now: resolve the entity and its client, render
// and dispatch the notification, and record the outcome. A dispatch failure
// marks the schedule failed; it is not retried.
func (s *Scheduler) Fire(ctx context.Context, scheduleID string) {
	s.disarm(scheduleID)

	schedule, err := s.store.ReminderSchedules().GetByID(ctx, scheduleID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load firing schedule",
			"schedule_id", scheduleID, "error", err)

		return
	}

	if schedule.Status != models.ReminderPending {
		return
	}

	now := s.clock.Now()
	schedule.Attempts++
	schedule.LastAttemptAt = &now
	schedule.UpdatedAt = now

	recipient, data, err := s.resolve(ctx, schedule)
	if err == nil {
		err = s.dispatcher.Send(ctx, schedule.Config.Channel, recipient, schedule.Config.Template, data)
	}

	if err != nil {
		schedule.Status = models.ReminderFailed
		s.audit(ctx, schedule, models.LogError, err.Error())
		s.logger.ErrorContext(ctx, "Reminder failed",
			"schedule_id", schedule.ID, "type", schedule.Type, "error", err)
	} else {
		schedule.Status = models.ReminderSent
		s.audit(ctx, schedule, models.LogSuccess, "reminder sent to "+recipient)
	}

	if err := s.store.ReminderSchedules().Save(ctx, schedule); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist schedule outcome",
			"schedule_id", schedule.ID, "error", err)
	}

	s.publishDue(ctx, schedule)
}

// resolve loads the schedule's entity and related records and builds the
// template data, returning the notification recipient.
func (s *Scheduler) resolve(ctx context.Context, schedule *models.ReminderSchedule) (string, map[string]any, error) {
	data := map[string]any{
		"entity_id":     schedule.EntityID,
		"reminder_type": string(schedule.Type),
		"scheduled_at":  schedule.ScheduledAt,
	}

	switch schedule.Type {
	case models.ReminderInvoicePayment:
		invoice, err := s.store.Invoices().GetByID(ctx, schedule.EntityID)
		if err != nil {
			return "", nil, err
		}

		client, err := s.store.Clients().GetByID(ctx, invoice.ClientID)
		if err != nil {
			return "", nil, err
		}

		data["invoice_number"] = invoice.Number
		data["amount"] = invoice.TotalAmount - invoice.PaidAmount
		data["due_date"] = invoice.DueDate
		data["client_name"] = client.Name

		return client.Email, data, nil

	case models.ReminderProjectDeadline:
		project, err := s.store.Projects().GetByID(ctx, schedule.EntityID)
		if err != nil {
			return "", nil, err
		}

		client, err := s.store.Clients().GetByID(ctx, project.ClientID)
		if err != nil {
			return "", nil, err
		}

		data["project_name"] = project.Name
		data["end_date"] = project.EndDate
		data["client_name"] = client.Name

		return client.Email, data, nil

	case models.ReminderTaskDue:
		task, err := s.store.Tasks().GetByID(ctx, schedule.EntityID)
		if err != nil {
			return "", nil, err
		}

		data["task_name"] = task.Name
		data["due_date"] = task.DueDate
		data["priority"] = string(task.Priority)

		project, err := s.store.Projects().GetByID(ctx, task.ProjectID)
		if err != nil {
			if persistence.IsNotFound(err) {
				return "", nil, fmt.Errorf("task %s: no project to resolve a recipient from", task.ID)
			}

			return "", nil, err
		}

		client, err := s.store.Clients().GetByID(ctx, project.ClientID)
		if err != nil {
			return "", nil, err
		}

		data["project_name"] = project.Name
		data["client_name"] = client.Name

		return client.Email, data, nil

	case models.ReminderClientFollowup:
		client, err := s.store.Clients().GetByID(ctx, schedule.EntityID)
		if err != nil {
			return "", nil, err
		}

		data["client_name"] = client.Name

		return client.Email, data, nil
	}

	return "", nil, fmt.Errorf("schedule %s: %w", schedule.ID, models.ErrInvalidReminderType)
}

func (s *Scheduler) publishDue(ctx context.Context, schedule *models.ReminderSchedule) {
	event := events.ReminderDue{
		BaseEvent: events.BaseEvent{
			ID:        uuid.NewString(),
			Type:      events.ReminderDueEvent,
			EntityID:  schedule.EntityID,
			Timestamp: s.clock.Now(),
			Data: map[string]any{
				"schedule_id":   schedule.ID,
				"reminder_type": string(schedule.Type),
				"status":        string(schedule.Status),
			},
		},
		ScheduleID:   schedule.ID,
		ReminderType: schedule.Type,
	}

	if err := s.publisher.Publish(ctx, schedule.EntityID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish reminder.due",
			"schedule_id", schedule.ID, "error", err)
	}
}

func (s *Scheduler) audit(ctx context.Context, schedule *models.ReminderSchedule, status models.LogStatus, details string) {
	entry := &models.AutomationLog{
		ID:        uuid.NewString(),
		Type:      "reminder",
		EntityID:  schedule.EntityID,
		Action:    "fire_" + string(schedule.Type),
		Status:    status,
		Details:   details,
		Timestamp: s.clock.Now(),
	}

	if err := s.store.AutomationLogs().Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "Failed to write reminder audit entry", "error", err)
	}
}
