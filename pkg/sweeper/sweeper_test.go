package sweeper

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billhawk/billhawk/pkg/eventbus"
	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/notify"
	"github.com/billhawk/billhawk/pkg/persistence"
	"github.com/billhawk/billhawk/pkg/persistence/file"
	"github.com/billhawk/billhawk/pkg/reminder"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type capturingPublisher struct {
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.events = append(p.events, event)

	return nil
}

type discardSender struct{}

func (discardSender) Send(_ context.Context, _ notify.Message) error { return nil }

type sweeperFixture struct {
	sweeper   *Sweeper
	store     persistence.Persistence
	clock     *fixedClock
	publisher *capturingPublisher
}

func newFixture(t *testing.T) *sweeperFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := file.NewPersistence(t.TempDir())
	clock := &fixedClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	publisher := &capturingPublisher{}

	dispatcher := notify.NewDispatcher(store.Templates(), store.AutomationLogs(), logger)
	dispatcher.RegisterSender(notify.ChannelEmail, discardSender{})

	scheduler := reminder.NewScheduler(store, dispatcher, publisher, clock, logger)
	t.Cleanup(scheduler.Stop)

	return &sweeperFixture{
		sweeper:   NewSweeper(store, scheduler, publisher, clock, logger),
		store:     store,
		clock:     clock,
		publisher: publisher,
	}
}

func TestSweepOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, invoice := range []*models.Invoice{
		{ID: "past-due", ClientID: "c1", Number: "2026-001", TotalAmount: 100, Status: models.InvoiceSent, DueDate: f.clock.now.AddDate(0, 0, -2)},
		{ID: "not-due", ClientID: "c1", Number: "2026-002", TotalAmount: 100, Status: models.InvoiceSent, DueDate: f.clock.now.AddDate(0, 0, 5)},
		{ID: "draft", ClientID: "c1", Number: "2026-003", TotalAmount: 100, Status: models.InvoiceDraft, DueDate: f.clock.now.AddDate(0, 0, -2)},
	} {
		require.NoError(t, f.store.Invoices().Save(ctx, invoice))
	}

	transitioned, err := f.sweeper.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, transitioned)

	overdue, err := f.store.Invoices().GetByID(ctx, "past-due")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceOverdue, overdue.Status)

	untouched, err := f.store.Invoices().GetByID(ctx, "not-due")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceSent, untouched.Status)

	require.Len(t, f.publisher.events, 1)

	entries, err := f.store.AutomationLogs().ListByEntity(ctx, "past-due")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "invoice_overdue_trigger", entries[0].Action)
}

func TestSweepOverdue_SecondTickIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Invoices().Save(ctx, &models.Invoice{
		ID: "inv-1", ClientID: "c1", Number: "2026-001", TotalAmount: 100,
		Status: models.InvoiceSent, DueDate: f.clock.now.AddDate(0, 0, -2),
	}))

	transitioned, err := f.sweeper.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, transitioned)

	transitioned, err = f.sweeper.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, transitioned, "overdue invoices must not re-trigger")

	assert.Len(t, f.publisher.events, 1)

	entries, err := f.store.AutomationLogs().ListByEntity(ctx, "inv-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSweepDeadlines_Projects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, project := range []*models.Project{
		{ID: "ending-soon", Name: "Site relaunch", ClientID: "c1", Status: models.ProjectActive, EndDate: f.clock.now.AddDate(0, 0, 2)},
		{ID: "far-out", Name: "Retainer", ClientID: "c1", Status: models.ProjectActive, EndDate: f.clock.now.AddDate(0, 0, 30)},
		{ID: "ended", Name: "Audit", ClientID: "c1", Status: models.ProjectActive, EndDate: f.clock.now.AddDate(0, 0, -1)},
	} {
		require.NoError(t, f.store.Projects().Save(ctx, project))
	}

	scheduled, err := f.sweeper.SweepDeadlines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)

	pending, err := f.store.ReminderSchedules().ListPendingByTypeAndEntity(ctx, models.ReminderProjectDeadline, "ending-soon")
	require.NoError(t, err)
	assert.NotEmpty(t, pending)
}

func TestSweepDeadlines_Tasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, task := range []*models.Task{
		{ID: "due-soon", Name: "Ship invoice batch", Status: models.TaskTodo, Priority: models.TaskPriorityMedium, DueDate: f.clock.now.AddDate(0, 0, 2)},
		{ID: "done", Name: "Closed out", Status: models.TaskDone, Priority: models.TaskPriorityMedium, DueDate: f.clock.now.AddDate(0, 0, 2)},
	} {
		require.NoError(t, f.store.Tasks().Save(ctx, task))
	}

	scheduled, err := f.sweeper.SweepDeadlines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)

	pending, err := f.store.ReminderSchedules().ListPendingByTypeAndEntity(ctx, models.ReminderTaskDue, "due-soon")
	require.NoError(t, err)
	assert.NotEmpty(t, pending)
}

func TestSweepDeadlines_NeverDoubleSchedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Projects().Save(ctx, &models.Project{
		ID: "p1", Name: "Site relaunch", ClientID: "c1",
		Status: models.ProjectActive, EndDate: f.clock.now.AddDate(0, 0, 2),
	}))

	scheduled, err := f.sweeper.SweepDeadlines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)

	scheduled, err = f.sweeper.SweepDeadlines(ctx)
	require.NoError(t, err)
	assert.Zero(t, scheduled)

	pending, err := f.store.ReminderSchedules().ListPendingByTypeAndEntity(ctx, models.ReminderProjectDeadline, "p1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestPrune(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, execution := range []*models.WorkflowExecution{
		{ID: "e-old", RuleID: "r1", Status: models.ExecutionCompleted, StartedAt: f.clock.now.AddDate(0, 0, -40)},
		{ID: "e-fresh", RuleID: "r1", Status: models.ExecutionCompleted, StartedAt: f.clock.now.AddDate(0, 0, -5)},
	} {
		require.NoError(t, f.store.WorkflowExecutions().Save(ctx, execution))
	}

	for _, entry := range []*models.AutomationLog{
		{ID: "log-old", Type: "invoice", EntityID: "inv-1", Action: "a", Status: models.LogSuccess, Timestamp: f.clock.now.AddDate(0, 0, -40)},
		{ID: "log-fresh", Type: "invoice", EntityID: "inv-1", Action: "a", Status: models.LogSuccess, Timestamp: f.clock.now.AddDate(0, 0, -5)},
	} {
		require.NoError(t, f.store.AutomationLogs().Append(ctx, entry))
	}

	pruned, err := f.sweeper.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	_, err = f.store.WorkflowExecutions().GetByID(ctx, "e-fresh")
	assert.NoError(t, err)

	_, err = f.store.WorkflowExecutions().GetByID(ctx, "e-old")
	assert.Error(t, err)
}
