package billing

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/billhawk/billhawk/pkg/channels/gochannel"
	"github.com/billhawk/billhawk/pkg/eventbus"
	"github.com/billhawk/billhawk/pkg/fraud"
	"github.com/billhawk/billhawk/pkg/gateway"
	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/notify"
	"github.com/billhawk/billhawk/pkg/persistence/file"
	"github.com/billhawk/billhawk/pkg/protocol"
	actionregistry "github.com/billhawk/billhawk/pkg/registry"
	"github.com/billhawk/billhawk/pkg/reminder"
	"github.com/billhawk/billhawk/pkg/workflow"
)

type countingAction struct {
	calls *atomic.Int32
}

func (a *countingAction) Execute(_ context.Context, _ models.ExecutionContext, _ *slog.Logger) (any, error) {
	a.calls.Add(1)

	return map[string]any{"ok": true}, nil
}

func (a *countingAction) Validate(_ context.Context) error { return nil }

type countingFactory struct {
	actionType models.ActionType
	calls      atomic.Int32
}

func (f *countingFactory) ID() models.ActionType { return f.actionType }

func (f *countingFactory) Create(_ map[string]any) (protocol.Action, error) {
	return &countingAction{calls: &f.calls}, nil
}

// Wires the billing service, reminder scheduler, and rule engine over an
// in-process watermill bus, the same shape the single-binary deployment runs:
// a settled payment must mark the invoice paid, cancel its pending reminder,
// and drive the matching automation rule through the bus subscription.
func TestIngestWebhook_PublishedEventRunsMatchingRules(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := file.NewPersistence(t.TempDir())

	pub, sub := gochannel.CreateTestChannel(watermill.NewSlogLogger(logger))
	bus := eventbus.NewWatermillEventBus(pub, sub)

	t.Cleanup(func() {
		if err := bus.Close(); err != nil {
			t.Logf("Failed to close event bus: %v", err)
		}
	})

	dispatcher := notify.NewDispatcher(store.Templates(), store.AutomationLogs(), logger)
	dispatcher.RegisterSender(notify.ChannelEmail, &notify.LogSender{Logger: logger})

	scheduler := reminder.NewScheduler(store, dispatcher, bus, nil, logger)
	t.Cleanup(scheduler.Stop)

	email := &countingFactory{actionType: models.ActionSendEmail}
	reg := actionregistry.NewRegistry(logger)
	reg.RegisterAction(email)

	engine := workflow.NewEngine(store.AutomationRules(), store.WorkflowExecutions(),
		store.AutomationLogs(), reg, logger)
	require.NoError(t, engine.BindEventBus(bus))
	require.NoError(t, bus.Subscribe(ctx))

	gw := &fakeGateway{
		name: "stripe",
		webhookResult: &gateway.WebhookResult{
			EventType:  gateway.EventPaymentCompleted,
			PaymentID:  "cs_1",
			Status:     "paid",
			PaidAmount: 100,
			Metadata:   map[string]any{"invoice_id": "inv-1"},
		},
	}
	gateways := gateway.NewRegistry(logger)
	gateways.Register(gw)

	screen := fraud.NewScreen(fraud.Config{}, fraud.NewMemoryVelocityStore(), logger)
	tracer := noop.NewTracerProvider().Tracer("test")
	service := NewService(gateways, screen, store, bus, scheduler, tracer, logger)

	require.NoError(t, store.Invoices().Save(ctx, &models.Invoice{
		ID: "inv-1", ClientID: "c1", TotalAmount: 100,
		Status: models.InvoiceSent, PaymentStatus: models.InvoicePaymentPending,
	}))
	require.NoError(t, store.PaymentLinks().Save(ctx, &models.PaymentLink{
		ID: "cs_1", Gateway: "stripe", Amount: 100, Currency: "USD",
		InvoiceID: "inv-1", ClientEmail: "client@example.com",
		Status: models.PaymentLinkActive,
	}))
	require.NoError(t, store.AutomationRules().Save(ctx, &models.AutomationRule{
		ID:      "thank-you",
		Name:    "thank client on payment",
		Trigger: models.TriggerSpec{Type: models.TriggerPaymentReceived},
		Conditions: []models.Condition{
			{Field: "amount", Operator: models.OpGte, Value: 100.0},
		},
		Actions:  []models.ActionSpec{{Type: models.ActionSendEmail, Config: map[string]any{"template": "receipt"}}},
		IsActive: true,
	}))

	schedules, err := scheduler.Schedule(ctx, models.ReminderInvoicePayment, "inv-1",
		time.Now().UTC().AddDate(0, 0, 5), models.ReminderConfig{DaysBefore: []int{3}})
	require.NoError(t, err)
	require.Len(t, schedules, 1)

	_, err = service.IngestWebhook(ctx, "stripe", []byte(`{}`), "")
	require.NoError(t, err)

	invoice, err := store.Invoices().GetByID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, invoice.Status)
	assert.Equal(t, models.InvoicePaymentPaid, invoice.PaymentStatus)

	pending, err := store.ReminderSchedules().ListPendingByTypeAndEntity(ctx, models.ReminderInvoicePayment, "inv-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.Eventually(t, func() bool {
		return email.calls.Load() == 1
	}, time.Second, 10*time.Millisecond, "rule should fire once from the bus subscription")

	// Provider re-delivery of the settled event is a no-op end to end: no
	// second publish, no second rule execution.
	_, err = service.IngestWebhook(ctx, "stripe", []byte(`{}`), "")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), email.calls.Load())
}
