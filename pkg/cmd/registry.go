package cmd

import (
	"log/slog"

	"github.com/billhawk/billhawk/pkg/actions/createtask"
	"github.com/billhawk/billhawk/pkg/actions/noop"
	"github.com/billhawk/billhawk/pkg/actions/notification"
	"github.com/billhawk/billhawk/pkg/actions/sendemail"
	"github.com/billhawk/billhawk/pkg/actions/sendsms"
	"github.com/billhawk/billhawk/pkg/actions/updatestatus"
	"github.com/billhawk/billhawk/pkg/actions/webhook"
	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/notify"
	"github.com/billhawk/billhawk/pkg/persistence"
	"github.com/billhawk/billhawk/pkg/registry"
)

// NewRegistry wires the full action set the rule engine can dispatch to.
func NewRegistry(store persistence.Persistence, dispatcher *notify.Dispatcher, logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterAction(&sendemail.Factory{Dispatcher: dispatcher})
	reg.RegisterAction(&sendsms.Factory{Dispatcher: dispatcher})
	reg.RegisterAction(&notification.Factory{Dispatcher: dispatcher})
	reg.RegisterAction(&createtask.Factory{Tasks: store.Tasks()})
	reg.RegisterAction(&updatestatus.Factory{
		Invoices: store.Invoices(),
		Projects: store.Projects(),
		Tasks:    store.Tasks(),
	})
	reg.RegisterAction(&webhook.Factory{})
	reg.RegisterAction(&noop.Factory{Type: models.ActionGenerateInvoice})
	reg.RegisterAction(&noop.Factory{Type: models.ActionApplyLateFee})

	return reg
}

// NewDispatcher wires the notification dispatcher with the default channel
// senders. Email and SMS use the log transport until real providers are
// configured.
func NewDispatcher(store persistence.Persistence, logger *slog.Logger) *notify.Dispatcher {
	dispatcher := notify.NewDispatcher(store.Templates(), store.AutomationLogs(), logger)

	logSender := &notify.LogSender{Logger: logger}
	dispatcher.RegisterSender(notify.ChannelEmail, logSender)
	dispatcher.RegisterSender(notify.ChannelSMS, logSender)
	dispatcher.RegisterSender(notify.ChannelWebhook, notify.NewWebhookSender())
	dispatcher.RegisterSender(notify.ChannelInApp, notify.NewInAppSender(notify.NewMemoryInAppStore()))

	return dispatcher
}
