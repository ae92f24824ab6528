// Package sendemail provides the send_email workflow action.
package sendemail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/notify"
	"github.com/billhawk/billhawk/pkg/protocol"
)

// ErrTemplateMissing is returned when the configuration names no template.
var ErrTemplateMissing = errors.New("missing 'template' in configuration")

// Action sends one templated email through the notification dispatcher. The
// recipient falls back to the trigger's client_email when not configured.
type Action struct {
	Template   string
	Recipient  string
	Subject    string
	dispatcher *notify.Dispatcher
}

func NewAction(config map[string]any, dispatcher *notify.Dispatcher) (*Action, error) {
	templateName, ok := config["template"].(string)
	if !ok || templateName == "" {
		return nil, ErrTemplateMissing
	}

	recipient, _ := config["recipient"].(string)
	subject, _ := config["subject"].(string)

	return &Action{
		Template:   templateName,
		Recipient:  recipient,
		Subject:    subject,
		dispatcher: dispatcher,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("module", "send_email_action")

	recipient := a.Recipient
	if recipient == "" {
		if email, ok := executionCtx.TriggerData["client_email"].(string); ok {
			recipient = email
		}
	}

	if recipient == "" {
		return nil, fmt.Errorf("no recipient configured and trigger data carries no client_email")
	}

	data := executionData(executionCtx)

	if err := a.dispatcher.Send(ctx, notify.ChannelEmail, recipient, a.Template, data); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Email dispatched", "recipient", recipient, "template", a.Template)

	return map[string]any{"recipient": recipient, "template": a.Template}, nil
}

func (a *Action) Validate(_ context.Context) error {
	if a.Template == "" {
		return ErrTemplateMissing
	}

	return nil
}

func executionData(executionCtx models.ExecutionContext) map[string]any {
	data := make(map[string]any, len(executionCtx.TriggerData)+1)
	for k, v := range executionCtx.TriggerData {
		data[k] = v
	}

	data["entity_id"] = executionCtx.EntityID

	return data
}

// Factory builds send_email actions.
type Factory struct {
	Dispatcher *notify.Dispatcher
}

func (f *Factory) ID() models.ActionType {
	return models.ActionSendEmail
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.Dispatcher)
}
