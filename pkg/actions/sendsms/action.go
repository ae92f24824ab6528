// Package sendsms provides the send_sms workflow action.
package sendsms

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

// Action sends one templated SMS through the notification dispatcher.
type Action struct {
	Template   string
	Recipient  string
	dispatcher *notify.Dispatcher
}

func NewAction(config map[string]any, dispatcher *notify.Dispatcher) (*Action, error) {
	templateName, ok := config["template"].(string)
	if !ok || templateName == "" {
		return nil, ErrTemplateMissing
	}

	recipient, _ := config["phone"].(string)

	return &Action{
		Template:   templateName,
		Recipient:  recipient,
		dispatcher: dispatcher,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("module", "send_sms_action")

	recipient := a.Recipient
	if recipient == "" {
		if phone, ok := executionCtx.TriggerData["client_phone"].(string); ok {
			recipient = phone
		}
	}

	if recipient == "" {
		return nil, fmt.Errorf("no recipient configured and trigger data carries no client_phone")
	}

	data := make(map[string]any, len(executionCtx.TriggerData)+1)
	for k, v := range executionCtx.TriggerData {
		data[k] = v
	}
	data["entity_id"] = executionCtx.EntityID

	if err := a.dispatcher.Send(ctx, notify.ChannelSMS, recipient, a.Template, data); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "SMS dispatched", "recipient", recipient, "template", a.Template)

	return map[string]any{"recipient": recipient, "template": a.Template}, nil
}

func (a *Action) Validate(_ context.Context) error {
	if a.Template == "" {
		return ErrTemplateMissing
	}

	return nil
}

// Factory builds send_sms actions.
type Factory struct {
	Dispatcher *notify.Dispatcher
}

func (f *Factory) ID() models.ActionType {
	return models.ActionSendSMS
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.Dispatcher)
}
