// Package notification provides the send_notification workflow action, which
// posts an in-app notification for the triggering entity.
package notification

import (
	"context"
	"errors"
	"log/slog"

	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/notify"
	"github.com/billhawk/billhawk/pkg/protocol"
	"github.com/billhawk/billhawk/pkg/template"
)

// ErrMessageMissing is returned when the configuration carries no message.
var ErrMessageMissing = errors.New("missing 'message' in configuration")

// Action renders the configured message template and delivers it on the
// in-app channel.
type Action struct {
	Message    string
	Recipient  string
	dispatcher *notify.Dispatcher
}

func NewAction(config map[string]any, dispatcher *notify.Dispatcher) (*Action, error) {
	message, ok := config["message"].(string)
	if !ok || message == "" {
		return nil, ErrMessageMissing
	}

	recipient, _ := config["recipient"].(string)

	return &Action{
		Message:    message,
		Recipient:  recipient,
		dispatcher: dispatcher,
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("module", "send_notification_action")

	data := make(map[string]any, len(executionCtx.TriggerData)+1)
	for k, v := range executionCtx.TriggerData {
		data[k] = v
	}
	data["entity_id"] = executionCtx.EntityID

	message, err := template.Render(a.Message, data)
	if err != nil {
		return nil, err
	}

	recipient := a.Recipient
	if recipient == "" {
		if email, ok := executionCtx.TriggerData["client_email"].(string); ok {
			recipient = email
		}
	}

	// The rendered message itself is the template name here: the dispatcher
	// falls back to the raw string when no stored template matches, which is
	// exactly what ad-hoc notifications want.
	if err := a.dispatcher.Send(ctx, notify.ChannelInApp, recipient, message, data); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "In-app notification posted", "recipient", recipient)

	return map[string]any{"recipient": recipient, "message": message}, nil
}

func (a *Action) Validate(_ context.Context) error {
	if a.Message == "" {
		return ErrMessageMissing
	}

	if _, err := template.Parse(a.Message); err != nil {
		return err
	}

	return nil
}

// Factory builds send_notification actions.
type Factory struct {
	Dispatcher *notify.Dispatcher
}

func (f *Factory) ID() models.ActionType {
	return models.ActionSendNotification
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.Dispatcher)
}
