// Package notify renders notification templates and dispatches them over the
// configured channel. Delivery is at-least-once: every dispatch writes an
// automation log entry, failures are recorded and never retried here.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/persistence"
	"github.com/billhawk/billhawk/pkg/template"
)

// Channel names accepted by the dispatcher.
const (
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelInApp   = "in_app"
	ChannelWebhook = "webhook"
)

// ErrUnknownChannel is returned when a notification names a channel without a
// registered sender.
var ErrUnknownChannel = errors.New("unknown notification channel")

// Message is one rendered notification ready for transport.
type Message struct {
	Channel   string         `json:"channel"`
	Recipient string         `json:"recipient"`
	Subject   string         `json:"subject,omitempty"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sender is one outbound transport. Email and SMS transports are external
// collaborators injected at construction.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher routes rendered notifications to channel senders.
type Dispatcher struct {
	senders   map[string]Sender
	templates persistence.TemplateRepository
	logs      persistence.AutomationLogRepository
	logger    *slog.Logger
}

func NewDispatcher(
	templates persistence.TemplateRepository,
	logs persistence.AutomationLogRepository,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		senders:   make(map[string]Sender),
		templates: templates,
		logs:      logs,
		logger:    logger.With("module", "notify"),
	}
}

// RegisterSender binds a transport to a channel name.
func (d *Dispatcher) RegisterSender(channel string, sender Sender) {
	d.senders[channel] = sender
}

// Send renders the named template with data and dispatches the result.
func (d *Dispatcher) Send(ctx context.Context, channel, recipient, templateName string, data map[string]any) error {
	sender, ok := d.senders[channel]
	if !ok {
		return fmt.Errorf("channel %q: %w", channel, ErrUnknownChannel)
	}

	subject, body, err := d.render(ctx, templateName, data)
	if err != nil {
		return err
	}

	msg := Message{
		Channel:   channel,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Data:      data,
	}

	entityID, _ := data["entity_id"].(string)

	if err := sender.Send(ctx, msg); err != nil {
		d.audit(ctx, entityID, channel, models.LogError, err.Error())

		return fmt.Errorf("send via %s: %w", channel, err)
	}

	d.audit(ctx, entityID, channel, models.LogSuccess, "notification sent to "+recipient)

	return nil
}

func (d *Dispatcher) render(ctx context.Context, templateName string, data map[string]any) (string, string, error) {
	tpl, err := d.templates.GetByName(ctx, templateName)
	if err != nil {
		if persistence.IsNotFound(err) {
			// A missing template falls back to the raw name so ad-hoc
			// messages still go out.
			return "", templateName, nil
		}

		return "", "", err
	}

	subject, err := template.Render(tpl.Subject, data)
	if err != nil {
		return "", "", err
	}

	body, err := template.Render(tpl.Body, data)
	if err != nil {
		return "", "", err
	}

	return subject, body, nil
}

func (d *Dispatcher) audit(ctx context.Context, entityID, channel string, status models.LogStatus, details string) {
	entry := &models.AutomationLog{
		ID:        uuid.NewString(),
		Type:      "notification",
		EntityID:  entityID,
		Action:    "send_" + channel,
		Status:    status,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}

	if err := d.logs.Append(ctx, entry); err != nil {
		d.logger.ErrorContext(ctx, "Failed to write notification audit entry", "error", err)
	}
}
