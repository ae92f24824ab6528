package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogSender records the message through the logger without external
// delivery. Stands in for email/SMS transports in development and tests.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.Logger.InfoContext(ctx, "Notification dispatched",
		"channel", msg.Channel,
		"recipient", msg.Recipient,
		"subject", msg.Subject)

	return nil
}

// WebhookSender posts the message as JSON to the recipient URL.
type WebhookSender struct {
	Client *http.Client
}

func NewWebhookSender() *WebhookSender {
	return &WebhookSender{Client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msg.Recipient, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook notification: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook notification: recipient returned status %d", resp.StatusCode)
	}

	return nil
}

// InAppNotification is one persisted in-app notification record.
type InAppNotification struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// InAppStore persists in-app notifications for later retrieval.
type InAppStore interface {
	SaveNotification(ctx context.Context, notification *InAppNotification) error
}

// MemoryInAppStore keeps notifications in process memory, newest last.
type MemoryInAppStore struct {
	mu            sync.Mutex
	notifications []*InAppNotification
}

func NewMemoryInAppStore() *MemoryInAppStore {
	return &MemoryInAppStore{}
}

func (s *MemoryInAppStore) SaveNotification(_ context.Context, notification *InAppNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications = append(s.notifications, notification)

	return nil
}

// ListByRecipient returns the stored notifications addressed to recipient.
func (s *MemoryInAppStore) ListByRecipient(recipient string) []*InAppNotification {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := make([]*InAppNotification, 0)

	for _, n := range s.notifications {
		if n.Recipient == recipient {
			matches = append(matches, n)
		}
	}

	return matches
}

// InAppSender writes the message to the in-app store.
type InAppSender struct {
	Store InAppStore
}

func NewInAppSender(store InAppStore) *InAppSender {
	return &InAppSender{Store: store}
}

func (s *InAppSender) Send(ctx context.Context, msg Message) error {
	return s.Store.SaveNotification(ctx, &InAppNotification{
		ID:        uuid.NewString(),
		Recipient: msg.Recipient,
		Subject:   msg.Subject,
		Body:      msg.Body,
		CreatedAt: time.Now().UTC(),
	})
}
