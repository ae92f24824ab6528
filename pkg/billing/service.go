// Package billing orchestrates the payment-link lifecycle: fraud screening,
// link creation, webhook ingestion, refunds and analytics.
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/billhawk/billhawk/pkg/eventbus"
	"github.com/billhawk/billhawk/pkg/events"
	"github.com/billhawk/billhawk/pkg/fraud"
	"github.com/billhawk/billhawk/pkg/gateway"
	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/otelhelper"
	"github.com/billhawk/billhawk/pkg/persistence"
)

// Canceller clears pending reminders once their reason is gone, e.g. payment
// reminders for an invoice that just got paid.
type Canceller interface {
	Cancel(ctx context.Context, typ models.ReminderType, entityID string) error
}

// Service is the payment orchestrator. All link and invoice mutations flow
// through it; idempotency is enforced by checking persisted state before
// mutating, never by locking.
type Service struct {
	gateways  *gateway.Registry
	screen    *fraud.Screen
	store     persistence.Persistence
	publisher eventbus.EventPublisher
	reminders Canceller
	tracer    trace.Tracer
	logger    *slog.Logger
}

func NewService(
	gateways *gateway.Registry,
	screen *fraud.Screen,
	store persistence.Persistence,
	publisher eventbus.EventPublisher,
	reminders Canceller,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Service {
	return &Service{
		gateways:  gateways,
		screen:    screen,
		store:     store,
		publisher: publisher,
		reminders: reminders,
		tracer:    tracer,
		logger:    logger.With("module", "billing"),
	}
}

// CreateLink screens the request and opens a provider-hosted checkout link.
// A fraud decline performs no side effect: nothing is persisted and the
// provider is never called.
func (s *Service) CreateLink(ctx context.Context, gatewayName string, params gateway.CreateLinkParams) (*models.PaymentLink, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "billing.create_link",
		attribute.String(otelhelper.GatewayKey, gatewayName),
		attribute.String(otelhelper.InvoiceIDKey, params.InvoiceID))
	defer span.End()

	if err := s.screen.Check(ctx, params.Amount, params.ClientEmail); err != nil {
		otelhelper.SetError(span, err)
		s.logger.WarnContext(ctx, "Payment link declined by fraud screen",
			"invoice_id", params.InvoiceID, "error", err)

		return nil, err
	}

	gw, err := s.gateways.Get(gatewayName)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	link, err := gw.CreatePaymentLink(ctx, params)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("gateway %s: create link: %w", gatewayName, err)
	}

	if err := s.store.PaymentLinks().Save(ctx, link); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	s.audit(ctx, "payment_link", link.ID, "create_link", models.LogSuccess,
		fmt.Sprintf("link created via %s for invoice %s", gatewayName, params.InvoiceID))

	s.logger.InfoContext(ctx, "Payment link created",
		"link_id", link.ID, "gateway", gatewayName, "invoice_id", params.InvoiceID)

	return link, nil
}

// IngestWebhook parses a provider webhook and applies the resulting state
// change. Re-delivery of an already-applied terminal event is a no-op.
// gateway.ErrUnhandledEventType propagates so the web layer can acknowledge
// without retrying.
func (s *Service) IngestWebhook(ctx context.Context, gatewayName string, payload []byte, signature string) (*gateway.WebhookResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "billing.ingest_webhook",
		attribute.String(otelhelper.GatewayKey, gatewayName))
	defer span.End()

	gw, err := s.gateways.Get(gatewayName)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	result, err := gw.ProcessWebhook(ctx, payload, signature)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.PaymentIDKey, result.PaymentID))

	link, err := s.resolveLink(ctx, gatewayName, result)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	paidAmount := result.PaidAmount
	if paidAmount == 0 && result.EventType == gateway.EventPaymentCompleted {
		paidAmount = link.Amount
	}

	// Idempotency: a terminal link with the same paid amount means this
	// delivery was already applied.
	if link.Status.IsTerminal() && link.PaidAmount == paidAmount {
		s.logger.InfoContext(ctx, "Webhook already applied, skipping",
			"link_id", link.ID, "event_type", result.EventType)

		return result, nil
	}

	switch result.EventType {
	case gateway.EventPaymentCompleted:
		err = s.applyPaymentCompleted(ctx, link, result, paidAmount)
	case gateway.EventPaymentFailed, gateway.EventPaymentExpired:
		err = s.applyPaymentTerminal(ctx, link, result, models.PaymentLinkCancelled)
	case gateway.EventPaymentDisputed:
		// Disputes do not move the link; the audit trail records them.
		s.audit(ctx, "payment_link", link.ID, "payment_disputed", models.LogError,
			fmt.Sprintf("dispute opened for payment %s", result.PaymentID))
	}

	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return result, nil
}

func (s *Service) applyPaymentCompleted(ctx context.Context, link *models.PaymentLink, result *gateway.WebhookResult, paidAmount float64) error {
	now := time.Now().UTC()

	link.Status = models.PaymentLinkCompleted
	link.PaidAmount = paidAmount
	link.PaidAt = &now
	link.UpdatedAt = now

	if err := s.store.PaymentLinks().Save(ctx, link); err != nil {
		return err
	}

	invoice, err := s.store.Invoices().GetByID(ctx, link.InvoiceID)
	if err != nil {
		return err
	}

	invoice.PaidAmount += paidAmount
	if invoice.FullyCovered() {
		invoice.PaymentStatus = models.InvoicePaymentPaid
		if invoice.CanTransition(models.InvoicePaid) {
			invoice.Status = models.InvoicePaid
		}
	} else {
		invoice.PaymentStatus = models.InvoicePaymentPartial
	}
	invoice.UpdatedAt = now

	if err := s.store.Invoices().Save(ctx, invoice); err != nil {
		return err
	}

	s.audit(ctx, "payment_link", link.ID, "payment_completed", models.LogSuccess,
		fmt.Sprintf("payment of %.2f applied to invoice %s", paidAmount, invoice.ID))

	if err := s.reminders.Cancel(ctx, models.ReminderInvoicePayment, invoice.ID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to cancel payment reminders",
			"invoice_id", invoice.ID, "error", err)
	}

	event := events.PaymentReceived{
		BaseEvent: events.BaseEvent{
			ID:        uuid.NewString(),
			Type:      events.PaymentReceivedEvent,
			EntityID:  invoice.ID,
			Timestamp: now,
			Data: map[string]any{
				"invoice_id":   invoice.ID,
				"client_email": link.ClientEmail,
				"gateway":      link.Gateway,
				"payment_id":   result.PaymentID,
				"amount":       paidAmount,
			},
		},
		InvoiceID:  invoice.ID,
		Gateway:    link.Gateway,
		PaymentID:  result.PaymentID,
		PaidAmount: paidAmount,
	}

	if err := s.publisher.Publish(ctx, invoice.ID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish payment.received",
			"invoice_id", invoice.ID, "error", err)
	}

	return nil
}

// applyPaymentTerminal handles failed and expired payments. The link moves to
// its terminal state; the invoice is untouched beyond the audit trail.
func (s *Service) applyPaymentTerminal(ctx context.Context, link *models.PaymentLink, result *gateway.WebhookResult, status models.PaymentLinkStatus) error {
	now := time.Now().UTC()

	link.Status = status
	link.UpdatedAt = now

	if err := s.store.PaymentLinks().Save(ctx, link); err != nil {
		return err
	}

	s.audit(ctx, "payment_link", link.ID, string(result.EventType), models.LogError,
		fmt.Sprintf("payment %s reported %s", result.PaymentID, result.EventType))

	event := events.PaymentFailed{
		BaseEvent: events.BaseEvent{
			ID:        uuid.NewString(),
			Type:      events.PaymentFailedEvent,
			EntityID:  link.InvoiceID,
			Timestamp: now,
			Data: map[string]any{
				"invoice_id":   link.InvoiceID,
				"client_email": link.ClientEmail,
				"gateway":      link.Gateway,
				"payment_id":   result.PaymentID,
				"reason":       string(result.EventType),
			},
		},
		InvoiceID: link.InvoiceID,
		Gateway:   link.Gateway,
		PaymentID: result.PaymentID,
		Reason:    string(result.EventType),
	}

	if err := s.publisher.Publish(ctx, link.InvoiceID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish payment.failed",
			"invoice_id", link.InvoiceID, "error", err)
	}

	return nil
}

// resolveLink finds the persisted link a webhook refers to. Providers report
// either the link id or a transaction id, so the metadata's invoice id is the
// fallback correlation key.
func (s *Service) resolveLink(ctx context.Context, gatewayName string, result *gateway.WebhookResult) (*models.PaymentLink, error) {
	link, err := s.store.PaymentLinks().GetByID(ctx, result.PaymentID)
	if err == nil {
		return link, nil
	}

	if !persistence.IsNotFound(err) {
		return nil, err
	}

	invoiceID, _ := result.Metadata["invoice_id"].(string)
	if invoiceID == "" {
		return nil, fmt.Errorf("webhook payment %s: %w", result.PaymentID, persistence.ErrPaymentLinkNotFound)
	}

	links, err := s.store.PaymentLinks().ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	for _, candidate := range links {
		if candidate.Gateway == gatewayName {
			return candidate, nil
		}
	}

	return nil, fmt.Errorf("webhook payment %s (invoice %s): %w",
		result.PaymentID, invoiceID, persistence.ErrPaymentLinkNotFound)
}

// Refund issues a provider refund and moves the link to refunded or
// partially_refunded. Invoice status is deliberately untouched; refund
// reconciliation is tracked separately.
func (s *Service) Refund(ctx context.Context, gatewayName, paymentID string, amount *float64) (*gateway.RefundResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "billing.refund",
		attribute.String(otelhelper.GatewayKey, gatewayName),
		attribute.String(otelhelper.PaymentIDKey, paymentID))
	defer span.End()

	gw, err := s.gateways.Get(gatewayName)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	refund, err := gw.RefundPayment(ctx, paymentID, amount)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	link, err := s.store.PaymentLinks().GetByID(ctx, paymentID)
	if err != nil {
		if persistence.IsNotFound(err) {
			s.logger.WarnContext(ctx, "Refund issued for unknown link", "payment_id", paymentID)

			return refund, nil
		}

		return nil, err
	}

	if amount == nil || *amount >= link.PaidAmount {
		link.Status = models.PaymentLinkRefunded
	} else {
		link.Status = models.PaymentLinkPartiallyRefunded
	}
	link.UpdatedAt = time.Now().UTC()

	if err := s.store.PaymentLinks().Save(ctx, link); err != nil {
		return nil, err
	}

	s.audit(ctx, "payment_link", link.ID, "refund", models.LogSuccess,
		fmt.Sprintf("refund %s of %.2f processed", refund.RefundID, refund.Amount))

	return refund, nil
}

// Status looks a payment up at the provider. The persisted link record stays
// authoritative for application state.
func (s *Service) Status(ctx context.Context, gatewayName, paymentID string) (*models.PaymentStatus, error) {
	gw, err := s.gateways.Get(gatewayName)
	if err != nil {
		return nil, err
	}

	return gw.GetPaymentStatus(ctx, paymentID)
}

func (s *Service) audit(ctx context.Context, entityType, entityID, action string, status models.LogStatus, details string) {
	entry := &models.AutomationLog{
		ID:        uuid.NewString(),
		Type:      entityType,
		EntityID:  entityID,
		Action:    action,
		Status:    status,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}

	if err := s.store.AutomationLogs().Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "Failed to write billing audit entry", "error", err)
	}
}
