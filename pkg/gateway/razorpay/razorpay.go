// Package razorpay implements the gateway contract against the Razorpay
// Payment Links REST API.
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/billhawk/billhawk/pkg/gateway"
	"github.com/billhawk/billhawk/pkg/models"
)

const (
	gatewayName    = "razorpay"
	defaultBaseURL = "https://api.razorpay.com"
	defaultTimeout = 30 * time.Second
)

// Config carries the provider-issued credentials and optional overrides.
type Config struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	HTTPClient    *http.Client
}

// Gateway talks to the Razorpay REST API. Amounts cross the boundary in
// major units and are converted to paise internally.
type Gateway struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	client        *http.Client
	logger        *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Gateway {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &Gateway{
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		client:        client,
		logger:        logger.With("gateway", gatewayName),
	}
}

func (g *Gateway) Name() string {
	return gatewayName
}

// CreatePaymentLink opens a Razorpay payment link. The invoice id and client
// email always ride along in notes for webhook correlation.
func (g *Gateway) CreatePaymentLink(ctx context.Context, params gateway.CreateLinkParams) (*models.PaymentLink, error) {
	notes := map[string]any{
		"invoice_id":   params.InvoiceID,
		"client_email": params.ClientEmail,
	}
	for k, v := range params.Metadata {
		notes[k] = v
	}

	body := map[string]any{
		"amount":          toPaise(params.Amount),
		"currency":        params.Currency,
		"description":     params.Description,
		"accept_partial":  params.AllowPartialPayments,
		"notify":          map[string]any{"email": true},
		"reminder_enable": false,
		"customer": map[string]any{
			"name":  params.ClientName,
			"email": params.ClientEmail,
		},
		"notes": notes,
	}

	if params.SuccessURL != "" {
		body["callback_url"] = params.SuccessURL
		body["callback_method"] = "get"
	}

	if params.ExpiresAt != nil {
		body["expire_by"] = params.ExpiresAt.Unix()
	}

	var created paymentLink

	if err := g.do(ctx, http.MethodPost, "/v1/payment_links", body, &created); err != nil {
		return nil, fmt.Errorf("razorpay create link: %w", err)
	}

	now := time.Now().UTC()
	link := &models.PaymentLink{
		ID:          created.ID,
		Gateway:     gatewayName,
		URL:         created.ShortURL,
		Amount:      params.Amount,
		Currency:    params.Currency,
		Description: params.Description,
		InvoiceID:   params.InvoiceID,
		ClientEmail: params.ClientEmail,
		ClientName:  params.ClientName,
		Status:      models.PaymentLinkActive,
		Metadata:    params.Metadata,
		ExpiresAt:   params.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	return link, nil
}

// ProcessWebhook parses a Razorpay webhook. The X-Razorpay-Signature HMAC is
// verified when present; unsigned test payloads are accepted.
func (g *Gateway) ProcessWebhook(_ context.Context, payload []byte, signature string) (*gateway.WebhookResult, error) {
	if signature != "" && g.webhookSecret != "" {
		if !verifySignature(payload, signature, g.webhookSecret) {
			return nil, fmt.Errorf("razorpay webhook: %w", gateway.ErrSignatureInvalid)
		}
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("razorpay webhook: malformed payload: %w", err)
	}

	var eventType gateway.WebhookEventType

	switch event.Event {
	case "payment_link.paid":
		eventType = gateway.EventPaymentCompleted
	case "payment.failed":
		eventType = gateway.EventPaymentFailed
	case "payment_link.expired":
		eventType = gateway.EventPaymentExpired
	case "payment.dispute.created":
		eventType = gateway.EventPaymentDisputed
	default:
		return nil, fmt.Errorf("razorpay webhook %q: %w", event.Event, gateway.ErrUnhandledEventType)
	}

	entity := event.Payload.PaymentLink.Entity
	paymentID := entity.ID
	metadata := entity.Notes

	if paymentID == "" {
		paymentID = event.Payload.Payment.Entity.ID

		if metadata == nil {
			metadata = event.Payload.Payment.Entity.Notes
		}
	}

	result := &gateway.WebhookResult{
		EventType:  eventType,
		PaymentID:  paymentID,
		Status:     entity.Status,
		Amount:     fromPaise(entity.Amount),
		PaidAmount: fromPaise(entity.AmountPaid),
		Metadata:   metadata,
	}

	if result.Status == "" {
		result.Status = event.Payload.Payment.Entity.Status
	}

	return result, nil
}

// GetPaymentStatus looks a payment up by payment-link id (plink_) or by the
// underlying payment id (pay_), since the provider exposes both.
func (g *Gateway) GetPaymentStatus(ctx context.Context, id string) (*models.PaymentStatus, error) {
	if strings.HasPrefix(id, "pay_") {
		var payment paymentEntity
		if err := g.do(ctx, http.MethodGet, "/v1/payments/"+id, nil, &payment); err != nil {
			return nil, fmt.Errorf("razorpay payment status: %w", err)
		}

		return payment.toStatus(), nil
	}

	var link paymentLink
	if err := g.do(ctx, http.MethodGet, "/v1/payment_links/"+id, nil, &link); err != nil {
		return nil, fmt.Errorf("razorpay payment status: %w", err)
	}

	return link.toStatus(), nil
}

// RefundPayment resolves the settled payment behind the link, then issues the
// refund. A nil amount refunds in full.
func (g *Gateway) RefundPayment(ctx context.Context, id string, amount *float64) (*gateway.RefundResult, error) {
	paymentID := id

	if !strings.HasPrefix(id, "pay_") {
		var link paymentLink
		if err := g.do(ctx, http.MethodGet, "/v1/payment_links/"+id, nil, &link); err != nil {
			return nil, fmt.Errorf("razorpay refund: %w", err)
		}

		paymentID = link.settledPaymentID()
		if paymentID == "" {
			return nil, fmt.Errorf("razorpay refund for %s: %w", id, gateway.ErrTransactionNotFound)
		}
	}

	body := map[string]any{}
	if amount != nil {
		body["amount"] = toPaise(*amount)
	}

	var refund refundEntity
	if err := g.do(ctx, http.MethodPost, "/v1/payments/"+paymentID+"/refund", body, &refund); err != nil {
		return nil, fmt.Errorf("razorpay refund: %w", err)
	}

	return &gateway.RefundResult{
		RefundID:      refund.ID,
		PaymentID:     id,
		TransactionID: paymentID,
		Amount:        fromPaise(refund.Amount),
		Status:        refund.Status,
	}, nil
}

func (g *Gateway) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return err
	}

	req.SetBasicAuth(g.keyID, g.keySecret)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return gateway.WrapUpstream(gatewayName, method+" "+path, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gateway.WrapUpstream(gatewayName, method+" "+path, err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)

		return gateway.NewUpstreamError(gatewayName, method+" "+path, resp.StatusCode, apiErr.Error.Description)
	}

	return json.Unmarshal(data, out)
}

func verifySignature(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// Razorpay amounts are integer paise.
func toPaise(amount float64) int64 {
	return int64(amount*100 + 0.5)
}

func fromPaise(paise int64) float64 {
	return float64(paise) / 100
}

type paymentLink struct {
	ID         string         `json:"id"`
	ShortURL   string         `json:"short_url"`
	Amount     int64          `json:"amount"`
	AmountPaid int64          `json:"amount_paid"`
	Currency   string         `json:"currency"`
	Status     string         `json:"status"`
	Notes      map[string]any `json:"notes"`
	Payments   []struct {
		PaymentID string `json:"payment_id"`
		Status    string `json:"status"`
		Method    string `json:"method"`
		CreatedAt int64  `json:"created_at"`
	} `json:"payments"`
}

func (l *paymentLink) settledPaymentID() string {
	for _, p := range l.Payments {
		if p.Status == "captured" {
			return p.PaymentID
		}
	}

	return ""
}

func (l *paymentLink) toStatus() *models.PaymentStatus {
	status := &models.PaymentStatus{
		ID:         l.ID,
		Amount:     fromPaise(l.Amount),
		PaidAmount: fromPaise(l.AmountPaid),
		Metadata:   l.Notes,
	}

	switch l.Status {
	case "paid":
		status.Status = models.PaymentCompleted
	case "cancelled":
		status.Status = models.PaymentCancelled
	case "expired":
		status.Status = models.PaymentFailed
	default:
		status.Status = models.PaymentPending
	}

	if id := l.settledPaymentID(); id != "" {
		status.TransactionID = id
	}

	return status
}

type paymentEntity struct {
	ID        string         `json:"id"`
	Amount    int64          `json:"amount"`
	Currency  string         `json:"currency"`
	Status    string         `json:"status"`
	Method    string         `json:"method"`
	Notes     map[string]any `json:"notes"`
	CreatedAt int64          `json:"created_at"`
}

func (p *paymentEntity) toStatus() *models.PaymentStatus {
	status := &models.PaymentStatus{
		ID:            p.ID,
		Amount:        fromPaise(p.Amount),
		PaymentMethod: p.Method,
		TransactionID: p.ID,
		Metadata:      p.Notes,
	}

	switch p.Status {
	case "captured":
		status.Status = models.PaymentCompleted
		status.PaidAmount = fromPaise(p.Amount)

		paidAt := time.Unix(p.CreatedAt, 0).UTC()
		status.PaidAt = &paidAt
	case "failed":
		status.Status = models.PaymentFailed
	case "authorized":
		status.Status = models.PaymentProcessing
	default:
		status.Status = models.PaymentPending
	}

	return status
}

type refundEntity struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		PaymentLink struct {
			Entity paymentLink `json:"entity"`
		} `json:"payment_link"`
		Payment struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}
