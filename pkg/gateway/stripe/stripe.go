// Package stripe implements the gateway contract against the Stripe Checkout
// Sessions REST API. Webhooks must carry a valid Stripe-Signature header;
// unsigned payloads are rejected outright.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/billhawk/billhawk/pkg/gateway"
	"github.com/billhawk/billhawk/pkg/models"
)

const (
	gatewayName    = "stripe"
	defaultBaseURL = "https://api.stripe.com"
	defaultTimeout = 30 * time.Second

	// signatureTolerance bounds webhook replay: timestamps older than this
	// are treated as invalid.
	signatureTolerance = 5 * time.Minute
)

// Config carries the provider-issued credentials and optional overrides.
type Config struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
	HTTPClient    *http.Client
}

// Gateway talks to the Stripe REST API. Amounts cross the boundary in major
// units and are converted to cents internally.
type Gateway struct {
	apiKey        string
	webhookSecret string
	baseURL       string
	client        *http.Client
	logger        *slog.Logger
	now           func() time.Time
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
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		client:        client,
		logger:        logger.With("gateway", gatewayName),
		now:           time.Now,
	}
}

func (g *Gateway) Name() string {
	return gatewayName
}

// CreatePaymentLink opens a Stripe checkout session for the invoice amount.
func (g *Gateway) CreatePaymentLink(ctx context.Context, params gateway.CreateLinkParams) (*models.PaymentLink, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(params.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(toCents(params.Amount), 10))
	form.Set("line_items[0][price_data][product_data][name]", productName(params))
	form.Set("customer_email", params.ClientEmail)
	form.Set("metadata[invoice_id]", params.InvoiceID)
	form.Set("metadata[client_email]", params.ClientEmail)

	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", fmt.Sprintf("%v", v))
	}

	if params.SuccessURL != "" {
		form.Set("success_url", params.SuccessURL)
	}

	if params.CancelURL != "" {
		form.Set("cancel_url", params.CancelURL)
	}

	if params.ExpiresAt != nil {
		form.Set("expires_at", strconv.FormatInt(params.ExpiresAt.Unix(), 10))
	}

	var session checkoutSession
	if err := g.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, fmt.Errorf("stripe create link: %w", err)
	}

	now := time.Now().UTC()
	link := &models.PaymentLink{
		ID:          session.ID,
		Gateway:     gatewayName,
		URL:         session.URL,
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

// ProcessWebhook verifies the Stripe-Signature header and normalizes the
// event. Absent or invalid signatures fail closed.
func (g *Gateway) ProcessWebhook(_ context.Context, payload []byte, signature string) (*gateway.WebhookResult, error) {
	if err := g.verifySignature(payload, signature); err != nil {
		return nil, err
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("stripe webhook: malformed payload: %w", err)
	}

	var eventType gateway.WebhookEventType

	switch event.Type {
	case "checkout.session.completed":
		eventType = gateway.EventPaymentCompleted
	case "checkout.session.async_payment_failed", "payment_intent.payment_failed":
		eventType = gateway.EventPaymentFailed
	case "checkout.session.expired":
		eventType = gateway.EventPaymentExpired
	case "charge.dispute.created":
		eventType = gateway.EventPaymentDisputed
	default:
		return nil, fmt.Errorf("stripe webhook %q: %w", event.Type, gateway.ErrUnhandledEventType)
	}

	object := event.Data.Object

	result := &gateway.WebhookResult{
		EventType:  eventType,
		PaymentID:  object.ID,
		Status:     object.Status,
		Amount:     fromCents(object.AmountTotal),
		PaidAmount: fromCents(object.AmountTotal),
		Metadata:   object.Metadata,
	}

	if eventType != gateway.EventPaymentCompleted {
		result.PaidAmount = 0
	}

	return result, nil
}

func (g *Gateway) verifySignature(payload []byte, header string) error {
	if header == "" || g.webhookSecret == "" {
		return fmt.Errorf("stripe webhook: missing signature: %w", gateway.ErrSignatureInvalid)
	}

	var (
		timestamp  string
		signatures []string
	)

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}

		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return fmt.Errorf("stripe webhook: malformed signature header: %w", gateway.ErrSignatureInvalid)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("stripe webhook: malformed signature timestamp: %w", gateway.ErrSignatureInvalid)
	}

	if g.now().Sub(time.Unix(ts, 0)) > signatureTolerance {
		return fmt.Errorf("stripe webhook: signature timestamp too old: %w", gateway.ErrSignatureInvalid)
	}

	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}

	return fmt.Errorf("stripe webhook: signature mismatch: %w", gateway.ErrSignatureInvalid)
}

// GetPaymentStatus looks a payment up by checkout session id (cs_) or by the
// underlying payment intent id (pi_).
func (g *Gateway) GetPaymentStatus(ctx context.Context, id string) (*models.PaymentStatus, error) {
	if strings.HasPrefix(id, "pi_") {
		var intent paymentIntent
		if err := g.do(ctx, http.MethodGet, "/v1/payment_intents/"+id, nil, &intent); err != nil {
			return nil, fmt.Errorf("stripe payment status: %w", err)
		}

		return intent.toStatus(), nil
	}

	var session checkoutSession
	if err := g.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+id, nil, &session); err != nil {
		return nil, fmt.Errorf("stripe payment status: %w", err)
	}

	return session.toStatus(), nil
}

// RefundPayment resolves the payment intent behind the session before
// issuing the refund. A nil amount refunds in full.
func (g *Gateway) RefundPayment(ctx context.Context, id string, amount *float64) (*gateway.RefundResult, error) {
	intentID := id

	if !strings.HasPrefix(id, "pi_") {
		var session checkoutSession
		if err := g.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+id, nil, &session); err != nil {
			return nil, fmt.Errorf("stripe refund: %w", err)
		}

		intentID = session.PaymentIntent
		if intentID == "" {
			return nil, fmt.Errorf("stripe refund for %s: %w", id, gateway.ErrTransactionNotFound)
		}
	}

	form := url.Values{}
	form.Set("payment_intent", intentID)

	if amount != nil {
		form.Set("amount", strconv.FormatInt(toCents(*amount), 10))
	}

	var refund refundObject
	if err := g.do(ctx, http.MethodPost, "/v1/refunds", form, &refund); err != nil {
		return nil, fmt.Errorf("stripe refund: %w", err)
	}

	return &gateway.RefundResult{
		RefundID:      refund.ID,
		PaymentID:     id,
		TransactionID: intentID,
		Amount:        fromCents(refund.Amount),
		Status:        refund.Status,
	}, nil
}

func (g *Gateway) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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

		return gateway.NewUpstreamError(gatewayName, method+" "+path, resp.StatusCode, apiErr.Error.Message)
	}

	return json.Unmarshal(data, out)
}

func productName(params gateway.CreateLinkParams) string {
	if params.Description != "" {
		return params.Description
	}

	return "Invoice " + params.InvoiceID
}

// Stripe amounts are integer cents.
func toCents(amount float64) int64 {
	return int64(amount*100 + 0.5)
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}

type checkoutSession struct {
	ID            string         `json:"id"`
	URL           string         `json:"url"`
	AmountTotal   int64          `json:"amount_total"`
	Currency      string         `json:"currency"`
	Status        string         `json:"status"`
	PaymentStatus string         `json:"payment_status"`
	PaymentIntent string         `json:"payment_intent"`
	Metadata      map[string]any `json:"metadata"`
}

func (s *checkoutSession) toStatus() *models.PaymentStatus {
	status := &models.PaymentStatus{
		ID:            s.ID,
		Amount:        fromCents(s.AmountTotal),
		TransactionID: s.PaymentIntent,
		Metadata:      s.Metadata,
	}

	switch {
	case s.PaymentStatus == "paid":
		status.Status = models.PaymentCompleted
		status.PaidAmount = fromCents(s.AmountTotal)
	case s.Status == "expired":
		status.Status = models.PaymentCancelled
	case s.Status == "open":
		status.Status = models.PaymentPending
	default:
		status.Status = models.PaymentProcessing
	}

	return status
}

type paymentIntent struct {
	ID       string         `json:"id"`
	Amount   int64          `json:"amount"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
}

func (p *paymentIntent) toStatus() *models.PaymentStatus {
	status := &models.PaymentStatus{
		ID:            p.ID,
		Amount:        fromCents(p.Amount),
		TransactionID: p.ID,
		Metadata:      p.Metadata,
	}

	switch p.Status {
	case "succeeded":
		status.Status = models.PaymentCompleted
		status.PaidAmount = fromCents(p.Amount)
	case "canceled":
		status.Status = models.PaymentCancelled
	case "processing":
		status.Status = models.PaymentProcessing
	case "requires_payment_method":
		status.Status = models.PaymentFailed
	default:
		status.Status = models.PaymentPending
	}

	return status
}

type refundObject struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID          string         `json:"id"`
			Status      string         `json:"status"`
			AmountTotal int64          `json:"amount_total"`
			Metadata    map[string]any `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
