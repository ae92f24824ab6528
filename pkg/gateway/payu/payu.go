// Package payu implements the gateway contract against the PayU payment-link
// API. Amounts stay in major units end to end; PayU takes two-decimal strings.
package payu

import (
	"bytes"
	"context"
	"crypto/sha512"
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
	gatewayName    = "payu"
	defaultBaseURL = "https://info.payu.in"
	defaultTimeout = 30 * time.Second
)

// Config carries the merchant credentials and optional overrides.
type Config struct {
	MerchantKey string
	Salt        string
	BaseURL     string
	HTTPClient  *http.Client
}

type Gateway struct {
	merchantKey string
	salt        string
	baseURL     string
	client      *http.Client
	logger      *slog.Logger
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
		merchantKey: cfg.MerchantKey,
		salt:        cfg.Salt,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		client:      client,
		logger:      logger.With("gateway", gatewayName),
	}
}

func (g *Gateway) Name() string {
	return gatewayName
}

// CreatePaymentLink creates a PayU payment link. Invoice id and client email
// ride in the udf fields for webhook correlation.
func (g *Gateway) CreatePaymentLink(ctx context.Context, params gateway.CreateLinkParams) (*models.PaymentLink, error) {
	body := map[string]any{
		"key":            g.merchantKey,
		"subAmount":      fmt.Sprintf("%.2f", params.Amount),
		"currency":       params.Currency,
		"description":    params.Description,
		"isPartialPaymentAllowed": params.AllowPartialPayments,
		"customer": map[string]any{
			"name":  params.ClientName,
			"email": params.ClientEmail,
		},
		"udf": map[string]any{
			"udf1": params.InvoiceID,
			"udf2": params.ClientEmail,
		},
	}

	if params.SuccessURL != "" {
		body["successURL"] = params.SuccessURL
	}

	if params.CancelURL != "" {
		body["failureURL"] = params.CancelURL
	}

	if params.ExpiresAt != nil {
		body["expiryDate"] = params.ExpiresAt.UTC().Format("2006-01-02 15:04:05")
	}

	var created createLinkResponse
	if err := g.do(ctx, http.MethodPost, "/payment-links", body, &created); err != nil {
		return nil, fmt.Errorf("payu create link: %w", err)
	}

	now := time.Now().UTC()
	link := &models.PaymentLink{
		ID:          created.Result.InvoiceNumber,
		Gateway:     gatewayName,
		URL:         created.Result.PaymentLink,
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

// ProcessWebhook parses a PayU notification. The hash field is verified when
// present (reverse-order SHA-512 over salt|status|udf...|email|...|key);
// unsigned test payloads pass through.
func (g *Gateway) ProcessWebhook(_ context.Context, payload []byte, signature string) (*gateway.WebhookResult, error) {
	var event webhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("payu webhook: malformed payload: %w", err)
	}

	hash := signature
	if hash == "" {
		hash = event.Hash
	}

	if hash != "" && g.salt != "" {
		if expected := g.responseHash(event); !strings.EqualFold(expected, hash) {
			return nil, fmt.Errorf("payu webhook: %w", gateway.ErrSignatureInvalid)
		}
	}

	var eventType gateway.WebhookEventType

	switch strings.ToLower(event.Status) {
	case "success", "captured":
		eventType = gateway.EventPaymentCompleted
	case "failure", "failed":
		eventType = gateway.EventPaymentFailed
	case "expired":
		eventType = gateway.EventPaymentExpired
	case "dispute", "chargeback":
		eventType = gateway.EventPaymentDisputed
	default:
		return nil, fmt.Errorf("payu webhook status %q: %w", event.Status, gateway.ErrUnhandledEventType)
	}

	metadata := map[string]any{
		"invoice_id":   event.UDF1,
		"client_email": event.UDF2,
		"txnid":        event.TxnID,
	}

	result := &gateway.WebhookResult{
		EventType: eventType,
		PaymentID: event.InvoiceNumber,
		Status:    strings.ToLower(event.Status),
		Amount:    event.Amount,
		Metadata:  metadata,
	}

	if result.PaymentID == "" {
		result.PaymentID = event.TxnID
	}

	if eventType == gateway.EventPaymentCompleted {
		result.PaidAmount = event.Amount
	}

	return result, nil
}

// responseHash computes PayU's reverse-order response hash:
// sha512(salt|status||||||udf2|udf1|email|firstname|productinfo|amount|txnid|key).
func (g *Gateway) responseHash(event webhookPayload) string {
	fields := []string{
		g.salt,
		event.Status,
		"", "", "", "", "",
		event.UDF2,
		event.UDF1,
		event.Email,
		event.Firstname,
		event.ProductInfo,
		fmt.Sprintf("%.2f", event.Amount),
		event.TxnID,
		g.merchantKey,
	}

	sum := sha512.Sum512([]byte(strings.Join(fields, "|")))

	return hex.EncodeToString(sum[:])
}

// GetPaymentStatus handles both link invoice numbers and transaction ids; the
// verify endpoint accepts either.
func (g *Gateway) GetPaymentStatus(ctx context.Context, id string) (*models.PaymentStatus, error) {
	body := map[string]any{
		"key":   g.merchantKey,
		"txnid": id,
	}

	var verify verifyResponse
	if err := g.do(ctx, http.MethodPost, "/merchant/verify-payment", body, &verify); err != nil {
		return nil, fmt.Errorf("payu payment status: %w", err)
	}

	txn, ok := verify.TransactionDetails[id]
	if !ok {
		for _, detail := range verify.TransactionDetails {
			txn = detail

			break
		}
	}

	status := &models.PaymentStatus{
		ID:            id,
		Amount:        txn.Amount,
		PaymentMethod: txn.Mode,
		TransactionID: txn.MihpayID,
	}

	switch strings.ToLower(txn.Status) {
	case "success", "captured":
		status.Status = models.PaymentCompleted
		status.PaidAmount = txn.Amount
	case "failure", "failed":
		status.Status = models.PaymentFailed
	case "pending":
		status.Status = models.PaymentProcessing
	default:
		status.Status = models.PaymentPending
	}

	return status, nil
}

// RefundPayment resolves the provider transaction behind the link before
// issuing the refund. A nil amount refunds in full.
func (g *Gateway) RefundPayment(ctx context.Context, id string, amount *float64) (*gateway.RefundResult, error) {
	status, err := g.GetPaymentStatus(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("payu refund: %w", err)
	}

	if status.TransactionID == "" {
		return nil, fmt.Errorf("payu refund for %s: %w", id, gateway.ErrTransactionNotFound)
	}

	refundAmount := status.PaidAmount
	if amount != nil {
		refundAmount = *amount
	}

	body := map[string]any{
		"key":      g.merchantKey,
		"mihpayid": status.TransactionID,
		"amount":   fmt.Sprintf("%.2f", refundAmount),
	}

	var refund refundResponse
	if err := g.do(ctx, http.MethodPost, "/merchant/refund-payment", body, &refund); err != nil {
		return nil, fmt.Errorf("payu refund: %w", err)
	}

	if refund.Status == 0 {
		return nil, gateway.NewUpstreamError(gatewayName, "refund", http.StatusOK, refund.Message)
	}

	return &gateway.RefundResult{
		RefundID:      refund.RequestID,
		PaymentID:     id,
		TransactionID: status.TransactionID,
		Amount:        refundAmount,
		Status:        "initiated",
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

	req.Header.Set("Authorization", "Bearer "+g.merchantKey)

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
		return gateway.NewUpstreamError(gatewayName, method+" "+path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return json.Unmarshal(data, out)
}

type createLinkResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
	Result struct {
		InvoiceNumber string `json:"invoiceNumber"`
		PaymentLink   string `json:"paymentLink"`
	} `json:"result"`
}

type webhookPayload struct {
	Status        string  `json:"status"`
	TxnID         string  `json:"txnid"`
	MihpayID      string  `json:"mihpayid"`
	InvoiceNumber string  `json:"invoiceNumber"`
	Amount        float64 `json:"amount"`
	ProductInfo   string  `json:"productinfo"`
	Firstname     string  `json:"firstname"`
	Email         string  `json:"email"`
	UDF1          string  `json:"udf1"`
	UDF2          string  `json:"udf2"`
	Hash          string  `json:"hash"`
}

type verifyResponse struct {
	Status             int                          `json:"status"`
	TransactionDetails map[string]transactionDetail `json:"transaction_details"`
}

type transactionDetail struct {
	MihpayID string  `json:"mihpayid"`
	Status   string  `json:"status"`
	Amount   float64 `json:"transaction_amount"`
	Mode     string  `json:"mode"`
}

type refundResponse struct {
	Status    int    `json:"status"`
	Message   string `json:"msg"`
	RequestID string `json:"request_id"`
}
