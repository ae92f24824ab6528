package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billhawk/billhawk/pkg/gateway"
	"github.com/billhawk/billhawk/pkg/models"
)

const testWebhookSecret = "rzp_webhook_secret"

func newTestGateway(t *testing.T, baseURL string) *Gateway {
	t.Helper()

	return New(Config{
		KeyID:         "rzp_test_key",
		KeySecret:     "rzp_test_secret",
		WebhookSecret: testWebhookSecret,
		BaseURL:       baseURL,
	}, slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	return hex.EncodeToString(mac.Sum(nil))
}

func TestCreatePaymentLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_links", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.InDelta(t, float64(250075), body["amount"], 0.001)
		assert.Equal(t, "INR", body["currency"])

		notes, ok := body["notes"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "inv-7", notes["invoice_id"])

		fmt.Fprint(w, `{"id": "plink_1", "short_url": "https://rzp.io/i/abc", "amount": 250075, "status": "created"}`)
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL)

	link, err := g.CreatePaymentLink(context.Background(), gateway.CreateLinkParams{
		Amount:      2500.75,
		Currency:    "INR",
		InvoiceID:   "inv-7",
		ClientEmail: "client@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "plink_1", link.ID)
	assert.Equal(t, "razorpay", link.Gateway)
	assert.Equal(t, "https://rzp.io/i/abc", link.URL)
	assert.Equal(t, models.PaymentLinkActive, link.Status)
}

func TestProcessWebhook_Paid(t *testing.T) {
	g := newTestGateway(t, "http://unused")

	payload := []byte(`{"event": "payment_link.paid", "payload": {"payment_link": {"entity": {"id": "plink_1", "amount": 250075, "amount_paid": 250075, "status": "paid", "notes": {"invoice_id": "inv-7"}}}}}`)

	result, err := g.ProcessWebhook(context.Background(), payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)

	assert.Equal(t, gateway.EventPaymentCompleted, result.EventType)
	assert.Equal(t, "plink_1", result.PaymentID)
	assert.InDelta(t, 2500.75, result.PaidAmount, 0.001)
	assert.Equal(t, "inv-7", result.Metadata["invoice_id"])
}

func TestProcessWebhook_UnsignedAccepted(t *testing.T) {
	g := newTestGateway(t, "http://unused")

	payload := []byte(`{"event": "payment_link.expired", "payload": {"payment_link": {"entity": {"id": "plink_1", "amount": 100, "status": "expired"}}}}`)

	result, err := g.ProcessWebhook(context.Background(), payload, "")
	require.NoError(t, err)
	assert.Equal(t, gateway.EventPaymentExpired, result.EventType)
}

func TestProcessWebhook_BadSignature(t *testing.T) {
	g := newTestGateway(t, "http://unused")

	payload := []byte(`{"event": "payment_link.paid", "payload": {}}`)

	_, err := g.ProcessWebhook(context.Background(), payload, sign(payload, "other_secret"))
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrSignatureInvalid)
}

func TestProcessWebhook_PaymentFailedEntity(t *testing.T) {
	g := newTestGateway(t, "http://unused")

	payload := []byte(`{"event": "payment.failed", "payload": {"payment": {"entity": {"id": "pay_1", "amount": 5000, "status": "failed", "notes": {"invoice_id": "inv-9"}}}}}`)

	result, err := g.ProcessWebhook(context.Background(), payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)

	assert.Equal(t, gateway.EventPaymentFailed, result.EventType)
	assert.Equal(t, "pay_1", result.PaymentID)
	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, "inv-9", result.Metadata["invoice_id"])
}

func TestProcessWebhook_UnhandledEvent(t *testing.T) {
	g := newTestGateway(t, "http://unused")

	payload := []byte(`{"event": "order.paid", "payload": {}}`)

	_, err := g.ProcessWebhook(context.Background(), payload, sign(payload, testWebhookSecret))
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrUnhandledEventType)
}

func TestGetPaymentStatus_Link(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_links/plink_1", r.URL.Path)
		fmt.Fprint(w, `{"id": "plink_1", "amount": 250075, "amount_paid": 250075, "status": "paid", "payments": [{"payment_id": "pay_1", "status": "captured"}]}`)
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL)

	status, err := g.GetPaymentStatus(context.Background(), "plink_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, status.Status)
	assert.InDelta(t, 2500.75, status.PaidAmount, 0.001)
	assert.Equal(t, "pay_1", status.TransactionID)
}

func TestGetPaymentStatus_Payment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pay_1", r.URL.Path)
		fmt.Fprint(w, `{"id": "pay_1", "amount": 5000, "status": "captured", "method": "upi", "created_at": 1760000000}`)
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL)

	status, err := g.GetPaymentStatus(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, status.Status)
	assert.Equal(t, "upi", status.PaymentMethod)
	require.NotNil(t, status.PaidAt)
}

func TestRefundPayment_ResolvesSettledPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/payment_links/plink_1":
			fmt.Fprint(w, `{"id": "plink_1", "amount": 5000, "payments": [{"payment_id": "pay_failed", "status": "failed"}, {"payment_id": "pay_ok", "status": "captured"}]}`)
		case "/v1/payments/pay_ok/refund":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.InDelta(t, float64(2500), body["amount"], 0.001)
			fmt.Fprint(w, `{"id": "rfnd_1", "amount": 2500, "status": "processed"}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL)

	amount := 25.0
	refund, err := g.RefundPayment(context.Background(), "plink_1", &amount)
	require.NoError(t, err)

	assert.Equal(t, "rfnd_1", refund.RefundID)
	assert.Equal(t, "pay_ok", refund.TransactionID)
	assert.InDelta(t, 25.0, refund.Amount, 0.001)
}

func TestRefundPayment_NoSettledPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id": "plink_1", "amount": 5000, "payments": []}`)
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL)

	_, err := g.RefundPayment(context.Background(), "plink_1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrTransactionNotFound)
}

func TestUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"code": "BAD_REQUEST_ERROR", "description": "amount exceeds maximum"}}`)
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL)

	_, err := g.CreatePaymentLink(context.Background(), gateway.CreateLinkParams{
		Amount:      10,
		Currency:    "INR",
		InvoiceID:   "inv-1",
		ClientEmail: "client@example.com",
	})
	require.Error(t, err)
	assert.True(t, gateway.IsUpstreamError(err))
	assert.Contains(t, err.Error(), "amount exceeds maximum")
}
