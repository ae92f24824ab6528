package payu

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billhawk/billhawk/pkg/gateway"
	"github.com/billhawk/billhawk/pkg/models"
)

const (
	testMerchantKey = "merchant_key"
	testSalt        = "merchant_salt"
)

func newTestGateway(t *testing.T, baseURL string) *Gateway {
	t.Helper()

	return New(Config{
		MerchantKey: testMerchantKey,
		Salt:        testSalt,
		BaseURL:     baseURL,
	}, slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

// hashFor mirrors the provider's reverse-order response hash so tests can
// produce valid signed payloads.
func hashFor(status, udf2, udf1, email, firstname, productinfo string, amount float64, txnid string) string {
	fields := []string{
		testSalt, status,
		"", "", "", "", "",
		udf2, udf1, email, firstname, productinfo,
		fmt.Sprintf("%.2f", amount), txnid, testMerchantKey,
	}
	sum := sha512.Sum512([]byte(strings.Join(fields, "|")))

	return hex.EncodeToString(sum[:])
}

func TestCreatePaymentLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payment-links", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "merchant_key", body["key"])
		assert.Equal(t, "750.00", body["subAmount"])

		udf, ok := body["udf"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "inv-3", udf["udf1"])

		fmt.Fprint(w, `{"status": 0, "result": {"invoiceNumber": "INV123", "paymentLink": "https://u.payu.in/abc"}}`)
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL)

	link, err := g.CreatePaymentLink(context.Background(), gateway.CreateLinkParams{
		Amount:      750,
		Currency:    "INR",
		InvoiceID:   "inv-3",
		ClientEmail: "client@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "INV123", link.ID)
	assert.Equal(t, "payu", link.Gateway)
	assert.Equal(t, "https://u.payu.in/abc", link.URL)
	assert.Equal(t, models.PaymentLinkActive, link.Status)
}

func TestProcessWebhook_Success(t *testing.T) {
	g := newTestGateway(t, "http://unused")

	hash := hashFor("success", "client@example.com", "inv-3", "client@example.com", "Jo", "Invoice inv-3", 750, "txn1")
	payload := fmt.Appendf(nil, `{"status": "success", "txnid": "txn1", "invoiceNumber": "INV123", "amount": 750, "productinfo": "Invoice inv-3", "firstname": "Jo", "email": "client@example.com", "udf1": "inv-3", "udf2": "client@example.com", "hash": %q}`, hash)

	result, err := g.ProcessWebhook(context.Background(), payload, "")
	require.NoError(t, err)

	assert.Equal(t, gateway.EventPaymentCompleted, result.EventType)
	assert.Equal(t, "INV123", result.PaymentID)
	assert.InDelta(t, 750.0, result.PaidAmount, 0.001)
	assert.Equal(t, "inv-3", result.Metadata["invoice_id"])
}

func TestProcessWebhook_BadHash(t *testing.T) {
	g := newTestGateway(t, "http://unused")

	payload := []byte(`{"status": "success", "txnid": "txn1", "amount": 750, "hash": "deadbeef"}`)

	_, err := g.ProcessWebhook(context.Background(), payload, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrSignatureInvalid)
}

func TestProcessWebhook_UnsignedAccepted(t *testing.T) {
	g := newTestGateway(t, "http://unused")

	payload := []byte(`{"status": "failed", "txnid": "txn1", "amount": 750}`)

	result, err := g.ProcessWebhook(context.Background(), payload, "")
	require.NoError(t, err)
	assert.Equal(t, gateway.EventPaymentFailed, result.EventType)
	assert.Equal(t, "txn1", result.PaymentID)
	assert.Zero(t, result.PaidAmount)
}

func TestProcessWebhook_StatusMapping(t *testing.T) {
	g := newTestGateway(t, "http://unused")

	tests := []struct {
		status string
		want   gateway.WebhookEventType
	}{
		{"success", gateway.EventPaymentCompleted},
		{"Captured", gateway.EventPaymentCompleted},
		{"failure", gateway.EventPaymentFailed},
		{"expired", gateway.EventPaymentExpired},
		{"chargeback", gateway.EventPaymentDisputed},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			payload := fmt.Appendf(nil, `{"status": %q, "txnid": "txn1", "amount": 10}`, tt.status)

			result, err := g.ProcessWebhook(context.Background(), payload, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.EventType)
		})
	}
}

func TestProcessWebhook_UnknownStatus(t *testing.T) {
	g := newTestGateway(t, "http://unused")

	_, err := g.ProcessWebhook(context.Background(), []byte(`{"status": "in_progress", "txnid": "txn1"}`), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrUnhandledEventType)
}

func TestGetPaymentStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/merchant/verify-payment", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "INV123", body["txnid"])

		fmt.Fprint(w, `{"status": 1, "transaction_details": {"INV123": {"mihpayid": "mih_1", "status": "success", "transaction_amount": 750, "mode": "UPI"}}}`)
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL)

	status, err := g.GetPaymentStatus(context.Background(), "INV123")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, status.Status)
	assert.InDelta(t, 750.0, status.PaidAmount, 0.001)
	assert.Equal(t, "mih_1", status.TransactionID)
	assert.Equal(t, "UPI", status.PaymentMethod)
}

func TestRefundPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/merchant/verify-payment":
			fmt.Fprint(w, `{"status": 1, "transaction_details": {"INV123": {"mihpayid": "mih_1", "status": "success", "transaction_amount": 750}}}`)
		case "/merchant/refund-payment":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "mih_1", body["mihpayid"])
			assert.Equal(t, "750.00", body["amount"])
			fmt.Fprint(w, `{"status": 1, "request_id": "ref_1"}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL)

	refund, err := g.RefundPayment(context.Background(), "INV123", nil)
	require.NoError(t, err)

	assert.Equal(t, "ref_1", refund.RefundID)
	assert.Equal(t, "mih_1", refund.TransactionID)
	assert.InDelta(t, 750.0, refund.Amount, 0.001)
	assert.Equal(t, "initiated", refund.Status)
}

func TestRefundPayment_ProviderRejects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/merchant/verify-payment":
			fmt.Fprint(w, `{"status": 1, "transaction_details": {"INV123": {"mihpayid": "mih_1", "status": "success", "transaction_amount": 750}}}`)
		case "/merchant/refund-payment":
			fmt.Fprint(w, `{"status": 0, "msg": "refund window closed"}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL)

	_, err := g.RefundPayment(context.Background(), "INV123", nil)
	require.Error(t, err)
	assert.True(t, gateway.IsUpstreamError(err))
	assert.Contains(t, err.Error(), "refund window closed")
}

func TestRefundPayment_NoTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status": 1, "transaction_details": {"INV123": {"status": "pending", "transaction_amount": 750}}}`)
	}))
	defer server.Close()

	g := newTestGateway(t, server.URL)

	_, err := g.RefundPayment(context.Background(), "INV123", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrTransactionNotFound)
}
