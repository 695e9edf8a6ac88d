package razorpay

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fatflowers/payment-engine/internal/platform/provider"
	"github.com/fatflowers/payment-engine/pkg/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.RazorpayConfig{
		BaseURL:       srv.URL,
		KeyID:         "rzp_test_key",
		KeySecret:     "key_secret",
		WebhookSecret: "whsec",
	})
}

func TestCreateCharge_PostsOrderInMinorUnits(t *testing.T) {
	var got orderRequest
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("rzp_test_key:key_secret"))
		assert.Equal(t, wantAuth, r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"id":"order_123","status":"created"}`))
	})

	res, err := a.CreateCharge(context.Background(), provider.ChargeRequest{
		Amount:    decimal.RequireFromString("499.99"),
		Currency:  "inr",
		Reference: "ord-1",
		Notes:     map[string]string{"paymentId": "p-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_123", res.ExternalID)
	assert.Equal(t, "created", res.ExternalStatus)

	assert.Equal(t, int64(49999), got.Amount)
	assert.Equal(t, "INR", got.Currency)
	assert.Equal(t, "ord-1", got.Receipt)
	assert.Equal(t, "p-1", got.Notes["paymentId"])
}

func TestCreateCharge_ErrorStatus(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	})

	_, err := a.CreateCharge(context.Background(), provider.ChargeRequest{Amount: decimal.NewFromInt(1), Currency: "INR"})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "amount too small", apiErr.Description)
}

func TestCreateRefund(t *testing.T) {
	var got refundRequest
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pay_9/refund", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"id":"rfnd_1","status":"processed","amount":1050,"currency":"INR"}`))
	})

	res, err := a.CreateRefund(context.Background(), provider.RefundRequest{
		ExternalPaymentID: "pay_9",
		Amount:            decimal.RequireFromString("10.50"),
		Currency:          "INR",
		Reason:            "customer request",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1050), got.Amount)
	assert.Equal(t, "customer request", got.Notes["reason"])
	assert.Equal(t, "rfnd_1", res.ExternalID)
	assert.Equal(t, "processed", res.ExternalStatus)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("10.5")))
}

func TestVerifyWebhookSignature(t *testing.T) {
	a := New(config.RazorpayConfig{WebhookSecret: "whsec", KeySecret: "other"})
	body := []byte(`{"event":"payment.captured"}`)
	good := hex.EncodeToString(Sign(body, "whsec"))

	assert.True(t, a.VerifyWebhookSignature(body, good))
	assert.False(t, a.VerifyWebhookSignature(body, hex.EncodeToString(Sign(body, "other"))))
	assert.False(t, a.VerifyWebhookSignature(body, "not-hex"))
	assert.False(t, a.VerifyWebhookSignature(body, ""))
	assert.False(t, a.VerifyWebhookSignature([]byte(`{"event":"payment.failed"}`), good))
}

func TestVerifyWebhookSignature_FallsBackToKeySecret(t *testing.T) {
	a := New(config.RazorpayConfig{KeySecret: "key_secret"})
	body := []byte(`{}`)
	assert.True(t, a.VerifyWebhookSignature(body, hex.EncodeToString(Sign(body, "key_secret"))))
}

func TestParseWebhook(t *testing.T) {
	a := New(config.RazorpayConfig{})
	header := http.Header{}
	header.Set(EventIDHeader, "evt_1")

	t.Run("captured", func(t *testing.T) {
		body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","status":"captured"}}}}`)
		ev, err := a.ParseWebhook(body, header)
		require.NoError(t, err)
		assert.Equal(t, provider.WebhookCaptured, ev.Kind)
		assert.Equal(t, "order_1", ev.GatewayOrderID)
		assert.Equal(t, "pay_1", ev.GatewayPaymentID)
		assert.Equal(t, "evt_1", ev.EventID)
	})

	t.Run("failed with description", func(t *testing.T) {
		body := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_2","order_id":"order_2","error_description":"card declined","error_reason":"payment_failed"}}}}`)
		ev, err := a.ParseWebhook(body, header)
		require.NoError(t, err)
		assert.Equal(t, provider.WebhookFailed, ev.Kind)
		assert.Equal(t, "card declined", ev.FailureReason)
	})

	t.Run("failed without details", func(t *testing.T) {
		body := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_3","order_id":"order_3"}}}}`)
		ev, err := a.ParseWebhook(body, header)
		require.NoError(t, err)
		assert.Equal(t, "Razorpay payment failed", ev.FailureReason)
	})

	t.Run("other events are ignored", func(t *testing.T) {
		ev, err := a.ParseWebhook([]byte(`{"event":"order.paid","payload":{}}`), http.Header{})
		require.NoError(t, err)
		assert.Equal(t, provider.WebhookIgnored, ev.Kind)
		assert.Equal(t, "order.paid", ev.EventType)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := a.ParseWebhook([]byte(`{`), header)
		assert.ErrorIs(t, err, provider.ErrMalformedWebhook)
	})
}
