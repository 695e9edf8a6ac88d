// Package razorpay implements the order-then-capture provider flow.
package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatflowers/payment-engine/internal/platform/provider"
	"github.com/fatflowers/payment-engine/pkg/config"
	"github.com/fatflowers/payment-engine/pkg/types"

	fastshot "github.com/opus-domini/fast-shot"
	"github.com/samber/lo"
)

const (
	SignatureHeader = "X-Razorpay-Signature"
	EventIDHeader   = "X-Razorpay-Event-Id"

	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"

	defaultFailureReason = "Razorpay payment failed"
)

// APIError is a non-2xx answer from the Razorpay API.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("razorpay: %d %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("razorpay: unexpected status %d", e.StatusCode)
}

type Adapter struct {
	baseURL       string
	authHeader    string
	signingSecret string
	timeout       time.Duration
}

var _ provider.Adapter = (*Adapter)(nil)

func New(cfg config.RazorpayConfig) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	creds := base64.StdEncoding.EncodeToString([]byte(cfg.KeyID + ":" + cfg.KeySecret))
	return &Adapter{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		authHeader:    "Basic " + creds,
		signingSecret: cfg.SigningSecret(),
		timeout:       timeout,
	}
}

func (a *Adapter) Name() types.PaymentProvider { return types.PaymentProviderRazorpay }

func (a *Adapter) SignatureHeader() string { return SignatureHeader }

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type refundRequest struct {
	Amount int64             `json:"amount"`
	Notes  map[string]string `json:"notes,omitempty"`
}

type refundResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// post sends body as JSON and decodes a 2xx answer into out.
func (a *Adapter) post(ctx context.Context, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := fastshot.NewClient(a.baseURL).
		Config().SetTimeout(a.timeout).
		Header().Add("Authorization", a.authHeader).
		Header().Add("Content-Type", "application/json").
		Build().POST(path).
		Body().AsJSON(body).
		Send()
	if err != nil {
		return fmt.Errorf("razorpay %s: %w", path, err)
	}
	defer res.RawResponse.Body.Close()

	raw, err := io.ReadAll(res.RawResponse.Body)
	if err != nil {
		return fmt.Errorf("razorpay %s: read body: %w", path, err)
	}
	if code := res.RawResponse.StatusCode; code < 200 || code >= 300 {
		apiErr := &APIError{StatusCode: code}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Description = envelope.Error.Description
		}
		return apiErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("razorpay %s: decode: %w", path, err)
	}
	return nil
}

// CreateCharge creates a Razorpay order; the customer pays against it client-side.
func (a *Adapter) CreateCharge(ctx context.Context, req provider.ChargeRequest) (*provider.ChargeResult, error) {
	var out orderResponse
	err := a.post(ctx, "/v1/orders", orderRequest{
		Amount:   provider.ToMinorUnits(req.Amount),
		Currency: strings.ToUpper(req.Currency),
		Receipt:  req.Reference,
		Notes:    req.Notes,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("razorpay: order response without id")
	}
	return &provider.ChargeResult{ExternalID: out.ID, ExternalStatus: out.Status}, nil
}

func (a *Adapter) CreateRefund(ctx context.Context, req provider.RefundRequest) (*provider.RefundResult, error) {
	notes := make(map[string]string, len(req.Notes)+1)
	for k, v := range req.Notes {
		notes[k] = v
	}
	if req.Reason != "" {
		notes["reason"] = req.Reason
	}
	var out refundResponse
	path := fmt.Sprintf("/v1/payments/%s/refund", req.ExternalPaymentID)
	if err := a.post(ctx, path, refundRequest{Amount: provider.ToMinorUnits(req.Amount), Notes: notes}, &out); err != nil {
		return nil, err
	}
	currency := out.Currency
	if currency == "" {
		currency = req.Currency
	}
	return &provider.RefundResult{
		ExternalID:     out.ID,
		ExternalStatus: out.Status,
		Amount:         provider.FromMinorUnits(out.Amount),
		Currency:       currency,
	}, nil
}

// VerifyWebhookSignature checks the hex HMAC-SHA256 of the raw body.
func (a *Adapter) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	if a.signingSecret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(got, Sign(rawBody, a.signingSecret))
}

// Sign computes the webhook signature of body.
func Sign(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity *paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	ErrorDescription string `json:"error_description"`
	ErrorReason      string `json:"error_reason"`
}

func (a *Adapter) ParseWebhook(rawBody []byte, header http.Header) (*provider.WebhookEvent, error) {
	var body webhookBody
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformedWebhook, err)
	}
	ev := &provider.WebhookEvent{
		EventID:   header.Get(EventIDHeader),
		EventType: body.Event,
		Kind:      provider.WebhookIgnored,
		Payload:   json.RawMessage(rawBody),
	}
	if ev.EventType == "" {
		ev.EventType = "unknown"
	}
	if body.Payload.Payment == nil || body.Payload.Payment.Entity == nil {
		return ev, nil
	}
	entity := body.Payload.Payment.Entity
	ev.GatewayOrderID = entity.OrderID
	ev.GatewayPaymentID = entity.ID

	switch body.Event {
	case EventPaymentCaptured:
		ev.Kind = provider.WebhookCaptured
	case EventPaymentFailed:
		ev.Kind = provider.WebhookFailed
		ev.FailureReason = lo.CoalesceOrEmpty(entity.ErrorDescription, entity.ErrorReason, defaultFailureReason)
	}
	return ev, nil
}
