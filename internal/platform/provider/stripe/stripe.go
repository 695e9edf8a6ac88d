// Package stripe implements the intent-based provider flow on top of stripe-go.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fatflowers/payment-engine/internal/platform/provider"
	"github.com/fatflowers/payment-engine/pkg/config"
	"github.com/fatflowers/payment-engine/pkg/types"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const (
	SignatureHeader = "Stripe-Signature"

	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"

	defaultFailureReason = "Stripe payment failed"
)

var refundReasons = map[string]bool{
	string(stripego.RefundReasonDuplicate):           true,
	string(stripego.RefundReasonFraudulent):          true,
	string(stripego.RefundReasonRequestedByCustomer): true,
}

type Adapter struct {
	api           *client.API
	webhookSecret string
}

var _ provider.Adapter = (*Adapter)(nil)

// New builds a stripe client. A non-empty cfg.BackendURL points the client at a
// stripe-compatible endpoint instead of api.stripe.com.
func New(cfg config.StripeConfig, log *zap.SugaredLogger) *Adapter {
	backendCfg := &stripego.BackendConfig{
		MaxNetworkRetries: stripego.Int64(0),
	}
	if log != nil {
		backendCfg.LeveledLogger = log.Named("stripe")
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripego.String(cfg.BackendURL)
	}
	api := &client.API{}
	api.Init(cfg.APIKey, stripego.NewBackendsWithConfig(backendCfg))
	return &Adapter{api: api, webhookSecret: cfg.WebhookSecret}
}

func (a *Adapter) Name() types.PaymentProvider { return types.PaymentProviderStripe }

func (a *Adapter) SignatureHeader() string { return SignatureHeader }

// CreateCharge creates a PaymentIntent. The returned client secret lets the
// client confirm the intent.
func (a *Adapter) CreateCharge(ctx context.Context, req provider.ChargeRequest) (*provider.ChargeResult, error) {
	params := &stripego.PaymentIntentParams{
		Amount:      stripego.Int64(provider.ToMinorUnits(req.Amount)),
		Currency:    stripego.String(strings.ToLower(req.Currency)),
		Description: stripego.String(fmt.Sprintf("Payment for order %s", req.Reference)),
		AutomaticPaymentMethods: &stripego.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripego.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Notes {
		params.AddMetadata(k, v)
	}
	params.AddMetadata("orderId", req.Reference)

	pi, err := a.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create payment intent: %w", err)
	}
	return &provider.ChargeResult{
		ExternalID:     pi.ID,
		ExternalStatus: string(pi.Status),
		ClientSecret:   pi.ClientSecret,
	}, nil
}

func (a *Adapter) CreateRefund(ctx context.Context, req provider.RefundRequest) (*provider.RefundResult, error) {
	params := &stripego.RefundParams{Amount: stripego.Int64(provider.ToMinorUnits(req.Amount))}
	if strings.HasPrefix(req.ExternalPaymentID, "ch_") {
		params.Charge = stripego.String(req.ExternalPaymentID)
	} else {
		params.PaymentIntent = stripego.String(req.ExternalPaymentID)
	}
	params.Context = ctx
	for k, v := range req.Notes {
		params.AddMetadata(k, v)
	}
	// stripe only accepts its enumerated reasons; free text goes to metadata
	if req.Reason != "" {
		if refundReasons[req.Reason] {
			params.Reason = stripego.String(req.Reason)
		} else {
			params.AddMetadata("reason", req.Reason)
		}
	}

	rf, err := a.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create refund: %w", err)
	}
	currency := strings.ToUpper(string(rf.Currency))
	if currency == "" {
		currency = req.Currency
	}
	return &provider.RefundResult{
		ExternalID:     rf.ID,
		ExternalStatus: string(rf.Status),
		Amount:         provider.FromMinorUnits(rf.Amount),
		Currency:       currency,
	}, nil
}

// VerifyWebhookSignature validates the Stripe-Signature header, including its timestamp tolerance.
func (a *Adapter) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	if a.webhookSecret == "" || signature == "" {
		return false
	}
	return webhook.ValidatePayload(rawBody, signature, a.webhookSecret) == nil
}

func (a *Adapter) ParseWebhook(rawBody []byte, _ http.Header) (*provider.WebhookEvent, error) {
	var event stripego.Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformedWebhook, err)
	}
	ev := &provider.WebhookEvent{
		EventID:   event.ID,
		EventType: string(event.Type),
		Kind:      provider.WebhookIgnored,
		Payload:   json.RawMessage(rawBody),
	}
	if ev.EventType == "" {
		ev.EventType = "unknown"
	}
	if event.Type != EventPaymentIntentSucceeded && event.Type != EventPaymentIntentFailed {
		return ev, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: %s without data.object", provider.ErrMalformedWebhook, event.Type)
	}
	var pi stripego.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrMalformedWebhook, err)
	}
	ev.GatewayOrderID = pi.ID
	ev.GatewayPaymentID = pi.ID

	switch event.Type {
	case EventPaymentIntentSucceeded:
		ev.Kind = provider.WebhookCaptured
		if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
			ev.GatewayPaymentID = pi.LatestCharge.ID
		}
	case EventPaymentIntentFailed:
		ev.Kind = provider.WebhookFailed
		ev.FailureReason = defaultFailureReason
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			ev.FailureReason = pi.LastPaymentError.Msg
		}
	}
	return ev, nil
}
