// Package provider defines the capability set every payment provider implements.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fatflowers/payment-engine/pkg/types"
	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported payment provider")
	ErrMalformedWebhook    = errors.New("malformed webhook payload")
)

type ChargeRequest struct {
	Amount   decimal.Decimal
	Currency string
	// Reference is the merchant reference shown at the provider, the order id.
	Reference string
	Notes     map[string]string
}

type ChargeResult struct {
	// ExternalID is the provider order or intent id.
	ExternalID     string
	ExternalStatus string
	// ClientSecret is returned by intent based providers for client-side confirmation.
	ClientSecret string
}

type RefundRequest struct {
	ExternalPaymentID string
	Amount            decimal.Decimal
	Currency          string
	Reason            string
	Notes             map[string]string
}

type RefundResult struct {
	ExternalID     string
	ExternalStatus string
	Amount         decimal.Decimal
	Currency       string
}

type WebhookKind string

const (
	WebhookCaptured WebhookKind = "captured"
	WebhookFailed   WebhookKind = "failed"
	WebhookIgnored  WebhookKind = "ignored"
)

// WebhookEvent is the provider-neutral reading of a verified webhook body.
type WebhookEvent struct {
	EventID   string
	EventType string
	Kind      WebhookKind
	// GatewayOrderID matches Payment.GatewayOrderID.
	GatewayOrderID   string
	GatewayPaymentID string
	FailureReason    string
	Payload          json.RawMessage
}

// Adapter is implemented once per provider. All call sites dispatch through it.
type Adapter interface {
	Name() types.PaymentProvider
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	// SignatureHeader names the request header carrying the webhook signature.
	SignatureHeader() string
	VerifyWebhookSignature(rawBody []byte, signature string) bool
	// ParseWebhook reads an already verified body.
	ParseWebhook(rawBody []byte, header http.Header) (*WebhookEvent, error)
}

// Registry selects the adapter recorded on a payment.
type Registry struct {
	adapters map[types.PaymentProvider]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[types.PaymentProvider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(p types.PaymentProvider) (Adapter, error) {
	if a, ok := r.adapters[p]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, p)
}

// Supports reports whether an adapter is registered for p.
func (r *Registry) Supports(p types.PaymentProvider) bool {
	_, ok := r.adapters[p]
	return ok
}
