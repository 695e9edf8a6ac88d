// Package reconcile applies verified provider webhooks to payments.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fatflowers/payment-engine/internal/app/service/eventlog"
	"github.com/fatflowers/payment-engine/internal/app/service/events"
	"github.com/fatflowers/payment-engine/internal/models"
	"github.com/fatflowers/payment-engine/internal/platform/provider"
	"github.com/fatflowers/payment-engine/internal/repository"
	"github.com/fatflowers/payment-engine/pkg/logctx"
	"github.com/fatflowers/payment-engine/pkg/metrics"
	"github.com/fatflowers/payment-engine/pkg/types"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported webhook provider")
	ErrMissingSignature    = errors.New("missing webhook signature")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrMalformedPayload    = errors.New("malformed webhook payload")
	ErrPublishFailed       = errors.New("payment event publish failed")
)

// Outcome describes what a delivery did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeStale means the payment was already terminal.
	OutcomeStale    Outcome = "stale"
	OutcomeRejected Outcome = "rejected"
	// OutcomeRepublished means a delivery matching the payment's terminal status
	// re-sent its completion event.
	OutcomeRepublished Outcome = "republished"
)

type Result struct {
	Outcome   Outcome
	PaymentID string
	Status    types.PaymentStatus
}

// Guard suppresses repeated deliveries of one provider event.
type Guard interface {
	Claim(ctx context.Context, provider, eventID string) (bool, error)
	Release(ctx context.Context, provider, eventID string) error
}

type Service struct {
	repo      repository.PaymentRepository
	providers *provider.Registry
	eventlog  *eventlog.Service
	publisher events.Publisher
	guard     Guard
	metrics   *metrics.PaymentMetrics
	log       *zap.SugaredLogger
}

type Params struct {
	fx.In

	Repo      repository.PaymentRepository
	Providers *provider.Registry
	EventLog  *eventlog.Service
	Publisher events.Publisher
	Guard     Guard                   `optional:"true"`
	Metrics   *metrics.PaymentMetrics `optional:"true"`
	Log       *zap.SugaredLogger
}

func New(p Params) *Service {
	return &Service{
		repo:      p.Repo,
		providers: p.Providers,
		eventlog:  p.EventLog,
		publisher: p.Publisher,
		guard:     p.Guard,
		metrics:   p.Metrics,
		log:       p.Log,
	}
}

var Module = fx.Options(
	fx.Provide(New),
)

// Handle verifies and applies one webhook delivery. Nothing is written for a
// delivery whose signature does not verify. Terminal payments are never moved.
func (s *Service) Handle(ctx context.Context, providerName string, rawBody []byte, header http.Header) (*Result, error) {
	name, ok := types.ParsePaymentProvider(providerName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, providerName)
	}
	adapter, err := s.providers.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, providerName)
	}
	log := logctx.FromCtx(ctx, s.log).With("provider", name)

	signature := header.Get(adapter.SignatureHeader())
	if signature == "" {
		log.Warnw("webhook_signature_missing")
		s.metrics.WebhookDelivery(string(name), string(OutcomeRejected))
		return nil, ErrMissingSignature
	}
	if !adapter.VerifyWebhookSignature(rawBody, signature) {
		log.Warnw("webhook_signature_invalid")
		s.metrics.WebhookDelivery(string(name), string(OutcomeRejected))
		return nil, ErrInvalidSignature
	}

	evt, err := adapter.ParseWebhook(rawBody, header)
	if err != nil {
		log.Warnw("webhook_payload_malformed", "err", err)
		s.metrics.WebhookDelivery(string(name), string(OutcomeRejected))
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	log = log.With("event_type", evt.EventType, "event_id", evt.EventID)

	p, err := s.lookup(ctx, evt)
	if err != nil {
		return nil, err
	}

	entry := eventlog.Entry{
		Provider:  name,
		EventType: evt.EventType,
		EventID:   evt.EventID,
		Payload:   evt.Payload,
	}.ForPayment(p)
	if err := s.eventlog.Record(ctx, entry); err != nil {
		return nil, err
	}

	res, err := s.apply(ctx, log, name, evt, p)
	if err != nil {
		return nil, err
	}
	s.metrics.WebhookDelivery(string(name), string(res.Outcome))
	log.Infow("webhook_handled", "outcome", res.Outcome, "payment_id", res.PaymentID, "status", res.Status)
	return res, nil
}

// lookup finds the payment by the provider order id, then by the provider payment id.
func (s *Service) lookup(ctx context.Context, evt *provider.WebhookEvent) (*models.Payment, error) {
	if evt.GatewayOrderID != "" {
		p, err := s.repo.FindByGatewayOrderID(ctx, evt.GatewayOrderID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	if evt.GatewayPaymentID != "" {
		p, err := s.repo.FindByGatewayPaymentID(ctx, evt.GatewayPaymentID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (s *Service) apply(ctx context.Context, log *zap.SugaredLogger, name types.PaymentProvider, evt *provider.WebhookEvent, p *models.Payment) (*Result, error) {
	if p == nil {
		log.Infow("webhook_unmatched", "gateway_order_id", evt.GatewayOrderID, "gateway_payment_id", evt.GatewayPaymentID)
		return &Result{Outcome: OutcomeUnmatched}, nil
	}
	res := &Result{PaymentID: p.ID, Status: p.Status}
	if evt.Kind != provider.WebhookCaptured && evt.Kind != provider.WebhookFailed {
		res.Outcome = OutcomeIgnored
		return res, nil
	}
	if p.IsTerminal() {
		if targetStatus(evt.Kind) != p.Status {
			res.Outcome = OutcomeStale
			return res, nil
		}
		// the delivered outcome already holds; re-send its event in case the first publish failed
		if !s.claim(ctx, log, name, evt.EventID) {
			res.Outcome = OutcomeDuplicate
			return res, nil
		}
		if err := s.publishOutcome(ctx, log, p); err != nil {
			s.release(ctx, log, name, evt.EventID)
			return nil, err
		}
		res.Outcome = OutcomeRepublished
		return res, nil
	}

	if !s.claim(ctx, log, name, evt.EventID) {
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	upd := models.PaymentUpdate{Status: targetStatus(evt.Kind), SetFailureReason: true}
	if upd.Status == types.PaymentStatusSucceeded {
		upd.GatewayPaymentID = lo.EmptyableToPtr(evt.GatewayPaymentID)
	} else {
		upd.FailureReason = lo.ToPtr(lo.CoalesceOrEmpty(evt.FailureReason, "payment failed at provider"))
	}
	ok, err := s.repo.TransitionPayment(ctx, p.ID, types.OpenPaymentStatuses, upd)
	if err != nil {
		s.release(ctx, log, name, evt.EventID)
		return nil, err
	}
	if !ok {
		res.Outcome = OutcomeStale
		return res, nil
	}
	res.Outcome, res.Status = OutcomeApplied, upd.Status
	p.Status, p.FailureReason = upd.Status, upd.FailureReason

	if upd.Status == types.PaymentStatusSucceeded {
		log.Infow("payment_succeeded", "payment_id", p.ID)
	} else {
		log.Warnw("payment_failed_at_provider", "payment_id", p.ID, "reason", *upd.FailureReason)
	}
	if err := s.publishOutcome(ctx, log, p); err != nil {
		// The provider redelivers on a 5xx and the redelivery re-sends the event.
		s.release(ctx, log, name, evt.EventID)
		return nil, err
	}
	return res, nil
}

func targetStatus(kind provider.WebhookKind) types.PaymentStatus {
	if kind == provider.WebhookCaptured {
		return types.PaymentStatusSucceeded
	}
	return types.PaymentStatusFailed
}

// claim reports whether this delivery may proceed. Guard errors fail open.
func (s *Service) claim(ctx context.Context, log *zap.SugaredLogger, name types.PaymentProvider, eventID string) bool {
	if s.guard == nil || eventID == "" {
		return true
	}
	claimed, err := s.guard.Claim(ctx, string(name), eventID)
	if err != nil {
		log.Warnw("webhook_guard_unavailable", "err", err)
		return true
	}
	return claimed
}

func (s *Service) release(ctx context.Context, log *zap.SugaredLogger, name types.PaymentProvider, eventID string) {
	if s.guard == nil || eventID == "" {
		return
	}
	if err := s.guard.Release(ctx, string(name), eventID); err != nil {
		log.Warnw("webhook_guard_release_failed", "err", err)
	}
}

// publishOutcome emits payment.completed or payment.failed for a terminal payment.
func (s *Service) publishOutcome(ctx context.Context, log *zap.SugaredLogger, p *models.Payment) error {
	var (
		name    string
		payload any
	)
	switch p.Status {
	case types.PaymentStatusSucceeded:
		name = events.PaymentCompleted
		payload = events.PaymentCompletedEvent{
			OrderID:   p.OrderID,
			PaymentID: p.ID,
			Provider:  string(p.Provider),
			Amount:    p.Amount.InexactFloat64(),
			Currency:  p.Currency,
		}
	case types.PaymentStatusFailed:
		name = events.PaymentFailed
		payload = events.PaymentFailedEvent{
			OrderID: p.OrderID,
			Reason:  lo.FromPtr(p.FailureReason),
		}
	default:
		return nil
	}
	if err := s.publisher.Publish(ctx, name, payload); err != nil {
		log.Errorw("event_publish_failed", "event", name, "payment_id", p.ID, "err", err)
		return fmt.Errorf("%w: %s: %v", ErrPublishFailed, name, err)
	}
	return nil
}
