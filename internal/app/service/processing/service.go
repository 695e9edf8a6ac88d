// Package processing drives a payment through provider charge creation with
// bounded retries and a dead-letter path.
package processing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/payment-engine/internal/app/service/eventlog"
	"github.com/fatflowers/payment-engine/internal/app/service/events"
	"github.com/fatflowers/payment-engine/internal/app/service/jobs"
	"github.com/fatflowers/payment-engine/internal/models"
	"github.com/fatflowers/payment-engine/internal/platform/provider"
	"github.com/fatflowers/payment-engine/internal/repository"
	"github.com/fatflowers/payment-engine/pkg/config"
	"github.com/fatflowers/payment-engine/pkg/logctx"
	"github.com/fatflowers/payment-engine/pkg/metrics"
	"github.com/fatflowers/payment-engine/pkg/types"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 5
	BaseRetryDelay     = 10 * time.Second
	MaxRetryDelay      = 5 * time.Minute

	EventChargeCreated       = jobs.EventChargeCreated
	EventChargeCreateFailed  = jobs.EventChargeCreateFailed
	EventProviderUnsupported = jobs.EventProviderUnsupported
)

var (
	ErrNotFound      = errors.New("payment not found")
	ErrNotReplayable = errors.New("payment cannot be replayed")
)

// RetryDelay is the wait before the attempt that follows attempt:
// min(10s * 2^(attempt-1), 5m).
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		return MaxRetryDelay
	}
	return min(BaseRetryDelay<<(attempt-1), MaxRetryDelay)
}

type Service struct {
	repo        repository.PaymentRepository
	providers   *provider.Registry
	queue       jobs.Queue
	dlq         jobs.DeadLetterQueue
	publisher   events.Publisher
	eventlog    *eventlog.Service
	metrics     *metrics.PaymentMetrics
	maxAttempts int
	log         *zap.SugaredLogger
}

type Params struct {
	fx.In

	Repo      repository.PaymentRepository
	Providers *provider.Registry
	Queue     jobs.Queue
	DLQ       jobs.DeadLetterQueue
	Publisher events.Publisher
	EventLog  *eventlog.Service
	Metrics   *metrics.PaymentMetrics `optional:"true"`
	Config    *config.Config
	Log       *zap.SugaredLogger
}

func New(p Params) *Service {
	maxAttempts := p.Config.Payment.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Service{
		repo:        p.Repo,
		providers:   p.Providers,
		queue:       p.Queue,
		dlq:         p.DLQ,
		publisher:   p.Publisher,
		eventlog:    p.EventLog,
		metrics:     p.Metrics,
		maxAttempts: maxAttempts,
		log:         p.Log,
	}
}

var Module = fx.Options(
	fx.Provide(New),
)

// ProcessJob runs one charge attempt. Provider failures are handled here by
// scheduling the next attempt or dead-lettering; a returned error means the
// attempt itself could not be carried out and the job should be redelivered.
func (s *Service) ProcessJob(ctx context.Context, job jobs.RetryJob) error {
	log := logctx.FromCtx(ctx, s.log).With("payment_id", job.PaymentID, "attempt", job.Attempt)

	p, err := s.repo.GetPayment(ctx, job.PaymentID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warnw("retry_job_payment_missing")
		return nil
	}
	if err != nil {
		return err
	}
	switch {
	case p.IsTerminal():
		log.Infow("retry_job_skipped_terminal", "status", p.Status)
		return nil
	case p.Status == types.PaymentStatusPending && p.HasGatewayOrder():
		log.Infow("retry_job_skipped_accepted", "gateway_order_id", *p.GatewayOrderID)
		return nil
	}

	adapter, err := s.providers.Get(p.Provider)
	if err != nil {
		log.Errorw("provider_unsupported", "provider", p.Provider)
		if rerr := s.eventlog.Record(ctx, eventlog.Entry{
			Provider:  p.Provider,
			EventType: EventProviderUnsupported,
			Payload:   map[string]any{"attempt": job.Attempt, "reason": err.Error()},
		}.ForPayment(p)); rerr != nil {
			return rerr
		}
		return s.handleFailure(ctx, p, job.Attempt, err.Error())
	}

	start := time.Now()
	res, err := adapter.CreateCharge(ctx, provider.ChargeRequest{
		Amount:    p.Amount,
		Currency:  p.Currency,
		Reference: p.OrderID,
		Notes: map[string]string{
			"paymentId": p.ID,
			"orderId":   p.OrderID,
			"userId":    p.UserID,
		},
	})
	s.metrics.ChargeAttempt(string(p.Provider), err == nil, start)
	if err != nil {
		log.Warnw("charge_attempt_failed", "provider", p.Provider, "err", err)
		if rerr := s.eventlog.Record(ctx, eventlog.Entry{
			Provider:  p.Provider,
			EventType: EventChargeCreateFailed,
			Payload:   map[string]any{"attempt": job.Attempt, "reason": err.Error()},
		}.ForPayment(p)); rerr != nil {
			return rerr
		}
		return s.handleFailure(ctx, p, job.Attempt, err.Error())
	}

	upd := models.PaymentUpdate{
		Status:           types.PaymentStatusPending,
		GatewayOrderID:   lo.ToPtr(res.ExternalID),
		SetFailureReason: true,
		Metadata:         map[string]any{"gatewayStatus": res.ExternalStatus},
	}
	if res.ClientSecret != "" {
		upd.Metadata["clientSecret"] = res.ClientSecret
	}
	ok, err := s.repo.TransitionPayment(ctx, p.ID, []types.PaymentStatus{types.PaymentStatusProcessing}, upd)
	if err != nil {
		return err
	}
	if !ok {
		// a webhook or operator moved the payment while the provider call was in flight
		log.Warnw("charge_result_discarded", "external_id", res.ExternalID)
	}
	if err := s.eventlog.Record(ctx, eventlog.Entry{
		Provider:  p.Provider,
		EventType: EventChargeCreated,
		Payload: map[string]any{
			"attempt":        job.Attempt,
			"externalId":     res.ExternalID,
			"externalStatus": res.ExternalStatus,
			"applied":        ok,
		},
	}.ForPayment(p)); err != nil {
		log.Warnw("charge_created_unaudited", "err", err)
	}
	log.Infow("charge_created", "provider", p.Provider, "external_id", res.ExternalID, "external_status", res.ExternalStatus)
	return nil
}

func (s *Service) handleFailure(ctx context.Context, p *models.Payment, attempt int, reason string) error {
	log := logctx.FromCtx(ctx, s.log).With("payment_id", p.ID, "attempt", attempt)

	if attempt < s.maxAttempts {
		delay := RetryDelay(attempt)
		if err := s.queue.Enqueue(ctx, jobs.RetryJob{PaymentID: p.ID, Attempt: attempt + 1}, delay); err != nil {
			return fmt.Errorf("failed to schedule attempt %d: %w", attempt+1, err)
		}
		s.metrics.RetryScheduled(string(p.Provider))
		log.Infow("charge_retry_scheduled", "next_attempt", attempt+1, "delay_ms", delay.Milliseconds(), "reason", reason)
		return nil
	}

	ok, err := s.repo.TransitionPayment(ctx, p.ID, types.OpenPaymentStatuses, models.PaymentUpdate{
		Status:           types.PaymentStatusFailed,
		FailureReason:    lo.ToPtr(reason),
		SetFailureReason: true,
	})
	if err != nil {
		return err
	}
	if !ok {
		log.Infow("charge_exhausted_after_terminal")
		return nil
	}
	log.Warnw("payment_failed_max_attempts", "reason", reason)

	if err := s.dlq.Push(ctx, jobs.DeadLetter{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Provider:  string(p.Provider),
		Attempts:  attempt,
		Reason:    reason,
		FailedAt:  time.Now().UTC(),
	}); err != nil {
		log.Errorw("dead_letter_push_failed", "err", err)
	} else {
		s.metrics.DeadLettered(string(p.Provider))
	}
	if err := s.publisher.Publish(ctx, events.PaymentFailed, events.PaymentFailedEvent{OrderID: p.OrderID, Reason: reason}); err != nil {
		log.Errorw("event_publish_failed", "event", events.PaymentFailed, "err", err)
	}
	return nil
}

// Replay reopens a failed or stuck payment and schedules a fresh first attempt.
// A processing payment with an attempt still queued is not stuck and is rejected.
func (s *Service) Replay(ctx context.Context, paymentID string) (*models.Payment, error) {
	log := logctx.FromCtx(ctx, s.log).With("payment_id", paymentID)

	p, err := s.repo.GetPayment(ctx, paymentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, paymentID)
	}
	if err != nil {
		return nil, err
	}
	if p.Status == types.PaymentStatusProcessing {
		// a processing payment is only stuck when no attempt is left in the queue
		pending, err := s.queue.HasPending(ctx, p.ID, s.maxAttempts)
		if err != nil {
			return nil, err
		}
		if pending {
			return nil, fmt.Errorf("%w: an attempt is still queued", ErrNotReplayable)
		}
	}
	from := []types.PaymentStatus{types.PaymentStatusFailed, types.PaymentStatusProcessing}
	ok, err := s.repo.TransitionPayment(ctx, p.ID, from, models.PaymentUpdate{
		Status:           types.PaymentStatusProcessing,
		SetFailureReason: true,
		Metadata:         map[string]any{"replayedAt": time.Now().UTC().Format(time.RFC3339)},
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: status %s", ErrNotReplayable, p.Status)
	}
	if err := s.queue.Enqueue(ctx, jobs.RetryJob{PaymentID: p.ID, Attempt: 1}, 0); err != nil {
		return nil, err
	}
	if err := s.dlq.Remove(ctx, p.ID); err != nil && !errors.Is(err, jobs.ErrDeadLetterNotFound) {
		log.Warnw("dead_letter_remove_failed", "err", err)
	}
	log.Infow("payment_replayed", "previous_status", p.Status)
	return s.repo.GetPayment(ctx, p.ID)
}

// DeadLetters lists payments waiting for operator action.
func (s *Service) DeadLetters(ctx context.Context, page, size int) ([]jobs.DeadLetter, error) {
	return s.dlq.List(ctx, page, size)
}
