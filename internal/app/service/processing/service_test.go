package processing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fatflowers/payment-engine/internal/app/service/eventlog"
	"github.com/fatflowers/payment-engine/internal/app/service/events"
	"github.com/fatflowers/payment-engine/internal/app/service/jobs"
	"github.com/fatflowers/payment-engine/internal/app/service/servicetest"
	"github.com/fatflowers/payment-engine/internal/models"
	"github.com/fatflowers/payment-engine/internal/platform/provider"
	"github.com/fatflowers/payment-engine/internal/repository/repotest"
	"github.com/fatflowers/payment-engine/pkg/config"
	"github.com/fatflowers/payment-engine/pkg/types"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc       *Service
	repo      *repotest.Memory
	adapter   *servicetest.Adapter
	queue     *servicetest.Queue
	dlq       *servicetest.DeadLetters
	publisher *servicetest.Publisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      repotest.New(),
		adapter:   &servicetest.Adapter{Provider: types.PaymentProviderRazorpay},
		queue:     &servicetest.Queue{},
		dlq:       &servicetest.DeadLetters{},
		publisher: &servicetest.Publisher{},
	}
	log := zap.NewNop().Sugar()
	f.svc = New(Params{
		Repo:      f.repo,
		Providers: provider.NewRegistry(f.adapter),
		Queue:     f.queue,
		DLQ:       f.dlq,
		Publisher: f.publisher,
		EventLog:  eventlog.New(f.repo, log),
		Config:    &config.Config{Payment: config.PaymentConfig{MaxAttempts: 5}},
		Log:       log,
	})
	return f
}

func (f *fixture) processing(providerName types.PaymentProvider) *models.Payment {
	return f.repo.Put(&models.Payment{
		OrderID:  "o-1",
		UserID:   "u-1",
		Amount:   decimal.RequireFromString("10.50"),
		Currency: "INR",
		Status:   types.PaymentStatusProcessing,
		Provider: providerName,
	})
}

func (f *fixture) reload(t *testing.T, id string) *models.Payment {
	t.Helper()
	p, err := f.repo.GetPayment(context.Background(), id)
	require.NoError(t, err)
	return p
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 10*time.Second, RetryDelay(1))
	assert.Equal(t, 20*time.Second, RetryDelay(2))
	assert.Equal(t, 40*time.Second, RetryDelay(3))
	assert.Equal(t, 80*time.Second, RetryDelay(4))
	assert.Equal(t, 160*time.Second, RetryDelay(5))
	assert.Equal(t, 5*time.Minute, RetryDelay(6))
	assert.Equal(t, 5*time.Minute, RetryDelay(64))
	assert.Equal(t, 10*time.Second, RetryDelay(0))
}

func TestProcessJob_Success(t *testing.T) {
	f := newFixture(t)
	p := f.processing(types.PaymentProviderRazorpay)

	require.NoError(t, f.svc.ProcessJob(context.Background(), jobs.RetryJob{PaymentID: p.ID, Attempt: 1}))

	got := f.reload(t, p.ID)
	assert.Equal(t, types.PaymentStatusPending, got.Status)
	assert.Equal(t, "gw_order_o-1", lo.FromPtr(got.GatewayOrderID))
	assert.Equal(t, "created", got.Metadata["gatewayStatus"])
	assert.Len(t, f.repo.EventsOfType(EventChargeCreated), 1)
	assert.Empty(t, f.queue.Jobs())

	// a redelivered job for an accepted payment does not charge twice
	require.NoError(t, f.svc.ProcessJob(context.Background(), jobs.RetryJob{PaymentID: p.ID, Attempt: 1}))
	assert.Equal(t, 1, f.adapter.ChargeCalls())
}

func TestProcessJob_ExhaustsRetries(t *testing.T) {
	f := newFixture(t)
	f.adapter.ChargeFunc = func(provider.ChargeRequest) (*provider.ChargeResult, error) {
		return nil, errors.New("gateway timeout")
	}
	p := f.processing(types.PaymentProviderRazorpay)

	var delays []time.Duration
	job := jobs.RetryJob{PaymentID: p.ID, Attempt: 1}
	for {
		require.NoError(t, f.svc.ProcessJob(context.Background(), job))
		next, ok := f.queue.Pop()
		if !ok {
			break
		}
		delays = append(delays, next.Delay)
		job = next.Job
	}

	assert.Equal(t, 5, f.adapter.ChargeCalls())
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second, 80 * time.Second}, delays)

	got := f.reload(t, p.ID)
	assert.Equal(t, types.PaymentStatusFailed, got.Status)
	assert.Equal(t, "gateway timeout", lo.FromPtr(got.FailureReason))
	assert.Len(t, f.repo.EventsOfType(EventChargeCreateFailed), 5)

	letters, err := f.svc.DeadLetters(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, p.ID, letters[0].PaymentID)
	assert.Equal(t, 5, letters[0].Attempts)

	failed := f.publisher.Named(events.PaymentFailed)
	require.Len(t, failed, 1)
	var evt events.PaymentFailedEvent
	require.NoError(t, json.Unmarshal(failed[0].Payload, &evt))
	assert.Equal(t, "o-1", evt.OrderID)
	assert.Equal(t, "gateway timeout", evt.Reason)

	// a duplicate delivery of the last attempt changes nothing
	require.NoError(t, f.svc.ProcessJob(context.Background(), job))
	assert.Equal(t, 5, f.adapter.ChargeCalls())
	assert.Equal(t, 1, f.dlq.Len())
	assert.Len(t, f.publisher.Named(events.PaymentFailed), 1)
}

func TestProcessJob_TerminalPaymentsAreSkipped(t *testing.T) {
	for _, status := range []types.PaymentStatus{types.PaymentStatusSucceeded, types.PaymentStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			p := f.processing(types.PaymentProviderRazorpay)
			p.Status = status
			f.repo.Put(p)

			require.NoError(t, f.svc.ProcessJob(context.Background(), jobs.RetryJob{PaymentID: p.ID, Attempt: 3}))
			assert.Zero(t, f.adapter.ChargeCalls())
			assert.Equal(t, status, f.reload(t, p.ID).Status)
		})
	}
}

func TestProcessJob_WebhookWinsRace(t *testing.T) {
	f := newFixture(t)
	p := f.processing(types.PaymentProviderRazorpay)
	f.adapter.ChargeFunc = func(provider.ChargeRequest) (*provider.ChargeResult, error) {
		// the payment settles while the provider call is in flight
		_, err := f.repo.TransitionPayment(context.Background(), p.ID, types.OpenPaymentStatuses,
			models.PaymentUpdate{Status: types.PaymentStatusSucceeded})
		require.NoError(t, err)
		return &provider.ChargeResult{ExternalID: "gw_late", ExternalStatus: "created"}, nil
	}

	require.NoError(t, f.svc.ProcessJob(context.Background(), jobs.RetryJob{PaymentID: p.ID, Attempt: 1}))
	got := f.reload(t, p.ID)
	assert.Equal(t, types.PaymentStatusSucceeded, got.Status)
	assert.Nil(t, got.GatewayOrderID)
}

func TestProcessJob_MissingPayment(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.ProcessJob(context.Background(), jobs.RetryJob{PaymentID: "gone", Attempt: 1}))
	assert.Zero(t, f.adapter.ChargeCalls())
}

func TestProcessJob_UnsupportedProviderCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	p := f.processing(types.PaymentProviderStripe)

	require.NoError(t, f.svc.ProcessJob(context.Background(), jobs.RetryJob{PaymentID: p.ID, Attempt: 1}))
	assert.Len(t, f.repo.EventsOfType(EventProviderUnsupported), 1)
	queued := f.queue.Jobs()
	require.Len(t, queued, 1)
	assert.Equal(t, 2, queued[0].Job.Attempt)
}

func TestProcessJob_EnqueueFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	f.adapter.ChargeFunc = func(provider.ChargeRequest) (*provider.ChargeResult, error) {
		return nil, errors.New("declined")
	}
	f.queue.Err = errors.New("redis down")
	p := f.processing(types.PaymentProviderRazorpay)

	assert.Error(t, f.svc.ProcessJob(context.Background(), jobs.RetryJob{PaymentID: p.ID, Attempt: 1}))
	assert.Equal(t, types.PaymentStatusProcessing, f.reload(t, p.ID).Status)
}

func TestReplay(t *testing.T) {
	f := newFixture(t)
	f.adapter.ChargeFunc = func(provider.ChargeRequest) (*provider.ChargeResult, error) {
		return nil, errors.New("declined")
	}
	p := f.processing(types.PaymentProviderRazorpay)
	require.NoError(t, f.svc.ProcessJob(context.Background(), jobs.RetryJob{PaymentID: p.ID, Attempt: 5}))
	require.Equal(t, 1, f.dlq.Len())

	got, err := f.svc.Replay(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusProcessing, got.Status)
	assert.Nil(t, got.FailureReason)
	assert.Zero(t, f.dlq.Len())

	queued := f.queue.Jobs()
	require.Len(t, queued, 1)
	assert.Equal(t, jobs.RetryJob{PaymentID: p.ID, Attempt: 1}, queued[0].Job)
}

func TestReplay_Rejections(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Replay(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	p := f.processing(types.PaymentProviderRazorpay)
	p.Status = types.PaymentStatusSucceeded
	f.repo.Put(p)
	_, err = f.svc.Replay(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrNotReplayable)
	assert.Empty(t, f.queue.Jobs())
}

func TestReplay_ProcessingWithQueuedAttempt(t *testing.T) {
	f := newFixture(t)
	f.adapter.ChargeFunc = func(provider.ChargeRequest) (*provider.ChargeResult, error) {
		return nil, errors.New("timeout")
	}
	p := f.processing(types.PaymentProviderRazorpay)
	require.NoError(t, f.svc.ProcessJob(context.Background(), jobs.RetryJob{PaymentID: p.ID, Attempt: 2}))
	require.Len(t, f.queue.Jobs(), 1, "attempt 3 is scheduled")

	_, err := f.svc.Replay(context.Background(), p.ID)
	require.ErrorIs(t, err, ErrNotReplayable)
	assert.Len(t, f.queue.Jobs(), 1)
	assert.Equal(t, types.PaymentStatusProcessing, f.reload(t, p.ID).Status)
}

func TestReplay_StuckProcessing(t *testing.T) {
	f := newFixture(t)
	p := f.processing(types.PaymentProviderRazorpay)

	got, err := f.svc.Replay(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusProcessing, got.Status)
	assert.Contains(t, got.Metadata, "replayedAt")

	queued := f.queue.Jobs()
	require.Len(t, queued, 1)
	assert.Equal(t, jobs.RetryJob{PaymentID: p.ID, Attempt: 1}, queued[0].Job)
}
