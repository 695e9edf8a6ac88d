// Package queue backs the retry queue and the dead-letter queue with asynq.
//
// Retry jobs live in the retry queue and are consumed by the worker. Dead
// letters are parked as pending tasks in a queue no worker consumes, so they
// stay visible to the inspector until an operator replays or removes them.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fatflowers/payment-engine/internal/app/service/jobs"
	"github.com/fatflowers/payment-engine/pkg/config"
	"github.com/fatflowers/payment-engine/pkg/logctx"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// infraRetries bounds asynq's own redelivery of a job whose handler hit an
// infrastructure error. Provider failures are retried by re-enqueueing instead.
const infraRetries = 3

type Client struct {
	client     *asynq.Client
	inspector  *asynq.Inspector
	retryQueue string
	dlqQueue   string
	log        *zap.SugaredLogger
}

var (
	_ jobs.Queue           = (*Client)(nil)
	_ jobs.DeadLetterQueue = (*Client)(nil)
)

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger) *Client {
	opt := RedisOpt(cfg.Redis)
	return &Client{
		client:     asynq.NewClient(opt),
		inspector:  asynq.NewInspector(opt),
		retryQueue: cfg.Queue.RetryQueue,
		dlqQueue:   cfg.Queue.DLQQueue,
		log:        log,
	}
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

var Module = fx.Options(
	fx.Provide(
		NewClient,
		func(c *Client) jobs.Queue { return c },
		func(c *Client) jobs.DeadLetterQueue { return c },
	),
	fx.Invoke(func(lc fx.Lifecycle, c *Client) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return c.Close() }})
	}),
)

func retryTaskID(job jobs.RetryJob) string {
	return fmt.Sprintf("%s:%d", job.PaymentID, job.Attempt)
}

// Enqueue schedules job after delay. A job already queued for the same payment
// and attempt is treated as enqueued.
func (c *Client) Enqueue(ctx context.Context, job jobs.RetryJob, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode retry job: %w", err)
	}
	opts := []asynq.Option{
		asynq.Queue(c.retryQueue),
		asynq.TaskID(retryTaskID(job)),
		asynq.MaxRetry(infraRetries),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(jobs.TypeProcessPayment, payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		logctx.FromCtx(ctx, c.log).Infow("retry_job_already_queued", "payment_id", job.PaymentID, "attempt", job.Attempt)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue retry job: %w", err)
	}
	logctx.FromCtx(ctx, c.log).Infow("retry_job_enqueued",
		"payment_id", job.PaymentID, "attempt", job.Attempt, "delay_ms", delay.Milliseconds(), "task_id", info.ID)
	return nil
}

// HasPending looks up the retry task of every attempt. Archived tasks do not
// count, asynq gave up on them.
func (c *Client) HasPending(_ context.Context, paymentID string, maxAttempt int) (bool, error) {
	for attempt := 1; attempt <= maxAttempt; attempt++ {
		info, err := c.inspector.GetTaskInfo(c.retryQueue, retryTaskID(jobs.RetryJob{PaymentID: paymentID, Attempt: attempt}))
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to inspect retry job: %w", err)
		}
		switch info.State {
		case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry, asynq.TaskStateActive:
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) Push(ctx context.Context, dl jobs.DeadLetter) error {
	payload, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter: %w", err)
	}
	_, err = c.client.EnqueueContext(ctx, asynq.NewTask(jobs.TypeDeadLetter, payload),
		asynq.Queue(c.dlqQueue),
		asynq.TaskID(dl.PaymentID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to push dead letter: %w", err)
	}
	return nil
}

// List returns dead letters, page is 1-based.
func (c *Client) List(_ context.Context, page, size int) ([]jobs.DeadLetter, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	tasks, err := c.inspector.ListPendingTasks(c.dlqQueue, asynq.PageSize(size), asynq.Page(page))
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	out := make([]jobs.DeadLetter, 0, len(tasks))
	for _, t := range tasks {
		var dl jobs.DeadLetter
		if err := json.Unmarshal(t.Payload, &dl); err != nil {
			c.log.Warnw("dead_letter_decode_failed", "task_id", t.ID, "err", err)
			dl = jobs.DeadLetter{PaymentID: t.ID}
		}
		out = append(out, dl)
	}
	return out, nil
}

func (c *Client) Remove(_ context.Context, paymentID string) error {
	err := c.inspector.DeleteTask(c.dlqQueue, paymentID)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return fmt.Errorf("%w: %s", jobs.ErrDeadLetterNotFound, paymentID)
	}
	if err != nil {
		return fmt.Errorf("failed to remove dead letter: %w", err)
	}
	return nil
}
