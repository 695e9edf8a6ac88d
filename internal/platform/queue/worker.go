package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatflowers/payment-engine/internal/app/service/jobs"
	"github.com/fatflowers/payment-engine/pkg/config"
	"github.com/fatflowers/payment-engine/pkg/logctx"
	"github.com/fatflowers/payment-engine/pkg/tool"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// JobHandler runs one retry job. A returned error means the attempt could not
// be carried out at all (database down, queue unreachable) and asynq should
// redeliver the same job.
type JobHandler interface {
	ProcessJob(ctx context.Context, job jobs.RetryJob) error
}

type Worker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
	log *zap.SugaredLogger
}

func NewWorker(cfg *config.Config, log *zap.SugaredLogger, h JobHandler) *Worker {
	concurrency := cfg.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(RedisOpt(cfg.Redis), asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{cfg.Queue.RetryQueue: 1},
		Logger:          log.Named("asynq"),
		ShutdownTimeout: 10 * time.Second,
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return time.Duration(n+1) * 5 * time.Second
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Errorw("retry_job_handler_error", "type", task.Type(), "payload", string(task.Payload()), "err", err)
		}),
	})
	w := &Worker{srv: srv, mux: asynq.NewServeMux(), log: log}
	w.mux.Handle(jobs.TypeProcessPayment, HandleRetryJob(h, log))
	return w
}

// HandleRetryJob decodes a retry task and passes it to h with a job-scoped logger.
func HandleRetryJob(h JobHandler, log *zap.SugaredLogger) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		var job jobs.RetryJob
		if err := json.Unmarshal(task.Payload(), &job); err != nil || job.PaymentID == "" {
			log.Errorw("retry_job_malformed", "payload", string(task.Payload()), "err", err)
			return fmt.Errorf("malformed retry job: %w", asynq.SkipRetry)
		}
		ctx = logctx.WithTraceID(ctx, tool.NewID())
		ctx = logctx.WithPaymentID(ctx, job.PaymentID)
		return h.ProcessJob(ctx, job)
	})
}

func (w *Worker) Start() error {
	if err := w.srv.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	w.log.Infow("worker started")
	return nil
}

func (w *Worker) Stop() {
	w.srv.Shutdown()
	w.log.Infow("worker stopped")
}

var WorkerModule = fx.Options(
	fx.Provide(NewWorker),
	fx.Invoke(func(lc fx.Lifecycle, w *Worker) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error { return w.Start() },
			OnStop: func(context.Context) error {
				w.Stop()
				return nil
			},
		})
	}),
)
