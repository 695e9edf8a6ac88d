package app

import (
	"context"
	"time"

	"github.com/fatflowers/payment-engine/internal/app/api/server"
	"github.com/fatflowers/payment-engine/internal/app/service/eventlog"
	"github.com/fatflowers/payment-engine/internal/app/service/events"
	"github.com/fatflowers/payment-engine/internal/app/service/payment"
	"github.com/fatflowers/payment-engine/internal/app/service/processing"
	"github.com/fatflowers/payment-engine/internal/app/service/reconcile"
	"github.com/fatflowers/payment-engine/internal/app/service/refund"
	"github.com/fatflowers/payment-engine/internal/platform/bus"
	"github.com/fatflowers/payment-engine/internal/platform/cache"
	"github.com/fatflowers/payment-engine/internal/platform/db"
	"github.com/fatflowers/payment-engine/internal/platform/orderclient"
	"github.com/fatflowers/payment-engine/internal/platform/provider"
	"github.com/fatflowers/payment-engine/internal/platform/provider/razorpay"
	"github.com/fatflowers/payment-engine/internal/platform/provider/stripe"
	"github.com/fatflowers/payment-engine/internal/platform/queue"
	"github.com/fatflowers/payment-engine/internal/repository"
	"github.com/fatflowers/payment-engine/pkg/config"
	"github.com/fatflowers/payment-engine/pkg/logger"
	"github.com/fatflowers/payment-engine/pkg/metrics"
	"github.com/fatflowers/payment-engine/pkg/resilience"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

func newProviders(cfg *config.Config, log *zap.SugaredLogger) *provider.Registry {
	return provider.NewRegistry(
		razorpay.New(cfg.Razorpay),
		stripe.New(cfg.Stripe, log),
	)
}

// newPrometheus serves request and business metrics on metrics_addr.
func newPrometheus(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger) *metrics.Prometheus {
	p := metrics.NewPrometheus(metrics.NewPrometheusOptions{Logger: log})
	if cfg.MetricsAddr == "" {
		return p
	}
	p.Listen(cfg.MetricsAddr)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p.Start()
			return nil
		},
		OnStop: p.Shutdown,
	})
	return p
}

// Core is shared by every process: storage, providers, the retry queue and the bus publisher.
var Core = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	repository.Module,
	fx.Provide(metrics.NewDefaultPaymentMetrics),
	resilience.Module,
	fx.Provide(newProviders),
	queue.Module,
	bus.Module,
	eventlog.Module,
	orderclient.Module,
	payment.Module,
	processing.Module,
)

// API runs the HTTP process.
var API = fx.Options(
	Core,
	refund.Module,
	cache.Module,
	fx.Provide(func(g *cache.DeliveryGuard) reconcile.Guard { return g }),
	reconcile.Module,
	fx.Provide(newPrometheus),
	server.Module,
)

func registerConsumers(c *bus.Consumer, payments *payment.Service) {
	c.Handle(events.OrderCreated, payments.HandleOrderCreated)
}

// Worker runs retry jobs and consumes order events.
var Worker = fx.Options(
	Core,
	fx.Provide(func(s *processing.Service) queue.JobHandler { return s }),
	queue.WorkerModule,
	bus.ConsumerModule,
	fx.Invoke(registerConsumers),
	fx.Invoke(bus.RunConsumer),
	fx.Provide(newPrometheus),
	fx.Invoke(func(*metrics.Prometheus) {}),
)

// CLI is the operator tool graph; it starts no listeners.
var CLI = fx.Options(
	Core,
	fx.NopLogger,
)
