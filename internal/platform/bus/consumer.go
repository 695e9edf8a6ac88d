package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fatflowers/payment-engine/internal/app/service/events"
	"github.com/fatflowers/payment-engine/pkg/config"
	"github.com/fatflowers/payment-engine/pkg/logctx"
	"github.com/fatflowers/payment-engine/pkg/resilience"
	"github.com/fatflowers/payment-engine/pkg/tool"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Handler consumes one event. Errors marked with resilience.Permanent are
// dropped; other errors are requeued once.
type Handler func(ctx context.Context, env *events.Envelope) error

type Consumer struct {
	url      string
	exchange string
	queue    string
	prefetch int
	log      *zap.SugaredLogger

	handlers map[string]Handler
	conn     *amqp.Connection
	ch       *amqp.Channel
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

func NewConsumer(cfg *config.Config, log *zap.SugaredLogger) *Consumer {
	return &Consumer{
		url:      cfg.AMQP.URL,
		exchange: cfg.AMQP.Exchange,
		queue:    cfg.AMQP.ConsumerQueue,
		prefetch: cfg.AMQP.Prefetch,
		log:      log,
		handlers: map[string]Handler{},
	}
}

// Handle registers h for events named name. It must be called before Start.
func (c *Consumer) Handle(name string, h Handler) {
	c.handlers[name] = h
}

func (c *Consumer) Start(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	c.conn, c.ch = conn, ch

	if c.prefetch > 0 {
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set prefetch: %w", err)
		}
	}
	if err := declareExchange(ch, c.exchange); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.queue, err)
	}
	for name := range c.handlers {
		if err := ch.QueueBind(c.queue, name, c.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	deliveries, err := ch.ConsumeWithContext(runCtx, c.queue, "payment-engine-"+tool.NewID(), false, false, false, false, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to consume %s: %w", c.queue, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for d := range deliveries {
			c.dispatch(runCtx, d)
		}
	}()
	c.log.Infow("consumer started", "queue", c.queue, "events", len(c.handlers))
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	ctx = logctx.WithTraceID(ctx, lo.Ternary(d.CorrelationId != "", d.CorrelationId, tool.NewID()))
	log := logctx.FromCtx(ctx, c.log)

	var env events.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil || env.Name == "" {
		log.Errorw("event_malformed", "routing_key", d.RoutingKey, "err", err)
		_ = d.Nack(false, false)
		return
	}
	h, ok := c.handlers[env.Name]
	if !ok {
		log.Debugw("event_unhandled", "event", env.Name)
		_ = d.Ack(false)
		return
	}
	if err := h(ctx, &env); err != nil {
		requeue := !resilience.IsPermanent(err) && !d.Redelivered
		log.Errorw("event_handle_failed", "event", env.Name, "requeue", requeue, "err", err)
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

func (c *Consumer) Stop(context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	var err error
	if c.ch != nil {
		err = c.ch.Close()
	}
	c.wg.Wait()
	if c.conn != nil && !c.conn.IsClosed() {
		if cerr := c.conn.Close(); err == nil {
			err = cerr
		}
	}
	c.log.Infow("consumer stopped", "queue", c.queue)
	return err
}

var ConsumerModule = fx.Options(
	fx.Provide(NewConsumer),
)

// RunConsumer starts c with the fx lifecycle once all handlers are registered.
func RunConsumer(lc fx.Lifecycle, c *Consumer) {
	lc.Append(fx.Hook{OnStart: c.Start, OnStop: c.Stop})
}
