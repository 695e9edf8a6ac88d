// Package bus connects the engine to the shared RabbitMQ topic exchange.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fatflowers/payment-engine/internal/app/service/events"
	"github.com/fatflowers/payment-engine/pkg/config"
	"github.com/fatflowers/payment-engine/pkg/logctx"
	"github.com/fatflowers/payment-engine/pkg/tool"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exchangeKind = "topic"

// Publisher publishes events with the event name as routing key. The
// connection is opened on first use and reopened after it drops.
type Publisher struct {
	url      string
	exchange string
	log      *zap.SugaredLogger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ events.Publisher = (*Publisher)(nil)

func NewPublisher(cfg *config.Config, log *zap.SugaredLogger) *Publisher {
	return &Publisher{url: cfg.AMQP.URL, exchange: cfg.AMQP.Exchange, log: log}
}

var Module = fx.Options(
	fx.Provide(
		NewPublisher,
		func(p *Publisher) events.Publisher { return p },
	),
	fx.Invoke(func(lc fx.Lifecycle, p *Publisher) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return p.Close() }})
	}),
)

// channel returns an open channel. Callers hold p.mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to broker: %w", err)
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareExchange(ch, p.exchange); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(name, exchangeKind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", name, err)
	}
	return nil
}

func (p *Publisher) Publish(ctx context.Context, name string, payload any) error {
	env, err := events.NewEnvelope(name, payload, time.Now())
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     tool.NewID(),
		CorrelationId: logctx.TraceID(ctx),
		Timestamp:     env.OccurredAt,
		Type:          name,
		Body:          body,
	}
	if err := ch.PublishWithContext(ctx, p.exchange, name, false, false, msg); err != nil {
		p.ch = nil
		return fmt.Errorf("failed to publish %s: %w", name, err)
	}
	logctx.FromCtx(ctx, p.log).Infow("event_published", "event", name, "message_id", msg.MessageId)
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}
