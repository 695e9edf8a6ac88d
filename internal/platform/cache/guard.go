// Package cache holds the Redis backed helpers shared by the API processes.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/fatflowers/payment-engine/pkg/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"
)

const deliveryKeyPrefix = "payment:webhook:delivery:"

// DeliveryGuard remembers provider webhook deliveries for a TTL so a
// redelivered event is recognised before its transition is applied again.
type DeliveryGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func NewDeliveryGuard(rdb *redis.Client, ttl time.Duration) *DeliveryGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DeliveryGuard{rdb: rdb, ttl: ttl}
}

var Module = fx.Options(
	fx.Provide(
		NewRedisClient,
		func(rdb *redis.Client, cfg *config.Config) *DeliveryGuard {
			return NewDeliveryGuard(rdb, cfg.Webhook.DedupeTTL)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, rdb *redis.Client) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return rdb.Close() }})
	}),
)

func deliveryKey(provider, eventID string) string {
	return deliveryKeyPrefix + provider + ":" + eventID
}

// Claim reports whether this is the first delivery of eventID seen within the TTL.
func (g *DeliveryGuard) Claim(ctx context.Context, provider, eventID string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, deliveryKey(provider, eventID), time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim webhook delivery: %w", err)
	}
	return ok, nil
}

// Release forgets eventID so the provider's next redelivery is processed.
func (g *DeliveryGuard) Release(ctx context.Context, provider, eventID string) error {
	if err := g.rdb.Del(ctx, deliveryKey(provider, eventID)).Err(); err != nil {
		return fmt.Errorf("failed to release webhook delivery: %w", err)
	}
	return nil
}
