// Package resilience owns the circuit breaker state of every downstream target.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/fatflowers/payment-engine/pkg/config"
	"github.com/fatflowers/payment-engine/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrOpen is returned while a target's breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

type Settings struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold uint32
	// Cooldown is how long the breaker stays open before a trial call.
	Cooldown time.Duration
}

// Breakers holds one breaker per downstream target, created on first use.
type Breakers struct {
	mu       sync.Mutex
	settings Settings
	breakers map[string]*gobreaker.CircuitBreaker
	log      *zap.SugaredLogger
	metrics  *metrics.PaymentMetrics
}

func NewBreakers(s Settings, log *zap.SugaredLogger, m *metrics.PaymentMetrics) *Breakers {
	if s.Threshold == 0 {
		s.Threshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Breakers{settings: s, breakers: map[string]*gobreaker.CircuitBreaker{}, log: log, metrics: m}
}

func newFromConfig(cfg *config.Config, log *zap.SugaredLogger, m *metrics.PaymentMetrics) *Breakers {
	return NewBreakers(Settings{
		Threshold: cfg.OrderService.BreakerThreshold,
		Cooldown:  cfg.OrderService.BreakerCooldown,
	}, log, m)
}

var Module = fx.Options(
	fx.Provide(newFromConfig),
)

func (b *Breakers) get(target string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[target]; ok {
		return cb
	}
	threshold := b.settings.Threshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        target,
		MaxRequests: 1,
		Timeout:     b.settings.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warnw("circuit_breaker_state_changed", "target", name, "from", from.String(), "to", to.String())
			b.metrics.BreakerState(name, int(to))
		},
	})
	b.breakers[target] = cb
	return cb
}

// Execute runs fn through target's breaker. Rejections surface as ErrOpen.
func (b *Breakers) Execute(target string, fn func() error) error {
	_, err := b.get(target).Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// State returns the current state of target's breaker.
func (b *Breakers) State(target string) gobreaker.State {
	return b.get(target).State()
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as a caller-side failure that must not count against the breaker,
// such as a 404 from a healthy downstream.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
