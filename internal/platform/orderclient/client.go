// Package orderclient verifies orders against the order service.
package orderclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fatflowers/payment-engine/pkg/config"
	"github.com/fatflowers/payment-engine/pkg/logctx"
	"github.com/fatflowers/payment-engine/pkg/resilience"

	fastshot "github.com/opus-domini/fast-shot"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	BreakerTarget = "order-service"
	UserIDHeader  = "x-user-id"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrOrderForbidden          = errors.New("order does not belong to user")
	ErrOrderRejected           = errors.New("order lookup rejected")
	ErrOrderServiceUnavailable = errors.New("order service unavailable")
)

type order struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

type Client struct {
	baseURL  string
	timeout  time.Duration
	breakers *resilience.Breakers
	log      *zap.SugaredLogger
}

func New(cfg *config.Config, breakers *resilience.Breakers, log *zap.SugaredLogger) *Client {
	timeout := cfg.OrderService.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.OrderService.BaseURL, "/"),
		timeout:  timeout,
		breakers: breakers,
		log:      log,
	}
}

var Module = fx.Options(
	fx.Provide(New),
)

// VerifyOrder checks that orderID exists and belongs to userID. Transport
// failures, 5xx answers and an open breaker surface as ErrOrderServiceUnavailable.
func (c *Client) VerifyOrder(ctx context.Context, orderID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.breakers.Execute(BreakerTarget, func() error {
		return c.fetch(orderID, userID)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, resilience.ErrOpen):
		logctx.FromCtx(ctx, c.log).Warnw("order_verify_breaker_open", "order_id", orderID)
		return fmt.Errorf("%w: %v", ErrOrderServiceUnavailable, err)
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrOrderForbidden), errors.Is(err, ErrOrderRejected):
		logctx.FromCtx(ctx, c.log).Infow("order_verify_rejected", "order_id", orderID, "user_id", userID, "err", err)
		return err
	default:
		logctx.FromCtx(ctx, c.log).Errorw("order_verify_failed", "order_id", orderID, "user_id", userID, "err", err)
		if errors.Is(err, ErrOrderServiceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrOrderServiceUnavailable, err)
	}
}

// fetch returns caller-side answers wrapped with resilience.Permanent so they
// do not trip the breaker.
func (c *Client) fetch(orderID, userID string) error {
	res, err := fastshot.NewClient(c.baseURL).
		Config().SetTimeout(c.timeout).
		Header().Add(UserIDHeader, userID).
		Build().GET("/order/orders/" + url.PathEscape(orderID)).
		Send()
	if err != nil {
		return err
	}
	defer res.RawResponse.Body.Close()

	code := res.RawResponse.StatusCode
	switch {
	case code == http.StatusNotFound:
		return resilience.Permanent(fmt.Errorf("%w: %s", ErrOrderNotFound, orderID))
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return resilience.Permanent(fmt.Errorf("%w: %s", ErrOrderForbidden, orderID))
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", ErrOrderServiceUnavailable, code)
	case code >= http.StatusMultipleChoices:
		return resilience.Permanent(fmt.Errorf("%w: status %d", ErrOrderRejected, code))
	}

	raw, err := io.ReadAll(res.RawResponse.Body)
	if err != nil {
		return err
	}
	var o order
	if len(raw) > 0 && json.Unmarshal(raw, &o) == nil && o.UserID != "" && o.UserID != userID {
		return resilience.Permanent(fmt.Errorf("%w: %s", ErrOrderForbidden, orderID))
	}
	return nil
}
