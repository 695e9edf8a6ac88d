package orderclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatflowers/payment-engine/pkg/config"
	"github.com/fatflowers/payment-engine/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, threshold uint32) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &config.Config{OrderService: config.OrderServiceConfig{BaseURL: srv.URL, Timeout: time.Second}}
	log := zap.NewNop().Sugar()
	return New(cfg, resilience.NewBreakers(resilience.Settings{Threshold: threshold, Cooldown: time.Minute}, log, nil), log)
}

func TestVerifyOrder(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "owned", status: http.StatusOK, body: `{"id":"o-1","userId":"u-1"}`},
		{name: "no owner in body", status: http.StatusOK, body: `{}`},
		{name: "other owner", status: http.StatusOK, body: `{"id":"o-1","userId":"u-2"}`, wantErr: ErrOrderForbidden},
		{name: "missing", status: http.StatusNotFound, wantErr: ErrOrderNotFound},
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: ErrOrderForbidden},
		{name: "forbidden", status: http.StatusForbidden, wantErr: ErrOrderForbidden},
		{name: "bad request", status: http.StatusBadRequest, wantErr: ErrOrderRejected},
		{name: "server error", status: http.StatusBadGateway, wantErr: ErrOrderServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/order/orders/o-1", r.URL.Path)
				assert.Equal(t, "u-1", r.Header.Get(UserIDHeader))
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, 5)

			err := c.VerifyOrder(context.Background(), "o-1", "u-1")
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestVerifyOrder_BreakerOpensOnServerErrorsOnly(t *testing.T) {
	var calls atomic.Int32
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(int(status.Load()))
	}, 2)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, c.VerifyOrder(context.Background(), "o-1", "u-1"), ErrOrderNotFound)
	}
	assert.EqualValues(t, 3, calls.Load(), "not-found answers must not trip the breaker")

	status.Store(http.StatusServiceUnavailable)
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, c.VerifyOrder(context.Background(), "o-1", "u-1"), ErrOrderServiceUnavailable)
	}
	assert.EqualValues(t, 5, calls.Load())

	err := c.VerifyOrder(context.Background(), "o-1", "u-1")
	assert.ErrorIs(t, err, ErrOrderServiceUnavailable)
	assert.EqualValues(t, 5, calls.Load(), "open breaker must short-circuit")
}

func TestVerifyOrder_Unreachable(t *testing.T) {
	log := zap.NewNop().Sugar()
	cfg := &config.Config{OrderService: config.OrderServiceConfig{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}}
	c := New(cfg, resilience.NewBreakers(resilience.Settings{}, log, nil), log)

	assert.ErrorIs(t, c.VerifyOrder(context.Background(), "o-1", "u-1"), ErrOrderServiceUnavailable)
}
