package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fatflowers/payment-engine/pkg/logctx"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestEngine(base *zap.SugaredLogger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(base), AccessLogMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, logctx.TraceID(c.Request.Context()))
	})
	return r
}

func TestTraceMiddleware_PropagatesRequestID(t *testing.T) {
	r := newTestEngine(zap.NewNop().Sugar())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, "req-42", w.Body.String())
	require.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestTraceMiddleware_GeneratesRequestID(t *testing.T) {
	r := newTestEngine(zap.NewNop().Sugar())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.NotEmpty(t, w.Header().Get(RequestIDHeader))
	require.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())
}

func TestAccessLogMiddleware_LogsWithTrace(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := newTestEngine(zap.New(core).Sugar())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http_access").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "req-7", fields["trace_id"])
	require.Equal(t, "/ping", fields["path"])
	require.EqualValues(t, http.StatusOK, fields["status"])
}

func TestAccessLogMiddleware_IncludesPaymentID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := newTestEngine(zap.New(core).Sugar())
	r.GET("/payments/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/payments/p-1", nil))

	entries := logs.FilterMessage("http_access").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "p-1", fields["payment_id"])
	require.Equal(t, "/payments/:id", fields["path"])
	_, hasProvider := fields["provider"]
	require.False(t, hasProvider)
}
