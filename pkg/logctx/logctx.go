package logctx

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ctxKey string

const (
	// GinLoggerKey is the gin.Context key holding the request logger.
	GinLoggerKey = "logger"
	// GinTraceKey is the gin.Context key holding the trace id.
	GinTraceKey = "traceID"

	loggerKey    ctxKey = "logger"
	traceKey     ctxKey = "traceID"
	paymentIDKey ctxKey = "paymentID"
)

// WithLogger stores a request or job scoped logger in ctx.
func WithLogger(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceID stores the trace id in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey, traceID)
}

// WithPaymentID tags ctx with the payment being worked on.
func WithPaymentID(ctx context.Context, paymentID string) context.Context {
	return context.WithValue(ctx, paymentIDKey, paymentID)
}

// TraceID returns the trace id stored in ctx, if any.
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if c, ok := ctx.(*gin.Context); ok {
		if v, ok := c.Get(GinTraceKey); ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		ctx = c.Request.Context()
	}
	s, _ := ctx.Value(traceKey).(string)
	return s
}

// FromGin returns a request-scoped logger from gin.Context if present,
// otherwise returns the provided base logger.
func FromGin(c *gin.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return base
	}
	if l, ok := c.Get(GinLoggerKey); ok {
		if lg, ok := l.(*zap.SugaredLogger); ok && lg != nil {
			return lg
		}
	}
	return FromCtx(c.Request.Context(), base)
}

// FromCtx returns a logger from context if set, otherwise attempts to enrich
// base with trace_id/payment_id from context values.
func FromCtx(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if ctx == nil {
		return base
	}
	if c, ok := ctx.(*gin.Context); ok {
		return FromGin(c, base)
	}
	if lg, ok := ctx.Value(loggerKey).(*zap.SugaredLogger); ok && lg != nil {
		return lg
	}
	var fields []interface{}
	if tid, ok := ctx.Value(traceKey).(string); ok && tid != "" {
		fields = append(fields, "trace_id", tid)
	}
	if pid, ok := ctx.Value(paymentIDKey).(string); ok && pid != "" {
		fields = append(fields, "payment_id", pid)
	}
	if len(fields) > 0 {
		return base.With(fields...)
	}
	return base
}
