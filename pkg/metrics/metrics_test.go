package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_CountsRequestsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	p := NewPrometheus(NewPrometheusOptions{Subsystem: "api", Registerer: reg, Gatherer: reg})

	r := gin.New()
	p.Use(r)
	r.GET("/payments/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/payments/"+id, nil))
	}

	require.Equal(t, 2.0, testutil.ToFloat64(p.reqCnt.WithLabelValues("200", "GET", "/payments/:id")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "api_requests_total")
}

func TestPrometheus_UnmatchedPathsShareOneLabel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	p := NewPrometheus(NewPrometheusOptions{Registerer: reg, Gatherer: reg})

	r := gin.New()
	r.Use(p.HandlerFunc())
	for _, path := range []string{"/wp-admin", "/.env", "/admin.php"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, 3.0, testutil.ToFloat64(p.reqCnt.WithLabelValues("404", "GET", "unmatched")))
}

func TestNewMetric_KindSelectsCollector(t *testing.T) {
	require.IsType(t, &prometheus.CounterVec{}, NewMetric(&Metric{Name: "a", Description: "test", Kind: CounterVec, Labels: []string{"x"}}, "t"))
	require.IsType(t, &prometheus.GaugeVec{}, NewMetric(&Metric{Name: "b", Description: "test", Kind: GaugeVec, Labels: []string{"x"}}, "t"))
	require.IsType(t, &prometheus.HistogramVec{}, NewMetric(&Metric{Name: "c", Description: "test", Kind: HistogramVec, Labels: []string{"x"}}, "t"))
	require.IsType(t, &prometheus.SummaryVec{}, NewMetric(&Metric{Name: "d", Description: "test", Kind: SummaryVec, Labels: []string{"x"}}, "t"))
}

func TestPaymentMetrics_RecordsBusinessCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)

	m.PaymentCreated("razorpay", "http")
	m.ChargeAttempt("razorpay", false, time.Now())
	m.ChargeAttempt("razorpay", true, time.Now())
	m.DeadLettered("stripe")
	m.WebhookDelivery("stripe", "applied")
	m.BreakerState("order-service", 2)

	require.Equal(t, 1.0, testutil.ToFloat64(m.created.WithLabelValues("razorpay", "http")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("razorpay", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("razorpay", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.dlq.WithLabelValues("stripe")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.breakers.WithLabelValues("order-service")))

	// A second instance on the same registry shares collectors.
	again := NewPaymentMetrics(reg)
	again.PaymentCreated("razorpay", "http")
	require.Equal(t, 2.0, testutil.ToFloat64(m.created.WithLabelValues("razorpay", "http")))
}

func TestPaymentMetrics_NilIsNoop(t *testing.T) {
	var m *PaymentMetrics
	require.NotPanics(t, func() {
		m.PaymentCreated("razorpay", "http")
		m.Refund("stripe", "completed")
	})
}
