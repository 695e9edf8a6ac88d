package metrics

// HTTP middleware derived from https://github.com/zsais/go-gin-prometheus,
// without the push gateway and with a metrics-only listener.

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var httpLabels = []string{"code", "method", "route"}

var reqCnt = &Metric{
	ID:          "reqCnt",
	Name:        "requests_total",
	Description: "HTTP requests handled, partitioned by status code, method and route template.",
	Kind:        CounterVec,
	Labels:      httpLabels,
}

var reqDur = &Metric{
	ID:          "reqDur",
	Name:        "request_dur_ms",
	Description: "HTTP request latency in milliseconds.",
	Kind:        HistogramVec,
	Labels:      httpLabels,
	Buckets:     RequestBuckets,
}

var reqSz = &Metric{
	ID:          "reqSz",
	Name:        "request_size_bytes",
	Description: "Approximate HTTP request size in bytes.",
	Kind:        SummaryVec,
	Labels:      httpLabels,
}

var resSz = &Metric{
	ID:          "resSz",
	Name:        "response_size_bytes",
	Description: "HTTP response size in bytes.",
	Kind:        SummaryVec,
	Labels:      httpLabels,
}

var httpMetrics = []*Metric{reqCnt, reqDur, reqSz, resSz}

const defaultMetricPath = "/metrics"

type Logger interface {
	Errorw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
}

// RouteLabelFn controls the cardinality of the "route" label.
type RouteLabelFn func(c *gin.Context) string

// routeTemplate maps "/payments/abc" to "/payments/:id". Unmatched paths share
// one label so scanners cannot blow up the series count.
func routeTemplate(c *gin.Context) string {
	if fp := c.FullPath(); fp != "" {
		return fp
	}
	return "unmatched"
}

type Prometheus struct {
	reqCnt       *prometheus.CounterVec
	reqDur       *prometheus.HistogramVec
	reqSz, resSz *prometheus.SummaryVec

	gatherer prometheus.Gatherer
	server   *http.Server

	MetricsPath string
	RouteLabel  RouteLabelFn

	logger Logger
}

type NewPrometheusOptions struct {
	Subsystem   string
	MetricsPath string
	RouteLabel  RouteLabelFn
	Logger      Logger
	// Registerer and Gatherer default to the prometheus process-wide registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

func NewPrometheus(options NewPrometheusOptions) *Prometheus {
	p := &Prometheus{
		MetricsPath: options.MetricsPath,
		RouteLabel:  options.RouteLabel,
		gatherer:    options.Gatherer,
		logger:      options.Logger,
	}
	if p.MetricsPath == "" {
		p.MetricsPath = defaultMetricPath
	}
	if p.RouteLabel == nil {
		p.RouteLabel = routeTemplate
	}
	reg := options.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if p.gatherer == nil {
		p.gatherer = prometheus.DefaultGatherer
	}

	collectors := registerAll(reg, options.Subsystem, httpMetrics, func(def *Metric, err error) {
		if p.logger != nil {
			p.logger.Errorw("metric_register_failed", "metric", def.Name, "err", err)
		}
	})
	p.reqCnt = collectors[reqCnt.ID].(*prometheus.CounterVec)
	p.reqDur = collectors[reqDur.ID].(*prometheus.HistogramVec)
	p.reqSz = collectors[reqSz.ID].(*prometheus.SummaryVec)
	p.resSz = collectors[resSz.ID].(*prometheus.SummaryVec)
	return p
}

// Handler exposes the gathered metrics.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// Use adds the middleware to e and serves the metrics path on it.
func (p *Prometheus) Use(e *gin.Engine) {
	e.Use(p.HandlerFunc())
	e.GET(p.MetricsPath, gin.WrapH(p.Handler()))
}

// Listen configures a metrics-only listener on addr, keeping scrapes out of
// the API access log. The worker uses it without any gin engine.
func (p *Prometheus) Listen(addr string) {
	mux := http.NewServeMux()
	mux.Handle(p.MetricsPath, p.Handler())
	p.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// Start runs the metrics listener, if one was configured.
func (p *Prometheus) Start() {
	if p.server == nil {
		return
	}
	go func() {
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && p.logger != nil {
			p.logger.Errorw("metrics_server_error", "err", err)
		}
	}()
	if p.logger != nil {
		p.logger.Infow("metrics_started", "addr", p.server.Addr)
	}
}

func (p *Prometheus) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}

// HandlerFunc records request metrics for every route except the metrics path.
func (p *Prometheus) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == p.MetricsPath {
			c.Next()
			return
		}

		start := time.Now()
		reqSize := approximateRequestSize(c.Request)

		c.Next()

		labels := []string{strconv.Itoa(c.Writer.Status()), c.Request.Method, p.RouteLabel(c)}
		p.reqDur.WithLabelValues(labels...).Observe(MillisecondsSince(start))
		p.reqCnt.WithLabelValues(labels...).Inc()
		p.reqSz.WithLabelValues(labels...).Observe(float64(reqSize))
		p.resSz.WithLabelValues(labels...).Observe(float64(c.Writer.Size()))
	}
}

// MillisecondsSince returns the elapsed time since start in fractional milliseconds.
func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

func approximateRequestSize(r *http.Request) int {
	s := len(r.Method) + len(r.Proto) + len(r.Host)
	if r.URL != nil {
		s += len(r.URL.Path)
	}
	for name, values := range r.Header {
		s += len(name)
		for _, value := range values {
			s += len(value)
		}
	}
	if r.ContentLength > 0 {
		s += int(r.ContentLength)
	}
	return s
}
