package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Kind selects the prometheus collector built for a Metric.
type Kind int

const (
	CounterVec Kind = iota
	GaugeVec
	HistogramVec
	SummaryVec
)

// RequestBuckets cover API handlers in milliseconds. Webhook and query routes
// answer well under a second; payment creation includes the order-service call.
var RequestBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// ProviderBuckets cover outbound provider calls in milliseconds, up to the
// provider HTTP timeout.
var ProviderBuckets = []float64{50, 100, 250, 500, 1000, 2000, 3000, 5000, 7500, 10000, 15000, 30000}

// Metric describes one collector. Buckets only applies to HistogramVec.
type Metric struct {
	ID          string
	Name        string
	Description string
	Kind        Kind
	Labels      []string
	Buckets     []float64
}

// NewMetric builds the collector described by m under subsystem.
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	switch m.Kind {
	case GaugeVec:
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Labels)
	case HistogramVec:
		buckets := m.Buckets
		if len(buckets) == 0 {
			buckets = RequestBuckets
		}
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: buckets}, m.Labels)
	case SummaryVec:
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Labels)
	default:
		return prometheus.NewCounterVec(prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Labels)
	}
}

// registerAll registers defs on reg and returns the live collectors keyed by
// Metric.ID. A collector already registered by an earlier instance is reused.
func registerAll(reg prometheus.Registerer, subsystem string, defs []*Metric, onErr func(def *Metric, err error)) map[string]prometheus.Collector {
	out := make(map[string]prometheus.Collector, len(defs))
	for _, def := range defs {
		c := NewMetric(def, subsystem)
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				c = are.ExistingCollector
			} else if onErr != nil {
				onErr(def, err)
			}
		}
		out[def.ID] = c
	}
	return out
}
