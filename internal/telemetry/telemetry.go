// Package telemetry exposes the channel and dispatcher's operational
// counters as Prometheus metrics, following the per-subsystem counter
// style of gcsfuse's common/*_metrics.go (one vector per measured
// quantity, labeled by opcode/outcome) but built directly on
// prometheus/client_golang rather than gcsfuse's OpenTelemetry
// indirection, since this module takes client_golang as a direct
// dependency.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter and histogram this module records.
// Construct one per process with NewMetrics and register it with a
// prometheus.Registerer.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestErrors    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	InvalidationSent prometheus.Counter
	InvalidationDrop prometheus.Counter
	QueueDepth       prometheus.Gauge
}

// NewMetrics constructs the metric vectors. Call Register to attach them
// to a registry; NewMetrics itself performs no I/O or registration.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edenfs",
			Subsystem: "dispatcher",
			Name:      "requests_total",
			Help:      "Count of kernel requests dispatched, labeled by opcode.",
		}, []string{"opcode"}),
		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edenfs",
			Subsystem: "dispatcher",
			Name:      "request_errors_total",
			Help:      "Count of kernel requests that returned an error reply, labeled by opcode.",
		}, []string{"opcode"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edenfs",
			Subsystem: "dispatcher",
			Name:      "request_duration_seconds",
			Help:      "Handler latency, labeled by opcode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"opcode"}),
		InvalidationSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "edenfs",
			Subsystem: "invalidation",
			Name:      "sent_total",
			Help:      "Count of invalidation notifications successfully sent to the kernel.",
		}),
		InvalidationDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "edenfs",
			Subsystem: "invalidation",
			Name:      "dropped_total",
			Help:      "Count of invalidation notifications dropped because the kernel had already forgotten the inode.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edenfs",
			Subsystem: "invalidation",
			Name:      "queue_depth",
			Help:      "Number of entries currently queued for invalidation.",
		}),
	}
}

// Register attaches every metric in m to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.RequestsTotal, m.RequestErrors, m.RequestDuration,
		m.InvalidationSent, m.InvalidationDrop, m.QueueDepth,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
