package arraystore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/arraystore/query"
)

// PrometheusCollector is a MetricsCollector backed by Prometheus metrics.
type PrometheusCollector struct {
	opLatency  *prometheus.HistogramVec
	ops        *prometheus.CounterVec
	incomplete prometheus.Counter
	serveBytes *prometheus.CounterVec
	fragments  prometheus.Gauge
}

var _ MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates the collector and registers its metrics
// with reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &PrometheusCollector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arraystore",
			Name:      "operation_duration_seconds",
			Help:      "Latency of query operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arraystore",
			Name:      "operations_total",
			Help:      "Query operations by outcome.",
		}, []string{"op", "result"}),
		incomplete: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arraystore",
			Name:      "reads_incomplete_total",
			Help:      "Reads that stopped because the result buffers were full.",
		}),
		serveBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arraystore",
			Name:      "serve_bytes_total",
			Help:      "Serialized query bytes received and sent while serving remote clients.",
		}, []string{"direction"}),
		fragments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arraystore",
			Name:      "fragments",
			Help:      "Fragments in the most recently loaded fragment list.",
		}),
	}
	for _, c := range []prometheus.Collector{p.opLatency, p.ops, p.incomplete, p.serveBytes, p.fragments} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PrometheusCollector) observe(op string, d time.Duration, err error) {
	p.opLatency.WithLabelValues(op).Observe(d.Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.ops.WithLabelValues(op, result).Inc()
}

// RecordSubmit implements MetricsCollector.
func (p *PrometheusCollector) RecordSubmit(typ query.Type, d time.Duration, incomplete bool, err error) {
	p.observe(typ.String(), d, err)
	if incomplete {
		p.incomplete.Inc()
	}
}

// RecordFinalize implements MetricsCollector.
func (p *PrometheusCollector) RecordFinalize(d time.Duration, err error) {
	p.observe("finalize", d, err)
}

// RecordServe implements MetricsCollector.
func (p *PrometheusCollector) RecordServe(d time.Duration, requestBytes, responseBytes int, err error) {
	p.observe("serve", d, err)
	p.serveBytes.WithLabelValues("in").Add(float64(requestBytes))
	p.serveBytes.WithLabelValues("out").Add(float64(responseBytes))
}

// RecordFragments implements MetricsCollector.
func (p *PrometheusCollector) RecordFragments(n int) {
	p.fragments.Set(float64(n))
}
