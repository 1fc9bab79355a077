package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prom exposes worker observations as Prometheus collectors.
type Prom struct {
	requests  *prometheus.CounterVec
	transform *prometheus.HistogramVec
	inflight  prometheus.Gauge
	gatherer  prometheus.Gatherer
}

// NewProm registers the pipeline collectors on a fresh registry.
func NewProm() *Prom {
	reg := prometheus.NewRegistry()
	p := &Prom{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipeline",
				Name:      "requests_total",
				Help:      "Processing requests handled, by type and disposition.",
			},
			[]string{"type", "disposition"},
		),
		transform: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pipeline",
				Name:      "transform_seconds",
				Help:      "Time spent handling a processing request, by engine.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"engine"},
		),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pipeline",
			Name:      "inflight",
			Help:      "Processing requests currently being handled.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(p.requests, p.transform, p.inflight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return p
}

func (p *Prom) Observe(o Observation) {
	p.requests.WithLabelValues(o.Type, o.Disposition).Inc()
	if o.Engine != "" {
		p.transform.WithLabelValues(o.Engine).Observe(o.Duration.Seconds())
	}
}

func (p *Prom) InFlight(delta int) {
	p.inflight.Add(float64(delta))
}

// Gatherer returns the registry backing p.
func (p *Prom) Gatherer() prometheus.Gatherer { return p.gatherer }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
