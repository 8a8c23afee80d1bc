package metrics

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/puzpuzpuz/xsync/v3"
)

// Prometheus registers a vector per metric name on first use. The label
// names of a metric are fixed by its first observation; later calls with a
// different label set are dropped with a warning.
type Prometheus struct {
	reg        *prometheus.Registry
	counters   *xsync.MapOf[string, *prometheus.CounterVec]
	gauges     *xsync.MapOf[string, *prometheus.GaugeVec]
	histograms *xsync.MapOf[string, *prometheus.HistogramVec]
}

var _ Collector = (*Prometheus)(nil)

func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	return &Prometheus{
		reg:        reg,
		counters:   xsync.NewMapOf[string, *prometheus.CounterVec](),
		gauges:     xsync.NewMapOf[string, *prometheus.GaugeVec](),
		histograms: xsync.NewMapOf[string, *prometheus.HistogramVec](),
	}
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.reg
}

// Handler serves the registry in the text exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Prometheus) IncCounter(name string, labels map[string]string, delta float64) {
	vec, _ := p.counters.LoadOrCompute(name, func() *prometheus.CounterVec {
		v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help(name)}, labelNames(labels))
		p.register(name, v)
		return v
	})
	c, err := vec.GetMetricWith(labels)
	if err != nil {
		slog.Warn("metrics: label mismatch", "metric", name, "error", err)
		return
	}
	c.Add(delta)
}

func (p *Prometheus) SetGauge(name string, labels map[string]string, value float64) {
	vec, _ := p.gauges.LoadOrCompute(name, func() *prometheus.GaugeVec {
		v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help(name)}, labelNames(labels))
		p.register(name, v)
		return v
	})
	g, err := vec.GetMetricWith(labels)
	if err != nil {
		slog.Warn("metrics: label mismatch", "metric", name, "error", err)
		return
	}
	g.Set(value)
}

func (p *Prometheus) ObserveHistogram(name string, labels map[string]string, value float64) {
	vec, _ := p.histograms.LoadOrCompute(name, func() *prometheus.HistogramVec {
		v := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    help(name),
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, labelNames(labels))
		p.register(name, v)
		return v
	})
	h, err := vec.GetMetricWith(labels)
	if err != nil {
		slog.Warn("metrics: label mismatch", "metric", name, "error", err)
		return
	}
	h.Observe(value)
}

func (p *Prometheus) register(name string, c prometheus.Collector) {
	if err := p.reg.Register(c); err != nil {
		slog.Warn("metrics: register failed", "metric", name, "error", err)
	}
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func help(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}
