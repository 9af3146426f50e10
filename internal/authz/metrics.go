package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes the caching decorator.
type Metrics struct {
	hits            *prometheus.CounterVec
	misses          *prometheus.CounterVec
	resolveDuration *prometheus.HistogramVec
}

// NewMetrics registers decorator metrics with the given registerer. A nil
// registerer falls back to the prometheus default.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_authz_cache_hits_total",
		Help: "Number of authorization checks answered from cache.",
	}, []string{"capability"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_authz_cache_miss_total",
		Help: "Number of authorization checks that required resolution.",
	}, []string{"capability"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "faultline_authz_resolve_duration_seconds",
		Help:    "Duration of uncached authorization resolutions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"capability"})
	reg.MustRegister(hits, misses, duration)
	return &Metrics{hits: hits, misses: misses, resolveDuration: duration}
}

func (m *Metrics) recordHit(capability string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(capability).Inc()
}

func (m *Metrics) recordMiss(capability string) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(capability).Inc()
}

func (m *Metrics) observeResolve(capability string, d time.Duration) {
	if m == nil {
		return
	}
	m.resolveDuration.WithLabelValues(capability).Observe(d.Seconds())
}
