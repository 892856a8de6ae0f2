// Package metrics exposes Prometheus collectors for ingestion, caching,
// webhooks, ad-spend sync and HTTP traffic. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "painel"

type Metrics struct {
	gatherer prometheus.Gatherer

	uploads       *prometheus.CounterVec
	rowsIngested  *prometheus.CounterVec
	parseDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	webhooks      *prometheus.CounterVec
	syncRuns      *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	security      *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, so several instances
// can coexist in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return NewWithRegistry(reg, reg)
}

func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: g,
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Spreadsheet uploads by file kind and outcome.",
		}, []string{"kind", "status"}),
		rowsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_ingested_total",
			Help:      "Rows merged into period buckets by origin.",
		}, []string{"origin"}),
		parseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time spent decoding and parsing uploaded files.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_lookups_total",
			Help:      "KPI report cache lookups by result.",
		}, []string{"result"}),
		webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Sales webhooks by platform and outcome.",
		}, []string{"platform", "outcome"}),
		syncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adspend_sync_total",
			Help:      "Ad-spend sync runs per project by outcome.",
		}, []string{"outcome"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		security: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_security_events_total",
			Help:      "Rate-limited and suspicious requests.",
		}, []string{"event"}),
	}
}

func (m *Metrics) ObserveUpload(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(kind, status).Inc()
	m.parseDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) AddRows(origin string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsIngested.WithLabelValues(origin).Add(float64(n))
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Webhook(platform, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) SyncRun(outcome string) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// SecurityEvent counts a rejected or flagged request ("rate_limited",
// "suspicious").
func (m *Metrics) SecurityEvent(event string) {
	if m == nil {
		return
	}
	m.security.WithLabelValues(event).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
