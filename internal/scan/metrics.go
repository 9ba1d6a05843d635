package scan

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the scan counters. A nil *Metrics records nothing.
type Metrics struct {
	scansOpened  prometheus.Counter
	scanFailures prometheus.Counter
	truncated    prometheus.Counter
	rowsEmitted  prometheus.Counter
	staleHits    *prometheus.CounterVec
	fetches      prometheus.Counter
	hitsFetched  prometheus.Counter
	openScans    prometheus.Gauge
	fetchLatency prometheus.Histogram
}

// NewMetrics creates the scan metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scansOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gorowsearch_scans_opened_total",
			Help: "Scans opened against a searcher snapshot",
		}),
		scanFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gorowsearch_scan_failures_total",
			Help: "Scans that ended with a store or engine error",
		}),
		truncated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gorowsearch_scans_truncated_total",
			Help: "Scans stopped by the fetch cap before the engine was exhausted",
		}),
		rowsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gorowsearch_rows_emitted_total",
			Help: "Rows returned to callers",
		}),
		staleHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gorowsearch_stale_hits_total",
			Help: "Hits discarded because the live row no longer matches",
		}, []string{"reason"}),
		fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gorowsearch_engine_fetches_total",
			Help: "Hit batches requested from the search engine",
		}),
		hitsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gorowsearch_hits_fetched_total",
			Help: "Ranked hits returned by the search engine",
		}),
		openScans: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gorowsearch_open_scans",
			Help: "Scans currently holding a searcher handle",
		}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gorowsearch_engine_fetch_seconds",
			Help:    "Latency of one engine batch fetch",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.scansOpened,
		m.scanFailures,
		m.truncated,
		m.rowsEmitted,
		m.staleHits,
		m.fetches,
		m.hitsFetched,
		m.openScans,
		m.fetchLatency,
	)
	return m
}

func (m *Metrics) opened() {
	if m == nil {
		return
	}
	m.scansOpened.Inc()
	m.openScans.Inc()
}

func (m *Metrics) released() {
	if m == nil {
		return
	}
	m.openScans.Dec()
}

func (m *Metrics) failed() {
	if m == nil {
		return
	}
	m.scanFailures.Inc()
}

func (m *Metrics) wasTruncated() {
	if m == nil {
		return
	}
	m.truncated.Inc()
}

func (m *Metrics) emitted() {
	if m == nil {
		return
	}
	m.rowsEmitted.Inc()
}

func (m *Metrics) stale(reason string) {
	if m == nil {
		return
	}
	m.staleHits.WithLabelValues(reason).Inc()
}

func (m *Metrics) fetched(hits int, d time.Duration) {
	if m == nil {
		return
	}
	m.fetches.Inc()
	m.hitsFetched.Add(float64(hits))
	m.fetchLatency.Observe(d.Seconds())
}
