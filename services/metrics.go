package services

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 服务指标，注册在独立的 Registry 上。nil *Metrics 的方法均为空操作。
type Metrics struct {
	Registry *prometheus.Registry

	fetchTotal      *prometheus.CounterVec
	fetchDuration   prometheus.Histogram
	cacheReads      *prometheus.CounterVec
	snapshotMatches prometheus.Gauge
}

// NewMetrics 创建并注册指标
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skzb_fetch_total",
			Help: "Upstream schedule fetches by result.",
		}, []string{"result"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skzb_fetch_duration_seconds",
			Help:    "Duration of upstream fetch, extraction and link assignment.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		}),
		cacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skzb_cache_reads_total",
			Help: "Snapshot reads by cache state.",
		}, []string{"state"}),
		snapshotMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skzb_snapshot_matches",
			Help: "Number of matches in the current snapshot.",
		}),
	}

	m.Registry.MustRegister(
		m.fetchTotal,
		m.fetchDuration,
		m.cacheReads,
		m.snapshotMatches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeFetch(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.fetchTotal.WithLabelValues(result).Inc()
	m.fetchDuration.Observe(d.Seconds())
}

func (m *Metrics) cacheRead(state string) {
	if m == nil {
		return
	}
	m.cacheReads.WithLabelValues(state).Inc()
}

func (m *Metrics) setSnapshotMatches(n int) {
	if m == nil {
		return
	}
	m.snapshotMatches.Set(float64(n))
}
