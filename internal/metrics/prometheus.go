// Package metrics provides Prometheus metrics for the launcher.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the launcher. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Version check metrics
	VersionChecks *prometheus.CounterVec

	// Update metrics
	UpdatesTotal   *prometheus.CounterVec
	UpdateDuration prometheus.Histogram
	DownloadBytes  prometheus.Counter
	LastUpdate     prometheus.Gauge

	// Filesystem metrics
	FSEntries *prometheus.CounterVec

	// Installation metrics
	GameInstalled prometheus.Gauge
	GameRunning   prometheus.Gauge
	LocalVersion  prometheus.Gauge

	// System metrics
	Uptime prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.VersionChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ys_launcher_version_checks_total",
			Help: "Total number of version checks by target and outcome",
		},
		[]string{"target", "status"},
	)

	m.UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ys_launcher_updates_total",
			Help: "Total number of update cycles by result",
		},
		[]string{"result"},
	)

	m.UpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ys_launcher_update_duration_seconds",
			Help:    "Duration of update cycles",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	m.DownloadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ys_launcher_download_bytes_total",
			Help: "Total archive bytes downloaded",
		},
	)

	m.LastUpdate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ys_launcher_last_update_timestamp_seconds",
			Help: "Unix time of the last completed update cycle",
		},
	)

	m.FSEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ys_launcher_fs_entries_total",
			Help: "Filesystem entries processed by best-effort operations",
		},
		[]string{"op", "outcome"},
	)

	m.GameInstalled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ys_launcher_game_installed",
			Help: "Whether the game executable is present (1) or not (0)",
		},
	)

	m.GameRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ys_launcher_game_running",
			Help: "Whether the game process is running (1) or not (0)",
		},
	)

	m.LocalVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ys_launcher_local_version",
			Help: "Installed game version, or -1 when unknown",
		},
	)

	m.Uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ys_launcher_uptime_seconds",
			Help: "Launcher uptime in seconds",
		},
	)

	// Register all metrics
	m.registry.MustRegister(
		m.VersionChecks,
		m.UpdatesTotal,
		m.UpdateDuration,
		m.DownloadBytes,
		m.LastUpdate,
		m.FSEntries,
		m.GameInstalled,
		m.GameRunning,
		m.LocalVersion,
		m.Uptime,
	)

	// Register default Go metrics
	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// RecordCheck counts a version check.
func (m *Metrics) RecordCheck(target, status string) {
	if m == nil {
		return
	}
	m.VersionChecks.WithLabelValues(target, status).Inc()
}

// RecordUpdate counts a finished update cycle.
func (m *Metrics) RecordUpdate(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(result).Inc()
	m.UpdateDuration.Observe(duration.Seconds())
	m.LastUpdate.SetToCurrentTime()
}

// AddDownloadBytes adds n downloaded bytes.
func (m *Metrics) AddDownloadBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.DownloadBytes.Add(float64(n))
}

// RecordFS counts the entries handled by one best-effort operation.
func (m *Metrics) RecordFS(op string, succeeded, skipped, failed int) {
	if m == nil {
		return
	}
	m.FSEntries.WithLabelValues(op, "succeeded").Add(float64(succeeded))
	m.FSEntries.WithLabelValues(op, "skipped").Add(float64(skipped))
	m.FSEntries.WithLabelValues(op, "failed").Add(float64(failed))
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current metrics to path in the text exposition
// format, for pickup by a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
