package shared

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the engine
type Metrics struct {
	// Command metrics
	commandTotal *prometheus.CounterVec

	// WAL metrics
	walAppends       prometheus.Counter
	walAppendBytes   prometheus.Counter
	walAppendLatency prometheus.Histogram
	walErrors        *prometheus.CounterVec

	// Transaction metrics
	transactions *prometheus.CounterVec

	// Recovery metrics
	recoveredEntries *prometheus.CounterVec

	// Watcher metrics
	watcherEvents   prometheus.Counter
	watcherIngested prometheus.Counter
	watcherRetries  prometheus.Counter
	watcherSkipped  *prometheus.CounterVec

	// Table metrics
	tableKeys prometheus.Gauge
}

// NewMetrics registers the engine metrics on reg. A nil reg gets a fresh
// private registry so several stores can live in one process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		commandTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logkv_commands_total",
				Help: "Total number of protocol commands by keyword and result",
			},
			[]string{"command", "result"},
		),

		walAppends: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "logkv_wal_appends_total",
				Help: "Total number of locked appends to the main log",
			},
		),
		walAppendBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "logkv_wal_append_bytes_total",
				Help: "Total bytes appended to the main log",
			},
		),
		walAppendLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "logkv_wal_append_duration_seconds",
				Help:    "Duration of main log appends including lock wait",
				Buckets: prometheus.DefBuckets,
			},
		),
		walErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logkv_wal_errors_total",
				Help: "Total number of WAL errors",
			},
			[]string{"operation"},
		),

		transactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logkv_transactions_total",
				Help: "Total number of finished transactions by outcome",
			},
			[]string{"outcome"},
		),

		recoveredEntries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logkv_recovered_entries_total",
				Help: "Log entries applied during startup recovery",
			},
			[]string{"source"},
		),

		watcherEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "logkv_watcher_events_total",
				Help: "Filesystem events matching the main log",
			},
		),
		watcherIngested: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "logkv_watcher_ingested_total",
				Help: "Externally appended lines applied to the table",
			},
		),
		watcherRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "logkv_watcher_tail_retries_total",
				Help: "Tail reads retried because the last line was incomplete",
			},
		),
		watcherSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logkv_watcher_skipped_total",
				Help: "Watcher events that did not result in an ingest",
			},
			[]string{"reason"},
		),

		tableKeys: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "logkv_table_keys",
				Help: "Number of keys currently in the table",
			},
		),
	}
}

// RecordCommand counts a dispatched command
func (m *Metrics) RecordCommand(command, result string) {
	m.commandTotal.WithLabelValues(command, result).Inc()
}

// RecordAppend records a successful WAL append
func (m *Metrics) RecordAppend(bytes int, duration time.Duration) {
	m.walAppends.Inc()
	m.walAppendBytes.Add(float64(bytes))
	m.walAppendLatency.Observe(duration.Seconds())
}

// RecordWALError counts a failed WAL operation
func (m *Metrics) RecordWALError(operation string) {
	m.walErrors.WithLabelValues(operation).Inc()
}

// RecordTransaction counts a finished transaction ("commit", "rollback", "failed")
func (m *Metrics) RecordTransaction(outcome string) {
	m.transactions.WithLabelValues(outcome).Inc()
}

// RecordRecovered counts entries replayed from a source ("main", "transaction")
func (m *Metrics) RecordRecovered(source string, n int) {
	m.recoveredEntries.WithLabelValues(source).Add(float64(n))
}

// RecordWatcherEvent counts a matching filesystem event
func (m *Metrics) RecordWatcherEvent() {
	m.watcherEvents.Inc()
}

// RecordIngest counts an ingested external line
func (m *Metrics) RecordIngest() {
	m.watcherIngested.Inc()
}

// RecordTailRetry counts a retried tail read
func (m *Metrics) RecordTailRetry() {
	m.watcherRetries.Inc()
}

// RecordSkip counts a watcher event dropped for reason
func (m *Metrics) RecordSkip(reason string) {
	m.watcherSkipped.WithLabelValues(reason).Inc()
}

// SetTableKeys updates the table size gauge
func (m *Metrics) SetTableKeys(n int) {
	m.tableKeys.Set(float64(n))
}
