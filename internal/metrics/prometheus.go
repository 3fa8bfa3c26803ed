package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dorepo"

// Metrics holds the Prometheus collectors for one repository instance.
type Metrics struct {
	reg *prometheus.Registry

	// Transaction queue metrics
	QueueAppendsTotal     *prometheus.CounterVec
	QueueAppendDuration   *prometheus.HistogramVec
	QueueAppendRetries    *prometheus.CounterVec
	QueueRecordsReadTotal *prometheus.CounterVec

	// Embedded store metrics
	StoreWritesTotal   prometheus.Counter
	StoreWriteBytes    prometheus.Histogram
	StoreReadsTotal    prometheus.Counter
	StoreReadDuration  prometheus.Histogram
	StoreBatchCommits  prometheus.Counter
	StoreBatchDuration prometheus.Histogram
	StoreBatchOps      prometheus.Histogram

	// Facade and replication metrics
	LoggingFailuresTotal    *prometheus.CounterVec
	ReplicationReadsTotal   *prometheus.CounterVec
	ReplicationRecordsTotal prometheus.Counter
}

// New creates all collectors on a fresh registry that also carries the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers all collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,

		QueueAppendsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "txnlog",
			Name:      "appends_total",
			Help:      "Total number of transaction appends by queue and result",
		}, []string{"queue", "result"}),
		QueueAppendDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "txnlog",
			Name:      "append_duration_seconds",
			Help:      "Histogram of transaction append durations",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 100us to ~3s
		}, []string{"queue"}),
		QueueAppendRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "txnlog",
			Name:      "append_retries_total",
			Help:      "Total number of append attempts retried after a transient failure",
		}, []string{"queue"}),
		QueueRecordsReadTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "txnlog",
			Name:      "records_read_total",
			Help:      "Total number of transaction records read by queue",
		}, []string{"queue"}),

		StoreWritesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "Total number of single-key writes",
		}),
		StoreWriteBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "write_bytes",
			Help:      "Histogram of single-key write sizes in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
		}),
		StoreReadsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "reads_total",
			Help:      "Total number of point reads",
		}),
		StoreReadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "read_duration_seconds",
			Help:      "Histogram of point read durations",
			Buckets:   prometheus.DefBuckets,
		}),
		StoreBatchCommits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "batch_commits_total",
			Help:      "Total number of batch commits",
		}),
		StoreBatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "batch_commit_duration_seconds",
			Help:      "Histogram of batch commit durations",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		StoreBatchOps: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "batch_ops",
			Help:      "Histogram of operations per committed batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),

		LoggingFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storagelog",
			Name:      "logging_failures_total",
			Help:      "Total number of mutations applied but not logged, by operation",
		}, []string{"op"}),
		ReplicationReadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "reads_total",
			Help:      "Total number of replication reads by mode",
		}, []string{"mode"}),
		ReplicationRecordsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "records_total",
			Help:      "Total number of transaction records served to replicas",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveAppend implements txnlog.Metrics.
func (m *Metrics) ObserveAppend(queue string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.QueueAppendsTotal.WithLabelValues(queue, result).Inc()
	m.QueueAppendDuration.WithLabelValues(queue).Observe(elapsed.Seconds())
}

// ObserveAppendRetry implements txnlog.Metrics.
func (m *Metrics) ObserveAppendRetry(queue string) {
	m.QueueAppendRetries.WithLabelValues(queue).Inc()
}

// ObserveRead implements txnlog.Metrics.
func (m *Metrics) ObserveRead(queue string, records int) {
	m.QueueRecordsReadTotal.WithLabelValues(queue).Add(float64(records))
}

// LoggingFailed implements storagelog.Observer.
func (m *Metrics) LoggingFailed(op string, _ error) {
	m.LoggingFailuresTotal.WithLabelValues(op).Inc()
}

// ObserveReplicationRead counts one replication read serving n records.
func (m *Metrics) ObserveReplicationRead(mode string, n int) {
	m.ReplicationReadsTotal.WithLabelValues(mode).Inc()
	m.ReplicationRecordsTotal.Add(float64(n))
}

// Store returns the embedded store hook. It is a separate value because
// its method names overlap the queue metrics.
func (m *Metrics) Store() StoreHook { return StoreHook{m: m} }

// StoreHook implements pebblestore.MetricsHook.
type StoreHook struct{ m *Metrics }

func (h StoreHook) ObserveWrite(_ time.Duration, bytes int) {
	h.m.StoreWritesTotal.Inc()
	h.m.StoreWriteBytes.Observe(float64(bytes))
}

func (h StoreHook) ObserveRead(elapsed time.Duration, _ int) {
	h.m.StoreReadsTotal.Inc()
	h.m.StoreReadDuration.Observe(elapsed.Seconds())
}

func (h StoreHook) ObserveBatchCommit(elapsed time.Duration, numOps int, _ int) {
	h.m.StoreBatchCommits.Inc()
	h.m.StoreBatchDuration.Observe(elapsed.Seconds())
	h.m.StoreBatchOps.Observe(float64(numOps))
}
