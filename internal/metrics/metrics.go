// Package metrics holds the Prometheus collectors of buildlog.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Record outcomes for ObserveRecord.
const (
	OutcomeDecoded   = "decoded"
	OutcomeUnknown   = "unknown"
	OutcomeMalformed = "malformed"
)

var (
	codecRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildlog",
			Subsystem: "codec",
			Name:      "records_total",
			Help:      "Records read from event streams by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ingestBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildlog",
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Stream bytes ingested per project",
		},
		[]string{"project"},
	)

	ingestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "buildlog",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Time to ingest one stream",
			Buckets:   prometheus.DefBuckets,
		},
	)

	storageRead = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "buildlog",
			Subsystem: "storage",
			Name:      "read_duration_seconds",
			Help:      "Point read latency",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		},
	)

	storageCommit = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "buildlog",
			Subsystem: "storage",
			Name:      "commit_duration_seconds",
			Help:      "Batch commit latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	storageBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildlog",
			Subsystem: "storage",
			Name:      "bytes_total",
			Help:      "Bytes read and committed",
		},
		[]string{"op"},
	)

	trimmedEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildlog",
			Subsystem: "retention",
			Name:      "trimmed_entries_total",
			Help:      "Entries removed by retention per project",
		},
		[]string{"project"},
	)
)

func init() {
	prometheus.MustRegister(codecRecords, ingestBytes, ingestDuration, storageRead, storageCommit, storageBytes, trimmedEntries)
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight)
}

// ObserveRecord counts one record read from a stream.
func ObserveRecord(kind, outcome string) {
	codecRecords.WithLabelValues(kind, outcome).Inc()
}

// ObserveIngest records a completed ingest.
func ObserveIngest(project string, bytes int64, elapsed time.Duration) {
	ingestBytes.WithLabelValues(project).Add(float64(bytes))
	ingestDuration.Observe(elapsed.Seconds())
}

// ObserveTrim counts entries removed by retention.
func ObserveTrim(project string, entries int) {
	trimmedEntries.WithLabelValues(project).Add(float64(entries))
}

// Storage satisfies the storage Observer interface.
type Storage struct{}

func (Storage) ObserveRead(elapsed time.Duration, bytes int) {
	storageRead.Observe(elapsed.Seconds())
	storageBytes.WithLabelValues("read").Add(float64(bytes))
}

func (Storage) ObserveCommit(elapsed time.Duration, _ uint32, bytes int) {
	storageCommit.Observe(elapsed.Seconds())
	storageBytes.WithLabelValues("commit").Add(float64(bytes))
}
