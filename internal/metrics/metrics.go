// Package metrics wires the engine's operation counters, latency
// histograms, and gauges into a real Prometheus registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	kverrors "github.com/kartikbazzad/ustorekv/internal/errors"
)

// Metrics holds every collector the server exposes on its metrics
// endpoint. It is safe for concurrent use; every field is itself
// concurrency-safe per the prometheus client's own guarantees.
type Metrics struct {
	Registry *prometheus.Registry

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ErrorsTotal       *prometheus.CounterVec

	CollectionsGauge prometheus.Gauge
	MemoryBytesGauge prometheus.Gauge
	YoungestGenGauge prometheus.Gauge

	classifier *kverrors.Classifier
}

// New registers every collector against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ustorekv",
			Name:      "operations_total",
			Help:      "Total number of engine operations by kind and outcome.",
		}, []string{"operation", "status"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ustorekv",
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ustorekv",
			Name:      "errors_total",
			Help:      "Total number of errors by classifier category.",
		}, []string{"category"}),
		CollectionsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ustorekv",
			Name:      "collections",
			Help:      "Number of collections currently open, including main.",
		}),
		MemoryBytesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ustorekv",
			Name:      "memory_used_bytes",
			Help:      "Bytes currently checked out of the arena buffer pool.",
		}),
		YoungestGenGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ustorekv",
			Name:      "youngest_generation",
			Help:      "The database's current youngest generation counter.",
		}),
		classifier: kverrors.NewClassifier(),
	}

	reg.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.ErrorsTotal,
		m.CollectionsGauge,
		m.MemoryBytesGauge,
		m.YoungestGenGauge,
	)
	return m
}

// Observe records one completed operation's outcome and latency.
func (m *Metrics) Observe(operation string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
		m.ErrorsTotal.WithLabelValues(m.classifier.Classify(err).String()).Inc()
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetGauges refreshes the point-in-time gauges from a database snapshot.
func (m *Metrics) SetGauges(collections int, memoryBytes, youngestGen uint64) {
	m.CollectionsGauge.Set(float64(collections))
	m.MemoryBytesGauge.Set(float64(memoryBytes))
	m.YoungestGenGauge.Set(float64(youngestGen))
}
