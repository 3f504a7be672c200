// Package metrics exposes Prometheus collectors for progress callbacks and
// native operations.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Callback results.
const (
	ResultContinue  = "continue"
	ResultStop      = "stop"
	ResultContained = "contained"
)

// Operation outcomes.
const (
	StatusCompleted  = "completed"
	StatusTerminated = "terminated"
	StatusFailed     = "failed"
)

var (
	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdalprogress_callbacks_total",
			Help: "Total number of progress callbacks dispatched from native code, labeled by result.",
		},
		[]string{"result"},
	)

	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdalprogress_operations_total",
			Help: "Total number of native operations run, labeled by status.",
		},
		[]string{"status"},
	)

	once sync.Once
)

// Init registers the collectors with the default Prometheus registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(callbacksTotal, operationsTotal)
	})
}

// ObserveCallback counts one dispatched progress callback.
func ObserveCallback(result string) {
	callbacksTotal.WithLabelValues(result).Inc()
}

// ObserveOperation counts one finished native operation.
func ObserveOperation(status string) {
	operationsTotal.WithLabelValues(status).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
