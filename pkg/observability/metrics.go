package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// generalDuration backs RecordDuration for traced operations.
	generalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gridcore",
			Subsystem: "observability",
			Name:      "operation_duration_seconds",
			Help:      "Duration of traced operations in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"operation", "component", "status"},
	)

	// generalGauge backs RecordGauge for traced operations.
	generalGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gridcore",
			Subsystem: "observability",
			Name:      "gauge_value",
			Help:      "General gauge values",
		},
		[]string{"metric", "component"},
	)
)

// RecordDuration records a general duration metric (used by tracing.go)
func RecordDuration(metricName string, duration time.Duration, labels map[string]string) {
	operation := labels["operation"]
	if operation == "" {
		operation = metricName
	}

	component := labels["component"]
	if component == "" {
		component = "unknown"
	}

	status := labels["status"]
	if status == "" {
		status = "unknown"
	}

	generalDuration.WithLabelValues(operation, component, status).Observe(duration.Seconds())
}

// RecordGauge records a general gauge metric (used by tracing.go)
func RecordGauge(metricName string, value float64, labels map[string]string) {
	component := labels["component"]
	if component == "" {
		component = "unknown"
	}

	generalGauge.WithLabelValues(metricName, component).Set(value)
}
