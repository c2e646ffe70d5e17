package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hydro-project/hydroscope/internal/ports"
)

// CoordinatorMetrics implements ports.MetricsCollector using Prometheus. It
// provides observability over the coordinator's operation queue (by class)
// and the smart-collapse area budget, in place of the teacher's
// token/cost-oriented budget metrics.
type CoordinatorMetrics struct {
	operationLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	areaBudgetGauges *prometheus.GaugeVec
	queueDepthGauges *prometheus.GaugeVec
}

// NewCoordinatorMetrics creates a CoordinatorMetrics instance and registers
// its metrics in the global Prometheus registry.
func NewCoordinatorMetrics() *CoordinatorMetrics {
	return &CoordinatorMetrics{
		operationLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coordinator_operation_duration_seconds",
				Help:    "Execution time of coordinator operations, by class.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"class"},
		),
		operationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_operations_total",
				Help: "Total number of coordinator operations, by class and outcome.",
			},
			[]string{"class", "status"},
		),
		areaBudgetGauges: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coordinator_area_budget",
				Help: "Smart-collapse area budget values (requested, remaining).",
			},
			[]string{"metric", "budget_limit"},
		),
		queueDepthGauges: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coordinator_queue_depth",
				Help: "Current pending operation count, by priority class.",
			},
			[]string{"class"},
		),
	}
}

// RecordLatency implements ports.MetricsCollector.
func (m *CoordinatorMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	class := labelOrDefault(labels, "class", operation)
	m.operationLatency.WithLabelValues(class).Observe(duration.Seconds())
}

// RecordCounter implements ports.MetricsCollector.
func (m *CoordinatorMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "area_budget_exceeded_total":
		m.operationCounter.WithLabelValues("application_event", "area_budget_exceeded").Add(value)
	case "operation_completed_total":
		m.operationCounter.WithLabelValues(labelOrDefault(labels, "class", "unknown"), "completed").Add(value)
	case "operation_failed_total":
		m.operationCounter.WithLabelValues(labelOrDefault(labels, "class", "unknown"), "failed").Add(value)
	default:
		m.operationCounter.WithLabelValues(labelOrDefault(labels, "class", metric), "success").Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (m *CoordinatorMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	switch metric {
	case "area_budget_requested":
		m.areaBudgetGauges.WithLabelValues("requested", labelOrDefault(labels, "budget_limit", "unlimited")).Set(value)
	case "queue_depth":
		m.queueDepthGauges.WithLabelValues(labelOrDefault(labels, "class", "unknown")).Set(value)
	default:
		m.areaBudgetGauges.WithLabelValues(metric, labelOrDefault(labels, "budget_limit", "unlimited")).Set(value)
	}
}

// RecordHistogram implements ports.MetricsCollector, routing arbitrary
// histogram values onto the operation latency histogram under the labels'
// "class" value, falling back to the metric's own name as the class label
// when none is supplied.
func (m *CoordinatorMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.operationLatency.WithLabelValues(labelOrDefault(labels, "class", metric)).Observe(value)
}

func labelOrDefault(labels map[string]string, key, fallback string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Compile-time verification that CoordinatorMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*CoordinatorMetrics)(nil)
