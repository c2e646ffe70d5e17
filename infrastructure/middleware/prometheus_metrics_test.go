package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydro-project/hydroscope/internal/ports"
)

// testCoordinatorMetrics provides a global instance to avoid duplicate metric
// registration issues across tests in the same package.
var testCoordinatorMetrics *CoordinatorMetrics

func init() {
	// Create a single CoordinatorMetrics instance to be shared across all
	// tests in this package. This prevents Prometheus from panicking due to
	// duplicate metric registration.
	testCoordinatorMetrics = NewCoordinatorMetrics()
}

// TestNewCoordinatorMetrics verifies that a new CoordinatorMetrics instance
// is created with all its internal metric vectors properly initialized.
func TestNewCoordinatorMetrics(t *testing.T) {
	m := testCoordinatorMetrics

	assert.NotNil(t, m, "CoordinatorMetrics instance should not be nil")
	assert.NotNil(t, m.operationLatency, "operationLatency should be initialized")
	assert.NotNil(t, m.operationCounter, "operationCounter should be initialized")
	assert.NotNil(t, m.areaBudgetGauges, "areaBudgetGauges should be initialized")
	assert.NotNil(t, m.queueDepthGauges, "queueDepthGauges should be initialized")

	var _ ports.MetricsCollector = m
}

// TestCoordinatorMetrics_RecordLatency tests the recording of latency
// metrics with various label combinations.
func TestCoordinatorMetrics_RecordLatency(t *testing.T) {
	m := testCoordinatorMetrics

	tests := []struct {
		name      string
		operation string
		duration  time.Duration
		labels    map[string]string
	}{
		{
			name:      "record latency with class label",
			operation: "operation_processing_time",
			duration:  100 * time.Millisecond,
			labels:    map[string]string{"class": "elk_layout"},
		},
		{
			name:      "record latency without class label",
			operation: "operation_processing_time",
			duration:  250 * time.Millisecond,
			labels:    map[string]string{"other": "value"},
		},
		{
			name:      "record latency with empty class label",
			operation: "operation_processing_time",
			duration:  50 * time.Millisecond,
			labels:    map[string]string{"class": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// This test primarily ensures that recording latency does not
			// panic. Verifying the actual metric values would require the
			// Prometheus testutil package and a more complex setup.
			assert.NotPanics(t, func() {
				m.RecordLatency(tt.operation, tt.duration, tt.labels)
			}, "RecordLatency should not panic")
		})
	}
}

// TestCoordinatorMetrics_RecordCounter tests the recording of both named and
// generic counter metrics.
func TestCoordinatorMetrics_RecordCounter(t *testing.T) {
	m := testCoordinatorMetrics

	tests := []struct {
		name   string
		metric string
		value  float64
		labels map[string]string
	}{
		{
			name:   "record completed operation counter",
			metric: "operation_completed_total",
			value:  1.0,
			labels: map[string]string{"class": "elk_layout"},
		},
		{
			name:   "record failed operation counter",
			metric: "operation_failed_total",
			value:  1.0,
			labels: map[string]string{"class": "render"},
		},
		{
			name:   "record area budget exceeded counter",
			metric: "area_budget_exceeded_total",
			value:  1.0,
			labels: map[string]string{"limit_type": "area"},
		},
		{
			name:   "record unknown metric as generic counter",
			metric: "unknown_metric",
			value:  42.0,
			labels: map[string]string{"class": "application_event"},
		},
		{
			name:   "record with missing class label",
			metric: "operation_completed_total",
			value:  1.0,
			labels: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				m.RecordCounter(tt.metric, tt.value, tt.labels)
			}, "RecordCounter should not panic for valid inputs")
		})
	}
}

// TestCoordinatorMetrics_RecordGauge tests the recording of both named and
// generic gauge metrics.
func TestCoordinatorMetrics_RecordGauge(t *testing.T) {
	m := testCoordinatorMetrics

	tests := []struct {
		name   string
		metric string
		value  float64
		labels map[string]string
	}{
		{
			name:   "record area budget requested",
			metric: "area_budget_requested",
			value:  50_000,
			labels: map[string]string{"budget_limit": "bounded"},
		},
		{
			name:   "record queue depth",
			metric: "queue_depth",
			value:  3,
			labels: map[string]string{"class": "elk_layout"},
		},
		{
			name:   "record unknown gauge metric",
			metric: "unknown_gauge",
			value:  123.45,
			labels: map[string]string{"budget_limit": "unlimited"},
		},
		{
			name:   "record with empty budget_limit label",
			metric: "area_budget_requested",
			value:  0.03,
			labels: map[string]string{"budget_limit": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				m.RecordGauge(tt.metric, tt.value, tt.labels)
			}, "RecordGauge should not panic for valid inputs")
		})
	}
}

// TestCoordinatorMetrics_RecordHistogram tests the recording of generic
// histogram metrics, which route onto the operation latency histogram.
func TestCoordinatorMetrics_RecordHistogram(t *testing.T) {
	m := testCoordinatorMetrics

	tests := []struct {
		name   string
		metric string
		value  float64
		labels map[string]string
	}{
		{
			name:   "record histogram with class",
			metric: "test_histogram",
			value:  0.123,
			labels: map[string]string{"class": "render"},
		},
		{
			name:   "record histogram without class",
			metric: "another_histogram",
			value:  0.456,
			labels: map[string]string{"other": "value"},
		},
		{
			name:   "record histogram with empty class",
			metric: "empty_class_histogram",
			value:  0.789,
			labels: map[string]string{"class": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				m.RecordHistogram(tt.metric, tt.value, tt.labels)
			}, "RecordHistogram should not panic for valid inputs")
		})
	}
}

// TestCoordinatorMetrics_LabelHandling verifies that the metrics collector
// gracefully handles nil, empty, and incomplete label maps.
func TestCoordinatorMetrics_LabelHandling(t *testing.T) {
	m := testCoordinatorMetrics

	tests := []struct {
		name   string
		labels map[string]string
	}{
		{"nil labels map", nil},
		{"empty labels map", map[string]string{}},
		{"labels map with class", map[string]string{"class": "elk_layout"}},
		{"labels map with empty class", map[string]string{"class": ""}},
		{"labels map without class", map[string]string{"other": "value"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				m.RecordLatency("test_op", 100*time.Millisecond, tt.labels)
			}, "RecordLatency should handle labels gracefully")

			assert.NotPanics(t, func() {
				m.RecordCounter("test_counter", 1.0, tt.labels)
			}, "RecordCounter should handle labels gracefully")

			assert.NotPanics(t, func() {
				m.RecordGauge("test_gauge", 42.0, tt.labels)
			}, "RecordGauge should handle labels gracefully")

			assert.NotPanics(t, func() {
				m.RecordHistogram("test_hist", 0.5, tt.labels)
			}, "RecordHistogram should handle labels gracefully")
		})
	}
}

// TestCoordinatorMetrics_InterfaceCompliance ensures that CoordinatorMetrics
// correctly implements the ports.MetricsCollector interface.
func TestCoordinatorMetrics_InterfaceCompliance(t *testing.T) {
	var metrics ports.MetricsCollector = testCoordinatorMetrics
	require.NotNil(t, metrics, "CoordinatorMetrics should implement MetricsCollector")

	labels := map[string]string{"class": "elk_layout"}

	assert.NotPanics(t, func() {
		metrics.RecordLatency("test", 100*time.Millisecond, labels)
	}, "RecordLatency should be callable through interface")

	assert.NotPanics(t, func() {
		metrics.RecordCounter("test", 1.0, labels)
	}, "RecordCounter should be callable through interface")

	assert.NotPanics(t, func() {
		metrics.RecordGauge("test", 42.0, labels)
	}, "RecordGauge should be callable through interface")

	assert.NotPanics(t, func() {
		metrics.RecordHistogram("test", 0.5, labels)
	}, "RecordHistogram should be callable through interface")
}

// TestCoordinatorMetrics_CoordinatorSpecificMetrics tests the recording of
// metrics specific to the coordinator's operation queue and area budget.
func TestCoordinatorMetrics_CoordinatorSpecificMetrics(t *testing.T) {
	m := testCoordinatorMetrics

	classLabels := map[string]string{"class": "container_operation"}

	t.Run("completed operation counter", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordCounter("operation_completed_total", 1.0, classLabels)
		}, "Should record completed operation counter without panic")
	})

	t.Run("failed operation counter", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordCounter("operation_failed_total", 1.0, classLabels)
		}, "Should record failed operation counter without panic")
	})

	t.Run("queue depth gauge", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordGauge("queue_depth", 2.0, classLabels)
		}, "Should record queue depth gauge without panic")
	})

	t.Run("area budget exceeded counter", func(t *testing.T) {
		exceededLabels := map[string]string{
			"limit_type": "area",
			"class":      "application_event",
		}
		assert.NotPanics(t, func() {
			m.RecordCounter("area_budget_exceeded_total", 1.0, exceededLabels)
		}, "Should record area budget exceeded counter without panic")
	})
}

// TestCoordinatorMetrics_EdgeCases tests various edge cases to ensure the
// metrics collector is robust.
func TestCoordinatorMetrics_EdgeCases(t *testing.T) {
	m := testCoordinatorMetrics

	t.Run("zero duration latency", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordLatency("zero_duration", 0, map[string]string{"class": "test"})
		}, "Should handle zero duration gracefully")
	})

	t.Run("negative counter value", func(t *testing.T) {
		// Prometheus counters cannot be negative, so this should panic.
		assert.Panics(t, func() {
			m.RecordCounter("negative_counter", -1.0, map[string]string{"class": "test"})
		}, "Prometheus counters should panic on negative values")
	})

	t.Run("very large gauge value", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordGauge("large_gauge", 1e9, map[string]string{"class": "test"})
		}, "Should handle large gauge values gracefully")
	})

	t.Run("very small histogram value", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordHistogram("small_histogram", 1e-9, map[string]string{"class": "test"})
		}, "Should handle very small histogram values gracefully")
	})

	t.Run("missing required labels", func(t *testing.T) {
		// The system should handle missing labels gracefully by using
		// defaults.
		incompleteLabels := map[string]string{"graph_id": "test-graph"}
		assert.NotPanics(t, func() {
			m.RecordCounter("operation_completed_total", 1.0, incompleteLabels)
		}, "Should handle incomplete labels gracefully")
	})
}

// BenchmarkCoordinatorMetrics_RecordLatency benchmarks the performance of
// recording latency metrics.
func BenchmarkCoordinatorMetrics_RecordLatency(b *testing.B) {
	m := testCoordinatorMetrics
	labels := map[string]string{"class": "benchmark"}
	duration := 100 * time.Millisecond

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordLatency("benchmark_operation", duration, labels)
	}
}

// BenchmarkCoordinatorMetrics_RecordCounter benchmarks the performance of
// recording counter metrics.
func BenchmarkCoordinatorMetrics_RecordCounter(b *testing.B) {
	m := testCoordinatorMetrics
	labels := map[string]string{"class": "benchmark"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordCounter("operation_completed_total", float64(i), labels)
	}
}

// BenchmarkCoordinatorMetrics_RecordGauge benchmarks the performance of
// recording gauge metrics.
func BenchmarkCoordinatorMetrics_RecordGauge(b *testing.B) {
	m := testCoordinatorMetrics
	labels := map[string]string{"budget_limit": "bounded"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordGauge("area_budget_requested", float64(i)*0.001, labels)
	}
}
