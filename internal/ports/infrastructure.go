package ports

import (
	"context"
	"time"

	"github.com/hydro-project/hydroscope/internal/domain"
)

// LayoutEngine mutates a VisualizationState in place: it sets position for
// every visible node, and position/dimensions for every visible container,
// and may record routing for edges. The coordinator owns layout phase
// transitions; implementations are phase-agnostic.
type LayoutEngine interface {
	Layout(ctx context.Context, state *domain.VisualizationState) error
}

// Renderer is a read-only collaborator that projects a VisualizationState's
// derived visibility into renderer-facing data. It never mutates state.
type Renderer interface {
	ToRenderData(ctx context.Context, state *domain.VisualizationState) (RenderData, error)
}

// RenderData is the renderer-facing projection of a VisualizationState's
// visibility index: every currently visible node, container, original
// edge, and aggregated edge.
type RenderData struct {
	Nodes           []domain.Node           `json:"nodes"`
	Containers      []domain.Container      `json:"containers"`
	Edges           []domain.Edge           `json:"edges"`
	AggregatedEdges []domain.AggregatedEdge `json:"aggregatedEdges"`
}

// IngestionSource supplies the initial graph payload: nodes, edges, and
// containers with their parent/child relationships. Implementations must
// reject payloads carrying collapsed/hidden/styling fields -- those are UI
// state, not ingestible graph data.
type IngestionSource interface {
	Load(ctx context.Context, raw []byte) (IngestionPayload, error)
}

// IngestionPayload is the parsed, validated result of an IngestionSource
// load, ready to be applied to a fresh VisualizationState.
type IngestionPayload struct {
	Nodes      []domain.Node      `json:"nodes"`
	Edges      []domain.Edge      `json:"edges"`
	Containers []domain.Container `json:"containers"`
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus, OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// ConfigLoader defines the interface for loading configuration.
// Implementations could read from files, environment variables,
// remote configuration services, or a combination of sources.
type ConfigLoader interface {
	// Load reads configuration from the underlying source.
	// The config parameter should be a pointer to a struct.
	Load(ctx context.Context, config any) error

	// Watch monitors configuration changes and calls the callback when
	// changes occur. Returns a function to stop watching when called.
	Watch(ctx context.Context, config any, callback func(any)) (stop func(), err error)
}
