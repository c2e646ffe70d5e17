// Package domain contains pure, dependency-free domain models and types
// for the visualization state core.
package domain

import "time"

// Position is a layout-assigned 2D coordinate. It is nil until the layout
// collaborator has run at least once for the owning entity.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dimensions is a layout- or label-derived bounding box.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Node is a leaf entity in the visualization graph.
type Node struct {
	ID               string      `json:"id"`
	ShortLabel       string      `json:"shortLabel"`
	LongLabel        string      `json:"longLabel"`
	Type             string      `json:"type"`
	SemanticTags     []string    `json:"semanticTags"`
	Hidden           bool        `json:"hidden"`
	ShowingLongLabel bool        `json:"showingLongLabel"`
	Position         *Position   `json:"position,omitempty"`
	Dimensions       *Dimensions `json:"dimensions,omitempty"`
}

// Edge connects two entities (nodes or containers). Edges are undirected in
// the model but Source/Target order is preserved for deterministic rendering.
type Edge struct {
	ID           string   `json:"id"`
	Source       string   `json:"source"`
	Target       string   `json:"target"`
	SemanticTags []string `json:"semanticTags"`
	Hidden       bool     `json:"hidden"`
}

// Container is a nestable grouping of nodes and/or other containers.
type Container struct {
	ID         string      `json:"id"`
	Label      string      `json:"label"`
	LongLabel  string      `json:"longLabel"`
	Children   []string    `json:"children"`
	Collapsed  bool        `json:"collapsed"`
	Hidden     bool        `json:"hidden"`
	Position   *Position   `json:"position,omitempty"`
	Dimensions *Dimensions `json:"dimensions,omitempty"`
}

// AggregatedEdge is a synthetic edge standing in for one or more original
// edges that cross at least one collapsed container boundary. Owned
// exclusively by the AggregationEngine.
type AggregatedEdge struct {
	ID                string   `json:"id"`
	Source            string   `json:"source"`
	Target            string   `json:"target"`
	OriginalEdgeIDs   []string `json:"originalEdgeIds"`
	AggregationSource string   `json:"aggregationSource"`
	Aggregated        bool     `json:"aggregated"`

	// Label is the human-readable summary rendered by an
	// infrastructure/search.AggregationLabelFormatter. Empty until a
	// Coordinator with a label formatter configured has processed this
	// edge at least once.
	Label string `json:"label,omitempty"`
}

// AggregationEvent records one aggregation or restoration pass for
// diagnostic queries.
type AggregationEvent struct {
	Operation   string    `json:"operation"` // "aggregate" | "restore"
	ContainerID string    `json:"containerId"`
	EdgeCount   int       `json:"edgeCount"`
	Timestamp   time.Time `json:"timestamp"`
}

// LayoutPhase is the coarse lifecycle marker reflecting whether layout or
// render is in progress.
type LayoutPhase string

const (
	PhaseIdle       LayoutPhase = "idle"
	PhaseLayingOut  LayoutPhase = "laying_out"
	PhaseReady      LayoutPhase = "ready"
	PhaseRendering  LayoutPhase = "rendering"
	PhaseDisplayed  LayoutPhase = "displayed"
	PhaseError      LayoutPhase = "error"
)

// EntityKind distinguishes node, container and edge entities, e.g. the
// kind a SearchResult or NotFoundError refers to.
type EntityKind string

const (
	KindNode      EntityKind = "node"
	KindContainer EntityKind = "container"
	KindEdge      EntityKind = "edge"
)

// MatchRange is a half-open [Start, End) byte range within a matched field.
type MatchRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SearchResult is one hit returned by VisualizationState.PerformSearch.
type SearchResult struct {
	ID           string       `json:"id"`
	Label        string       `json:"label"`
	Type         EntityKind   `json:"type"`
	MatchIndices []MatchRange `json:"matchIndices"`
}

// RenderConfig carries renderer-facing preferences. Extra holds fields not
// promoted to first-class, so unrecognized UpdateRenderConfig payloads are
// never silently dropped.
type RenderConfig struct {
	FitView           bool           `json:"fitView"`
	ShowLongLabels    bool           `json:"showLongLabels"`
	Theme             string         `json:"theme"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// RenderConfigPatch is a partial RenderConfig update. Unlike RenderConfig
// itself, a nil field here means "leave this field alone" -- only a
// non-nil field is applied, so a patch can explicitly flip FitView or
// ShowLongLabels back to false without a zero value being indistinguishable
// from "unset".
type RenderConfigPatch struct {
	FitView        *bool
	ShowLongLabels *bool
	Theme          *string
	Extra          map[string]any
}

// Merge returns a new RenderConfig with patch's non-nil fields overlaid
// onto c. Extra is merged key-by-key.
func (c RenderConfig) Merge(patch RenderConfigPatch) RenderConfig {
	merged := c
	if patch.Theme != nil {
		merged.Theme = *patch.Theme
	}
	if patch.FitView != nil {
		merged.FitView = *patch.FitView
	}
	if patch.ShowLongLabels != nil {
		merged.ShowLongLabels = *patch.ShowLongLabels
	}
	if len(patch.Extra) > 0 {
		merged.Extra = make(map[string]any, len(c.Extra)+len(patch.Extra))
		for k, v := range c.Extra {
			merged.Extra[k] = v
		}
		for k, v := range patch.Extra {
			merged.Extra[k] = v
		}
	}
	return merged
}

const (
	minNodeWidth  = 120.0
	maxNodeWidth  = 400.0
	nodeHeight    = 60.0
	widthPerChar  = 6.0
	widthPadding  = 32.0
)

// labelDimensions implements the text-width heuristic used by
// ToggleNodeLabel: width = clamp(120, len(label)*6 + 32, 400), height = 60.
func labelDimensions(label string) Dimensions {
	w := float64(len(label))*widthPerChar + widthPadding
	if w < minNodeWidth {
		w = minNodeWidth
	}
	if w > maxNodeWidth {
		w = maxNodeWidth
	}
	return Dimensions{Width: w, Height: nodeHeight}
}
