package search

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/hydro-project/hydroscope/internal/domain"
)

const defaultAggregationTemplate = `{{len .OriginalEdgeIDs}} edge{{if ne (len .OriginalEdgeIDs) 1}}s{{end}} aggregated ({{truncate .AggregationSource 40}}): {{join .OriginalEdgeIDs ", "}}`

// AggregationLabelFormatter renders a human-readable summary for an
// AggregatedEdge using a text/template, so the summary format can be
// customized per deployment without a code change.
type AggregationLabelFormatter struct {
	tmpl *template.Template
}

// NewAggregationLabelFormatter compiles pattern (or the package default,
// if empty) with GetTemplateFuncMap's helpers available.
func NewAggregationLabelFormatter(pattern string) (*AggregationLabelFormatter, error) {
	if pattern == "" {
		pattern = defaultAggregationTemplate
	}
	tmpl, err := template.New("aggregation-label").Funcs(GetTemplateFuncMap()).Parse(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregation label template: %w", err)
	}
	return &AggregationLabelFormatter{tmpl: tmpl}, nil
}

// Format renders the summary label for one aggregated edge.
func (f *AggregationLabelFormatter) Format(edge domain.AggregatedEdge) (string, error) {
	var buf bytes.Buffer
	if err := f.tmpl.Execute(&buf, edge); err != nil {
		return "", fmt.Errorf("failed to render aggregation label: %w", err)
	}
	return buf.String(), nil
}

// FormatAggregatedEdgeLabels renders every aggregated edge currently
// visible in idx, keyed by aggregated edge ID, for a Coordinator to publish
// back onto the live state via VisualizationState.SetAggregatedEdgeLabels.
// An edge whose template fails to render is skipped rather than aborting
// the whole batch, since one malformed summary should not hide every
// other aggregated edge's label.
func FormatAggregatedEdgeLabels(idx domain.VisibilityIndex, formatter *AggregationLabelFormatter) map[string]string {
	labels := make(map[string]string, len(idx.AggregatedEdges))
	for _, edge := range idx.AggregatedEdges {
		label, err := formatter.Format(edge)
		if err != nil {
			continue
		}
		labels[edge.ID] = label
	}
	return labels
}
