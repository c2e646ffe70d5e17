package search

// GetTemplateFuncMap's functions extend Go's standard template package
// with the two operations aggregated-edge and container label templates
// actually use: truncating an overlong source/target label, and joining
// the ids folded into an aggregated edge into a readable list. Both
// handle edge cases (non-positive lengths, nil slices) by returning safe
// defaults rather than panicking, since they run inside renderer-facing
// template execution.

import (
	"strings"
	"text/template"
)

// GetTemplateFuncMap returns the template function map for label and
// aggregation-summary templates.
//
// The returned FuncMap is immutable and thread-safe, suitable for concurrent
// use across multiple template executions.
//
// Usage in label formatters:
//
//	tmpl, err := template.New("label").Funcs(GetTemplateFuncMap()).Parse(format)
func GetTemplateFuncMap() template.FuncMap {
	return template.FuncMap{
		// truncate limits string length, adding "..." if truncated.
		// Returns empty string if length <= 0.
		// Preserves full string if already within limit.
		// Template usage: {{truncate .AggregationSource 40}}
		"truncate": func(s string, length int) string {
			if length <= 0 {
				return ""
			}
			if len(s) <= length {
				return s
			}
			// Reserve space for ellipsis when length allows.
			if length > 3 {
				return s[:length-3] + "..."
			}
			return s[:length]
		},

		// join concatenates elements with separator between them.
		// Template usage: {{join .OriginalEdgeIDs ", "}}
		"join": func(elems []string, sep string) string {
			return strings.Join(elems, sep)
		},
	}
}
