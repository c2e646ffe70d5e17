// Package application provides the coordinator, container-operation
// façades, and configuration/ingestion plumbing around the visualization
// domain model.
package application

import "time"

// CoordinatorConfig is the process-wide configuration for a Coordinator:
// per-class timeout/retry defaults, the smart-collapse area budget, and
// default render preferences.
// It is the coordinator's analogue of the teacher's GraphConfig -- the
// single entry point for loadable, validated configuration.
type CoordinatorConfig struct {
	// Version is the configuration schema version.
	Version string `yaml:"version" validate:"required,semver"`

	// AreaBudget bounds ApplySmartCollapse's expansion budget. Zero or
	// negative falls back to the domain package's default budget.
	AreaBudget float64 `yaml:"area_budget" validate:"omitempty,min=0"`

	// Operations configures per-class timeout/retry defaults, keyed by
	// operation class (elk_layout, render, application_event,
	// render_config_update).
	Operations map[string]OperationConfig `yaml:"operations" validate:"dive"`

	// Render holds the default render preferences. It is decoded and
	// validated with the rest of the config; nothing in this module copies
	// it into a VisualizationState's RenderConfig.
	Render RenderDefaults `yaml:"render"`
}

// OperationConfig configures the timeout and retry policy applied to
// operations of one class, unless overridden per-call.
type OperationConfig struct {
	// TimeoutSeconds bounds a single execution attempt; 0 means no
	// timeout.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"omitempty,min=0,max=3600"`

	// MaxRetries is the number of retries attempted after the first
	// failure, using the coordinator's linear backoff.
	MaxRetries int `yaml:"max_retries" validate:"omitempty,min=0,max=10"`
}

// Timeout returns o's timeout as a time.Duration, or 0 if unset.
func (o OperationConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// ToEnqueueOptions converts an OperationConfig into the EnqueueOptions
// applied to operations of its class.
func (o OperationConfig) ToEnqueueOptions() EnqueueOptions {
	return EnqueueOptions{Timeout: o.Timeout(), MaxRetries: o.MaxRetries}
}

// RenderDefaults are the configured default render preferences; see
// CoordinatorConfig.Render.
type RenderDefaults struct {
	FitView        bool   `yaml:"fit_view"`
	ShowLongLabels bool   `yaml:"show_long_labels"`
	Theme          string `yaml:"theme" validate:"omitempty,oneof=light dark"`
}

// OptionsFor returns the configured EnqueueOptions for class, falling back
// to the zero value (no timeout, no retries) when class has no explicit
// configuration.
func (c CoordinatorConfig) OptionsFor(class OperationClass) EnqueueOptions {
	if cfg, ok := c.Operations[string(class)]; ok {
		return cfg.ToEnqueueOptions()
	}
	return EnqueueOptions{}
}

// DefaultCoordinatorConfig returns the configuration used when no explicit
// CoordinatorConfig is loaded: generous per-class timeouts, a handful of
// retries on layout and render, and the domain package's default area
// budget.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Version:    "1.0.0",
		AreaBudget: 0,
		Operations: map[string]OperationConfig{
			string(ClassLayout): {TimeoutSeconds: 10, MaxRetries: 2},
			string(ClassRender): {TimeoutSeconds: 5, MaxRetries: 1},
			string(ClassApplicationEvent): {TimeoutSeconds: 5, MaxRetries: 0},
			string(ClassRenderConfigUpdate): {TimeoutSeconds: 3, MaxRetries: 0},
		},
		Render: RenderDefaults{FitView: true, Theme: "light"},
	}
}
