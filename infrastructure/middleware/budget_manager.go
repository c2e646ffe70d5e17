// Package middleware provides cross-cutting concerns around the
// visualization domain model: area-budget enforcement for smart-collapse
// and the observability hooks layered on top of it.
package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/hydro-project/hydroscope/internal/domain"
)

// AreaBudget caps the screen-area budget a smart-collapse request may
// spend. Zero means unlimited: the requested budget is passed through
// unchanged.
type AreaBudget struct {
	// MaxArea is the largest expansion budget a caller may request, in
	// the same screen-area units as domain.ApplySmartCollapse's budget
	// parameter.
	MaxArea float64
}

// AreaBudgetObserver provides observability hooks around smart-collapse
// budget enforcement, mirroring the teacher's pre/post budget-check
// hook shape but keyed to area usage instead of token/call usage.
type AreaBudgetObserver interface {
	// PreCheck is called before a smart-collapse request is applied.
	PreCheck(ctx context.Context, requested float64, budget AreaBudget)

	// PostCheck is called after the request completes, with the actual
	// elapsed time and any error.
	PostCheck(ctx context.Context, requested float64, budget AreaBudget, elapsed time.Duration, err error)
}

// AreaBudgetManager enforces a ceiling on the area budget passed to
// ApplySmartCollapse, so a misconfigured or malicious caller cannot request
// an unbounded expansion pass. It is stateless and safe for concurrent use.
type AreaBudgetManager struct {
	budget   AreaBudget
	observer AreaBudgetObserver
}

// NewAreaBudgetManager creates an AreaBudgetManager enforcing budget, with
// an optional observer.
func NewAreaBudgetManager(budget AreaBudget, observer AreaBudgetObserver) *AreaBudgetManager {
	return &AreaBudgetManager{budget: budget, observer: observer}
}

// Name identifies this middleware for logging and configuration.
func (m *AreaBudgetManager) Name() string { return "AreaBudgetManager" }

// Validate checks that the configured ceiling itself is sane.
func (m *AreaBudgetManager) Validate() error {
	if m.budget.MaxArea < 0 {
		return fmt.Errorf("area budget manager: max_area cannot be negative, got %v", m.budget.MaxArea)
	}
	return nil
}

// ApplySmartCollapse enforces the configured ceiling and then delegates to
// state.ApplySmartCollapse, recording pre/post observability hooks around
// the call.
func (m *AreaBudgetManager) ApplySmartCollapse(ctx context.Context, state *domain.VisualizationState, requested float64, now time.Time) error {
	if err := m.checkCeiling(requested); err != nil {
		return err
	}

	if m.observer != nil {
		m.observer.PreCheck(ctx, requested, m.budget)
	}

	start := time.Now()
	err := state.ApplySmartCollapse(requested, now)
	elapsed := time.Since(start)

	if m.observer != nil {
		m.observer.PostCheck(ctx, requested, m.budget, elapsed, err)
	}
	return err
}

func (m *AreaBudgetManager) checkCeiling(requested float64) error {
	if m.budget.MaxArea > 0 && requested > m.budget.MaxArea {
		return domain.NewBudgetExceededError("area", int(m.budget.MaxArea), int(requested), "smart_collapse")
	}
	return nil
}
