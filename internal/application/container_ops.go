package application

import (
	"context"
	"time"

	"github.com/hydro-project/hydroscope/internal/domain"
)

// defaultContainerOpTimeout bounds a single container (tree) mutation.
// Container mutations are pure, in-memory, and cheap; this is generous
// headroom, not a tuned budget.
const defaultContainerOpTimeout = 3 * time.Second

// defaultRenderConfigTimeout bounds a render_config_update operation.
const defaultRenderConfigTimeout = 3 * time.Second

// ExpandContainer enqueues a container expansion as a high-priority
// application_event, serialized against any in-flight layout/render
// operation, and waits for it to complete.
func (c *Coordinator) ExpandContainer(ctx context.Context, state *domain.VisualizationState, containerID string) (OperationResult, error) {
	return c.EnqueueAndWait(ctx, ClassApplicationEvent, EventContainerExpand, func(ctx context.Context) (any, error) {
		if err := state.ExpandContainer(containerID, time.Now()); err != nil {
			return nil, err
		}
		c.refreshAggregationLabels(state)
		return nil, nil
	}, EnqueueOptions{
		Timeout: defaultContainerOpTimeout,
		RollbackFn: func(ctx context.Context) error {
			return state.CollapseContainer(containerID, time.Now())
		},
	})
}

// CollapseContainer enqueues a container collapse as a high-priority
// application_event and waits for it to complete.
func (c *Coordinator) CollapseContainer(ctx context.Context, state *domain.VisualizationState, containerID string) (OperationResult, error) {
	return c.EnqueueAndWait(ctx, ClassApplicationEvent, EventContainerCollapse, func(ctx context.Context) (any, error) {
		if err := state.CollapseContainer(containerID, time.Now()); err != nil {
			return nil, err
		}
		c.refreshAggregationLabels(state)
		return nil, nil
	}, EnqueueOptions{
		Timeout: defaultContainerOpTimeout,
		RollbackFn: func(ctx context.Context) error {
			return state.ExpandContainer(containerID, time.Now())
		},
	})
}

// ExpandAllContainers enqueues the deepest-first batch expansion of every
// collapsed container as one application_event operation.
func (c *Coordinator) ExpandAllContainers(ctx context.Context, state *domain.VisualizationState) (OperationResult, error) {
	return c.EnqueueAndWait(ctx, ClassApplicationEvent, EventContainerExpand, func(ctx context.Context) (any, error) {
		if err := state.ExpandAllContainers(time.Now()); err != nil {
			return nil, err
		}
		c.refreshAggregationLabels(state)
		return nil, nil
	}, EnqueueOptions{Timeout: defaultContainerOpTimeout})
}

// CollapseAllContainers enqueues the outermost-first batch collapse of
// every container as one application_event operation.
func (c *Coordinator) CollapseAllContainers(ctx context.Context, state *domain.VisualizationState) (OperationResult, error) {
	return c.EnqueueAndWait(ctx, ClassApplicationEvent, EventContainerCollapse, func(ctx context.Context) (any, error) {
		if err := state.CollapseAllContainers(time.Now()); err != nil {
			return nil, err
		}
		c.refreshAggregationLabels(state)
		return nil, nil
	}, EnqueueOptions{Timeout: defaultContainerOpTimeout})
}

// Search enqueues a search as a normal-priority application_event and
// returns its matches. When the exact substring pass finds nothing and a
// fuzzy matcher is configured (SetFuzzyMatcher), it falls back to
// typo-tolerant matching over the same visible labels.
func (c *Coordinator) Search(ctx context.Context, state *domain.VisualizationState, query string) ([]domain.SearchResult, error) {
	c.mu.Lock()
	fuzzy := c.fuzzyMatcher
	c.mu.Unlock()

	result, err := c.EnqueueAndWait(ctx, ClassApplicationEvent, EventSearch, func(opCtx context.Context) (any, error) {
		matches := state.PerformSearch(query)
		if len(matches) == 0 && fuzzy != nil {
			for _, fr := range fuzzy.Search(opCtx, state, query) {
				matches = append(matches, fr.SearchResult)
			}
		}
		return matches, nil
	}, EnqueueOptions{Timeout: defaultContainerOpTimeout})
	if err != nil {
		return nil, err
	}
	matches, _ := result.Value.([]domain.SearchResult)
	return matches, nil
}

// NavigateToElement enqueues a navigation-selection update as a
// normal-priority application_event. It only records the selection; it
// does not expand any collapsed ancestor or move the viewport.
func (c *Coordinator) NavigateToElement(ctx context.Context, state *domain.VisualizationState, elementID string) (OperationResult, error) {
	return c.EnqueueAndWait(ctx, ClassApplicationEvent, EventNavigate, func(ctx context.Context) (any, error) {
		_, err := state.NavigateToElement(elementID)
		return nil, err
	}, EnqueueOptions{Timeout: defaultContainerOpTimeout})
}

// ChangeRenderConfig enqueues a render config merge as its own
// render_config_update class operation, distinct from the application_event
// classes used for user-driven tree mutations.
func (c *Coordinator) ChangeRenderConfig(ctx context.Context, state *domain.VisualizationState, patch domain.RenderConfigPatch) (OperationResult, error) {
	return c.EnqueueAndWait(ctx, ClassRenderConfigUpdate, "", func(ctx context.Context) (any, error) {
		state.UpdateRenderConfig(patch)
		return nil, nil
	}, EnqueueOptions{Timeout: defaultRenderConfigTimeout})
}

// ChangeLayoutConfig enqueues a layout-algorithm configuration change (e.g.
// direction, spacing) as a low-priority layout_config_change application
// event, so it is preempted by any pending container expand/collapse.
func (c *Coordinator) ChangeLayoutConfig(ctx context.Context, apply func(ctx context.Context) error) (OperationResult, error) {
	return c.EnqueueAndWait(ctx, ClassApplicationEvent, EventLayoutConfigChange, func(ctx context.Context) (any, error) {
		return nil, apply(ctx)
	}, EnqueueOptions{Timeout: defaultContainerOpTimeout})
}
