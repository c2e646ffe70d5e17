package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydro-project/hydroscope/infrastructure/search"
	"github.com/hydro-project/hydroscope/internal/domain"
)

func buildContainerOpState(t *testing.T) *domain.VisualizationState {
	t.Helper()
	state := domain.NewVisualizationState()
	require.NoError(t, state.UpsertNode(domain.Node{ID: "n1", ShortLabel: "Payment Gateway"}))
	require.NoError(t, state.UpsertNode(domain.Node{ID: "n2", ShortLabel: "User Service"}))
	require.NoError(t, state.UpsertNode(domain.Node{ID: "n3", ShortLabel: "Database"}))
	require.NoError(t, state.UpsertContainer(domain.Container{ID: "C", Children: []string{"n1", "n2"}}))
	require.NoError(t, state.UpsertEdge(domain.Edge{ID: "e1", Source: "n1", Target: "n3"}))
	require.NoError(t, state.UpsertEdge(domain.Edge{ID: "e2", Source: "n2", Target: "n3"}))
	return state
}

func TestCoordinator_Search_FallsBackToFuzzyMatchOnNoExactMatch(t *testing.T) {
	c := newTestCoordinator()
	defer c.Close()
	c.SetFuzzyMatcher(search.NewFuzzyMatcher(0.5))

	state := buildContainerOpState(t)

	exact, err := c.Search(context.Background(), state, "gateway")
	require.NoError(t, err)
	require.Len(t, exact, 1)
	assert.Equal(t, "n1", exact[0].ID)

	fuzzy, err := c.Search(context.Background(), state, "Payment Gatewey")
	require.NoError(t, err)
	require.NotEmpty(t, fuzzy, "a near-miss query should be rescued by the fuzzy fallback")
	assert.Equal(t, "n1", fuzzy[0].ID)
}

func TestCoordinator_Search_NoFuzzyFallbackConfigured(t *testing.T) {
	c := newTestCoordinator()
	defer c.Close()

	state := buildContainerOpState(t)
	results, err := c.Search(context.Background(), state, "Gatewey")
	require.NoError(t, err)
	assert.Empty(t, results, "without a configured matcher, a non-exact query finds nothing")
}

func TestCoordinator_CollapseContainer_RefreshesAggregationLabels(t *testing.T) {
	c := newTestCoordinator()
	defer c.Close()

	formatter, err := search.NewAggregationLabelFormatter("")
	require.NoError(t, err)
	c.SetAggregationLabelFormatter(formatter)

	state := buildContainerOpState(t)

	_, err = c.CollapseContainer(context.Background(), state, "C")
	require.NoError(t, err)

	idx := state.ComputeVisibility()
	require.Len(t, idx.AggregatedEdges, 1)
	assert.Equal(t, "2 edges aggregated (C): e1, e2", idx.AggregatedEdges[0].Label)
}

func TestCoordinator_CollapseContainer_NoLabelFormatterConfigured(t *testing.T) {
	c := newTestCoordinator()
	defer c.Close()

	state := buildContainerOpState(t)
	_, err := c.CollapseContainer(context.Background(), state, "C")
	require.NoError(t, err)

	idx := state.ComputeVisibility()
	require.Len(t, idx.AggregatedEdges, 1)
	assert.Empty(t, idx.AggregatedEdges[0].Label)
}

func TestCoordinator_NavigateToElement_RecordsSelectionWithoutExpanding(t *testing.T) {
	c := newTestCoordinator()
	defer c.Close()

	state := buildContainerOpState(t)
	_, err := c.CollapseContainer(context.Background(), state, "C")
	require.NoError(t, err)

	_, err = c.NavigateToElement(context.Background(), state, "n1")
	require.NoError(t, err)

	assert.Equal(t, "n1", state.LastSelectedElement())
	container, err := state.GetContainer("C")
	require.NoError(t, err)
	assert.True(t, container.Collapsed, "navigation must not expand the container the target is nested under")
}

func TestCoordinator_ChangeRenderConfig_PatchCanClearBool(t *testing.T) {
	c := newTestCoordinator()
	defer c.Close()

	state := buildContainerOpState(t)
	assert.True(t, state.GetRenderConfig().FitView)

	fitView := false
	_, err := c.ChangeRenderConfig(context.Background(), state, domain.RenderConfigPatch{FitView: &fitView})
	require.NoError(t, err)
	assert.False(t, state.GetRenderConfig().FitView)
}
