package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildForest(t *testing.T) *VisualizationState {
	t.Helper()
	vs := NewVisualizationState()
	for _, id := range []string{"n1", "n2", "n3", "n4"} {
		require.NoError(t, vs.UpsertNode(Node{ID: id, ShortLabel: id}))
	}
	require.NoError(t, vs.UpsertContainer(Container{ID: "small", Children: []string{"n1"}}))
	require.NoError(t, vs.UpsertContainer(Container{ID: "large", Children: []string{"n2", "n3", "n4"}}))
	return vs
}

func TestSmartCollapse_CollapsesRootsThenExpandsWithinBudget(t *testing.T) {
	vs := buildForest(t)
	require.NoError(t, vs.ApplySmartCollapse(1_000_000, time.Unix(0, 0)))

	assert.True(t, vs.SmartCollapseEnabled(), "smart-collapse's own internal calls must not disable the heuristic")

	small, err := vs.GetContainer("small")
	require.NoError(t, err)
	large, err := vs.GetContainer("large")
	require.NoError(t, err)
	assert.False(t, small.Collapsed || large.Collapsed, "a generous budget should expand every root container")
}

func TestSmartCollapse_P6_NeverExceedsBudget(t *testing.T) {
	vs := buildForest(t)
	tinyBudget := 1.0
	require.NoError(t, vs.ApplySmartCollapse(tinyBudget, time.Unix(0, 0)))

	small, err := vs.GetContainer("small")
	require.NoError(t, err)
	large, err := vs.GetContainer("large")
	require.NoError(t, err)
	assert.False(t, small.Collapsed, "small's expansion costs nothing (its expanded area is below the collapsed footprint), so it fits even a near-zero budget")
	assert.True(t, large.Collapsed, "a near-zero budget must leave a costly container collapsed rather than overspend")
}

func TestSmartCollapse_CheaperContainerExpandsFirst(t *testing.T) {
	vs := buildForest(t)
	budget := expansionCost(vs.snap, "small") + 1
	require.NoError(t, vs.ApplySmartCollapse(budget, time.Unix(0, 0)))

	small, err := vs.GetContainer("small")
	require.NoError(t, err)
	large, err := vs.GetContainer("large")
	require.NoError(t, err)
	assert.False(t, small.Collapsed, "the cheaper container should fit the budget and expand")
	assert.True(t, large.Collapsed, "the larger container should exceed the tight budget and stay collapsed")
}

func TestSmartCollapse_DefaultBudgetAppliedWhenNonPositive(t *testing.T) {
	vs := buildForest(t)
	require.NoError(t, vs.ApplySmartCollapse(0, time.Unix(0, 0)))
	small, err := vs.GetContainer("small")
	require.NoError(t, err)
	assert.False(t, small.Collapsed)
}
