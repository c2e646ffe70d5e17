package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvariantViolation(t *testing.T) {
	v := NewInvariantViolation("edge_1")
	assert.False(t, v.HasViolations())

	v.Add("I2: edge target does not resolve to any node or container")
	assert.True(t, v.HasViolations())
	assert.Equal(t, "invariant violation for edge_1: I2: edge target does not resolve to any node or container", v.Error())

	v.Add("I1: duplicate id")
	assert.Contains(t, v.Error(), "invariant violations for edge_1:")
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError(KindNode, "n404")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "n404")
}

func TestAggregationInconsistencyError(t *testing.T) {
	err := NewAggregationInconsistencyError([]string{"agg_1 missing from aggregatedToOriginal"})
	assert.Contains(t, err.Error(), "agg_1 missing")
}

func TestIngestionRejectError(t *testing.T) {
	err := NewIngestionRejectError("nodes[0].collapsed", "collapsed is UI state, not ingestible")
	assert.Contains(t, err.Error(), "nodes[0].collapsed")
	assert.Contains(t, err.Error(), "UI state")
}

func TestBudgetExceededError(t *testing.T) {
	err := NewBudgetExceededError("area", 1000, 1200, "container_7")
	require.ErrorIs(t, error(err), ErrBudgetExceeded)
	assert.Contains(t, err.Error(), "container_7")

	var target error = ErrBudgetExceeded
	assert.True(t, errors.Is(err, target))
}
