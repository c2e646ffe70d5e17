package domain

import "sort"

// VisibilityIndex is a pure, on-demand derivation of what is currently
// visible: a node or container hidden beneath a collapsed ancestor, or
// explicitly marked Hidden, is excluded. It is never stored -- every
// VisualizationState read recomputes it, trading a little CPU for the
// certainty that visibility can never drift from the underlying graph.
type VisibilityIndex struct {
	VisibleNodes      []Node
	VisibleContainers []Container
	VisibleEdges      []Edge
	AggregatedEdges   []AggregatedEdge
}

// ComputeVisibility returns the current VisibilityIndex.
func (vs *VisualizationState) ComputeVisibility() VisibilityIndex {
	var idx VisibilityIndex
	vs.read(func(s *snapshot) {
		idx = computeVisibility(s)
	})
	return idx
}

// ancestorBlocked reports whether any ancestor of id (not id itself) is
// collapsed or hidden -- either one, per I6, removes id from visibility
// regardless of id's own flags.
func ancestorBlocked(s *snapshot, id string) bool {
	for _, ancestor := range ancestorChain(s, id) {
		c := s.Containers[ancestor]
		if c != nil && (c.Collapsed || c.Hidden) {
			return true
		}
	}
	return false
}

// entityVisible reports whether a node or container id is visible per I6:
// not itself hidden, and no ancestor collapsed or hidden.
func entityVisible(s *snapshot, id string) bool {
	if n, ok := s.Nodes[id]; ok {
		return !n.Hidden && !ancestorBlocked(s, id)
	}
	if c, ok := s.Containers[id]; ok {
		return !c.Hidden && !ancestorBlocked(s, id)
	}
	return false
}

func computeVisibility(s *snapshot) VisibilityIndex {
	var idx VisibilityIndex

	for _, id := range s.NodeOrder {
		n := s.Nodes[id]
		if n == nil || !entityVisible(s, id) {
			continue
		}
		idx.VisibleNodes = append(idx.VisibleNodes, *deepCopy(n))
	}

	for _, id := range s.ContainerOrder {
		c := s.Containers[id]
		if c == nil || !entityVisible(s, id) {
			continue
		}
		idx.VisibleContainers = append(idx.VisibleContainers, *deepCopy(c))
	}

	for _, eid := range s.EdgeOrder {
		e := s.Edges[eid]
		if e == nil || e.Hidden {
			continue
		}
		if _, aggregated := s.Aggregation.OriginalToAggregated[eid]; aggregated {
			continue
		}
		ru, rv := rep(s, e.Source), rep(s, e.Target)
		if ru != e.Source || rv != e.Target {
			// Self-absorbed: both endpoints fold beneath the same
			// collapsed ancestor, so the edge itself is invisible but
			// is not part of any aggregated edge either.
			continue
		}
		if !entityVisible(s, e.Source) || !entityVisible(s, e.Target) {
			continue
		}
		idx.VisibleEdges = append(idx.VisibleEdges, *deepCopy(e))
	}

	aggIDs := make([]string, 0, len(s.Aggregation.Aggregated))
	for id := range s.Aggregation.Aggregated {
		aggIDs = append(aggIDs, id)
	}
	sort.Strings(aggIDs)
	for _, id := range aggIDs {
		agg := s.Aggregation.Aggregated[id]
		if agg == nil || len(agg.OriginalEdgeIDs) == 0 {
			continue
		}
		if !entityVisible(s, agg.Source) || !entityVisible(s, agg.Target) {
			continue
		}
		idx.AggregatedEdges = append(idx.AggregatedEdges, *deepCopy(agg))
	}

	return idx
}
