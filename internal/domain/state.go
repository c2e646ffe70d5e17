// Package domain contains pure, dependency-free domain models and types
// for the visualization state core.
package domain

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// snapshot is the immutable-once-published value behind VisualizationState.
// Every mutation clones a snapshot, edits the clone, validates it, and only
// then swaps it in -- so a rejected mutation never leaves the live state
// partially changed.
type snapshot struct {
	Nodes      map[string]*Node
	Edges      map[string]*Edge
	Containers map[string]*Container

	NodeOrder      []string
	EdgeOrder      []string
	ContainerOrder []string

	// ParentOf maps a node or container id to its immediate parent
	// container id, derived from every Container's Children list.
	ParentOf map[string]string

	Aggregation *AggregationEngine

	RenderConfig RenderConfig
	Phase        LayoutPhase
	LayoutCount  int

	// SmartCollapseEnabled is cleared on the first user-initiated
	// expand/collapse call, per the spec's smart-collapse heuristic rule.
	SmartCollapseEnabled bool

	// LastSelectedID is the id recorded by the most recent NavigateToElement
	// call. It is selection bookkeeping only; it never drives a viewport
	// move or a collapse-state change.
	LastSelectedID string
}

func newSnapshot() *snapshot {
	return &snapshot{
		Nodes:                make(map[string]*Node),
		Edges:                make(map[string]*Edge),
		Containers:           make(map[string]*Container),
		ParentOf:             make(map[string]string),
		Aggregation:          newAggregationEngine(),
		RenderConfig:         RenderConfig{FitView: true},
		Phase:                PhaseIdle,
		SmartCollapseEnabled: true,
	}
}

// VisualizationState is the thread-safe, invariant-enforcing core of the
// visualization engine's node/edge/container graph. All reads and writes go
// through its methods; external callers never see the internal snapshot.
type VisualizationState struct {
	mu   sync.RWMutex
	snap *snapshot
}

// NewVisualizationState returns an empty, invariant-satisfying state.
func NewVisualizationState() *VisualizationState {
	return &VisualizationState{snap: newSnapshot()}
}

// mutate clones the current snapshot, runs fn against the clone, validates
// I1-I4 on the result, and commits only if both fn and validation succeed.
// Any error from fn or validation leaves the live snapshot untouched.
func (vs *VisualizationState) mutate(fn func(*snapshot) error) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	clone := deepCopy(vs.snap)
	if err := fn(clone); err != nil {
		return err
	}
	rebuildParentOf(clone)
	if err := validateInvariants(clone); err != nil {
		return err
	}
	vs.snap = clone
	return nil
}

func (vs *VisualizationState) read(fn func(*snapshot)) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	fn(vs.snap)
}

// rebuildParentOf recomputes ParentOf from every container's Children list.
func rebuildParentOf(snap *snapshot) {
	snap.ParentOf = make(map[string]string, len(snap.ParentOf))
	for _, cid := range snap.ContainerOrder {
		c := snap.Containers[cid]
		if c == nil {
			continue
		}
		for _, child := range c.Children {
			snap.ParentOf[child] = cid
		}
	}
}

func appendOnce(order []string, id string) []string {
	for _, existing := range order {
		if existing == id {
			return order
		}
	}
	return append(order, id)
}

func removeFromOrder(order []string, id string) []string {
	out := order[:0]
	for _, existing := range order {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

// --- Node CRUD ---

// UpsertNode inserts or replaces a node.
func (vs *VisualizationState) UpsertNode(n Node) error {
	return vs.mutate(func(s *snapshot) error {
		s.NodeOrder = appendOnce(s.NodeOrder, n.ID)
		s.Nodes[n.ID] = &n
		return nil
	})
}

// GetNode returns a deep copy of the node, or a NotFoundError.
func (vs *VisualizationState) GetNode(id string) (*Node, error) {
	var out *Node
	var err error
	vs.read(func(s *snapshot) {
		n, ok := s.Nodes[id]
		if !ok {
			err = NewNotFoundError(KindNode, id)
			return
		}
		out = deepCopy(n)
	})
	return out, err
}

// RemoveNode deletes a node and any edges touching it.
func (vs *VisualizationState) RemoveNode(id string) error {
	return vs.mutate(func(s *snapshot) error {
		delete(s.Nodes, id)
		s.NodeOrder = removeFromOrder(s.NodeOrder, id)
		var keep []string
		for _, eid := range s.EdgeOrder {
			e := s.Edges[eid]
			if e != nil && (e.Source == id || e.Target == id) {
				delete(s.Edges, eid)
				continue
			}
			keep = append(keep, eid)
		}
		s.EdgeOrder = keep
		for _, c := range s.Containers {
			c.Children = removeFromOrder(c.Children, id)
		}
		return nil
	})
}

// --- Edge CRUD ---

// UpsertEdge inserts or replaces an edge.
func (vs *VisualizationState) UpsertEdge(e Edge) error {
	return vs.mutate(func(s *snapshot) error {
		s.EdgeOrder = appendOnce(s.EdgeOrder, e.ID)
		s.Edges[e.ID] = &e
		return nil
	})
}

// GetEdge returns a deep copy of the edge, or a NotFoundError.
func (vs *VisualizationState) GetEdge(id string) (*Edge, error) {
	var out *Edge
	var err error
	vs.read(func(s *snapshot) {
		e, ok := s.Edges[id]
		if !ok {
			err = NewNotFoundError(KindEdge, id)
			return
		}
		out = deepCopy(e)
	})
	return out, err
}

// RemoveEdge deletes an edge, cleaning up any aggregation mapping for it.
func (vs *VisualizationState) RemoveEdge(id string) error {
	return vs.mutate(func(s *snapshot) error {
		delete(s.Edges, id)
		s.EdgeOrder = removeFromOrder(s.EdgeOrder, id)
		if aggID, ok := s.Aggregation.OriginalToAggregated[id]; ok {
			removeFromAggregate(s.Aggregation, aggID, id)
			delete(s.Aggregation.OriginalToAggregated, id)
			if len(s.Aggregation.AggregatedToOriginal[aggID]) == 0 {
				delete(s.Aggregation.AggregatedToOriginal, aggID)
				delete(s.Aggregation.Aggregated, aggID)
			}
		}
		return nil
	})
}

// --- Container CRUD ---

// UpsertContainer inserts or replaces a container.
func (vs *VisualizationState) UpsertContainer(c Container) error {
	return vs.mutate(func(s *snapshot) error {
		s.ContainerOrder = appendOnce(s.ContainerOrder, c.ID)
		s.Containers[c.ID] = &c
		return nil
	})
}

// GetContainer returns a deep copy of the container, or a NotFoundError.
func (vs *VisualizationState) GetContainer(id string) (*Container, error) {
	var out *Container
	var err error
	vs.read(func(s *snapshot) {
		c, ok := s.Containers[id]
		if !ok {
			err = NewNotFoundError(KindContainer, id)
			return
		}
		out = deepCopy(c)
	})
	return out, err
}

// RemoveContainer deletes a container, reparenting its children to the
// container's own parent (or to the root if it had none).
func (vs *VisualizationState) RemoveContainer(id string) error {
	return vs.mutate(func(s *snapshot) error {
		c, ok := s.Containers[id]
		if !ok {
			return nil
		}
		parent := s.ParentOf[id]
		if parent != "" {
			if p := s.Containers[parent]; p != nil {
				p.Children = removeFromOrder(p.Children, id)
				for _, child := range c.Children {
					p.Children = appendOnce(p.Children, child)
				}
			}
		}
		delete(s.Containers, id)
		s.ContainerOrder = removeFromOrder(s.ContainerOrder, id)
		return nil
	})
}

// --- Collapse / Expand ---

// CollapseContainer marks containerID collapsed, recomputes edge
// aggregation for its subtree, and disables smart-collapse (this is a
// user-initiated operation).
func (vs *VisualizationState) CollapseContainer(containerID string, now time.Time) error {
	return vs.mutate(func(s *snapshot) error {
		return collapseOne(s, containerID, now, true)
	})
}

// ExpandContainer marks containerID expanded, restores any edges that were
// aggregated solely because of it, and disables smart-collapse.
func (vs *VisualizationState) ExpandContainer(containerID string, now time.Time) error {
	return vs.mutate(func(s *snapshot) error {
		return expandOne(s, containerID, now, true)
	})
}

// CollapseAllContainers collapses every container, outermost (root) first,
// so every intermediate step remains invariant-valid even as descendants
// become hidden beneath an already-collapsed ancestor.
func (vs *VisualizationState) CollapseAllContainers(now time.Time) error {
	return vs.mutate(func(s *snapshot) error {
		for _, id := range containersByDepth(s, false) {
			if err := collapseOne(s, id, now, true); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExpandAllContainers expands every container, deepest (leafmost) first,
// mirroring CollapseAllContainers's outermost-first order.
func (vs *VisualizationState) ExpandAllContainers(now time.Time) error {
	return vs.mutate(func(s *snapshot) error {
		for _, id := range containersByDepth(s, true) {
			if err := expandOne(s, id, now, true); err != nil {
				return err
			}
		}
		return nil
	})
}

// containersByDepth returns container ids ordered by depth in the
// container forest: shallowest (root) first when deepestFirst is false,
// deepest first when true. Ties fall back to ContainerOrder.
func containersByDepth(s *snapshot, deepestFirst bool) []string {
	depth := make(map[string]int, len(s.ContainerOrder))
	for _, id := range s.ContainerOrder {
		depth[id] = len(ancestorChain(s, id))
	}
	ids := make([]string, len(s.ContainerOrder))
	copy(ids, s.ContainerOrder)
	sort.SliceStable(ids, func(i, j int) bool {
		if deepestFirst {
			return depth[ids[i]] > depth[ids[j]]
		}
		return depth[ids[i]] < depth[ids[j]]
	})
	return ids
}

func collapseOne(s *snapshot, containerID string, now time.Time, userInitiated bool) error {
	c, ok := s.Containers[containerID]
	if !ok {
		return NewNotFoundError(KindContainer, containerID)
	}
	if c.Collapsed {
		return nil
	}
	c.Collapsed = true
	recomputeAggregation(s, containerID, now)
	if userInitiated {
		s.SmartCollapseEnabled = false
	}
	return nil
}

func expandOne(s *snapshot, containerID string, now time.Time, userInitiated bool) error {
	c, ok := s.Containers[containerID]
	if !ok {
		return NewNotFoundError(KindContainer, containerID)
	}
	if !c.Collapsed {
		return nil
	}
	c.Collapsed = false
	recomputeAggregation(s, containerID, now)
	if userInitiated {
		s.SmartCollapseEnabled = false
	}
	return nil
}

// --- Search / Navigation ---

// PerformSearch runs a case-insensitive substring match over node and
// container labels, returning byte-range match indices. Fuzzy matching on
// top of this exact pass is layered in by infrastructure/search.
func (vs *VisualizationState) PerformSearch(query string) []SearchResult {
	var results []SearchResult
	vs.read(func(s *snapshot) {
		lowerQuery := strings.ToLower(query)
		if lowerQuery == "" {
			return
		}
		for _, id := range s.NodeOrder {
			n := s.Nodes[id]
			if n == nil {
				continue
			}
			if ranges := matchRanges(n.ShortLabel, lowerQuery); len(ranges) > 0 {
				results = append(results, SearchResult{ID: n.ID, Label: n.ShortLabel, Type: KindNode, MatchIndices: ranges})
			}
		}
		for _, id := range s.ContainerOrder {
			c := s.Containers[id]
			if c == nil {
				continue
			}
			if ranges := matchRanges(c.Label, lowerQuery); len(ranges) > 0 {
				results = append(results, SearchResult{ID: c.ID, Label: c.Label, Type: KindContainer, MatchIndices: ranges})
			}
		}
	})
	return results
}

func matchRanges(label, lowerQuery string) []MatchRange {
	lowerLabel := strings.ToLower(label)
	var ranges []MatchRange
	start := 0
	for {
		idx := strings.Index(lowerLabel[start:], lowerQuery)
		if idx < 0 {
			break
		}
		from := start + idx
		ranges = append(ranges, MatchRange{Start: from, End: from + len(lowerQuery)})
		start = from + len(lowerQuery)
	}
	return ranges
}

// NavigateToElement records id as the current navigation selection and
// returns it unchanged. It does not move the viewport -- that is the
// renderer's concern -- and it does not expand any collapsed ancestor;
// an element beneath a collapsed container can be selected without being
// made visible.
func (vs *VisualizationState) NavigateToElement(id string) (string, error) {
	err := vs.mutate(func(s *snapshot) error {
		if _, okN := s.Nodes[id]; !okN {
			if _, okC := s.Containers[id]; !okC {
				return NewNotFoundError(KindNode, id)
			}
		}
		s.LastSelectedID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// LastSelectedElement returns the id recorded by the most recent
// NavigateToElement call, or "" if none has been recorded yet.
func (vs *VisualizationState) LastSelectedElement() string {
	var id string
	vs.read(func(s *snapshot) { id = s.LastSelectedID })
	return id
}

// SetAggregatedEdgeLabels stamps the Label field of each live aggregated
// edge named in labels. It is a presentation-only update -- it does not
// touch aggregation membership, so it never triggers I5 revalidation --
// used by the Coordinator to publish infrastructure/search's rendered
// summaries after a container mutation changes which edges are aggregated.
func (vs *VisualizationState) SetAggregatedEdgeLabels(labels map[string]string) {
	if len(labels) == 0 {
		return
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	clone := deepCopy(vs.snap)
	for aggID, label := range labels {
		if agg := clone.Aggregation.Aggregated[aggID]; agg != nil {
			agg.Label = label
		}
	}
	vs.snap = clone
}

// ToggleNodeLabel flips a node's long/short label display and recomputes
// its label-derived dimensions. An absent nodeID is a no-op.
func (vs *VisualizationState) ToggleNodeLabel(nodeID string) error {
	return vs.mutate(func(s *snapshot) error {
		n, ok := s.Nodes[nodeID]
		if !ok {
			return nil
		}
		n.ShowingLongLabel = !n.ShowingLongLabel
		label := n.ShortLabel
		if n.ShowingLongLabel {
			label = n.LongLabel
		}
		dims := labelDimensions(label)
		n.Dimensions = &dims
		return nil
	})
}

// --- Layout phase / render config ---

// SetLayoutPhase transitions the coarse layout/render lifecycle marker.
func (vs *VisualizationState) SetLayoutPhase(phase LayoutPhase) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	clone := deepCopy(vs.snap)
	clone.Phase = phase
	vs.snap = clone
}

// IncrementLayoutCount records that a layout pass has completed.
func (vs *VisualizationState) IncrementLayoutCount() {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	clone := deepCopy(vs.snap)
	clone.LayoutCount++
	vs.snap = clone
}

// IsFirstLayout reports whether no layout pass has completed yet.
func (vs *VisualizationState) IsFirstLayout() bool {
	var first bool
	vs.read(func(s *snapshot) { first = s.LayoutCount == 0 })
	return first
}

// CurrentPhase returns the current layout/render phase.
func (vs *VisualizationState) CurrentPhase() LayoutPhase {
	var phase LayoutPhase
	vs.read(func(s *snapshot) { phase = s.Phase })
	return phase
}

// UpdateRenderConfig merges patch into the current render config. A field
// left nil in patch is untouched; a non-nil field always overwrites,
// including explicitly clearing a previously-set bool.
func (vs *VisualizationState) UpdateRenderConfig(patch RenderConfigPatch) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	clone := deepCopy(vs.snap)
	clone.RenderConfig = clone.RenderConfig.Merge(patch)
	vs.snap = clone
}

// GetRenderConfig returns a copy of the current render config.
func (vs *VisualizationState) GetRenderConfig() RenderConfig {
	var cfg RenderConfig
	vs.read(func(s *snapshot) { cfg = deepCopy(s.RenderConfig) })
	return cfg
}

// SmartCollapseEnabled reports whether the smart-collapse heuristic is
// still active. It is disabled permanently by the first user-initiated
// expand/collapse call.
func (vs *VisualizationState) SmartCollapseEnabled() bool {
	var enabled bool
	vs.read(func(s *snapshot) { enabled = s.SmartCollapseEnabled })
	return enabled
}

// --- Invariant validation ---

// validateInvariants checks I1-I4 against a candidate snapshot and returns
// at the first one that fails. I5 is not re-checked here; it is maintained
// by recomputeAggregation inside collapse/expand. I6 (visibility) is
// derived on demand by ComputeVisibility and is not stored. I7 (at
// most one in-flight coordinator operation) is enforced by the coordinator,
// not the state core, since it concerns queue concurrency rather than
// graph shape.
func validateInvariants(s *snapshot) error {
	// I1: node, edge, and container ids are each unique and the three id
	// spaces are pairwise disjoint.
	seen := make(map[string]string, len(s.Nodes)+len(s.Edges)+len(s.Containers))
	for id := range s.Nodes {
		if prior, ok := seen[id]; ok {
			return idCollisionErr(id, "node", prior)
		}
		seen[id] = "node"
	}
	for id := range s.Containers {
		if prior, ok := seen[id]; ok {
			return idCollisionErr(id, "container", prior)
		}
		seen[id] = "container"
	}
	for id := range s.Edges {
		if prior, ok := seen[id]; ok {
			return idCollisionErr(id, "edge", prior)
		}
		seen[id] = "edge"
	}

	// I2: every edge's endpoints resolve to a known node or container.
	for _, e := range s.Edges {
		if !resolvable(s, e.Source) {
			v := NewInvariantViolation(e.ID)
			v.Add("I2: source " + e.Source + " does not resolve to any node or container")
			return v
		}
		if !resolvable(s, e.Target) {
			v := NewInvariantViolation(e.ID)
			v.Add("I2: target " + e.Target + " does not resolve to any node or container")
			return v
		}
	}

	// I4: each child belongs to at most one container's Children list.
	owner := make(map[string]string, len(s.ParentOf))
	for _, cid := range s.ContainerOrder {
		c := s.Containers[cid]
		if c == nil {
			continue
		}
		for _, child := range c.Children {
			if prior, ok := owner[child]; ok && prior != cid {
				v := NewInvariantViolation(child)
				v.Add("I4: claimed as a child by both " + prior + " and " + cid)
				return v
			}
			owner[child] = cid
		}
	}

	// I3: the container parent/child graph is an acyclic forest.
	if cyc := findContainerCycle(s); cyc != "" {
		v := NewInvariantViolation(cyc)
		v.Add("I3: container forest contains a cycle through " + cyc)
		return v
	}

	return nil
}

func idCollisionErr(id, kind, priorKind string) error {
	v := NewInvariantViolation(id)
	v.Add("I1: " + id + " used as both " + priorKind + " and " + kind)
	return v
}

func resolvable(s *snapshot, id string) bool {
	if _, ok := s.Nodes[id]; ok {
		return true
	}
	if _, ok := s.Containers[id]; ok {
		return true
	}
	return false
}

// findContainerCycle runs a DFS three-coloring over the container
// parent/child graph and returns the id of a container on a cycle, or ""
// if the graph is acyclic.
func findContainerCycle(s *snapshot) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(s.Containers))
	var cycleID string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		c := s.Containers[id]
		if c != nil {
			for _, child := range c.Children {
				if _, isContainer := s.Containers[child]; !isContainer {
					continue
				}
				switch color[child] {
				case white:
					if visit(child) {
						return true
					}
				case gray:
					cycleID = child
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	ids := make([]string, len(s.ContainerOrder))
	copy(ids, s.ContainerOrder)
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return cycleID
			}
		}
	}
	return ""
}

// ValidateAggregationConsistency checks I5 by rebuilding the aggregation
// index from scratch and comparing it against the maintained incremental
// state, returning an AggregationInconsistencyError describing every
// divergence found.
func (vs *VisualizationState) ValidateAggregationConsistency(now time.Time) error {
	var divergences []string
	vs.read(func(s *snapshot) {
		fresh := recomputeAggregationFromScratch(s, now)

		for eid, wantAgg := range fresh.OriginalToAggregated {
			gotAgg, ok := s.Aggregation.OriginalToAggregated[eid]
			if !ok {
				divergences = append(divergences, "edge "+eid+" expected aggregation "+wantAgg+" but has none")
				continue
			}
			wantEdge, gotEdge := fresh.Aggregated[wantAgg], s.Aggregation.Aggregated[gotAgg]
			if wantEdge == nil || gotEdge == nil || wantEdge.Source != gotEdge.Source || wantEdge.Target != gotEdge.Target {
				divergences = append(divergences, "edge "+eid+" aggregation endpoints diverge")
			}
		}
		for eid := range s.Aggregation.OriginalToAggregated {
			if _, ok := fresh.OriginalToAggregated[eid]; !ok {
				divergences = append(divergences, "edge "+eid+" is aggregated but should not be")
			}
		}
	})
	if len(divergences) > 0 {
		return NewAggregationInconsistencyError(divergences)
	}
	return nil
}
