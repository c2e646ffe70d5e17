package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// AggregationEngine maintains I5: every original edge that crosses at
// least one collapsed ancestor boundary is mapped by OriginalToAggregated
// to exactly one aggregated edge, and the reverse index agrees.
type AggregationEngine struct {
	OriginalToAggregated map[string]string          `json:"originalToAggregated"`
	AggregatedToOriginal map[string][]string         `json:"aggregatedToOriginal"`
	Aggregated           map[string]*AggregatedEdge `json:"aggregatedEdges"`
	History              []AggregationEvent          `json:"history"`
}

func newAggregationEngine() *AggregationEngine {
	return &AggregationEngine{
		OriginalToAggregated: make(map[string]string),
		AggregatedToOriginal: make(map[string][]string),
		Aggregated:           make(map[string]*AggregatedEdge),
		History:              make([]AggregationEvent, 0),
	}
}

// aggregatedEdgeID derives a deterministic id from the sorted endpoint
// pair so that repeated collapse/expand cycles over the same containers
// yield the same aggregated edge id.
func aggregatedEdgeID(repU, repV string) string {
	a, b := repU, repV
	if b < a {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + "\x00" + b))
	return "agg_" + hex.EncodeToString(sum[:])[:16]
}

// ancestorChain returns id's ancestors from nearest parent to root,
// excluding id itself.
func ancestorChain(snap *snapshot, id string) []string {
	var chain []string
	cur := id
	seen := map[string]bool{cur: true}
	for {
		parent, ok := snap.ParentOf[cur]
		if !ok || seen[parent] {
			break
		}
		chain = append(chain, parent)
		seen[parent] = true
		cur = parent
	}
	return chain
}

// rep returns the aggregation representative of id: the outermost
// (root-most) collapsed ancestor, or id itself if none of its ancestors
// are collapsed.
func rep(snap *snapshot, id string) string {
	chain := ancestorChain(snap, id)
	for i := len(chain) - 1; i >= 0; i-- {
		if c, ok := snap.Containers[chain[i]]; ok && c.Collapsed {
			return chain[i]
		}
	}
	return id
}

// subtreeIDs returns containerID and every node/container transitively
// reachable through its Children lists.
func subtreeIDs(snap *snapshot, containerID string) map[string]bool {
	set := map[string]bool{containerID: true}
	queue := []string{containerID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		c, ok := snap.Containers[cur]
		if !ok {
			continue
		}
		for _, child := range c.Children {
			if !set[child] {
				set[child] = true
				queue = append(queue, child)
			}
		}
	}
	return set
}

// affectedEdgeIDs returns, in insertion order, every edge with at least
// one endpoint in subtree.
func affectedEdgeIDs(snap *snapshot, subtree map[string]bool) []string {
	var out []string
	for _, eid := range snap.EdgeOrder {
		e := snap.Edges[eid]
		if e == nil {
			continue
		}
		if subtree[e.Source] || subtree[e.Target] {
			out = append(out, eid)
		}
	}
	return out
}

// aggregationSourceFor picks the lowest-common-ancestor container whose
// collapse produced the grouping, tie-breaking on the container id that
// sorts first when both representatives are collapsed containers.
func aggregationSourceFor(snap *snapshot, repU, repV, fallback string) string {
	var candidates []string
	if c, ok := snap.Containers[repU]; ok && c.Collapsed {
		candidates = append(candidates, repU)
	}
	if c, ok := snap.Containers[repV]; ok && c.Collapsed {
		candidates = append(candidates, repV)
	}
	if len(candidates) == 0 {
		return fallback
	}
	sort.Strings(candidates)
	return candidates[0]
}

func removeFromAggregate(eng *AggregationEngine, aggID, edgeID string) {
	agg, ok := eng.Aggregated[aggID]
	if !ok {
		return
	}
	filtered := agg.OriginalEdgeIDs[:0]
	for _, id := range agg.OriginalEdgeIDs {
		if id != edgeID {
			filtered = append(filtered, id)
		}
	}
	agg.OriginalEdgeIDs = filtered
	eng.AggregatedToOriginal[aggID] = append([]string{}, filtered...)
}

// recomputeAggregation re-runs the crossing test for every edge touching
// containerID's subtree, following a change to containerID's collapsed
// flag. It is the only entry point that mutates the aggregation engine,
// keeping the work bounded to the affected subtree rather than the whole
// graph.
func recomputeAggregation(snap *snapshot, containerID string, now time.Time) {
	eng := snap.Aggregation
	subtree := subtreeIDs(snap, containerID)
	affected := affectedEdgeIDs(snap, subtree)

	touchedAgg := map[string]bool{}
	for _, eid := range affected {
		if aggID, ok := eng.OriginalToAggregated[eid]; ok {
			removeFromAggregate(eng, aggID, eid)
			delete(eng.OriginalToAggregated, eid)
			touchedAgg[aggID] = true
		}
	}
	restoredEdges := 0
	for aggID := range touchedAgg {
		if ids, ok := eng.AggregatedToOriginal[aggID]; ok {
			if len(ids) == 0 {
				delete(eng.AggregatedToOriginal, aggID)
				delete(eng.Aggregated, aggID)
			}
			restoredEdges++
		}
	}
	if restoredEdges > 0 {
		eng.History = append(eng.History, AggregationEvent{
			Operation: "restore", ContainerID: containerID,
			EdgeCount: restoredEdges, Timestamp: now,
		})
	}

	type group struct {
		repU, repV string
		edgeIDs    []string
	}
	groups := make(map[string]*group)
	var groupKeys []string
	for _, eid := range affected {
		e := snap.Edges[eid]
		if e == nil {
			continue
		}
		ru, rv := rep(snap, e.Source), rep(snap, e.Target)
		crossed := ru != e.Source || rv != e.Target
		if !crossed {
			continue // plain edge, untouched by collapse
		}
		if ru == rv {
			continue // self-absorbed: both endpoints fold into the same container
		}
		a, b := ru, rv
		if b < a {
			a, b = b, a
		}
		key := a + "\x00" + b
		g, ok := groups[key]
		if !ok {
			g = &group{repU: a, repV: b}
			groups[key] = g
			groupKeys = append(groupKeys, key)
		}
		g.edgeIDs = append(g.edgeIDs, eid)
	}

	aggregatedCount := 0
	for _, key := range groupKeys {
		g := groups[key]
		aggID := aggregatedEdgeID(g.repU, g.repV)
		agg, exists := eng.Aggregated[aggID]
		if !exists {
			agg = &AggregatedEdge{ID: aggID, Source: g.repU, Target: g.repV, Aggregated: true}
			eng.Aggregated[aggID] = agg
		}
		seen := map[string]bool{}
		for _, id := range agg.OriginalEdgeIDs {
			seen[id] = true
		}
		for _, eid := range g.edgeIDs {
			if !seen[eid] {
				agg.OriginalEdgeIDs = append(agg.OriginalEdgeIDs, eid)
				seen[eid] = true
			}
			eng.OriginalToAggregated[eid] = aggID
		}
		sort.Strings(agg.OriginalEdgeIDs)
		eng.AggregatedToOriginal[aggID] = append([]string{}, agg.OriginalEdgeIDs...)
		agg.AggregationSource = aggregationSourceFor(snap, g.repU, g.repV, containerID)
		aggregatedCount += len(g.edgeIDs)
	}
	if aggregatedCount > 0 {
		eng.History = append(eng.History, AggregationEvent{
			Operation: "aggregate", ContainerID: containerID,
			EdgeCount: aggregatedCount, Timestamp: now,
		})
	}
}

// recomputeAggregationFromScratch rebuilds the aggregation mapping for
// the entire graph by running the crossing test over every edge,
// ignoring any previously maintained incremental state. Used only by
// ValidateAggregationConsistency.
func recomputeAggregationFromScratch(snap *snapshot, now time.Time) *AggregationEngine {
	fresh := newAggregationEngine()
	tmp := &snapshot{
		Nodes: snap.Nodes, Edges: snap.Edges, Containers: snap.Containers,
		EdgeOrder: snap.EdgeOrder, ParentOf: snap.ParentOf,
		Aggregation: fresh,
	}
	for _, id := range snap.ContainerOrder {
		c := snap.Containers[id]
		if c != nil && c.Collapsed {
			recomputeAggregation(tmp, id, now)
		}
	}
	return fresh
}
