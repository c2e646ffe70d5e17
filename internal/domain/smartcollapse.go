package domain

import (
	"container/heap"
	"time"
)

const (
	// defaultAreaBudget is the screen-area budget used when the caller does
	// not supply a positive budget.
	defaultAreaBudget = 2_000_000.0

	collapsedFootprintWidth  = 160.0
	collapsedFootprintHeight = 80.0
	containerBorderPadding   = 24.0
)

// expansionCandidate is one entry in the smart-collapse min-heap: a
// currently-collapsed container and the cost of expanding it.
type expansionCandidate struct {
	containerID string
	cost        float64
}

type candidateHeap []expansionCandidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].cost < h[j].cost }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)         { *h = append(*h, x.(expansionCandidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func entityArea(w, h float64) float64 { return w * h }

// expansionCost approximates expandedArea - collapsedArea for containerID:
// expandedArea sums the footprint of every direct child (a fixed
// collapsed-container footprint for sub-containers, label dimensions for
// direct nodes) plus border padding; collapsedArea is the container's own
// collapsed footprint. Costs are never negative.
func expansionCost(s *snapshot, containerID string) float64 {
	c := s.Containers[containerID]
	if c == nil {
		return 0
	}
	expandedArea := containerBorderPadding
	for _, child := range c.Children {
		if _, isContainer := s.Containers[child]; isContainer {
			expandedArea += entityArea(collapsedFootprintWidth, collapsedFootprintHeight)
			continue
		}
		if n, ok := s.Nodes[child]; ok {
			dims := labelDimensions(n.ShortLabel)
			expandedArea += entityArea(dims.Width, dims.Height)
		}
	}
	collapsedArea := entityArea(collapsedFootprintWidth, collapsedFootprintHeight)
	cost := expandedArea - collapsedArea
	if cost < 0 {
		return 0
	}
	return cost
}

// ApplySmartCollapse implements the first-layout heuristic: collapse every
// root container, then greedily expand the cheapest candidates first while
// the running cost stays within budget. Expansion here is an internal call
// and never touches the coordinator or disables SmartCollapseEnabled.
func (vs *VisualizationState) ApplySmartCollapse(budget float64, now time.Time) error {
	if budget <= 0 {
		budget = defaultAreaBudget
	}
	return vs.mutate(func(s *snapshot) error {
		for _, id := range containersByDepth(s, false) {
			if _, hasParent := s.ParentOf[id]; !hasParent {
				if err := collapseOne(s, id, now, false); err != nil {
					return err
				}
			}
		}

		h := &candidateHeap{}
		heap.Init(h)
		for _, id := range s.ContainerOrder {
			c := s.Containers[id]
			if c != nil && c.Collapsed {
				heap.Push(h, expansionCandidate{containerID: id, cost: expansionCost(s, id)})
			}
		}

		runningCost := 0.0
		for h.Len() > 0 {
			top := (*h)[0]
			if runningCost+top.cost > budget {
				break
			}
			heap.Pop(h)
			c := s.Containers[top.containerID]
			if c == nil || !c.Collapsed {
				continue
			}
			runningCost += top.cost
			if err := expandOne(s, top.containerID, now, false); err != nil {
				return err
			}
			for _, child := range c.Children {
				if cc, ok := s.Containers[child]; ok && cc.Collapsed {
					heap.Push(h, expansionCandidate{containerID: child, cost: expansionCost(s, child)})
				}
			}
		}
		return nil
	})
}
