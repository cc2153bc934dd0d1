package graph

import "github.com/kfujino/descent/internal/model"

// computeTiers assigns each task its dependency depth: 0 with no
// dependencies, else 1 + max over dependency tiers. Topological order
// guarantees dependencies are tiered first.
func (g *Graph) computeTiers() {
	for _, id := range g.topo {
		tier := 0
		for _, dep := range g.deps[id] {
			if t := g.tiers[dep] + 1; t > tier {
				tier = t
			}
		}
		g.tiers[id] = tier
	}
}

// Tiers returns a copy of the tier assignment.
func (g *Graph) Tiers() map[string]int {
	out := make(map[string]int, len(g.tiers))
	for id, t := range g.tiers {
		out[id] = t
	}
	return out
}

// Tier returns the tier of a single task.
func (g *Graph) Tier(id string) int {
	return g.tiers[id]
}

type chain struct {
	length int
	effort int
	path   []string
}

// betterChain reports whether a beats b: longer first, then heavier summed
// effort, then lexically smaller id sequence.
func betterChain(a, b chain) bool {
	if a.length != b.length {
		return a.length > b.length
	}
	if a.effort != b.effort {
		return a.effort > b.effort
	}
	for i := 0; i < len(a.path) && i < len(b.path); i++ {
		if a.path[i] != b.path[i] {
			return model.LessID(a.path[i], b.path[i])
		}
	}
	return false
}

// computeCriticalPath finds the longest dependency chain via DP over the
// topological order. The result runs root-first: each element depends on the
// one before it.
func (g *Graph) computeCriticalPath() {
	if len(g.topo) == 0 {
		g.critical = nil
		return
	}

	best := make(map[string]chain, len(g.topo))
	for _, id := range g.topo {
		c := chain{length: 1, effort: g.tasks[id].Effort, path: []string{id}}
		for _, dep := range g.deps[id] {
			dc := best[dep]
			cand := chain{
				length: dc.length + 1,
				effort: dc.effort + g.tasks[id].Effort,
				path:   append(append([]string(nil), dc.path...), id),
			}
			if betterChain(cand, c) {
				c = cand
			}
		}
		best[id] = c
	}

	var overall chain
	for _, id := range g.topo {
		if overall.path == nil || betterChain(best[id], overall) {
			overall = best[id]
		}
	}
	g.critical = overall.path
}

// CriticalPath returns the longest chain of dependencies, root first.
func (g *Graph) CriticalPath() []string {
	return append([]string(nil), g.critical...)
}

// CriticalPathLength returns the number of tasks on the critical path.
func (g *Graph) CriticalPathLength() int {
	return len(g.critical)
}
