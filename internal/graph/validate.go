package graph

// validateAcyclic runs Kahn's algorithm over the derived edges. On cycle
// detection it uses DFS to find and report the cycle path.
func (g *Graph) validateAcyclic() ([]string, error) {
	if len(g.order) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.order))
	for _, id := range g.order {
		inDegree[id] = len(g.deps[id])
	}

	// Seed queue in document order so the sort is deterministic.
	var queue []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var sorted []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)

		for _, dependent := range g.dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) == len(g.order) {
		return sorted, nil
	}

	return nil, &CycleError{Path: g.findCyclePath(inDegree)}
}

// findCyclePath finds a cycle path among nodes with non-zero in-degree.
func (g *Graph) findCyclePath(inDegree map[string]int) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // in current path
		black = 2 // finished
	)

	color := make(map[string]int)
	parent := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = gray
		for _, dep := range g.deps[id] {
			if color[dep] == gray {
				// Found cycle: reconstruct path.
				cyclePath = []string{dep}
				current := id
				for current != dep {
					cyclePath = append(cyclePath, current)
					current = parent[current]
				}
				cyclePath = append(cyclePath, dep)
				for i, j := 0, len(cyclePath)-1; i < j; i, j = i+1, j-1 {
					cyclePath[i], cyclePath[j] = cyclePath[j], cyclePath[i]
				}
				return true
			}
			if color[dep] == white {
				parent[dep] = id
				if dfs(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, id := range g.order {
		if inDegree[id] > 0 && color[id] == white {
			if dfs(id) {
				return cyclePath
			}
		}
	}

	return []string{"(cycle detected)"}
}
