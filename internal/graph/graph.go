// Package graph builds the task dependency graph from a hierarchically
// numbered task list, validates acyclicity, and computes execution tiers and
// the critical path.
package graph

import (
	"github.com/kfujino/descent/internal/model"
)

const defaultPriority = 100

// Graph owns the parsed tasks and their derived dependency edges. Edges run
// from a task to the tasks it depends on: a parent depends on each of its
// subtasks (rollup), and a task depends on every task id referenced in its
// body.
type Graph struct {
	tasks      map[string]*model.Task
	order      []string            // document order
	deps       map[string][]string // task -> dependency ids, sorted
	dependents map[string][]string // reverse edges, sorted
	tiers      map[string]int
	topo       []string
	critical   []string
}

// Build parses raw entries into a validated graph. It fails with
// *MalformedIDError, *DanglingReferenceError, or *CycleError; an empty entry
// list yields an empty graph.
func Build(entries []model.TaskEntry) (*Graph, error) {
	g := &Graph{
		tasks:      make(map[string]*model.Task, len(entries)),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
		tiers:      make(map[string]int),
	}

	for _, e := range entries {
		if !model.ValidTaskID(e.ID) {
			return nil, &MalformedIDError{ID: e.ID, Reason: "expected dotted numeric id"}
		}
		if _, dup := g.tasks[e.ID]; dup {
			return nil, &MalformedIDError{ID: e.ID, Reason: "duplicate id"}
		}
		caps := append([]string(nil), e.Capabilities...)
		effort := e.Effort
		if effort <= 0 {
			effort = 1
		}
		priority := e.Priority
		if priority <= 0 {
			priority = defaultPriority
		}
		g.tasks[e.ID] = &model.Task{
			ID:           e.ID,
			Title:        e.Title,
			Body:         e.Body,
			Status:       model.StatusNotStarted,
			Capabilities: caps,
			Effort:       effort,
			Priority:     priority,
		}
		g.order = append(g.order, e.ID)
	}

	if err := g.deriveEdges(); err != nil {
		return nil, err
	}

	topo, err := g.validateAcyclic()
	if err != nil {
		return nil, err
	}
	g.topo = topo

	g.computeTiers()
	g.computeCriticalPath()
	return g, nil
}

// deriveEdges fills deps and dependents from hierarchical numbering and body
// references.
func (g *Graph) deriveEdges() error {
	add := func(from, to string) {
		for _, d := range g.deps[from] {
			if d == to {
				return
			}
		}
		g.deps[from] = append(g.deps[from], to)
		g.dependents[to] = append(g.dependents[to], from)
	}

	for _, id := range g.order {
		// Rollup: a parent cannot complete before its subtasks.
		if parent := model.ParentID(id); parent != "" {
			if _, ok := g.tasks[parent]; ok {
				add(parent, id)
			}
		}

		// Explicit references in the body text.
		for _, ref := range model.ExtractIDTokens(g.tasks[id].Body) {
			if ref == id {
				return &CycleError{Path: []string{id, id}}
			}
			if _, ok := g.tasks[ref]; !ok {
				return &DanglingReferenceError{TaskID: id, Ref: ref}
			}
			add(id, ref)
		}
	}

	for id := range g.deps {
		model.SortIDs(g.deps[id])
	}
	for id := range g.dependents {
		model.SortIDs(g.dependents[id])
	}
	return nil
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	return len(g.order)
}

// Task returns the task with the given id, or nil.
func (g *Graph) Task(id string) *model.Task {
	return g.tasks[id]
}

// TaskIDs returns all ids in document order.
func (g *Graph) TaskIDs() []string {
	return append([]string(nil), g.order...)
}

// Dependencies returns the ids the given task depends on.
func (g *Graph) Dependencies(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// Dependents returns the ids that directly depend on the given task.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// TransitiveDependents returns every task reachable via reverse edges from
// id, in document order. These are the tasks that can never run once id goes
// terminal-failed.
func (g *Graph) TransitiveDependents(id string) []string {
	visited := map[string]bool{id: true}
	stack := append([]string(nil), g.dependents[id]...)
	reach := make(map[string]bool)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		reach[cur] = true
		stack = append(stack, g.dependents[cur]...)
	}

	var out []string
	for _, tid := range g.order {
		if reach[tid] {
			out = append(out, tid)
		}
	}
	return out
}

// ReadyTasks returns the tasks whose every dependency is in completed and
// whose own status is not_started or ready, in document order.
func (g *Graph) ReadyTasks(completed map[string]bool) []string {
	var ready []string
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Status != model.StatusNotStarted && t.Status != model.StatusReady {
			continue
		}
		ok := true
		for _, dep := range g.deps[id] {
			if !completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	return ready
}
