// Package pool manages the capability-tagged workers a run dispatches to.
// All acquire/release calls are made from the scheduler control loop, which
// serializes them; the internal mutex only guards snapshot readers.
package pool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kfujino/descent/internal/model"
)

// Worker is one execution slot. Capabilities are fixed at pool construction.
type Worker struct {
	ID           string
	Capabilities map[string]bool
	Busy         bool
	CurrentTask  string
	Completed    int // tasks finished on this worker, used as load tie-break
}

// Pool is the fixed worker set for one run.
type Pool struct {
	mu      sync.Mutex
	workers map[string]*Worker
	order   []string // manifest order, for deterministic iteration
}

// New builds a pool from the worker manifest. Entries without an id get a
// generated one.
func New(manifest []model.WorkerEntry) *Pool {
	p := &Pool{workers: make(map[string]*Worker, len(manifest))}
	for _, entry := range manifest {
		id := entry.ID
		if id == "" {
			id = "worker-" + uuid.NewString()[:8]
		}
		caps := make(map[string]bool, len(entry.Capabilities))
		for _, c := range entry.Capabilities {
			caps[c] = true
		}
		p.workers[id] = &Worker{ID: id, Capabilities: caps}
		p.order = append(p.order, id)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.order)
}

// Acquire returns an idle worker whose capability set covers required, and
// marks it busy on taskID. Selection is deterministic: fewest surplus
// capabilities first (specialists beat generalists), then lowest completed
// load, then worker id. Returns nil when no capable worker is idle — that is
// not an error.
func (p *Pool) Acquire(required []string, taskID string) *Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *Worker
	bestSurplus := 0
	for _, id := range p.order {
		w := p.workers[id]
		if w.Busy || !covers(w.Capabilities, required) {
			continue
		}
		surplus := len(w.Capabilities) - len(required)
		if best == nil ||
			surplus < bestSurplus ||
			(surplus == bestSurplus && w.Completed < best.Completed) ||
			(surplus == bestSurplus && w.Completed == best.Completed && w.ID < best.ID) {
			best = w
			bestSurplus = surplus
		}
	}
	if best == nil {
		return nil
	}
	best.Busy = true
	best.CurrentTask = taskID
	return best
}

// Release marks the worker idle again. Called exactly once per task
// completion or failure.
func (p *Pool) Release(workerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[workerID]
	if !ok {
		return fmt.Errorf("unknown worker %q", workerID)
	}
	if !w.Busy {
		return fmt.Errorf("worker %q released while idle", workerID)
	}
	w.Busy = false
	w.CurrentTask = ""
	w.Completed++
	return nil
}

// IdleCount returns the number of idle workers.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, w := range p.workers {
		if !w.Busy {
			n++
		}
	}
	return n
}

// WorkerSnapshot is a read-only view of one worker for reporting.
type WorkerSnapshot struct {
	ID           string
	Capabilities []string
	Busy         bool
	CurrentTask  string
	Completed    int
}

// Snapshot returns the pool state in manifest order.
func (p *Pool) Snapshot() []WorkerSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]WorkerSnapshot, 0, len(p.order))
	for _, id := range p.order {
		w := p.workers[id]
		caps := make([]string, 0, len(w.Capabilities))
		for c := range w.Capabilities {
			caps = append(caps, c)
		}
		sort.Strings(caps)
		out = append(out, WorkerSnapshot{
			ID:           w.ID,
			Capabilities: caps,
			Busy:         w.Busy,
			CurrentTask:  w.CurrentTask,
			Completed:    w.Completed,
		})
	}
	return out
}

func covers(have map[string]bool, required []string) bool {
	for _, c := range required {
		if !have[c] {
			return false
		}
	}
	return true
}
