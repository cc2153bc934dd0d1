// Package sched implements the recursive-descent dispatch loop: it
// repeatedly finds tasks whose dependencies are satisfied, matches them to
// idle capable workers, and advances the graph as results arrive. The
// control loop runs on a single goroutine; its only suspension point is the
// result channel receive.
package sched

import (
	"context"
	"errors"
	"log"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/kfujino/descent/internal/events"
	"github.com/kfujino/descent/internal/graph"
	"github.com/kfujino/descent/internal/health"
	"github.com/kfujino/descent/internal/model"
	"github.com/kfujino/descent/internal/pool"
	"github.com/kfujino/descent/internal/session"
)

// ErrDeadlock signals an internal scheduling bug: tasks remain non-terminal
// with nothing ready and nothing running. Acyclicity is validated up front,
// so this is never user-caused.
var ErrDeadlock = errors.New("scheduler deadlock: non-terminal tasks with nothing ready or running")

// Runner executes one task attempt. Task bodies are opaque work units; the
// runner's internal concurrency is its own business.
type Runner interface {
	Run(ctx context.Context, task model.Task, params health.Params) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, task model.Task, params health.Params) error

func (f RunnerFunc) Run(ctx context.Context, task model.Task, params health.Params) error {
	return f(ctx, task, params)
}

// TaskError carries an explicit failure category out of a runner. Errors
// without one are classified as unknown (or timeout, when the attempt
// context expired).
type TaskError struct {
	Category health.Category
	Err      error
}

func (e *TaskError) Error() string {
	return string(e.Category) + ": " + e.Err.Error()
}

func (e *TaskError) Unwrap() error { return e.Err }

// Scheduler drives one run over a validated graph. Construct with New for
// every run; a Scheduler is not reusable.
type Scheduler struct {
	graph    *graph.Graph
	pool     *pool.Pool
	sess     *session.Session
	monitor  *health.Monitor
	strategy health.RetryStrategy
	runner   Runner
	bus      *events.Bus
	cfg      model.SchedulerConfig
	logger   *log.Logger
	logLevel LogLevel

	// sem bounds in-flight attempts at maxInFlight. Degradation is applied
	// by the control loop claiming extra weight (throttled), shrinking what
	// dispatch can acquire.
	sem         *semaphore.Weighted
	maxInFlight int
	throttled   int

	mu    sync.Mutex
	state model.RunState
}

// Deps bundles the collaborators a Scheduler is built from. No ambient
// registries: everything is threaded through here.
type Deps struct {
	Graph    *graph.Graph
	Pool     *pool.Pool
	Session  *session.Session
	Monitor  *health.Monitor
	Strategy health.RetryStrategy
	Runner   Runner
	Bus      *events.Bus // optional
	Logger   *log.Logger // optional
}

// New creates a scheduler for one run.
func New(deps Deps, cfg model.SchedulerConfig, logLevel LogLevel) *Scheduler {
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = deps.Pool.Size()
	}
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	strategy := deps.Strategy
	if strategy == nil {
		strategy = health.SimplifyStrategy{}
	}
	return &Scheduler{
		graph:       deps.Graph,
		pool:        deps.Pool,
		sess:        deps.Session,
		monitor:     deps.Monitor,
		strategy:    strategy,
		runner:      deps.Runner,
		bus:         deps.Bus,
		cfg:         cfg,
		logger:      deps.Logger,
		logLevel:    logLevel,
		sem:         semaphore.NewWeighted(int64(maxInFlight)),
		maxInFlight: maxInFlight,
		state:       model.RunIdle,
	}
}

// State returns the current run state.
func (s *Scheduler) State() model.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(st model.RunState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Scheduler) publish(eventType events.EventType, data map[string]interface{}) {
	if s.bus != nil {
		s.bus.Publish(eventType, data)
	}
}

// maxConcurrent returns the dispatch width allowed at the current
// degradation level. Severe and emergency shrink concurrency.
func (s *Scheduler) maxConcurrent() int {
	base := s.maxInFlight
	switch s.monitor.EscalationLevel() {
	case health.LevelEmergency:
		return 1
	case health.LevelSevere:
		if base/2 < 1 {
			return 1
		}
		return base / 2
	default:
		return base
	}
}

// adjustThrottle reconciles the claimed semaphore weight with the current
// degradation level, so dispatch can only acquire maxConcurrent slots. Extra
// weight is claimed as running tasks release it and handed back once the
// level cools down. Called only from the control loop.
func (s *Scheduler) adjustThrottle() {
	want := s.maxInFlight - s.maxConcurrent()
	for s.throttled < want && s.sem.TryAcquire(1) {
		s.throttled++
	}
	for s.throttled > want {
		s.sem.Release(1)
		s.throttled--
	}
}
