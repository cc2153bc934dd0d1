package sched

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kfujino/descent/internal/events"
	"github.com/kfujino/descent/internal/health"
	"github.com/kfujino/descent/internal/model"
)

// result is one finished task attempt reported back to the control loop.
type result struct {
	taskID   string
	workerID string
	attempt  int
	err      error
	timedOut bool
}

// Run executes the graph to a terminal state. The returned report is always
// populated, even on deadlock or cancellation; the error is non-nil only for
// the fatal classes (deadlock, cancellation).
func (s *Scheduler) Run(ctx context.Context) (model.RunReport, error) {
	s.setState(model.RunDispatching)

	total := s.graph.Len()
	completed := make(map[string]bool)
	failed := make(map[string]health.Category)
	blocked := make(map[string]health.Category)

	// Buffered so draining goroutines never leak if the loop exits early.
	results := make(chan result, total+1)
	inflight := 0

	s.blockUnservable(blocked)

	cancelled := false

loop:
	for {
		select {
		case <-ctx.Done():
			cancelled = true
			break loop
		default:
		}

		s.dispatchReady(ctx, completed, results, &inflight)

		if len(completed)+len(failed)+len(blocked) == total && inflight == 0 {
			break loop
		}

		if inflight == 0 {
			// Acyclicity was validated and unservable tasks were blocked up
			// front, so an idle loop with work remaining is an internal bug.
			s.setState(model.RunDeadlock)
			_ = s.sess.Abort(ctx, "scheduler deadlock")
			return s.buildReport(completed, failed, blocked), ErrDeadlock
		}

		// Sole suspension point of the control loop.
		select {
		case res := <-results:
			s.handleResult(ctx, res, completed, failed, blocked, &inflight)
		case <-ctx.Done():
			cancelled = true
			break loop
		}
	}

	if cancelled {
		return s.drainAndAbort(ctx, results, completed, failed, blocked, inflight)
	}

	outcome := model.RunSuccess
	if len(failed)+len(blocked) > 0 {
		outcome = model.RunPartialFailure
	}

	ratio := 1.0
	if total > 0 {
		ratio = float64(len(completed)) / float64(total)
	}
	if err := s.sess.Finish(ctx, outcome, ratio); err != nil {
		s.log(LogLevelError, "session_finish_failed error=%v", err)
	}

	s.setState(outcome)
	s.log(LogLevelInfo, "run_terminal state=%s completed=%d failed=%d blocked=%d",
		outcome, len(completed), len(failed), len(blocked))
	return s.buildReport(completed, failed, blocked), nil
}

// drainAndAbort waits for in-flight tasks to reach a natural boundary,
// bounded by the drain timeout, then aborts the session.
func (s *Scheduler) drainAndAbort(
	ctx context.Context,
	results chan result,
	completed map[string]bool,
	failed, blocked map[string]health.Category,
	inflight int,
) (model.RunReport, error) {
	s.setState(model.RunDraining)
	s.log(LogLevelWarn, "run_cancelled draining inflight=%d", inflight)

	// Session and pool operations must outlive the cancelled run context.
	drainCtx := context.WithoutCancel(ctx)
	deadline := time.NewTimer(s.cfg.DrainTimeout())
	defer deadline.Stop()

	for inflight > 0 {
		select {
		case res := <-results:
			s.handleResult(drainCtx, res, completed, failed, blocked, &inflight)
		case <-deadline.C:
			s.log(LogLevelError, "drain_timeout abandoning inflight=%d", inflight)
			inflight = 0
		}
	}

	if err := s.sess.Abort(drainCtx, "run cancelled"); err != nil {
		s.log(LogLevelError, "session_abort_failed error=%v", err)
	}
	s.setState(model.RunPartialFailure)
	return s.buildReport(completed, failed, blocked), ctx.Err()
}

// dispatchReady assigns ready tasks to idle capable workers, in priority
// order. The semaphore bounds in-flight attempts; degradation shrinks it via
// adjustThrottle.
func (s *Scheduler) dispatchReady(ctx context.Context, completed map[string]bool, results chan<- result, inflight *int) {
	s.adjustThrottle()
	ready := s.graph.ReadyTasks(completed)
	s.sortByPriority(ready)

	for _, id := range ready {
		if !s.sem.TryAcquire(1) {
			// All dispatch slots are in flight or throttled away.
			break
		}
		t := s.graph.Task(id)
		if t.Status == model.StatusNotStarted {
			s.transition(t, model.StatusReady)
		}

		w := s.pool.Acquire(t.Capabilities, id)
		if w == nil {
			// No idle capable worker: soft, the task simply stays ready.
			s.sem.Release(1)
			continue
		}

		s.transition(t, model.StatusAssigned)
		s.transition(t, model.StatusRunning)
		t.Attempts++
		t.Worker = w.ID

		params := s.strategy.ParamsFor(t.Attempts-1, s.monitor.EscalationLevel(), health.Params{
			Timeout:     s.cfg.TaskTimeout(),
			EffortLimit: t.Effort,
		})

		*inflight++
		s.publish(events.EventTaskDispatched, map[string]interface{}{
			"task_id":   t.ID,
			"worker_id": w.ID,
			"attempt":   t.Attempts,
		})
		s.log(LogLevelInfo, "dispatch_task id=%s worker=%s attempt=%d simplified=%v",
			t.ID, w.ID, t.Attempts, params.Simplified)

		go s.execute(ctx, *t, w.ID, params, results)
	}
}

// execute runs one attempt on its own goroutine and reports the outcome.
func (s *Scheduler) execute(ctx context.Context, t model.Task, workerID string, params health.Params, results chan<- result) {
	runCtx := ctx
	if params.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	err := s.runner.Run(runCtx, t, params)
	results <- result{
		taskID:   t.ID,
		workerID: workerID,
		attempt:  t.Attempts,
		err:      err,
		timedOut: err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}
}

// handleResult advances the graph for one finished attempt.
func (s *Scheduler) handleResult(
	ctx context.Context,
	res result,
	completed map[string]bool,
	failed, blocked map[string]health.Category,
	inflight *int,
) {
	*inflight--
	s.sem.Release(1)
	if err := s.pool.Release(res.workerID); err != nil {
		s.log(LogLevelError, "worker_release_failed worker=%s error=%v", res.workerID, err)
	}

	t := s.graph.Task(res.taskID)
	t.Worker = ""

	if res.err == nil {
		s.transition(t, model.StatusCompleted)
		completed[t.ID] = true
		summary := fmt.Sprintf("completed on attempt %d", res.attempt)
		if err := s.sess.Checkpoint(ctx, t.ID, summary); err != nil {
			s.log(LogLevelError, "checkpoint_failed task=%s error=%v", t.ID, err)
		}
		s.publish(events.EventTaskCompleted, map[string]interface{}{
			"task_id": t.ID,
			"attempt": res.attempt,
		})
		s.log(LogLevelInfo, "task_completed id=%s attempt=%d", t.ID, res.attempt)
		return
	}

	category := classify(res)
	s.monitor.RecordFailure(t.ID, category)

	if s.monitor.ShouldRetry(t.ID) {
		s.transition(t, model.StatusReady)
		s.publish(events.EventTaskRetried, map[string]interface{}{
			"task_id":  t.ID,
			"attempt":  res.attempt,
			"category": string(category),
		})
		s.log(LogLevelWarn, "task_retry id=%s attempt=%d category=%s error=%v",
			t.ID, res.attempt, category, res.err)
		return
	}

	s.transition(t, model.StatusFailed)
	t.FailureCategory = string(category)
	failed[t.ID] = category
	s.publish(events.EventTaskFailed, map[string]interface{}{
		"task_id":  t.ID,
		"attempt":  res.attempt,
		"category": string(category),
	})
	s.log(LogLevelError, "task_failed id=%s attempts=%d category=%s error=%v",
		t.ID, res.attempt, category, res.err)

	s.blockDependents(t.ID, blocked)
}

// blockDependents marks every transitive dependent of a failed task as
// blocked: a parent cannot complete while any subtask is failed, and an
// explicit dependent can never become ready.
func (s *Scheduler) blockDependents(id string, blocked map[string]health.Category) {
	for _, dep := range s.graph.TransitiveDependents(id) {
		t := s.graph.Task(dep)
		if t.Status != model.StatusNotStarted && t.Status != model.StatusReady {
			continue
		}
		s.transition(t, model.StatusBlocked)
		t.FailureCategory = string(health.CategoryDependencyFault)
		blocked[dep] = health.CategoryDependencyFault
		s.log(LogLevelWarn, "task_blocked id=%s cause=%s", dep, id)
	}
}

// blockUnservable fails fast on tasks no pool worker could ever serve, so
// they cannot starve the loop into a false deadlock. An empty pool makes
// every task unservable, a configuration problem rather than a scheduler bug.
func (s *Scheduler) blockUnservable(blocked map[string]health.Category) {
	snap := s.pool.Snapshot()
	for _, id := range s.graph.TaskIDs() {
		t := s.graph.Task(id)
		if t.Status != model.StatusNotStarted {
			continue
		}
		if len(snap) > 0 && len(t.Capabilities) == 0 {
			continue
		}
		servable := false
		for _, w := range snap {
			if coversList(w.Capabilities, t.Capabilities) {
				servable = true
				break
			}
		}
		if !servable {
			s.transition(t, model.StatusBlocked)
			t.FailureCategory = string(health.CategoryResourceExhaustion)
			blocked[id] = health.CategoryResourceExhaustion
			s.log(LogLevelWarn, "task_unservable id=%s capabilities=%v", id, t.Capabilities)
			s.blockDependents(id, blocked)
		}
	}
}

// sortByPriority orders ready ids by priority asc, tier asc, then id.
func (s *Scheduler) sortByPriority(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := s.graph.Task(ids[i]), s.graph.Task(ids[j])
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if s.graph.Tier(a.ID) != s.graph.Tier(b.ID) {
			return s.graph.Tier(a.ID) < s.graph.Tier(b.ID)
		}
		return model.LessID(a.ID, b.ID)
	})
}

func (s *Scheduler) transition(t *model.Task, to model.Status) {
	if err := model.ValidateTaskTransition(t.Status, to); err != nil {
		s.log(LogLevelError, "invalid_transition task=%s error=%v", t.ID, err)
		return
	}
	t.Status = to
}

func classify(res result) health.Category {
	var te *TaskError
	if errors.As(res.err, &te) {
		return te.Category
	}
	if res.timedOut || errors.Is(res.err, context.DeadlineExceeded) {
		return health.CategoryTimeout
	}
	return health.CategoryUnknown
}

func coversList(have, required []string) bool {
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	for _, c := range required {
		if !set[c] {
			return false
		}
	}
	return true
}
