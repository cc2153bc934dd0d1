package sched

import (
	"github.com/kfujino/descent/internal/health"
	"github.com/kfujino/descent/internal/model"
)

// buildReport summarizes the run from its terminal bookkeeping. It is a pure
// function of that state: calling it twice yields identical reports.
func (s *Scheduler) buildReport(completed map[string]bool, failed, blocked map[string]health.Category) model.RunReport {
	done := make([]string, 0, len(completed))
	for id := range completed {
		done = append(done, id)
	}
	model.SortIDs(done)

	return model.RunReport{
		TotalTasks:         s.graph.Len(),
		Completed:          done,
		Failed:             outcomes(failed),
		Blocked:            outcomes(blocked),
		Tiers:              s.graph.Tiers(),
		CriticalPathLength: s.graph.CriticalPathLength(),
		SessionOutcome:     s.sess.Status(),
		TerminalState:      s.State(),
	}
}

func outcomes(m map[string]health.Category) []model.TaskOutcome {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	model.SortIDs(ids)

	out := make([]model.TaskOutcome, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.TaskOutcome{TaskID: id, Category: string(m[id])})
	}
	return out
}
