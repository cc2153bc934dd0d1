package model

// TaskOutcome records why a task did not complete.
type TaskOutcome struct {
	TaskID   string `yaml:"task_id" json:"task_id"`
	Category string `yaml:"category,omitempty" json:"category,omitempty"`
}

// RunReport is the summary handed to the reporting layer. It is always
// produced, even when the run could not fully complete, and building it twice
// from the same terminal state yields identical output.
type RunReport struct {
	TotalTasks         int            `yaml:"total_tasks" json:"total_tasks"`
	Completed          []string       `yaml:"completed" json:"completed"`
	Failed             []TaskOutcome  `yaml:"failed" json:"failed"`
	Blocked            []TaskOutcome  `yaml:"blocked" json:"blocked"`
	Tiers              map[string]int `yaml:"tiers" json:"tiers"`
	CriticalPathLength int            `yaml:"critical_path_length" json:"critical_path_length"`
	SessionOutcome     SessionStatus  `yaml:"session_outcome" json:"session_outcome"`
	TerminalState      RunState       `yaml:"terminal_state" json:"terminal_state"`
}

// CompletionRatio returns completed / total, or 0 for an empty run.
func (r RunReport) CompletionRatio() float64 {
	if r.TotalTasks == 0 {
		return 0
	}
	return float64(len(r.Completed)) / float64(r.TotalTasks)
}
