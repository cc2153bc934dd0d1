package model

import "fmt"

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusReady      Status = "ready"
	StatusAssigned   Status = "assigned"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
)

type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionMerging  SessionStatus = "merging"
	SessionMerged   SessionStatus = "merged"
	SessionReverted SessionStatus = "reverted"
	SessionAborted  SessionStatus = "aborted"
)

type RunState string

const (
	RunIdle           RunState = "idle"
	RunDispatching    RunState = "dispatching"
	RunDraining       RunState = "draining"
	RunSuccess        RunState = "success"
	RunPartialFailure RunState = "partial_failure"
	RunDeadlock       RunState = "deadlock"
)

var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusFailed:    true,
	StatusBlocked:   true,
}

var terminalSessionStatuses = map[SessionStatus]bool{
	SessionMerged:   true,
	SessionReverted: true,
	SessionAborted:  true,
}

var terminalRunStates = map[RunState]bool{
	RunSuccess:        true,
	RunPartialFailure: true,
	RunDeadlock:       true,
}

// Task status transitions. A granted retry releases a failed attempt back to
// ready instead of going terminal, so running → ready is legal.
var validTaskTransitions = map[Status]map[Status]bool{
	StatusNotStarted: {
		StatusReady:   true,
		StatusBlocked: true,
	},
	StatusReady: {
		StatusAssigned: true,
		StatusBlocked:  true,
	},
	StatusAssigned: {
		StatusRunning: true,
		StatusReady:   true, // dispatch rejected before execution started
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusReady:     true, // retry granted
	},
}

var validSessionTransitions = map[SessionStatus]map[SessionStatus]bool{
	SessionOpen: {
		SessionMerging:  true,
		SessionReverted: true,
		SessionAborted:  true,
	},
	SessionMerging: {
		SessionMerged:   true,
		SessionReverted: true, // merge failure falls back to revert
	},
}

func IsTerminal(s Status) bool {
	return terminalStatuses[s]
}

func IsSessionTerminal(s SessionStatus) bool {
	return terminalSessionStatuses[s]
}

func IsRunTerminal(s RunState) bool {
	return terminalRunStates[s]
}

func ValidateTaskTransition(from, to Status) error {
	if IsTerminal(from) {
		return fmt.Errorf("cannot transition from terminal status %q", from)
	}
	allowed, ok := validTaskTransitions[from]
	if !ok {
		return fmt.Errorf("unknown status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid task transition: %q → %q", from, to)
	}
	return nil
}

func ValidateSessionTransition(from, to SessionStatus) error {
	if IsSessionTerminal(from) {
		return fmt.Errorf("cannot transition from terminal session status %q", from)
	}
	allowed, ok := validSessionTransitions[from]
	if !ok {
		return fmt.Errorf("unknown session status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid session transition: %q → %q", from, to)
	}
	return nil
}
