// Package health tracks task failures for a run, drives bounded retries, and
// escalates through degradation levels under sustained failure.
package health

import (
	"sync"
	"time"
)

// Category classifies a task failure.
type Category string

const (
	CategoryTimeout            Category = "timeout"
	CategoryResourceExhaustion Category = "resource_exhaustion"
	CategoryDependencyFault    Category = "dependency_fault"
	CategoryUnknown            Category = "unknown"
)

// Level is the current degradation throttle state.
type Level int

const (
	LevelNone Level = iota
	LevelMinimal
	LevelModerate
	LevelSevere
	LevelEmergency
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelMinimal:
		return "minimal"
	case LevelModerate:
		return "moderate"
	case LevelSevere:
		return "severe"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Thresholds configures escalation: a level is entered once the trailing
// window holds at least that many failures.
type Thresholds struct {
	Window    time.Duration
	Cooldown  time.Duration
	Minimal   int
	Moderate  int
	Severe    int
	Emergency int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Window:    2 * time.Minute,
		Cooldown:  time.Minute,
		Minimal:   2,
		Moderate:  4,
		Severe:    6,
		Emergency: 10,
	}
}

type failure struct {
	at       time.Time
	category Category
}

// Monitor is the per-run health record. Reset at run boundaries by building
// a fresh Monitor.
type Monitor struct {
	mu          sync.Mutex
	thresholds  Thresholds
	retryBudget int

	failures   []failure
	byCategory map[Category]int
	attempts   map[string]int // task id -> failed attempts

	level        Level
	lastFailure  time.Time
	lastStepDown time.Time

	now func() time.Time // test hook
}

// NewMonitor creates a monitor with the given per-task retry budget.
func NewMonitor(retryBudget int, thresholds Thresholds) *Monitor {
	if thresholds.Window <= 0 {
		thresholds = DefaultThresholds()
	}
	return &Monitor{
		thresholds:  thresholds,
		retryBudget: retryBudget,
		byCategory:  make(map[Category]int),
		attempts:    make(map[string]int),
		level:       LevelNone,
		now:         time.Now,
	}
}

// RecordFailure increments the rolling counters for taskID and may raise the
// degradation level.
func (m *Monitor) RecordFailure(taskID string, category Category) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.failures = append(m.failures, failure{at: now, category: category})
	m.byCategory[category]++
	m.attempts[taskID]++
	m.lastFailure = now

	m.prune(now)
	if lv := m.levelFor(len(m.failures)); lv > m.level {
		m.level = lv
	}
}

// ShouldRetry reports whether taskID still has retry budget and the run is
// not degraded to severe or worse.
func (m *Monitor) ShouldRetry(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.decay(m.now())
	if m.level >= LevelSevere {
		return false
	}
	return m.attempts[taskID] <= m.retryBudget
}

// EscalationLevel returns the current degradation level, applying cooldown
// step-downs first.
func (m *Monitor) EscalationLevel() Level {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.decay(m.now())
	return m.level
}

// Attempts returns the failed attempt count for a task.
func (m *Monitor) Attempts(taskID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[taskID]
}

// CategoryCounts returns a copy of the per-category failure totals.
func (m *Monitor) CategoryCounts() map[Category]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[Category]int, len(m.byCategory))
	for c, n := range m.byCategory {
		out[c] = n
	}
	return out
}

// prune drops failures that left the trailing window.
func (m *Monitor) prune(now time.Time) {
	cutoff := now.Add(-m.thresholds.Window)
	i := 0
	for i < len(m.failures) && m.failures[i].at.Before(cutoff) {
		i++
	}
	m.failures = m.failures[i:]
}

// decay lowers the level one step per elapsed cooldown period without new
// failures.
func (m *Monitor) decay(now time.Time) {
	m.prune(now)
	if m.level == LevelNone || m.lastFailure.IsZero() {
		return
	}
	since := m.lastFailure
	if m.lastStepDown.After(since) {
		since = m.lastStepDown
	}
	if now.Sub(since) >= m.thresholds.Cooldown {
		m.level--
		m.lastStepDown = now
	}
}

func (m *Monitor) levelFor(windowFailures int) Level {
	switch {
	case windowFailures >= m.thresholds.Emergency:
		return LevelEmergency
	case windowFailures >= m.thresholds.Severe:
		return LevelSevere
	case windowFailures >= m.thresholds.Moderate:
		return LevelModerate
	case windowFailures >= m.thresholds.Minimal:
		return LevelMinimal
	default:
		return LevelNone
	}
}
