package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testThresholds() Thresholds {
	return Thresholds{
		Window:    2 * time.Minute,
		Cooldown:  time.Minute,
		Minimal:   2,
		Moderate:  4,
		Severe:    6,
		Emergency: 10,
	}
}

// clockedMonitor returns a monitor driven by a fake clock.
func clockedMonitor(budget int) (*Monitor, *time.Time) {
	m := NewMonitor(budget, testThresholds())
	now := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestShouldRetry_BudgetExhaustion(t *testing.T) {
	m, _ := clockedMonitor(2)

	m.RecordFailure("1.1", CategoryUnknown)
	assert.True(t, m.ShouldRetry("1.1"), "first failure: retry")

	m.RecordFailure("1.1", CategoryUnknown)
	assert.True(t, m.ShouldRetry("1.1"), "second failure: last retry")

	m.RecordFailure("1.1", CategoryUnknown)
	assert.False(t, m.ShouldRetry("1.1"), "budget+1 attempts used")
	assert.Equal(t, 3, m.Attempts("1.1"))
}

func TestShouldRetry_PerTaskBudget(t *testing.T) {
	m, _ := clockedMonitor(1)

	m.RecordFailure("1.1", CategoryTimeout)
	m.RecordFailure("1.1", CategoryTimeout)
	assert.False(t, m.ShouldRetry("1.1"))
	assert.True(t, m.ShouldRetry("2"), "other tasks keep their own budget")
}

func TestEscalation_Levels(t *testing.T) {
	m, _ := clockedMonitor(10)

	assert.Equal(t, LevelNone, m.EscalationLevel())
	for i := 0; i < 2; i++ {
		m.RecordFailure("t", CategoryUnknown)
	}
	assert.Equal(t, LevelMinimal, m.EscalationLevel())
	for i := 0; i < 2; i++ {
		m.RecordFailure("t", CategoryUnknown)
	}
	assert.Equal(t, LevelModerate, m.EscalationLevel())
	for i := 0; i < 2; i++ {
		m.RecordFailure("t", CategoryUnknown)
	}
	assert.Equal(t, LevelSevere, m.EscalationLevel())
	for i := 0; i < 4; i++ {
		m.RecordFailure("t", CategoryUnknown)
	}
	assert.Equal(t, LevelEmergency, m.EscalationLevel())
}

func TestShouldRetry_DeniedAtSevere(t *testing.T) {
	m, _ := clockedMonitor(100)

	for i := 0; i < 6; i++ {
		m.RecordFailure("spread", CategoryResourceExhaustion)
	}
	require.Equal(t, LevelSevere, m.EscalationLevel())
	assert.False(t, m.ShouldRetry("fresh-task"), "no retries at severe regardless of budget")
}

func TestEscalation_CooldownStepsDownOneLevel(t *testing.T) {
	m, now := clockedMonitor(10)

	for i := 0; i < 6; i++ {
		m.RecordFailure("t", CategoryUnknown)
	}
	require.Equal(t, LevelSevere, m.EscalationLevel())

	*now = now.Add(61 * time.Second)
	assert.Equal(t, LevelModerate, m.EscalationLevel(), "one step per cooldown")
	assert.Equal(t, LevelModerate, m.EscalationLevel(), "no double step within one cooldown")

	*now = now.Add(61 * time.Second)
	assert.Equal(t, LevelMinimal, m.EscalationLevel())
	*now = now.Add(61 * time.Second)
	assert.Equal(t, LevelNone, m.EscalationLevel())
	*now = now.Add(61 * time.Second)
	assert.Equal(t, LevelNone, m.EscalationLevel(), "floor at none")
}

func TestCategoryCounts(t *testing.T) {
	m, _ := clockedMonitor(5)
	m.RecordFailure("a", CategoryTimeout)
	m.RecordFailure("b", CategoryTimeout)
	m.RecordFailure("c", CategoryDependencyFault)

	counts := m.CategoryCounts()
	assert.Equal(t, 2, counts[CategoryTimeout])
	assert.Equal(t, 1, counts[CategoryDependencyFault])
	assert.Equal(t, 0, counts[CategoryUnknown])
}

func TestSimplifyStrategy(t *testing.T) {
	s := SimplifyStrategy{}
	base := Params{Timeout: 80 * time.Second, EffortLimit: 8}

	first := s.ParamsFor(0, LevelNone, base)
	assert.Equal(t, base.Timeout, first.Timeout)
	assert.False(t, first.Simplified)

	retry := s.ParamsFor(1, LevelNone, base)
	assert.Equal(t, 40*time.Second, retry.Timeout)
	assert.Equal(t, 4, retry.EffortLimit)
	assert.True(t, retry.Simplified)

	second := s.ParamsFor(2, LevelNone, base)
	assert.Equal(t, 20*time.Second, second.Timeout)
	assert.Equal(t, 2, second.EffortLimit)
}

func TestSimplifyStrategy_DegradedJumpsToSimplest(t *testing.T) {
	s := SimplifyStrategy{}
	base := Params{Timeout: 80 * time.Second, EffortLimit: 8}

	degraded := s.ParamsFor(1, LevelModerate, base)
	gradual := s.ParamsFor(1, LevelNone, base)
	assert.Less(t, degraded.Timeout, gradual.Timeout)
	assert.LessOrEqual(t, degraded.EffortLimit, gradual.EffortLimit)
	assert.True(t, degraded.Simplified)
}

func TestSimplifyStrategy_Floors(t *testing.T) {
	s := SimplifyStrategy{MinTimeout: 5 * time.Second}
	base := Params{Timeout: 8 * time.Second, EffortLimit: 1}

	p := s.ParamsFor(3, LevelEmergency, base)
	assert.Equal(t, 5*time.Second, p.Timeout)
	assert.Equal(t, 1, p.EffortLimit)
}
