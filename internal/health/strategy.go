package health

import "time"

// Params is the tunable parameter set handed to a task attempt. Retries run
// with progressively simplified parameters instead of repeating a failing
// configuration unchanged.
type Params struct {
	Attempt     int
	Timeout     time.Duration
	EffortLimit int
	Simplified  bool
}

// RetryStrategy supplies the parameter set for a retry attempt, selected by
// the monitor's escalation level.
type RetryStrategy interface {
	ParamsFor(attempt int, level Level, base Params) Params
}

// SimplifyStrategy degrades parameters step by step: each retry halves the
// remaining timeout and effort limit, and any escalation at moderate or
// above jumps straight to the simplest set.
type SimplifyStrategy struct {
	// MinTimeout bounds how far the timeout shrinks. Zero means 10s.
	MinTimeout time.Duration
}

func (s SimplifyStrategy) ParamsFor(attempt int, level Level, base Params) Params {
	p := base
	p.Attempt = attempt
	if attempt == 0 {
		return p
	}

	minTimeout := s.MinTimeout
	if minTimeout <= 0 {
		minTimeout = 10 * time.Second
	}

	steps := attempt
	if level >= LevelModerate {
		// Degraded run: skip the gradual ramp and go simplest immediately.
		steps = attempt + int(level)
	}

	for i := 0; i < steps; i++ {
		p.Timeout /= 2
		if p.EffortLimit > 1 {
			p.EffortLimit /= 2
		}
	}
	if p.Timeout < minTimeout {
		p.Timeout = minTimeout
	}
	if p.EffortLimit < 1 {
		p.EffortLimit = 1
	}
	p.Simplified = true
	return p
}
