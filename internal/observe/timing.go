package observe

import "time"

// Clock returns the current time. Tests replace it to get stable reports.
type Clock func() time.Time

// Timing records start/end timestamps only
type Timing struct {
	StartedAt   time.Time
	CompletedAt time.Time
	now         Clock
}

// NewTiming creates timing with the current start time
func NewTiming(now Clock) *Timing {
	if now == nil {
		now = time.Now
	}
	return &Timing{
		StartedAt: now(),
		now:       now,
	}
}

// Complete records completion time. Later calls keep the first value.
func (t *Timing) Complete() {
	if t.CompletedAt.IsZero() {
		t.CompletedAt = t.now()
	}
}

// Duration returns elapsed time, up to now while still running
func (t *Timing) Duration() time.Duration {
	if t.CompletedAt.IsZero() {
		return t.now().Sub(t.StartedAt)
	}
	return t.CompletedAt.Sub(t.StartedAt)
}
