package pipeline

import (
	"time"
)

// RepeatTimer fires once every interval when polled with Tick.
type RepeatTimer struct {
	interval time.Duration
	start    time.Time
	now      func() time.Time
}

// NewRepeatTimer starts a timer with the given interval.
func NewRepeatTimer(interval time.Duration) *RepeatTimer {
	return newRepeatTimer(interval, time.Now)
}

func newRepeatTimer(interval time.Duration, now func() time.Time) *RepeatTimer {
	return &RepeatTimer{
		interval: interval,
		start:    now(),
		now:      now,
	}
}

// Tick reports whether the interval has elapsed and, if so, restarts it.
func (rt *RepeatTimer) Tick() bool {
	now := rt.now()
	if now.Sub(rt.start) >= rt.interval {
		rt.start = now
		return true
	}
	return false
}
