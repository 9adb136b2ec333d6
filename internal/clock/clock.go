// Package clock is a small timer-wheel wrapper around stdlib
// time.Timer, used by the console's wait_till_entry timeout path so
// that callers get a single After-style channel without each caller
// re-deriving the Stop/drain dance.
package clock

import "time"

// Wheel schedules one-shot timers. The zero Wheel is usable.
type Wheel struct{}

// New returns a ready-to-use Wheel.
func New() *Wheel { return &Wheel{} }

// Timer wraps a time.Timer so callers can Stop it without leaking,
// exactly as the stdlib docs recommend for timers used with select.
type Timer struct {
	t *time.Timer
	C <-chan time.Time
}

// After schedules a one-shot timer that fires on Timer.C after d. A
// non-positive d fires as soon as the runtime schedules it, matching
// time.After's own behavior for zero/negative durations.
func (w *Wheel) After(d time.Duration) *Timer {
	t := time.NewTimer(d)
	return &Timer{t: t, C: t.C}
}

// Stop cancels the timer, draining a pending fire if one raced the
// Stop call. Safe to call more than once.
func (t *Timer) Stop() {
	if t.t.Stop() {
		return
	}
	select {
	case <-t.t.C:
	default:
	}
}

// Reset stops the timer (draining a pending fire) and reschedules it to
// fire after d, reusing the same Timer.C channel. Used by the
// scheduler's idle-window check, which rearms on every event arrival
// rather than allocating a fresh timer per tick.
func (t *Timer) Reset(d time.Duration) {
	t.Stop()
	t.t.Reset(d)
}
