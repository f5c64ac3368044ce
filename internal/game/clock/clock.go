// Package clock provides the timer source combat timers are armed on.
//
// Production code runs on System, which wraps time.AfterFunc. Tests and the
// simulator run on Manual, which only moves when told to and fires due timers
// synchronously on the caller's goroutine, in deadline order.
package clock

import "time"

// Timer is a single armed wake-up.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer
	// already fired or was already stopped.
	Stop() bool
}

// Clock reports the current time and arms wake-ups.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// System returns a Clock backed by the wall clock.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
