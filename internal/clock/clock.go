// Package clock provides an injectable time source so the authorization
// worker can be driven deterministically in tests.
//
// Production code uses Real(). Tests use Fake(), which only advances when
// Advance is called. Use WaitForTimers to block until a goroutine has
// registered its timer before advancing, which removes the race between
// timer registration and time advancement.
package clock

import "time"

// Clock abstracts the time operations used by the authorization worker.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTimer returns a Timer that delivers the current time on C after
	// d elapses. If d <= 0 the timer fires immediately.
	NewTimer(d time.Duration) *Timer
}

// Timer is a one-shot timer. Call Stop when the timer is abandoned so
// fake clocks do not count it as pending.
type Timer struct {
	// C delivers the fire time. Buffered with capacity 1.
	C <-chan time.Time

	stopFunc func() bool
}

// Stop prevents the Timer from firing. It returns false if the timer
// already fired or was stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer(d time.Duration) *Timer {
	timer := time.NewTimer(d)
	return &Timer{
		C:        timer.C,
		stopFunc: timer.Stop,
	}
}
