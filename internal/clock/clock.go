// Package clock provides an injectable time source so timed transitions
// can be driven deterministically in tests.
//
// Production code holds a Clock and calls Now/AfterFunc on it instead of
// the time package. Real() wraps the standard library; Fake() returns a
// clock that only moves when Advance is called.
package clock

import "time"

// Clock abstracts the two time operations the seat engine needs.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for d, then calls f in its own goroutine (real)
	// or inside Advance (fake). The returned Timer cancels the call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call from running. It returns false if the
	// call already ran or was already stopped.
	Stop() bool
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
