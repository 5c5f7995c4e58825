// Package scheduler provides the single cooperative timeline that every
// timer, retry and transport completion runs on.
package scheduler

import (
	"time"
)

// Cancel stops a scheduled callback. Calling it more than once is safe.
type Cancel func()

// Scheduler runs callbacks one at a time, to completion.
type Scheduler interface {
	// Now returns the scheduler's notion of the current time.
	Now() time.Time
	// After runs fn once after d.
	After(d time.Duration, fn func()) Cancel
	// Every runs fn every d until cancelled.
	Every(d time.Duration, fn func()) Cancel
	// Post runs fn as soon as the timeline is free.
	Post(fn func())
	// Do runs fn on the timeline and waits for it. It must not be called
	// from a callback already running on the timeline.
	Do(fn func())
}

// Nop is a Cancel that does nothing.
func Nop() {}
