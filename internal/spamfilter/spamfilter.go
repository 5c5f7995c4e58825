// Package spamfilter suppresses repeated wounded events from one sustained
// damage source hitting the same victim.
package spamfilter

import (
	"time"
)

const (
	DefaultWindow         = 200 * time.Millisecond
	DefaultRetention      = 60 * time.Second
	DefaultSweepThreshold = 100
)

// Filter remembers when each victim/actor pair was last accepted.
// It is not safe for concurrent use.
type Filter struct {
	window         time.Duration
	retention      time.Duration
	sweepThreshold int

	last      map[string]time.Time
	lastSweep time.Time
}

// Option configures a Filter.
type Option func(*Filter)

// WithWindow overrides the suppression window.
func WithWindow(d time.Duration) Option {
	return func(f *Filter) { f.window = d }
}

// WithRetention overrides how old an entry must be before a sweep drops it.
func WithRetention(d time.Duration) Option {
	return func(f *Filter) { f.retention = d }
}

// WithSweepThreshold overrides the map size that enables sweeping.
func WithSweepThreshold(n int) Option {
	return func(f *Filter) { f.sweepThreshold = n }
}

// New creates a Filter with the default window, retention and threshold.
func New(opts ...Option) *Filter {
	f := &Filter{
		window:         DefaultWindow,
		retention:      DefaultRetention,
		sweepThreshold: DefaultSweepThreshold,
		last:           make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Key builds the map key for a pair.
func Key(victim, actor string) string {
	return victim + ":" + actor
}

// ShouldSuppress reports whether an event for the pair at now falls inside
// the window of the last accepted one. Accepted events update the pair's
// timestamp; suppressed ones leave it unchanged.
func (f *Filter) ShouldSuppress(victim, actor string, now time.Time) bool {
	f.maybeSweep(now)

	key := Key(victim, actor)
	if last, ok := f.last[key]; ok && now.Sub(last) < f.window {
		return true
	}
	f.last[key] = now
	return false
}

// Len returns the number of tracked pairs.
func (f *Filter) Len() int {
	return len(f.last)
}

// Reset forgets every pair.
func (f *Filter) Reset() {
	f.last = make(map[string]time.Time)
	f.lastSweep = time.Time{}
}

// Sweeping runs at most once per retention period.
func (f *Filter) maybeSweep(now time.Time) {
	if len(f.last) <= f.sweepThreshold {
		return
	}
	if !f.lastSweep.IsZero() && now.Sub(f.lastSweep) <= f.retention {
		return
	}
	threshold := now.Add(-f.retention)
	for key, ts := range f.last {
		if ts.Before(threshold) {
			delete(f.last, key)
		}
	}
	f.lastSweep = now
}
