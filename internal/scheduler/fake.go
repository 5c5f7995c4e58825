package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Fake is a deterministic Scheduler for tests. Nothing runs until the test
// calls Advance or RunPending, and everything runs on the caller's goroutine.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
	posted []func()
}

type fakeTimer struct {
	at        time.Time
	every     time.Duration
	fn        func()
	seq       int
	cancelled bool
}

// NewFake creates a Fake whose clock starts at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake clock.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Post queues fn for the next RunPending.
func (f *Fake) Post(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, fn)
}

// Do runs fn immediately on the caller's goroutine.
func (f *Fake) Do(fn func()) {
	fn()
}

// After registers a one-shot timer.
func (f *Fake) After(d time.Duration, fn func()) Cancel {
	return f.add(d, 0, fn)
}

// Every registers a repeating timer.
func (f *Fake) Every(d time.Duration, fn func()) Cancel {
	return f.add(d, d, fn)
}

func (f *Fake) add(d, every time.Duration, fn func()) Cancel {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{at: f.now.Add(d), every: every, fn: fn, seq: f.seq}
	f.timers = append(f.timers, t)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		t.cancelled = true
	}
}

// RunPending runs posted callbacks, including ones posted while running,
// and returns how many ran.
func (f *Fake) RunPending() int {
	ran := 0
	for {
		f.mu.Lock()
		if len(f.posted) == 0 {
			f.mu.Unlock()
			return ran
		}
		fn := f.posted[0]
		f.posted = f.posted[1:]
		f.mu.Unlock()

		fn()
		ran++
	}
}

// Advance moves the clock forward by d, firing due timers in time order and
// draining posted callbacks after each.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	f.RunPending()
	for {
		f.mu.Lock()
		t := f.nextDue(target)
		if t == nil {
			f.now = target
			f.mu.Unlock()
			break
		}
		f.now = t.at
		if t.every > 0 {
			t.at = t.at.Add(t.every)
		} else {
			t.cancelled = true
		}
		fn := t.fn
		f.mu.Unlock()

		fn()
		f.RunPending()
	}
	f.RunPending()
}

// Pending returns the number of live timers.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}

func (f *Fake) nextDue(target time.Time) *fakeTimer {
	live := f.timers[:0]
	for _, t := range f.timers {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	f.timers = live
	if len(live) == 0 {
		return nil
	}
	sort.SliceStable(live, func(i, j int) bool {
		if live[i].at.Equal(live[j].at) {
			return live[i].seq < live[j].seq
		}
		return live[i].at.Before(live[j].at)
	})
	if live[0].at.After(target) {
		return nil
	}
	return live[0]
}
