package scheduler

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opstrack/recorder/internal/queue"
)

// Loop is the production Scheduler: one goroutine drains posted callbacks
// in order. Timers fire on runtime timers and post onto the loop.
type Loop struct {
	tasks  *queue.Queue[func()]
	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewLoop creates a stopped loop. Call Start to begin running callbacks.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		tasks:  queue.New[func()](),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		l.wg.Add(1)
		go l.run()
	})
}

// Stop terminates the loop. Callbacks still queued are discarded and
// pending timers become no-ops.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
			for {
				fn, ok := l.tasks.Pop()
				if !ok {
					break
				}
				l.invoke(fn)
				select {
				case <-l.done:
					return
				default:
				}
			}
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Scheduled callback panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (l *Loop) stopped() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Now returns wall-clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post queues fn. It never blocks.
func (l *Loop) Post(fn func()) {
	if fn == nil || l.stopped() {
		return
	}
	l.tasks.Push(fn)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do posts fn and blocks until it has run. Once the loop is stopped fn runs
// on the caller's goroutine instead.
func (l *Loop) Do(fn func()) {
	var once sync.Once
	run := func() { once.Do(fn) }
	ran := make(chan struct{})
	l.Post(func() {
		defer close(ran)
		run()
	})

	select {
	case <-ran:
		return
	case <-l.done:
	}
	// fn may be running on the loop right now; wait for the loop to exit
	// before deciding.
	l.wg.Wait()
	run()
}

// After schedules fn once after d.
func (l *Loop) After(d time.Duration, fn func()) Cancel {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

// Every schedules fn every d. A tick that arrives while the previous one is
// still queued is skipped rather than stacked.
func (l *Loop) Every(d time.Duration, fn func()) Cancel {
	var cancelled, pending atomic.Bool
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-l.done:
				return
			case <-ticker.C:
				if !pending.CompareAndSwap(false, true) {
					continue
				}
				l.Post(func() {
					pending.Store(false)
					if !cancelled.Load() {
						fn()
					}
				})
			}
		}
	}()

	return func() {
		cancelled.Store(true)
		once.Do(func() { close(stop) })
	}
}
