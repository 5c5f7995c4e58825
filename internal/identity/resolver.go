// Package identity waits for a participant's durable identity, which the host
// resolves asynchronously after the player connects.
package identity

import (
	"log/slog"
	"sync"

	"github.com/opstrack/recorder/internal/config"
	"github.com/opstrack/recorder/internal/scheduler"
)

// Lookup returns the identity, or "" if it is not available yet.
type Lookup func() string

// Resolver reschedules lookups on the scheduler until they succeed or the
// configured number of attempts is used up.
type Resolver struct {
	sched  scheduler.Scheduler
	store  *config.Store
	logger *slog.Logger

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]scheduler.Cancel
	closed  bool
}

// NewResolver creates a resolver. identity.maxRetries and identity.retryDelay
// are read from store on every attempt.
func NewResolver(sched scheduler.Scheduler, store *config.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		sched:   sched,
		store:   store,
		logger:  logger,
		pending: make(map[uint64]scheduler.Cancel),
	}
}

// Resolve calls lookup now and, while it returns "", every retryDelay until
// maxRetries further attempts have been made. Exactly one of onResolved or
// onGiveUp is called unless the resolver is closed first.
func (r *Resolver) Resolve(participantID int, lookup Lookup, onResolved func(identity string), onGiveUp func(attempts int)) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.seq++
	id := r.seq
	r.mu.Unlock()

	r.attempt(id, participantID, 0, lookup, onResolved, onGiveUp)
}

func (r *Resolver) attempt(id uint64, participantID, attempt int, lookup Lookup, onResolved func(string), onGiveUp func(int)) {
	r.mu.Lock()
	delete(r.pending, id)
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if identity := lookup(); identity != "" {
		onResolved(identity)
		return
	}

	s := r.store.Settings().Identity
	if attempt < s.MaxRetries {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		r.pending[id] = r.sched.After(s.RetryDelay, func() {
			r.attempt(id, participantID, attempt+1, lookup, onResolved, onGiveUp)
		})
		r.mu.Unlock()
		return
	}

	r.logger.Warn("Gave up waiting for identity", "player", participantID, "attempts", attempt)
	if onGiveUp != nil {
		onGiveUp(attempt)
	}
}

// Pending returns the number of scheduled retries.
func (r *Resolver) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close cancels every scheduled retry. Later Resolve calls do nothing.
func (r *Resolver) Close() {
	r.mu.Lock()
	r.closed = true
	pending := r.pending
	r.pending = make(map[uint64]scheduler.Cancel)
	r.mu.Unlock()

	for _, cancel := range pending {
		cancel()
	}
}
