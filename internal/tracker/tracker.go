// Package tracker samples controlled entity positions on the sampling cadence
// and drives the pipeline's flush timing from the same timer.
package tracker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/opstrack/recorder/internal/config"
	"github.com/opstrack/recorder/internal/scheduler"
	"github.com/opstrack/recorder/pkg/core"
	"github.com/opstrack/recorder/pkg/host"
)

// Entities resolves participants to entity ids.
type Entities interface {
	GetOrCreate(participantID int, name, faction string) string
}

// Sink receives samples and the flush tick.
type Sink interface {
	EnqueueState(core.EntityState)
	Tick(now time.Time)
}

// Tracker runs one Every timer for the lifetime of the recorder. Sampling is
// switched on and off with the recording session; the pipeline is ticked on
// every run either way.
type Tracker struct {
	source   host.Controllables
	entities Entities
	sink     Sink
	sched    scheduler.Scheduler
	store    *config.Store
	logger   *slog.Logger

	mu       sync.Mutex
	cancel   scheduler.Cancel
	interval time.Duration
	sampling bool
}

func New(source host.Controllables, entities Entities, sink Sink, sched scheduler.Scheduler, store *config.Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		source:   source,
		entities: entities,
		sink:     sink,
		sched:    sched,
		store:    store,
		logger:   logger,
	}
}

// Run schedules the cadence. Running twice does nothing.
func (t *Tracker) Run() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	t.interval = t.store.Settings().Sampling.Interval
	t.cancel = t.sched.Every(t.interval, t.run)
}

// Close cancels the cadence.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.sampling = false
}

// Reschedule applies a changed sampling interval.
func (t *Tracker) Reschedule() {
	t.mu.Lock()
	defer t.mu.Unlock()
	interval := t.store.Settings().Sampling.Interval
	if t.cancel == nil || interval == t.interval {
		return
	}
	t.cancel()
	t.interval = interval
	t.cancel = t.sched.Every(interval, t.run)
	t.logger.Info("Sampling interval changed", "interval", interval)
}

// Start enables position sampling.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sampling {
		t.logger.Warn("StartTracking called but already tracking")
		return
	}
	t.sampling = true
	t.logger.Info("EntityState tracking started", "interval", t.interval)
}

// Stop disables position sampling.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.sampling {
		return
	}
	t.sampling = false
	t.logger.Info("EntityState tracking stopped")
}

// Sampling reports whether positions are being captured.
func (t *Tracker) Sampling() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sampling
}

func (t *Tracker) run() {
	now := t.sched.Now()
	if t.Sampling() {
		t.Sample(now)
	}
	t.sink.Tick(now)
}

// Sample enqueues one state per controlled entity, creating entities for
// participants not yet seen this session.
func (t *Tracker) Sample(now time.Time) int {
	controlled := t.source.Controlled()
	for _, c := range controlled {
		id := t.entities.GetOrCreate(c.PlayerID, c.Name, c.Faction)
		t.sink.EnqueueState(core.EntityState{
			EntityID:  id,
			Timestamp: now.Unix(),
			PosX:      c.Position.X,
			PosY:      c.Position.Y,
			PosZ:      c.Position.Z,
			Rotation:  c.Heading,
			IsAlive:   c.Alive,
		})
	}
	return len(controlled)
}
