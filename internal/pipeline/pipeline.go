// Package pipeline buffers telemetry per category and ships it to the
// collector in bounded batches, backing off when the collector is unhealthy.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/opstrack/recorder/internal/config"
	"github.com/opstrack/recorder/internal/queue"
	"github.com/opstrack/recorder/internal/scheduler"
	"github.com/opstrack/recorder/internal/transport"
	"github.com/opstrack/recorder/pkg/core"
)

// Collector routes.
const (
	PathEvents   = "/events"
	PathMissions = "/missions"
)

// MissionEndPath returns the route that closes a mission.
func MissionEndPath(missionID string) string {
	return PathMissions + "/" + url.PathEscape(missionID) + "/end"
}

// Stats is a point-in-time view of the pipeline.
type Stats struct {
	Queued      map[Category]int
	InFlight    int
	BreakerOpen bool
	RetryAt     time.Time

	Enqueued uint64 // records accepted into a queue
	Rejected uint64 // records refused while the breaker was open
	Dropped  uint64 // queued records discarded by a failure
	Sent     uint64 // records in acknowledged requests
	Requests uint64
	Failures uint64
}

// QueuedTotal sums the queue lengths.
func (s Stats) QueuedTotal() int {
	n := 0
	for _, v := range s.Queued {
		n += v
	}
	return n
}

// Pipeline owns the five category queues, the flush timing and the circuit
// breaker. All state is guarded by mu; the transport is always called with
// mu released and its completions come back through the scheduler.
type Pipeline struct {
	store     *config.Store
	transport transport.Transport
	sched     scheduler.Scheduler
	logger    *slog.Logger

	mu          sync.Mutex
	connections *queue.Queue[core.ConnectionEvent]
	combat      *queue.Queue[core.CombatEvent]
	entities    *queue.Queue[core.Entity]
	states      *queue.Queue[core.EntityState]
	assignments *queue.Queue[string]
	missionID   string
	lastFlush   time.Time
	breakerOpen bool
	retryAt     time.Time
	inFlight    int
	flushPosted bool
	stats       Stats

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	enqueued  metric.Int64Counter
	dropped   metric.Int64Counter
	requests  metric.Int64Counter
}

// New creates a pipeline. Uses the global OTel meter for metrics (no-op if
// not configured).
func New(store *config.Store, tr transport.Transport, sched scheduler.Scheduler, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		store:       store,
		transport:   tr,
		sched:       sched,
		logger:      logger,
		connections: queue.New[core.ConnectionEvent](),
		combat:      queue.New[core.CombatEvent](),
		entities:    queue.New[core.Entity](),
		states:      queue.New[core.EntityState](),
		assignments: queue.New[string](),
	}

	m := meter()
	var err error

	p.queueSize, err = m.Int64ObservableGauge(
		"pipeline.queue.size",
		metric.WithDescription("Current number of records per category queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			for cat, n := range p.queueLens() {
				o.ObserveInt64(p.queueSize, int64(n),
					metric.WithAttributes(attribute.String("category", cat.String())))
			}
			return nil
		},
		p.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	p.enqueued, err = m.Int64Counter(
		"pipeline.records.enqueued",
		metric.WithDescription("Total records accepted into a queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating enqueued counter: %w", err)
	}

	p.dropped, err = m.Int64Counter(
		"pipeline.records.dropped",
		metric.WithDescription("Total records discarded by breaker or rejection"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	p.requests, err = m.Int64Counter(
		"pipeline.requests",
		metric.WithDescription("Total requests by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating requests counter: %w", err)
	}

	return p, nil
}

// SetMissionID sets the missionId carried by subsequent batches. Empty means
// null on the wire.
func (p *Pipeline) SetMissionID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.missionID = id
}

// EnqueueConnection queues a join or leave event.
func (p *Pipeline) EnqueueConnection(ev core.ConnectionEvent) {
	enqueue(p, p.connections, CategoryConnections, ev)
}

// EnqueueCombat queues a kill, self-harm or wounded event.
func (p *Pipeline) EnqueueCombat(ev core.CombatEvent) {
	enqueue(p, p.combat, CategoryCombat, ev)
}

// EnqueueEntity queues a new entity snapshot.
func (p *Pipeline) EnqueueEntity(e core.Entity) {
	enqueue(p, p.entities, CategoryEntities, e)
}

// EnqueueState queues a position sample.
func (p *Pipeline) EnqueueState(s core.EntityState) {
	enqueue(p, p.states, CategoryStates, s)
}

// EnqueueAssignment queues entity ids for assignment to the current mission.
func (p *Pipeline) EnqueueAssignment(entityIDs ...string) {
	if len(entityIDs) == 0 {
		return
	}
	enqueue(p, p.assignments, CategoryAssignments, entityIDs...)
}

func enqueue[T any](p *Pipeline, q *queue.Queue[T], cat Category, items ...T) {
	cfg := p.store.Settings().Pipeline

	p.mu.Lock()
	if !p.canSendLocked(p.sched.Now()) {
		p.stats.Rejected += uint64(len(items))
		p.mu.Unlock()
		return
	}
	n := q.Push(items...)
	p.stats.Enqueued += uint64(len(items))
	trigger := n > ceiling(cfg, cat) && !p.flushPosted
	if trigger {
		p.flushPosted = true
	}
	p.mu.Unlock()

	p.enqueued.Add(context.Background(), int64(len(items)),
		metric.WithAttributes(attribute.String("category", cat.String())))

	if trigger {
		p.logger.Debug("Queue over batch ceiling, flushing early", "category", cat.String(), "queued", n)
		p.sched.Post(p.flushEarly)
	}
}

// ceiling is the queue length above which a category forces an early flush.
// States are bounded per request anyway, so they use the per-flush maximum.
func ceiling(cfg config.PipelineConfig, cat Category) int {
	if cat == CategoryStates {
		return cfg.MaxStatesPerFlush
	}
	return cfg.MaxBatchSize
}

func (p *Pipeline) flushEarly() {
	p.mu.Lock()
	p.flushPosted = false
	if p.inFlight > 0 || !p.canSendLocked(p.sched.Now()) {
		p.mu.Unlock()
		return
	}
	req := p.buildLocked(p.sched.Now())
	p.mu.Unlock()

	p.send(req)
}

// Tick is driven by the sampling cadence. It flushes when nothing is in
// flight, something is queued and the flush interval has elapsed.
func (p *Pipeline) Tick(now time.Time) {
	interval := p.store.Settings().Pipeline.FlushInterval

	p.mu.Lock()
	if !p.canSendLocked(now) || p.inFlight > 0 || p.totalLocked() == 0 {
		p.mu.Unlock()
		return
	}
	if now.Sub(p.lastFlush) < interval {
		p.mu.Unlock()
		return
	}
	req := p.buildLocked(now)
	p.mu.Unlock()

	p.send(req)
}

// ForceFlush sends whatever is queued, ignoring the flush interval and any
// request already in flight. It reports whether a request was sent.
func (p *Pipeline) ForceFlush() bool {
	p.mu.Lock()
	if !p.canSendLocked(p.sched.Now()) || p.totalLocked() == 0 {
		p.mu.Unlock()
		return false
	}
	req := p.buildLocked(p.sched.Now())
	p.mu.Unlock()

	p.send(req)
	return req != nil
}

type request struct {
	body    []byte
	records int
}

// buildLocked drains the queues into one serialized batch and marks it in
// flight. Only the states queue can retain items.
func (p *Pipeline) buildLocked(now time.Time) *request {
	cfg := p.store.Settings().Pipeline

	batch := core.NewBatch(p.missionID)
	limit := min(p.states.Len(), cfg.MaxStatesPerFlush)
	batch.States = p.states.Peek(limit)
	batch.Entities = p.entities.Drain()
	batch.AssignEntityIDs = p.assignments.Drain()
	batch.ConnectionEvents = p.connections.Drain()
	batch.CombatEvents = p.combat.Drain()

	body, err := json.Marshal(batch)
	for err == nil && len(body) > cfg.MaxPayloadBytes && limit > cfg.MinStatesPerFlush {
		limit = max(limit/2, cfg.MinStatesPerFlush)
		batch.States = batch.States[:limit]
		body, err = json.Marshal(batch)
	}
	if err != nil {
		// Nothing in a Batch can fail to marshal. The queues are empty
		// under p.mu, so pushing back keeps their order.
		p.logger.Error("Failed to serialize batch", "error", err)
		p.entities.Push(batch.Entities...)
		p.assignments.Push(batch.AssignEntityIDs...)
		p.connections.Push(batch.ConnectionEvents...)
		p.combat.Push(batch.CombatEvents...)
		return nil
	}

	p.states.TakeFront(limit)

	p.lastFlush = now
	p.inFlight++
	p.stats.Requests++

	if retained := p.states.Len(); retained > 0 {
		p.logger.Debug("States retained for next flush", "sent", limit, "retained", retained)
	}
	p.logger.Debug("Sending batch",
		"records", batch.Len(),
		"bytes", len(body),
		"connections", len(batch.ConnectionEvents),
		"combat", len(batch.CombatEvents),
		"entities", len(batch.Entities),
		"states", len(batch.States),
		"assignments", len(batch.AssignEntityIDs),
	)
	return &request{body: body, records: batch.Len()}
}

func (p *Pipeline) send(req *request) {
	if req == nil {
		return
	}
	p.transport.Post(PathEvents, req.body, func(res transport.Result) {
		p.sched.Post(func() { p.complete(req, res) })
	})
}

func (p *Pipeline) complete(req *request, res transport.Result) {
	if res.OK() {
		p.mu.Lock()
		p.stats.Sent += uint64(req.records)
		p.mu.Unlock()
		p.OnSuccess()
		return
	}
	if res.Err != nil {
		p.logger.Warn("Batch request failed", "result", res.String(), "error", res.Err)
	}
	p.OnFailure(res.StatusCode, res.Timeout)
}

// OnSuccess records a delivered batch.
func (p *Pipeline) OnSuccess() {
	p.mu.Lock()
	p.releaseLocked()
	p.mu.Unlock()

	p.requests.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", "ok")))
}

// OnFailure records a failed batch. Unavailability opens the breaker and
// discards every queue; a client error only loses the payload itself.
func (p *Pipeline) OnFailure(status int, timeout bool) {
	p.mu.Lock()
	p.releaseLocked()
	p.stats.Failures++
	if !opensBreaker(status, timeout) {
		p.mu.Unlock()
		p.logger.Error("Collector rejected batch, payload dropped", "status", status)
		p.requests.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", "rejected")))
		return
	}
	dropped := p.openBreakerLocked(p.sched.Now())
	cooldown := p.store.Settings().Pipeline.Cooldown
	p.mu.Unlock()

	p.logger.Warn(fmt.Sprintf("API backoff triggered. Will retry in %d seconds.", int(cooldown.Seconds())),
		"status", status, "timeout", timeout, "dropped", dropped)
	p.requests.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", "unavailable")))
}

func opensBreaker(status int, timeout bool) bool {
	return timeout || status == 0 || status >= 500
}

func (p *Pipeline) releaseLocked() {
	if p.inFlight > 0 {
		p.inFlight--
	}
}

// openBreakerLocked opens the breaker and returns how many queued records
// were discarded.
func (p *Pipeline) openBreakerLocked(now time.Time) int {
	p.breakerOpen = true
	p.retryAt = now.Add(p.store.Settings().Pipeline.Cooldown)

	dropped := 0
	for cat, n := range p.clearLocked() {
		dropped += n
		if n > 0 {
			p.dropped.Add(context.Background(), int64(n), metric.WithAttributes(
				attribute.String("category", cat.String()),
				attribute.String("reason", "breaker"),
			))
		}
	}
	p.stats.Dropped += uint64(dropped)
	return dropped
}

// canSendLocked closes the breaker once the cooldown has elapsed.
func (p *Pipeline) canSendLocked(now time.Time) bool {
	if !p.breakerOpen {
		return true
	}
	if now.Before(p.retryAt) {
		return false
	}
	p.breakerOpen = false
	p.logger.Info("API re-enabled after cooldown")
	return true
}

func (p *Pipeline) clearLocked() map[Category]int {
	return map[Category]int{
		CategoryConnections: p.connections.Clear(),
		CategoryCombat:      p.combat.Clear(),
		CategoryEntities:    p.entities.Clear(),
		CategoryStates:      p.states.Clear(),
		CategoryAssignments: p.assignments.Clear(),
	}
}

func (p *Pipeline) totalLocked() int {
	return p.connections.Len() + p.combat.Len() + p.entities.Len() +
		p.states.Len() + p.assignments.Len()
}

func (p *Pipeline) queueLens() map[Category]int {
	return map[Category]int{
		CategoryConnections: p.connections.Len(),
		CategoryCombat:      p.combat.Len(),
		CategoryEntities:    p.entities.Len(),
		CategoryStates:      p.states.Len(),
		CategoryAssignments: p.assignments.Len(),
	}
}

// Stats returns a copy of the counters and queue lengths.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Queued = p.queueLens()
	s.InFlight = p.inFlight
	s.BreakerOpen = p.breakerOpen
	s.RetryAt = p.retryAt
	return s
}

// Pending returns the total number of queued records.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalLocked()
}

// BreakerOpen reports whether sending is suspended.
func (p *Pipeline) BreakerOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.breakerOpen
}
