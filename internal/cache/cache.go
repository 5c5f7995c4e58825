package cache

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/opstrack/recorder/pkg/core"
)

// Sink receives the records the cache produces. *pipeline.Pipeline
// implements it.
type Sink interface {
	EnqueueEntity(core.Entity)
	EnqueueAssignment(entityIDs ...string)
}

// Option configures an EntityCache.
type Option func(*EntityCache)

// WithIdentity sets how a participant's durable player identity is looked up
// for the entity snapshot. Without it playerId is always null.
func WithIdentity(fn func(participantID int) string) Option {
	return func(c *EntityCache) {
		c.identity = fn
	}
}

// WithRecording sets the check that decides whether a new entity is also
// assigned to the current mission.
func WithRecording(fn func() bool) Option {
	return func(c *EntityCache) {
		c.recording = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *EntityCache) {
		c.logger = l
	}
}

// EntityCache maps session participants to durable entity ids for the
// lifetime of one recording session. A respawn keeps the same entity.
type EntityCache struct {
	m        sync.Mutex
	entities map[int]string
	order    []string

	sink      Sink
	identity  func(int) string
	recording func() bool
	newID     func() string
	logger    *slog.Logger
}

func NewEntityCache(sink Sink, opts ...Option) *EntityCache {
	c := &EntityCache{
		entities:  make(map[int]string),
		sink:      sink,
		identity:  func(int) string { return "" },
		recording: func() bool { return false },
		newID:     uuid.NewString,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCreate returns the participant's entity id, creating and enqueueing
// the entity the first time the participant is seen this session.
func (c *EntityCache) GetOrCreate(participantID int, name, faction string) string {
	c.m.Lock()
	if id, ok := c.entities[participantID]; ok {
		c.m.Unlock()
		return id
	}
	id := c.newID()
	c.entities[participantID] = id
	c.order = append(c.order, id)
	c.m.Unlock()

	entity := core.Entity{
		EntityID: id,
		Name:     name,
		Type:     core.EntityPlayer,
		Faction:  faction,
	}
	if playerID := c.identity(participantID); playerID != "" {
		entity.PlayerID = &playerID
	}
	c.sink.EnqueueEntity(entity)
	if c.recording() {
		c.sink.EnqueueAssignment(id)
	}

	c.logger.Info("Created entity", "entityId", id, "player", participantID, "name", name)
	return id
}

// Lookup returns the cached entity id without creating one.
func (c *EntityCache) Lookup(participantID int) (string, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	id, ok := c.entities[participantID]
	return id, ok
}

// AllIDs returns every cached entity id in creation order.
func (c *EntityCache) AllIDs() []string {
	c.m.Lock()
	defer c.m.Unlock()
	return append([]string(nil), c.order...)
}

// Len returns the number of cached participants.
func (c *EntityCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.entities)
}

// Clear drops every mapping. The next session creates fresh entities, even
// for the same participants.
func (c *EntityCache) Clear() {
	c.m.Lock()
	defer c.m.Unlock()
	c.entities = make(map[int]string)
	c.order = nil
	c.logger.Info("Entity cache cleared")
}
