// Package memory keeps collector data in process memory. It backs the
// collector when no database is configured and in tests.
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/opstrack/recorder/internal/storage"
	"github.com/opstrack/recorder/pkg/core"
)

// MissionRecord groups a mission with its lifetime. A record created by
// assignments that arrived first stays unannounced until the start.
type MissionRecord struct {
	Mission   core.MissionStart
	Announced bool
	StartedAt time.Time
	EndedAt   *time.Time
	Entities  map[string]struct{} // assigned entity ids
}

func newMissionRecord(id string) *MissionRecord {
	return &MissionRecord{
		Mission:  core.MissionStart{MissionID: id},
		Entities: make(map[string]struct{}),
	}
}

type scoped[T any] struct {
	missionID string
	record    T
}

// Backend stores collector data in memory
type Backend struct {
	missions map[string]*MissionRecord
	entities map[string]core.Entity

	states      []scoped[core.EntityState]
	connections []scoped[core.ConnectionEvent]
	combat      []scoped[core.CombatEvent]
	batches     map[string]int

	mu sync.RWMutex
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{
		missions: make(map[string]*MissionRecord),
		entities: make(map[string]core.Entity),
		batches:  make(map[string]int),
	}
}

func (b *Backend) Init() error {
	return nil
}

func (b *Backend) Close() error {
	return nil
}

func (b *Backend) StartMission(ms core.MissionStart, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.missions[ms.MissionID]
	if ok && m.Announced {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateMission, ms.MissionID)
	}
	if !ok {
		m = newMissionRecord(ms.MissionID)
		b.missions[ms.MissionID] = m
	}
	m.Mission = ms
	m.Announced = true
	m.StartedAt = at
	return nil
}

func (b *Backend) EndMission(missionID string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.missions[missionID]
	if !ok || !m.Announced {
		return fmt.Errorf("%w: %s", storage.ErrUnknownMission, missionID)
	}
	if m.EndedAt == nil {
		m.EndedAt = &at
	}
	return nil
}

func (b *Backend) IngestBatch(batch *core.Batch, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	missionID := ""
	if batch.MissionID != nil {
		missionID = *batch.MissionID
	}

	for _, e := range batch.Entities {
		b.entities[e.EntityID] = e
	}
	if len(batch.AssignEntityIDs) > 0 {
		m, ok := b.missions[missionID]
		if !ok {
			// assignments may race the mission start; keep them
			m = newMissionRecord(missionID)
			b.missions[missionID] = m
		}
		for _, id := range batch.AssignEntityIDs {
			m.Entities[id] = struct{}{}
		}
	}
	for _, s := range batch.States {
		b.states = append(b.states, scoped[core.EntityState]{missionID, s})
	}
	for _, ev := range batch.ConnectionEvents {
		b.connections = append(b.connections, scoped[core.ConnectionEvent]{missionID, ev})
	}
	for _, ev := range batch.CombatEvents {
		b.combat = append(b.combat, scoped[core.CombatEvent]{missionID, ev})
	}
	b.batches[missionID]++
	return nil
}

func count[T any](records []scoped[T], missionID string) int {
	n := 0
	for _, r := range records {
		if r.missionID == missionID {
			n++
		}
	}
	return n
}

func (b *Backend) Summary(missionID string) (storage.Summary, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := storage.Summary{
		States:      count(b.states, missionID),
		Connections: count(b.connections, missionID),
		Combat:      count(b.combat, missionID),
		Batches:     b.batches[missionID],
	}
	if missionID == "" {
		s.Entities = len(b.entities)
		return s, nil
	}

	m, ok := b.missions[missionID]
	if !ok || !m.Announced {
		return storage.Summary{}, fmt.Errorf("%w: %s", storage.ErrUnknownMission, missionID)
	}
	s.Mission = m.Mission
	s.Ended = m.EndedAt != nil
	s.Entities = len(m.Entities)
	return s, nil
}

// Mission returns a copy of the mission record.
func (b *Backend) Mission(missionID string) (MissionRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.missions[missionID]
	if !ok {
		return MissionRecord{}, false
	}
	return *m, true
}

// Entity returns the stored entity.
func (b *Backend) Entity(entityID string) (core.Entity, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entities[entityID]
	return e, ok
}

// CombatEvents returns the combat events of a mission in arrival order.
func (b *Backend) CombatEvents(missionID string) []core.CombatEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []core.CombatEvent
	for _, r := range b.combat {
		if r.missionID == missionID {
			out = append(out, r.record)
		}
	}
	return out
}

// ConnectionEvents returns the connection events of a mission in arrival order.
func (b *Backend) ConnectionEvents(missionID string) []core.ConnectionEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []core.ConnectionEvent
	for _, r := range b.connections {
		if r.missionID == missionID {
			out = append(out, r.record)
		}
	}
	return out
}
