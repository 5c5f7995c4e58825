// Package storage defines what the collector persists and how batches are
// checked before they reach a backend.
package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/opstrack/recorder/pkg/core"
)

var (
	ErrUnknownMission   = errors.New("unknown mission")
	ErrDuplicateMission = errors.New("mission already exists")
	ErrInvalidBatch     = errors.New("invalid batch")
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Mission management
	StartMission(ms core.MissionStart, at time.Time) error
	EndMission(missionID string, at time.Time) error

	// IngestBatch stores every record of a validated batch. Entities are
	// upserted by id and repeated assignments are absorbed.
	IngestBatch(b *core.Batch, at time.Time) error

	// Summary counts what was stored for a mission. The empty id selects
	// records sent while no mission was active.
	Summary(missionID string) (Summary, error)
}

// Summary is a per-mission record count.
type Summary struct {
	Mission     core.MissionStart
	Ended       bool
	Entities    int // assigned entities, or every entity for the empty id
	States      int
	Connections int
	Combat      int
	Batches     int
}

// Validate checks a decoded batch before it is stored.
func Validate(b *core.Batch) error {
	if b.MissionID != nil && *b.MissionID == "" {
		return fmt.Errorf("%w: empty missionId", ErrInvalidBatch)
	}
	for i, e := range b.Entities {
		if e.EntityID == "" {
			return fmt.Errorf("%w: entities[%d] has no entityId", ErrInvalidBatch, i)
		}
	}
	for i, s := range b.States {
		if s.EntityID == "" {
			return fmt.Errorf("%w: states[%d] has no entityId", ErrInvalidBatch, i)
		}
	}
	for i, ev := range b.ConnectionEvents {
		if !ev.EventTypeID.IsConnection() {
			return fmt.Errorf("%w: connectionEvents[%d] has eventTypeId %d", ErrInvalidBatch, i, ev.EventTypeID)
		}
		if _, err := core.ParseTimestamp(ev.TimeStamp); err != nil {
			return fmt.Errorf("%w: connectionEvents[%d]: %v", ErrInvalidBatch, i, err)
		}
	}
	for i, ev := range b.CombatEvents {
		if !ev.EventTypeID.IsCombat() {
			return fmt.Errorf("%w: combatEvents[%d] has eventTypeId %d", ErrInvalidBatch, i, ev.EventTypeID)
		}
		if _, err := core.ParseTimestamp(ev.TimeStamp); err != nil {
			return fmt.Errorf("%w: combatEvents[%d]: %v", ErrInvalidBatch, i, err)
		}
	}
	if len(b.AssignEntityIDs) > 0 && b.MissionID == nil {
		return fmt.Errorf("%w: assignEntityIds without missionId", ErrInvalidBatch)
	}
	return nil
}
