// Package storagetest holds the behaviour every storage.Backend shares, so
// each backend's tests can run the same cases.
package storagetest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opstrack/recorder/internal/storage"
	"github.com/opstrack/recorder/pkg/core"
)

var at = time.Date(2026, 2, 1, 18, 0, 0, 0, time.UTC)

// Run executes the shared cases against fresh backends from newBackend.
func Run(t *testing.T, newBackend func(t *testing.T) storage.Backend) {
	t.Run("MissionLifecycle", func(t *testing.T) { testMissionLifecycle(t, newBackend(t)) })
	t.Run("IngestIsScopedByMission", func(t *testing.T) { testIngestScoped(t, newBackend(t)) })
	t.Run("AssignmentsAreIdempotent", func(t *testing.T) { testAssignmentsIdempotent(t, newBackend(t)) })
	t.Run("EntitiesAreUpserted", func(t *testing.T) { testEntityUpsert(t, newBackend(t)) })
	t.Run("AssignmentsBeforeStart", func(t *testing.T) { testAssignmentsBeforeStart(t, newBackend(t)) })
}

func batch(missionID string) *core.Batch {
	return core.NewBatch(missionID)
}

func join(name string) core.ConnectionEvent {
	return core.ConnectionEvent{GameIdentity: "id-" + name, Name: name, TimeStamp: "2026-02-01T18:00:00Z", EventTypeID: core.EventJoin}
}

func kill(victim string) core.CombatEvent {
	return core.CombatEvent{ActorName: "Environment", VictimName: victim, Weapon: "Unknown", TimeStamp: "2026-02-01T18:00:05Z", EventTypeID: core.EventKill}
}

func state(entityID string, ts int64) core.EntityState {
	return core.EntityState{EntityID: entityID, Timestamp: ts, PosX: 10, PosY: 20, PosZ: 1, Rotation: 90, IsAlive: true}
}

func testMissionLifecycle(t *testing.T, b storage.Backend) {
	ms := core.MissionStart{MissionID: "m-1", Name: "Op Anvil", MapName: "Everon"}
	require.NoError(t, b.StartMission(ms, at))
	assert.ErrorIs(t, b.StartMission(ms, at), storage.ErrDuplicateMission)

	s, err := b.Summary("m-1")
	require.NoError(t, err)
	assert.Equal(t, ms, s.Mission)
	assert.False(t, s.Ended)

	require.NoError(t, b.EndMission("m-1", at.Add(time.Hour)))
	require.NoError(t, b.EndMission("m-1", at.Add(2*time.Hour)))
	s, err = b.Summary("m-1")
	require.NoError(t, err)
	assert.True(t, s.Ended)

	assert.ErrorIs(t, b.EndMission("nope", at), storage.ErrUnknownMission)
	_, err = b.Summary("nope")
	assert.ErrorIs(t, err, storage.ErrUnknownMission)
}

func testIngestScoped(t *testing.T, b storage.Backend) {
	require.NoError(t, b.StartMission(core.MissionStart{MissionID: "m-1", Name: "A", MapName: "Arland"}, at))

	idle := batch("")
	idle.Entities = append(idle.Entities, core.Entity{EntityID: "e-0", Name: "Early"})
	idle.ConnectionEvents = append(idle.ConnectionEvents, join("Early"))
	require.NoError(t, b.IngestBatch(idle, at))

	rec := batch("m-1")
	rec.Entities = append(rec.Entities, core.Entity{EntityID: "e-1", Name: "Bob"})
	rec.States = append(rec.States, state("e-1", 1), state("e-1", 2))
	rec.AssignEntityIDs = append(rec.AssignEntityIDs, "e-0", "e-1")
	rec.ConnectionEvents = append(rec.ConnectionEvents, join("Bob"))
	rec.CombatEvents = append(rec.CombatEvents, kill("Bob"))
	require.NoError(t, b.IngestBatch(rec, at))

	s, err := b.Summary("m-1")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entities)
	assert.Equal(t, 2, s.States)
	assert.Equal(t, 1, s.Connections)
	assert.Equal(t, 1, s.Combat)
	assert.Equal(t, 1, s.Batches)

	s, err = b.Summary("")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entities)
	assert.Equal(t, 0, s.States)
	assert.Equal(t, 1, s.Connections)
	assert.Equal(t, 1, s.Batches)
}

func testAssignmentsIdempotent(t *testing.T, b storage.Backend) {
	require.NoError(t, b.StartMission(core.MissionStart{MissionID: "m-1"}, at))

	for range 2 {
		bt := batch("m-1")
		bt.AssignEntityIDs = append(bt.AssignEntityIDs, "e-1", "e-2")
		require.NoError(t, b.IngestBatch(bt, at))
	}

	s, err := b.Summary("m-1")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entities)
}

func testEntityUpsert(t *testing.T, b storage.Backend) {
	first := batch("")
	first.Entities = append(first.Entities, core.Entity{EntityID: "e-1", Name: "Bob"})
	require.NoError(t, b.IngestBatch(first, at))

	second := batch("")
	second.Entities = append(second.Entities, core.Entity{EntityID: "e-1", Name: "Robert"})
	require.NoError(t, b.IngestBatch(second, at))

	s, err := b.Summary("")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Entities)
	assert.Equal(t, 2, s.Batches)
}

func testAssignmentsBeforeStart(t *testing.T, b storage.Backend) {
	bt := batch("m-2")
	bt.AssignEntityIDs = append(bt.AssignEntityIDs, "e-1")
	require.NoError(t, b.IngestBatch(bt, at))

	_, err := b.Summary("m-2")
	assert.ErrorIs(t, err, storage.ErrUnknownMission)

	require.NoError(t, b.StartMission(core.MissionStart{MissionID: "m-2", Name: "Late"}, at))
	s, err := b.Summary("m-2")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Entities)
	assert.Equal(t, "Late", s.Mission.Name)
}
