package tracker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opstrack/recorder/internal/config"
	"github.com/opstrack/recorder/internal/scheduler"
	"github.com/opstrack/recorder/pkg/core"
	"github.com/opstrack/recorder/pkg/host"
)

type staticSource []host.Controlled

func (s staticSource) Controlled() []host.Controlled { return s }

type countingEntities struct {
	created map[int]string
}

func (e *countingEntities) GetOrCreate(pid int, name, faction string) string {
	if id, ok := e.created[pid]; ok {
		return id
	}
	id := fmt.Sprintf("entity-%d", pid)
	e.created[pid] = id
	return id
}

type sink struct {
	states []core.EntityState
	ticks  []time.Time
}

func (s *sink) EnqueueState(st core.EntityState) { s.states = append(s.states, st) }
func (s *sink) Tick(now time.Time) { s.ticks = append(s.ticks, now) }

func newTracker() (*Tracker, *sink, *countingEntities, *scheduler.Fake, *config.Store) {
	var set config.Settings
	set.Sampling.Interval = time.Second
	store := config.NewStore(set)
	sched := scheduler.NewFake(time.Date(2025, 12, 22, 21, 8, 9, 0, time.UTC))
	src := staticSource{
		{PlayerID: 1, Name: "Alpha", Faction: "US", Position: core.Position3D{X: 100, Y: 5, Z: 200}, Heading: 90, Alive: true},
		{PlayerID: 2, Name: "Bravo", Faction: "USSR", Position: core.Position3D{X: 300, Y: 6, Z: 400}, Heading: 180, Alive: false},
	}
	ents := &countingEntities{created: map[int]string{}}
	out := &sink{}
	tr := New(src, ents, out, sched, store, nil)
	return tr, out, ents, sched, store
}

func TestTracker_SamplesWhileRecording(t *testing.T) {
	tr, out, ents, sched, _ := newTracker()

	tr.Run()
	tr.Start()
	sched.Advance(time.Second)

	require.Len(t, out.states, 2)
	assert.Equal(t, "entity-1", out.states[0].EntityID)
	assert.Equal(t, sched.Now().Unix(), out.states[0].Timestamp)
	assert.Equal(t, 100.0, out.states[0].PosX)
	assert.Equal(t, 200.0, out.states[0].PosZ)
	assert.Equal(t, 90.0, out.states[0].Rotation)
	assert.True(t, out.states[0].IsAlive)
	assert.False(t, out.states[1].IsAlive)
	assert.Len(t, ents.created, 2)
	assert.Len(t, out.ticks, 1)

	sched.Advance(2 * time.Second)
	assert.Len(t, out.states, 6)
	assert.Len(t, ents.created, 2, "entities are reused across samples")
	assert.Len(t, out.ticks, 3)
}

func TestTracker_TicksWhileIdle(t *testing.T) {
	tr, out, _, sched, _ := newTracker()

	tr.Run()
	sched.Advance(3 * time.Second)

	assert.Empty(t, out.states)
	assert.Len(t, out.ticks, 3)
}

func TestTracker_StopSampling(t *testing.T) {
	tr, out, _, sched, _ := newTracker()

	tr.Run()
	tr.Start()
	sched.Advance(time.Second)
	tr.Stop()
	assert.False(t, tr.Sampling())
	sched.Advance(time.Second)

	assert.Len(t, out.states, 2)
	assert.Len(t, out.ticks, 2)
}

func TestTracker_RescheduleAndClose(t *testing.T) {
	tr, out, _, sched, store := newTracker()

	tr.Run()
	tr.Run()
	assert.Equal(t, 1, sched.Pending())

	set := store.Settings()
	set.Sampling.Interval = 500 * time.Millisecond
	store.Update(set)
	tr.Reschedule()
	assert.Equal(t, 1, sched.Pending())
	sched.Advance(time.Second)
	assert.Len(t, out.ticks, 2)

	tr.Close()
	sched.Advance(5 * time.Second)
	assert.Len(t, out.ticks, 2)
	assert.Equal(t, 0, sched.Pending())
}
