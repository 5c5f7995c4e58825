package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opstrack/recorder/internal/config"
	"github.com/opstrack/recorder/internal/identity"
	"github.com/opstrack/recorder/internal/scheduler"
	"github.com/opstrack/recorder/pkg/core"
	"github.com/opstrack/recorder/pkg/host"
)

var testStart = time.Date(2025, 12, 22, 21, 8, 9, 0, time.UTC)

type fakePlayers struct {
	mu         sync.Mutex
	names      map[int]string
	identities map[int]string
}

func (p *fakePlayers) PlayerName(id int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.names[id]
}

func (p *fakePlayers) PlayerIdentity(id int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identities[id]
}

func (p *fakePlayers) setIdentity(id int, uid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identities[id] = uid
}

type fakeWorld struct{}

func (fakeWorld) WorldFile() string { return "worlds/Everon/Everon.ent" }

func (fakeWorld) IsFriendly(a, b string) bool { return a == b }

type sink struct {
	connections []core.ConnectionEvent
	combat      []core.CombatEvent
}

func (s *sink) EnqueueConnection(ev core.ConnectionEvent) { s.connections = append(s.connections, ev) }

func (s *sink) EnqueueCombat(ev core.CombatEvent) { s.combat = append(s.combat, ev) }

func testStore(mutate func(*config.Settings)) *config.Store {
	var s config.Settings
	s.Events.Connection = true
	s.Events.Kill = true
	s.Identity.MaxRetries = 20
	s.Identity.RetryDelay = 100 * time.Millisecond
	if mutate != nil {
		mutate(&s)
	}
	return config.NewStore(s)
}

func newPlayers() *fakePlayers {
	return &fakePlayers{
		names:      map[int]string{1: "Alpha", 2: "Bravo"},
		identities: map[int]string{1: "uid-alpha", 2: "uid-bravo"},
	}
}

func TestOptional(t *testing.T) {
	v, ok := Some(3).Get()
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.False(t, None[int]().IsSome())
	assert.Equal(t, 7, None[int]().Or(7))
	assert.False(t, OfString("").IsSome())
	assert.Equal(t, "x", OfString("x").Or("y"))
}

func TestNameOr(t *testing.T) {
	assert.Equal(t, Environment, NameOr(false, Some("ignored"), Some("ignored")))
	assert.Equal(t, "Alpha", NameOr(true, Some("Alpha"), Some("Rifleman")))
	assert.Equal(t, "Rifleman", NameOr(true, None[string](), Some("Rifleman")))
	assert.Equal(t, Unknown, NameOr(true, None[string](), None[string]()))
	assert.Equal(t, Unknown, FactionOr(OfString("")))
	assert.Equal(t, Unknown, WeaponOr(None[string]()))
	assert.Equal(t, "M16A2", WeaponOr(Some("M16A2")))
}

func TestNewCombatEvent(t *testing.T) {
	ev := NewCombatEvent(CombatFacts{
		Kind:           core.EventKill,
		ActorIdentity:  "0",
		ActorName:      "Environment",
		VictimIdentity: "uid-1",
		Distance:       12.6,
	}, testStart)

	assert.Equal(t, "", ev.ActorID)
	assert.Equal(t, "uid-1", ev.VictimID)
	assert.Equal(t, 13, ev.Distance)
	assert.Equal(t, "2025-12-22T21:08:09Z", ev.TimeStamp)
	assert.Equal(t, core.EventKill, ev.EventTypeID)
}

func TestRoundDistanceAndDistance(t *testing.T) {
	assert.Equal(t, 0, RoundDistance(-1))
	assert.Equal(t, 3, RoundDistance(2.5))
	assert.Equal(t, 5.0, Distance(core.Position3D{}, core.Position3D{X: 3, Z: 4}))
}

func TestConnectionSender_Join(t *testing.T) {
	players := newPlayers()
	sched := scheduler.NewFake(testStart)
	store := testStore(nil)
	out := &sink{}
	s := NewConnectionSender(players, identity.NewResolver(sched, store, nil), out, sched, store, nil)

	s.PlayerRegistered(1)
	s.PlayerDisconnected(2)

	require.Len(t, out.connections, 2)
	assert.Equal(t, core.ConnectionEvent{
		GameIdentity: "uid-alpha",
		Name:         "Alpha",
		TimeStamp:    "2025-12-22T21:08:09Z",
		EventTypeID:  core.EventJoin,
	}, out.connections[0])
	assert.Equal(t, core.EventLeave, out.connections[1].EventTypeID)
}

func TestConnectionSender_WaitsForIdentity(t *testing.T) {
	players := newPlayers()
	players.identities = map[int]string{}
	sched := scheduler.NewFake(testStart)
	store := testStore(nil)
	out := &sink{}
	s := NewConnectionSender(players, identity.NewResolver(sched, store, nil), out, sched, store, nil)

	s.PlayerRegistered(1)
	sched.Advance(300 * time.Millisecond)
	assert.Empty(t, out.connections)

	players.setIdentity(1, "uid-late")
	sched.Advance(100 * time.Millisecond)

	require.Len(t, out.connections, 1)
	assert.Equal(t, "uid-late", out.connections[0].GameIdentity)
	assert.Equal(t, "2025-12-22T21:08:09Z", out.connections[0].TimeStamp)
}

func TestConnectionSender_GivesUp(t *testing.T) {
	players := newPlayers()
	players.identities = map[int]string{}
	sched := scheduler.NewFake(testStart)
	store := testStore(func(s *config.Settings) { s.Identity.MaxRetries = 2 })
	out := &sink{}
	s := NewConnectionSender(players, identity.NewResolver(sched, store, nil), out, sched, store, nil)

	s.PlayerRegistered(1)
	sched.Advance(time.Second)

	assert.Empty(t, out.connections)
	assert.Equal(t, 0, sched.Pending())
}

func TestConnectionSender_Disabled(t *testing.T) {
	players := newPlayers()
	sched := scheduler.NewFake(testStart)
	store := testStore(func(s *config.Settings) { s.Events.Connection = false })
	out := &sink{}
	s := NewConnectionSender(players, identity.NewResolver(sched, store, nil), out, sched, store, nil)

	s.PlayerRegistered(1)

	assert.Empty(t, out.connections)
}

func soldier(handle uint64, playerID int, faction string, x float64) host.Combatant {
	return host.Combatant{
		Present:       true,
		Handle:        handle,
		PlayerID:      playerID,
		CharacterName: "Rifleman",
		Faction:       faction,
		Position:      core.Position3D{X: x},
	}
}

func newCombat(mutate func(*config.Settings)) (*CombatSender, *sink, *scheduler.Fake) {
	sched := scheduler.NewFake(testStart)
	out := &sink{}
	s := NewCombatSender(newPlayers(), fakeWorld{}, nil, out, sched, testStore(mutate), nil)
	return s, out, sched
}

func TestCombatSender_Kill(t *testing.T) {
	s, out, _ := newCombat(nil)

	ok := s.Killed(host.Damage{
		Victim: soldier(10, 2, "USSR", 0),
		Actor:  soldier(11, 1, "US", 120.4),
		Weapon: "M16A2",
	})

	require.True(t, ok)
	require.Len(t, out.combat, 1)
	ev := out.combat[0]
	assert.Equal(t, core.EventKill, ev.EventTypeID)
	assert.Equal(t, "uid-alpha", ev.ActorID)
	assert.Equal(t, "Alpha", ev.ActorName)
	assert.Equal(t, "US", ev.ActorFaction)
	assert.Equal(t, "uid-bravo", ev.VictimID)
	assert.Equal(t, "Bravo", ev.VictimName)
	assert.Equal(t, "M16A2", ev.Weapon)
	assert.Equal(t, 120, ev.Distance)
	assert.False(t, ev.IsTeamKill)
}

func TestCombatSender_TeamKillAndAI(t *testing.T) {
	s, out, _ := newCombat(nil)

	s.Killed(host.Damage{
		Victim: soldier(10, 0, "US", 0),
		Actor:  soldier(11, 1, "US", 10),
	})

	ev := out.combat[0]
	assert.True(t, ev.IsTeamKill)
	assert.Equal(t, "", ev.VictimID, "AI has no identity")
	assert.Equal(t, "Rifleman", ev.VictimName)
	assert.Equal(t, Unknown, ev.Weapon)
}

func TestCombatSender_SelfHarmAndEnvironment(t *testing.T) {
	s, out, _ := newCombat(nil)
	me := soldier(10, 1, "US", 0)

	s.Killed(host.Damage{Victim: me, Actor: me})
	s.Killed(host.Damage{Victim: me})

	require.Len(t, out.combat, 2)
	assert.Equal(t, core.EventSelfHarm, out.combat[0].EventTypeID)
	assert.Equal(t, core.EventKill, out.combat[1].EventTypeID)
	assert.Equal(t, Environment, out.combat[1].ActorName)
	assert.Equal(t, "", out.combat[1].ActorID)
	assert.Equal(t, Unknown, out.combat[1].ActorFaction)
	assert.False(t, out.combat[1].IsTeamKill)
	assert.Equal(t, 0, out.combat[1].Distance)
}

func TestCombatSender_WoundedSpamWindow(t *testing.T) {
	s, out, sched := newCombat(nil)
	d := host.Damage{Victim: soldier(10, 2, "USSR", 0), Actor: soldier(11, 1, "US", 5)}

	assert.True(t, s.Wounded(d))
	sched.Advance(50 * time.Millisecond)
	assert.False(t, s.Wounded(d), "suppressed within 200ms")
	sched.Advance(250 * time.Millisecond)
	assert.True(t, s.Wounded(d), "accepted 300ms after the first")

	require.Len(t, out.combat, 2)
	assert.Equal(t, core.EventWounded, out.combat[0].EventTypeID)
}

func TestCombatSender_KillsNeverSuppressed(t *testing.T) {
	s, out, _ := newCombat(nil)
	d := host.Damage{Victim: soldier(10, 2, "USSR", 0), Actor: soldier(11, 1, "US", 5)}

	s.Wounded(d)
	s.Killed(d)
	s.Killed(d)

	assert.Len(t, out.combat, 3)
}

func TestCombatSender_DisabledByKillToggle(t *testing.T) {
	s, out, _ := newCombat(func(s *config.Settings) { s.Events.Kill = false })
	d := host.Damage{Victim: soldier(10, 2, "USSR", 0), Actor: soldier(11, 1, "US", 5)}

	assert.False(t, s.Killed(d))
	assert.False(t, s.Wounded(d))
	assert.Empty(t, out.combat)
}
