package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opstrack/recorder/internal/collector"
	"github.com/opstrack/recorder/internal/config"
	"github.com/opstrack/recorder/internal/dispatcher"
	"github.com/opstrack/recorder/internal/pipeline"
	"github.com/opstrack/recorder/internal/scheduler"
	"github.com/opstrack/recorder/internal/storage/memory"
	"github.com/opstrack/recorder/internal/transport"
	"github.com/opstrack/recorder/pkg/core"
	"github.com/opstrack/recorder/pkg/host"
)

type fakeHost struct {
	mu         sync.Mutex
	world      string
	names      map[int]string
	identities map[int]string
	controlled []host.Controlled
	panics     bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		world:      "worlds/Eden/Eden.ent",
		names:      map[int]string{1: "Alpha", 2: "Bravo"},
		identities: map[int]string{1: "uid-alpha", 2: "uid-bravo"},
	}
}

func (h *fakeHost) PlayerName(id int) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panics {
		panic("host lookup failed")
	}
	return h.names[id]
}

func (h *fakeHost) PlayerIdentity(id int) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.identities[id]
}

func (h *fakeHost) WorldFile() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.world
}

func (h *fakeHost) IsFriendly(a, b string) bool { return a == b }

func (h *fakeHost) Controlled() []host.Controlled {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]host.Controlled(nil), h.controlled...)
}

// blockingHost holds the first Controlled call until release is closed.
type blockingHost struct {
	*fakeHost
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (h *blockingHost) Controlled() []host.Controlled {
	h.once.Do(func() {
		close(h.entered)
		<-h.release
	})
	return h.fakeHost.Controlled()
}

type postCall struct {
	path string
	body []byte
	done func(transport.Result)
}

type fakeTransport struct {
	mu    sync.Mutex
	calls []*postCall
}

func (f *fakeTransport) Post(path string, body []byte, done func(transport.Result)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, &postCall{path: path, body: body, done: done})
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) call(t *testing.T, i int) *postCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Less(t, i, len(f.calls), "no request #%d", i)
	return f.calls[i]
}

func (f *fakeTransport) batch(t *testing.T, i int) core.Batch {
	t.Helper()
	c := f.call(t, i)
	require.Equal(t, pipeline.PathEvents, c.path)
	var b core.Batch
	require.NoError(t, json.Unmarshal(c.body, &b))
	return b
}

func testSettings() config.Settings {
	var s config.Settings
	s.API = config.APIConfig{BaseURL: "http://collector.test", APIKey: "secret"}
	s.Events = config.EventsConfig{Connection: true, Kill: true}
	s.Identity = config.IdentityConfig{MaxRetries: 3, RetryDelay: 100 * time.Millisecond}
	s.Pipeline = config.PipelineConfig{
		FlushInterval:     time.Second,
		MaxBatchSize:      25,
		MaxStatesPerFlush: 200,
		MinStatesPerFlush: 10,
		MaxPayloadBytes:   262144,
		Cooldown:          120 * time.Second,
	}
	s.Sampling.Interval = time.Second
	s.Mission.AssignDelay = 2 * time.Second
	s.Transport.Timeout = time.Second
	return s
}

type harness struct {
	app   *App
	host  *fakeHost
	tr    *fakeTransport
	sched *scheduler.Fake
	logs  *bytes.Buffer
}

func newHarness(t *testing.T, mutate func(*config.Settings)) *harness {
	t.Helper()
	s := testSettings()
	if mutate != nil {
		mutate(&s)
	}
	h := &harness{
		host:  newFakeHost(),
		tr:    &fakeTransport{},
		sched: scheduler.NewFake(time.Date(2025, 12, 22, 21, 8, 9, 0, time.UTC)),
		logs:  &bytes.Buffer{},
	}
	a, err := New(config.NewStore(s), Options{
		Host:      h.host,
		Sched:     h.sched,
		Logger:    slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Transport: h.tr,
	})
	require.NoError(t, err)
	a.Start()
	t.Cleanup(func() { a.tracker.Close() })
	h.app = a
	return h
}

func (h *harness) rcon(command string, args ...string) (any, error) {
	return h.app.Dispatcher().Dispatch(dispatcher.Event{
		Command:   command,
		Args:      args,
		Caller:    dispatcher.Caller{Source: dispatcher.SourceRCON},
		Timestamp: time.Now(),
	})
}

func TestNew_RequiresBaseURL(t *testing.T) {
	s := testSettings()
	s.API.BaseURL = ""

	_, err := New(config.NewStore(s), Options{Host: newFakeHost(), Sched: scheduler.NewFake(time.Now())})
	assert.ErrorIs(t, err, config.ErrNoBaseURL)
}

func TestNew_RequiresHostAndScheduler(t *testing.T) {
	store := config.NewStore(testSettings())

	_, err := New(store, Options{Sched: scheduler.NewFake(time.Now())})
	assert.Error(t, err)
	_, err = New(store, Options{Host: newFakeHost()})
	assert.Error(t, err)
}

func TestScenario_StartSendsMissionStart(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.rcon(CmdStart, `"Test`, `Op"`)
	require.NoError(t, err)
	assert.Equal(t, "Recording started: Test Op", res)
	assert.True(t, h.app.Session().IsRecording())

	require.Equal(t, 1, h.tr.count())
	c := h.tr.call(t, 0)
	assert.Equal(t, pipeline.PathMissions, c.path)

	var body map[string]any
	require.NoError(t, json.Unmarshal(c.body, &body))
	assert.Len(t, body, 3)
	assert.Equal(t, h.app.Session().MissionID(), body["missionId"])
	assert.Equal(t, "Test Op", body["name"])
	assert.Equal(t, "Everon", body["mapName"])
}

func TestScenario_TwoJoinsOneRequest(t *testing.T) {
	h := newHarness(t, nil)

	h.app.PlayerRegistered(1)
	h.sched.Advance(500 * time.Millisecond)
	h.app.PlayerRegistered(2)
	assert.Equal(t, 0, h.tr.count())

	h.sched.Advance(500 * time.Millisecond)

	require.Equal(t, 1, h.tr.count())
	b := h.tr.batch(t, 0)
	assert.Nil(t, b.MissionID)
	require.Len(t, b.ConnectionEvents, 2)
	assert.Equal(t, "uid-alpha", b.ConnectionEvents[0].GameIdentity)
	assert.Equal(t, "uid-bravo", b.ConnectionEvents[1].GameIdentity)
	assert.Equal(t, core.EventJoin, b.ConnectionEvents[0].EventTypeID)
}

func TestScenario_WoundedSpamWindow(t *testing.T) {
	h := newHarness(t, nil)
	d := host.Damage{
		Victim: host.Combatant{Present: true, Handle: 10, PlayerID: 1, Faction: "US"},
		Actor:  host.Combatant{Present: true, Handle: 20, PlayerID: 2, Faction: "USSR"},
		Weapon: "AK-74",
	}

	h.app.Wounded(d)
	h.sched.Advance(50 * time.Millisecond)
	h.app.Wounded(d)
	assert.Equal(t, 1, h.app.Stats().Queued[pipeline.CategoryCombat])

	h.sched.Advance(250 * time.Millisecond)
	h.app.Wounded(d)
	assert.Equal(t, 2, h.app.Stats().Queued[pipeline.CategoryCombat])
}

func TestScenario_StopFlushesBeforeIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.host.controlled = []host.Controlled{
		{PlayerID: 1, Name: "Alpha", Faction: "US", Position: core.Position3D{X: 1, Y: 2, Z: 3}, Alive: true},
	}

	_, err := h.rcon(CmdStart, "Op")
	require.NoError(t, err)
	id := h.app.Session().MissionID()

	// First sample goes out immediately and stays in flight.
	h.sched.Advance(time.Second)
	require.Equal(t, 2, h.tr.count())
	h.sched.Advance(time.Second)
	require.Equal(t, 2, h.tr.count())
	require.Greater(t, h.app.Stats().QueuedTotal(), 0)

	res, err := h.rcon(CmdStop)
	require.NoError(t, err)
	assert.Equal(t, "Recording stopped: Op", res)

	require.Equal(t, 4, h.tr.count())
	forced := h.tr.batch(t, 2)
	require.NotNil(t, forced.MissionID)
	assert.Equal(t, id, *forced.MissionID)
	assert.Len(t, forced.States, 1)
	assert.Equal(t, pipeline.MissionEndPath(id), h.tr.call(t, 3).path)

	assert.False(t, h.app.Session().IsRecording())
	assert.Empty(t, h.app.EntityIDs())
	assert.Equal(t, 0, h.app.Stats().QueuedTotal())
}

func TestCmdStart_DefaultNameAndErrors(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.rcon(CmdStart)
	require.NoError(t, err)
	assert.Equal(t, "Recording started: Mission_2025-12-22T21:08:09Z", res)

	res, err = h.rcon(CmdStart, "Again")
	require.NoError(t, err)
	assert.Equal(t, MsgAlreadyRecording, res)
}

func TestCmdStart_UnknownMap(t *testing.T) {
	h := newHarness(t, nil)
	h.host.world = "worlds/Custom/Custom.ent"

	res, err := h.rcon(CmdStart, "Op")
	require.NoError(t, err)
	assert.Equal(t, MsgMapUnsupported, res)
	assert.False(t, h.app.Session().IsRecording())
	assert.Equal(t, 0, h.tr.count())
}

func TestCmdStart_ConfiguredMap(t *testing.T) {
	h := newHarness(t, func(s *config.Settings) {
		s.Maps = []config.MapEntry{{WorldIdentifier: "Custom", MapName: "Custom Island"}}
	})
	h.host.world = "worlds/Custom/Custom.ent"

	res, err := h.rcon(CmdStart, "Op")
	require.NoError(t, err)
	assert.Equal(t, "Recording started: Op", res)
	assert.Equal(t, "Custom Island", h.app.Session().Snapshot().MapName)
}

func TestCmdStop_WhileIdle(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.rcon(CmdStop)
	require.NoError(t, err)
	assert.Equal(t, MsgNotRecording, res)
}

func TestCommands_ChatRequiresAdmin(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.app.Dispatcher().Dispatch(dispatcher.Event{
		Command: CmdStart,
		Caller:  dispatcher.Caller{Source: dispatcher.SourceChat, PlayerID: 2},
	})
	assert.ErrorIs(t, err, dispatcher.ErrNotAdmin)
	assert.False(t, h.app.Session().IsRecording())

	res, err := h.app.Dispatcher().Dispatch(dispatcher.Event{
		Command: CmdStart,
		Args:    []string{"Op"},
		Caller:  dispatcher.Caller{Source: dispatcher.SourceChat, PlayerID: 1, IsAdmin: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "Recording started: Op", res)
}

func TestCmdStatus(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.rcon(CmdStatus)
	require.NoError(t, err)
	assert.Equal(t, "Idle. Queued 0, breaker closed.", res)

	_, err = h.rcon(CmdStart, "Op")
	require.NoError(t, err)
	res, err = h.rcon(CmdStatus)
	require.NoError(t, err)
	assert.Contains(t, res, "Recording Op on Everon")
}

func TestHooks_RecoverPanics(t *testing.T) {
	h := newHarness(t, nil)
	h.host.panics = true

	assert.NotPanics(t, func() { h.app.PlayerRegistered(1) })
	assert.NotPanics(t, func() { h.app.PlayerDisconnected(1) })
	assert.NotPanics(t, func() {
		h.app.Killed(host.Damage{Victim: host.Combatant{Present: true, Handle: 1, PlayerID: 1}})
	})
	assert.Contains(t, h.logs.String(), "Host hook panicked")
}

func TestStop_WaitsForRunningSample(t *testing.T) {
	fh := newFakeHost()
	fh.controlled = []host.Controlled{{PlayerID: 7, Name: "Alpha", Faction: "US", Alive: true}}
	bh := &blockingHost{fakeHost: fh, entered: make(chan struct{}), release: make(chan struct{})}

	s := testSettings()
	s.Sampling.Interval = 10 * time.Millisecond
	loop := scheduler.NewLoop(nil)
	loop.Start()
	defer loop.Stop()
	tr := &fakeTransport{}
	a, err := New(config.NewStore(s), Options{
		Host:      bh,
		Sched:     loop,
		Transport: tr,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	a.Start()
	defer a.tracker.Close()

	rcon := func(command string) (any, error) {
		return a.Dispatcher().Dispatch(dispatcher.Event{Command: command, Caller: dispatcher.Caller{Source: dispatcher.SourceRCON}})
	}
	_, err = rcon(CmdStart)
	require.NoError(t, err)

	select {
	case <-bh.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sampling never started")
	}

	stopped := make(chan any, 1)
	go func() {
		res, _ := rcon(CmdStop)
		stopped <- res
	}()
	select {
	case <-stopped:
		t.Fatal("stop finished while a sample was still running")
	case <-time.After(30 * time.Millisecond):
	}

	close(bh.release)
	select {
	case res := <-stopped:
		assert.Contains(t, res, "Recording stopped")
	case <-time.After(2 * time.Second):
		t.Fatal("stop never finished")
	}

	// Let a few more cadence ticks pass while idle.
	time.Sleep(50 * time.Millisecond)
	a.sched.Do(func() {})

	assert.False(t, a.Session().IsRecording())
	assert.Empty(t, a.EntityIDs())
	assert.Equal(t, 0, a.Stats().QueuedTotal())

	tr.mu.Lock()
	defer tr.mu.Unlock()
	for i, c := range tr.calls {
		if c.path != pipeline.PathEvents {
			continue
		}
		var b core.Batch
		require.NoError(t, json.Unmarshal(c.body, &b))
		assert.NotNil(t, b.MissionID, "request #%d sent without a mission", i)
	}
}

func TestPlayerSpawned_AssignedOnStart(t *testing.T) {
	h := newHarness(t, nil)

	h.app.PlayerSpawned(1, "Alpha", "US")
	h.app.PlayerSpawned(1, "Alpha", "US")
	ids := h.app.EntityIDs()
	require.Len(t, ids, 1)
	assert.Equal(t, 1, h.app.Stats().Queued[pipeline.CategoryEntities])
	assert.Equal(t, 0, h.app.Stats().Queued[pipeline.CategoryAssignments])

	_, err := h.rcon(CmdStart, "Op")
	require.NoError(t, err)
	id := h.app.Session().MissionID()

	h.sched.Advance(time.Second)
	require.Equal(t, 2, h.tr.count())
	b := h.tr.batch(t, 1)
	require.Len(t, b.Entities, 1)
	assert.Equal(t, ids[0], b.Entities[0].EntityID)
	assert.Equal(t, "uid-alpha", *b.Entities[0].PlayerID)
	assert.Empty(t, b.AssignEntityIDs)
	h.tr.call(t, 1).done(transport.Result{StatusCode: 200})

	// The assign delay elapses at 2s; the next tick carries the assignment.
	h.sched.Advance(2 * time.Second)
	require.Equal(t, 3, h.tr.count())
	b = h.tr.batch(t, 2)
	assert.Equal(t, ids, b.AssignEntityIDs)
	require.NotNil(t, b.MissionID)
	assert.Equal(t, id, *b.MissionID)
}

func TestPlayerSpawned_FallbacksAndBadIDs(t *testing.T) {
	h := newHarness(t, nil)

	h.app.PlayerSpawned(0, "Nobody", "US")
	assert.Empty(t, h.app.EntityIDs())

	h.app.PlayerSpawned(2, "Bravo", "")
	h.sched.Advance(time.Second)
	b := h.tr.batch(t, 0)
	require.Len(t, b.Entities, 1)
	assert.Equal(t, "Unknown", b.Entities[0].Faction)
	assert.Nil(t, b.MissionID)
}

func TestKilled_QueuesCombatEvent(t *testing.T) {
	h := newHarness(t, nil)

	h.app.Killed(host.Damage{
		Victim: host.Combatant{Present: true, Handle: 1, PlayerID: 1, Faction: "US"},
		Actor:  host.Combatant{Present: true, Handle: 2, PlayerID: 2, Faction: "US"},
		Weapon: "M16A2",
	})
	h.sched.Advance(time.Second)

	b := h.tr.batch(t, 0)
	require.Len(t, b.CombatEvents, 1)
	ev := b.CombatEvents[0]
	assert.Equal(t, core.EventKill, ev.EventTypeID)
	assert.Equal(t, "uid-bravo", ev.ActorID)
	assert.Equal(t, "uid-alpha", ev.VictimID)
	assert.True(t, ev.IsTeamKill)
}

func TestClose_StopsRecording(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.rcon(CmdStart, "Op")
	require.NoError(t, err)
	id := h.app.Session().MissionID()

	require.NoError(t, h.app.Close())

	assert.False(t, h.app.Session().IsRecording())
	assert.Equal(t, pipeline.MissionEndPath(id), h.tr.call(t, h.tr.count()-1).path)
}

func TestSettingsUpdateReschedulesTracker(t *testing.T) {
	h := newHarness(t, nil)
	s := testSettings()
	s.Sampling.Interval = 5 * time.Second
	h.app.store.Update(s)

	h.app.PlayerRegistered(1)
	h.sched.Advance(time.Second)
	assert.Equal(t, 0, h.tr.count())
	h.sched.Advance(4 * time.Second)
	assert.Equal(t, 1, h.tr.count())
}

func TestApp_RecordsIntoCollector(t *testing.T) {
	backend := memory.New()
	require.NoError(t, backend.Init())
	srv, err := collector.New(backend, "secret", nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	s := testSettings()
	s.API.BaseURL = ts.URL
	fh := newFakeHost()
	fh.controlled = []host.Controlled{{PlayerID: 1, Name: "Alpha", Faction: "US", Alive: true}}
	sched := scheduler.NewFake(time.Date(2025, 12, 22, 21, 8, 9, 0, time.UTC))
	a, err := New(config.NewStore(s), Options{Host: fh, Sched: sched})
	require.NoError(t, err)
	a.Start()
	defer a.Close()

	_, err = a.Dispatcher().Dispatch(dispatcher.Event{
		Command: CmdStart,
		Args:    []string{"Live"},
		Caller:  dispatcher.Caller{Source: dispatcher.SourceRCON},
	})
	require.NoError(t, err)
	id := a.Session().MissionID()

	require.Eventually(t, func() bool {
		sched.RunPending()
		_, err := backend.Summary(id)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	sched.Advance(time.Second)
	require.Eventually(t, func() bool {
		sched.RunPending()
		sum, err := backend.Summary(id)
		return err == nil && sum.States == 1 && sum.Entities == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err = a.Dispatcher().Dispatch(dispatcher.Event{Command: CmdStop, Caller: dispatcher.Caller{Source: dispatcher.SourceRCON}})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		sched.RunPending()
		sum, err := backend.Summary(id)
		return err == nil && sum.Ended
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, uint64(0), a.Stats().Failures)
}
