package mission

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opstrack/recorder/internal/config"
	"github.com/opstrack/recorder/internal/scheduler"
	"github.com/opstrack/recorder/internal/transport"
	"github.com/opstrack/recorder/pkg/core"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not currently recording")
)

// State is the recording state.
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// Publisher is the part of the pipeline the session drives.
type Publisher interface {
	SetMissionID(id string)
	SendMissionStart(ms core.MissionStart, done func(transport.Result)) error
	SendMissionEnd(missionID string, done func(transport.Result))
	EnqueueAssignment(entityIDs ...string)
	ForceFlush() bool
}

// Entities is the part of the entity cache the session needs.
type Entities interface {
	AllIDs() []string
	Clear()
}

// Sampler is started and stopped with the session.
type Sampler interface {
	Start()
	Stop()
}

// Snapshot is a consistent copy of the session record.
type Snapshot struct {
	State     State
	MissionID string
	Name      string
	MapName   string
	StartedAt time.Time
}

// Session is the idle/recording state machine. At most one mission is
// recorded at a time; the mission id is set exactly while recording.
type Session struct {
	mu        sync.RWMutex
	state     State
	missionID string
	name      string
	mapName   string
	startedAt time.Time

	cancelAssign scheduler.Cancel

	// active mirrors missionID for log enrichment, which must not take mu.
	active atomic.Value

	publisher Publisher
	entities  Entities
	sampler   Sampler
	sched     scheduler.Scheduler
	store     *config.Store
	logger    *slog.Logger
	newID     func() string
}

// NewSession creates an idle session. sampler may be nil and set later with
// SetSampler.
func NewSession(publisher Publisher, entities Entities, sampler Sampler, sched scheduler.Scheduler, store *config.Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		publisher:    publisher,
		entities:     entities,
		sampler:      sampler,
		sched:        sched,
		store:        store,
		logger:       logger,
		newID:        uuid.NewString,
		cancelAssign: scheduler.Nop,
	}
}

// SetSampler sets the sampler started by Start.
func (s *Session) SetSampler(sampler Sampler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampler = sampler
}

// Start begins recording a new mission and returns its id.
func (s *Session) Start(name, mapName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Recording {
		return "", fmt.Errorf("cannot start %q: %w", name, ErrAlreadyRecording)
	}

	id := s.newID()
	ms := core.MissionStart{MissionID: id, Name: name, MapName: mapName}
	if err := s.publisher.SendMissionStart(ms, nil); err != nil {
		return "", fmt.Errorf("failed to send mission start: %w", err)
	}

	s.state = Recording
	s.missionID = id
	s.name = name
	s.mapName = mapName
	s.startedAt = s.sched.Now()
	s.publisher.SetMissionID(id)
	s.active.Store(id)

	// The collector must have processed the mission start before it can
	// accept assignments that reference it.
	s.cancelAssign = s.sched.After(s.store.Settings().Mission.AssignDelay, func() {
		s.assignCached(id)
	})
	if s.sampler != nil {
		s.sampler.Start()
	}

	s.logger.Info("Recording started", "missionId", id, "name", name, "map", mapName)
	return id, nil
}

func (s *Session) assignCached(id string) {
	s.mu.RLock()
	current := s.missionID
	s.mu.RUnlock()
	if current != id {
		return
	}

	ids := s.entities.AllIDs()
	if len(ids) == 0 {
		return
	}
	s.publisher.EnqueueAssignment(ids...)
	s.logger.Info("Assigned cached entities to mission", "missionId", id, "count", len(ids))
}

// Stop flushes outstanding telemetry, ends the mission and returns to idle.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Recording {
		return ErrNotRecording
	}

	if s.sampler != nil {
		s.sampler.Stop()
	}
	s.cancelAssign()
	s.cancelAssign = scheduler.Nop

	s.publisher.ForceFlush()
	id := s.missionID
	s.publisher.SendMissionEnd(id, nil)

	s.state = Idle
	s.missionID = ""
	s.name = ""
	s.mapName = ""
	s.startedAt = time.Time{}
	s.publisher.SetMissionID("")
	s.active.Store("")
	s.entities.Clear()

	s.logger.Info("Recording stopped", "missionId", id)
	return nil
}

// IsRecording reports whether a mission is being recorded.
func (s *Session) IsRecording() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == Recording
}

// MissionID returns the current mission id, or "" when idle.
func (s *Session) MissionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.missionID
}

// Snapshot returns the session record.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		State:     s.state,
		MissionID: s.missionID,
		Name:      s.name,
		MapName:   s.mapName,
		StartedAt: s.startedAt,
	}
}

// LogAttrs is a logging.ContextProvider exposing the active mission.
func (s *Session) LogAttrs() []slog.Attr {
	id, _ := s.active.Load().(string)
	if id == "" {
		return nil
	}
	return []slog.Attr{slog.String("missionId", id), slog.Bool("recording", true)}
}
