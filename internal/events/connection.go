package events

import (
	"log/slog"

	"github.com/opstrack/recorder/internal/config"
	"github.com/opstrack/recorder/internal/identity"
	"github.com/opstrack/recorder/internal/scheduler"
	"github.com/opstrack/recorder/pkg/core"
	"github.com/opstrack/recorder/pkg/host"
)

// ConnectionSink receives connection records.
type ConnectionSink interface {
	EnqueueConnection(core.ConnectionEvent)
}

// ConnectionSender turns player joins and leaves into records once the
// player's identity is known.
type ConnectionSender struct {
	players  host.Players
	resolver *identity.Resolver
	sink     ConnectionSink
	sched    scheduler.Scheduler
	store    *config.Store
	logger   *slog.Logger
}

func NewConnectionSender(players host.Players, resolver *identity.Resolver, sink ConnectionSink, sched scheduler.Scheduler, store *config.Store, logger *slog.Logger) *ConnectionSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionSender{
		players:  players,
		resolver: resolver,
		sink:     sink,
		sched:    sched,
		store:    store,
		logger:   logger,
	}
}

// PlayerRegistered records a join.
func (s *ConnectionSender) PlayerRegistered(playerID int) {
	s.send(playerID, core.EventJoin)
}

// PlayerDisconnected records a leave. Call it before the host forgets the
// player.
func (s *ConnectionSender) PlayerDisconnected(playerID int) {
	s.send(playerID, core.EventLeave)
}

func (s *ConnectionSender) send(playerID int, kind core.EventType) {
	if !s.store.Settings().Events.Connection {
		return
	}

	// The name is captured now; on leave the host may drop it before the
	// identity resolves.
	name := s.players.PlayerName(playerID)

	s.resolver.Resolve(playerID,
		func() string { return s.players.PlayerIdentity(playerID) },
		func(id string) {
			if current := s.players.PlayerName(playerID); current != "" {
				name = current
			}
			ev := NewConnectionEvent(id, name, kind, s.sched.Now())
			s.logger.Info("Sending connection event", "type", kind.String(), "player", name, "uid", id)
			s.sink.EnqueueConnection(ev)
		},
		func(attempts int) {
			s.logger.Debug("Connection event dropped", "type", kind.String(), "player", playerID, "attempts", attempts)
		},
	)
}
