// Package app owns one recorder instance: the pipeline, entity cache,
// recording session, tracker and event senders, wired to a game host.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/opstrack/recorder/internal/cache"
	"github.com/opstrack/recorder/internal/config"
	"github.com/opstrack/recorder/internal/dispatcher"
	"github.com/opstrack/recorder/internal/events"
	"github.com/opstrack/recorder/internal/identity"
	"github.com/opstrack/recorder/internal/logging"
	"github.com/opstrack/recorder/internal/maps"
	"github.com/opstrack/recorder/internal/mission"
	"github.com/opstrack/recorder/internal/monitor"
	"github.com/opstrack/recorder/internal/pipeline"
	"github.com/opstrack/recorder/internal/scheduler"
	"github.com/opstrack/recorder/internal/spamfilter"
	"github.com/opstrack/recorder/internal/tracker"
	"github.com/opstrack/recorder/internal/transport"
	"github.com/opstrack/recorder/pkg/host"
)

// Options carries the collaborators New does not build itself.
type Options struct {
	Host   host.Host
	Sched  scheduler.Scheduler
	Logger *slog.Logger

	// Transport overrides the one built from the transport settings.
	Transport transport.Transport
	// Influx receives monitor points when set.
	Influx monitor.PointWriter
	// StatusPath is rewritten by the monitor on every report.
	StatusPath string
}

// App is one recorder bound to one host.
type App struct {
	store  *config.Store
	sched  scheduler.Scheduler
	host   host.Host
	logger *slog.Logger

	transport   transport.Transport
	pipeline    *pipeline.Pipeline
	entities    *cache.EntityCache
	session     *mission.Session
	tracker     *tracker.Tracker
	resolver    *identity.Resolver
	connections *events.ConnectionSender
	combat      *events.CombatSender
	maps        *maps.Table
	monitor     *monitor.Service
	dispatcher  *dispatcher.Dispatcher
}

// New builds the recorder. It refuses to run without a collector base URL;
// the host should keep running with telemetry disabled in that case.
func New(store *config.Store, opts Options) (*App, error) {
	set := store.Settings()
	if set.API.BaseURL == "" {
		return nil, fmt.Errorf("telemetry disabled: %w", config.ErrNoBaseURL)
	}
	if opts.Host == nil {
		return nil, errors.New("app: host is required")
	}
	if opts.Sched == nil {
		return nil, errors.New("app: scheduler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		store:  store,
		sched:  opts.Sched,
		host:   opts.Host,
		logger: logger,
		maps:   maps.NewTable(set.Maps),
	}

	a.transport = opts.Transport
	if a.transport == nil {
		tr, err := transport.New(transport.Config{
			Type:         set.Transport.Type,
			BaseURL:      set.API.BaseURL,
			APIKey:       set.API.APIKey,
			Timeout:      set.Transport.Timeout,
			WebsocketURL: set.Transport.WebsocketURL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
		a.transport = tr
	}

	p, err := pipeline.New(store, a.transport, a.sched, logger.With("component", "pipeline"))
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	a.pipeline = p

	a.entities = cache.NewEntityCache(p,
		cache.WithIdentity(a.host.PlayerIdentity),
		cache.WithRecording(func() bool { return a.session.IsRecording() }),
		cache.WithLogger(logger.With("component", "cache")),
	)
	a.session = mission.NewSession(p, a.entities, nil, a.sched, store, logger.With("component", "session"))
	a.tracker = tracker.New(a.host, a.entities, p, a.sched, store, logger.With("component", "tracker"))
	a.session.SetSampler(a.tracker)

	a.resolver = identity.NewResolver(a.sched, store, logger.With("component", "identity"))
	a.connections = events.NewConnectionSender(a.host, a.resolver, p, a.sched, store, logger.With("component", "events"))
	a.combat = events.NewCombatSender(a.host, a.host, spamfilter.New(), p, a.sched, store, logger.With("component", "events"))

	if set.Monitor.Enabled {
		a.monitor = monitor.NewService(monitor.Dependencies{
			Stats:      p.Stats,
			Session:    a.session.Snapshot,
			Influx:     opts.Influx,
			Logger:     logger.With("component", "monitor"),
			StatusPath: opts.StatusPath,
			Interval:   func() time.Duration { return store.Settings().Monitor.Interval },
		})
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(logger.With("component", "dispatcher")))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	a.dispatcher = d
	a.registerCommands()

	store.Subscribe(func(*config.Snapshot) {
		a.tracker.Reschedule()
	})

	return a, nil
}

// Start schedules sampling and the monitor.
func (a *App) Start() {
	a.tracker.Run()
	if a.monitor != nil {
		if err := a.monitor.Start(); err != nil {
			a.logger.Error("Failed to start monitor", "error", err)
		}
	}
	a.logger.Info("Recorder started", "map", a.maps.LookupOrFile(a.host.WorldFile()))
}

// Close ends an active recording and releases timers and the transport.
func (a *App) Close() error {
	a.sched.Do(func() {
		if !a.session.IsRecording() {
			return
		}
		if err := a.session.Stop(); err != nil {
			a.logger.Error("Failed to stop recording on shutdown", "error", err)
		}
	})
	a.tracker.Close()
	a.resolver.Close()
	if a.monitor != nil {
		a.monitor.Stop()
	}
	return a.transport.Close()
}

// Dispatcher returns the command dispatcher with the admin commands
// registered. Callers may register more commands on it.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatcher
}

// Session returns the recording session.
func (a *App) Session() *mission.Session {
	return a.session
}

// Stats returns the pipeline counters.
func (a *App) Stats() pipeline.Stats {
	return a.pipeline.Stats()
}

// EntityIDs returns the entities cached for the current session.
func (a *App) EntityIDs() []string {
	return a.entities.AllIDs()
}

// LogAttrs enriches log records with the active mission.
func (a *App) LogAttrs() []slog.Attr {
	return a.session.LogAttrs()
}

// PlayerRegistered is the host hook for a player joining.
func (a *App) PlayerRegistered(playerID int) {
	a.hook("PlayerRegistered", func() {
		a.connections.PlayerRegistered(playerID)
	})
}

// PlayerDisconnected is the host hook for a player leaving. The host must
// call it before it forgets the player.
func (a *App) PlayerDisconnected(playerID int) {
	a.hook("PlayerDisconnected", func() {
		a.connections.PlayerDisconnected(playerID)
	})
}

// PlayerSpawned is the host hook for a player taking control of a spawned
// character. The entity is cached even while idle so the next recording
// assigns it; a respawn keeps the entity from the first spawn.
func (a *App) PlayerSpawned(playerID int, name, faction string) {
	if playerID <= 0 {
		return
	}
	a.hook("PlayerSpawned", func() {
		a.entities.GetOrCreate(playerID, name, events.OfString(faction).Or(events.Unknown))
	})
}

// Killed is the host hook for a death.
func (a *App) Killed(d host.Damage) {
	a.hook("Killed", func() {
		a.combat.Killed(d)
	})
}

// Wounded is the host hook for non-lethal damage.
func (a *App) Wounded(d host.Damage) {
	a.hook("Wounded", func() {
		a.combat.Wounded(d)
	})
}

// hook runs fn on the scheduler timeline, so host callbacks never interleave
// with sampling, flushes or commands. A panic is logged and swallowed.
func (a *App) hook(name string, fn func()) {
	a.sched.Do(func() {
		defer a.recoverHook(name)
		fn()
	})
}

func (a *App) recoverHook(hook string) {
	if r := recover(); r != nil {
		a.logger.Error("Host hook panicked", "hook", hook, "panic", r, "stack", string(debug.Stack()))
	}
}
