package app

import (
	"errors"
	"fmt"

	"github.com/opstrack/recorder/internal/dispatcher"
	"github.com/opstrack/recorder/internal/maps"
	"github.com/opstrack/recorder/internal/mission"
	"github.com/opstrack/recorder/internal/util"
	"github.com/opstrack/recorder/pkg/core"
)

// Admin commands.
const (
	CmdStart  = "opstrack_start"
	CmdStop   = "opstrack_stop"
	CmdReload = "opstrack_reload"
	CmdStatus = "opstrack_status"
)

// Replies shown to the caller.
const (
	MsgMapUnsupported   = "Map not supported. Add this map to the maps config."
	MsgAlreadyRecording = "Already recording. Use #opstrack_stop first."
	MsgNotRecording     = "Not currently recording."
)

func (a *App) registerCommands() {
	onLoop := dispatcher.RunOn(a.sched.Do)
	a.dispatcher.Register(CmdStart, a.cmdStart, onLoop, dispatcher.Logged(), dispatcher.AdminOnly())
	a.dispatcher.Register(CmdStop, a.cmdStop, onLoop, dispatcher.Logged(), dispatcher.AdminOnly())
	a.dispatcher.Register(CmdReload, a.cmdReload, onLoop, dispatcher.Logged(), dispatcher.AdminOnly())
	a.dispatcher.Register(CmdStatus, a.cmdStatus, onLoop, dispatcher.AdminOnly())
}

func (a *App) cmdStart(e dispatcher.Event) (any, error) {
	name := util.JoinArgs(e.Args)
	if name == "" {
		name = "Mission_" + core.FormatTimestamp(a.sched.Now())
	}

	mapName := a.maps.Lookup(a.host.WorldFile())
	if mapName == maps.Unknown {
		a.logger.Warn("Refusing to record on unknown map", "world", a.host.WorldFile())
		return MsgMapUnsupported, nil
	}

	if _, err := a.session.Start(name, mapName); err != nil {
		if errors.Is(err, mission.ErrAlreadyRecording) {
			return MsgAlreadyRecording, nil
		}
		return nil, err
	}
	return "Recording started: " + name, nil
}

func (a *App) cmdStop(dispatcher.Event) (any, error) {
	name := a.session.Snapshot().Name
	if err := a.session.Stop(); err != nil {
		if errors.Is(err, mission.ErrNotRecording) {
			return MsgNotRecording, nil
		}
		return nil, err
	}
	return "Recording stopped: " + name, nil
}

func (a *App) cmdReload(dispatcher.Event) (any, error) {
	snap, warnings, err := a.store.Reload()
	for _, w := range warnings {
		a.logger.Warn("Config warning", "warning", w)
	}
	if err != nil {
		return nil, fmt.Errorf("reload failed: %w", err)
	}
	a.logger.Info("Config reloaded", "version", snap.Version)
	return fmt.Sprintf("Config reloaded (version %d)", snap.Version), nil
}

func (a *App) cmdStatus(dispatcher.Event) (any, error) {
	snap := a.session.Snapshot()
	stats := a.pipeline.Stats()
	breaker := "closed"
	if stats.BreakerOpen {
		breaker = "open"
	}
	if snap.State != mission.Recording {
		return fmt.Sprintf("Idle. Queued %d, breaker %s.", stats.QueuedTotal(), breaker), nil
	}
	return fmt.Sprintf("Recording %s on %s (%s). Queued %d, breaker %s.",
		snap.Name, snap.MapName, snap.MissionID, stats.QueuedTotal(), breaker), nil
}
