package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/opstrack/recorder/internal/dispatcher"
	"github.com/opstrack/recorder/internal/geo"
	"github.com/opstrack/recorder/pkg/host"
)

// Simulation commands.
const (
	cmdJoin    = "player_join"
	cmdLeave   = "player_leave"
	cmdAdmin   = "player_admin"
	cmdPlayers = "players"
	cmdSpawn   = "unit_spawn"
	cmdMove    = "unit_move"
	cmdKill    = "unit_kill"
	cmdWound   = "unit_wound"
)

const consoleHelp = `commands:
  player_join <id> <name> [faction]   connect a player
  player_leave <id>                   disconnect a player
  player_admin <id>                   grant the administrator role
  players                             list connected players
  unit_spawn <id>                     respawn a dead player's unit
  unit_move <id> <x,y[,z]> [dir]      place a player's unit
  unit_kill <victim> <actor|0> [weapon]
  unit_wound <victim> <actor|0> [weapon]
  say <id> #<command> [args...]       run a command from chat
  opstrack_start [name...] | opstrack_stop | opstrack_reload | opstrack_status
  help | quit`

// hooks receives host occurrences. *app.App implements it.
type hooks interface {
	PlayerRegistered(playerID int)
	PlayerDisconnected(playerID int)
	PlayerSpawned(playerID int, name, faction string)
	Killed(d host.Damage)
	Wounded(d host.Damage)
}

// nopHooks is used while telemetry is disabled.
type nopHooks struct{}

func (nopHooks) PlayerRegistered(int)              {}
func (nopHooks) PlayerDisconnected(int)            {}
func (nopHooks) PlayerSpawned(int, string, string) {}
func (nopHooks) Killed(host.Damage)                {}
func (nopHooks) Wounded(host.Damage)               {}

func registerSimCommands(d *dispatcher.Dispatcher, sim *simHost, hk hooks) {
	d.Register(cmdJoin, func(e dispatcher.Event) (any, error) {
		if len(e.Args) < 2 {
			return nil, errors.New("usage: player_join <id> <name> [faction]")
		}
		id, err := strconv.Atoi(e.Args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid player id: %w", err)
		}
		faction := ""
		if len(e.Args) > 2 {
			faction = e.Args[2]
		}
		if err := sim.Join(id, e.Args[1], faction); err != nil {
			return nil, err
		}
		hk.PlayerRegistered(id)
		hk.PlayerSpawned(id, e.Args[1], faction)
		return fmt.Sprintf("%s joined as %d", e.Args[1], id), nil
	}, dispatcher.Logged())

	d.Register(cmdLeave, func(e dispatcher.Event) (any, error) {
		id, err := playerArg(e.Args, 0)
		if err != nil {
			return nil, err
		}
		hk.PlayerDisconnected(id)
		sim.Leave(id)
		return fmt.Sprintf("player %d left", id), nil
	}, dispatcher.Logged())

	d.Register(cmdAdmin, func(e dispatcher.Event) (any, error) {
		id, err := playerArg(e.Args, 0)
		if err != nil {
			return nil, err
		}
		if err := sim.SetAdmin(id, true); err != nil {
			return nil, err
		}
		return fmt.Sprintf("player %d is now an administrator", id), nil
	}, dispatcher.Logged())

	d.Register(cmdPlayers, func(dispatcher.Event) (any, error) {
		names := sim.Names()
		if len(names) == 0 {
			return "no players connected", nil
		}
		return strings.Join(names, ", "), nil
	})

	d.Register(cmdSpawn, func(e dispatcher.Event) (any, error) {
		id, err := playerArg(e.Args, 0)
		if err != nil {
			return nil, err
		}
		name, faction, err := sim.Respawn(id)
		if err != nil {
			return nil, err
		}
		hk.PlayerSpawned(id, name, faction)
		return fmt.Sprintf("player %d spawned", id), nil
	}, dispatcher.Logged())

	d.Register(cmdMove, func(e dispatcher.Event) (any, error) {
		if len(e.Args) < 2 {
			return nil, errors.New("usage: unit_move <id> <x,y[,z]> [dir]")
		}
		id, err := playerArg(e.Args, 0)
		if err != nil {
			return nil, err
		}
		pos, err := geo.ParsePosition(e.Args[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, e.Args[1])
		}
		heading := 0.0
		if len(e.Args) > 2 {
			if heading, err = strconv.ParseFloat(e.Args[2], 64); err != nil {
				return nil, fmt.Errorf("invalid direction: %w", err)
			}
		}
		if err := sim.Move(id, pos, heading); err != nil {
			return nil, err
		}
		return fmt.Sprintf("player %d at %.1f,%.1f,%.1f", id, pos.X, pos.Y, pos.Z), nil
	}, dispatcher.Logged())

	damage := func(lethal bool, report func(host.Damage)) dispatcher.HandlerFunc {
		return func(e dispatcher.Event) (any, error) {
			victim, err := playerArg(e.Args, 0)
			if err != nil {
				return nil, err
			}
			actor := 0
			if len(e.Args) > 1 {
				if actor, err = strconv.Atoi(e.Args[1]); err != nil {
					return nil, fmt.Errorf("invalid actor id: %w", err)
				}
			}
			weapon := ""
			if len(e.Args) > 2 {
				weapon = strings.Join(e.Args[2:], " ")
			}
			d, err := sim.Damage(victim, actor, weapon, lethal)
			if err != nil {
				return nil, err
			}
			report(d)
			return "ok", nil
		}
	}
	d.Register(cmdKill, damage(true, hk.Killed), dispatcher.Logged())
	d.Register(cmdWound, damage(false, hk.Wounded), dispatcher.Logged())
}

func playerArg(args []string, i int) (int, error) {
	if len(args) <= i {
		return 0, errors.New("missing player id")
	}
	id, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("invalid player id: %w", err)
	}
	return id, nil
}

// console reads RCON-style lines and prints each reply.
type console struct {
	in  io.Reader
	out io.Writer
	d   *dispatcher.Dispatcher
	sim *simHost
}

// Run executes lines until EOF, "quit" or ctx is done.
func (c *console) Run(ctx context.Context) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	fmt.Fprintln(c.out, "opstrack console, type help for commands")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			cmd := strings.TrimSpace(line)
			if cmd == "quit" || cmd == "exit" {
				return nil
			}
			if reply := c.Exec(cmd); reply != "" {
				fmt.Fprintln(c.out, reply)
			}
		}
	}
}

// Exec dispatches one line and returns the reply.
func (c *console) Exec(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	if fields[0] == "help" {
		return consoleHelp
	}

	e := dispatcher.Event{
		Command:   fields[0],
		Args:      fields[1:],
		Caller:    dispatcher.Caller{Source: dispatcher.SourceRCON},
		Timestamp: time.Now(),
	}
	if fields[0] == "say" {
		if len(fields) < 3 || !strings.HasPrefix(fields[2], "#") {
			return "usage: say <id> #<command> [args...]"
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			return "invalid player id: " + fields[1]
		}
		e.Command = strings.TrimPrefix(fields[2], "#")
		e.Args = fields[3:]
		e.Caller = dispatcher.Caller{Source: dispatcher.SourceChat, PlayerID: pid, IsAdmin: c.sim.IsAdmin(pid)}
	}

	res, err := c.d.Dispatch(e)
	switch {
	case errors.Is(err, dispatcher.ErrNoHandler):
		return "Unknown command: " + e.Command
	case err != nil:
		return "Error: " + err.Error()
	case res == nil:
		return ""
	default:
		return fmt.Sprint(res)
	}
}
