package events

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/opstrack/recorder/internal/config"
	"github.com/opstrack/recorder/internal/scheduler"
	"github.com/opstrack/recorder/internal/spamfilter"
	"github.com/opstrack/recorder/pkg/core"
	"github.com/opstrack/recorder/pkg/host"
)

// CombatSink receives combat records.
type CombatSink interface {
	EnqueueCombat(core.CombatEvent)
}

// CombatSender turns host damage reports into combat records. Only wounds
// go through the spam filter.
type CombatSender struct {
	players host.Players
	world   host.World
	sink    CombatSink
	sched   scheduler.Scheduler
	store   *config.Store
	logger  *slog.Logger

	mu     sync.Mutex
	filter *spamfilter.Filter
}

func NewCombatSender(players host.Players, world host.World, filter *spamfilter.Filter, sink CombatSink, sched scheduler.Scheduler, store *config.Store, logger *slog.Logger) *CombatSender {
	if logger == nil {
		logger = slog.Default()
	}
	if filter == nil {
		filter = spamfilter.New()
	}
	return &CombatSender{
		players: players,
		world:   world,
		sink:    sink,
		sched:   sched,
		store:   store,
		logger:  logger,
		filter:  filter,
	}
}

// Killed records a death as a kill or, when the victim killed itself, as
// self-harm. It reports whether a record was queued.
func (s *CombatSender) Killed(d host.Damage) bool {
	if !s.store.Settings().Events.Kill {
		return false
	}
	kind := core.EventKill
	if d.SelfInflicted() {
		kind = core.EventSelfHarm
	}
	return s.send(d, kind)
}

// Wounded records non-lethal damage unless the same pair was recorded within
// the spam window.
func (s *CombatSender) Wounded(d host.Damage) bool {
	if !s.store.Settings().Events.Kill {
		return false
	}

	victimKey := strconv.FormatUint(d.Victim.Handle, 10)
	actorKey := strconv.FormatUint(d.Actor.Handle, 10)
	s.mu.Lock()
	suppress := s.filter.ShouldSuppress(victimKey, actorKey, s.sched.Now())
	s.mu.Unlock()
	if suppress {
		s.logger.Debug("Wounded event suppressed (spam)", "key", spamfilter.Key(victimKey, actorKey))
		return false
	}
	return s.send(d, core.EventWounded)
}

func (s *CombatSender) send(d host.Damage, kind core.EventType) bool {
	facts := CombatFacts{
		Kind:           kind,
		ActorIdentity:  s.identity(d.Actor),
		ActorName:      s.name(d.Actor),
		ActorFaction:   FactionOr(OfString(d.Actor.Faction)),
		VictimIdentity: s.identity(d.Victim),
		VictimName:     s.name(d.Victim),
		VictimFaction:  FactionOr(OfString(d.Victim.Faction)),
		Weapon:         WeaponOr(OfString(d.Weapon)),
	}
	if d.Actor.Present && d.Victim.Present {
		facts.Distance = Distance(d.Actor.Position, d.Victim.Position)
	}
	if d.Actor.Faction != "" && d.Victim.Faction != "" {
		facts.TeamKill = s.world.IsFriendly(d.Victim.Faction, d.Actor.Faction)
	} else {
		s.logger.Debug("Cannot determine team kill status: faction data missing")
	}

	ev := NewCombatEvent(facts, s.sched.Now())
	s.logger.Info("Sending combat event",
		"type", kind.String(),
		"actor", ev.ActorName,
		"actorFaction", ev.ActorFaction,
		"victim", ev.VictimName,
		"victimFaction", ev.VictimFaction,
		"weapon", ev.Weapon,
		"distance", ev.Distance,
		"teamkill", ev.IsTeamKill,
	)
	s.sink.EnqueueCombat(ev)
	return true
}

func (s *CombatSender) identity(c host.Combatant) string {
	if !c.Present || c.PlayerID <= 0 {
		return ""
	}
	return s.players.PlayerIdentity(c.PlayerID)
}

func (s *CombatSender) name(c host.Combatant) string {
	player := None[string]()
	if c.Present && c.PlayerID > 0 {
		player = OfString(s.players.PlayerName(c.PlayerID))
	}
	return NameOr(c.Present, player, OfString(c.CharacterName))
}
