package main

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opstrack/recorder/pkg/core"
	"github.com/opstrack/recorder/pkg/host"
)

// simPlayer is one connected player of the simulated host.
type simPlayer struct {
	name     string
	identity string
	faction  string
	admin    bool
	joinedAt time.Time
	position core.Position3D
	heading  float64
	alive    bool
}

// simHost is an in-process game host. Player identities only become
// available identityDelay after joining, like a platform backend lookup.
type simHost struct {
	mu            sync.RWMutex
	world         string
	identityDelay time.Duration
	now           func() time.Time
	players       map[int]*simPlayer
}

var _ host.Host = (*simHost)(nil)

func newSimHost(world string, identityDelay time.Duration) *simHost {
	return &simHost{
		world:         world,
		identityDelay: identityDelay,
		now:           time.Now,
		players:       make(map[int]*simPlayer),
	}
}

func (h *simHost) Join(id int, name, faction string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id <= 0 {
		return fmt.Errorf("player id must be positive, got %d", id)
	}
	if _, ok := h.players[id]; ok {
		return fmt.Errorf("player %d already connected", id)
	}
	h.players[id] = &simPlayer{
		name:     name,
		identity: fmt.Sprintf("sim-%08d", id),
		faction:  faction,
		joinedAt: h.now(),
		alive:    true,
	}
	return nil
}

func (h *simHost) Leave(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.players, id)
}

func (h *simHost) SetAdmin(id int, admin bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.players[id]
	if !ok {
		return fmt.Errorf("player %d not connected", id)
	}
	p.admin = admin
	return nil
}

func (h *simHost) IsAdmin(id int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.players[id]
	return ok && p.admin
}

func (h *simHost) Move(id int, pos core.Position3D, heading float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.players[id]
	if !ok {
		return fmt.Errorf("player %d not connected", id)
	}
	p.position = pos
	p.heading = heading
	p.alive = true
	return nil
}

// Respawn brings a player's unit back to life and returns its name and
// faction.
func (h *simHost) Respawn(id int) (name, faction string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.players[id]
	if !ok {
		return "", "", fmt.Errorf("player %d not connected", id)
	}
	p.alive = true
	return p.name, p.faction, nil
}

// Damage describes victim being hit by actor. An actor of 0 is the
// environment. A lethal hit marks the victim dead until it moves again.
func (h *simHost) Damage(victim, actor int, weapon string, lethal bool) (host.Damage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.players[victim]
	if !ok {
		return host.Damage{}, fmt.Errorf("player %d not connected", victim)
	}
	d := host.Damage{Victim: combatant(victim, v), Weapon: weapon}
	if actor != 0 {
		a, ok := h.players[actor]
		if !ok {
			return host.Damage{}, fmt.Errorf("player %d not connected", actor)
		}
		d.Actor = combatant(actor, a)
	}
	if lethal {
		v.alive = false
	}
	return d, nil
}

func combatant(id int, p *simPlayer) host.Combatant {
	return host.Combatant{
		Present:       true,
		Handle:        uint64(id),
		PlayerID:      id,
		CharacterName: p.name,
		Faction:       p.faction,
		Position:      p.position,
	}
}

func (h *simHost) PlayerName(id int) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if p, ok := h.players[id]; ok {
		return p.name
	}
	return ""
}

func (h *simHost) PlayerIdentity(id int) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.players[id]
	if !ok || h.now().Sub(p.joinedAt) < h.identityDelay {
		return ""
	}
	return p.identity
}

func (h *simHost) WorldFile() string {
	return h.world
}

func (h *simHost) IsFriendly(a, b string) bool {
	return a == b
}

// Controlled lists living players ordered by id.
func (h *simHost) Controlled() []host.Controlled {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]int, 0, len(h.players))
	for id := range h.players {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]host.Controlled, 0, len(ids))
	for _, id := range ids {
		p := h.players[id]
		if !p.alive {
			continue
		}
		out = append(out, host.Controlled{
			PlayerID: id,
			Name:     p.name,
			Faction:  p.faction,
			Position: p.position,
			Heading:  p.heading,
			Alive:    p.alive,
		})
	}
	return out
}

// Names lists connected players as "id:name" ordered by id.
func (h *simHost) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]int, 0, len(h.players))
	for id := range h.players {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, fmt.Sprintf("%d:%s", id, h.players[id].name))
	}
	return out
}
