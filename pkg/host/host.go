// Package host defines what the recorder needs from the game host. A game
// integration implements these interfaces; cmd/opstrack ships a simulated one.
package host

import "github.com/opstrack/recorder/pkg/core"

// Players resolves session participants.
type Players interface {
	// PlayerName returns the participant's display name, or "" if unknown.
	PlayerName(playerID int) string
	// PlayerIdentity returns the durable platform identity. It is "" until the
	// host's backend lookup has completed.
	PlayerIdentity(playerID int) string
}

// World describes the loaded world.
type World interface {
	// WorldFile is the path of the loaded world, e.g. "worlds/Everon/Everon.ent".
	WorldFile() string
	// IsFriendly reports whether two factions are allied.
	IsFriendly(factionA, factionB string) bool
}

// Controlled is one player-controlled entity at the moment of sampling.
type Controlled struct {
	PlayerID int
	Name     string
	Faction  string
	Position core.Position3D
	Heading  float64
	Alive    bool
}

// Controllables lists what players currently control.
type Controllables interface {
	Controlled() []Controlled
}

// Combatant is one side of a damage event as seen by the host.
type Combatant struct {
	// Present is false when no entity caused the damage (fall, fire,
	// environment).
	Present bool
	// Handle identifies the entity within the host; equal handles on both
	// sides mean self-inflicted damage.
	Handle        uint64
	PlayerID      int // 0 for AI
	CharacterName string
	Faction       string
	Position      core.Position3D
}

// Damage is one wound or death reported by the host.
type Damage struct {
	Victim Combatant
	Actor  Combatant
	Weapon string
}

// SelfInflicted reports whether the victim damaged itself.
func (d Damage) SelfInflicted() bool {
	return d.Actor.Present && d.Victim.Present && d.Actor.Handle == d.Victim.Handle
}

// Host bundles everything the recorder consumes.
type Host interface {
	Players
	World
	Controllables
}
