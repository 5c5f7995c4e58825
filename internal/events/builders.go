// Package events builds connection and combat records from host occurrences
// and feeds them to the pipeline.
package events

import (
	"math"
	"time"

	"github.com/opstrack/recorder/pkg/core"
)

// NewConnectionEvent builds a join or leave record.
func NewConnectionEvent(identity, name string, kind core.EventType, at time.Time) core.ConnectionEvent {
	return core.ConnectionEvent{
		GameIdentity: identity,
		Name:         name,
		TimeStamp:    core.FormatTimestamp(at),
		EventTypeID:  kind,
	}
}

// CombatFacts is everything resolved about one combat occurrence.
type CombatFacts struct {
	Kind           core.EventType
	ActorIdentity  string
	ActorName      string
	ActorFaction   string
	VictimIdentity string
	VictimName     string
	VictimFaction  string
	Weapon         string
	Distance       float64
	TeamKill       bool
}

// NewCombatEvent builds a kill, self-harm or wounded record.
func NewCombatEvent(f CombatFacts, at time.Time) core.CombatEvent {
	return core.CombatEvent{
		ActorID:       NormalizeIdentity(f.ActorIdentity),
		ActorName:     f.ActorName,
		ActorFaction:  f.ActorFaction,
		VictimID:      NormalizeIdentity(f.VictimIdentity),
		VictimName:    f.VictimName,
		VictimFaction: f.VictimFaction,
		Weapon:        f.Weapon,
		Distance:      RoundDistance(f.Distance),
		IsTeamKill:    f.TeamKill,
		TimeStamp:     core.FormatTimestamp(at),
		EventTypeID:   f.Kind,
	}
}

// NormalizeIdentity maps the host's "no player" identities to "", which the
// collector reads as the environment or an AI.
func NormalizeIdentity(id string) string {
	if id == "0" {
		return ""
	}
	return id
}

// RoundDistance rounds metres to the nearest integer.
func RoundDistance(d float64) int {
	if d <= 0 || math.IsNaN(d) {
		return 0
	}
	return int(math.Round(d))
}

// Distance is the straight-line distance between two positions.
func Distance(a, b core.Position3D) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
