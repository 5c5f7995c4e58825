// Package convert maps between the wire records in pkg/core and the GORM
// models stored by the collector.
package convert

import (
	"github.com/opstrack/recorder/internal/geo"
	"github.com/opstrack/recorder/internal/model"
	"github.com/opstrack/recorder/pkg/core"
)

// MissionToCore converts a GORM Mission to a core.MissionStart.
func MissionToCore(m model.Mission) core.MissionStart {
	return core.MissionStart{
		MissionID: m.MissionID,
		Name:      m.Name,
		MapName:   m.MapName,
	}
}

// EntityToCore converts a GORM Entity to a core.Entity.
func EntityToCore(e model.Entity) core.Entity {
	return core.Entity{
		EntityID: e.EntityID,
		Name:     e.Name,
		Type:     core.EntityType(e.Type),
		Faction:  e.Faction,
		PlayerID: e.PlayerID,
	}
}

// EntityStateToCore converts a GORM EntityState to a core.EntityState.
// The position's Z is taken from Elevation.
func EntityStateToCore(s model.EntityState) core.EntityState {
	pos := geo.PositionFromPoint(s.Position)
	return core.EntityState{
		EntityID:  s.EntityID,
		Timestamp: s.Time.Unix(),
		PosX:      pos.X,
		PosY:      pos.Y,
		PosZ:      s.Elevation,
		Rotation:  float64(s.Rotation),
		IsAlive:   s.IsAlive,
	}
}

// ConnectionEventToCore converts a GORM ConnectionEvent to a core.ConnectionEvent.
func ConnectionEventToCore(e model.ConnectionEvent) core.ConnectionEvent {
	return core.ConnectionEvent{
		GameIdentity: e.GameIdentity,
		Name:         e.Name,
		TimeStamp:    core.FormatTimestamp(e.Time),
		EventTypeID:  core.EventType(e.EventType),
	}
}

// CombatEventToCore converts a GORM CombatEvent to a core.CombatEvent.
func CombatEventToCore(e model.CombatEvent) core.CombatEvent {
	return core.CombatEvent{
		ActorID:       e.ActorID,
		ActorName:     e.ActorName,
		ActorFaction:  e.ActorFaction,
		VictimID:      e.VictimID,
		VictimName:    e.VictimName,
		VictimFaction: e.VictimFaction,
		Weapon:        e.Weapon,
		Distance:      e.Distance,
		IsTeamKill:    e.IsTeamKill,
		TimeStamp:     core.FormatTimestamp(e.Time),
		EventTypeID:   core.EventType(e.EventType),
	}
}
