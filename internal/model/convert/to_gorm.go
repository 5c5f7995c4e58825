package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/opstrack/recorder/internal/geo"
	"github.com/opstrack/recorder/internal/model"
	"github.com/opstrack/recorder/pkg/core"
)

// countsToJSON converts per-category counts to datatypes.JSON for DB storage.
func countsToJSON(counts map[string]int) datatypes.JSON {
	data, err := json.Marshal(counts)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

// MissionToGorm converts a core.MissionStart to a GORM Mission.
func MissionToGorm(ms core.MissionStart, startedAt time.Time) model.Mission {
	return model.Mission{
		MissionID: ms.MissionID,
		Name:      ms.Name,
		MapName:   ms.MapName,
		StartedAt: startedAt,
	}
}

// EntityToGorm converts a core.Entity to a GORM Entity.
func EntityToGorm(e core.Entity, receivedAt time.Time) model.Entity {
	return model.Entity{
		EntityID:   e.EntityID,
		Name:       e.Name,
		Type:       uint8(e.Type),
		Faction:    e.Faction,
		PlayerID:   e.PlayerID,
		ReceivedAt: receivedAt,
	}
}

// AssignmentsToGorm links every entity id to the mission.
func AssignmentsToGorm(missionID string, entityIDs []string) []model.EntityAssignment {
	out := make([]model.EntityAssignment, 0, len(entityIDs))
	for _, id := range entityIDs {
		out = append(out, model.EntityAssignment{MissionID: missionID, EntityID: id})
	}
	return out
}

// EntityStateToGorm converts a core.EntityState to a GORM EntityState.
func EntityStateToGorm(s core.EntityState, missionID *string) model.EntityState {
	return model.EntityState{
		Time:      time.Unix(s.Timestamp, 0).UTC(),
		MissionID: missionID,
		EntityID:  s.EntityID,
		Position:  geo.PointFromPosition(s.Position()),
		Elevation: s.PosZ,
		Rotation:  float32(s.Rotation),
		IsAlive:   s.IsAlive,
	}
}

// ConnectionEventToGorm converts a core.ConnectionEvent to a GORM
// ConnectionEvent. The timestamp must be in core.TimestampLayout.
func ConnectionEventToGorm(e core.ConnectionEvent, missionID *string) (model.ConnectionEvent, error) {
	ts, err := core.ParseTimestamp(e.TimeStamp)
	if err != nil {
		return model.ConnectionEvent{}, fmt.Errorf("connection event timestamp %q: %w", e.TimeStamp, err)
	}
	return model.ConnectionEvent{
		Time:         ts,
		MissionID:    missionID,
		GameIdentity: e.GameIdentity,
		Name:         e.Name,
		EventType:    uint8(e.EventTypeID),
	}, nil
}

// CombatEventToGorm converts a core.CombatEvent to a GORM CombatEvent.
func CombatEventToGorm(e core.CombatEvent, missionID *string) (model.CombatEvent, error) {
	ts, err := core.ParseTimestamp(e.TimeStamp)
	if err != nil {
		return model.CombatEvent{}, fmt.Errorf("combat event timestamp %q: %w", e.TimeStamp, err)
	}
	return model.CombatEvent{
		Time:          ts,
		MissionID:     missionID,
		ActorID:       e.ActorID,
		ActorName:     e.ActorName,
		ActorFaction:  e.ActorFaction,
		VictimID:      e.VictimID,
		VictimName:    e.VictimName,
		VictimFaction: e.VictimFaction,
		Weapon:        e.Weapon,
		Distance:      e.Distance,
		IsTeamKill:    e.IsTeamKill,
		EventType:     uint8(e.EventTypeID),
	}, nil
}

// IngestToGorm summarizes a batch.
func IngestToGorm(b *core.Batch, receivedAt time.Time) model.Ingest {
	return model.Ingest{
		ReceivedAt: receivedAt,
		MissionID:  b.MissionID,
		Counts:     countsToJSON(BatchCounts(b)),
	}
}

// BatchCounts returns the number of records per category, keyed by the
// batch's JSON field names.
func BatchCounts(b *core.Batch) map[string]int {
	return map[string]int{
		"entities":         len(b.Entities),
		"states":           len(b.States),
		"assignEntityIds":  len(b.AssignEntityIDs),
		"connectionEvents": len(b.ConnectionEvents),
		"combatEvents":     len(b.CombatEvents),
	}
}
