package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []any{
	&Mission{},
	&Entity{},
	&EntityAssignment{},
	&EntityState{},
	&ConnectionEvent{},
	&CombatEvent{},
	&Ingest{},
}

////////////////////////
// RECORDING MODELS
////////////////////////

// Mission is one recording session as announced by the recorder.
type Mission struct {
	MissionID string     `json:"missionId" gorm:"primaryKey;size:64"`
	Name      string     `json:"name" gorm:"size:255"`
	MapName   string     `json:"mapName" gorm:"size:127"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt"`
}

func (*Mission) TableName() string {
	return "missions"
}

// Entity is a tracked participant. Entities may arrive before any mission
// exists and are linked to missions through EntityAssignment.
type Entity struct {
	EntityID   string    `json:"entityId" gorm:"primaryKey;size:64"`
	Name       string    `json:"name" gorm:"size:127"`
	Type       uint8     `json:"type"` // 0=player, 1=ai, 2=vehicle
	Faction    string    `json:"faction" gorm:"size:64"`
	PlayerID   *string   `json:"playerId" gorm:"size:64;index:idx_entity_player_id"`
	ReceivedAt time.Time `json:"receivedAt"`
}

func (*Entity) TableName() string {
	return "entities"
}

// EntityAssignment links an entity to a mission. The pair is unique so
// repeated assignments are absorbed.
type EntityAssignment struct {
	ID        uint   `json:"id" gorm:"primarykey;autoIncrement;"`
	MissionID string `json:"missionId" gorm:"size:64;uniqueIndex:idx_assignment_pair"`
	EntityID  string `json:"entityId" gorm:"size:64;uniqueIndex:idx_assignment_pair"`
}

func (*EntityAssignment) TableName() string {
	return "entity_assignments"
}

// EntityState is one position sample.
type EntityState struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time  `json:"time" gorm:"index:idx_entitystate_time"`
	MissionID *string    `json:"missionId" gorm:"size:64;index:idx_entitystate_mission_id"`
	EntityID  string     `json:"entityId" gorm:"size:64;index:idx_entitystate_entity_id"`
	Position  geom.Point `json:"position"`  // Position as 3D point
	Elevation float64    `json:"elevation"` // Z coordinate
	Rotation  float32    `json:"rotation"`
	IsAlive   bool       `json:"isAlive"`
}

func (*EntityState) TableName() string {
	return "entity_states"
}

// ConnectionEvent is a join or leave.
type ConnectionEvent struct {
	ID           uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time         time.Time `json:"time" gorm:"index:idx_connectionevent_time"`
	MissionID    *string   `json:"missionId" gorm:"size:64;index:idx_connectionevent_mission_id"`
	GameIdentity string    `json:"gameIdentity" gorm:"size:64"`
	Name         string    `json:"name" gorm:"size:127"`
	EventType    uint8     `json:"eventType"` // 1=join, 2=leave
}

func (*ConnectionEvent) TableName() string {
	return "connection_events"
}

// CombatEvent is a kill, self-harm or wound. An empty ActorID means the
// environment caused it.
type CombatEvent struct {
	ID            uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time          time.Time `json:"time" gorm:"index:idx_combatevent_time"`
	MissionID     *string   `json:"missionId" gorm:"size:64;index:idx_combatevent_mission_id"`
	ActorID       string    `json:"actorId" gorm:"size:64"`
	ActorName     string    `json:"actorName" gorm:"size:127"`
	ActorFaction  string    `json:"actorFaction" gorm:"size:64"`
	VictimID      string    `json:"victimId" gorm:"size:64"`
	VictimName    string    `json:"victimName" gorm:"size:127"`
	VictimFaction string    `json:"victimFaction" gorm:"size:64"`
	Weapon        string    `json:"weapon" gorm:"size:127"`
	Distance      int       `json:"distance"`
	IsTeamKill    bool      `json:"isTeamKill" gorm:"default:false"`
	EventType     uint8     `json:"eventType"` // 3=kill, 4=selfHarm, 5=wounded
}

func (*CombatEvent) TableName() string {
	return "combat_events"
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// Ingest records one accepted request body.
type Ingest struct {
	ID         uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	ReceivedAt time.Time      `json:"receivedAt" gorm:"index:idx_ingest_received_at"`
	MissionID  *string        `json:"missionId" gorm:"size:64"`
	Counts     datatypes.JSON `json:"counts"` // records per category
}

func (*Ingest) TableName() string {
	return "ingests"
}
