// pkg/core/entity.go
package core

// EntityType classifies a tracked entity.
type EntityType int

const (
	EntityPlayer EntityType = iota
	EntityAI
	EntityVehicle
)

func (t EntityType) String() string {
	switch t {
	case EntityPlayer:
		return "player"
	case EntityAI:
		return "ai"
	case EntityVehicle:
		return "vehicle"
	default:
		return "unknown"
	}
}

// Position3D represents a 3D position in world metres.
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Entity is the snapshot sent once when a participant is first observed
// during a session. PlayerID is nil for AI and vehicles.
type Entity struct {
	EntityID string     `json:"entityId"`
	Name     string     `json:"name"`
	Type     EntityType `json:"type"`
	Faction  string     `json:"faction"`
	PlayerID *string    `json:"playerId"`
}

// EntityState is one position sample.
type EntityState struct {
	EntityID  string  `json:"entityId"`
	Timestamp int64   `json:"timestamp"` // unix seconds
	PosX      float64 `json:"posX"`
	PosY      float64 `json:"posY"`
	PosZ      float64 `json:"posZ"`
	Rotation  float64 `json:"rotation"`
	IsAlive   bool    `json:"isAlive"`
}

// Position returns the sample position.
func (s EntityState) Position() Position3D {
	return Position3D{X: s.PosX, Y: s.PosY, Z: s.PosZ}
}
