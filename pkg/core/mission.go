// pkg/core/mission.go
package core

// MissionStart is sent standalone when a recording session begins.
type MissionStart struct {
	MissionID string `json:"missionId"`
	Name      string `json:"name"`
	MapName   string `json:"mapName"`
}

// Batch is the body of one flushed request. Slices are always non-nil so
// they serialize as empty arrays.
type Batch struct {
	MissionID        *string           `json:"missionId"`
	Entities         []Entity          `json:"entities"`
	States           []EntityState     `json:"states"`
	AssignEntityIDs  []string          `json:"assignEntityIds"`
	ConnectionEvents []ConnectionEvent `json:"connectionEvents"`
	CombatEvents     []CombatEvent     `json:"combatEvents"`
}

// NewBatch returns a Batch with every category initialized.
func NewBatch(missionID string) *Batch {
	b := &Batch{
		Entities:         []Entity{},
		States:           []EntityState{},
		AssignEntityIDs:  []string{},
		ConnectionEvents: []ConnectionEvent{},
		CombatEvents:     []CombatEvent{},
	}
	if missionID != "" {
		id := missionID
		b.MissionID = &id
	}
	return b
}

// Len is the number of records carried.
func (b *Batch) Len() int {
	return len(b.Entities) + len(b.States) + len(b.AssignEntityIDs) +
		len(b.ConnectionEvents) + len(b.CombatEvents)
}
