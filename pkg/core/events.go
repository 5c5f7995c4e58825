// pkg/core/events.go
package core

import "time"

// EventType is the eventTypeId carried by connection and combat records.
type EventType int

const (
	EventJoin     EventType = 1
	EventLeave    EventType = 2
	EventKill     EventType = 3
	EventSelfHarm EventType = 4
	EventWounded  EventType = 5
)

func (t EventType) String() string {
	switch t {
	case EventJoin:
		return "join"
	case EventLeave:
		return "leave"
	case EventKill:
		return "kill"
	case EventSelfHarm:
		return "selfHarm"
	case EventWounded:
		return "wounded"
	default:
		return "unknown"
	}
}

// IsConnection reports whether the type belongs to the connection category.
func (t EventType) IsConnection() bool {
	return t == EventJoin || t == EventLeave
}

// IsCombat reports whether the type belongs to the combat category.
func (t EventType) IsCombat() bool {
	return t == EventKill || t == EventSelfHarm || t == EventWounded
}

// TimestampLayout is the ISO-8601 UTC second-precision layout used on events.
const TimestampLayout = "2006-01-02T15:04:05Z"

// FormatTimestamp renders t the way the collector expects event timestamps.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp is the inverse of FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// ConnectionEvent records a player joining or leaving.
type ConnectionEvent struct {
	GameIdentity string    `json:"gameIdentity"`
	Name         string    `json:"name"`
	TimeStamp    string    `json:"timeStamp"`
	EventTypeID  EventType `json:"eventTypeId"`
}

// CombatEvent records a kill, self-harm or wound. An empty ActorID means the
// environment caused the damage.
type CombatEvent struct {
	ActorID       string    `json:"actorId"`
	ActorName     string    `json:"actorName"`
	ActorFaction  string    `json:"actorFaction"`
	VictimID      string    `json:"victimId"`
	VictimName    string    `json:"victimName"`
	VictimFaction string    `json:"victimFaction"`
	Weapon        string    `json:"weapon"`
	Distance      int       `json:"distance"`
	IsTeamKill    bool      `json:"isTeamKill"`
	TimeStamp     string    `json:"timeStamp"`
	EventTypeID   EventType `json:"eventTypeId"`
}
