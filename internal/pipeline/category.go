package pipeline

// Category names one of the five pipeline queues.
type Category int

const (
	CategoryConnections Category = iota
	CategoryCombat
	CategoryEntities
	CategoryStates
	CategoryAssignments
)

var categories = []Category{
	CategoryConnections,
	CategoryCombat,
	CategoryEntities,
	CategoryStates,
	CategoryAssignments,
}

func (c Category) String() string {
	switch c {
	case CategoryConnections:
		return "connections"
	case CategoryCombat:
		return "combat"
	case CategoryEntities:
		return "entities"
	case CategoryStates:
		return "states"
	case CategoryAssignments:
		return "assignments"
	default:
		return "unknown"
	}
}
