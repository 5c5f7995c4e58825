package events

// Fallback values used when the host cannot resolve a name, faction or
// weapon.
const (
	Environment = "Environment"
	Unknown     = "Unknown"
)

// Optional holds a value that a host lookup may not have produced.
type Optional[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

// OfString treats the empty string as absent.
func OfString(s string) Optional[string] {
	if s == "" {
		return None[string]()
	}
	return Some(s)
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

func (o Optional[T]) IsSome() bool {
	return o.ok
}

// Or returns the value, or fallback when absent.
func (o Optional[T]) Or(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}

// NameOr picks a combatant's display name. A missing entity is the
// environment; a player's name beats the character's name.
func NameOr(present bool, playerName, characterName Optional[string]) string {
	if !present {
		return Environment
	}
	if name, ok := playerName.Get(); ok {
		return name
	}
	return characterName.Or(Unknown)
}

func FactionOr(faction Optional[string]) string {
	return faction.Or(Unknown)
}

func WeaponOr(weapon Optional[string]) string {
	return weapon.Or(Unknown)
}
