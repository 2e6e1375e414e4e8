package fsm

// Transition is a directed, named edge between two states.
type Transition struct {
	name     string
	fromID   uint32
	toID     uint32
	action   Hook
	guard    Guard
	isValid  bool
}

// Name returns the transition's unique name.
func (t *Transition) Name() string { return t.name }

// FromID returns the source state id. Immutable once added.
func (t *Transition) FromID() uint32 { return t.fromID }

// ToID returns the destination state id. Immutable once added.
func (t *Transition) ToID() uint32 { return t.toID }

// IsValid reports whether the transition may still be executed. A
// transition is only ever invalidated by the owning machine, e.g. if one
// of its endpoint states is later removed by a future engine revision;
// today it is always true once added.
func (t *Transition) IsValid() bool { return t.isValid }
