package fsm

import (
	"encoding/binary"
	"time"

	"github.com/polycall-go/polycall/internal/checksum"
)

// MaxStateNameLen bounds a state name so its checksum encoding stays
// bounded. AddState also rejects names containing a NUL byte, which a
// systems-language port would treat as a terminator.
const MaxStateNameLen = 64

// Hook is an opaque callable invoked at a state's on-enter or on-exit
// point, or as a transition's action. Returning an error aborts the
// transition in progress.
type Hook func() error

// Guard is an opaque predicate invoked before a transition is allowed to
// execute. Returning false fails the transition with ErrInvalidTransition.
type Guard func(from, to *State) bool

// State is a named node in the state machine.
type State struct {
	id        uint32
	name      string
	onEnter   Hook
	onExit    Hook
	isFinal   bool
	isLocked  bool
	version   uint64
	updatedAt time.Time
	checksum  uint32
}

// ID returns the state's stable numeric id, equal to its insertion index.
func (s *State) ID() uint32 { return s.id }

// Name returns the state's unique name.
func (s *State) Name() string { return s.name }

// IsFinal reports whether the state accepts no outgoing transitions.
func (s *State) IsFinal() bool { return s.isFinal }

// IsLocked reports whether the state currently blocks inbound and outbound
// transitions.
func (s *State) IsLocked() bool { return s.isLocked }

// Version is incremented on every mutation: lock/unlock, hook edits, and
// timestamp refreshes performed by a successful transition.
func (s *State) Version() uint64 { return s.version }

// UpdatedAt returns the timestamp of the state's last mutation.
func (s *State) UpdatedAt() time.Time { return s.updatedAt }

// Checksum returns the state's stored self-checksum, computed the last
// time the state was mutated.
func (s *State) Checksum() uint32 { return s.checksum }

// clone returns a value copy of s, safe to embed in a StateSnapshot.
func (s *State) clone() State {
	return State{
		id:        s.id,
		name:      s.name,
		onEnter:   s.onEnter,
		onExit:    s.onExit,
		isFinal:   s.isFinal,
		isLocked:  s.isLocked,
		version:   s.version,
		updatedAt: s.updatedAt,
		checksum:  s.checksum,
	}
}

// touch bumps version, refreshes the timestamp, and recomputes the
// checksum. Every mutating operation on a State ends by calling touch.
func (s *State) touch() {
	s.version++
	s.updatedAt = time.Now()
	s.checksum = s.computeChecksum()
}

// computeChecksum hashes every field of the state except checksum itself,
// in declaration order, using a fixed-width little-endian encoding. Hooks
// are function values and are not part of the hash: they are identity, not
// data, and a systems-language port would hash function pointers by
// address, which is not portable across snapshot/restore either.
func (s *State) computeChecksum() uint32 {
	name := s.name
	if len(name) > MaxStateNameLen {
		name = name[:MaxStateNameLen]
	}
	buf := make([]byte, 0, 4+2+len(name)+1+1+8+8)
	buf = binary.LittleEndian.AppendUint32(buf, s.id)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(name)))
	buf = append(buf, name...)
	buf = append(buf, boolByte(s.isFinal), boolByte(s.isLocked))
	buf = binary.LittleEndian.AppendUint64(buf, s.version)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(s.updatedAt.UnixNano()))
	return checksum.Sum(buf)
}

// VerifyChecksum reports whether the state's stored checksum matches a
// fresh recomputation, i.e. whether the state has not been silently
// mutated outside the engine's own touch() path.
func (s *State) VerifyChecksum() bool {
	return s.checksum == s.computeChecksum()
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
