package fsm

import "time"

// StateSnapshot is an immutable point-in-time copy of a single State.
// Restore is only valid while the live state's version matches the
// version captured here; any intervening mutation invalidates it.
type StateSnapshot struct {
	state      State
	capturedAt time.Time
	checksum   uint32
}

// State returns a copy of the snapshotted state.
func (s StateSnapshot) State() State { return s.state }

// CapturedAt returns when the snapshot was taken.
func (s StateSnapshot) CapturedAt() time.Time { return s.capturedAt }

// Checksum returns the snapshot's own integrity checksum, taken at capture
// time. It matches state.Checksum() unless the snapshot itself has since
// been corrupted in memory.
func (s StateSnapshot) Checksum() uint32 { return s.checksum }
