// Package fsm implements the integrity-verified, name-driven finite state
// machine engine: states and transitions with hooks and guards, checksum
// self-verification, advisory locking, and version-checked snapshot and
// restore. The engine is generic; callers wire a specific topology (the
// protocol package wires the connection-lifecycle states) on top of it.
package fsm

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/polycall-go/polycall/internal/checksum"
)

// IntegrityPredicate is an externally supplied additional integrity check,
// called alongside the state's own checksum recomputation.
type IntegrityPredicate func(*State) bool

// Diagnostics are monotonic counters tracking machine health over its
// lifetime.
type Diagnostics struct {
	FailedTransitions   uint64
	IntegrityViolations uint64
	LastVerification    time.Time
}

// Options configures capacity limits on a StateMachine. Zero means
// unbounded; set both when a deployment needs predictable memory.
type Options struct {
	MaxStates      int
	MaxTransitions int
}

// StateMachine is the owning container for a set of states and
// transitions plus the currently active state.
type StateMachine struct {
	mu sync.Mutex

	states           []*State
	transitions      []*Transition
	stateByName      map[string]uint32
	transitionByName map[string]int

	currentStateID uint32

	integrityCheck IntegrityPredicate
	checksum       uint32
	diagnostics    Diagnostics

	maxStates      int
	maxTransitions int
}

// New constructs an empty StateMachine. Call AddState at least once before
// executing any transition; currentStateID starts at 0 and becomes
// meaningful only once state 0 has been added.
func New(opts Options) *StateMachine {
	m := &StateMachine{
		stateByName:      make(map[string]uint32),
		transitionByName: make(map[string]int),
		maxStates:        opts.MaxStates,
		maxTransitions:   opts.MaxTransitions,
	}
	m.recomputeChecksumLocked()
	return m
}

// AddState registers a new state and returns its assigned id, equal to its
// insertion index.
func (m *StateMachine) AddState(name string, onEnter, onExit Hook, isFinal bool) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxStateNameLen || strings.ContainsRune(name, 0) {
		return 0, fmt.Errorf("%w: invalid state name %q", ErrInvalidState, name)
	}
	if _, exists := m.stateByName[name]; exists {
		return 0, fmt.Errorf("%w: duplicate state name %q", ErrInvalidState, name)
	}
	if m.maxStates > 0 && len(m.states) >= m.maxStates {
		return 0, ErrMaxStatesReached
	}

	s := &State{
		id:        uint32(len(m.states)),
		name:      name,
		onEnter:   onEnter,
		onExit:    onExit,
		isFinal:   isFinal,
		version:   1,
		updatedAt: time.Now(),
	}
	s.checksum = s.computeChecksum()

	m.states = append(m.states, s)
	m.stateByName[name] = s.id
	m.recomputeChecksumLocked()
	return s.id, nil
}

// AddTransition registers a new named edge from fromID to toID. A
// transition whose source state is final is rejected: a final state has no
// outgoing transitions by definition.
func (m *StateMachine) AddTransition(name string, fromID, toID uint32, action Hook, guard Guard) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: invalid transition name", ErrInvalidTransition)
	}
	if _, exists := m.transitionByName[name]; exists {
		return fmt.Errorf("%w: duplicate transition name %q", ErrInvalidTransition, name)
	}
	from, err := m.stateLocked(fromID)
	if err != nil {
		return err
	}
	if _, err := m.stateLocked(toID); err != nil {
		return err
	}
	if from.isFinal {
		return fmt.Errorf("%w: state %q is final", ErrInvalidTransition, from.name)
	}
	if m.maxTransitions > 0 && len(m.transitions) >= m.maxTransitions {
		return ErrMaxTransitionsReached
	}

	t := &Transition{
		name:    name,
		fromID:  fromID,
		toID:    toID,
		action:  action,
		guard:   guard,
		isValid: true,
	}
	m.transitionByName[name] = len(m.transitions)
	m.transitions = append(m.transitions, t)
	m.recomputeChecksumLocked()
	return nil
}

// ExecuteTransition looks up the named transition and, if all preconditions
// hold, runs it: F.onExit, t.action, T.onEnter, in that exact order, then
// commits currentStateID = t.to. A hook error rolls the attempt back to F
// (currentStateID is never changed) and increments FailedTransitions.
func (m *StateMachine) ExecuteTransition(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.transitionLocked(name)
	if err != nil {
		return err
	}
	return m.executeLocked(t)
}

// ExecuteBetween is a convenience wrapper for call sites that think in
// terms of a (from, to) pair rather than a transition name: it looks up
// the transition whose endpoints match and executes it by name. It exists
// because the source this engine is modeled on has call sites of both
// shapes; the name-only form remains the canonical precondition check.
func (m *StateMachine) ExecuteBetween(fromID, toID uint32) error {
	m.mu.Lock()
	var found *Transition
	for _, t := range m.transitions {
		if t.fromID == fromID && t.toID == toID {
			found = t
			break
		}
	}
	if found == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: no transition from %d to %d", ErrInvalidTransition, fromID, toID)
	}
	err := m.executeLocked(found)
	m.mu.Unlock()
	return err
}

func (m *StateMachine) executeLocked(t *Transition) (err error) {
	if !t.isValid {
		return fmt.Errorf("%w: transition %q is not valid", ErrInvalidTransition, t.name)
	}
	if m.currentStateID != t.fromID {
		return fmt.Errorf("%w: current state %d does not match transition source %d", ErrInvalidTransition, m.currentStateID, t.fromID)
	}
	from := m.states[t.fromID]
	to := m.states[t.toID]
	if from.isLocked || to.isLocked {
		return ErrStateLocked
	}
	if t.guard != nil && !t.guard(from, to) {
		m.diagnostics.FailedTransitions++
		return fmt.Errorf("%w: guard rejected %q", ErrInvalidTransition, t.name)
	}

	defer func() {
		if r := recover(); r != nil {
			m.diagnostics.FailedTransitions++
			err = fmt.Errorf("%w: hook panic during %q: %v", ErrInvalidTransition, t.name, r)
		}
	}()

	if from.onExit != nil {
		if hookErr := from.onExit(); hookErr != nil {
			m.diagnostics.FailedTransitions++
			return fmt.Errorf("on_exit(%s): %w", from.name, hookErr)
		}
	}
	if t.action != nil {
		if hookErr := t.action(); hookErr != nil {
			m.diagnostics.FailedTransitions++
			return fmt.Errorf("action(%s): %w", t.name, hookErr)
		}
	}
	if to.onEnter != nil {
		if hookErr := to.onEnter(); hookErr != nil {
			m.diagnostics.FailedTransitions++
			return fmt.Errorf("on_enter(%s): %w", to.name, hookErr)
		}
	}

	m.currentStateID = t.toID
	to.touch()
	m.recomputeChecksumLocked()
	return nil
}

// VerifyStateIntegrity recomputes the state's checksum and, if an external
// integrity predicate is registered, calls it too. Any mismatch increments
// IntegrityViolations but never moves the machine to an error state; the
// caller decides the policy response.
func (m *StateMachine) VerifyStateIntegrity(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.stateLocked(id)
	if err != nil {
		return err
	}
	m.diagnostics.LastVerification = time.Now()

	ok := s.VerifyChecksum()
	if ok && m.integrityCheck != nil {
		ok = m.integrityCheck(s)
	}
	if !ok {
		m.diagnostics.IntegrityViolations++
		return ErrIntegrityCheckFailed
	}
	return nil
}

// SetIntegrityPredicate registers an additional external integrity check
// consulted by VerifyStateIntegrity.
func (m *StateMachine) SetIntegrityPredicate(fn IntegrityPredicate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.integrityCheck = fn
}

// LockState marks a state as blocking inbound and outbound transitions.
func (m *StateMachine) LockState(id uint32) error {
	return m.setLocked(id, true)
}

// UnlockState clears a state's lock.
func (m *StateMachine) UnlockState(id uint32) error {
	return m.setLocked(id, false)
}

func (m *StateMachine) setLocked(id uint32, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.stateLocked(id)
	if err != nil {
		return err
	}
	s.isLocked = locked
	s.touch()
	m.recomputeChecksumLocked()
	return nil
}

// CreateSnapshot deep-copies the state at id plus a capture timestamp and
// checksum.
func (m *StateMachine) CreateSnapshot(id uint32) (StateSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.stateLocked(id)
	if err != nil {
		return StateSnapshot{}, err
	}
	return StateSnapshot{
		state:      s.clone(),
		capturedAt: time.Now(),
		checksum:   s.checksum,
	}, nil
}

// RestoreFromSnapshot overwrites the live state in place, provided the
// target is unlocked and its version has not advanced since the snapshot
// was captured. Any mutation since capture invalidates the snapshot.
func (m *StateMachine) RestoreFromSnapshot(snap StateSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	live, err := m.stateLocked(snap.state.id)
	if err != nil {
		return err
	}
	if live.isLocked {
		return ErrStateLocked
	}
	if live.version != snap.state.version {
		return ErrVersionMismatch
	}

	restored := snap.state.clone()
	restored.updatedAt = time.Now()
	restored.version = live.version + 1
	restored.checksum = restored.computeChecksum()
	*live = restored

	m.recomputeChecksumLocked()
	return nil
}

// CurrentStateID returns the id of the currently active state.
func (m *StateMachine) CurrentStateID() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentStateID
}

// State returns a live pointer to the state at id. The pointer is only
// safe to read; mutate it via the StateMachine's methods so version and
// checksum stay in sync.
func (m *StateMachine) State(id uint32) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(id)
}

// StateByName resolves a state id from its unique name.
func (m *StateMachine) StateByName(name string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.stateByName[name]
	if !ok {
		return nil, fmt.Errorf("%w: no state named %q", ErrInvalidState, name)
	}
	return m.stateLocked(id)
}

// Diagnostics returns a snapshot of the machine's monotonic counters.
func (m *StateMachine) Diagnostics() Diagnostics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.diagnostics
}

// Checksum returns the machine-level checksum over all state checksums,
// every transition's from/to ids, and the current state id.
func (m *StateMachine) Checksum() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checksum
}

func (m *StateMachine) stateLocked(id uint32) (*State, error) {
	if id >= uint32(len(m.states)) {
		return nil, fmt.Errorf("%w: state id %d out of range", ErrInvalidState, id)
	}
	return m.states[id], nil
}

func (m *StateMachine) transitionLocked(name string) (*Transition, error) {
	idx, ok := m.transitionByName[name]
	if !ok {
		return nil, fmt.Errorf("%w: no transition named %q", ErrInvalidTransition, name)
	}
	return m.transitions[idx], nil
}

func (m *StateMachine) recomputeChecksumLocked() {
	buf := make([]byte, 0, 4*(len(m.states)+len(m.transitions))+4)
	for _, s := range m.states {
		buf = appendUint32(buf, s.checksum)
	}
	for _, t := range m.transitions {
		buf = appendUint32(buf, t.fromID)
		buf = appendUint32(buf, t.toID)
	}
	buf = appendUint32(buf, m.currentStateID)
	m.checksum = checksum.Sum(buf)
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
