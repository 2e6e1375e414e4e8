package fsm

import (
	"errors"
	"testing"
)

func buildReadyRunning(t *testing.T) (*StateMachine, uint32, uint32, uint32) {
	t.Helper()
	m := New(Options{})
	initID, err := m.AddState("init", nil, nil, false)
	if err != nil {
		t.Fatalf("add init: %v", err)
	}
	readyID, err := m.AddState("ready", nil, nil, false)
	if err != nil {
		t.Fatalf("add ready: %v", err)
	}
	runningID, err := m.AddState("running", nil, nil, false)
	if err != nil {
		t.Fatalf("add running: %v", err)
	}
	if err := m.AddTransition("to_ready", initID, readyID, nil, nil); err != nil {
		t.Fatalf("add to_ready: %v", err)
	}
	if err := m.AddTransition("to_running", readyID, runningID, nil, nil); err != nil {
		t.Fatalf("add to_running: %v", err)
	}
	return m, initID, readyID, runningID
}

func TestExecuteTransitionHappyPath(t *testing.T) {
	m, _, readyID, runningID := buildReadyRunning(t)

	if err := m.ExecuteTransition("to_ready"); err != nil {
		t.Fatalf("to_ready: %v", err)
	}
	if m.CurrentStateID() != readyID {
		t.Fatalf("current=%d want=%d", m.CurrentStateID(), readyID)
	}

	preVersion := mustState(t, m, runningID).Version()
	if err := m.ExecuteTransition("to_running"); err != nil {
		t.Fatalf("to_running: %v", err)
	}
	if m.CurrentStateID() != runningID {
		t.Fatalf("current=%d want=%d", m.CurrentStateID(), runningID)
	}
	if got := mustState(t, m, runningID).Version(); got != preVersion+1 {
		t.Fatalf("running version=%d want=%d", got, preVersion+1)
	}
}

func TestExecuteTransitionWrongCurrentState(t *testing.T) {
	m, _, _, _ := buildReadyRunning(t)
	// to_running requires current==ready, but we're still at init.
	if err := m.ExecuteTransition("to_running"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestExecuteTransitionGuardRejection(t *testing.T) {
	m := New(Options{})
	a, _ := m.AddState("a", nil, nil, false)
	b, _ := m.AddState("b", nil, nil, false)
	guardCalls := 0
	_ = m.AddTransition("a_to_b", a, b, nil, func(from, to *State) bool {
		guardCalls++
		return false
	})

	err := m.ExecuteTransition("a_to_b")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if guardCalls != 1 {
		t.Fatalf("guard calls=%d want=1", guardCalls)
	}
	if m.Diagnostics().FailedTransitions != 1 {
		t.Fatalf("failed transitions=%d want=1", m.Diagnostics().FailedTransitions)
	}
	if m.CurrentStateID() != a {
		t.Fatalf("current state moved despite guard rejection")
	}
}

func TestExecuteTransitionHookErrorRollsBack(t *testing.T) {
	m := New(Options{})
	a, _ := m.AddState("a", nil, nil, false)
	b, _ := m.AddState("b", nil, nil, false)
	_ = m.AddTransition("a_to_b", a, b, func() error {
		return errors.New("boom")
	}, nil)

	if err := m.ExecuteTransition("a_to_b"); err == nil {
		t.Fatalf("expected error from failing action hook")
	}
	if m.CurrentStateID() != a {
		t.Fatalf("state machine did not roll back to source state")
	}
	if m.Diagnostics().FailedTransitions != 1 {
		t.Fatalf("failed transitions not incremented")
	}
}

func TestExecuteTransitionHookPanicRollsBack(t *testing.T) {
	m := New(Options{})
	a, _ := m.AddState("a", nil, nil, false)
	b, _ := m.AddState("b", nil, nil, false)
	_ = m.AddTransition("a_to_b", a, b, func() error {
		panic("unexpected")
	}, nil)

	err := m.ExecuteTransition("a_to_b")
	if err == nil {
		t.Fatalf("expected error recovered from panicking hook")
	}
	if m.CurrentStateID() != a {
		t.Fatalf("state did not roll back after hook panic")
	}
}

func TestLockedStateBlocksTransition(t *testing.T) {
	m, initID, readyID, _ := buildReadyRunning(t)
	if err := m.LockState(readyID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	_ = initID
	if err := m.ExecuteTransition("to_ready"); !errors.Is(err, ErrStateLocked) {
		t.Fatalf("expected ErrStateLocked, got %v", err)
	}
}

func TestAddTransitionFromFinalStateRejected(t *testing.T) {
	m := New(Options{})
	fin, _ := m.AddState("done", nil, nil, true)
	other, _ := m.AddState("other", nil, nil, false)
	if err := m.AddTransition("done_to_other", fin, other, nil, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMaxStatesReached(t *testing.T) {
	m := New(Options{MaxStates: 1})
	if _, err := m.AddState("a", nil, nil, false); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if _, err := m.AddState("b", nil, nil, false); !errors.Is(err, ErrMaxStatesReached) {
		t.Fatalf("expected ErrMaxStatesReached, got %v", err)
	}
}

func TestDuplicateStateNameRejected(t *testing.T) {
	m := New(Options{})
	if _, err := m.AddState("a", nil, nil, false); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if _, err := m.AddState("a", nil, nil, false); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestVerifyStateIntegrityDetectsTamper(t *testing.T) {
	m := New(Options{})
	id, _ := m.AddState("a", nil, nil, false)
	s, err := m.State(id)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if err := m.VerifyStateIntegrity(id); err != nil {
		t.Fatalf("expected clean integrity check, got %v", err)
	}

	s.name = "tampered" // simulate silent mutation bypassing touch()

	if err := m.VerifyStateIntegrity(id); !errors.Is(err, ErrIntegrityCheckFailed) {
		t.Fatalf("expected ErrIntegrityCheckFailed, got %v", err)
	}
	if m.Diagnostics().IntegrityViolations != 1 {
		t.Fatalf("integrity violations=%d want=1", m.Diagnostics().IntegrityViolations)
	}
}

func TestSnapshotRestoreVersionMismatch(t *testing.T) {
	m := New(Options{})
	id, _ := m.AddState("a", nil, nil, false)

	snap, err := m.CreateSnapshot(id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := m.LockState(id); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := m.UnlockState(id); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	err = m.RestoreFromSnapshot(snap)
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestSnapshotRestoreNoOpWhenUnchanged(t *testing.T) {
	m := New(Options{})
	id, _ := m.AddState("a", nil, nil, false)
	snap, err := m.CreateSnapshot(id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := m.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	s := mustState(t, m, id)
	snapState := snap.State()
	if s.Name() != snapState.Name() || s.IsFinal() != snapState.IsFinal() {
		t.Fatalf("restored state diverged from snapshot")
	}
}

func TestRestoreFromSnapshotLockedTargetRejected(t *testing.T) {
	m := New(Options{})
	id, _ := m.AddState("a", nil, nil, false)
	snap, err := m.CreateSnapshot(id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := m.LockState(id); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := m.RestoreFromSnapshot(snap); !errors.Is(err, ErrStateLocked) {
		t.Fatalf("expected ErrStateLocked, got %v", err)
	}
}

func mustState(t *testing.T, m *StateMachine, id uint32) *State {
	t.Helper()
	s, err := m.State(id)
	if err != nil {
		t.Fatalf("state %d: %v", id, err)
	}
	return s
}
