package session

import (
	"errors"
	"testing"
	"time"
)

func TestNextBackoffDelayLinearNoJitter(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: time.Second, Multiplier: 1.0}
	for attempt, want := range map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 3 * time.Second,
	} {
		if got := NextBackoffDelay(cfg, attempt, nil); got != want {
			t.Fatalf("attempt=%d got=%v want=%v", attempt, got, want)
		}
	}
}

func TestNextBackoffDelayRespectsMaxDelay(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: time.Second, Multiplier: 1.0, MaxDelay: 2 * time.Second}
	if got := NextBackoffDelay(cfg, 10, nil); got != 2*time.Second {
		t.Fatalf("got=%v want=2s", got)
	}
}

func TestPendingTableResolve(t *testing.T) {
	pt := NewPendingTable()
	entry := pt.Register(42, time.Now().Add(time.Second))
	if !pt.Has(42) {
		t.Fatalf("expected entry registered")
	}
	if _, ok := pt.Resolve(42, []byte("ok")); !ok {
		t.Fatalf("resolve: entry not found")
	}
	payload, err := entry.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if string(payload) != "ok" {
		t.Fatalf("payload=%q want=ok", payload)
	}
	if pt.Len() != 0 {
		t.Fatalf("pending table not drained, len=%d", pt.Len())
	}
}

func TestPendingTableTimeout(t *testing.T) {
	pt := NewPendingTable()
	entry := pt.Register(7, time.Now())
	if !pt.Timeout(7) {
		t.Fatalf("timeout: entry not found")
	}
	_, err := entry.Wait()
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// A late response for an already-timed-out sequence is a no-op.
	if _, ok := pt.Resolve(7, []byte("late")); ok {
		t.Fatalf("expected late resolve to find nothing")
	}
}

func TestPendingTableCloseAllRejectsOutstanding(t *testing.T) {
	pt := NewPendingTable()
	a := pt.Register(1, time.Now().Add(time.Minute))
	b := pt.Register(2, time.Now().Add(time.Minute))
	pt.CloseAll()

	for _, e := range []*PendingEntry{a, b} {
		if _, err := e.Wait(); !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("expected ErrConnectionClosed, got %v", err)
		}
	}
	if pt.Len() != 0 {
		t.Fatalf("table not cleared after CloseAll")
	}
}

func TestConfigWithDefaultsFillsZeroFields(t *testing.T) {
	cfg := Config{ResponseTimeout: 9 * time.Second}.WithDefaults()
	if cfg.ResponseTimeout != 9*time.Second {
		t.Fatalf("explicit field overwritten: %v", cfg.ResponseTimeout)
	}
	if cfg.HeartbeatInterval != DefaultConfig().HeartbeatInterval {
		t.Fatalf("zero field not defaulted: %v", cfg.HeartbeatInterval)
	}
}
