package metrics

import (
	"testing"
	"time"
)

func TestRegisterAndRecordersAreSafe(t *testing.T) {
	Register()
	Register()

	RecordFrameDispatched("COMMAND", "ready")
	RecordTransition("init->handshake", "ok")
	RecordIntegrityViolation("ready")
	RecordPendingOutcome("resolved", 4*time.Millisecond)
	RecordReconnectAttempt("ok")
}
