// Package protocol couples a transport endpoint to an FSM instance: it
// owns the sequence counter, the pending-response table, and the
// handshake/auth/command/error/heartbeat dispatch that drives FSM
// transitions from decoded frames. Context and dispatch live in one
// package deliberately: the dispatcher never runs without a Context to
// drive, and a Context never decodes a frame without handing it to the
// dispatcher.
package protocol

// State names for the connection-lifecycle FSM this package wires on top
// of the generic engine in internal/fsm.
const (
	StateInit      = "init"
	StateHandshake = "handshake"
	StateAuth      = "auth"
	StateReady     = "ready"
	StateError     = "error"
	StateClosed    = "closed"
)
