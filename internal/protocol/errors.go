package protocol

import "errors"

var (
	// ErrClosed is returned by Send/SendCommand/SendWithSequence once the
	// context has transitioned to CLOSED.
	ErrClosed = errors.New("protocol: context closed")
	// ErrProtocolViolation means a message type was received while the
	// connection was in a state that does not accept it (e.g. AUTH
	// outside HANDSHAKE/AUTH).
	ErrProtocolViolation = errors.New("protocol: message illegal for current state")
	// ErrHandshakeRejected means the peer's handshake payload failed
	// magic or version validation.
	ErrHandshakeRejected = errors.New("protocol: handshake rejected")
	// ErrAuthRejected means the application callback rejected AUTH
	// credentials.
	ErrAuthRejected = errors.New("protocol: auth rejected")
)
