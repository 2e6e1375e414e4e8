package client

import (
	"github.com/polycall-go/polycall/internal/protocol"
	"github.com/polycall-go/polycall/internal/protocol/session"
)

// Config describes one outbound connection: where to dial, how the
// protocol lifecycle should be timed, and the application callbacks the
// dispatcher should invoke.
type Config struct {
	Address string
	Session session.Config
	// MaxConnectAttempts caps consecutive failed dial/handshake attempts
	// before Run gives up and returns an error. Zero falls back to
	// Session.MaxRetries; if that is also zero, attempts are unbounded
	// and only the context passed to Run can stop the loop.
	MaxConnectAttempts int
	Callbacks          protocol.Callbacks
	// Credentials is the AUTH frame payload sent automatically once the
	// lifecycle FSM reaches AUTH. Build it with protocol.EncodeAuthToken
	// for the built-in bearer-token scheme, or a custom TLV payload for
	// anything else.
	Credentials []byte
}

// DefaultConfig mirrors session.DefaultConfig (reconnection enabled) and
// leaves MaxConnectAttempts at zero, so New caps consecutive attempts at
// Session.MaxRetries (3 by default).
func DefaultConfig(address string) Config {
	return Config{
		Address: address,
		Session: session.DefaultConfig(),
	}
}
