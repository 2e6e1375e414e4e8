package session

import "time"

// BackoffConfig parameterizes the reconnect delay curve. The runtime's
// default profile is plain linear backoff (Multiplier == 1.0, no
// jitter); the exponential/jittered shape is available to a deployment
// that wants it without touching the formula in backoff.go.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines the protocol context's timing and reliability defaults,
// matching the configuration surface in the runtime's wire contract.
type Config struct {
	// MaxMessageSize caps payload_length on decode (max_message_size).
	MaxMessageSize uint32
	// ResponseTimeout bounds how long a pending COMMAND waits for its
	// RESPONSE/ERROR before the waiter is rejected with TIMEOUT.
	ResponseTimeout time.Duration
	// HeartbeatInterval is how often the client emits an advisory
	// HEARTBEAT frame.
	HeartbeatInterval time.Duration
	// HandshakeTimeout bounds the client orchestrator's dial and its
	// INIT -> READY handshake/auth exchange.
	HandshakeTimeout time.Duration
	// Reconnect enables the client orchestrator's reconnect policy.
	Reconnect bool
	// MaxRetries bounds reconnect attempts; 0 disables the cap and the
	// orchestrator retries indefinitely.
	MaxRetries int
	Backoff    BackoffConfig
}

// DefaultConfig returns the runtime's baseline defaults: 4096-byte max
// message size, 5s response timeout, 5s heartbeat interval, reconnect
// enabled with up to 3 attempts at linear attempt*1s backoff.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize:    4096,
		ResponseTimeout:   5 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		HandshakeTimeout:  5 * time.Second,
		Reconnect:         true,
		MaxRetries:        3,
		Backoff: BackoffConfig{
			InitialDelay: 1 * time.Second,
			Multiplier:   1.0,
			MaxDelay:     0,
			Jitter:       false,
		},
	}
}

// WithDefaults fills the zero-valued size, timeout and interval fields of
// cfg with their baseline defaults, and replaces Backoff as a whole when
// its InitialDelay is zero. Reconnect and MaxRetries are kept as given.
func (cfg Config) WithDefaults() Config {
	d := DefaultConfig()
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = d.MaxMessageSize
	}
	if cfg.ResponseTimeout == 0 {
		cfg.ResponseTimeout = d.ResponseTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = d.HeartbeatInterval
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = d.HandshakeTimeout
	}
	if cfg.Backoff.InitialDelay == 0 {
		cfg.Backoff = d.Backoff
	}
	return cfg
}
