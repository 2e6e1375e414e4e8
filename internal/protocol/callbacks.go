package protocol

// Callbacks is the application-supplied table the dispatcher invokes as it
// classifies decoded frames. Every field is optional; a nil callback is
// simply skipped, which is useful for tests and for endpoints that only
// play one role (a client never needs OnAuthRequest).
type Callbacks struct {
	// OnHandshake fires for every HANDSHAKE frame, both the initial frame
	// and the peer's reply.
	OnHandshake func(c *Context, payload []byte) error

	// OnAuthRequest fires for an AUTH frame received while the
	// connection can still authenticate. It returns whether the
	// credentials were accepted and, on rejection, a reason.
	OnAuthRequest func(c *Context, credentials []byte) (accept bool, reason string)

	// OnCommand fires for a COMMAND frame. The returned bytes are framed
	// as a RESPONSE reusing the COMMAND's sequence number; a non-nil
	// error is framed as ERROR instead.
	OnCommand func(c *Context, payload []byte) ([]byte, error)

	// OnResponse fires for every RESPONSE frame, after the pending-table
	// lookup has already resolved (or failed to find) the correlated
	// waiter.
	OnResponse func(c *Context, sequence uint32, payload []byte, matched bool)

	// OnError fires for every ERROR frame, after the pending-table lookup
	// has already rejected (or failed to find) the correlated waiter.
	OnError func(c *Context, sequence uint32, payload []byte, matched bool)

	// OnHeartbeat fires for every HEARTBEAT frame.
	OnHeartbeat func(c *Context)

	// OnStateChange fires whenever the connection's FSM transitions,
	// after the transition has committed.
	OnStateChange func(c *Context, from, to string)
}
