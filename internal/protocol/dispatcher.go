package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/polycall-go/polycall/internal/metrics"
	"github.com/polycall-go/polycall/internal/protocol/frame"
	"github.com/polycall-go/polycall/internal/protocol/handshake"
	"github.com/polycall-go/polycall/internal/protocol/session"
)

// legalStates enumerates which connection states accept which frame type.
// A type absent from this table is legal in any state (HEARTBEAT and
// ERROR: a peer may report a fault or signal liveness at any point in the
// lifecycle).
var legalStates = map[frame.Type]map[string]bool{
	frame.TypeHandshake: {StateInit: true, StateHandshake: true},
	frame.TypeAuth:      {StateHandshake: true, StateAuth: true},
	frame.TypeCommand:   {StateReady: true},
	// RESPONSE is legal in AUTH too: the client-side confirmation of a
	// successful AUTH frame arrives as a RESPONSE reusing its sequence,
	// and seeing it is how the client learns to advance to READY.
	frame.TypeResponse: {StateAuth: true, StateReady: true},
}

func (c *Context) legalForCurrentState(typ frame.Type) bool {
	allowed, restricted := legalStates[typ]
	if !restricted {
		return true
	}
	return allowed[c.State()]
}

// BeginHandshake drives INIT -> HANDSHAKE locally and sends the initial
// HANDSHAKE frame. It is the client-side entry point into the lifecycle;
// a server instead learns of the handshake by receiving one while in
// INIT.
func (c *Context) BeginHandshake() error {
	if c.State() != StateInit {
		return fmt.Errorf("%w: begin_handshake requires state=init, have %s", ErrProtocolViolation, c.State())
	}
	if err := c.transitionTo(StateHandshake); err != nil {
		return err
	}
	_, err := c.SendHandshake(false)
	return err
}

// Feed accumulates newly-read transport bytes and decodes and dispatches
// every complete frame currently buffered. It never blocks: a partial
// frame is left in the buffer for the next call. A decode error other
// than a short read is fatal to the connection: the FSM moves to ERROR
// and the error is returned to the caller.
func (c *Context) Feed(data []byte) error {
	c.recvBuf = append(c.recvBuf, data...)
	for {
		f, n, err := frame.Decode(c.recvBuf, c.cfg.MaxMessageSize)
		if errors.Is(err, frame.ErrShortRead) {
			return nil
		}
		if err != nil {
			c.recvBuf = c.recvBuf[minInt(n, len(c.recvBuf)):]
			c.Fault(err)
			return err
		}
		c.recvBuf = c.recvBuf[n:]
		if err := c.dispatch(f); err != nil {
			return err
		}
	}
}

func outcomeLabel(base string, matched bool) string {
	if matched {
		return base
	}
	return base + "_unmatched"
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func elapsedOf(e *session.PendingEntry) time.Duration {
	if e == nil {
		return 0
	}
	return e.Elapsed()
}

// dispatch classifies one decoded frame by type, verifies it is legal for
// the current protocol state, and drives the corresponding FSM transition
// and callback.
func (c *Context) dispatch(f frame.Frame) error {
	metrics.RecordFrameDispatched(f.Header.Type.String(), c.State())
	if !c.legalForCurrentState(f.Header.Type) {
		err := fmt.Errorf("%w: %s illegal in state %s", ErrProtocolViolation, f.Header.Type, c.State())
		c.Fault(err)
		return err
	}

	switch f.Header.Type {
	case frame.TypeHandshake:
		return c.dispatchHandshake(f)
	case frame.TypeAuth:
		return c.dispatchAuth(f)
	case frame.TypeCommand:
		return c.dispatchCommand(f)
	case frame.TypeResponse:
		if c.State() == StateAuth {
			if err := c.transitionTo(StateReady); err != nil {
				return err
			}
		}
		entry, matched := c.pending.Resolve(f.Header.Sequence, f.Payload)
		metrics.RecordPendingOutcome(outcomeLabel("resolved", matched), elapsedOf(entry))
		if c.cb.OnResponse != nil {
			c.cb.OnResponse(c, f.Header.Sequence, f.Payload, matched)
		}
		return nil
	case frame.TypeError:
		entry, matched := c.pending.Reject(f.Header.Sequence, errors.New(string(f.Payload)))
		metrics.RecordPendingOutcome(outcomeLabel("rejected", matched), elapsedOf(entry))
		if c.cb.OnError != nil {
			c.cb.OnError(c, f.Header.Sequence, f.Payload, matched)
		}
		return nil
	case frame.TypeHeartbeat:
		c.mu.Lock()
		c.heartbeatDeadline = time.Now().Add(2 * c.cfg.HeartbeatInterval)
		c.mu.Unlock()
		if c.cb.OnHeartbeat != nil {
			c.cb.OnHeartbeat(c)
		}
		return nil
	default:
		// Unreachable: frame.Decode already rejects unknown types.
		return fmt.Errorf("%w: unhandled type %s", ErrProtocolViolation, f.Header.Type)
	}
}

func (c *Context) dispatchHandshake(f frame.Frame) error {
	if c.cb.OnHandshake != nil {
		if err := c.cb.OnHandshake(c, f.Payload); err != nil {
			c.Fault(err)
			return err
		}
	}
	if _, err := handshake.Decode(f.Payload, f.Header.Version); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrHandshakeRejected, err)
		c.Fault(wrapped)
		return wrapped
	}

	switch {
	case c.State() == StateInit:
		// The peer initiated; mirror their transition, answer, and move
		// straight to AUTH. This side never receives a reply-flagged
		// HANDSHAKE of its own, so waiting for one would strand it in
		// HANDSHAKE forever.
		if err := c.transitionTo(StateHandshake); err != nil {
			return err
		}
		if _, err := c.SendHandshake(true); err != nil {
			return err
		}
		return c.transitionTo(StateAuth)
	case c.State() == StateHandshake && f.Header.Flags.Has(frame.FlagReply):
		return c.transitionTo(StateAuth)
	default:
		// A retried initial handshake while we're already in HANDSHAKE:
		// answer again without re-transitioning.
		_, err := c.SendHandshake(true)
		return err
	}
}

func (c *Context) dispatchAuth(f frame.Frame) error {
	if c.cb.OnAuthRequest == nil {
		return c.SendWithSequence(frame.TypeError, 0, f.Header.Sequence, []byte("no auth handler configured"))
	}
	accept, reason := c.cb.OnAuthRequest(c, f.Payload)
	if !accept {
		return c.SendWithSequence(frame.TypeError, 0, f.Header.Sequence, []byte(reason))
	}
	if err := c.transitionTo(StateReady); err != nil {
		return err
	}
	return c.SendWithSequence(frame.TypeResponse, 0, f.Header.Sequence, []byte("accepted"))
}

func (c *Context) dispatchCommand(f frame.Frame) error {
	if c.cb.OnCommand == nil {
		return c.SendWithSequence(frame.TypeError, 0, f.Header.Sequence, []byte("no command handler configured"))
	}
	resp, err := c.cb.OnCommand(c, f.Payload)
	if err != nil {
		return c.SendWithSequence(frame.TypeError, 0, f.Header.Sequence, []byte(err.Error()))
	}
	return c.SendWithSequence(frame.TypeResponse, 0, f.Header.Sequence, resp)
}
