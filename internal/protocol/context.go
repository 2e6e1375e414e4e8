package protocol

import (
	"fmt"
	"sync"
	"time"

	"github.com/polycall-go/polycall/internal/fsm"
	"github.com/polycall-go/polycall/internal/logging"
	"github.com/polycall-go/polycall/internal/metrics"
	"github.com/polycall-go/polycall/internal/protocol/frame"
	"github.com/polycall-go/polycall/internal/protocol/handshake"
	"github.com/polycall-go/polycall/internal/protocol/session"
	"github.com/polycall-go/polycall/internal/transport"
)

// Context is a per-connection structure owning the FSM instance, a
// non-owning reference to the transport endpoint, the outbound sequence
// counter, the pending-response table, and the callback table the
// dispatcher invokes.
type Context struct {
	mu sync.Mutex

	machine *fsm.StateMachine
	stateID map[string]uint32

	transport transport.Stream
	cfg       session.Config

	seq     uint32
	pending *session.PendingTable
	recvBuf []byte

	cb       Callbacks
	UserData any

	heartbeatDeadline time.Time
}

// NewContext wires a fresh connection-lifecycle FSM (init -> handshake ->
// auth -> ready, with error and closed side branches) to transport and
// returns a Context ready to send and receive frames.
func NewContext(t transport.Stream, cfg session.Config, cb Callbacks) (*Context, error) {
	cfg = cfg.WithDefaults()
	machine := fsm.New(fsm.Options{})
	c := &Context{
		machine:   machine,
		stateID:   make(map[string]uint32),
		transport: t,
		cfg:       cfg,
		seq:       1,
		pending:   session.NewPendingTable(),
		cb:        cb,
	}
	if err := c.buildTopology(); err != nil {
		return nil, err
	}
	return c, nil
}

// lifecycleStates is the ordered set of lifecycle states; index order doesn't matter
// for correctness, only that init is added first so it gets id 0 and
// becomes the machine's initial current state.
var lifecycleStates = []struct {
	name    string
	isFinal bool
}{
	{StateInit, false},
	{StateHandshake, false},
	{StateAuth, false},
	{StateReady, false},
	{StateError, false},
	{StateClosed, true},
}

// lifecycleEdges is every legal (from, to) pair in the connection-lifecycle
// FSM: the happy path plus a fault edge and a disconnect edge out of every
// non-final state.
func lifecycleEdges() [][2]string {
	edges := [][2]string{
		{StateInit, StateHandshake},
		{StateHandshake, StateAuth},
		{StateAuth, StateReady},
	}
	for _, s := range []string{StateInit, StateHandshake, StateAuth, StateReady} {
		edges = append(edges, [2]string{s, StateError})
	}
	for _, s := range []string{StateInit, StateHandshake, StateAuth, StateReady, StateError} {
		edges = append(edges, [2]string{s, StateClosed})
	}
	return edges
}

func (c *Context) buildTopology() error {
	for _, s := range lifecycleStates {
		var onEnter fsm.Hook
		if s.name == StateClosed {
			onEnter = c.onEnterClosed
		}
		id, err := c.machine.AddState(s.name, onEnter, nil, s.isFinal)
		if err != nil {
			return fmt.Errorf("protocol: wire state %q: %w", s.name, err)
		}
		c.stateID[s.name] = id
	}
	for _, e := range lifecycleEdges() {
		from, to := c.stateID[e[0]], c.stateID[e[1]]
		name := e[0] + "->" + e[1]
		if err := c.machine.AddTransition(name, from, to, nil, nil); err != nil {
			return fmt.Errorf("protocol: wire transition %q: %w", name, err)
		}
	}
	return nil
}

func (c *Context) onEnterClosed() error {
	c.pending.CloseAll()
	return nil
}

// State returns the name of the connection's current lifecycle state.
func (c *Context) State() string {
	id := c.machine.CurrentStateID()
	s, err := c.machine.State(id)
	if err != nil {
		return StateInit
	}
	return s.Name()
}

// transitionTo drives the FSM from its current state to target, if an edge
// exists, and fires OnStateChange on success.
func (c *Context) transitionTo(target string) error {
	from := c.State()
	if from == target {
		return nil
	}
	fromID, to := c.stateID[from], c.stateID[target]
	name := from + "->" + target
	if err := c.machine.ExecuteBetween(fromID, to); err != nil {
		metrics.RecordTransition(name, "failed")
		return err
	}
	metrics.RecordTransition(name, "ok")
	if c.cb.OnStateChange != nil {
		c.cb.OnStateChange(c, from, target)
	}
	return nil
}

// VerifyIntegrity recomputes the current state's checksum and reports a
// mismatch both to the caller and to the integrity-violation counter. It
// never changes FSM state.
func (c *Context) VerifyIntegrity() error {
	id := c.machine.CurrentStateID()
	if err := c.machine.VerifyStateIntegrity(id); err != nil {
		metrics.RecordIntegrityViolation(c.State())
		return err
	}
	return nil
}

// Fault drives the connection to ERROR, logging the triggering cause.
func (c *Context) Fault(cause error) {
	logging.L().Warn().Err(cause).Str("state", c.State()).Msg("protocol: connection fault")
	if err := c.transitionTo(StateError); err != nil {
		logging.L().Error().Err(err).Msg("protocol: failed to transition to error state")
	}
}

// Close drives the connection to CLOSED, rejecting all pending responses
// and releasing the transport. Safe to call more than once.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != StateClosed {
		if err := c.transitionTo(StateClosed); err != nil {
			return err
		}
	}
	return c.transport.Close()
}

// nextSequence returns the next outbound sequence number, post-incrementing
// and wrapping modulo 2^32.
func (c *Context) nextSequence() uint32 {
	s := c.seq
	c.seq++ // wraps naturally: uint32 arithmetic is already mod 2^32
	return s
}

// Send assigns the next sequence number, frames (typ, flags, payload), and
// writes it to the transport.
func (c *Context) Send(typ frame.Type, flags frame.Flags, payload []byte) (uint32, error) {
	c.mu.Lock()
	seq := c.nextSequence()
	c.mu.Unlock()
	return seq, c.sendWithSequence(typ, flags, seq, payload)
}

// SendWithSequence writes a frame reusing an existing sequence number. The
// dispatcher uses this to frame a COMMAND's RESPONSE/ERROR with the
// triggering COMMAND's own sequence, per the wire contract.
func (c *Context) SendWithSequence(typ frame.Type, flags frame.Flags, sequence uint32, payload []byte) error {
	return c.sendWithSequence(typ, flags, sequence, payload)
}

func (c *Context) sendWithSequence(typ frame.Type, flags frame.Flags, sequence uint32, payload []byte) error {
	if c.State() == StateClosed {
		return ErrClosed
	}
	wire := frame.Encode(typ, flags, sequence, payload)
	n, err := c.transport.Write(wire)
	if err != nil {
		return err
	}
	if n != len(wire) {
		return fmt.Errorf("protocol: short write: wrote %d of %d bytes", n, len(wire))
	}
	return nil
}

// SendHandshake emits the initial or reply HANDSHAKE frame.
func (c *Context) SendHandshake(reply bool) (uint32, error) {
	flags := frame.Flags(0)
	if reply {
		flags |= frame.FlagReply
	}
	return c.Send(frame.TypeHandshake, flags, handshake.Encode())
}

// SendCommand assigns a sequence, registers a pending-response entry with
// the configured response timeout, and sends the COMMAND frame. The caller
// waits on the returned entry for the correlated RESPONSE or ERROR. A timer
// rejects the entry with session.ErrTimeout if neither arrives before
// ResponseTimeout elapses; a RESPONSE/ERROR that arrives afterward finds the
// entry already gone and is simply discarded by the dispatcher.
func (c *Context) SendCommand(payload []byte) (*session.PendingEntry, uint32, error) {
	c.mu.Lock()
	seq := c.nextSequence()
	deadline := time.Now().Add(c.cfg.ResponseTimeout)
	entry := c.pending.Register(seq, deadline)
	c.mu.Unlock()

	time.AfterFunc(c.cfg.ResponseTimeout, func() {
		if c.pending.Timeout(seq) {
			metrics.RecordPendingOutcome("timeout", c.cfg.ResponseTimeout)
		}
	})

	if err := c.sendWithSequence(frame.TypeCommand, frame.FlagReliable, seq, payload); err != nil {
		c.pending.Reject(seq, err)
		return nil, seq, err
	}
	return entry, seq, nil
}

// SendAuth emits an AUTH frame carrying credentials. Callers typically
// build payload with EncodeAuthToken or their own TLV schema.
func (c *Context) SendAuth(credentials []byte) (uint32, error) {
	return c.Send(frame.TypeAuth, 0, credentials)
}

// SendHeartbeat emits an advisory, empty-payload HEARTBEAT frame. No FSM
// transition results from it, in either direction.
func (c *Context) SendHeartbeat() error {
	_, err := c.Send(frame.TypeHeartbeat, 0, nil)
	return err
}

// PendingCount returns the number of outstanding COMMANDs awaiting a
// RESPONSE or ERROR.
func (c *Context) PendingCount() int {
	return c.pending.Len()
}

// Config returns the context's effective session configuration.
func (c *Context) Config() session.Config {
	return c.cfg
}

// HeartbeatDeadline returns the last known peer-liveness deadline, reset by
// every received HEARTBEAT.
func (c *Context) HeartbeatDeadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeatDeadline
}

// ReadTransport reads directly from the underlying transport stream. It
// exists so a caller's read loop can own blocking I/O while Feed stays a
// pure decode-and-dispatch step.
func (c *Context) ReadTransport(buf []byte) (int, error) {
	return c.transport.Read(buf)
}

// SetReadDeadline forwards to the underlying transport stream.
func (c *Context) SetReadDeadline(t time.Time) error {
	return c.transport.SetReadDeadline(t)
}
