// Package client orchestrates the outbound half of a connection: dialing
// with backoff and retry, driving the handshake/auth lifecycle to READY,
// queuing commands sent while disconnected, and reconnecting
// transparently when the transport drops.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/polycall-go/polycall/internal/logging"
	"github.com/polycall-go/polycall/internal/metrics"
	"github.com/polycall-go/polycall/internal/protocol"
	"github.com/polycall-go/polycall/internal/protocol/session"
	"github.com/polycall-go/polycall/internal/transport"
)

// ErrShutdown is returned to queued senders, and from Run, once Shutdown
// has been called.
var ErrShutdown = errors.New("client: shut down")

// ErrConnectAttemptsExhausted is returned by Run when MaxConnectAttempts
// consecutive dial/handshake attempts have failed.
var ErrConnectAttemptsExhausted = errors.New("client: connect attempts exhausted")

type queuedSend struct {
	payload []byte
	done    chan sendResult
}

type sendResult struct {
	entry *session.PendingEntry
	seq   uint32
	err   error
}

// Client owns the reconnect loop for a single logical peer. Commands sent
// while disconnected are queued and flushed, in order, against the next
// live connection.
type Client struct {
	cfg Config
	rng *rand.Rand

	mu       sync.Mutex
	ctx      *protocol.Context
	queue    []*queuedSend
	shutdown bool

	dial func(addr string, timeout time.Duration) (transport.Stream, error)
}

// New constructs a Client. It does not dial; call Run to start the
// connect/reconnect loop.
func New(cfg Config) *Client {
	cfg.Session = cfg.Session.WithDefaults()
	if cfg.MaxConnectAttempts == 0 {
		cfg.MaxConnectAttempts = cfg.Session.MaxRetries
	}
	return &Client{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(1)),
		dial: transport.TCPDial,
	}
}

// Run drives the connect -> lifecycle -> read loop -> (on disconnect)
// reconnect cycle until ctx is cancelled, Shutdown is called, or
// reconnection is disabled and a connection drops. It blocks until the
// client stops running.
func (c *Client) Run(ctx context.Context) error {
	for {
		if c.isShutdown() {
			return ErrShutdown
		}
		live, err := c.connectWithBackoff(ctx)
		if err != nil {
			return err
		}

		c.setLive(live)
		c.flushQueue(live)

		heartbeatDone := make(chan struct{})
		go c.heartbeatLoop(live, heartbeatDone)

		runErr := c.readLoop(ctx, live)
		close(heartbeatDone)
		c.setLive(nil)
		_ = live.Close()

		if c.isShutdown() || ctx.Err() != nil {
			return ErrShutdown
		}
		if !c.cfg.Session.Reconnect {
			return runErr
		}
		logging.L().Warn().Err(runErr).Str("addr", c.cfg.Address).Msg("client: connection lost, reconnecting")
	}
}

// Shutdown disables reconnection, rejects every queued send, and causes
// Run to return once the current connection (if any) observes
// ctx.Done or the next read error.
func (c *Client) Shutdown() {
	c.mu.Lock()
	c.shutdown = true
	queue := c.queue
	c.queue = nil
	live := c.ctx
	c.mu.Unlock()

	for _, q := range queue {
		q.done <- sendResult{err: ErrShutdown}
	}
	if live != nil {
		_ = live.Close()
	}
}

func (c *Client) isShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdown
}

func (c *Client) setLive(ctx *protocol.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
}

// SendCommand sends payload as a COMMAND on the current live connection,
// or queues it if the client is between connections. It blocks until the
// command is actually sent (not until it's answered); use the returned
// entry's Wait to block for the RESPONSE/ERROR.
func (c *Client) SendCommand(payload []byte) (*session.PendingEntry, uint32, error) {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return nil, 0, ErrShutdown
	}
	live := c.ctx
	if live != nil && live.State() == protocol.StateReady {
		c.mu.Unlock()
		return live.SendCommand(payload)
	}
	q := &queuedSend{payload: payload, done: make(chan sendResult, 1)}
	c.queue = append(c.queue, q)
	c.mu.Unlock()

	r := <-q.done
	return r.entry, r.seq, r.err
}

// QueueLen returns the number of commands queued awaiting a live,
// READY connection.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Client) flushQueue(live *protocol.Context) {
	c.mu.Lock()
	queue := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, q := range queue {
		entry, seq, err := live.SendCommand(q.payload)
		q.done <- sendResult{entry: entry, seq: seq, err: err}
	}
}

func (c *Client) connectWithBackoff(ctx context.Context) (*protocol.Context, error) {
	var attempt int
	for {
		attempt++
		live, err := c.connectOnce(ctx)
		if err == nil {
			return live, nil
		}
		metrics.RecordReconnectAttempt("failed")
		logging.L().Warn().Err(err).Int("attempt", attempt).Str("addr", c.cfg.Address).Msg("client: connect attempt failed")

		if c.cfg.MaxConnectAttempts > 0 && attempt >= c.cfg.MaxConnectAttempts {
			return nil, fmt.Errorf("%w: %v", ErrConnectAttemptsExhausted, err)
		}
		delay := session.NextBackoffDelay(c.cfg.Session.Backoff, attempt, c.rng)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) connectOnce(ctx context.Context) (*protocol.Context, error) {
	stream, err := c.dial(c.cfg.Address, c.cfg.Session.HandshakeTimeout)
	if err != nil {
		return nil, err
	}
	live, err := protocol.NewContext(stream, c.cfg.Session, c.cfg.Callbacks)
	if err != nil {
		_ = stream.Close()
		return nil, err
	}
	if err := live.BeginHandshake(); err != nil {
		_ = stream.Close()
		return nil, err
	}

	deadline := time.Now().Add(c.cfg.Session.HandshakeTimeout)
	if err := c.establish(ctx, live, deadline); err != nil {
		_ = stream.Close()
		return nil, err
	}
	metrics.RecordReconnectAttempt("ok")
	return live, nil
}

// establish blocks, feeding bytes into live, until the lifecycle FSM
// reaches READY (success) or ERROR (rejected) or the handshake deadline
// elapses.
func (c *Client) establish(ctx context.Context, live *protocol.Context, deadline time.Time) error {
	buf := make([]byte, 4096)
	sentAuth := false
	for {
		switch live.State() {
		case protocol.StateReady:
			return nil
		case protocol.StateError, protocol.StateClosed:
			return fmt.Errorf("client: handshake failed, state=%s", live.State())
		case protocol.StateAuth:
			if !sentAuth {
				if _, err := live.SendAuth(c.cfg.Credentials); err != nil {
					return err
				}
				sentAuth = true
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := live.SetReadDeadline(deadline); err != nil {
			return err
		}
		n, err := live.ReadTransport(buf)
		if err != nil {
			return err
		}
		if err := live.Feed(buf[:n]); err != nil {
			return err
		}
	}
}

func (c *Client) readLoop(ctx context.Context, live *protocol.Context) error {
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = live.SetReadDeadline(time.Now().Add(live.Config().HeartbeatInterval * 3))
		n, err := live.ReadTransport(buf)
		if err != nil {
			return err
		}
		if err := live.Feed(buf[:n]); err != nil {
			return err
		}
	}
}

func (c *Client) heartbeatLoop(live *protocol.Context, done <-chan struct{}) {
	interval := live.Config().HeartbeatInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := live.SendHeartbeat(); err != nil {
				return
			}
		}
	}
}
