package session

import (
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned to a waiter whose deadline elapsed before a
// RESPONSE or ERROR frame echoing its sequence arrived.
var ErrTimeout = errors.New("session: response timeout")

// ErrConnectionClosed is returned to every pending waiter when the
// transport disconnects.
var ErrConnectionClosed = errors.New("session: connection closed")

// PendingEntry tracks one outstanding COMMAND awaiting its RESPONSE or
// ERROR, keyed by the sequence number the COMMAND was sent with.
type PendingEntry struct {
	Sequence uint32
	Deadline time.Time
	sentAt   time.Time
	resolve  chan result
	once     sync.Once
}

type result struct {
	payload []byte
	err     error
}

func newPendingEntry(seq uint32, deadline time.Time) *PendingEntry {
	return &PendingEntry{
		Sequence: seq,
		Deadline: deadline,
		sentAt:   time.Now(),
		resolve:  make(chan result, 1),
	}
}

// Elapsed returns the time since the entry was registered, for outcome
// metrics recorded at resolve, reject, or timeout.
func (e *PendingEntry) Elapsed() time.Duration {
	return time.Since(e.sentAt)
}

func (e *PendingEntry) complete(payload []byte, err error) {
	e.once.Do(func() {
		e.resolve <- result{payload: payload, err: err}
		close(e.resolve)
	})
}

// Wait blocks until the entry resolves (RESPONSE/ERROR arrives, a timeout
// fires, or the connection closes) and returns the RESPONSE payload or the
// resolved error.
func (e *PendingEntry) Wait() ([]byte, error) {
	r := <-e.resolve
	return r.payload, r.err
}

// PendingTable is the sequence -> pending-response map owned by a
// ProtocolContext. All mutation happens from the connection's single
// owning task, but the mutex guards against a timer goroutine racing a
// RESPONSE arriving on the same sequence.
type PendingTable struct {
	mu    sync.Mutex
	items map[uint32]*PendingEntry
}

// NewPendingTable constructs an empty pending-response table.
func NewPendingTable() *PendingTable {
	return &PendingTable{items: make(map[uint32]*PendingEntry)}
}

// Register adds a new pending entry for sequence and returns it. The
// caller is responsible for arranging a timer that calls Timeout(sequence)
// at deadline.
func (t *PendingTable) Register(sequence uint32, deadline time.Time) *PendingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := newPendingEntry(sequence, deadline)
	t.items[sequence] = e
	return e
}

// Resolve completes the pending entry for sequence with a RESPONSE
// payload, if one is outstanding. It returns the entry (for Elapsed) and
// whether one was found.
func (t *PendingTable) Resolve(sequence uint32, payload []byte) (*PendingEntry, bool) {
	t.mu.Lock()
	e, ok := t.items[sequence]
	if ok {
		delete(t.items, sequence)
	}
	t.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.complete(payload, nil)
	return e, true
}

// Reject completes the pending entry for sequence with err, if one is
// outstanding. Used for ERROR frames, which carry the payload as an error
// message.
func (t *PendingTable) Reject(sequence uint32, err error) (*PendingEntry, bool) {
	t.mu.Lock()
	e, ok := t.items[sequence]
	if ok {
		delete(t.items, sequence)
	}
	t.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.complete(nil, err)
	return e, true
}

// Timeout rejects the pending entry for sequence with ErrTimeout, unless
// it has already resolved (a late RESPONSE/ERROR for an already-timed-out
// sequence is simply discarded by the caller).
func (t *PendingTable) Timeout(sequence uint32) bool {
	_, ok := t.Reject(sequence, ErrTimeout)
	return ok
}

// CloseAll rejects every outstanding entry with ErrConnectionClosed and
// empties the table. Called on transport disconnect.
func (t *PendingTable) CloseAll() {
	t.mu.Lock()
	items := t.items
	t.items = make(map[uint32]*PendingEntry)
	t.mu.Unlock()
	for _, e := range items {
		e.complete(nil, ErrConnectionClosed)
	}
}

// Len returns the number of outstanding entries.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Has reports whether sequence currently has an outstanding entry, without
// removing it. Used to distinguish a late arrival from a live one.
func (t *PendingTable) Has(sequence uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.items[sequence]
	return ok
}
