// Package memtransport provides an in-memory transport provider for tests
// and local development. Queues are slice-backed, failures are scriptable
// per operation, and call counters allow tests to assert which provider
// calls a gateway operation actually made.
package memtransport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/architeacher/mq-gateway/pkg/gateway"
)

// Transport implements gateway.Provider entirely in memory.
type Transport struct {
	mu     sync.Mutex
	queues map[string][][]byte

	openErr   error
	accessErr error
	putErr    error
	getErr    error
	browseErr error
	depthErr  error
	commitErr error

	lastProps gateway.Properties

	openCalls   int
	putCalls    int
	getCalls    int
	browseCalls int
	depthCalls  int
	commitCalls int

	// opLatency stretches each queue-touching call so overlap between
	// concurrent operations becomes observable.
	opLatency atomic.Int64

	inFlight     atomic.Int32
	raceDetected atomic.Bool
}

// New creates an empty in-memory transport.
func New() *Transport {
	return &Transport{
		queues: make(map[string][][]byte),
	}
}

// Seed appends the given messages to the named queue, creating it if needed.
func (t *Transport) Seed(queue string, msgs ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, msg := range msgs {
		t.queues[queue] = append(t.queues[queue], []byte(msg))
	}
}

// QueueDepth returns the number of messages currently held by the named queue.
func (t *Transport) QueueDepth(queue string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.queues[queue])
}

// SetOpenErr makes subsequent OpenSession calls fail with err.
func (t *Transport) SetOpenErr(err error) { t.setErr(&t.openErr, err) }

// SetAccessErr makes subsequent AccessQueue calls fail with err.
func (t *Transport) SetAccessErr(err error) { t.setErr(&t.accessErr, err) }

// SetPutErr makes subsequent Put calls fail with err.
func (t *Transport) SetPutErr(err error) { t.setErr(&t.putErr, err) }

// SetGetErr makes subsequent destructive Get calls fail with err.
func (t *Transport) SetGetErr(err error) { t.setErr(&t.getErr, err) }

// SetBrowseErr makes subsequent browse Get calls fail with err.
func (t *Transport) SetBrowseErr(err error) { t.setErr(&t.browseErr, err) }

// SetDepthErr makes subsequent CurrentDepth calls fail with err.
func (t *Transport) SetDepthErr(err error) { t.setErr(&t.depthErr, err) }

// SetCommitErr makes subsequent Commit calls fail with err.
func (t *Transport) SetCommitErr(err error) { t.setErr(&t.commitErr, err) }

func (t *Transport) setErr(slot *error, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	*slot = err
}

// SetOpLatency makes every queue-touching call take at least d.
func (t *Transport) SetOpLatency(d time.Duration) {
	t.opLatency.Store(int64(d))
}

// OpenSessionCalls returns how many sessions were opened.
func (t *Transport) OpenSessionCalls() int { return t.calls(&t.openCalls) }

// PutCalls returns how many puts were attempted.
func (t *Transport) PutCalls() int { return t.calls(&t.putCalls) }

// GetCalls returns how many destructive gets were attempted.
func (t *Transport) GetCalls() int { return t.calls(&t.getCalls) }

// BrowseCalls returns how many browse gets were attempted.
func (t *Transport) BrowseCalls() int { return t.calls(&t.browseCalls) }

// DepthCalls returns how many depth inquiries were attempted.
func (t *Transport) DepthCalls() int { return t.calls(&t.depthCalls) }

// CommitCalls returns how many commits were attempted.
func (t *Transport) CommitCalls() int { return t.calls(&t.commitCalls) }

func (t *Transport) calls(slot *int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return *slot
}

// RaceDetected reports whether two queue-touching calls ever overlapped.
func (t *Transport) RaceDetected() bool {
	return t.raceDetected.Load()
}

// LastProperties returns the properties passed to the most recent
// OpenSession call.
func (t *Transport) LastProperties() gateway.Properties {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(gateway.Properties, len(t.lastProps))
	for k, v := range t.lastProps {
		out[k] = v
	}

	return out
}

// OpenSession implements gateway.Provider.
func (t *Transport) OpenSession(_ context.Context, _ string, props gateway.Properties) (gateway.Session, error) {
	t.mu.Lock()
	t.openCalls++
	t.lastProps = props
	err := t.openErr
	t.mu.Unlock()

	if err != nil {
		return nil, err
	}

	sess := &session{transport: t}
	sess.connected.Store(true)

	return sess, nil
}

func (t *Transport) enter() {
	if t.inFlight.Add(1) > 1 {
		t.raceDetected.Store(true)
	}

	if d := t.opLatency.Load(); d > 0 {
		time.Sleep(time.Duration(d))
	}
}

func (t *Transport) exit() {
	t.inFlight.Add(-1)
}

type session struct {
	transport *Transport
	connected atomic.Bool
}

func (s *session) AccessQueue(name string, opts gateway.OpenOptions) (gateway.Queue, error) {
	t := s.transport
	t.enter()
	defer t.exit()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accessErr != nil {
		return nil, t.accessErr
	}

	if !s.connected.Load() {
		return nil, fmt.Errorf("access queue %q: %w", name, gateway.ErrConnectionBroken)
	}

	if _, ok := t.queues[name]; !ok {
		t.queues[name] = nil
	}

	return &queueHandle{session: s, name: name, opts: opts}, nil
}

func (s *session) Commit() error {
	t := s.transport

	t.mu.Lock()
	defer t.mu.Unlock()

	t.commitCalls++

	return t.commitErr
}

func (s *session) Disconnect() error {
	s.connected.Store(false)

	return nil
}

func (s *session) IsConnected() bool {
	return s.connected.Load()
}

type queueHandle struct {
	session *session
	name    string
	opts    gateway.OpenOptions
}

func (q *queueHandle) Put(_ context.Context, body []byte, _ gateway.PutOptions) error {
	t := q.session.transport
	t.enter()
	defer t.exit()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.putCalls++

	if t.putErr != nil {
		return t.putErr
	}

	if q.opts&gateway.OpenOutput == 0 {
		return fmt.Errorf("queue %q is not open for output", q.name)
	}

	msg := make([]byte, len(body))
	copy(msg, body)
	t.queues[q.name] = append(t.queues[q.name], msg)

	return nil
}

func (q *queueHandle) Get(_ context.Context, opts gateway.GetOptions) ([]byte, error) {
	t := q.session.transport
	t.enter()
	defer t.exit()

	t.mu.Lock()
	defer t.mu.Unlock()

	if opts.BrowseFirst {
		t.browseCalls++
		if t.browseErr != nil {
			return nil, t.browseErr
		}
	} else {
		t.getCalls++
		if t.getErr != nil {
			return nil, t.getErr
		}
	}

	if opts.BrowseFirst && q.opts&gateway.OpenBrowse == 0 {
		return nil, fmt.Errorf("queue %q is not open for browse", q.name)
	}

	msgs := t.queues[q.name]
	if len(msgs) == 0 {
		return nil, nil
	}

	head := msgs[0]
	if !opts.BrowseFirst {
		t.queues[q.name] = msgs[1:]
	}

	out := make([]byte, len(head))
	copy(out, head)

	return out, nil
}

func (q *queueHandle) CurrentDepth() (int, error) {
	t := q.session.transport
	t.enter()
	defer t.exit()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.depthCalls++

	if t.depthErr != nil {
		return 0, t.depthErr
	}

	return len(t.queues[q.name]), nil
}

func (q *queueHandle) Close() error {
	return nil
}
