package realtime

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/agentuity/go-storefront/logger"
	"github.com/agentuity/go-storefront/session"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type dialRecord struct {
	token      string
	openAtDial int
}

type fakeDialer struct {
	mu        sync.Mutex
	dials     []dialRecord
	open      int
	maxOpen   int
	conns     []*fakeConn
	fail      map[string]error
	gates     map[string]chan struct{}
	ignoreCtx bool
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		fail:  make(map[string]error),
		gates: make(map[string]chan struct{}),
	}
}

// hold makes dials for token block until release is called.
func (d *fakeDialer) hold(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gates[token] = make(chan struct{})
}

func (d *fakeDialer) release(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	close(d.gates[token])
}

func (d *fakeDialer) failWith(token string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[token] = err
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string, token string) (Conn, error) {
	d.mu.Lock()
	d.dials = append(d.dials, dialRecord{token, d.open})
	gate := d.gates[token]
	err := d.fail[token]
	d.mu.Unlock()

	if gate != nil {
		if d.ignoreCtx {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, err
	}
	c := &fakeConn{
		dialer:   d,
		token:    token,
		incoming: make(chan Message, 16),
		closed:   make(chan struct{}),
	}
	d.mu.Lock()
	d.open++
	if d.open > d.maxOpen {
		d.maxOpen = d.open
	}
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	tokens := make([]string, len(d.dials))
	for i, r := range d.dials {
		tokens[i] = r.token
	}
	return tokens
}

func (d *fakeDialer) records() []dialRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dialRecord(nil), d.dials...)
}

func (d *fakeDialer) openConns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *fakeDialer) peak() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxOpen
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

type fakeConn struct {
	dialer   *fakeDialer
	token    string
	incoming chan Message
	closed   chan struct{}
	once     sync.Once
	sentMu   sync.Mutex
	sent     []Message
	remote   sync.Once
	hangup   chan struct{}
}

func (c *fakeConn) Receive() (Message, error) {
	select {
	case msg := <-c.incoming:
		return msg, nil
	case <-c.closed:
		return Message{}, io.ErrClosedPipe
	case <-c.hangupChan():
		return Message{}, io.EOF
	}
}

func (c *fakeConn) hangupChan() chan struct{} {
	c.remote.Do(func() { c.hangup = make(chan struct{}) })
	return c.hangup
}

// remoteClose simulates the server ending the connection.
func (c *fakeConn) remoteClose() {
	close(c.hangupChan())
}

func (c *fakeConn) Send(msg Message) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.sentMu.Lock()
	defer c.sentMu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.dialer.mu.Lock()
		c.dialer.open--
		c.dialer.mu.Unlock()
	})
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type recording struct {
	transitions []string
	connects    int
	disconnects int
	errs        []error
	messages    []Message
}

type recorder struct {
	mu          sync.Mutex
	transitions []string
	connects    int
	disconnects int
	errs        []error
	messages    []Message
}

func (r *recorder) handler() Handler {
	return &HandlerCallback{
		OnStateChangeFunc: func(m *Manager, from, to ConnectionState) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.transitions = append(r.transitions, from.String()+"->"+to.String())
		},
		OnConnectFunc: func(m *Manager) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.connects++
		},
		OnDisconnectFunc: func(m *Manager) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.disconnects++
		},
		OnMessageFunc: func(m *Manager, msg Message) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.messages = append(r.messages, msg)
		},
		OnErrorFunc: func(m *Manager, err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func (r *recorder) snapshot() recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recording{
		transitions: append([]string(nil), r.transitions...),
		connects:    r.connects,
		disconnects: r.disconnects,
		errs:        append([]error(nil), r.errs...),
		messages:    append([]Message(nil), r.messages...),
	}
}

type harness struct {
	store   *session.Store
	dialer  *fakeDialer
	events  *recorder
	manager *Manager
	log     *logger.TestLogger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  session.NewStore(),
		dialer: newFakeDialer(),
		events: &recorder{},
		log:    logger.NewTestLogger(),
	}
	m, err := New(Options{
		Logger:   h.log,
		Endpoint: "ws://realtime.test/socket",
		Dialer:   h.dialer,
		Handler:  h.events.handler(),
	})
	require.NoError(t, err)
	h.manager = m
	t.Cleanup(m.Stop)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.manager.Start(h.store))
}

func ptr[T any](v T) *T { return &v }
