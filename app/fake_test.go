package app

import (
	"context"
	"io"
	"sync"

	"github.com/agentuity/go-storefront/realtime"
)

type fakeDialer struct {
	mu     sync.Mutex
	tokens []string
	open   int
	peak   int
	conns  []*fakeConn
	gates  map[string]chan struct{}
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{gates: make(map[string]chan struct{})}
}

func (d *fakeDialer) hold(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gates[token] = make(chan struct{})
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string, token string) (realtime.Conn, error) {
	d.mu.Lock()
	d.tokens = append(d.tokens, token)
	gate := d.gates[token]
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := &fakeConn{dialer: d, token: token, incoming: make(chan realtime.Message, 8), closed: make(chan struct{})}
	d.mu.Lock()
	d.open++
	d.peak = max(d.peak, d.open)
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tokens...)
}

func (d *fakeDialer) stats() (open, peak int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open, d.peak
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type fakeConn struct {
	dialer   *fakeDialer
	token    string
	incoming chan realtime.Message
	closed   chan struct{}
	once     sync.Once
}

func (c *fakeConn) Receive() (realtime.Message, error) {
	select {
	case msg := <-c.incoming:
		return msg, nil
	case <-c.closed:
		return realtime.Message{}, io.ErrClosedPipe
	}
}

func (c *fakeConn) Send(realtime.Message) error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.dialer.mu.Lock()
		c.dialer.open--
		c.dialer.mu.Unlock()
	})
	return nil
}
