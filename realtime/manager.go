// Package realtime keeps exactly one live connection to the storefront's
// realtime endpoint while the session is authenticated, always authenticated
// with the session's current token.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/agentuity/go-storefront/logger"
	"github.com/agentuity/go-storefront/session"
	cstr "github.com/agentuity/go-storefront/string"
	"github.com/google/uuid"
)

var (
	ErrNotConnected   = errors.New("realtime: not connected")
	ErrAlreadyStarted = errors.New("realtime: manager already started")
	ErrStopped        = errors.New("realtime: manager stopped")
)

// ConnectionState is the state of the Manager's state machine.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// Source is the session state the Manager follows. *session.Store satisfies it.
type Source interface {
	State() session.State
	Subscribe(obs session.Observer) func()
}

type Options struct {
	// Context is the parent context for all connect attempts (optional)
	Context context.Context
	// Logger is the logger for the manager (optional)
	Logger logger.Logger
	// Endpoint is the realtime URL (required)
	Endpoint string
	// Dialer opens connections (optional, defaults to a WebsocketDialer)
	Dialer Dialer
	// Handler receives connection events (optional)
	Handler Handler
}

// attempt is one connect attempt and, if it succeeds, the life of its socket.
type attempt struct {
	id     string
	token  string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager binds a single realtime connection to the session token: it
// connects when a token appears, reconnects with the new token when it
// changes, and disconnects when it goes away. A failed attempt is not
// retried; call Reconnect or log in again.
type Manager struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   logger.Logger
	endpoint string
	dialer   Dialer
	handler  Handler
	events   *notifier
	state    atomic.Int32
	wg       sync.WaitGroup
	once     sync.Once

	mu          sync.Mutex
	started     bool
	stopped     bool
	unsubscribe func()
	observed    *string  // last token seen on the source
	current     *attempt // nil while disconnected
	last        *attempt // most recently launched attempt, possibly superseded
	conn        Conn     // socket of current once connected
}

// New creates a Manager. Nothing is dialed until Start.
func New(opts Options) (*Manager, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("realtime: endpoint is required")
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewConsoleLogger()
	}
	if opts.Dialer == nil {
		opts.Dialer = &WebsocketDialer{}
	}
	if opts.Handler == nil {
		opts.Handler = &HandlerCallback{}
	}
	ctx, cancel := context.WithCancel(opts.Context)
	return &Manager{
		ctx:      ctx,
		cancel:   cancel,
		logger:   opts.Logger.WithPrefix("[realtime]"),
		endpoint: opts.Endpoint,
		dialer:   opts.Dialer,
		handler:  opts.Handler,
		events:   newNotifier(),
	}, nil
}

// State returns the current state.
func (m *Manager) State() ConnectionState {
	return ConnectionState(m.state.Load())
}

// Connected reports whether a socket is currently open.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// ConnectionID returns the id of the current attempt, or "" when disconnected.
func (m *Manager) ConnectionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.id
}

// Start subscribes to source and reconciles against its current token.
//
// The subscription and the initial read happen under the manager lock, so a
// transition racing with Start is delivered after the initial reconcile and
// is never overwritten by an older token.
func (m *Manager) Start(source Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.unsubscribe = source.Subscribe(m.onChange)
	m.observeLocked(source.State().Token, false)
	m.logger.Debug("started for %s", m.endpoint)
	return nil
}

// Stop releases any live connection, abandons any pending attempt and waits
// for all connection goroutines to exit. It is safe to call more than once
// and must be called on every shutdown path.
func (m *Manager) Stop() {
	m.once.Do(func() {
		m.mu.Lock()
		m.stopped = true
		unsubscribe := m.unsubscribe
		m.unsubscribe = nil
		m.teardownLocked("stopped")
		m.observed = nil
		m.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		m.cancel()
		m.wg.Wait()
		m.events.close()
		m.logger.Debug("stopped")
	})
}

// Reconnect issues a fresh connect attempt with the last observed token when
// the manager is disconnected. It returns false when there is nothing to do.
func (m *Manager) Reconnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started || m.stopped || m.observed == nil || m.current != nil {
		return false
	}
	m.connectLocked(*m.observed)
	return true
}

// Emit sends an event on the live socket.
func (m *Manager) Emit(event string, data any) error {
	var payload json.RawMessage
	if data != nil {
		buf, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("error encoding %s payload: %w", event, err)
		}
		payload = buf
	}
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(Message{Event: event, Data: payload})
}

func (m *Manager) onChange(change session.Change) {
	// a repeated login or restore with the same token is how callers retry
	force := change.Action == session.ActionSetCredentials || change.Action == session.ActionRestoreSession
	m.observe(change.Current.Token, force)
}

func (m *Manager) observe(token *string, force bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observeLocked(token, force)
}

func (m *Manager) observeLocked(token *string, force bool) {
	if !m.started || m.stopped {
		return
	}
	if session.EqualToken(m.observed, token) {
		if force && token != nil && m.current == nil {
			m.connectLocked(*token)
		}
		return
	}
	if token == nil {
		m.observed = nil
	} else {
		tok := *token
		m.observed = &tok
	}
	m.teardownLocked("token changed")
	if token != nil {
		m.connectLocked(*token)
	}
}

// teardownLocked abandons the current attempt and closes its socket before
// anything new may be created.
func (m *Manager) teardownLocked(reason string) {
	a := m.current
	if a == nil {
		return
	}
	m.current = nil
	a.cancel()
	wasOpen := m.conn != nil
	if wasOpen {
		if err := m.conn.Close(); err != nil {
			m.logger.Debug("error closing connection %s: %s", a.id, err)
		}
		m.conn = nil
	}
	m.setStateLocked(StateDisconnected)
	if wasOpen {
		m.events.push(func() { m.handler.OnDisconnect(m) })
	}
	m.logger.Debug("connection %s released: %s", a.id, reason)
}

func (m *Manager) connectLocked(token string) {
	ctx, cancel := context.WithCancel(m.ctx)
	a := &attempt{
		id:     uuid.NewString(),
		token:  token,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	prev := m.last
	m.current = a
	m.last = a
	m.setStateLocked(StateConnecting)
	m.wg.Add(1)
	go m.run(a, prev)
}

func (m *Manager) setStateLocked(to ConnectionState) {
	from := ConnectionState(m.state.Swap(int32(to)))
	if from == to {
		return
	}
	m.events.push(func() { m.handler.OnStateChange(m, from, to) })
}

func (m *Manager) run(a *attempt, prev *attempt) {
	defer m.wg.Done()
	defer close(a.done)
	defer a.cancel()

	// the previous attempt has been cancelled; wait for it to release its
	// socket so two connections never overlap
	if prev != nil {
		<-prev.done
	}
	if a.ctx.Err() != nil {
		m.mu.Lock()
		if m.current == a {
			// parent context is gone; nothing superseded us
			m.current = nil
			m.setStateLocked(StateDisconnected)
		}
		m.mu.Unlock()
		return
	}

	log := m.logger.With(map[string]interface{}{"connection": a.id, "token": cstr.Fingerprint(a.token)})
	log.Debug("connecting")
	conn, err := m.dialer.Dial(a.ctx, m.endpoint, a.token)

	m.mu.Lock()
	if m.current != a {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		log.Debug("discarded superseded attempt")
		return
	}
	if err != nil {
		m.current = nil
		m.setStateLocked(StateDisconnected)
		m.events.push(func() { m.handler.OnError(m, err) })
		m.mu.Unlock()
		log.Warn("connect failed: %s", err)
		return
	}
	m.conn = conn
	m.setStateLocked(StateConnected)
	m.events.push(func() { m.handler.OnConnect(m) })
	m.mu.Unlock()
	log.Info("connected")

	m.read(a, conn, log)
}

func (m *Manager) read(a *attempt, conn Conn, log logger.Logger) {
	for {
		msg, err := conn.Receive()
		m.mu.Lock()
		if m.current != a {
			m.mu.Unlock()
			return
		}
		if err != nil {
			m.current = nil
			m.conn = nil
			conn.Close()
			m.setStateLocked(StateDisconnected)
			m.events.push(func() { m.handler.OnDisconnect(m) })
			if !errors.Is(err, io.EOF) {
				m.events.push(func() { m.handler.OnError(m, err) })
			}
			m.mu.Unlock()
			log.Info("disconnected: %s", err)
			return
		}
		m.events.push(func() { m.handler.OnMessage(m, msg) })
		m.mu.Unlock()
		log.Trace("received %s", msg.Event)
	}
}
