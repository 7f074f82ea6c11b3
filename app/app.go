// Package app is the composition root of the storefront core. It owns the
// session store, the realtime manager, persisted storage and the event
// fan-out, and sequences their startup and shutdown.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/agentuity/go-storefront/config"
	"github.com/agentuity/go-storefront/eventing"
	"github.com/agentuity/go-storefront/logger"
	"github.com/agentuity/go-storefront/persist"
	"github.com/agentuity/go-storefront/realtime"
	"github.com/agentuity/go-storefront/session"
	cstr "github.com/agentuity/go-storefront/string"
)

// ConnectionSubject carries connection status changes as {"state": "..."}.
var ConnectionSubject = eventing.Subject("connection")

type Options struct {
	// Context is the parent context for background work (optional)
	Context context.Context
	// Config supplies the realtime endpoint and dialer settings (required)
	Config config.Config
	// Logger is the logger for the app (optional)
	Logger logger.Logger
	// Storage persists the session (optional, defaults to in-memory)
	Storage persist.Storage
	// Events receives relayed realtime messages (optional, defaults to in-process)
	Events eventing.Client
	// Dialer opens realtime connections (optional, defaults to a websocket dialer)
	Dialer realtime.Dialer
}

// App wires the store to its collaborators. Consumers read state through
// Store and Manager and mutate it only through the App's operations.
type App struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  logger.Logger
	store   *session.Store
	manager *realtime.Manager
	storage persist.Storage
	events  eventing.Client

	once    sync.Once
	stopErr error
}

// New builds an App. Nothing is read or dialed until Start.
func New(opts Options) (*App, error) {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewConsoleLogger()
	}
	if opts.Storage == nil {
		opts.Storage = persist.NewMemory()
	}
	if opts.Events == nil {
		opts.Events = eventing.NewMemoryClient(opts.Logger)
	}
	if opts.Dialer == nil {
		opts.Dialer = &realtime.WebsocketDialer{
			Origin:           opts.Config.Realtime.Origin,
			HandshakeTimeout: opts.Config.Realtime.HandshakeTimeout.Std(),
		}
	}
	ctx, cancel := context.WithCancel(opts.Context)
	a := &App{
		ctx:     ctx,
		cancel:  cancel,
		logger:  opts.Logger.WithPrefix("[app]"),
		store:   session.NewStore(),
		storage: opts.Storage,
		events:  opts.Events,
	}
	manager, err := realtime.New(realtime.Options{
		Context:  ctx,
		Logger:   opts.Logger,
		Endpoint: opts.Config.Realtime.Endpoint,
		Dialer:   opts.Dialer,
		Handler:  &relay{app: a},
	})
	if err != nil {
		cancel()
		return nil, err
	}
	a.manager = manager
	return a, nil
}

// Store returns the session store for read-only consumers.
func (a *App) Store() *session.Store { return a.store }

// Manager returns the realtime manager for read-only consumers.
func (a *App) Manager() *realtime.Manager { return a.manager }

// Events returns the client realtime messages are relayed to.
func (a *App) Events() eventing.Client { return a.events }

// Start restores the persisted session and starts the realtime manager. A
// corrupt user record is logged and the token is restored on its own.
func (a *App) Start(ctx context.Context) error {
	token, user, err := persist.Load(ctx, a.storage)
	if err != nil {
		if !errors.Is(err, persist.ErrCorruptUser) {
			return err
		}
		a.logger.Warn("ignoring persisted user: %s", err)
	}
	a.store.RestoreSession(token, user)
	if token != nil {
		a.logger.Info("restored session %s", cstr.FingerprintPtr(token))
	} else {
		a.logger.Debug("no persisted session")
	}
	return a.manager.Start(a.store)
}

// Login persists the credentials and applies them to the store. A nil token
// clears storage instead. The store is updated even when persisting fails;
// the error is returned.
func (a *App) Login(ctx context.Context, user *session.User, token *string) error {
	var err error
	if token == nil {
		err = persist.Clear(ctx, a.storage)
	} else {
		err = persist.Save(ctx, a.storage, token, user)
	}
	if err != nil {
		a.logger.Error("error persisting session: %s", err)
	}
	a.store.SetCredentials(user, token)
	a.logger.Info("logged in %s", cstr.FingerprintPtr(token))
	return err
}

// Logout clears the persisted session and resets the store. The store is
// reset even when clearing storage fails; the error is returned.
func (a *App) Logout(ctx context.Context) error {
	err := persist.Clear(ctx, a.storage)
	if err != nil {
		a.logger.Error("error clearing persisted session: %s", err)
	}
	a.store.Logout()
	a.logger.Info("logged out")
	return err
}

// Checkout records the pending checkout payload.
func (a *App) Checkout(items []session.LineItem, total float64) {
	a.store.SetCheckoutPayload(items, total)
}

// Stop releases the realtime connection, then closes events and storage.
// It is idempotent; later calls return the first result.
func (a *App) Stop(ctx context.Context) error {
	a.once.Do(func() {
		done := make(chan struct{})
		go func() {
			a.manager.Stop()
			close(done)
		}()
		var errs []error
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
		a.cancel()
		if err := a.events.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := a.storage.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		a.stopErr = errors.Join(errs...)
		a.logger.Debug("stopped")
	})
	return a.stopErr
}

// relay forwards realtime events to the eventing client.
type relay struct {
	app *App
}

var _ realtime.Handler = (*relay)(nil)

func (r *relay) OnStateChange(m *realtime.Manager, from, to realtime.ConnectionState) {
	r.app.logger.Debug("realtime %s -> %s", from, to)
	r.publishState(m, to)
}

func (r *relay) OnConnect(m *realtime.Manager) {
	r.app.logger.Info("realtime connected (%s)", m.ConnectionID())
}

func (r *relay) OnDisconnect(m *realtime.Manager) {
	r.app.logger.Info("realtime disconnected")
}

func (r *relay) OnMessage(m *realtime.Manager, msg realtime.Message) {
	if err := r.app.events.Publish(r.app.ctx, eventing.Subject(msg.Event), msg.Data,
		eventing.WithHeader("event", msg.Event),
		eventing.WithHeader("connection", m.ConnectionID()),
	); err != nil && !errors.Is(err, eventing.ErrClosed) {
		r.app.logger.Warn("error relaying %s: %s", msg.Event, err)
	}
}

func (r *relay) OnError(m *realtime.Manager, err error) {
	r.app.logger.Warn("realtime error: %s", err)
}

func (r *relay) publishState(m *realtime.Manager, state realtime.ConnectionState) {
	buf, err := json.Marshal(map[string]string{"state": state.String()})
	if err != nil {
		r.app.logger.Error("error encoding connection state: %s", err)
		return
	}
	if err := r.app.events.Publish(r.app.ctx, ConnectionSubject, buf); err != nil && !errors.Is(err, eventing.ErrClosed) {
		r.app.logger.Warn("error publishing connection state: %s", err)
	}
}
