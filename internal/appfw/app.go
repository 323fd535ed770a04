// Package appfw lets a process take part in the application event bus:
// it sends events to other applications, receives the events it has
// subscribed to and lists the applications known to the relay.
//
// All handlers and callbacks run on the host main loop the transport posts
// to. An App starts no goroutines of its own.
package appfw

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go-appfw/internal/core"
	"go-appfw/internal/transport"
)

// App is a session with the relay.
type App struct {
	mu       sync.Mutex
	tr       transport.Transport
	registry *Registry
	subs     *Subscriptions
	lookup   UserLookup
	logger   zerolog.Logger
	exit     func(int)
	onEvent  EventHandler
	onStatus StatusHandler
	userData any
	closed   bool
}

// New opens t and returns an App dispatching its notifications.
func New(ctx context.Context, t transport.Transport, opts ...Option) (*App, error) {
	a := &App{
		tr:       t,
		registry: NewRegistry(),
		lookup:   LookupUser,
		logger:   log.Logger,
		exit:     defaultExit,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With().Str("component", "appfw").Logger()
	a.subs = newSubscriptions(subscriber{a})
	if err := t.Open(ctx, dispatcher{a}.handlers()); err != nil {
		return nil, fmt.Errorf("open transport: %w", err)
	}
	return a, nil
}

// subscriber pushes subscription sets through the App so that a closed
// App refuses them.
type subscriber struct{ a *App }

func (s subscriber) Subscribe(ctx context.Context, events []string) error {
	if s.a.isClosed() {
		return ErrClosed
	}
	if err := s.a.tr.Subscribe(ctx, events); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (a *App) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Close closes the transport. Pending callbacks are discarded without
// being called. Calling Close again does nothing.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()
	a.registry.Purge()
	return a.tr.Close()
}

// SendEvent sends event with data to the applications selected by target.
// When cb is non-nil it is called once with the delivery outcome.
func (a *App) SendEvent(ctx context.Context, event string, data core.Value, target Target, cb SendCallback, cbData any) error {
	if a.isClosed() {
		return ErrClosed
	}
	if event == "" {
		return ErrInvalidEvent
	}
	if target.IsZero() {
		return &TargetError{Err: ErrNoTarget}
	}
	wire, err := encodeTarget(target, a.lookup)
	if err != nil {
		return err
	}
	payload, err := data.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}

	var id int
	if cb != nil {
		id = a.registry.Register(SendAckCallback, cb, cbData)
	} else {
		id = a.registry.Reserve()
	}
	if err := a.tr.SendEvent(ctx, event, payload, id, wire); err != nil {
		a.registry.Drop(id)
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// ListRunning asks for the applications currently attached to the relay.
func (a *App) ListRunning(ctx context.Context, cb ListCallback, cbData any) error {
	return a.list(ctx, "list running", a.tr.ListRunning, cb, cbData)
}

// ListAll asks for every installed application.
func (a *App) ListAll(ctx context.Context, cb ListCallback, cbData any) error {
	return a.list(ctx, "list all", a.tr.ListAll, cb, cbData)
}

func (a *App) list(ctx context.Context, what string, call func(context.Context, int) error, cb ListCallback, cbData any) error {
	if cb == nil {
		return fmt.Errorf("%s: %w: nil callback", what, ErrRegistration)
	}
	if a.isClosed() {
		return ErrClosed
	}
	id := a.registry.Register(ListReplyCallback, cb, cbData)
	if err := call(ctx, id); err != nil {
		a.registry.Drop(id)
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// EnableSignals delivers SIGHUP and SIGTERM as system::reload and
// system::terminate events.
func (a *App) EnableSignals() error {
	if a.isClosed() {
		return ErrClosed
	}
	return a.tr.EnableSignalBridging()
}

// EnableDebug configures debug output of the transport.
func (a *App) EnableDebug(filters ...string) {
	a.tr.SetDebugFilters(filters)
}

// Subscriptions returns the live subscription set.
func (a *App) Subscriptions() *Subscriptions { return a.subs }

// SetSubscriptions replaces the subscription set and pushes it.
func (a *App) SetSubscriptions(ctx context.Context, events ...string) error {
	return a.subs.Replace(ctx, events...)
}

// UpdateSubscriptions pushes the current subscription set.
func (a *App) UpdateSubscriptions(ctx context.Context) error {
	return a.subs.Push(ctx)
}

// SetEventHandler replaces the event handler.
func (a *App) SetEventHandler(h EventHandler) {
	a.mu.Lock()
	a.onEvent = h
	a.mu.Unlock()
}

// EventHandler returns the current event handler.
func (a *App) EventHandler() EventHandler {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.onEvent
}

// SetStatusHandler replaces the status handler.
func (a *App) SetStatusHandler(h StatusHandler) {
	a.mu.Lock()
	a.onStatus = h
	a.mu.Unlock()
}

// StatusHandler returns the current status handler.
func (a *App) StatusHandler() StatusHandler {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.onStatus
}

// SetUserData replaces the value passed to the status handler.
func (a *App) SetUserData(v any) {
	a.mu.Lock()
	a.userData = v
	a.mu.Unlock()
}

// UserData returns the value passed to the status handler.
func (a *App) UserData() any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userData
}

// Pending returns the number of callbacks waiting for a reply.
func (a *App) Pending() int { return a.registry.Pending() }
