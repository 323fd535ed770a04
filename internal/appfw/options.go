package appfw

import (
	"os"

	"github.com/rs/zerolog"

	"go-appfw/internal/core"
)

// EventHandler receives subscribed events.
type EventHandler func(event string, data core.Value) error

// StatusHandler receives the relay's answer to a subscription push.
// Message is empty when the relay sent none; data is null on failure.
type StatusHandler func(seqno, status int, msg string, data core.Value, userData any) error

// SendCallback receives the delivery outcome of one SendEvent call.
type SendCallback func(seqno, status int, msg string, userData any) error

// ListCallback receives the application list requested by ListRunning or
// ListAll, in the order the relay reported it.
type ListCallback func(apps []core.AppInfo, seqno, status int, msg string, userData any) error

// Option configures an App.
type Option func(*App)

// WithEventHandler sets the initial event handler.
func WithEventHandler(h EventHandler) Option {
	return func(a *App) { a.onEvent = h }
}

// WithStatusHandler sets the initial status handler.
func WithStatusHandler(h StatusHandler) Option {
	return func(a *App) { a.onStatus = h }
}

// WithUserData sets the value passed to the status handler.
func WithUserData(v any) Option {
	return func(a *App) { a.userData = v }
}

// WithLogger sets the logger. The global zerolog logger is used otherwise.
func WithLogger(l zerolog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithUserLookup replaces the system user database for target encoding.
func WithUserLookup(fn UserLookup) Option {
	return func(a *App) { a.lookup = fn }
}

// WithExit replaces os.Exit as the way a failed handler ends the process.
func WithExit(fn func(code int)) Option {
	return func(a *App) { a.exit = fn }
}

func defaultExit(code int) { os.Exit(code) }
