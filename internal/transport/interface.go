package transport

import (
	"context"

	"go-appfw/internal/core"
)

// Transport is the connection between an application and the event relay.
// Inbound data is handed to the Handlers installed by Open; implementations
// call them only through their Poster, never from their own goroutines.
type Transport interface {
	Open(ctx context.Context, h Handlers) error
	Close() error
	SendEvent(ctx context.Context, event string, data []byte, id int, target core.Target) error
	Subscribe(ctx context.Context, events []string) error
	ListRunning(ctx context.Context, id int) error
	ListAll(ctx context.Context, id int) error
	EnableSignalBridging() error
	SetDebugFilters(filters []string)
}

// Handlers are the dispatch entry points for the four kinds of inbound
// notification. Payloads are raw JSON; "null" when the relay sent none.
type Handlers struct {
	Event     func(event string, data []byte)
	Status    func(seqno, status int, msg string, data []byte)
	SendAck   func(id, seqno, status int, msg string)
	ListReply func(id, seqno, status int, msg string, apps []core.AppInfo)
}

func (h Handlers) complete() bool {
	return h.Event != nil && h.Status != nil && h.SendAck != nil && h.ListReply != nil
}

// Poster schedules work on the host event loop.
type Poster interface {
	Post(fn func())
}

// PostFunc adapts a function to Poster.
type PostFunc func(fn func())

// Post calls f(fn).
func (f PostFunc) Post(fn func()) { f(fn) }

// Immediate runs posted work synchronously on the caller's goroutine.
var Immediate Poster = PostFunc(func(fn func()) { fn() })
