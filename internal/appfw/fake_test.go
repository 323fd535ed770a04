package appfw

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"go-appfw/internal/core"
	"go-appfw/internal/transport"
)

type sentEvent struct {
	event  string
	data   string
	id     int
	target core.Target
}

// fakeTransport records requests and exposes the installed handlers so
// tests can play the relay.
type fakeTransport struct {
	h       transport.Handlers
	opened  int
	closed  int
	sends   []sentEvent
	pushes  [][]string
	lists   []string
	signals bool
	filters []string
	sendErr error
}

func (f *fakeTransport) Open(_ context.Context, h transport.Handlers) error {
	f.opened++
	f.h = h
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed++
	return nil
}

func (f *fakeTransport) SendEvent(_ context.Context, event string, data []byte, id int, target core.Target) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sends = append(f.sends, sentEvent{event: event, data: string(data), id: id, target: target})
	return nil
}

func (f *fakeTransport) Subscribe(_ context.Context, events []string) error {
	f.pushes = append(f.pushes, events)
	return nil
}

func (f *fakeTransport) ListRunning(_ context.Context, id int) error {
	f.lists = append(f.lists, "running")
	return nil
}

func (f *fakeTransport) ListAll(_ context.Context, id int) error {
	f.lists = append(f.lists, "all")
	return nil
}

func (f *fakeTransport) EnableSignalBridging() error {
	f.signals = true
	return nil
}

func (f *fakeTransport) SetDebugFilters(filters []string) { f.filters = filters }

// transportCalls counts every request that reached the transport.
func (f *fakeTransport) transportCalls() int {
	return len(f.sends) + len(f.pushes) + len(f.lists)
}

// exitRecorder replaces os.Exit in tests.
type exitRecorder struct{ codes []int }

func (e *exitRecorder) exit(code int) { e.codes = append(e.codes, code) }

func newTestApp(t *testing.T, opts ...Option) (*App, *fakeTransport, *exitRecorder) {
	t.Helper()
	ft := &fakeTransport{}
	ex := &exitRecorder{}
	users := func(name string) (int, error) {
		if name == "alice" {
			return 1001, nil
		}
		return 0, errUnknownUser
	}
	base := []Option{WithExit(ex.exit), WithUserLookup(users)}
	app, err := New(context.Background(), ft, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app, ft, ex
}
