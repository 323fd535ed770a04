// Package relay implements the event relay applications connect to. The
// Router holds the protocol logic; front ends move messages between it and
// Redis or WebSocket clients.
package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"go-appfw/internal/core"
	"go-appfw/internal/logging"
	"go-appfw/internal/transport"
)

// Sink delivers a message to one attached client.
type Sink func(transport.Message) error

// ErrClientGone is returned by a Sink whose client can no longer be reached.
// The router detaches such clients.
var ErrClientGone = errors.New("relay: client gone")

type client struct {
	id    string
	hello transport.Hello
	mask  map[string]struct{}
	sink  Sink
}

func (c *client) matches(t core.Target) bool {
	switch {
	case t.Label != "" && t.Label != c.hello.Label:
		return false
	case t.AppID != "" && t.AppID != c.hello.AppID:
		return false
	case t.Binary != "" && t.Binary != c.hello.Binary:
		return false
	case t.User != nil && *t.User != c.hello.User:
		return false
	case t.Process != 0 && t.Process != c.hello.Process:
		return false
	}
	return true
}

// Router keeps the attached clients and answers their requests.
type Router struct {
	mu      sync.Mutex
	clients map[string]*client
	order   []string
	known   map[string]struct{}
	store   AppStore
	metrics *Metrics
	logger  zerolog.Logger
	debug   *logging.Debugger
}

// NewRouter returns a router listing installed applications from store.
// metrics may be nil.
func NewRouter(store AppStore, metrics *Metrics, logger *zerolog.Logger) *Router {
	l := logging.OrDefault(logger).With().Str("component", "relay").Logger()
	return &Router{
		clients: make(map[string]*client),
		known:   make(map[string]struct{}),
		store:   store,
		metrics: metrics,
		logger:  l,
		debug:   logging.NewDebugger(l),
	}
}

// SetDebugFilters configures per-site debug output.
func (r *Router) SetDebugFilters(filters []string) { r.debug.Configure(filters) }

// Attach registers a client. Attaching an id again replaces its identity
// and sink and clears its subscriptions.
func (r *Router) Attach(id string, hello transport.Hello, sink Sink) {
	r.mu.Lock()
	if _, ok := r.clients[id]; !ok {
		r.order = append(r.order, id)
	}
	r.clients[id] = &client{id: id, hello: hello, mask: make(map[string]struct{}), sink: sink}
	n := len(r.clients)
	r.mu.Unlock()
	r.metrics.attached(n)
	r.logger.Info().Str("client", id).Str("appid", hello.AppID).Int("process", hello.Process).Msg("client attached")
}

// Detach forgets a client.
func (r *Router) Detach(id string) {
	r.mu.Lock()
	if _, ok := r.clients[id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.clients, id)
	for i, cid := range r.order {
		if cid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	n := len(r.clients)
	r.mu.Unlock()
	r.metrics.attached(n)
	r.logger.Info().Str("client", id).Msg("client detached")
}

// Clients returns the number of attached clients.
func (r *Router) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Handle answers one request from client id. Hello and bye are handled by
// the front ends and must not be passed here.
func (r *Router) Handle(ctx context.Context, id string, m transport.Message) transport.Status {
	st := r.handle(ctx, id, m)
	r.metrics.request(m.Type, st.Status)
	r.debug.Site("relay").Str("client", id).Str("type", m.Type).Int("seqno", m.Seqno).Int("status", st.Status).Msg("request handled")
	return st
}

func (r *Router) handle(ctx context.Context, id string, m transport.Message) transport.Status {
	r.mu.Lock()
	c, ok := r.clients[id]
	r.mu.Unlock()
	if !ok {
		return transport.Failure(transport.StatusProtocol, "client %q has not said hello", id)
	}
	switch m.Type {
	case transport.TypeSubscribe:
		return r.subscribe(c, m.Subscribe)
	case transport.TypeSendEvent:
		return r.send(m.Send)
	case transport.TypeListRunning:
		return r.listRunning(ctx)
	case transport.TypeListAll:
		apps, err := r.store.List(ctx)
		if err != nil {
			r.logger.Error().Err(err).Msg("list installed applications")
			return transport.Failure(transport.StatusProtocol, "application store unavailable")
		}
		return transport.OK(apps)
	default:
		return transport.Failure(transport.StatusInvalid, "unknown request type %q", m.Type)
	}
}

func (r *Router) subscribe(c *client, req *transport.SubscribeRequest) transport.Status {
	if req == nil || len(req.Events) == 0 {
		return transport.Failure(transport.StatusInvalid, "empty subscription")
	}
	mask := make(map[string]struct{}, len(req.Events))
	for _, e := range req.Events {
		if e == "" {
			return transport.Failure(transport.StatusInvalid, "empty event name")
		}
		mask[e] = struct{}{}
	}
	r.mu.Lock()
	c.mask = mask
	for e := range mask {
		r.known[e] = struct{}{}
	}
	r.mu.Unlock()
	return transport.OK(map[string]int{"events": len(mask)})
}

func (r *Router) send(req *transport.SendRequest) transport.Status {
	if req == nil || req.Event == "" {
		return transport.Failure(transport.StatusInvalid, "missing event name")
	}
	r.mu.Lock()
	if _, ok := r.known[req.Event]; !ok {
		r.mu.Unlock()
		return transport.Failure(transport.StatusNotFound, "no such event %q", req.Event)
	}
	var targets []*client
	for _, id := range r.order {
		c := r.clients[id]
		if _, ok := c.mask[req.Event]; ok && c.matches(req.Target) {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()

	msg := transport.Message{Type: transport.TypeEvent, Event: &transport.Notice{Event: req.Event, Data: req.Data}}
	delivered := 0
	var gone []string
	for _, c := range targets {
		err := c.sink(msg)
		switch {
		case errors.Is(err, ErrClientGone):
			gone = append(gone, c.id)
		case err != nil:
			r.logger.Warn().Err(err).Str("client", c.id).Str("event", req.Event).Msg("delivery failed")
		default:
			delivered++
		}
	}
	for _, id := range gone {
		r.Detach(id)
	}
	r.metrics.delivered(req.Event, delivered)
	return transport.OK(map[string]int{"recipients": delivered})
}

func (r *Router) listRunning(ctx context.Context) transport.Status {
	r.mu.Lock()
	apps := make([]core.AppInfo, 0, len(r.order))
	for _, id := range r.order {
		h := r.clients[id].hello
		app := core.AppInfo{AppID: h.AppID, User: h.User}
		if app.AppID == "" {
			app.AppID = h.Binary
		}
		apps = append(apps, app)
	}
	r.mu.Unlock()

	for i := range apps {
		if apps[i].AppID == "" {
			continue
		}
		installed, _, err := r.store.Get(ctx, apps[i].AppID)
		switch {
		case err == nil:
			apps[i].Desktop = installed.Desktop
			apps[i].Description = installed.Description
		case !errors.Is(err, ErrAppNotFound):
			r.logger.Warn().Err(err).Str("appid", apps[i].AppID).Msg("look up installed application")
		}
	}
	return transport.OK(apps)
}
