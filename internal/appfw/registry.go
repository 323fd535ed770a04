package appfw

import "sync"

// CallbackKind tells which reply a registered callback waits for.
type CallbackKind int

const (
	SendAckCallback CallbackKind = iota
	ListReplyCallback
)

func (k CallbackKind) String() string {
	switch k {
	case SendAckCallback:
		return "send-ack"
	case ListReplyCallback:
		return "list-reply"
	default:
		return "unknown"
	}
}

// Entry is a callback waiting for its reply.
type Entry struct {
	ID       int
	Kind     CallbackKind
	Callback any
	Context  any
}

// Registry correlates request ids with pending callbacks. Ids start at 0,
// grow by one per request and are never reused, whether or not the request
// carried a callback.
type Registry struct {
	mu      sync.Mutex
	next    int
	entries map[int]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int]Entry)}
}

// Register allocates an id and stores cb under it.
func (r *Registry) Register(kind CallbackKind, cb any, ctx any) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	r.entries[id] = Entry{ID: id, Kind: kind, Callback: cb, Context: ctx}
	return id
}

// Reserve allocates an id without storing anything.
func (r *Registry) Reserve() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	return id
}

// Resolve removes and returns the entry for id. Unknown ids, and ids
// registered for the other kind of reply, report false and leave the
// registry untouched.
func (r *Registry) Resolve(id int, kind CallbackKind) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Kind != kind {
		return Entry{}, false
	}
	delete(r.entries, id)
	return e, true
}

// Drop discards the entry for id, if any.
func (r *Registry) Drop(id int) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Purge discards all pending entries.
func (r *Registry) Purge() {
	r.mu.Lock()
	r.entries = make(map[int]Entry)
	r.mu.Unlock()
}

// Pending returns the number of callbacks still waiting.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
