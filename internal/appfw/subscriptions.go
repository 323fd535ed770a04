package appfw

import (
	"context"
	"sort"
	"sync"
)

type pusher interface {
	Subscribe(ctx context.Context, events []string) error
}

// Subscriptions is the set of event names the application wants to receive.
// Add and Remove only change the local set; Replace and Push send it to the
// relay, which answers with a status report.
type Subscriptions struct {
	mu    sync.Mutex
	names map[string]struct{}
	push  pusher
}

func newSubscriptions(p pusher) *Subscriptions {
	return &Subscriptions{names: make(map[string]struct{}), push: p}
}

// Names returns the subscribed names in sorted order.
func (s *Subscriptions) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted()
}

func (s *Subscriptions) sorted() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether name is subscribed.
func (s *Subscriptions) Contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.names[name]
	return ok
}

// Len returns the number of subscribed names.
func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}

// Add inserts names without notifying the relay.
func (s *Subscriptions) Add(names ...string) {
	s.mu.Lock()
	for _, n := range names {
		s.names[n] = struct{}{}
	}
	s.mu.Unlock()
}

// Remove deletes names without notifying the relay.
func (s *Subscriptions) Remove(names ...string) {
	s.mu.Lock()
	for _, n := range names {
		delete(s.names, n)
	}
	s.mu.Unlock()
}

// Replace swaps the whole set and pushes it.
func (s *Subscriptions) Replace(ctx context.Context, names ...string) error {
	s.mu.Lock()
	s.names = make(map[string]struct{}, len(names))
	for _, n := range names {
		s.names[n] = struct{}{}
	}
	s.mu.Unlock()
	return s.Push(ctx)
}

// Push sends the full current set to the relay.
func (s *Subscriptions) Push(ctx context.Context) error {
	s.mu.Lock()
	names := s.sorted()
	s.mu.Unlock()
	return s.push.Subscribe(ctx, names)
}
