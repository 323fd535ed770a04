package relay

import (
	"context"
	"errors"
	"sync"

	"go-appfw/internal/core"
)

// ErrAppNotFound is returned by AppStore.Get for unknown application ids.
var ErrAppNotFound = errors.New("relay: application not found")

// AppStore holds the installed applications. List returns them in the
// order they were first installed; reinstalling keeps the position and
// bumps the version.
type AppStore interface {
	Put(ctx context.Context, app core.AppInfo) (int64, error)
	Get(ctx context.Context, appID string) (core.AppInfo, int64, error)
	List(ctx context.Context) ([]core.AppInfo, error)
	Delete(ctx context.Context, appID string) error
	Close() error
}

type memoryItem struct {
	app     core.AppInfo
	version int64
}

// MemoryAppStore is an AppStore kept in process memory.
type MemoryAppStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	order []string
}

// NewMemoryAppStore returns an empty store.
func NewMemoryAppStore() *MemoryAppStore {
	return &MemoryAppStore{items: make(map[string]memoryItem)}
}

func (s *MemoryAppStore) Put(_ context.Context, app core.AppInfo) (int64, error) {
	if app.AppID == "" {
		return 0, errors.New("relay: application without appid")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[app.AppID]
	if !ok {
		s.order = append(s.order, app.AppID)
	}
	it.app = cloneApp(app)
	it.version++
	s.items[app.AppID] = it
	return it.version, nil
}

func (s *MemoryAppStore) Get(_ context.Context, appID string) (core.AppInfo, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[appID]
	if !ok {
		return core.AppInfo{}, 0, ErrAppNotFound
	}
	return cloneApp(it.app), it.version, nil
}

func (s *MemoryAppStore) List(_ context.Context) ([]core.AppInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.AppInfo, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneApp(s.items[id].app))
	}
	return out, nil
}

func (s *MemoryAppStore) Delete(_ context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[appID]; !ok {
		return nil
	}
	delete(s.items, appID)
	for i, id := range s.order {
		if id == appID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryAppStore) Close() error { return nil }

func cloneApp(a core.AppInfo) core.AppInfo {
	if a.Argv != nil {
		a.Argv = append([]string(nil), a.Argv...)
	}
	return a
}

var _ AppStore = (*MemoryAppStore)(nil)
