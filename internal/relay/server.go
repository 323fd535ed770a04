package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"go-appfw/internal/logging"
)

// Config selects the relay's store and front ends. Redis is optional when
// Listen is set and vice versa.
type Config struct {
	Listen       string
	Redis        *redis.Options
	Prefix       string
	Store        string // "memory" or "redis"
	Manifest     string
	DebugFilters []string
}

// Server runs a Router behind the configured front ends.
type Server struct {
	cfg     Config
	store   AppStore
	router  *Router
	metrics *Metrics
	redis   *RedisFrontend
	http    *http.Server
	logger  zerolog.Logger
}

// NewServer builds the store, seeds it from the manifest and wires the
// front ends. Nothing is started until Run.
func NewServer(ctx context.Context, cfg Config, logger *zerolog.Logger) (*Server, error) {
	l := logging.OrDefault(logger)
	if cfg.Listen == "" && cfg.Redis == nil {
		return nil, errors.New("relay: no front end configured")
	}

	var store AppStore
	switch cfg.Store {
	case "", "memory":
		store = NewMemoryAppStore()
	case "redis":
		if cfg.Redis == nil {
			return nil, errors.New("relay: redis store without redis address")
		}
		store = NewRedisAppStore(cfg.Redis, cfg.Prefix, &l)
	default:
		return nil, fmt.Errorf("relay: unknown store %q", cfg.Store)
	}
	if cfg.Manifest != "" {
		m, err := LoadManifest(cfg.Manifest)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if err := m.Seed(ctx, store); err != nil {
			_ = store.Close()
			return nil, err
		}
		l.Info().Int("applications", len(m.Applications)).Str("manifest", cfg.Manifest).Msg("manifest loaded")
	}

	s := &Server{cfg: cfg, store: store, metrics: NewMetrics(), logger: l}
	s.router = NewRouter(store, s.metrics, &l)
	s.router.SetDebugFilters(cfg.DebugFilters)
	if cfg.Redis != nil {
		s.redis = NewRedisFrontend(cfg.Redis, cfg.Prefix, s.router, &l)
	}
	if cfg.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", NewWebSocketFrontend(s.router, &l))
		mux.Handle("/metrics", s.metrics.Handler())
		s.http = &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}
	return s, nil
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	defer s.store.Close()
	if s.redis != nil {
		if err := s.redis.Start(ctx); err != nil {
			return err
		}
		defer s.redis.Close()
	}
	errc := make(chan error, 1)
	if s.http != nil {
		go func() {
			s.logger.Info().Str("addr", s.cfg.Listen).Msg("serving websocket and metrics")
			if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}
	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("http: %w", err)
	}
	if s.http != nil {
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdown); err != nil {
			s.logger.Warn().Err(err).Msg("http shutdown")
		}
	}
	return nil
}
