package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"go-appfw/internal/logging"
	"go-appfw/internal/transport"
)

// DefaultReapInterval is how often the Redis front end looks for clients
// that went away without saying bye.
const DefaultReapInterval = 30 * time.Second

// RedisFrontend serves clients connected through Redis Pub/Sub.
type RedisFrontend struct {
	// ReapInterval overrides DefaultReapInterval. Set it before Start.
	ReapInterval time.Duration

	mu       sync.Mutex
	client   *redis.Client
	prefix   string
	router   *Router
	logger   zerolog.Logger
	pubsub   *redis.PubSub
	cancel   context.CancelFunc
	done     chan struct{}
	attached map[string]struct{}
}

// NewRedisFrontend returns a front end reading requests from the relay
// channel under prefix.
func NewRedisFrontend(opts *redis.Options, prefix string, router *Router, logger *zerolog.Logger) *RedisFrontend {
	if prefix == "" {
		prefix = transport.DefaultPrefix
	}
	return &RedisFrontend{
		client: redis.NewClient(opts),
		prefix: prefix,
		router:   router,
		logger:   logging.OrDefault(logger).With().Str("component", "relay-redis").Logger(),
		attached: make(map[string]struct{}),
	}
}

// Start subscribes to the relay channel and serves requests until Close.
func (f *RedisFrontend) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubsub != nil {
		return errors.New("relay: redis front end already started")
	}
	ps := f.client.Subscribe(ctx, transport.RelayChannel(f.prefix))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", transport.RelayChannel(f.prefix), err)
	}
	rctx, cancel := context.WithCancel(context.Background())
	f.pubsub, f.cancel, f.done = ps, cancel, make(chan struct{})
	interval := f.ReapInterval
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.serve(rctx, ps)
	}()
	go func() {
		defer wg.Done()
		f.reapEvery(rctx, interval)
	}()
	go func(done chan struct{}) {
		wg.Wait()
		close(done)
	}(f.done)
	f.logger.Info().Str("channel", transport.RelayChannel(f.prefix)).Msg("listening")
	return nil
}

func (f *RedisFrontend) serve(ctx context.Context, ps *redis.PubSub) {
	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.Error().Err(err).Msg("receive error")
			time.Sleep(time.Second)
			continue
		}
		var m transport.Message
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			f.logger.Warn().Err(err).Msg("malformed request")
			continue
		}
		f.dispatch(ctx, m)
	}
}

func (f *RedisFrontend) dispatch(ctx context.Context, m transport.Message) {
	if m.Client == "" {
		f.logger.Warn().Str("type", m.Type).Msg("request without client id")
		return
	}
	switch m.Type {
	case transport.TypeHello:
		var hello transport.Hello
		if m.Hello != nil {
			hello = *m.Hello
		}
		channel := transport.ClientChannel(f.prefix, m.Client)
		f.track(m.Client, true)
		f.router.Attach(m.Client, hello, func(out transport.Message) error {
			n, err := f.publish(context.Background(), channel, out)
			if err == nil && n == 0 {
				return fmt.Errorf("%w: nobody listens on %s", ErrClientGone, channel)
			}
			return err
		})
	case transport.TypeBye:
		f.track(m.Client, false)
		f.router.Detach(m.Client)
	default:
		st := f.router.Handle(ctx, m.Client, m)
		reply := transport.Message{Type: transport.TypeStatus, Seqno: m.Seqno, Status: &st}
		if _, err := f.publish(ctx, transport.ClientChannel(f.prefix, m.Client), reply); err != nil {
			f.logger.Warn().Err(err).Str("client", m.Client).Msg("reply failed")
		}
	}
}

// publish returns the number of subscribers that received m.
func (f *RedisFrontend) publish(ctx context.Context, channel string, m transport.Message) (int64, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return f.client.Publish(ctx, channel, data).Result()
}

func (f *RedisFrontend) track(id string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if on {
		f.attached[id] = struct{}{}
	} else {
		delete(f.attached, id)
	}
}

func (f *RedisFrontend) reapEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Reap(ctx)
		}
	}
}

// Reap detaches clients whose private channel has no subscriber left, which
// happens when a process dies without saying bye. It returns the number of
// clients detached.
func (f *RedisFrontend) Reap(ctx context.Context) int {
	f.mu.Lock()
	ids := make([]string, 0, len(f.attached))
	channels := make([]string, 0, len(f.attached))
	for id := range f.attached {
		ids = append(ids, id)
		channels = append(channels, transport.ClientChannel(f.prefix, id))
	}
	f.mu.Unlock()
	if len(ids) == 0 {
		return 0
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	counts, err := f.client.PubSubNumSub(ctx, channels...).Result()
	if err != nil {
		f.logger.Warn().Err(err).Msg("count client subscriptions")
		return 0
	}
	reaped := 0
	for i, id := range ids {
		if counts[channels[i]] > 0 {
			continue
		}
		f.track(id, false)
		f.router.Detach(id)
		reaped++
	}
	if reaped > 0 {
		f.logger.Info().Int("clients", reaped).Msg("reaped vanished clients")
	}
	return reaped
}

// Close stops serving and closes the Redis connection.
func (f *RedisFrontend) Close() error {
	f.mu.Lock()
	ps, cancel, done := f.pubsub, f.cancel, f.done
	f.pubsub = nil
	f.mu.Unlock()
	if ps != nil {
		cancel()
		_ = ps.Close()
		<-done
	}
	return f.client.Close()
}
