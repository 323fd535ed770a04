package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"go-appfw/internal/core"
	"go-appfw/internal/logging"
)

// ErrNotOpen is returned by requests issued before Open or after Close.
var ErrNotOpen = errors.New("transport: connection not open")

// RedisConfig configures a RedisTransport.
type RedisConfig struct {
	Options  *redis.Options
	Prefix   string
	Identity Hello
}

// RedisTransport talks to the relay over Redis Pub/Sub. Requests are
// published on the relay channel, replies and events arrive on a channel
// private to this connection.
type RedisTransport struct {
	*demux

	mu       sync.Mutex
	client   *redis.Client
	prefix   string
	id       string
	identity Hello
	pubsub   *redis.PubSub
	cancel   context.CancelFunc
	signals  signalBridge
	closed   bool
}

// NewRedisTransport creates a transport for the relay reachable through
// cfg.Options. Inbound notifications are posted to loop.
func NewRedisTransport(cfg RedisConfig, loop Poster, logger *zerolog.Logger) *RedisTransport {
	l := logging.OrDefault(logger).With().Str("component", "transport").Logger()
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisTransport{
		demux:    newDemux(loop, l),
		client:   redis.NewClient(cfg.Options),
		prefix:   prefix,
		id:       uuid.NewString(),
		identity: cfg.Identity,
	}
}

// ID returns the connection id the relay knows this client by.
func (t *RedisTransport) ID() string { return t.id }

// ensureConnection pings the server. The client's pool redials broken
// connections on its own and the subscription resubscribes, so t.client is
// never replaced.
func (t *RedisTransport) ensureConnection(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		t.logger.Warn().Err(err).Str("addr", t.client.Options().Addr).Msg("Redis unreachable")
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Open subscribes to the private channel and announces the client to the
// relay.
func (t *RedisTransport) Open(ctx context.Context, h Handlers) error {
	if !h.complete() {
		return errors.New("transport: incomplete handlers")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrNotOpen
	}
	if t.pubsub != nil {
		return errors.New("transport: already open")
	}
	if err := t.ensureConnection(ctx); err != nil {
		return err
	}
	ps := t.client.Subscribe(ctx, ClientChannel(t.prefix, t.id))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", ClientChannel(t.prefix, t.id), err)
	}
	t.install(h)

	hello := t.identity
	if err := t.publish(ctx, Message{Type: TypeHello, Seqno: t.nextSeqno(), Client: t.id, Hello: &hello}); err != nil {
		_ = ps.Close()
		return fmt.Errorf("hello: %w", err)
	}

	rctx, cancel := context.WithCancel(context.Background())
	t.pubsub, t.cancel = ps, cancel
	go t.receive(rctx, ps)
	t.logger.Debug().Str("client", t.id).Msg("connection to relay established")
	return nil
}

func (t *RedisTransport) receive(ctx context.Context, ps *redis.PubSub) {
	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Error().Err(err).Msg("receive error")
			time.Sleep(time.Second)
			continue
		}
		var m Message
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			t.logger.Warn().Err(err).Msg("malformed message from relay")
			continue
		}
		t.deliver(m)
	}
}

func (t *RedisTransport) publish(ctx context.Context, m Message) error {
	if err := t.ensureConnection(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	t.debug.Site("transport").RawJSON("message", data).Msg("sending message")
	return t.client.Publish(ctx, RelayChannel(t.prefix), data).Err()
}

func (t *RedisTransport) open() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pubsub != nil
}

func (t *RedisTransport) request(ctx context.Context, kind requestKind, id int, m Message) error {
	if !t.open() {
		return ErrNotOpen
	}
	m.Seqno = t.track(kind, id)
	m.Client = t.id
	if err := t.publish(ctx, m); err != nil {
		t.forget(m.Seqno)
		return fmt.Errorf("%s: %w", m.Type, err)
	}
	return nil
}

// SendEvent publishes a send-event request.
func (t *RedisTransport) SendEvent(ctx context.Context, event string, data []byte, id int, target core.Target) error {
	return t.request(ctx, kindSend, id, Message{
		Type: TypeSendEvent,
		Send: &SendRequest{Event: event, Data: data, Target: target},
	})
}

// Subscribe replaces the relay's subscription list for this client.
func (t *RedisTransport) Subscribe(ctx context.Context, events []string) error {
	return t.request(ctx, kindSubscribe, 0, Message{
		Type:      TypeSubscribe,
		Subscribe: &SubscribeRequest{Events: append([]string{}, events...)},
	})
}

// ListRunning asks for the running applications.
func (t *RedisTransport) ListRunning(ctx context.Context, id int) error {
	return t.request(ctx, kindList, id, Message{Type: TypeListRunning})
}

// ListAll asks for the installed applications.
func (t *RedisTransport) ListAll(ctx context.Context, id int) error {
	return t.request(ctx, kindList, id, Message{Type: TypeListAll})
}

// EnableSignalBridging delivers SIGHUP and SIGTERM as events.
func (t *RedisTransport) EnableSignalBridging() error {
	if !t.open() {
		return ErrNotOpen
	}
	t.signals.start(t.demux)
	return nil
}

// SetDebugFilters configures debug output of this transport.
func (t *RedisTransport) SetDebugFilters(filters []string) {
	t.debug.Configure(filters)
}

// Close says goodbye to the relay and releases the connection. Pending
// requests are dropped without notification.
func (t *RedisTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.signals.stop()
	if t.pubsub == nil {
		return t.client.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := t.publish(ctx, Message{Type: TypeBye, Seqno: t.nextSeqno(), Client: t.id}); err != nil {
		t.logger.Warn().Err(err).Msg("bye")
	}
	t.cancel()
	_ = t.pubsub.Close()
	t.pubsub = nil
	t.reset()
	return t.client.Close()
}

var _ Transport = (*RedisTransport)(nil)
