package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-appfw/internal/core"
	"go-appfw/internal/logging"
)

const writeTimeout = 10 * time.Second

// WebSocketConfig configures a WebSocketTransport.
type WebSocketConfig struct {
	URL      string
	Identity Hello
	Dialer   *websocket.Dialer
}

// WebSocketTransport talks to the relay over a single WebSocket
// connection. The first frame sent is the hello.
type WebSocketTransport struct {
	*demux

	mu       sync.Mutex
	writeMu  sync.Mutex
	url      string
	dialer   *websocket.Dialer
	id       string
	identity Hello
	conn     *websocket.Conn
	signals  signalBridge
	closed   bool
	done     chan struct{}
}

// NewWebSocketTransport creates a transport for the relay at cfg.URL.
func NewWebSocketTransport(cfg WebSocketConfig, loop Poster, logger *zerolog.Logger) *WebSocketTransport {
	l := logging.OrDefault(logger).With().Str("component", "transport").Logger()
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WebSocketTransport{
		demux:    newDemux(loop, l),
		url:      cfg.URL,
		dialer:   dialer,
		id:       uuid.NewString(),
		identity: cfg.Identity,
	}
}

// ID returns the connection id the relay knows this client by.
func (t *WebSocketTransport) ID() string { return t.id }

// Open dials the relay and sends the hello frame.
func (t *WebSocketTransport) Open(ctx context.Context, h Handlers) error {
	if !h.complete() {
		return errors.New("transport: incomplete handlers")
	}
	t.mu.Lock()
	if t.closed || t.conn != nil {
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return ErrNotOpen
		}
		return errors.New("transport: already open")
	}
	t.mu.Unlock()

	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.url, err)
	}

	// Close or another Open may have run while dialing.
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.closed:
		_ = conn.Close()
		return ErrNotOpen
	case t.conn != nil:
		_ = conn.Close()
		return errors.New("transport: already open")
	}
	t.install(h)
	hello := t.identity
	if err := t.writeConn(conn, Message{Type: TypeHello, Seqno: t.nextSeqno(), Client: t.id, Hello: &hello}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("hello: %w", err)
	}
	done := make(chan struct{})
	t.conn, t.done = conn, done
	go t.receive(conn, done)
	t.logger.Debug().Str("client", t.id).Str("url", t.url).Msg("connection to relay established")
	return nil
}

func (t *WebSocketTransport) receive(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			t.mu.Lock()
			closing := t.closed
			t.mu.Unlock()
			if !closing {
				t.logger.Error().Err(err).Msg("connection to relay lost")
			}
			return
		}
		t.deliver(m)
	}
}

func (t *WebSocketTransport) write(m Message) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}
	return t.writeConn(conn, m)
}

func (t *WebSocketTransport) writeConn(conn *websocket.Conn, m Message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.debug.Site("transport").Str("type", m.Type).Int("seqno", m.Seqno).Msg("sending message")
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(m)
}

func (t *WebSocketTransport) request(kind requestKind, id int, m Message) error {
	t.mu.Lock()
	open := t.conn != nil
	t.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	m.Seqno = t.track(kind, id)
	m.Client = t.id
	if err := t.write(m); err != nil {
		t.forget(m.Seqno)
		return fmt.Errorf("%s: %w", m.Type, err)
	}
	return nil
}

// SendEvent writes a send-event request.
func (t *WebSocketTransport) SendEvent(_ context.Context, event string, data []byte, id int, target core.Target) error {
	return t.request(kindSend, id, Message{
		Type: TypeSendEvent,
		Send: &SendRequest{Event: event, Data: data, Target: target},
	})
}

// Subscribe replaces the relay's subscription list for this client.
func (t *WebSocketTransport) Subscribe(_ context.Context, events []string) error {
	return t.request(kindSubscribe, 0, Message{
		Type:      TypeSubscribe,
		Subscribe: &SubscribeRequest{Events: append([]string{}, events...)},
	})
}

// ListRunning asks for the running applications.
func (t *WebSocketTransport) ListRunning(_ context.Context, id int) error {
	return t.request(kindList, id, Message{Type: TypeListRunning})
}

// ListAll asks for the installed applications.
func (t *WebSocketTransport) ListAll(_ context.Context, id int) error {
	return t.request(kindList, id, Message{Type: TypeListAll})
}

// EnableSignalBridging delivers SIGHUP and SIGTERM as events.
func (t *WebSocketTransport) EnableSignalBridging() error {
	t.mu.Lock()
	open := t.conn != nil
	t.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	t.signals.start(t.demux)
	return nil
}

// SetDebugFilters configures debug output of this transport.
func (t *WebSocketTransport) SetDebugFilters(filters []string) {
	t.debug.Configure(filters)
}

// Close says goodbye and closes the connection.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn, done := t.conn, t.done
	t.conn = nil
	t.mu.Unlock()

	t.signals.stop()
	if conn == nil {
		return nil
	}
	if err := t.writeConn(conn, Message{Type: TypeBye, Seqno: t.nextSeqno(), Client: t.id}); err != nil {
		t.logger.Warn().Err(err).Msg("bye")
	}
	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	t.writeMu.Unlock()
	err := conn.Close()
	if done != nil {
		<-done
	}
	t.reset()
	return err
}

var _ Transport = (*WebSocketTransport)(nil)
