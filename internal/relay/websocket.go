package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-appfw/internal/logging"
	"go-appfw/internal/transport"
)

const (
	helloTimeout = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketFrontend serves clients over WebSocket, one connection per
// client. The first frame of a connection must be a hello.
type WebSocketFrontend struct {
	router   *Router
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewWebSocketFrontend returns an http.Handler for relay clients.
func NewWebSocketFrontend(router *Router, logger *zerolog.Logger) *WebSocketFrontend {
	return &WebSocketFrontend{
		router: router,
		logger: logging.OrDefault(logger).With().Str("component", "relay-ws").Logger(),
	}
}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(m transport.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(m)
}

func (f *WebSocketFrontend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}
	defer conn.Close()
	c := &wsConn{conn: conn}

	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var hello transport.Message
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != transport.TypeHello {
		f.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("connection did not start with hello")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	id := hello.Client
	if id == "" {
		id = uuid.NewString()
	}
	var identity transport.Hello
	if hello.Hello != nil {
		identity = *hello.Hello
	}
	f.router.Attach(id, identity, c.write)
	defer f.router.Detach(id)

	for {
		var m transport.Message
		if err := conn.ReadJSON(&m); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.logger.Debug().Err(err).Str("client", id).Msg("connection closed")
			}
			return
		}
		switch m.Type {
		case transport.TypeBye:
			return
		case transport.TypeHello:
			st := transport.Failure(transport.StatusProtocol, "duplicate hello")
			_ = c.write(transport.Message{Type: transport.TypeStatus, Seqno: m.Seqno, Status: &st})
		default:
			st := f.router.Handle(r.Context(), id, m)
			if err := c.write(transport.Message{Type: transport.TypeStatus, Seqno: m.Seqno, Status: &st}); err != nil {
				f.logger.Warn().Err(err).Str("client", id).Msg("reply failed")
				return
			}
		}
	}
}
