package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"go-appfw/internal/core"
)

func serveWebSocket(t *testing.T) (string, chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns
}

func TestWebSocketRoundTrip(t *testing.T) {
	url, conns := serveWebSocket(t)
	rec := newRecorder()
	tr := NewWebSocketTransport(WebSocketConfig{URL: url, Identity: Hello{Binary: "/usr/bin/test"}}, nil, nil)
	if err := tr.Open(context.Background(), rec.handlers()); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer tr.Close()

	var server *websocket.Conn
	select {
	case server = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for connection")
	}
	defer server.Close()

	var hello Message
	if err := server.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Type != TypeHello || hello.Hello == nil || hello.Hello.Binary != "/usr/bin/test" {
		t.Fatalf("unexpected hello %+v", hello)
	}

	if err := tr.ListRunning(context.Background(), 4); err != nil {
		t.Fatalf("list: %v", err)
	}
	var req Message
	if err := server.ReadJSON(&req); err != nil {
		t.Fatalf("read request: %v", err)
	}
	if req.Type != TypeListRunning || req.Seqno != 2 {
		t.Fatalf("unexpected request %+v", req)
	}
	st := OK([]map[string]string{{"appid": "z"}})
	if err := server.WriteJSON(Message{Type: TypeStatus, Seqno: req.Seqno, Status: &st}); err != nil {
		t.Fatalf("write reply: %v", err)
	}
	select {
	case apps := <-rec.lists:
		if len(apps) != 1 || apps[0].AppID != "z" {
			t.Fatalf("unexpected apps %+v", apps)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for list reply")
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	var bye Message
	if err := server.ReadJSON(&bye); err != nil || bye.Type != TypeBye {
		t.Fatalf("expected bye, got %+v (%v)", bye, err)
	}
	if err := tr.Subscribe(context.Background(), []string{"a"}); err != ErrNotOpen {
		t.Fatalf("expected ErrNotOpen got %v", err)
	}
}

func TestWebSocketCloseDuringDial(t *testing.T) {
	url, _ := serveWebSocket(t)
	dialer := &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			time.Sleep(200 * time.Millisecond)
			return (&net.Dialer{}).DialContext(ctx, network, addr)
		},
	}
	tr := NewWebSocketTransport(WebSocketConfig{URL: url, Dialer: dialer}, nil, nil)

	opened := make(chan error, 1)
	go func() { opened <- tr.Open(context.Background(), newRecorder().handlers()) }()
	time.Sleep(50 * time.Millisecond)
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-opened:
		if !errors.Is(err, ErrNotOpen) {
			t.Fatalf("expected ErrNotOpen from open, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for open")
	}
	if err := tr.SendEvent(context.Background(), "ping", nil, 1, core.Target{}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}
