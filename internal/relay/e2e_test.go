package relay

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-appfw/internal/appfw"
	"go-appfw/internal/core"
	"go-appfw/internal/mainloop"
	"go-appfw/internal/transport"
)

type received struct {
	event string
	data  core.Value
}

func runLoop(t *testing.T) *mainloop.Loop {
	t.Helper()
	loop := mainloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop
}

func wait[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
	var zero T
	return zero
}

// exercise runs the same conversation over any pair of transports.
func exercise(t *testing.T, receiverT, senderT transport.Transport) {
	ctx := context.Background()
	events := make(chan received, 4)
	statuses := make(chan core.StatusReport, 4)

	receiver, err := appfw.New(ctx, receiverT,
		appfw.WithEventHandler(func(name string, data core.Value) error {
			events <- received{name, data}
			return nil
		}),
		appfw.WithStatusHandler(func(seqno, status int, msg string, data core.Value, _ any) error {
			statuses <- core.StatusReport{Seqno: seqno, Status: status, Message: msg, Data: data}
			return nil
		}))
	require.NoError(t, err)
	defer receiver.Close()

	require.NoError(t, receiver.SetSubscriptions(ctx, "ping"))
	st := wait(t, statuses)
	require.True(t, st.OK(), st.Message)

	// The receiver is attached now, so list-running order is fixed.
	sender, err := appfw.New(ctx, senderT)
	require.NoError(t, err)
	defer sender.Close()

	acks := make(chan [3]any, 2)
	ack := func(seqno, status int, msg string, data any) error {
		acks <- [3]any{status, msg, data}
		return nil
	}
	payload := core.Object(core.M("n", core.Int(1)), core.M("tags", core.Array(core.String("x"))))
	require.NoError(t, sender.SendEvent(ctx, "ping", payload, appfw.Target{AppID: "org.receiver"}, ack, "first"))

	got := wait(t, events)
	assert.Equal(t, "ping", got.event)
	assert.True(t, payload.Equal(got.data), got.data.String())
	assert.Equal(t, [3]any{core.StatusOK, "", "first"}, wait(t, acks))

	require.NoError(t, sender.SendEvent(ctx, "nobody-listens", core.Null(), appfw.Target{AppID: "org.receiver"}, ack, "second"))
	res := wait(t, acks)
	assert.Equal(t, transport.StatusNotFound, res[0])
	assert.NotEmpty(t, res[1])

	// Empty subscription is refused by the relay.
	require.NoError(t, receiver.SetSubscriptions(ctx))
	st = wait(t, statuses)
	assert.Equal(t, transport.StatusInvalid, st.Status)

	lists := make(chan []core.AppInfo, 2)
	listed := func(apps []core.AppInfo, _, status int, msg string, _ any) error {
		if status != core.StatusOK {
			apps = nil
		}
		lists <- apps
		return nil
	}
	require.NoError(t, sender.ListRunning(ctx, listed, nil))
	running := wait(t, lists)
	require.Len(t, running, 2)
	assert.Equal(t, "org.receiver", running[0].AppID)
	assert.Equal(t, "receiver.desktop", running[0].Desktop)
	assert.Equal(t, "org.sender", running[1].AppID)

	require.NoError(t, sender.ListAll(ctx, listed, nil))
	all := wait(t, lists)
	require.Len(t, all, 2)
	assert.Equal(t, "org.receiver", all[0].AppID)
	assert.Equal(t, "org.other", all[1].AppID)
	assert.Zero(t, sender.Pending())
}

func seededStore(t *testing.T) AppStore {
	t.Helper()
	m, err := ParseManifest([]byte(`
applications:
  - appid: org.receiver
    desktop: receiver.desktop
  - appid: org.other
`))
	require.NoError(t, err)
	store := NewMemoryAppStore()
	require.NoError(t, m.Seed(context.Background(), store))
	return store
}

func TestEndToEndRedis(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()
	opts := &redis.Options{Addr: s.Addr()}

	router := NewRouter(seededStore(t), NewMetrics(), nil)
	front := NewRedisFrontend(opts, "", router, nil)
	require.NoError(t, front.Start(context.Background()))
	defer front.Close()

	loop := runLoop(t)
	receiver := transport.NewRedisTransport(transport.RedisConfig{Options: opts, Identity: transport.Hello{AppID: "org.receiver"}}, loop, nil)
	sender := transport.NewRedisTransport(transport.RedisConfig{Options: opts, Identity: transport.Hello{AppID: "org.sender"}}, loop, nil)
	exercise(t, receiver, sender)
}

func TestEndToEndWebSocket(t *testing.T) {
	router := NewRouter(seededStore(t), NewMetrics(), nil)
	srv := httptest.NewServer(NewWebSocketFrontend(router, nil))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	loop := runLoop(t)
	receiver := transport.NewWebSocketTransport(transport.WebSocketConfig{URL: url, Identity: transport.Hello{AppID: "org.receiver"}}, loop, nil)
	sender := transport.NewWebSocketTransport(transport.WebSocketConfig{URL: url, Identity: transport.Hello{AppID: "org.sender"}}, loop, nil)
	exercise(t, receiver, sender)
}
