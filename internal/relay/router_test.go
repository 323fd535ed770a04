package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-appfw/internal/core"
	"go-appfw/internal/transport"
)

type inbox struct{ msgs []transport.Message }

func (b *inbox) sink(m transport.Message) error {
	b.msgs = append(b.msgs, m)
	return nil
}

func subscribe(t *testing.T, r *Router, id string, events ...string) {
	t.Helper()
	st := r.Handle(context.Background(), id, transport.Message{
		Type:      transport.TypeSubscribe,
		Subscribe: &transport.SubscribeRequest{Events: events},
	})
	require.Equal(t, core.StatusOK, st.Status, st.Message)
}

func send(r *Router, id, event string, target core.Target) transport.Status {
	return r.Handle(context.Background(), id, transport.Message{
		Type: transport.TypeSendEvent,
		Send: &transport.SendRequest{Event: event, Data: json.RawMessage(`{"n":1}`), Target: target},
	})
}

func recipients(t *testing.T, st transport.Status) int {
	t.Helper()
	var out struct {
		Recipients int `json:"recipients"`
	}
	require.NoError(t, json.Unmarshal(st.Data, &out))
	return out.Recipients
}

func TestRouterRoutesByMaskAndTarget(t *testing.T) {
	r := NewRouter(NewMemoryAppStore(), NewMetrics(), nil)
	var a, b, c inbox
	r.Attach("a", transport.Hello{AppID: "org.a", User: 1000, Process: 10}, a.sink)
	r.Attach("b", transport.Hello{AppID: "org.b", User: 1001, Process: 11}, b.sink)
	r.Attach("c", transport.Hello{AppID: "org.a", Label: "second", User: 1000, Process: 12}, c.sink)
	subscribe(t, r, "a", "ping")
	subscribe(t, r, "b", "ping", "pong")
	subscribe(t, r, "c", "pong")

	st := send(r, "b", "ping", core.Target{AppID: "org.a"})
	require.Equal(t, core.StatusOK, st.Status)
	assert.Equal(t, 1, recipients(t, st))
	require.Len(t, a.msgs, 1)
	assert.Equal(t, "ping", a.msgs[0].Event.Event)
	assert.JSONEq(t, `{"n":1}`, string(a.msgs[0].Event.Data))
	assert.Empty(t, c.msgs)

	uid := 1000
	st = send(r, "a", "pong", core.Target{User: &uid})
	assert.Equal(t, 1, recipients(t, st))
	assert.Len(t, c.msgs, 1)
	assert.Empty(t, b.msgs)

	st = send(r, "a", "pong", core.Target{Label: "second", Process: 99})
	assert.Equal(t, 0, recipients(t, st))
}

func TestRouterUnknownEvent(t *testing.T) {
	r := NewRouter(NewMemoryAppStore(), nil, nil)
	r.Attach("a", transport.Hello{AppID: "org.a"}, (&inbox{}).sink)
	st := send(r, "a", "never-subscribed", core.Target{AppID: "org.a"})
	assert.Equal(t, transport.StatusNotFound, st.Status)
	assert.NotEmpty(t, st.Message)
	assert.Nil(t, st.Data)
}

func TestRouterRejectsEmptySubscription(t *testing.T) {
	r := NewRouter(NewMemoryAppStore(), nil, nil)
	r.Attach("a", transport.Hello{}, (&inbox{}).sink)
	ctx := context.Background()

	st := r.Handle(ctx, "a", transport.Message{Type: transport.TypeSubscribe, Subscribe: &transport.SubscribeRequest{}})
	assert.Equal(t, transport.StatusInvalid, st.Status)

	st = r.Handle(ctx, "a", transport.Message{Type: transport.TypeSubscribe, Subscribe: &transport.SubscribeRequest{Events: []string{"ok", ""}}})
	assert.Equal(t, transport.StatusInvalid, st.Status)
}

func TestRouterRequiresHello(t *testing.T) {
	r := NewRouter(NewMemoryAppStore(), nil, nil)
	st := r.Handle(context.Background(), "ghost", transport.Message{Type: transport.TypeListAll})
	assert.Equal(t, transport.StatusProtocol, st.Status)
}

func TestRouterUnknownType(t *testing.T) {
	r := NewRouter(NewMemoryAppStore(), nil, nil)
	r.Attach("a", transport.Hello{}, (&inbox{}).sink)
	st := r.Handle(context.Background(), "a", transport.Message{Type: "reboot"})
	assert.Equal(t, transport.StatusInvalid, st.Status)
}

func TestRouterListRunning(t *testing.T) {
	store := NewMemoryAppStore()
	_, err := store.Put(context.Background(), core.AppInfo{AppID: "org.b", Desktop: "b.desktop"})
	require.NoError(t, err)
	r := NewRouter(store, nil, nil)
	r.Attach("1", transport.Hello{AppID: "org.b"}, (&inbox{}).sink)
	r.Attach("2", transport.Hello{Binary: "/usr/bin/tool"}, (&inbox{}).sink)
	r.Attach("3", transport.Hello{AppID: "org.a"}, (&inbox{}).sink)
	r.Detach("3")
	r.Detach("3")

	st := r.Handle(context.Background(), "1", transport.Message{Type: transport.TypeListRunning})
	require.Equal(t, core.StatusOK, st.Status)
	var apps []core.AppInfo
	require.NoError(t, json.Unmarshal(st.Data, &apps))
	require.Len(t, apps, 2)
	assert.Equal(t, "org.b", apps[0].AppID)
	assert.Equal(t, "b.desktop", apps[0].Desktop)
	assert.Equal(t, "/usr/bin/tool", apps[1].AppID)
	assert.Empty(t, apps[1].Desktop)
	assert.Equal(t, 2, r.Clients())
}

func TestRouterListAll(t *testing.T) {
	store := NewMemoryAppStore()
	ctx := context.Background()
	for _, id := range []string{"foo", "bar"} {
		_, err := store.Put(ctx, core.AppInfo{AppID: id, Desktop: id + ".desktop"})
		require.NoError(t, err)
	}
	r := NewRouter(store, nil, nil)
	r.Attach("x", transport.Hello{}, (&inbox{}).sink)

	st := r.Handle(ctx, "x", transport.Message{Type: transport.TypeListAll})
	var apps []core.AppInfo
	require.NoError(t, json.Unmarshal(st.Data, &apps))
	require.Len(t, apps, 2)
	assert.Equal(t, "foo", apps[0].AppID)
	assert.Equal(t, "bar", apps[1].AppID)
}

func TestRouterFailedSinkNotCounted(t *testing.T) {
	r := NewRouter(NewMemoryAppStore(), nil, nil)
	r.Attach("a", transport.Hello{}, func(transport.Message) error { return errors.New("gone") })
	subscribe(t, r, "a", "ping")
	st := send(r, "a", "ping", core.Target{Process: 0, Label: ""})
	assert.Equal(t, 0, recipients(t, st))
}

func TestRouterDetachesGoneClients(t *testing.T) {
	r := NewRouter(NewMemoryAppStore(), nil, nil)
	var live inbox
	r.Attach("dead", transport.Hello{AppID: "org.dead"}, func(transport.Message) error {
		return fmt.Errorf("publish: %w", ErrClientGone)
	})
	r.Attach("live", transport.Hello{AppID: "org.live"}, live.sink)
	subscribe(t, r, "dead", "ping")
	subscribe(t, r, "live", "ping")

	st := send(r, "live", "ping", core.Target{})
	assert.Equal(t, 1, recipients(t, st))
	assert.Len(t, live.msgs, 1)
	assert.Equal(t, 1, r.Clients())

	st = r.Handle(context.Background(), "live", transport.Message{Type: transport.TypeListRunning})
	var apps []core.AppInfo
	require.NoError(t, json.Unmarshal(st.Data, &apps))
	require.Len(t, apps, 1)
	assert.Equal(t, "org.live", apps[0].AppID)
}
