package appfw

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-appfw/internal/core"
)

func TestHandlerErrorExits(t *testing.T) {
	_, ft, ex := newTestApp(t, WithEventHandler(func(string, core.Value) error {
		return errors.New("broken invariant")
	}))
	ft.h.Event("ping", []byte("null"))
	assert.Equal(t, []int{1}, ex.codes)
}

func TestHandlerPanicExits(t *testing.T) {
	_, ft, ex := newTestApp(t, WithEventHandler(func(string, core.Value) error {
		panic("boom")
	}))
	ft.h.Event("ping", []byte("null"))
	assert.Equal(t, []int{1}, ex.codes)
}

func TestMalformedPayloadExits(t *testing.T) {
	called := false
	_, ft, ex := newTestApp(t, WithEventHandler(func(string, core.Value) error {
		called = true
		return nil
	}))
	ft.h.Event("ping", []byte("{not json"))
	assert.False(t, called)
	assert.Equal(t, []int{1}, ex.codes)
}

func TestCallbackErrorExits(t *testing.T) {
	app, ft, ex := newTestApp(t)
	require.NoError(t, app.SendEvent(context.Background(), "ping", core.Null(), Target{AppID: "x"},
		func(int, int, string, any) error { return errors.New("no") }, nil))
	ft.h.SendAck(0, 1, 0, "")
	assert.Equal(t, []int{1}, ex.codes)
}

func TestStatusPanicExits(t *testing.T) {
	_, ft, ex := newTestApp(t, WithStatusHandler(func(int, int, string, core.Value, any) error {
		var m map[string]int
		m["x"] = 1
		return nil
	}))
	ft.h.Status(1, 0, "", []byte("null"))
	assert.Equal(t, []int{1}, ex.codes)
}

func TestEventWithoutHandlerIsDropped(t *testing.T) {
	_, ft, ex := newTestApp(t)
	ft.h.Event("ping", []byte(`[1,2]`))
	assert.Empty(t, ex.codes)
}
