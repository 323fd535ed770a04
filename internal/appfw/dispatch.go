package appfw

import (
	"fmt"
	"runtime/debug"

	"go-appfw/internal/core"
	"go-appfw/internal/transport"
)

// dispatcher turns transport notifications into handler and callback
// calls. Any handler failure ends the process.
type dispatcher struct {
	app *App
}

func (d dispatcher) handlers() transport.Handlers {
	return transport.Handlers{
		Event:     d.event,
		Status:    d.status,
		SendAck:   d.sendAck,
		ListReply: d.listReply,
	}
}

// run calls fn and exits on error or panic.
func (d dispatcher) run(site string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.app.logger.Error().
				Str("site", site).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			d.app.exit(1)
		}
	}()
	if err := fn(); err != nil {
		d.app.logger.Error().Err(err).Str("site", site).Msg("handler failed")
		d.app.exit(1)
	}
}

func parsePayload(raw []byte) (core.Value, error) {
	v, err := core.Parse(raw)
	if err != nil {
		return core.Value{}, fmt.Errorf("parse payload: %w", err)
	}
	return v, nil
}

func (d dispatcher) event(name string, raw []byte) {
	d.run("event", func() error {
		data, err := parsePayload(raw)
		if err != nil {
			return fmt.Errorf("event %s: %w", name, err)
		}
		h := d.app.EventHandler()
		if h == nil {
			d.app.logger.Debug().Str("event", name).Msg("no event handler, dropping event")
			return nil
		}
		return h(name, data)
	})
}

func (d dispatcher) status(seqno, status int, msg string, raw []byte) {
	d.run("status", func() error {
		data, err := parsePayload(raw)
		if err != nil {
			return fmt.Errorf("status %d: %w", seqno, err)
		}
		h := d.app.StatusHandler()
		if h == nil {
			if !core.Succeeded(status) {
				d.app.logger.Warn().Int("seqno", seqno).Int("status", status).Str("message", msg).Msg("subscription failed")
			}
			return nil
		}
		return h(seqno, status, msg, data, d.app.UserData())
	})
}

func (d dispatcher) sendAck(id, seqno, status int, msg string) {
	e, ok := d.app.registry.Resolve(id, SendAckCallback)
	if !ok {
		return
	}
	cb, _ := e.Callback.(SendCallback)
	if cb == nil {
		return
	}
	d.run("send-ack", func() error { return cb(seqno, status, msg, e.Context) })
}

func (d dispatcher) listReply(id, seqno, status int, msg string, apps []core.AppInfo) {
	e, ok := d.app.registry.Resolve(id, ListReplyCallback)
	if !ok {
		return
	}
	cb, _ := e.Callback.(ListCallback)
	if cb == nil {
		return
	}
	if apps == nil {
		apps = []core.AppInfo{}
	}
	d.run("list-reply", func() error { return cb(apps, seqno, status, msg, e.Context) })
}
