package transport

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go-appfw/internal/core"
)

// signalBridge turns SIGHUP and SIGTERM into system events.
type signalBridge struct {
	mu   sync.Mutex
	ch   chan os.Signal
	done chan struct{}
}

func (b *signalBridge) start(d *demux) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil {
		return
	}
	b.ch = make(chan os.Signal, 4)
	b.done = make(chan struct{})
	signal.Notify(b.ch, syscall.SIGHUP, syscall.SIGTERM)
	go func(ch chan os.Signal, done chan struct{}) {
		for {
			select {
			case <-done:
				return
			case sig := <-ch:
				var name string
				switch sig {
				case syscall.SIGHUP:
					name = core.EventReload
				case syscall.SIGTERM:
					name = core.EventTerminate
				default:
					continue
				}
				d.deliver(Message{Type: TypeEvent, Event: &Notice{Event: name}})
			}
		}
	}(b.ch, b.done)
}

func (b *signalBridge) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch == nil {
		return
	}
	signal.Stop(b.ch)
	close(b.done)
	b.ch, b.done = nil, nil
}
