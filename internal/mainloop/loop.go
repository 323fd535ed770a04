package mainloop

import (
	"context"
	"sync"
	"time"
)

// Loop runs posted callbacks one at a time on the goroutine that calls Run.
// Post may be called from any goroutine, including from a running callback.
type Loop struct {
	mu       sync.Mutex
	queue    []func()
	wake     chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
}

// New returns an idle loop.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
}

// Post schedules fn to run on the loop. Callbacks run in posting order.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes callbacks until Quit is called or ctx is done. It returns nil
// after Quit and ctx.Err() on cancellation. Callbacks still queued when the
// loop stops are discarded.
func (l *Loop) Run(ctx context.Context) error {
	for {
		for {
			fn := l.next()
			if fn == nil {
				break
			}
			select {
			case <-l.quit:
				return nil
			default:
			}
			fn()
		}
		select {
		case <-l.quit:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

// Quit stops the loop. It is safe to call more than once.
func (l *Loop) Quit() {
	l.quitOnce.Do(func() { close(l.quit) })
}

// Done is closed once Quit has been called.
func (l *Loop) Done() <-chan struct{} { return l.quit }

// AddTimeout runs fn on the loop every d for as long as it returns true.
// The returned function cancels the timer.
func (l *Loop) AddTimeout(d time.Duration, fn func() bool) (stop func()) {
	var (
		mu      sync.Mutex
		stopped bool
		timer   *time.Timer
	)
	var arm func()
	arm = func() {
		timer = time.AfterFunc(d, func() {
			l.Post(func() {
				mu.Lock()
				if stopped {
					mu.Unlock()
					return
				}
				mu.Unlock()
				if fn() {
					mu.Lock()
					if !stopped {
						arm()
					}
					mu.Unlock()
					return
				}
				mu.Lock()
				stopped = true
				mu.Unlock()
			})
		})
	}
	mu.Lock()
	arm()
	mu.Unlock()
	return func() {
		mu.Lock()
		defer mu.Unlock()
		stopped = true
		timer.Stop()
	}
}
