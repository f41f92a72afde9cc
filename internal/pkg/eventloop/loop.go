// Package eventloop runs every session component on a single goroutine.
// Work arrives from transport readers, timers and callers as closures
// and executes to completion in FIFO order, so component state needs no
// locks.
package eventloop

import (
	"errors"
	"fmt"
	"sync"

	"ai-dashboard-client/internal/pkg/logger"
)

// ErrClosed is returned by Do once the loop has stopped.
var ErrClosed = errors.New("event loop closed")

// Executor accepts work to run on the loop. Post never blocks.
type Executor interface {
	Post(fn func()) bool
}

type Loop struct {
	mu      sync.Mutex
	pending []func()
	closed  bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	logger logger.ILogger
}

var _ Executor = (*Loop)(nil)

func New(log logger.ILogger) *Loop {
	return &Loop{
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: log,
	}
}

// Run processes queued work until Close is called. It blocks.
func (l *Loop) Run() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		case <-l.wake:
			for {
				l.mu.Lock()
				batch := l.pending
				l.pending = nil
				l.mu.Unlock()
				if len(batch) == 0 {
					break
				}
				for _, fn := range batch {
					select {
					case <-l.stop:
						return
					default:
					}
					l.execute(fn)
				}
			}
		}
	}
}

// Post queues fn. It reports false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to finish. It must not be
// called from the loop goroutine itself.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	}
}

// Close stops the loop. Queued work that has not started is dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.pending = nil
	l.mu.Unlock()
	close(l.stop)
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("EventLoop", "Task panicked", map[string]interface{}{"error": fmt.Sprint(r)})
		}
	}()
	fn()
}
