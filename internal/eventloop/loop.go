// Package eventloop runs callbacks one at a time on a single goroutine.
//
// Transport events, control change events and user commands all arrive from
// their own goroutines; posting them here is what lets the rest of the peer
// code run without locks.
package eventloop

import (
	"log"
	"runtime/debug"
	"sync"
)

// Scheduler accepts work to be run later, in posting order.
type Scheduler interface {
	Post(fn func())
}

// Loop is a Scheduler backed by one goroutine and an unbounded FIFO, so Post
// never blocks, not even when called from inside a running task.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// New creates a loop. Call Start before expecting tasks to run.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start launches the loop goroutine. Calling it twice is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.stopped {
		return
	}
	l.started = true

	l.wg.Add(1)
	go l.run()
}

// Post queues fn. Tasks posted after Stop are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do posts fn and waits for it to finish. Must not be called from inside the
// loop.
func (l *Loop) Do(fn func()) {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
	case <-l.done:
	}
}

// Stop runs what is already queued, then ends the loop goroutine.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	started := l.started
	l.mu.Unlock()

	close(l.done)
	if started {
		l.wg.Wait()
	}
}

func (l *Loop) run() {
	defer l.wg.Done()

	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			runTask(fn)
		}

		select {
		case <-l.wake:
		case <-l.done:
			for {
				fn, ok := l.next()
				if !ok {
					return
				}
				runTask(fn)
			}
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// one bad callback must not take the loop down with it
func runTask(fn func()) {
	defer func() {
		if err := recover(); err != nil {
			log.Printf("⚠️  event loop task panicked: %v\n%s", err, debug.Stack())
		}
	}()
	fn()
}
