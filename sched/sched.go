// Package sched provides the execution contexts the session core runs on:
// a serialized loop for state mutation and delayed actions for timeouts.
package sched

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cancelable is a pending delayed action
type Cancelable interface {
	// Cancel prevents the action from running. It reports whether the
	// action was still pending.
	Cancel() bool
}

// Scheduler runs actions serialized on one execution context, immediately or
// after a delay.
type Scheduler interface {
	Post(fn func())
	After(d time.Duration, fn func()) Cancelable
}

// Loop is a Scheduler backed by a single goroutine. Actions run one at a
// time in the order they were posted.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool
	done    chan struct{}
}

// NewLoop starts a loop goroutine
func NewLoop() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			if l.stopped {
				l.mu.Unlock()
				return
			}
			l.mu.Unlock()
			<-l.wake
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

// Post queues fn. Posting from inside an action is allowed and never blocks.
// Posts after Stop are dropped.
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

// After posts fn once d has elapsed, unless cancelled first. Cancelling from
// the loop itself always wins against an expiry that has not run yet.
func (l *Loop) After(d time.Duration, fn func()) Cancelable {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.fired.CompareAndSwap(false, true) {
				fn()
			}
		})
	})
	return t
}

// Do posts fn and waits for it to finish. It must not be called from the loop.
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

// Stop drains already-queued actions and ends the goroutine
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the loop goroutine has exited
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

type loopTimer struct {
	timer *time.Timer
	fired atomic.Bool
}

func (t *loopTimer) Cancel() bool {
	t.timer.Stop()
	return t.fired.CompareAndSwap(false, true)
}
