// Package serialqueue runs asynchronous tasks strictly one after another.
//
// A task is started by Execute or by the TaskDone of its predecessor, and it
// owns the queue until it (or whoever observes its completion) calls
// TaskDone. Task bodies only start work; completion arrives later.
package serialqueue

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/user/gattlink/logger"
)

// Task is a unit of queued work
type Task interface {
	// Run starts the task. A returned error is a fault: the queue drops and
	// cancels every task still waiting behind it.
	Run() error
	// Cancel is called instead of Run when the task is dropped
	Cancel(cause error)
}

// PanicError wraps a value recovered from a panicking Run
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("serialqueue: task panicked: %v", e.Value)
}

// Queue is a FIFO of tasks with at most one running
type Queue struct {
	mu      sync.Mutex
	name    string
	pending []Task
	busy    bool
	log     logger.Logger
}

// Option configures a Queue
type Option func(*Queue)

// WithLogger routes queue diagnostics to l
func WithLogger(l logger.Logger) Option {
	return func(q *Queue) { q.log = l }
}

// New creates an idle queue. name tags log lines.
func New(name string, opts ...Option) *Queue {
	q := &Queue{name: name, log: logger.Nop()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Execute appends t. If the queue is idle t starts before Execute returns.
// The error is a fault raised by the task started here, if any.
func (q *Queue) Execute(t Task) error {
	q.mu.Lock()
	q.pending = append(q.pending, t)
	if q.busy {
		depth := len(q.pending)
		q.mu.Unlock()
		q.log.Trace(q.name, "queued task behind %d", depth-1)
		return nil
	}
	q.busy = true
	q.mu.Unlock()

	return q.runHead()
}

// TaskDone marks the running task finished and starts the next one, if
// any, before returning. The error is a fault raised by that next task.
func (q *Queue) TaskDone() error {
	q.mu.Lock()
	if !q.busy {
		q.mu.Unlock()
		q.log.Warn(q.name, "TaskDone with no running task")
		return nil
	}
	q.pending[0] = nil
	q.pending = q.pending[1:]
	if len(q.pending) == 0 {
		q.pending = nil
		q.busy = false
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	return q.runHead()
}

// CancelAll drops every task that has not started, calling Cancel(cause) on
// each. The running task, if any, keeps the queue. Returns how many were
// dropped.
func (q *Queue) CancelAll(cause error) int {
	q.mu.Lock()
	var dropped []Task
	if q.busy && len(q.pending) > 1 {
		dropped = append(dropped, q.pending[1:]...)
		q.pending = q.pending[:1]
	}
	q.mu.Unlock()

	for _, t := range dropped {
		t.Cancel(cause)
	}
	return len(dropped)
}

// Len returns the number of tasks held, including the running one
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Busy reports whether a task is running
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.busy
}

func (q *Queue) runHead() error {
	q.mu.Lock()
	head := q.pending[0]
	q.mu.Unlock()

	err := safeRun(head)
	if err == nil {
		return nil
	}

	q.mu.Lock()
	var dropped []Task
	// the head may already have called TaskDone before failing
	for _, t := range q.pending {
		if t != head {
			dropped = append(dropped, t)
		}
	}
	q.pending = nil
	q.busy = false
	q.mu.Unlock()

	q.log.Error(q.name, "task failed, cancelling %d queued: %v", len(dropped), err)
	for _, t := range dropped {
		t.Cancel(err)
	}
	return err
}

func safeRun(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return t.Run()
}
