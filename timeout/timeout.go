// Package timeout implements a re-armable deadline bound to a scheduler.
// One Timeout guards one outstanding operation at a time.
package timeout

import (
	"errors"
	"sync"
	"time"

	"github.com/user/gattlink/sched"
)

// ErrIllegalState is returned by Schedule before SetAction has been called
var ErrIllegalState = errors.New("timeout: action not set")

// Timeout runs its action once when the deadline passes without an
// Unschedule. After firing it returns to idle and can be scheduled again.
type Timeout struct {
	mu       sync.Mutex
	name     string
	duration time.Duration
	s        sched.Scheduler
	action   func()
	pending  sched.Cancelable
	gen      uint64
}

// New creates an unarmed timeout
func New(name string, d time.Duration) *Timeout {
	return &Timeout{name: name, duration: d}
}

// SetAction binds the expiry action and the scheduler it runs on
func (t *Timeout) SetAction(s sched.Scheduler, action func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s = s
	t.action = action
}

// Schedule starts the countdown. A countdown already running is replaced,
// so the action fires at most once per Schedule.
func (t *Timeout) Schedule() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.s == nil || t.action == nil {
		return ErrIllegalState
	}
	if t.pending != nil {
		t.pending.Cancel()
		t.pending = nil
	}

	t.gen++
	gen := t.gen
	t.pending = t.s.After(t.duration, func() { t.fire(gen) })
	return nil
}

// Unschedule stops the countdown. Safe to call when idle.
func (t *Timeout) Unschedule() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending != nil {
		t.pending.Cancel()
		t.pending = nil
	}
	t.gen++
}

// Reschedule restarts the countdown from now
func (t *Timeout) Reschedule() error {
	t.Unschedule()
	return t.Schedule()
}

// IsScheduled reports whether a countdown is running
func (t *Timeout) IsScheduled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

// Name returns the label given at construction
func (t *Timeout) Name() string { return t.name }

// Duration returns the countdown length
func (t *Timeout) Duration() time.Duration { return t.duration }

func (t *Timeout) fire(gen uint64) {
	t.mu.Lock()
	// stale expiry from a countdown that was unscheduled or replaced
	if gen != t.gen || t.pending == nil {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	action := t.action
	t.mu.Unlock()

	action()
}
