package sched

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by an explicit virtual clock. Post runs the
// action inline; delayed actions run only from Advance. It is meant for
// tests that need exact control over expiry.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

// NewManual returns a manual scheduler at virtual time zero
func NewManual() *Manual {
	return &Manual{}
}

type manualTimer struct {
	m        *Manual
	at       time.Duration
	seq      int
	fn       func()
	canceled bool
}

func (t *manualTimer) Cancel() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for i, p := range t.m.timers {
		if p == t {
			t.m.timers = append(t.m.timers[:i], t.m.timers[i+1:]...)
			t.canceled = true
			return true
		}
	}
	return false
}

// Post runs fn immediately on the calling goroutine
func (m *Manual) Post(fn func()) {
	fn()
}

// After registers fn to run when the virtual clock reaches now+d
func (m *Manual) After(d time.Duration, fn func()) Cancelable {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, at: m.now + d, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward, running every action that comes due in
// deadline order. Actions may schedule or cancel other actions.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		sort.Slice(m.timers, func(i, j int) bool {
			if m.timers[i].at == m.timers[j].at {
				return m.timers[i].seq < m.timers[j].seq
			}
			return m.timers[i].at < m.timers[j].at
		})
		if len(m.timers) == 0 || m.timers[0].at > target {
			m.now = target
			m.mu.Unlock()
			return
		}
		next := m.timers[0]
		m.timers = m.timers[1:]
		m.now = next.at
		m.mu.Unlock()

		next.fn()
	}
}

// Now returns the virtual time elapsed since creation
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of delayed actions not yet run or cancelled
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}
