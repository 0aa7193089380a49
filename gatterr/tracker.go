package gatterr

import "sync"

// Tracker counts instability-signalling statuses seen by one session. A
// second occurrence means the platform stack is likely wedged and the user
// should power-cycle the radio instead of the caller retrying again.
type Tracker struct {
	mu     sync.Mutex
	counts map[int]int
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{counts: make(map[int]int)}
}

// Observe records a status reported for this session. Codes that do not
// signal instability are ignored.
func (t *Tracker) Observe(code int) {
	if !SignalsInstability(code) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[code]++
}

// IsInstabilityLikely reports whether code has been observed more than once.
func (t *Tracker) IsInstabilityLikely(code int) bool {
	if !SignalsInstability(code) {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[code] > 1
}

// Any reports whether any instability code has crossed the threshold.
func (t *Tracker) Any() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range t.counts {
		if n > 1 {
			return true
		}
	}
	return false
}

// Reset forgets all observations
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = make(map[int]int)
}
