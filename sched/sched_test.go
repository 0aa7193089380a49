package sched

import (
	"sync"
	"testing"
	"time"
)

func TestLoopRunsInPostOrder(t *testing.T) {
	l := NewLoop()
	defer l.Stop()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for loop to drain")
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("Expected FIFO order, got %v", order)
		}
	}
}

func TestLoopPostFromInsideAction(t *testing.T) {
	l := NewLoop()
	defer l.Stop()

	done := make(chan struct{})
	l.Post(func() {
		l.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Nested post never ran")
	}
}

func TestLoopAfterAndCancel(t *testing.T) {
	l := NewLoop()
	defer l.Stop()

	fired := make(chan string, 2)
	l.After(10*time.Millisecond, func() { fired <- "kept" })
	c := l.After(10*time.Millisecond, func() { fired <- "cancelled" })
	if !c.Cancel() {
		t.Fatal("Expected Cancel to report a pending action")
	}
	if c.Cancel() {
		t.Error("Expected second Cancel to report nothing pending")
	}

	select {
	case got := <-fired:
		if got != "kept" {
			t.Fatalf("Expected only the kept action, got %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for delayed action")
	}

	select {
	case got := <-fired:
		t.Fatalf("Cancelled action ran: %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoopDoWaits(t *testing.T) {
	l := NewLoop()
	defer l.Stop()

	ran := false
	l.Do(func() { ran = true })
	if !ran {
		t.Error("Expected Do to wait for the action")
	}
}

func TestLoopStopDropsLaterPosts(t *testing.T) {
	l := NewLoop()
	l.Stop()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("Loop did not exit")
	}

	l.Post(func() { t.Error("Post after Stop must not run") })
	l.Do(func() { t.Error("Do after Stop must not run") })
}

func TestManualAdvance(t *testing.T) {
	m := NewManual()
	var order []string

	m.After(30*time.Millisecond, func() { order = append(order, "c") })
	m.After(10*time.Millisecond, func() {
		order = append(order, "a")
		m.After(5*time.Millisecond, func() { order = append(order, "b") })
	})
	cancelled := m.After(20*time.Millisecond, func() { order = append(order, "x") })
	cancelled.Cancel()

	m.Advance(20 * time.Millisecond)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("Expected [a b] after 20ms, got %v", order)
	}
	if m.Pending() != 1 {
		t.Errorf("Expected 1 pending timer, got %d", m.Pending())
	}

	m.Advance(10 * time.Millisecond)
	if len(order) != 3 || order[2] != "c" {
		t.Fatalf("Expected c at 30ms, got %v", order)
	}
	if m.Now() != 30*time.Millisecond {
		t.Errorf("Expected clock at 30ms, got %v", m.Now())
	}
}
