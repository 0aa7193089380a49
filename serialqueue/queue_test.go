package serialqueue

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type testTask struct {
	name   string
	rec    *recorder
	run    func() error
	cancel error
}

func (t *testTask) Run() error {
	t.rec.add("run %s", t.name)
	if t.run != nil {
		return t.run()
	}
	return nil
}

func (t *testTask) Cancel(cause error) {
	t.cancel = cause
	t.rec.add("cancel %s", t.name)
}

func assertEvents(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected events %v, got %v", want, got)
		}
	}
}

func TestExecuteStartsImmediatelyWhenIdle(t *testing.T) {
	q := New("test")
	rec := &recorder{}

	if err := q.Execute(&testTask{name: "a", rec: rec}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	assertEvents(t, rec.get(), "run a")
	if !q.Busy() {
		t.Error("Queue must stay busy until TaskDone")
	}
}

func TestTasksRunInFIFOOrder(t *testing.T) {
	q := New("test")
	rec := &recorder{}

	for _, name := range []string{"a", "b", "c"} {
		q.Execute(&testTask{name: name, rec: rec})
	}
	assertEvents(t, rec.get(), "run a")
	if q.Len() != 3 {
		t.Errorf("Expected 3 held tasks, got %d", q.Len())
	}

	// TaskDone starts the successor before returning
	q.TaskDone()
	assertEvents(t, rec.get(), "run a", "run b")
	q.TaskDone()
	assertEvents(t, rec.get(), "run a", "run b", "run c")
	q.TaskDone()

	if q.Busy() || q.Len() != 0 {
		t.Errorf("Expected idle empty queue, busy=%v len=%d", q.Busy(), q.Len())
	}
}

func TestSynchronousCompletion(t *testing.T) {
	q := New("test")
	rec := &recorder{}

	for _, name := range []string{"a", "b", "c"} {
		q.Execute(&testTask{name: name, rec: rec, run: func() error { return q.TaskDone() }})
	}
	assertEvents(t, rec.get(), "run a", "run b", "run c")
	if q.Busy() {
		t.Error("Expected idle after synchronous tasks")
	}
}

func TestFaultCancelsQueuedSiblings(t *testing.T) {
	q := New("test")
	rec := &recorder{}
	fault := errors.New("boom")

	q.Execute(&testTask{name: "a", rec: rec})
	bad := &testTask{name: "b", rec: rec, run: func() error { return fault }}
	c := &testTask{name: "c", rec: rec}
	d := &testTask{name: "d", rec: rec}
	q.Execute(bad)
	q.Execute(c)
	q.Execute(d)

	if err := q.TaskDone(); !errors.Is(err, fault) {
		t.Fatalf("Expected fault from TaskDone, got %v", err)
	}
	assertEvents(t, rec.get(), "run a", "run b", "cancel c", "cancel d")
	if !errors.Is(c.cancel, fault) || !errors.Is(d.cancel, fault) {
		t.Error("Siblings must be cancelled with the fault")
	}
	if bad.cancel != nil {
		t.Error("The failing task itself must not be cancelled")
	}
	if q.Busy() || q.Len() != 0 {
		t.Error("Expected queue cleared after fault")
	}

	// a later Execute starts a clean cycle
	if err := q.Execute(&testTask{name: "e", rec: rec}); err != nil {
		t.Fatalf("Execute after fault failed: %v", err)
	}
	events := rec.get()
	if events[len(events)-1] != "run e" {
		t.Errorf("Expected e to run, got %v", events)
	}
}

func TestFaultReturnedFromExecute(t *testing.T) {
	q := New("test")
	rec := &recorder{}
	fault := errors.New("refused")

	err := q.Execute(&testTask{name: "a", rec: rec, run: func() error { return fault }})
	if !errors.Is(err, fault) {
		t.Fatalf("Expected fault from Execute, got %v", err)
	}
	if q.Busy() {
		t.Error("Expected idle after fault")
	}
}

func TestPanicIsRecovered(t *testing.T) {
	q := New("test")
	rec := &recorder{}

	q.Execute(&testTask{name: "a", rec: rec})
	q.Execute(&testTask{name: "b", rec: rec, run: func() error { panic("bad state") }})
	c := &testTask{name: "c", rec: rec}
	q.Execute(c)

	err := q.TaskDone()
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *PanicError, got %v", err)
	}
	if pe.Value != "bad state" {
		t.Errorf("Expected recovered value, got %v", pe.Value)
	}
	if len(pe.Stack) == 0 {
		t.Error("Expected a captured stack")
	}
	if !errors.As(c.cancel, &pe) {
		t.Errorf("Expected sibling cancelled with the panic, got %v", c.cancel)
	}
}

func TestCancelAllKeepsRunningTask(t *testing.T) {
	q := New("test")
	rec := &recorder{}
	cause := errors.New("released")

	q.Execute(&testTask{name: "a", rec: rec})
	b := &testTask{name: "b", rec: rec}
	q.Execute(b)
	q.Execute(&testTask{name: "c", rec: rec})

	if n := q.CancelAll(cause); n != 2 {
		t.Fatalf("Expected 2 dropped, got %d", n)
	}
	if !errors.Is(b.cancel, cause) {
		t.Errorf("Expected cause on cancel, got %v", b.cancel)
	}
	if !q.Busy() || q.Len() != 1 {
		t.Errorf("Running task must keep the queue, busy=%v len=%d", q.Busy(), q.Len())
	}
	q.TaskDone()
	if q.Busy() {
		t.Error("Expected idle after the running task finished")
	}
	assertEvents(t, rec.get(), "run a", "cancel b", "cancel c")
}

func TestTaskDoneWhenIdle(t *testing.T) {
	q := New("test")
	if err := q.TaskDone(); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}

func TestConcurrentProducers(t *testing.T) {
	q := New("test")
	var mu sync.Mutex
	running := 0
	maxRunning := 0
	done := make(chan struct{}, 100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Execute(&asyncTask{q: q, done: done, enter: func() {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				mu.Unlock()
			}, leave: func() {
				mu.Lock()
				running--
				mu.Unlock()
			}})
		}()
	}
	wg.Wait()

	for i := 0; i < 100; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("Only %d/100 tasks completed", i)
		}
	}
	if maxRunning != 1 {
		t.Errorf("Expected at most one running task, saw %d", maxRunning)
	}
}

type asyncTask struct {
	q     *Queue
	done  chan struct{}
	enter func()
	leave func()
}

func (a *asyncTask) Run() error {
	a.enter()
	go func() {
		time.Sleep(time.Millisecond)
		a.leave()
		a.done <- struct{}{}
		a.q.TaskDone()
	}()
	return nil
}

func (a *asyncTask) Cancel(error) {}
