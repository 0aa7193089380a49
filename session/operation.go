package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/gattlink/gatterr"
	"github.com/user/gattlink/timeout"
	"github.com/user/gattlink/tracing"
)

type result struct {
	value   []byte
	n       int
	service *Service
	err     error
}

// operation is one queued GATT procedure. Its fields other than abandoned
// are touched only on the session loop.
type operation struct {
	s       *Session
	id      string
	kind    gatterr.Operation
	timeout *timeout.Timeout

	// start issues the transport request. It either returns an error (the
	// stack refused), completes the operation itself, or leaves it pending
	// for a callback or the timeout.
	start func(op *operation) error
	// expire runs when the timeout fires and decides the final result
	expire func(op *operation) result

	// callback matching
	service        uuid.UUID
	characteristic uuid.UUID

	span      trace.Span
	done      bool
	abandoned atomic.Bool
	out       chan result
}

func (s *Session) newOperation(ctx context.Context, kind gatterr.Operation, d time.Duration) (*operation, context.Context) {
	if d <= 0 {
		d = s.timeouts.forOp(kind)
	}
	op := &operation{
		s:       s,
		id:      ulid.Make().String(),
		kind:    kind,
		timeout: timeout.New(kind.String(), d),
		out:     make(chan result, 1),
	}
	ctx, op.span = s.tracer.Start(ctx, "gatt."+kind.String(), trace.WithAttributes(
		tracing.StringAttr("peripheral.address", s.address),
		tracing.StringAttr("operation.id", op.id),
		tracing.IntAttr("operation.timeout_ms", int(d/time.Millisecond)),
	))
	op.timeout.SetAction(s.loop, func() { s.expired(op) })
	return op, ctx
}

func (op *operation) String() string {
	return fmt.Sprintf("%s[%s]", op.kind, op.id)
}

// Run is called by the queue on the session loop
func (op *operation) Run() error {
	s := op.s
	s.current = op

	if op.abandoned.Load() {
		s.complete(op, result{err: context.Canceled})
		return nil
	}
	if err := op.timeout.Schedule(); err != nil {
		s.settle(op, result{err: err})
		return err
	}

	s.log.Debug(s.tag, "start %s", op)
	if err := op.start(op); err != nil {
		err = fmt.Errorf("%w: %s refused: %v", gatterr.ErrTransport, op.kind, err)
		s.settle(op, result{err: err})
		return err
	}
	return nil
}

// Cancel is called by the queue when the operation is dropped unstarted
func (op *operation) Cancel(cause error) {
	op.s.settle(op, result{err: cause})
}

// submit queues op and waits for its result. A cancelled ctx abandons the
// operation: one not yet started is skipped, one already running keeps the
// queue until it completes or times out.
func (s *Session) submit(ctx context.Context, op *operation) result {
	if s.released.Load() {
		s.settleOffLoop(op, gatterr.ErrReleased)
		return result{err: gatterr.ErrReleased}
	}
	if err := ctx.Err(); err != nil {
		s.settleOffLoop(op, err)
		return result{err: err}
	}

	s.loop.Post(func() {
		if s.released.Load() {
			s.settle(op, result{err: gatterr.ErrReleased})
			return
		}
		if err := s.queue.Execute(op); err != nil {
			s.log.Warn(s.tag, "queue fault: %v", err)
		}
	})

	select {
	case res := <-op.out:
		return res
	case <-ctx.Done():
		op.abandoned.Store(true)
		s.log.Debug(s.tag, "%s abandoned by caller: %v", op, ctx.Err())
		return result{err: ctx.Err()}
	case <-s.loop.Done():
		select {
		case res := <-op.out:
			return res
		default:
			return result{err: gatterr.ErrReleased}
		}
	}
}

// settleOffLoop finishes an operation that never reached the loop
func (s *Session) settleOffLoop(op *operation, err error) {
	op.done = true
	tracing.End(op.span, err)
}

// settle delivers the result and detaches op from the session. It leaves
// the queue alone.
func (s *Session) settle(op *operation, res result) bool {
	if op.done {
		return false
	}
	op.done = true
	op.timeout.Unschedule()
	if s.current == op {
		s.current = nil
	}

	if res.err != nil {
		s.log.Debug(s.tag, "%s failed: %v", op, res.err)
	} else {
		s.log.Debug(s.tag, "%s done", op)
	}
	tracing.End(op.span, res.err)
	op.out <- res
	return true
}

// complete settles the running operation and hands the queue to the next one
func (s *Session) complete(op *operation, res result) {
	if s.current != op {
		s.log.Warn(s.tag, "ignoring late completion of %s", op)
		return
	}
	s.settle(op, res)
	if err := s.queue.TaskDone(); err != nil {
		s.log.Warn(s.tag, "queue fault: %v", err)
	}
}

func (s *Session) expired(op *operation) {
	if s.current != op || op.done {
		return
	}
	s.log.Warn(s.tag, "%s timed out after %v", op, op.timeout.Duration())
	res := result{err: &gatterr.OperationTimeoutError{Op: op.kind, Name: op.id}}
	if op.expire != nil {
		res = op.expire(op)
	}
	s.oweReply(op, op.timeout.Duration())
	s.complete(op, res)
}

// fail completes the running operation of the given kind with a classified
// transport error
func (s *Session) fail(op *operation, status int) {
	s.tracker.Observe(status)
	if s.tracker.IsInstabilityLikely(status) {
		s.log.Error(s.tag, "repeated %s, radio power cycle advised", gatterr.StatusName(status))
	}
	s.complete(op, result{err: gatterr.NewTransportError(op.kind, status)})
}

// running returns the current operation if it is one of kinds
func (s *Session) running(kinds ...gatterr.Operation) *operation {
	op := s.current
	if op == nil {
		return nil
	}
	for _, k := range kinds {
		if op.kind == k {
			return op
		}
	}
	return nil
}
