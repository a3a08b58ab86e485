package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/instructions"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
)

// Runner executes one queued step.
type Runner interface {
	Execute(ctx context.Context, step int, ins instructions.Instruction) Action
}

type queued struct {
	step int
	ins  instructions.Instruction
}

// Queue is the FIFO step queue. Exactly one step executes at a time, steps
// are separated by the pacing delay, and a step whose canonical form was
// already accepted is ignored.
type Queue struct {
	runner Runner
	pacing time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	pending  []queued
	seen     map[string]bool
	inFlight bool
	stopped  bool
	dropped  int
	actions  []Action
	lastDone time.Time
	wake     chan struct{}
	waiters  []chan struct{}
}

func NewQueue(runner Runner, pacing time.Duration, logger *slog.Logger) *Queue {
	return &Queue{
		runner: runner,
		pacing: pacing,
		logger: logging.OrDiscard(logger),
		seen:   make(map[string]bool),
		wake:   make(chan struct{}, 1),
	}
}

// Enqueue appends a step. It returns false when the step duplicates one
// already accepted or the queue was stopped.
func (q *Queue) Enqueue(step int, ins instructions.Instruction) bool {
	key := instructions.Canonical(ins)
	q.mu.Lock()
	if q.stopped || q.seen[key] {
		q.mu.Unlock()
		q.logger.Debug("step ignored", "step", step, "kind", ins.Kind(), "stopped", q.stopped)
		return false
	}
	q.seen[key] = true
	q.pending = append(q.pending, queued{step: step, ins: ins})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Run executes steps until ctx ends or Stop is called.
func (q *Queue) Run(ctx context.Context) {
	for {
		item, ok := q.next(ctx)
		if !ok {
			return
		}
		if !q.pace(ctx) {
			q.release()
			return
		}
		act := q.runner.Execute(ctx, item.step, item.ins)

		q.mu.Lock()
		q.actions = append(q.actions, act)
		q.inFlight = false
		q.lastDone = time.Now()
		q.notifyLocked()
		q.mu.Unlock()
	}
}

// next blocks until a step is available and marks it in flight.
func (q *Queue) next(ctx context.Context) (queued, bool) {
	for {
		q.mu.Lock()
		if q.stopped {
			q.mu.Unlock()
			return queued{}, false
		}
		if len(q.pending) > 0 {
			item := q.pending[0]
			q.pending = q.pending[1:]
			q.inFlight = true
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			q.Stop()
			return queued{}, false
		}
	}
}

// pace waits out the delay since the previous step finished.
func (q *Queue) pace(ctx context.Context) bool {
	q.mu.Lock()
	last := q.lastDone
	q.mu.Unlock()
	if q.pacing <= 0 || last.IsZero() {
		return true
	}
	wait := q.pacing - time.Since(last)
	if wait <= 0 {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		q.Stop()
		return false
	}
}

func (q *Queue) release() {
	q.mu.Lock()
	q.inFlight = false
	q.notifyLocked()
	q.mu.Unlock()
}

// Stop drops every queued step. The step in flight, if any, finishes.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	q.dropped += len(q.pending)
	q.pending = nil
	q.notifyLocked()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Drain blocks until nothing is queued or in flight, or ctx ends.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	if q.idleLocked() {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) idleLocked() bool {
	return len(q.pending) == 0 && !q.inFlight
}

func (q *Queue) notifyLocked() {
	if !q.idleLocked() {
		return
	}
	for _, ch := range q.waiters {
		close(ch)
	}
	q.waiters = nil
}

// Actions returns the executed steps' actions in execution order.
func (q *Queue) Actions() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Action(nil), q.actions...)
}

// Dropped is the number of steps discarded by Stop.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
