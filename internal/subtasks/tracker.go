// Package subtasks runs the background derived edits (caption insertion and
// deadspace trimming) and tracks them so a session can wait until every
// background edit it started has finished.
package subtasks

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Tracker counts pending tasks. WaitIdle returns once the count drops to
// zero. One Tracker is owned per agent and injected where needed.
type Tracker struct {
	mu      sync.Mutex
	pending int
	waiters []chan struct{}
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Start registers a new pending task.
func (t *Tracker) Start(kind string) *Task {
	t.mu.Lock()
	t.pending++
	t.mu.Unlock()
	return &Task{ID: uuid.NewString(), Kind: kind, tracker: t, done: make(chan struct{})}
}

// Pending returns the number of unfinished tasks.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// WaitIdle blocks until no task is pending or ctx ends.
func (t *Tracker) WaitIdle(ctx context.Context) error {
	t.mu.Lock()
	if t.pending == 0 {
		t.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	t.waiters = append(t.waiters, ch)
	t.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending--
	if t.pending > 0 {
		return
	}
	t.pending = 0
	for _, ch := range t.waiters {
		close(ch)
	}
	t.waiters = nil
}

// Task is one background edit. Done is closed after Finish.
type Task struct {
	ID      string
	Kind    string
	tracker *Tracker

	once    sync.Once
	done    chan struct{}
	outcome *Outcome
	err     error
}

// Finish records the result and releases the tracker slot. Only the first
// call has an effect.
func (t *Task) Finish(outcome *Outcome, err error) {
	t.once.Do(func() {
		t.outcome = outcome
		t.err = err
		close(t.done)
		t.tracker.finish()
	})
}

func (t *Task) Done() <-chan struct{} { return t.done }

// Result returns the outcome. Valid after Done is closed.
func (t *Task) Result() (*Outcome, error) {
	<-t.done
	return t.outcome, t.err
}
