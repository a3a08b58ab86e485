// Package session runs one prompt end to end: the streamer plans and emits
// NDJSON frames, step frames feed a FIFO queue that executes one instruction
// at a time, and once the queue has drained and the session's background
// edits have finished a summary frame closes the stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/commands"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/instructions"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/journal"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/planner"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/subtasks"
)

// Config wires a Manager.
type Config struct {
	Streamer   *Streamer
	Engine     *commands.Engine
	Subtasks   *subtasks.Runner
	Recorder   journal.Recorder // optional
	Summarizer *Summarizer
	Pacing     time.Duration
	Logger     *slog.Logger
}

// Manager runs sessions. Sessions may run concurrently; their timeline
// batches serialize in the store.
type Manager struct {
	cfg    Config
	logger *slog.Logger
}

func NewManager(cfg Config) *Manager {
	if cfg.Summarizer == nil {
		cfg.Summarizer = NewSummarizer(nil, cfg.Logger)
	}
	return &Manager{cfg: cfg, logger: logging.WithComponent(logging.OrDiscard(cfg.Logger), "session")}
}

// Result is the final state of one session.
type Result struct {
	SessionID string
	State     string
	Plan      *planner.Plan
	Actions   []Action
	Summary   string
	Dropped   int
}

// Applied counts the actions that changed the timeline.
func (r *Result) Applied() int {
	n := 0
	for _, a := range r.Actions {
		if a.Succeeded() {
			n++
		}
	}
	return n
}

// Run executes prompt and writes every frame to out. The returned error is
// the terminal failure (planning or transport); per-step failures are only
// reported in the actions.
func (m *Manager) Run(ctx context.Context, prompt string, out Emitter) (*Result, error) {
	rec, err := m.begin(ctx, prompt)
	if err != nil {
		// Command records reference the session row, so nothing runs
		// without one.
		err = fmt.Errorf("record session: %w", err)
		m.logger.Error("session not started", "error", err)
		_ = out.Emit(errorFrame(err))
		return &Result{State: journal.SessionStateErrored}, err
	}
	res := &Result{SessionID: rec.ID}
	logger := logging.WithSessionID(m.logger, rec.ID)
	logger.Info("session started", "prompt_bytes", len(prompt))

	exec := NewExecutor(m.cfg.Engine, m.cfg.Subtasks, rec.ID, logger)
	queue := NewQueue(exec, m.cfg.Pacing, logger)
	qctx, cancelQueue := context.WithCancel(ctx)
	defer cancelQueue()
	go queue.Run(qctx)

	tee := EmitterFunc(func(f Frame) error {
		f.SessionID = rec.ID
		if err := out.Emit(f); err != nil {
			return err
		}
		if f.Event != EventStep {
			return nil
		}
		ins, err := instructions.Unmarshal(f.Step)
		if err != nil {
			return fmt.Errorf("step %d: %w", f.StepIndex, err)
		}
		queue.Enqueue(f.StepIndex, ins)
		return nil
	})

	rec.State = journal.SessionStatePlanning
	m.save(ctx, rec)

	meta := planner.MetadataFrom(m.cfg.Engine.Store().Snapshot())
	plan, err := m.cfg.Streamer.Stream(ctx, prompt, meta, tee)
	if err != nil {
		queue.Stop()
		res.Dropped = queue.Dropped()
		res.Actions = settled(queue.Actions())
		return m.fail(ctx, rec, res, err, logger)
	}
	res.Plan = plan
	rec.Provenance = string(plan.Provenance)
	rec.StepCount = len(plan.Steps)
	rec.State = journal.SessionStateExecuting
	m.save(ctx, rec)

	if err := queue.Drain(ctx); err != nil {
		queue.Stop()
		return m.fail(ctx, rec, res, &agenterr.TransportError{Op: "drain step queue", Err: err}, logger)
	}
	if err := exec.WaitTasks(ctx); err != nil {
		return m.fail(ctx, rec, res, &agenterr.TransportError{Op: "wait for background edits", Err: err}, logger)
	}

	res.Actions = settled(queue.Actions())
	res.Summary = m.cfg.Summarizer.Summarize(ctx, prompt, res.Actions)
	if err := out.Emit(Frame{Event: EventSummary, SessionID: rec.ID, Summary: res.Summary, Actions: res.Actions}); err != nil {
		return m.fail(ctx, rec, res, err, logger)
	}

	res.State = journal.SessionStateCompleted
	rec.State = res.State
	rec.StepsApplied = res.Applied()
	rec.Summary = res.Summary
	m.save(ctx, rec)
	logger.Info("session completed", "steps", rec.StepCount, "applied", rec.StepsApplied)
	return res, nil
}

func (m *Manager) fail(ctx context.Context, rec *journal.Session, res *Result, err error, logger *slog.Logger) (*Result, error) {
	res.State = journal.SessionStateErrored
	rec.State = res.State
	rec.Error = agenterr.Short(err)
	rec.StepsApplied = res.Applied()
	m.save(context.WithoutCancel(ctx), rec)

	var cfgErr *agenterr.ConfigurationError
	if errors.As(err, &cfgErr) {
		logger.Error("session failed: configuration", "setting", cfgErr.Setting, "error", err)
	} else {
		logger.Error("session failed", "code", agenterr.Classify(err), "dropped_steps", res.Dropped, "error", err)
	}
	return res, err
}

// begin creates the journal record, or an in-memory one without a recorder.
func (m *Manager) begin(ctx context.Context, prompt string) (*journal.Session, error) {
	if m.cfg.Recorder != nil {
		return m.cfg.Recorder.BeginSession(ctx, prompt)
	}
	now := time.Now()
	return &journal.Session{ID: uuid.NewString(), Prompt: prompt, State: journal.SessionStateIdle, CreatedAt: now, UpdatedAt: now}, nil
}

func (m *Manager) save(ctx context.Context, rec *journal.Session) {
	if m.cfg.Recorder == nil {
		return
	}
	if err := m.cfg.Recorder.SaveSession(ctx, rec); err != nil {
		m.logger.Warn("cannot save session", "session_id", rec.ID, "error", err)
	}
}

// settled resolves background actions. Callers wait for the tasks first.
func settled(actions []Action) []Action {
	for i := range actions {
		if actions[i].task == nil {
			continue
		}
		select {
		case <-actions[i].task.Done():
			actions[i].settle()
		default:
		}
	}
	return actions
}
