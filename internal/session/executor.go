package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/commands"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/instructions"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/resolver"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/subtasks"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

// Status is what happened to one step.
type Status string

const (
	StatusApplied    Status = "applied"
	StatusPartial    Status = "partial"
	StatusFailed     Status = "failed"
	StatusBackground Status = "background"
)

// Action is the applied-outcome record of one step. Summaries are written
// from actions, not from the planned instructions.
type Action struct {
	Step        int               `json:"step"`
	Kind        instructions.Kind `json:"kind"`
	Description string            `json:"description"`
	Status      Status            `json:"status"`
	Elements    int               `json:"elements,omitempty"`
	Skipped     int               `json:"skipped,omitempty"`
	Failed      int               `json:"failed,omitempty"`
	Removed     float64           `json:"removed,omitempty"`
	Detail      string            `json:"detail,omitempty"`
	Error       string            `json:"error,omitempty"`
	Code        agenterr.Kind     `json:"code,omitempty"`
	DryRun      bool              `json:"dryRun,omitempty"`

	task *subtasks.Task
}

// Succeeded reports whether the step changed (or would change) anything.
func (a Action) Succeeded() bool {
	return a.Status == StatusApplied || a.Status == StatusPartial
}

// Executor runs one instruction at a time against the engine and hands the
// derived edits to the subtask runner.
type Executor struct {
	engine    *commands.Engine
	subtasks  *subtasks.Runner
	sessionID string
	logger    *slog.Logger

	mu    sync.Mutex
	tasks []*subtasks.Task
}

func NewExecutor(engine *commands.Engine, runner *subtasks.Runner, sessionID string, logger *slog.Logger) *Executor {
	return &Executor{engine: engine, subtasks: runner, sessionID: sessionID, logger: logging.OrDiscard(logger)}
}

// Execute runs ins and returns its action. Per-instruction failures are
// recorded on the action and never returned as errors.
func (e *Executor) Execute(ctx context.Context, step int, ins instructions.Instruction) Action {
	act := Action{Step: step, Kind: ins.Kind(), Description: ins.Description()}
	v := &visit{ctx: ctx, e: e, act: &act}
	if err := ins.Accept(v); err != nil {
		act.Status = StatusFailed
		act.Error = agenterr.Short(err)
		act.Code = agenterr.Classify(err)
		e.logger.Warn("step failed", "step", step, "kind", ins.Kind(), "code", act.Code, "error", err)
		return act
	}
	e.logger.Info("step executed", "step", step, "kind", ins.Kind(), "status", act.Status,
		"elements", act.Elements, "skipped", act.Skipped)
	return act
}

// WaitTasks blocks until every background edit started by this executor has
// finished, or ctx ends.
func (e *Executor) WaitTasks(ctx context.Context) error {
	e.mu.Lock()
	tasks := append([]*subtasks.Task(nil), e.tasks...)
	e.mu.Unlock()
	for _, t := range tasks {
		select {
		case <-t.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *Executor) track(t *subtasks.Task) {
	e.mu.Lock()
	e.tasks = append(e.tasks, t)
	e.mu.Unlock()
}

// visit carries one Execute call through the Visitor.
type visit struct {
	ctx context.Context
	e   *Executor
	act *Action
}

func (v *visit) resolve(spec resolver.TargetSpec) ([]resolver.ElementTarget, error) {
	snap := v.e.engine.Store().Snapshot()
	targets := resolver.Resolve(spec, snap, snap.Playhead)
	if len(targets) == 0 {
		return nil, &agenterr.TargetResolutionError{Target: spec.String()}
	}
	return targets, nil
}

// resolveOrAll resolves spec, or every visible media clip when spec is nil.
func (v *visit) resolveOrAll(spec *resolver.TargetSpec) ([]resolver.ElementTarget, error) {
	if spec != nil {
		return v.resolve(*spec)
	}
	targets := MediaClips(v.e.engine.Store().Snapshot())
	if len(targets) == 0 {
		return nil, &agenterr.TargetResolutionError{Target: "all media clips"}
	}
	return targets, nil
}

func (v *visit) VisitTrim(ins *instructions.Trim) error {
	targets, err := v.resolve(ins.Target)
	if err != nil {
		return err
	}
	res, err := v.e.engine.Trim(targets, commands.TrimRequestFrom(ins))
	if res != nil {
		v.trimAction(res)
	}
	return err
}

// trimAction records the batch counts. Execute overrides Status when the
// batch errored, so a failed action still reports what was skipped.
func (v *visit) trimAction(res *commands.TrimResult) {
	v.act.Elements = len(res.Updates)
	v.act.Skipped = res.Skipped
	v.act.Failed = len(res.Failures)
	v.act.DryRun = res.DryRun
	for _, u := range res.Updates {
		v.act.Removed += u.Removed
	}
	v.act.Removed = timeline.Round(v.act.Removed, 3)
	v.act.Status = batchStatus(res.Skipped, len(res.Failures))
}

func (v *visit) VisitCutOut(ins *instructions.CutOut) error {
	targets, err := v.resolve(ins.Target)
	if err != nil {
		return err
	}
	res, err := v.e.engine.CutOut(targets, commands.CutRequestFrom(ins))
	if res != nil {
		v.cutAction(res)
	}
	return err
}

func (v *visit) VisitSemanticApplyCut(ins *instructions.SemanticApplyCut) error {
	res, err := v.e.engine.CutMatches(ins.Matches, ins.Description())
	if res != nil {
		v.cutAction(res)
	}
	return err
}

func (v *visit) cutAction(res *commands.CutResult) {
	v.act.Elements = len(res.Cuts)
	v.act.Skipped = res.Skipped
	v.act.Failed = len(res.Failures)
	v.act.DryRun = res.DryRun
	v.act.Removed = timeline.Round(res.Removed(), 3)
	v.act.Status = batchStatus(res.Skipped, len(res.Failures))
}

// VisitSemanticSearch fails: searches are resolved into SemanticApplyCut by
// the streamer before they reach the queue.
func (v *visit) VisitSemanticSearch(ins *instructions.SemanticSearch) error {
	return &agenterr.CommandError{Reason: fmt.Sprintf("search %q was not resolved before execution", ins.Query)}
}

func (v *visit) VisitCaptions(ins *instructions.CaptionsGenerate) error {
	if v.e.subtasks == nil {
		return &agenterr.ConfigurationError{Message: "background edits are not available"}
	}
	targets, err := v.resolveOrAll(ins.Target)
	if err != nil {
		return err
	}
	v.background(v.e.subtasks.Captions(v.ctx, v.e.sessionID, ins, targets), len(targets))
	return nil
}

func (v *visit) VisitDeadspace(ins *instructions.DeadspaceTrim) error {
	if v.e.subtasks == nil {
		return &agenterr.ConfigurationError{Message: "background edits are not available"}
	}
	targets, err := v.resolveOrAll(ins.Target)
	if err != nil {
		return err
	}
	v.background(v.e.subtasks.Deadspace(v.ctx, v.e.sessionID, ins, targets), len(targets))
	return nil
}

func (v *visit) background(task *subtasks.Task, n int) {
	v.e.track(task)
	v.act.task = task
	v.act.Status = StatusBackground
	v.act.Elements = n
	v.act.Detail = fmt.Sprintf("started for %d clip(s)", n)
}

// settle folds a finished background outcome into its action.
func (a *Action) settle() {
	if a.task == nil {
		return
	}
	out, err := a.task.Result()
	a.task = nil
	if out != nil {
		a.Elements = out.Succeeded
		a.Failed = out.Failed
		a.Detail = clipDetail(out)
	}
	switch {
	case err != nil:
		a.Status = StatusFailed
		a.Error = agenterr.Short(err)
		a.Code = agenterr.Classify(err)
	case out != nil && out.Failed > 0:
		a.Status = StatusPartial
	default:
		a.Status = StatusApplied
	}
}

func clipDetail(out *subtasks.Outcome) string {
	for _, c := range out.Clips {
		if c.OK && c.Detail != "" {
			if len(out.Clips) == 1 {
				return c.Detail
			}
			return fmt.Sprintf("%d of %d clip(s), e.g. %s", out.Succeeded, len(out.Clips), c.Detail)
		}
	}
	return ""
}

func batchStatus(skipped, failed int) Status {
	if skipped > 0 || failed > 0 {
		return StatusPartial
	}
	return StatusApplied
}

// MediaClips lists every visible element on media tracks, in timeline order.
func MediaClips(tl *timeline.Timeline) []resolver.ElementTarget {
	type item struct {
		t     resolver.ElementTarget
		start float64
	}
	var items []item
	for _, tr := range tl.Tracks {
		if tr.Kind != timeline.TrackMedia {
			continue
		}
		for _, el := range tr.Elements {
			if el.VisibleDuration() <= timeline.Epsilon {
				continue
			}
			items = append(items, item{resolver.ElementTarget{TrackID: tr.ID, ElementID: el.ID}, el.StartTime})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].start != items[j].start {
			return items[i].start < items[j].start
		}
		return items[i].t.ElementID < items[j].t.ElementID
	})
	out := make([]resolver.ElementTarget, len(items))
	for i, it := range items {
		out[i] = it.t
	}
	return out
}
