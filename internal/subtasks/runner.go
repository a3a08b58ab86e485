package subtasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/cloud"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/commands"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/journal"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/pipelines"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/resolver"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

const (
	KindCaptions  = "captions"
	KindDeadspace = "deadspace"
)

// ClipOutcome is the result for one targeted element.
type ClipOutcome struct {
	TrackID   string `json:"trackId"`
	ElementID string `json:"elementId"`
	OK        bool   `json:"ok"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Outcome aggregates one background edit across its targets.
type Outcome struct {
	Kind        string        `json:"kind"`
	Description string        `json:"description"`
	CommandID   string        `json:"commandId,omitempty"`
	Clips       []ClipOutcome `json:"clips"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
}

// Config wires the runner's collaborators.
type Config struct {
	Engine   *commands.Engine
	Audio    pipelines.Runner
	Speech   cloud.Client
	Recorder journal.Recorder // optional
	Tracker  *Tracker
	Logger   *slog.Logger
	Language string
	VAD      VADConfig
}

// Runner starts background derived edits. Each clip's edit goes through the
// engine's store as its own batch, so it is one undo entry and serializes
// with queued steps.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

func NewRunner(cfg Config) *Runner {
	if cfg.Tracker == nil {
		cfg.Tracker = NewTracker()
	}
	if cfg.Speech == nil {
		cfg.Speech = cloud.NewStubClient(cfg.Logger)
	}
	if cfg.VAD.FrameMs == 0 {
		cfg.VAD = DefaultVADConfig()
	}
	return &Runner{cfg: cfg, logger: logging.WithComponent(logging.OrDiscard(cfg.Logger), "subtasks")}
}

func (r *Runner) Tracker() *Tracker { return r.cfg.Tracker }

// clipFunc processes one element and returns a short detail string.
type clipFunc func(ctx context.Context, target resolver.ElementTarget) (string, error)

// launch registers a task, opens its command record and processes targets in
// a goroutine. The goroutine is detached from ctx cancellation: a background
// edit outlives the session that started it.
func (r *Runner) launch(ctx context.Context, sessionID, kind, description string, targets []resolver.ElementTarget, fn clipFunc) *Task {
	task := r.cfg.Tracker.Start(kind)
	ctx = context.WithoutCancel(ctx)
	logger := r.logger.With("task_id", task.ID, "kind", kind)

	rec := r.openCommand(ctx, sessionID, kind, description, len(targets))
	out := &Outcome{Kind: kind, Description: description}
	if rec != nil {
		out.CommandID = rec.ID
	}

	go func() {
		if len(targets) == 0 {
			err := &agenterr.TargetResolutionError{Target: description}
			r.closeCommand(ctx, rec, out, err)
			task.Finish(out, &agenterr.SubtaskError{Subtask: kind, Err: err})
			return
		}

		r.setPhase(ctx, rec, journal.CommandPhaseExecuting)
		var failures []error
		for i, t := range targets {
			detail, err := fn(ctx, t)
			clip := ClipOutcome{TrackID: t.TrackID, ElementID: t.ElementID, Detail: detail}
			if err != nil {
				clip.Error = agenterr.Short(err)
				out.Failed++
				failures = append(failures, err)
				logger.Warn("clip failed", "element_id", t.ElementID, "error", err)
			} else {
				clip.OK = true
				out.Succeeded++
			}
			out.Clips = append(out.Clips, clip)
			r.progress(ctx, rec, i+1, out)
		}

		var err error
		if out.Succeeded == 0 {
			err = &agenterr.SubtaskError{Subtask: kind, Err: errors.Join(failures...)}
		}
		r.closeCommand(ctx, rec, out, err)
		logger.Info("background edit finished", "succeeded", out.Succeeded, "failed", out.Failed)
		task.Finish(out, err)
	}()
	return task
}

func (r *Runner) openCommand(ctx context.Context, sessionID, kind, description string, total int) *journal.CommandRecord {
	if r.cfg.Recorder == nil {
		return nil
	}
	rec, err := r.cfg.Recorder.OpenCommand(ctx, sessionID, kind, description, total)
	if err != nil {
		r.logger.Warn("cannot open command record", "error", err)
		return nil
	}
	return rec
}

func (r *Runner) setPhase(ctx context.Context, rec *journal.CommandRecord, phase string) {
	if rec == nil {
		return
	}
	rec.Phase = phase
	r.update(ctx, rec)
}

func (r *Runner) progress(ctx context.Context, rec *journal.CommandRecord, done int, out *Outcome) {
	if rec == nil {
		return
	}
	rec.Progress.Done = done
	rec.Succeeded, rec.Failed = out.Succeeded, out.Failed
	r.update(ctx, rec)
}

func (r *Runner) closeCommand(ctx context.Context, rec *journal.CommandRecord, out *Outcome, err error) {
	if rec == nil {
		return
	}
	rec.Succeeded, rec.Failed = out.Succeeded, out.Failed
	if err != nil {
		rec.Phase = journal.CommandPhaseFailed
		rec.Error = agenterr.Short(err)
	} else {
		rec.Phase = journal.CommandPhaseComplete
	}
	r.update(ctx, rec)
}

func (r *Runner) update(ctx context.Context, rec *journal.CommandRecord) {
	if err := r.cfg.Recorder.UpdateCommand(ctx, rec); err != nil {
		r.logger.Warn("cannot update command record", "command_id", rec.ID, "error", err)
	}
}

// clipAudio extracts the visible window of an element's source audio; the
// first sample sits at el.TrimStart in source-media time.
func (r *Runner) clipAudio(ctx context.Context, target resolver.ElementTarget, prefix string) (el timeline.Element, path string, err error) {
	if r.cfg.Audio == nil {
		return el, "", errors.New("audio extraction is not available")
	}
	tl := r.cfg.Engine.Store().Snapshot()
	el, ok := tl.Element(target.TrackID, target.ElementID)
	if !ok {
		return el, "", fmt.Errorf("element %s no longer exists", target.ElementID)
	}
	if el.MediaID == "" {
		return el, "", fmt.Errorf("element %s has no source media", el.ID)
	}
	asset, ok := tl.MediaAsset(el.MediaID)
	if !ok {
		return el, "", fmt.Errorf("media %s is not registered", el.MediaID)
	}
	if !asset.HasAudio {
		return el, "", fmt.Errorf("media %s has no audio", asset.ID)
	}

	path = pipelines.NewArtifactPath(r.cfg.Audio, prefix)
	_, err = r.cfg.Audio.ExtractAudio(ctx, pipelines.ExtractRequest{
		MediaPath: asset.Path,
		From:      el.TrimStart,
		To:        el.Duration - el.TrimEnd,
		OutPath:   path,
	})
	if err != nil {
		os.Remove(path)
		return el, "", fmt.Errorf("extract audio: %w", err)
	}
	return el, path, nil
}

func (r *Runner) language(override string) string {
	if override != "" {
		return override
	}
	return r.cfg.Language
}
