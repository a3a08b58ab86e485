package subtasks

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/cloud"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/commands"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/instructions"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/pipelines"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/resolver"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

// SpeechWindow is a padded keep-window relative to the clip's visible start.
type SpeechWindow struct {
	Start      float64
	End        float64
	Confidence float64
	Source     string // "transcript", "energy" or "local-vad"
}

// Deadspace trims leading and trailing silence from each target. The remote
// detector is tried first; when it fails the local VAD decides.
func (r *Runner) Deadspace(ctx context.Context, sessionID string, ins *instructions.DeadspaceTrim, targets []resolver.ElementTarget) *Task {
	language := r.language(ins.Language)
	pre, post := ins.Pads()
	return r.launch(ctx, sessionID, KindDeadspace, ins.Description(), targets,
		func(ctx context.Context, t resolver.ElementTarget) (string, error) {
			return r.deadspaceClip(ctx, t, language, pre, post)
		})
}

func (r *Runner) deadspaceClip(ctx context.Context, target resolver.ElementTarget, language string, pre, post float64) (string, error) {
	el, path, err := r.clipAudio(ctx, target, "deadspace")
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	win, err := r.detectWindow(ctx, path, language, pre, post)
	if err != nil {
		return "", err
	}

	left, right := KeepWindowTrims(el, win)
	res, err := r.cfg.Engine.Trim([]resolver.ElementTarget{target}, commands.TrimRequest{
		Left:    &instructions.Side{Mode: instructions.SideAbsolute, Seconds: left},
		Right:   &instructions.Side{Mode: instructions.SideAbsolute, Seconds: right},
		Options: &instructions.TrimOptions{Ripple: true},
		Label:   "Trim silence",
		Expect:  unchangedSince(el),
	})
	if err != nil {
		return "", fmt.Errorf("apply trim: %w", err)
	}

	removed := 0.0
	for _, u := range res.Updates {
		removed += u.Removed
	}
	return fmt.Sprintf("removed %.2fs (%s, confidence %.2f)", removed, win.Source, win.Confidence), nil
}

func (r *Runner) detectWindow(ctx context.Context, path, language string, pre, post float64) (SpeechWindow, error) {
	remote, err := r.cfg.Speech.DetectDeadspace(ctx, cloud.DeadspaceRequest{
		AudioPath:   path,
		Language:    language,
		PrePadding:  pre,
		PostPadding: post,
	})
	if err == nil && remote.Usable() {
		source := remote.AnalysisSource
		if source == "" {
			source = "transcript"
		}
		return SpeechWindow{Start: remote.TrimStart, End: remote.TrimEnd, Confidence: remote.Confidence, Source: source}, nil
	}
	r.logger.Info("remote deadspace detection unavailable, using local VAD", "error", err)

	pcm, err := pipelines.ReadWAV(path)
	if err != nil {
		return SpeechWindow{}, err
	}
	v := DetectSpeech(pcm, r.cfg.VAD)
	if !v.Accepted(r.cfg.VAD) {
		if !v.SpeechDetected {
			return SpeechWindow{}, fmt.Errorf("no speech detected")
		}
		return SpeechWindow{}, fmt.Errorf("speech detection confidence %.2f below %.2f", v.Confidence, r.cfg.VAD.MinConfidence)
	}
	return SpeechWindow{
		Start:      max(0, v.SpeechStart-pre),
		End:        min(v.Duration, v.SpeechEnd+post),
		Confidence: v.Confidence,
		Source:     "local-vad",
	}, nil
}

// unchangedSince rejects an element whose trims moved after its audio was
// extracted. The computed trims are absolute and would overwrite that edit.
func unchangedSince(was timeline.Element) func(timeline.Element) error {
	return func(now timeline.Element) error {
		if math.Abs(now.TrimStart-was.TrimStart) > timeline.Epsilon ||
			math.Abs(now.TrimEnd-was.TrimEnd) > timeline.Epsilon ||
			math.Abs(now.Duration-was.Duration) > timeline.Epsilon {
			return fmt.Errorf("clip was edited during analysis")
		}
		return nil
	}
}

// KeepWindowTrims converts a keep-window relative to the element's visible
// start into absolute trimStart/trimEnd values.
func KeepWindowTrims(el timeline.Element, win SpeechWindow) (trimStart, trimEnd float64) {
	visible := el.VisibleDuration()
	start := min(max(0, win.Start), visible)
	end := min(max(start, win.End), visible)
	return el.TrimStart + start, el.TrimEnd + (visible - end)
}
