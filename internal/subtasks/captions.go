package subtasks

import (
	"context"
	"fmt"
	"os"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/cloud"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/instructions"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/resolver"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

// CaptionTrackName is used when a text track has to be created.
const CaptionTrackName = "Captions"

// Captions transcribes each target and inserts one text element per
// transcript segment, aligned to the clip's position on the timeline.
func (r *Runner) Captions(ctx context.Context, sessionID string, ins *instructions.CaptionsGenerate, targets []resolver.ElementTarget) *Task {
	language := r.language(ins.Language)
	return r.launch(ctx, sessionID, KindCaptions, ins.Description(), targets,
		func(ctx context.Context, t resolver.ElementTarget) (string, error) {
			return r.captionClip(ctx, t, language)
		})
}

func (r *Runner) captionClip(ctx context.Context, target resolver.ElementTarget, language string) (string, error) {
	el, path, err := r.clipAudio(ctx, target, "captions")
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	tr, err := r.cfg.Speech.Transcribe(ctx, path, language)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	captions := CaptionElements(el, tr.Segments)
	if len(captions) == 0 {
		return "", fmt.Errorf("no speech found in %s", el.ID)
	}

	_, err = r.cfg.Engine.Store().Apply("Add captions", func(tx *timeline.Tx) error {
		trackID := tx.EnsureTrack(timeline.TrackText, CaptionTrackName)
		for _, c := range captions {
			if _, err := tx.Insert(trackID, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("insert captions: %w", err)
	}
	return fmt.Sprintf("%d caption(s)", len(captions)), nil
}

// CaptionElements maps transcript segments (relative to the clip's visible
// start) onto timeline text elements, clipped to the element's window.
func CaptionElements(el timeline.Element, segments []cloud.Segment) []timeline.Element {
	visible := el.VisibleDuration()
	var out []timeline.Element
	for _, seg := range segments {
		start := max(0, seg.Start)
		end := min(seg.End, visible)
		if seg.Text == "" || end-start < cloud.MinSegmentDuration {
			continue
		}
		out = append(out, timeline.Element{
			Name:      "Caption",
			Text:      seg.Text,
			StartTime: timeline.Round(el.StartTime+start, 3),
			Duration:  timeline.Round(end-start, 3),
		})
	}
	return out
}
