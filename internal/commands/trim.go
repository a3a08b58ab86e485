package commands

import (
	"fmt"
	"math"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/instructions"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/resolver"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

// TrimRequest is a trim applied to every target. Nil sides leave that edge
// untouched.
type TrimRequest struct {
	Left    *instructions.Side
	Right   *instructions.Side
	Options *instructions.TrimOptions
	Label   string
	// Expect, when set, is checked against each element inside the batch;
	// an element it rejects fails instead of being trimmed.
	Expect func(timeline.Element) error
}

// TrimRequestFrom builds a request from a planned instruction.
func TrimRequestFrom(ins *instructions.Trim) TrimRequest {
	return TrimRequest{Left: ins.Left, Right: ins.Right, Options: ins.Options, Label: ins.Description()}
}

// Trim adjusts trimStart/trimEnd of every target in one batch. Elements that
// cannot be trimmed are skipped or reported as failures; the call errors only
// when nothing was updated.
func (e *Engine) Trim(targets []resolver.ElementTarget, req TrimRequest) (*TrimResult, error) {
	if req.Options.DryRunEnabled() {
		plan := planTrim(e.store.Snapshot(), targets, req)
		res := &TrimResult{Updates: plan.updates, Skipped: plan.skipped, Failures: plan.failures, DryRun: true}
		if !res.Success() {
			return res, batchError("trim", targets, plan.skipped, plan.failures)
		}
		return res, nil
	}

	var plan trimPlan
	var opts []timeline.ApplyOption
	if !req.Options.History() {
		opts = append(opts, timeline.WithoutHistory())
	}
	_, err := e.store.Apply(labelOr(req.Label, "Trim"), func(tx *timeline.Tx) error {
		before := tx.Timeline().Clone()
		plan = planTrim(before, targets, req)
		if len(plan.updates) == 0 {
			return batchError("trim", targets, plan.skipped, plan.failures)
		}
		return applyTrimPlan(tx, before, plan, req.Options.RippleEnabled())
	}, opts...)

	res := &TrimResult{Updates: plan.updates, Skipped: plan.skipped, Failures: plan.failures}
	if err != nil {
		res.Updates = nil
		return res, err
	}
	for _, f := range plan.failures {
		e.warn("trim element failed", "error", f)
	}
	return res, nil
}

type trimPlan struct {
	updates  []ElementUpdate
	records  []RippleRecord
	skipped  int
	failures []error
}

// planTrim computes every element's new trims against a read-only snapshot.
func planTrim(tl *timeline.Timeline, targets []resolver.ElementTarget, req TrimRequest) trimPlan {
	var plan trimPlan
	clamp := req.Options.ClampEnabled()
	ripple := req.Options.RippleEnabled()
	decimals := req.Options.Decimals()
	minVisible := 1 / tl.FrameRate()

	for _, t := range targets {
		el, ok := tl.Element(t.TrackID, t.ElementID)
		if !ok {
			plan.failures = append(plan.failures, &agenterr.CommandError{ElementID: t.ElementID, Reason: "element no longer exists"})
			continue
		}
		if req.Expect != nil {
			if err := req.Expect(el); err != nil {
				plan.failures = append(plan.failures, &agenterr.CommandError{ElementID: el.ID, Reason: err.Error()})
				continue
			}
		}

		ts, te, skip, err := computeTrims(el, req.Left, req.Right, tl.Playhead, clamp, ripple, minVisible)
		if err != nil {
			plan.failures = append(plan.failures, &agenterr.CommandError{ElementID: el.ID, Reason: err.Error()})
			continue
		}
		if skip {
			plan.skipped++
			continue
		}

		ts = timeline.Round(ts, decimals)
		te = timeline.Round(te, decimals)
		if err := el.CheckTrim(ts, te); err != nil {
			plan.failures = append(plan.failures, &agenterr.CommandError{ElementID: el.ID, Reason: err.Error()})
			continue
		}

		leftDelta := ts - el.TrimStart
		removed := (ts + te) - (el.TrimStart + el.TrimEnd)
		upd := ElementUpdate{
			TrackID:   t.TrackID,
			ElementID: el.ID,
			TrimStart: ts,
			TrimEnd:   te,
			StartTime: timeline.Round(el.StartTime+leftDelta, decimals),
			Removed:   removed,
			NoOp:      math.Abs(leftDelta) <= timeline.Epsilon && math.Abs(te-el.TrimEnd) <= timeline.Epsilon,
		}
		if upd.NoOp {
			upd.StartTime = el.StartTime
		}
		plan.updates = append(plan.updates, upd)
		if ripple && !upd.NoOp {
			plan.records = append(plan.records, RippleRecord{
				TrackID:         t.TrackID,
				ElementID:       el.ID,
				OriginalEnd:     el.End(),
				RemovedDuration: removed,
				SelfShift:       leftDelta,
			})
		}
	}
	return plan
}

// computeTrims resolves both sides independently, then enforces the total
// bound. skip reports an out-of-bounds side with clamping off.
func computeTrims(el timeline.Element, left, right *instructions.Side, playhead float64, clamp, ripple bool, minVisible float64) (ts, te float64, skip bool, err error) {
	ts = sideValue(el, left, true, playhead)
	te = sideValue(el, right, false, playhead)

	room := el.Duration - minVisible
	leftMin := 0.0
	if !ripple {
		// Content stays anchored, so the start cannot move before zero.
		leftMin = math.Max(0, el.TrimStart-el.StartTime)
	}
	leftMax := math.Max(leftMin, room-el.TrimEnd)
	rightMax := math.Max(0, room-el.TrimStart)

	if clamp {
		ts = clampTo(ts, leftMin, leftMax)
		te = clampTo(te, 0, rightMax)
	} else if outside(ts, leftMin, leftMax) || outside(te, 0, rightMax) {
		return 0, 0, true, nil
	}

	overflow := ts + te - room
	if overflow > timeline.Epsilon {
		if !clamp {
			return 0, 0, false, fmt.Errorf("trim %.3f+%.3f leaves no visible content (duration %.3f)", ts, te, el.Duration)
		}
		ts -= overflow / 2
		te -= overflow / 2
		if ts < leftMin {
			te -= leftMin - ts
			ts = leftMin
		}
		if te < 0 {
			ts += te
			te = 0
		}
		if ts < leftMin-timeline.Epsilon {
			return 0, 0, false, fmt.Errorf("element too short to trim")
		}
	}
	return ts, te, false, nil
}

func sideValue(el timeline.Element, s *instructions.Side, left bool, playhead float64) float64 {
	cur := el.TrimEnd
	if left {
		cur = el.TrimStart
	}
	if s == nil {
		return cur
	}
	switch s.Mode {
	case instructions.SideAbsolute:
		return s.Seconds
	case instructions.SideDelta:
		return cur + s.Seconds
	case instructions.SidePlayhead:
		if left {
			return el.TrimStart + (playhead - el.StartTime)
		}
		return el.TrimEnd + (el.End() - playhead)
	}
	return cur
}

func applyTrimPlan(tx *timeline.Tx, before *timeline.Timeline, plan trimPlan, ripple bool) error {
	for _, u := range plan.updates {
		if u.NoOp {
			continue
		}
		if err := tx.SetTrim(u.TrackID, u.ElementID, u.TrimStart, u.TrimEnd); err != nil {
			return err
		}
		if !ripple {
			if err := tx.SetStartTime(u.TrackID, u.ElementID, u.StartTime); err != nil {
				return err
			}
		}
	}
	if !ripple || len(plan.records) == 0 {
		return nil
	}

	starts := rippleStarts(before, plan.records, before.FrameRate())
	for i := range plan.updates {
		if s, ok := starts[plan.updates[i].ElementID]; ok {
			plan.updates[i].StartTime = s
		}
	}
	for _, tr := range before.Tracks {
		for _, el := range tr.Elements {
			s, ok := starts[el.ID]
			if !ok {
				continue
			}
			if err := tx.SetStartTime(tr.ID, el.ID, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func clampTo(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func outside(v, lo, hi float64) bool {
	return v < lo-timeline.Epsilon || v > hi+timeline.Epsilon
}

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}
