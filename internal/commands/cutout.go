package commands

import (
	"fmt"
	"math"
	"sort"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/instructions"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/resolver"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

// CutEpsilon is the shortest span a cut-out will remove.
const CutEpsilon = 1e-3

// CutRequest removes Range from every target.
type CutRequest struct {
	Range  instructions.RangeSpec
	DryRun bool
	Label  string
}

func CutRequestFrom(ins *instructions.CutOut) CutRequest {
	return CutRequest{Range: ins.Range, DryRun: ins.DryRun(), Label: ins.Description()}
}

// CutOut removes the requested range from each target with a three-way
// split and a forced ripple delete, so the track never keeps a gap.
func (e *Engine) CutOut(targets []resolver.ElementTarget, req CutRequest) (*CutResult, error) {
	if req.DryRun {
		res := &CutResult{DryRun: true}
		snap := e.store.Snapshot()
		for _, t := range targets {
			el, ok := snap.Element(t.TrackID, t.ElementID)
			if !ok {
				res.Failures = append(res.Failures, &agenterr.CommandError{ElementID: t.ElementID, Reason: "element no longer exists"})
				continue
			}
			a, b, ok := localRange(el, req.Range, snap.Playhead, snap.FrameRate())
			if !ok {
				res.Skipped++
				continue
			}
			res.Cuts = append(res.Cuts, CutOutcome{
				TrackID: t.TrackID, ElementID: el.ID,
				Start: el.StartTime + a, End: el.StartTime + b, Removed: b - a,
			})
		}
		if !res.Success() {
			return res, batchError("cut-out", targets, res.Skipped, res.Failures)
		}
		return res, nil
	}

	var res *CutResult
	_, err := e.store.Apply(labelOr(req.Label, "Cut out"), func(tx *timeline.Tx) error {
		res = &CutResult{}
		tl := tx.Timeline()
		fps := tl.FrameRate()
		playhead := tl.Playhead

		// Right to left: a ripple delete only moves elements after it, so
		// the pending targets keep their coordinates.
		ordered := orderByStartDesc(tl, targets)
		for _, t := range ordered {
			el, ok := tl.Element(t.TrackID, t.ElementID)
			if !ok {
				res.Failures = append(res.Failures, &agenterr.CommandError{ElementID: t.ElementID, Reason: "element no longer exists"})
				continue
			}
			a, b, ok := localRange(el, req.Range, playhead, fps)
			if !ok {
				res.Skipped++
				continue
			}
			out, err := cutElement(tx, t.TrackID, el.ID, a, b, fps)
			if err != nil {
				res.Skipped++
				e.warn("cut-out failed closed", "element_id", el.ID, "error", err)
				continue
			}
			res.Cuts = append(res.Cuts, out)
		}
		if !res.Success() {
			return batchError("cut-out", targets, res.Skipped, res.Failures)
		}
		return nil
	})
	if err != nil {
		if res != nil {
			res.Cuts = nil
		}
		return res, err
	}
	return res, nil
}

// localRange converts a RangeSpec to element-relative [a,b) inside the
// visible window. Boundaries snap to timeline frames, so an element that
// starts off the frame grid still cuts on a global frame. ok is false when
// nothing remains.
func localRange(el timeline.Element, r instructions.RangeSpec, playhead, fps float64) (a, b float64, ok bool) {
	switch r.Mode {
	case instructions.RangeElementSeconds:
		a, b = r.Start, r.End
	case instructions.RangeGlobalSeconds:
		a, b = r.Start-el.StartTime, r.End-el.StartTime
	case instructions.RangeAroundPlayhead:
		a, b = playhead-r.Before-el.StartTime, playhead+r.After-el.StartTime
	default:
		return 0, 0, false
	}
	if a > b {
		a, b = b, a
	}
	start := el.StartTime
	end := start + el.VisibleDuration()
	ga := math.Max(timeline.RoundToFrame(clampTo(start+a, start, end), fps), start)
	gb := math.Min(timeline.RoundToFrame(clampTo(start+b, start, end), fps), end)
	a, b = ga-start, gb-start
	if b-a <= CutEpsilon {
		return 0, 0, false
	}
	return a, b, true
}

// cutElement removes element-relative [a,b) from one element inside tx.
// The whole operation rolls back if the middle piece cannot be isolated.
func cutElement(tx *timeline.Tx, trackID, elementID string, a, b, fps float64) (CutOutcome, error) {
	var out CutOutcome
	err := tx.Try(func(tx *timeline.Tx) error {
		el, ok := tx.Timeline().Element(trackID, elementID)
		if !ok {
			return fmt.Errorf("element %s not found", elementID)
		}
		vis := el.VisibleDuration()
		gStart := el.StartTime + a
		gEnd := el.StartTime + b

		if b < vis-CutEpsilon {
			if _, _, err := tx.Split(trackID, elementID, gEnd); err != nil {
				return fmt.Errorf("split at end: %w", err)
			}
		}
		middleID := elementID
		if a > CutEpsilon {
			_, right, err := tx.Split(trackID, elementID, gStart)
			if err != nil {
				return fmt.Errorf("split at start: %w", err)
			}
			middleID = right.ID
		}

		middle, ok := tx.Timeline().Element(trackID, middleID)
		if !ok || math.Abs(middle.StartTime-gStart) > CutEpsilon || math.Abs(middle.End()-gEnd) > CutEpsilon {
			return fmt.Errorf("middle piece of %s not found after split", elementID)
		}

		removed, err := tx.Remove(trackID, middleID, true)
		if err != nil {
			return err
		}

		if err := snapNeighbor(tx, trackID, gStart, fps); err != nil {
			return err
		}

		out = CutOutcome{
			TrackID:   trackID,
			ElementID: elementID,
			Start:     gStart,
			End:       gEnd,
			Removed:   removed.VisibleDuration(),
		}
		return nil
	})
	return out, err
}

// snapNeighbor force-aligns the element that now follows the cut when it
// drifted from the boundary by less than a frame.
func snapNeighbor(tx *timeline.Tx, trackID string, boundary, fps float64) error {
	tr, ok := tx.Timeline().Track(trackID)
	if !ok {
		return nil
	}
	window := 1 / fps
	for _, el := range tr.Elements {
		d := math.Abs(el.StartTime - boundary)
		if d <= timeline.Epsilon {
			return nil
		}
		if d < window && el.StartTime > boundary-window {
			return tx.SetStartTime(trackID, el.ID, boundary)
		}
	}
	return nil
}

func orderByStartDesc(tl *timeline.Timeline, targets []resolver.ElementTarget) []resolver.ElementTarget {
	type item struct {
		t     resolver.ElementTarget
		start float64
	}
	items := make([]item, 0, len(targets))
	for _, t := range targets {
		el, _ := tl.Element(t.TrackID, t.ElementID)
		items = append(items, item{t: t, start: el.StartTime})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].start != items[j].start {
			return items[i].start > items[j].start
		}
		return items[i].t.ElementID > items[j].t.ElementID
	})
	out := make([]resolver.ElementTarget, len(items))
	for i, it := range items {
		out[i] = it.t
	}
	return out
}
