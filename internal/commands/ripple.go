package commands

import (
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

// RippleRecord captures one edited element's pre-edit geometry for a single
// ripple pass.
type RippleRecord struct {
	TrackID         string
	ElementID       string
	OriginalEnd     float64
	RemovedDuration float64
	// SelfShift is how far the edit itself would move the element's start
	// (the left trim delta).
	SelfShift float64
}

// rippleStarts computes post-edit start times for every element on the
// tracks touched by records. Shifts are derived from the pre-edit starts in
// before, never from partially edited state, so a multi-element batch does
// not compound error.
func rippleStarts(before *timeline.Timeline, records []RippleRecord, fps float64) map[string]float64 {
	byTrack := make(map[string][]RippleRecord)
	self := make(map[string]float64)
	for _, r := range records {
		byTrack[r.TrackID] = append(byTrack[r.TrackID], r)
		self[r.ElementID] = r.SelfShift
	}

	starts := make(map[string]float64)
	for trackID, recs := range byTrack {
		tr, ok := before.Track(trackID)
		if !ok {
			continue
		}
		for _, el := range tr.Elements {
			selfShift, edited := self[el.ID]
			var upstream float64
			for _, r := range recs {
				if r.OriginalEnd <= el.StartTime+timeline.Epsilon {
					upstream += r.RemovedDuration
				}
			}
			if !edited && upstream == 0 {
				continue
			}
			// The edit moves an edited element by selfShift; the ripple
			// shift takes that back together with everything removed
			// upstream, so the element stays anchored.
			edit := el.StartTime + selfShift
			shift := upstream + selfShift
			starts[el.ID] = timeline.RoundToFrame(max(0, edit-shift), fps)
		}
	}
	return starts
}
