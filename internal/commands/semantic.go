package commands

import (
	"math"
	"sort"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/instructions"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

// CutMatches removes search matches, given in source-media time, from every
// media element showing that media. All matches are one batch.
func (e *Engine) CutMatches(matches []instructions.Match, label string) (*CutResult, error) {
	ordered := append([]instructions.Match(nil), matches...)
	// Latest source time first so earlier matches keep their mapping.
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	var res *CutResult
	_, err := e.store.Apply(labelOr(label, "Cut matches"), func(tx *timeline.Tx) error {
		res = &CutResult{}
		tl := tx.Timeline()
		fps := tl.FrameRate()

		for _, m := range ordered {
			hits := mediaHits(tl, m)
			if len(hits) == 0 {
				res.Skipped++
				continue
			}
			for _, h := range hits {
				out, err := cutElement(tx, h.trackID, h.elementID, h.a, h.b, fps)
				if err != nil {
					res.Skipped++
					e.warn("semantic cut failed closed", "element_id", h.elementID, "error", err)
					continue
				}
				res.Cuts = append(res.Cuts, out)
			}
		}
		if !res.Success() {
			if res.Skipped == 0 {
				return &agenterr.TargetResolutionError{Target: "semantic matches"}
			}
			return &agenterr.CommandError{Reason: "no matched moment is on the timeline"}
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

type mediaHit struct {
	trackID, elementID string
	start              float64
	a, b               float64
}

// mediaHits maps a source-time match onto element-relative ranges, latest
// element first.
func mediaHits(tl *timeline.Timeline, m instructions.Match) []mediaHit {
	var hits []mediaHit
	fps := tl.FrameRate()
	for _, tr := range tl.Tracks {
		if tr.Kind != timeline.TrackMedia {
			continue
		}
		for _, el := range tr.Elements {
			if el.MediaID != m.MediaID {
				continue
			}
			srcStart := math.Max(m.Start, el.TrimStart)
			srcEnd := math.Min(m.End, el.Duration-el.TrimEnd)
			a := timeline.RoundToFrame(srcStart-el.TrimStart, fps)
			b := math.Min(timeline.RoundToFrame(srcEnd-el.TrimStart, fps), el.VisibleDuration())
			if b-a <= CutEpsilon {
				continue
			}
			hits = append(hits, mediaHit{trackID: tr.ID, elementID: el.ID, start: el.StartTime, a: a, b: b})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].start > hits[j].start })
	return hits
}
