// Package resolver maps ID-free target descriptions onto concrete timeline
// elements. Resolution is pure: the same snapshot, spec and playhead always
// yield the same ordered result.
package resolver

import (
	"fmt"
	"math"
	"sort"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

type TargetKind string

const (
	ClipAtPlayhead        TargetKind = "clipAtPlayhead"
	ClipAtTime            TargetKind = "clipAtTime"
	LastClip              TargetKind = "lastClip"
	NthClip               TargetKind = "nthClip"
	ClipsOverlappingRange TargetKind = "clipsOverlappingRange"
)

// TargetSpec is an abstract element selector. Which of Time, N, Start and
// End are meaningful depends on Kind. TrackKind and TrackID optionally
// restrict the candidate tracks.
type TargetSpec struct {
	Kind      TargetKind         `json:"type"`
	Time      float64            `json:"time,omitempty"`
	N         int                `json:"n,omitempty"`
	Start     float64            `json:"start,omitempty"`
	End       float64            `json:"end,omitempty"`
	TrackKind timeline.TrackKind `json:"trackKind,omitempty"`
	TrackID   string             `json:"trackId,omitempty"`
}

// Validate checks the fields the kind requires.
func (s TargetSpec) Validate() error {
	switch s.Kind {
	case ClipAtPlayhead, LastClip:
	case ClipAtTime:
		if s.Time < 0 {
			return fmt.Errorf("clipAtTime: time must not be negative")
		}
	case NthClip:
		if s.N < 1 {
			return fmt.Errorf("nthClip: n is 1-based, got %d", s.N)
		}
	case ClipsOverlappingRange:
		if s.Start < 0 || s.End < 0 {
			return fmt.Errorf("clipsOverlappingRange: bounds must not be negative")
		}
		if math.Abs(s.End-s.Start) <= timeline.Epsilon {
			return fmt.Errorf("clipsOverlappingRange: empty range")
		}
	default:
		return fmt.Errorf("unknown target type %q", s.Kind)
	}
	if s.TrackKind != "" && !s.TrackKind.Valid() {
		return fmt.Errorf("unknown track kind %q", s.TrackKind)
	}
	return nil
}

func (s TargetSpec) String() string {
	var base string
	switch s.Kind {
	case ClipAtTime:
		base = fmt.Sprintf("clipAtTime(%.2f)", s.Time)
	case NthClip:
		base = fmt.Sprintf("nthClip(%d)", s.N)
	case ClipsOverlappingRange:
		base = fmt.Sprintf("clipsOverlappingRange(%.2f,%.2f)", s.Start, s.End)
	default:
		base = string(s.Kind)
	}
	if s.TrackID != "" {
		return base + " on track " + s.TrackID
	}
	if s.TrackKind != "" {
		return base + " on " + string(s.TrackKind) + " tracks"
	}
	return base
}

// ElementTarget references one element of the snapshot it was resolved
// against.
type ElementTarget struct {
	TrackID   string `json:"trackId"`
	ElementID string `json:"elementId"`
}

type candidate struct {
	target ElementTarget
	start  float64
}

// Resolve returns the elements matched by spec, deduplicated and ordered by
// start time then element id.
func Resolve(spec TargetSpec, tl *timeline.Timeline, playhead float64) []ElementTarget {
	tracks := candidateTracks(spec, tl)

	var matched []candidate
	switch spec.Kind {
	case ClipAtPlayhead:
		matched = atTime(tracks, playhead)
	case ClipAtTime:
		matched = atTime(tracks, spec.Time)
	case LastClip:
		all := sortCandidates(collect(tracks, func(timeline.Element) bool { return true }))
		if len(all) > 0 {
			matched = all[len(all)-1:]
		}
	case NthClip:
		all := sortCandidates(collect(tracks, func(timeline.Element) bool { return true }))
		if spec.N >= 1 && spec.N <= len(all) {
			matched = all[spec.N-1 : spec.N]
		}
	case ClipsOverlappingRange:
		matched = collect(tracks, func(el timeline.Element) bool {
			return el.Overlaps(spec.Start, spec.End)
		})
	}

	return finalize(matched)
}

// candidateTracks applies the track filters. An unfiltered lastClip prefers
// media tracks when any exist.
func candidateTracks(spec TargetSpec, tl *timeline.Timeline) []*timeline.Track {
	kind := spec.TrackKind
	if spec.Kind == LastClip && kind == "" && spec.TrackID == "" && tl.HasKind(timeline.TrackMedia) {
		kind = timeline.TrackMedia
	}
	var out []*timeline.Track
	for i := range tl.Tracks {
		tr := &tl.Tracks[i]
		if spec.TrackID != "" && tr.ID != spec.TrackID {
			continue
		}
		if kind != "" && tr.Kind != kind {
			continue
		}
		out = append(out, tr)
	}
	return out
}

func atTime(tracks []*timeline.Track, t float64) []candidate {
	return collect(tracks, func(el timeline.Element) bool { return el.Contains(t) })
}

func collect(tracks []*timeline.Track, match func(timeline.Element) bool) []candidate {
	var out []candidate
	for _, tr := range tracks {
		for _, el := range tr.Elements {
			if el.VisibleDuration() <= timeline.Epsilon || !match(el) {
				continue
			}
			out = append(out, candidate{
				target: ElementTarget{TrackID: tr.ID, ElementID: el.ID},
				start:  el.StartTime,
			})
		}
	}
	return out
}

func sortCandidates(cs []candidate) []candidate {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].start != cs[j].start {
			return cs[i].start < cs[j].start
		}
		if cs[i].target.ElementID != cs[j].target.ElementID {
			return cs[i].target.ElementID < cs[j].target.ElementID
		}
		return cs[i].target.TrackID < cs[j].target.TrackID
	})
	return cs
}

func finalize(cs []candidate) []ElementTarget {
	seen := make(map[ElementTarget]bool, len(cs))
	unique := cs[:0:0]
	for _, c := range cs {
		if seen[c.target] {
			continue
		}
		seen[c.target] = true
		unique = append(unique, c)
	}
	sortCandidates(unique)
	out := make([]ElementTarget, len(unique))
	for i, c := range unique {
		out[i] = c.target
	}
	return out
}
