// Package timeline holds the edit timeline model and the store every
// mutation goes through.
//
// Times are seconds. An element's visible window is
// [StartTime, StartTime+Duration-TrimStart-TrimEnd).
package timeline

import (
	"fmt"
	"math"
	"sort"
)

type TrackKind string

const (
	TrackMedia TrackKind = "media"
	TrackAudio TrackKind = "audio"
	TrackText  TrackKind = "text"
)

// Valid reports whether k is one of the known track kinds.
func (k TrackKind) Valid() bool {
	switch k {
	case TrackMedia, TrackAudio, TrackText:
		return true
	}
	return false
}

const (
	DefaultFPS = 30.0

	// Epsilon is the tolerance for comparing timeline positions.
	Epsilon = 1e-6
)

type Element struct {
	ID        string  `json:"id"`
	Name      string  `json:"name,omitempty"`
	MediaID   string  `json:"mediaId,omitempty"`
	Text      string  `json:"text,omitempty"`
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`
	TrimStart float64 `json:"trimStart"`
	TrimEnd   float64 `json:"trimEnd"`
}

// VisibleDuration is the length of the element after trimming.
func (e Element) VisibleDuration() float64 {
	return e.Duration - e.TrimStart - e.TrimEnd
}

// End is the exclusive end of the visible window.
func (e Element) End() float64 {
	return e.StartTime + e.VisibleDuration()
}

// Contains reports whether t falls inside the half-open visible window.
func (e Element) Contains(t float64) bool {
	return t >= e.StartTime && t < e.End()
}

// Overlaps reports whether [a,b) intersects the visible window.
func (e Element) Overlaps(a, b float64) bool {
	lo, hi := math.Min(a, b), math.Max(a, b)
	return !(hi <= e.StartTime || lo >= e.End())
}

// CheckTrim validates the trim invariant for the given values.
func (e Element) CheckTrim(trimStart, trimEnd float64) error {
	switch {
	case trimStart < -Epsilon:
		return fmt.Errorf("trimStart %.3f is negative", trimStart)
	case trimEnd < -Epsilon:
		return fmt.Errorf("trimEnd %.3f is negative", trimEnd)
	case trimStart+trimEnd > e.Duration+Epsilon:
		return fmt.Errorf("trim %.3f+%.3f exceeds duration %.3f", trimStart, trimEnd, e.Duration)
	case e.Duration-trimStart-trimEnd <= Epsilon:
		return fmt.Errorf("trim leaves no visible content")
	}
	return nil
}

type Track struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	Kind     TrackKind `json:"kind"`
	Muted    bool      `json:"muted,omitempty"`
	Elements []Element `json:"elements"`
}

// MediaAsset is a source file elements can reference through MediaID.
type MediaAsset struct {
	ID       string  `json:"id"`
	Name     string  `json:"name,omitempty"`
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	HasAudio bool    `json:"hasAudio"`
}

type Timeline struct {
	FPS      float64      `json:"fps"`
	Playhead float64      `json:"playhead"`
	Tracks   []Track      `json:"tracks"`
	Media    []MediaAsset `json:"media,omitempty"`
}

// Clone returns a deep copy.
func (tl *Timeline) Clone() *Timeline {
	if tl == nil {
		return nil
	}
	out := &Timeline{FPS: tl.FPS, Playhead: tl.Playhead}
	out.Tracks = make([]Track, len(tl.Tracks))
	for i, tr := range tl.Tracks {
		tr.Elements = append([]Element(nil), tr.Elements...)
		out.Tracks[i] = tr
	}
	out.Media = append([]MediaAsset(nil), tl.Media...)
	return out
}

// Track returns the track with the given id.
func (tl *Timeline) Track(id string) (*Track, bool) {
	for i := range tl.Tracks {
		if tl.Tracks[i].ID == id {
			return &tl.Tracks[i], true
		}
	}
	return nil, false
}

// Element looks up an element by track and element id.
func (tl *Timeline) Element(trackID, elementID string) (Element, bool) {
	tr, ok := tl.Track(trackID)
	if !ok {
		return Element{}, false
	}
	if i := tr.index(elementID); i >= 0 {
		return tr.Elements[i], true
	}
	return Element{}, false
}

// MediaAsset looks up a registered media asset.
func (tl *Timeline) MediaAsset(id string) (MediaAsset, bool) {
	for _, m := range tl.Media {
		if m.ID == id {
			return m, true
		}
	}
	return MediaAsset{}, false
}

// HasKind reports whether any track of kind k exists.
func (tl *Timeline) HasKind(k TrackKind) bool {
	for _, tr := range tl.Tracks {
		if tr.Kind == k {
			return true
		}
	}
	return false
}

// Duration is the end of the last visible element across all tracks.
func (tl *Timeline) Duration() float64 {
	var end float64
	for _, tr := range tl.Tracks {
		for _, el := range tr.Elements {
			end = math.Max(end, el.End())
		}
	}
	return end
}

// VisibleDuration sums visible durations of the elements on tracks of kind k.
func (tl *Timeline) VisibleDuration(k TrackKind) float64 {
	var total float64
	for _, tr := range tl.Tracks {
		if tr.Kind != k {
			continue
		}
		for _, el := range tr.Elements {
			total += el.VisibleDuration()
		}
	}
	return total
}

// FrameRate returns FPS or DefaultFPS when unset.
func (tl *Timeline) FrameRate() float64 {
	if tl.FPS <= 0 {
		return DefaultFPS
	}
	return tl.FPS
}

func (tr *Track) index(elementID string) int {
	for i := range tr.Elements {
		if tr.Elements[i].ID == elementID {
			return i
		}
	}
	return -1
}

func (tr *Track) sort() {
	sort.SliceStable(tr.Elements, func(i, j int) bool {
		a, b := tr.Elements[i], tr.Elements[j]
		if math.Abs(a.StartTime-b.StartTime) > Epsilon {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}

// RoundToFrame snaps t to the nearest frame boundary.
func RoundToFrame(t, fps float64) float64 {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return math.Round(t*fps) / fps
}

// Round rounds v to the given number of decimals. Negative decimals leave v
// untouched.
func Round(v float64, decimals int) float64 {
	if decimals < 0 {
		return v
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
