package timeline

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Tx is a batch of mutations applied to a working copy of the timeline. It
// is only valid inside the function passed to Store.Apply.
type Tx struct {
	tl      *Timeline
	changed bool
}

// Timeline returns the working copy. Callers must mutate it only through Tx.
func (tx *Tx) Timeline() *Timeline {
	return tx.tl
}

// Changed reports whether any mutation took effect.
func (tx *Tx) Changed() bool {
	return tx.changed
}

// Try runs fn and rolls back everything it did if it returns an error.
func (tx *Tx) Try(fn func(tx *Tx) error) error {
	saved := tx.tl.Clone()
	changed := tx.changed
	if err := fn(tx); err != nil {
		*tx.tl = *saved
		tx.changed = changed
		return err
	}
	return nil
}

func (tx *Tx) locate(trackID, elementID string) (*Track, int, error) {
	tr, ok := tx.tl.Track(trackID)
	if !ok {
		return nil, -1, fmt.Errorf("track %s not found", trackID)
	}
	i := tr.index(elementID)
	if i < 0 {
		return nil, -1, fmt.Errorf("element %s not found on track %s", elementID, trackID)
	}
	return tr, i, nil
}

// SetTrim sets both trim offsets. Equal values are a no-op.
func (tx *Tx) SetTrim(trackID, elementID string, trimStart, trimEnd float64) error {
	tr, i, err := tx.locate(trackID, elementID)
	if err != nil {
		return err
	}
	el := &tr.Elements[i]
	if err := el.CheckTrim(trimStart, trimEnd); err != nil {
		return err
	}
	trimStart, trimEnd = math.Max(0, trimStart), math.Max(0, trimEnd)
	if math.Abs(el.TrimStart-trimStart) <= Epsilon && math.Abs(el.TrimEnd-trimEnd) <= Epsilon {
		return nil
	}
	el.TrimStart, el.TrimEnd = trimStart, trimEnd
	tx.changed = true
	return nil
}

// SetStartTime moves an element. Negative positions are clamped to zero.
func (tx *Tx) SetStartTime(trackID, elementID string, start float64) error {
	tr, i, err := tx.locate(trackID, elementID)
	if err != nil {
		return err
	}
	start = math.Max(0, start)
	if math.Abs(tr.Elements[i].StartTime-start) <= Epsilon {
		return nil
	}
	tr.Elements[i].StartTime = start
	tr.sort()
	tx.changed = true
	return nil
}

// Split cuts an element at global time at, which must fall strictly inside
// its visible window. The original keeps its id and becomes the left piece.
func (tx *Tx) Split(trackID, elementID string, at float64) (left, right Element, err error) {
	tr, i, err := tx.locate(trackID, elementID)
	if err != nil {
		return Element{}, Element{}, err
	}
	el := tr.Elements[i]
	if at <= el.StartTime+Epsilon || at >= el.End()-Epsilon {
		return Element{}, Element{}, fmt.Errorf("split point %.3f outside element %s [%.3f,%.3f)", at, el.ID, el.StartTime, el.End())
	}

	offset := at - el.StartTime

	right = el
	right.ID = uuid.NewString()
	right.StartTime = at
	right.TrimStart = el.TrimStart + offset

	left = el
	left.TrimEnd = el.Duration - el.TrimStart - offset

	tr.Elements[i] = left
	tr.Elements = append(tr.Elements, right)
	tr.sort()
	tx.changed = true
	return left, right, nil
}

// Remove deletes an element. With ripple, every later element on the same
// track moves left by the removed visible duration.
func (tx *Tx) Remove(trackID, elementID string, ripple bool) (Element, error) {
	tr, i, err := tx.locate(trackID, elementID)
	if err != nil {
		return Element{}, err
	}
	removed := tr.Elements[i]
	tr.Elements = append(tr.Elements[:i], tr.Elements[i+1:]...)

	if ripple {
		shift := removed.VisibleDuration()
		for j := range tr.Elements {
			if tr.Elements[j].StartTime >= removed.StartTime+Epsilon {
				tr.Elements[j].StartTime = math.Max(0, tr.Elements[j].StartTime-shift)
			}
		}
		tr.sort()
	}
	tx.changed = true
	return removed, nil
}

// Insert adds an element to a track, assigning an id when empty.
func (tx *Tx) Insert(trackID string, el Element) (string, error) {
	tr, ok := tx.tl.Track(trackID)
	if !ok {
		return "", fmt.Errorf("track %s not found", trackID)
	}
	if el.Duration <= Epsilon {
		return "", fmt.Errorf("element duration must be positive")
	}
	if err := el.CheckTrim(el.TrimStart, el.TrimEnd); err != nil {
		return "", err
	}
	if el.ID == "" {
		el.ID = uuid.NewString()
	} else if tr.index(el.ID) >= 0 {
		return "", fmt.Errorf("element %s already exists on track %s", el.ID, trackID)
	}
	el.StartTime = math.Max(0, el.StartTime)
	tr.Elements = append(tr.Elements, el)
	tr.sort()
	tx.changed = true
	return el.ID, nil
}

// EnsureTrack returns the first track of the given kind, creating it when
// none exists.
func (tx *Tx) EnsureTrack(kind TrackKind, name string) string {
	for _, tr := range tx.tl.Tracks {
		if tr.Kind == kind {
			return tr.ID
		}
	}
	id := uuid.NewString()
	tx.tl.Tracks = append(tx.tl.Tracks, Track{ID: id, Name: name, Kind: kind})
	tx.changed = true
	return id
}
