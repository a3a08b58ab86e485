package timeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Validate checks ids, track kinds and the trim invariant of every element,
// and sorts each track.
func (tl *Timeline) Validate() error {
	if tl.FPS < 0 {
		return fmt.Errorf("fps must not be negative")
	}
	if tl.FPS == 0 {
		tl.FPS = DefaultFPS
	}
	tracks := make(map[string]bool)
	elements := make(map[string]bool)
	for ti := range tl.Tracks {
		tr := &tl.Tracks[ti]
		if tr.ID == "" {
			return fmt.Errorf("track %d has no id", ti)
		}
		if tracks[tr.ID] {
			return fmt.Errorf("duplicate track id %s", tr.ID)
		}
		tracks[tr.ID] = true
		if !tr.Kind.Valid() {
			return fmt.Errorf("track %s has unknown kind %q", tr.ID, tr.Kind)
		}
		for _, el := range tr.Elements {
			if el.ID == "" {
				return fmt.Errorf("track %s has an element without id", tr.ID)
			}
			if elements[el.ID] {
				return fmt.Errorf("duplicate element id %s", el.ID)
			}
			elements[el.ID] = true
			if el.StartTime < 0 {
				return fmt.Errorf("element %s starts before zero", el.ID)
			}
			if el.Duration <= 0 {
				return fmt.Errorf("element %s has non-positive duration", el.ID)
			}
			if err := el.CheckTrim(el.TrimStart, el.TrimEnd); err != nil {
				return fmt.Errorf("element %s: %w", el.ID, err)
			}
		}
		tr.sort()
	}
	media := make(map[string]bool)
	for _, m := range tl.Media {
		if m.ID == "" || media[m.ID] {
			return fmt.Errorf("media asset id %q is empty or duplicated", m.ID)
		}
		media[m.ID] = true
	}
	return nil
}

// Decode reads and validates a timeline document.
func Decode(r io.Reader) (*Timeline, error) {
	var tl Timeline
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tl); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}
	if err := tl.Validate(); err != nil {
		return nil, err
	}
	return &tl, nil
}

// Encode writes tl as indented JSON.
func Encode(w io.Writer, tl *Timeline) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(tl)
}

// ReadFile decodes a timeline document from disk.
func ReadFile(path string) (*Timeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// WriteFile encodes tl to path.
func WriteFile(path string, tl *Timeline) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, tl); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
