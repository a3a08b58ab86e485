package timeline

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
)

func sample() *Timeline {
	return &Timeline{
		FPS: 30,
		Tracks: []Track{
			{ID: "v1", Kind: TrackMedia, Elements: []Element{
				{ID: "a", MediaID: "m1", StartTime: 0, Duration: 10},
				{ID: "b", MediaID: "m2", StartTime: 10, Duration: 8, TrimStart: 1, TrimEnd: 1},
				{ID: "c", MediaID: "m3", StartTime: 16, Duration: 5},
			}},
			{ID: "t1", Kind: TrackText},
		},
		Media: []MediaAsset{{ID: "m1", Path: "/tmp/m1.mp4", Duration: 10, HasAudio: true}},
	}
}

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestElement_Window(t *testing.T) {
	el := Element{StartTime: 5, Duration: 7, TrimStart: 1, TrimEnd: 1}
	if !almost(el.End(), 10) {
		t.Fatalf("End() = %v, want 10", el.End())
	}
	tests := []struct {
		at   float64
		want bool
	}{
		{5, true},
		{9.999, true},
		{10, false},
		{4.999, false},
	}
	for _, tt := range tests {
		if got := el.Contains(tt.at); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.at, got, tt.want)
		}
	}
	if el.Overlaps(10, 12) || !el.Overlaps(12, 9) {
		t.Error("Overlaps() boundary handling wrong")
	}
}

func TestMemory_ApplyCommitsOneUndoEntry(t *testing.T) {
	m := NewMemory(sample(), nil)

	changed, err := m.Apply("trim two", func(tx *Tx) error {
		if err := tx.SetTrim("v1", "a", 1, 0); err != nil {
			return err
		}
		return tx.SetTrim("v1", "c", 0, 2)
	})
	if err != nil || !changed {
		t.Fatalf("Apply() = %v, %v", changed, err)
	}
	if got := m.History(); len(got) != 1 || got[0] != "trim two" {
		t.Fatalf("History() = %v", got)
	}

	snap := m.Snapshot()
	a, _ := snap.Element("v1", "a")
	if a.TrimStart != 1 {
		t.Errorf("a.TrimStart = %v, want 1", a.TrimStart)
	}

	label, ok := m.Undo()
	if !ok || label != "trim two" {
		t.Fatalf("Undo() = %q, %v", label, ok)
	}
	snap = m.Snapshot()
	a, _ = snap.Element("v1", "a")
	c, _ := snap.Element("v1", "c")
	if a.TrimStart != 0 || c.TrimEnd != 0 {
		t.Errorf("undo did not restore both elements: a=%+v c=%+v", a, c)
	}
	if _, ok := m.Undo(); ok {
		t.Error("second Undo() should report empty history")
	}
}

func TestMemory_ApplyErrorDiscardsBatch(t *testing.T) {
	m := NewMemory(sample(), nil)
	boom := errors.New("boom")

	_, err := m.Apply("bad", func(tx *Tx) error {
		if err := tx.SetTrim("v1", "a", 2, 0); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Apply() error = %v, want boom", err)
	}
	a, _ := m.Snapshot().Element("v1", "a")
	if a.TrimStart != 0 {
		t.Error("failed batch leaked into the timeline")
	}
	if len(m.History()) != 0 {
		t.Error("failed batch pushed history")
	}
}

func TestMemory_NoOpBatchHasNoHistory(t *testing.T) {
	m := NewMemory(sample(), nil)
	changed, err := m.Apply("noop", func(tx *Tx) error {
		return tx.SetTrim("v1", "b", 1, 1)
	})
	if err != nil || changed {
		t.Fatalf("Apply() = %v, %v; want unchanged", changed, err)
	}
	if len(m.History()) != 0 {
		t.Error("no-op batch pushed history")
	}
}

func TestMemory_WithoutHistory(t *testing.T) {
	m := NewMemory(sample(), nil)
	changed, err := m.Apply("silent", func(tx *Tx) error {
		return tx.SetTrim("v1", "a", 1, 0)
	}, WithoutHistory())
	if err != nil || !changed {
		t.Fatalf("Apply() = %v, %v", changed, err)
	}
	if len(m.History()) != 0 {
		t.Error("WithoutHistory batch pushed a checkpoint")
	}
}

func TestMemory_HistoryBounded(t *testing.T) {
	m := NewMemory(sample(), nil)
	for i := 0; i < DefaultHistoryLimit+5; i++ {
		start := float64(i%2) + 0.5
		if _, err := m.Apply("move", func(tx *Tx) error {
			return tx.SetStartTime("v1", "c", 16+start)
		}); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(m.History()); got != DefaultHistoryLimit {
		t.Errorf("len(History()) = %d, want %d", got, DefaultHistoryLimit)
	}
}

func TestMemory_SnapshotIsolation(t *testing.T) {
	m := NewMemory(sample(), nil)
	snap := m.Snapshot()
	snap.Tracks[0].Elements[0].TrimStart = 5
	a, _ := m.Snapshot().Element("v1", "a")
	if a.TrimStart != 0 {
		t.Error("mutating a snapshot changed the store")
	}
}

func TestMemory_ConcurrentApplySerializes(t *testing.T) {
	m := NewMemory(sample(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Apply("insert", func(tx *Tx) error {
				_, err := tx.Insert("t1", Element{StartTime: 1, Duration: 1, Text: "hi"})
				return err
			})
		}()
	}
	wg.Wait()
	tr, _ := m.Snapshot().Track("t1")
	if len(tr.Elements) != 20 {
		t.Errorf("text elements = %d, want 20", len(tr.Elements))
	}
}

func TestTx_Split(t *testing.T) {
	m := NewMemory(sample(), nil)
	var right Element
	_, err := m.Apply("split", func(tx *Tx) error {
		var err error
		_, right, err = tx.Split("v1", "b", 12)
		return err
	})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	snap := m.Snapshot()
	left, _ := snap.Element("v1", "b")
	if !almost(left.End(), 12) || !almost(left.StartTime, 10) {
		t.Errorf("left = [%v,%v), want [10,12)", left.StartTime, left.End())
	}
	right, _ = snap.Element("v1", right.ID)
	if !almost(right.StartTime, 12) || !almost(right.End(), 16) {
		t.Errorf("right = [%v,%v), want [12,16)", right.StartTime, right.End())
	}
	if !almost(right.TrimStart, 3) || !almost(right.TrimEnd, 1) {
		t.Errorf("right trims = %v/%v, want 3/1", right.TrimStart, right.TrimEnd)
	}
	tr, _ := snap.Track("v1")
	if tr.Elements[1].ID != "b" || tr.Elements[2].ID != right.ID {
		t.Error("split pieces not ordered by start")
	}
}

func TestTx_SplitOutsideWindow(t *testing.T) {
	m := NewMemory(sample(), nil)
	_, err := m.Apply("split", func(tx *Tx) error {
		_, _, err := tx.Split("v1", "a", 10)
		return err
	})
	if err == nil {
		t.Fatal("split at the exclusive end should fail")
	}
}

func TestTx_RemoveRipple(t *testing.T) {
	m := NewMemory(sample(), nil)
	if _, err := m.Apply("remove", func(tx *Tx) error {
		_, err := tx.Remove("v1", "b", true)
		return err
	}); err != nil {
		t.Fatal(err)
	}
	c, _ := m.Snapshot().Element("v1", "c")
	if !almost(c.StartTime, 10) {
		t.Errorf("c.StartTime = %v, want 10", c.StartTime)
	}
}

func TestTx_TryRollsBack(t *testing.T) {
	m := NewMemory(sample(), nil)
	changed, err := m.Apply("partial", func(tx *Tx) error {
		_ = tx.Try(func(tx *Tx) error {
			if _, _, err := tx.Split("v1", "a", 5); err != nil {
				return err
			}
			return errors.New("give up")
		})
		return nil
	})
	if err != nil || changed {
		t.Fatalf("Apply() = %v, %v; rolled back batch should be unchanged", changed, err)
	}
	tr, _ := m.Snapshot().Track("v1")
	if len(tr.Elements) != 3 {
		t.Errorf("elements = %d, want 3", len(tr.Elements))
	}
}

func TestTx_SetTrimRejectsInvalid(t *testing.T) {
	m := NewMemory(sample(), nil)
	_, err := m.Apply("bad trim", func(tx *Tx) error {
		return tx.SetTrim("v1", "a", 6, 5)
	})
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("SetTrim() error = %v, want exceeds", err)
	}
}

func TestTx_EnsureTrack(t *testing.T) {
	m := NewMemory(&Timeline{}, nil)
	var id1, id2 string
	m.Apply("tracks", func(tx *Tx) error {
		id1 = tx.EnsureTrack(TrackText, "Captions")
		id2 = tx.EnsureTrack(TrackText, "Captions")
		return nil
	})
	if id1 == "" || id1 != id2 {
		t.Errorf("EnsureTrack() = %q, %q; want same id", id1, id2)
	}
}

func TestRound(t *testing.T) {
	if got := Round(1.23456, 2); got != 1.23 {
		t.Errorf("Round() = %v, want 1.23", got)
	}
	if got := RoundToFrame(1.01, 30); !almost(got, 1.0) {
		t.Errorf("RoundToFrame() = %v, want 1.0", got)
	}
}
