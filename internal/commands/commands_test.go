package commands

import (
	"errors"
	"math"
	"testing"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/instructions"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/resolver"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

func setup(t *testing.T) (*Engine, *timeline.Memory) {
	t.Helper()
	tl := &timeline.Timeline{
		FPS: 30,
		Tracks: []timeline.Track{
			{ID: "v1", Kind: timeline.TrackMedia, Elements: []timeline.Element{
				{ID: "a", MediaID: "m1", StartTime: 0, Duration: 10},
				{ID: "b", MediaID: "m2", StartTime: 10, Duration: 10},
				{ID: "c", MediaID: "m1", StartTime: 20, Duration: 10, TrimStart: 4},
			}},
			{ID: "t1", Kind: timeline.TrackText, Elements: []timeline.Element{
				{ID: "title", StartTime: 0, Duration: 3, Text: "Hello"},
			}},
		},
	}
	store := timeline.NewMemory(tl, nil)
	return NewEngine(store, nil), store
}

func target(id string) resolver.ElementTarget {
	return resolver.ElementTarget{TrackID: "v1", ElementID: id}
}

func el(t *testing.T, store *timeline.Memory, id string) timeline.Element {
	t.Helper()
	for _, tr := range store.Snapshot().Tracks {
		for _, e := range tr.Elements {
			if e.ID == id {
				return e
			}
		}
	}
	t.Fatalf("element %s not found", id)
	return timeline.Element{}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-3
}

func delta(s float64) *instructions.Side {
	return &instructions.Side{Mode: instructions.SideDelta, Seconds: s}
}

func absolute(s float64) *instructions.Side {
	return &instructions.Side{Mode: instructions.SideAbsolute, Seconds: s}
}

func boolPtr(b bool) *bool { return &b }

func checkInvariant(t *testing.T, store *timeline.Memory) {
	t.Helper()
	for _, tr := range store.Snapshot().Tracks {
		for _, e := range tr.Elements {
			if e.TrimStart < 0 || e.TrimEnd < 0 || e.TrimStart+e.TrimEnd > e.Duration+1e-9 {
				t.Errorf("element %s violates trim invariant: %+v", e.ID, e)
			}
		}
	}
}

func TestTrim_ExpectRejectsElement(t *testing.T) {
	eng, store := setup(t)

	res, err := eng.Trim([]resolver.ElementTarget{target("a"), target("c")}, TrimRequest{
		Right: delta(1),
		Expect: func(el timeline.Element) error {
			if el.TrimStart != 0 {
				return errors.New("trim moved")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Trim() error = %v", err)
	}
	if len(res.Updates) != 1 || len(res.Failures) != 1 {
		t.Fatalf("Trim() = %+v, want one update and one failure", res)
	}
	if c := el(t, store, "c"); c.TrimEnd != 0 {
		t.Errorf("c.TrimEnd = %v, want untouched", c.TrimEnd)
	}
	if a := el(t, store, "a"); !near(a.TrimEnd, 1) {
		t.Errorf("a.TrimEnd = %v, want 1", a.TrimEnd)
	}
}

func TestTrim_RightDelta(t *testing.T) {
	eng, store := setup(t)

	res, err := eng.Trim([]resolver.ElementTarget{target("c")}, TrimRequest{Right: delta(2)})
	if err != nil {
		t.Fatalf("Trim() error = %v", err)
	}
	if len(res.Updates) != 1 || res.Skipped != 0 {
		t.Fatalf("Trim() = %+v", res)
	}
	c := el(t, store, "c")
	if !near(c.TrimEnd, 2) || !near(c.StartTime, 20) || !near(c.End(), 24) {
		t.Errorf("c = %+v, want trimEnd 2, [20,24)", c)
	}
	checkInvariant(t, store)
}

func TestTrim_LeftDeltaAnchorsContent(t *testing.T) {
	eng, store := setup(t)

	if _, err := eng.Trim([]resolver.ElementTarget{target("a")}, TrimRequest{Left: delta(2)}); err != nil {
		t.Fatalf("Trim() error = %v", err)
	}
	a := el(t, store, "a")
	if !near(a.TrimStart, 2) || !near(a.StartTime, 2) || !near(a.End(), 10) {
		t.Errorf("a = %+v, want trimStart 2 starting at 2", a)
	}
	if b := el(t, store, "b"); !near(b.StartTime, 10) {
		t.Errorf("b moved without ripple: %v", b.StartTime)
	}
}

func TestTrim_ClampBounds(t *testing.T) {
	eng, store := setup(t)

	_, err := eng.Trim([]resolver.ElementTarget{target("b")}, TrimRequest{Right: absolute(25)})
	if err != nil {
		t.Fatalf("Trim() error = %v", err)
	}
	b := el(t, store, "b")
	if b.VisibleDuration() <= 0 || b.TrimEnd > 10 {
		t.Errorf("b = %+v, clamped trim should leave content", b)
	}
	checkInvariant(t, store)
}

func TestTrim_NoClampSkipsOutOfBounds(t *testing.T) {
	eng, store := setup(t)

	res, err := eng.Trim(
		[]resolver.ElementTarget{target("a"), target("b")},
		TrimRequest{Right: absolute(9.5), Options: &instructions.TrimOptions{Clamp: boolPtr(false)}},
	)
	if err != nil {
		t.Fatalf("Trim() error = %v", err)
	}
	if len(res.Updates) != 2 || res.Skipped != 0 {
		t.Fatalf("Trim() = %+v", res)
	}

	res, err = eng.Trim(
		[]resolver.ElementTarget{target("a")},
		TrimRequest{Right: absolute(50), Options: &instructions.TrimOptions{Clamp: boolPtr(false)}},
	)
	if err == nil {
		t.Fatal("Trim() with every element skipped should fail")
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", res.Skipped)
	}
	if agenterr.Classify(err) != agenterr.KindCommand {
		t.Errorf("error kind = %s, want command", agenterr.Classify(err))
	}
	if a := el(t, store, "a"); !near(a.TrimEnd, 9.5) {
		t.Errorf("skipped trim changed a: %+v", a)
	}
}

func TestTrim_OverflowSplitEvenly(t *testing.T) {
	eng, store := setup(t)

	_, err := eng.Trim([]resolver.ElementTarget{target("a")}, TrimRequest{Left: absolute(6), Right: absolute(6)})
	if err != nil {
		t.Fatalf("Trim() error = %v", err)
	}
	a := el(t, store, "a")
	if !near(a.TrimStart, a.TrimEnd) {
		t.Errorf("overflow not split evenly: %v/%v", a.TrimStart, a.TrimEnd)
	}
	if a.VisibleDuration() <= 0 {
		t.Errorf("visible duration = %v", a.VisibleDuration())
	}
	checkInvariant(t, store)
}

func TestTrim_OverflowRejectedWithoutClamp(t *testing.T) {
	eng, store := setup(t)

	res, err := eng.Trim([]resolver.ElementTarget{target("a")}, TrimRequest{
		Left: absolute(6), Right: absolute(6),
		Options: &instructions.TrimOptions{Clamp: boolPtr(false)},
	})
	if err == nil {
		t.Fatal("Trim() should reject overflow without clamp")
	}
	if len(res.Failures) != 1 {
		t.Errorf("Failures = %v", res.Failures)
	}
	var cmdErr *agenterr.CommandError
	if !errors.As(err, &cmdErr) || cmdErr.ElementID != "a" {
		t.Errorf("error = %v, want CommandError for a", err)
	}
	if a := el(t, store, "a"); a.TrimStart != 0 || a.TrimEnd != 0 {
		t.Error("rejected trim mutated the element")
	}
}

func TestTrim_NoOpSucceeds(t *testing.T) {
	eng, store := setup(t)

	res, err := eng.Trim([]resolver.ElementTarget{target("b")}, TrimRequest{Right: absolute(0)})
	if err != nil {
		t.Fatalf("Trim() error = %v", err)
	}
	if !res.Success() || !res.Updates[0].NoOp {
		t.Errorf("Trim() = %+v, want a successful no-op", res)
	}
	if len(store.History()) != 0 {
		t.Error("no-op trim pushed history")
	}
}

func TestTrim_PlayheadSides(t *testing.T) {
	eng, store := setup(t)
	store.SetPlayhead(15)

	if _, err := eng.Trim([]resolver.ElementTarget{target("b")}, TrimRequest{
		Right: &instructions.Side{Mode: instructions.SidePlayhead},
	}); err != nil {
		t.Fatalf("Trim() error = %v", err)
	}
	if b := el(t, store, "b"); !near(b.End(), 15) {
		t.Errorf("b.End() = %v, want 15", b.End())
	}

	store.SetPlayhead(12)
	if _, err := eng.Trim([]resolver.ElementTarget{target("b")}, TrimRequest{
		Left: &instructions.Side{Mode: instructions.SidePlayhead},
	}); err != nil {
		t.Fatalf("Trim() error = %v", err)
	}
	if b := el(t, store, "b"); !near(b.StartTime, 12) || !near(b.TrimStart, 2) {
		t.Errorf("b = %+v, want visible start at 12", b)
	}
}

func TestTrim_RippleFromPreEditPositions(t *testing.T) {
	eng, store := setup(t)

	_, err := eng.Trim(
		[]resolver.ElementTarget{target("a"), target("b")},
		TrimRequest{Right: delta(2), Options: &instructions.TrimOptions{Ripple: true}},
	)
	if err != nil {
		t.Fatalf("Trim() error = %v", err)
	}
	a, b, c := el(t, store, "a"), el(t, store, "b"), el(t, store, "c")
	if !near(a.StartTime, 0) || !near(a.End(), 8) {
		t.Errorf("a = [%v,%v), want [0,8)", a.StartTime, a.End())
	}
	if !near(b.StartTime, 8) || !near(b.End(), 16) {
		t.Errorf("b = [%v,%v), want [8,16)", b.StartTime, b.End())
	}
	if !near(c.StartTime, 16) {
		t.Errorf("c.StartTime = %v, want 16", c.StartTime)
	}
	if title := el(t, store, "title"); title.StartTime != 0 {
		t.Error("ripple leaked onto another track")
	}
	if len(store.History()) != 1 {
		t.Errorf("history = %d entries, want 1", len(store.History()))
	}
}

func TestTrim_RippleLeftKeepsElementAnchored(t *testing.T) {
	eng, store := setup(t)

	_, err := eng.Trim(
		[]resolver.ElementTarget{target("b")},
		TrimRequest{Left: delta(3), Options: &instructions.TrimOptions{Ripple: true}},
	)
	if err != nil {
		t.Fatalf("Trim() error = %v", err)
	}
	b, c := el(t, store, "b"), el(t, store, "c")
	if !near(b.StartTime, 10) || !near(b.End(), 17) {
		t.Errorf("b = [%v,%v), want [10,17)", b.StartTime, b.End())
	}
	if !near(c.StartTime, 17) {
		t.Errorf("c.StartTime = %v, want 17", c.StartTime)
	}
}

func TestTrim_DryRun(t *testing.T) {
	eng, store := setup(t)
	res, err := eng.Trim([]resolver.ElementTarget{target("a")}, TrimRequest{
		Right: delta(3), Options: &instructions.TrimOptions{DryRun: true},
	})
	if err != nil {
		t.Fatalf("Trim() error = %v", err)
	}
	if !res.DryRun || !near(res.Updates[0].TrimEnd, 3) {
		t.Errorf("Trim() = %+v", res)
	}
	if a := el(t, store, "a"); a.TrimEnd != 0 {
		t.Error("dry-run mutated the timeline")
	}
}

func TestTrim_NoTargets(t *testing.T) {
	eng, _ := setup(t)
	_, err := eng.Trim(nil, TrimRequest{Right: delta(1)})
	if agenterr.Classify(err) != agenterr.KindTargetResolution {
		t.Errorf("error = %v, want target resolution", err)
	}
}

func TestTrim_WithoutHistory(t *testing.T) {
	eng, store := setup(t)
	_, err := eng.Trim([]resolver.ElementTarget{target("a")}, TrimRequest{
		Right: delta(1), Options: &instructions.TrimOptions{PushHistory: boolPtr(false)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(store.History()) != 0 {
		t.Error("pushHistory=false still pushed a checkpoint")
	}
}
