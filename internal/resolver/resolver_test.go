package resolver

import (
	"reflect"
	"testing"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

func fixture() *timeline.Timeline {
	return &timeline.Timeline{
		FPS: 30,
		Tracks: []timeline.Track{
			{ID: "v1", Kind: timeline.TrackMedia, Elements: []timeline.Element{
				{ID: "a", StartTime: 0, Duration: 5},
				{ID: "b", StartTime: 5, Duration: 5},
				{ID: "c", StartTime: 10, Duration: 6, TrimEnd: 1},
			}},
			{ID: "t1", Kind: timeline.TrackText, Elements: []timeline.Element{
				{ID: "cap1", StartTime: 2, Duration: 3},
				{ID: "cap2", StartTime: 30, Duration: 2},
			}},
			{ID: "a1", Kind: timeline.TrackAudio, Elements: []timeline.Element{
				{ID: "music", StartTime: 5, Duration: 20},
			}},
		},
	}
}

func ids(targets []ElementTarget) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.ElementID
	}
	return out
}

func TestResolve(t *testing.T) {
	tl := fixture()
	tests := []struct {
		name     string
		spec     TargetSpec
		playhead float64
		want     []string
	}{
		{"playhead", TargetSpec{Kind: ClipAtPlayhead, TrackKind: timeline.TrackMedia}, 7, []string{"b"}},
		{"at start boundary", TargetSpec{Kind: ClipAtTime, Time: 5, TrackKind: timeline.TrackMedia}, 0, []string{"b"}},
		{"just before end", TargetSpec{Kind: ClipAtTime, Time: 9.999, TrackKind: timeline.TrackMedia}, 0, []string{"b"}},
		{"at end excluded", TargetSpec{Kind: ClipAtTime, Time: 15, TrackKind: timeline.TrackMedia}, 0, nil},
		{"all tracks at time", TargetSpec{Kind: ClipAtTime, Time: 6}, 0, []string{"b", "music"}},
		{"last clip prefers media", TargetSpec{Kind: LastClip}, 0, []string{"c"}},
		{"last clip text", TargetSpec{Kind: LastClip, TrackKind: timeline.TrackText}, 0, []string{"cap2"}},
		{"last clip by track id", TargetSpec{Kind: LastClip, TrackID: "a1"}, 0, []string{"music"}},
		{"nth clip", TargetSpec{Kind: NthClip, N: 2, TrackKind: timeline.TrackMedia}, 0, []string{"b"}},
		{"nth out of range", TargetSpec{Kind: NthClip, N: 9, TrackKind: timeline.TrackMedia}, 0, nil},
		{"overlap", TargetSpec{Kind: ClipsOverlappingRange, Start: 4, End: 11, TrackKind: timeline.TrackMedia}, 0, []string{"a", "b", "c"}},
		{"overlap touching edge", TargetSpec{Kind: ClipsOverlappingRange, Start: 10, End: 12, TrackKind: timeline.TrackMedia}, 0, []string{"c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Resolve(tt.spec, tl, tt.playhead))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve_Pure(t *testing.T) {
	tl := fixture()
	spec := TargetSpec{Kind: ClipsOverlappingRange, Start: 0, End: 40}
	first := Resolve(spec, tl, 0)
	for i := 0; i < 5; i++ {
		if got := Resolve(spec, tl, 0); !reflect.DeepEqual(got, first) {
			t.Fatalf("Resolve() call %d = %v, want %v", i, got, first)
		}
	}
	if !reflect.DeepEqual(ids(first), []string{"a", "cap1", "b", "music", "c", "cap2"}) {
		t.Errorf("order = %v", ids(first))
	}
}

func TestResolve_OverlapSymmetric(t *testing.T) {
	tl := fixture()
	for _, r := range [][2]float64{{4, 11}, {0, 5}, {12, 31}, {9.5, 10}} {
		ab := Resolve(TargetSpec{Kind: ClipsOverlappingRange, Start: r[0], End: r[1]}, tl, 0)
		ba := Resolve(TargetSpec{Kind: ClipsOverlappingRange, Start: r[1], End: r[0]}, tl, 0)
		if !reflect.DeepEqual(ab, ba) {
			t.Errorf("range %v: %v != %v", r, ids(ab), ids(ba))
		}
	}
}

func TestResolve_TieBreakByID(t *testing.T) {
	tl := &timeline.Timeline{Tracks: []timeline.Track{
		{ID: "v2", Kind: timeline.TrackMedia, Elements: []timeline.Element{{ID: "z", StartTime: 0, Duration: 2}}},
		{ID: "v1", Kind: timeline.TrackMedia, Elements: []timeline.Element{{ID: "y", StartTime: 0, Duration: 2}}},
	}}
	got := ids(Resolve(TargetSpec{Kind: ClipAtTime, Time: 1}, tl, 0))
	if !reflect.DeepEqual(got, []string{"y", "z"}) {
		t.Errorf("Resolve() = %v, want [y z]", got)
	}
}

func TestTargetSpec_Validate(t *testing.T) {
	tests := []struct {
		spec    TargetSpec
		wantErr bool
	}{
		{TargetSpec{Kind: LastClip}, false},
		{TargetSpec{Kind: NthClip, N: 0}, true},
		{TargetSpec{Kind: ClipAtTime, Time: -1}, true},
		{TargetSpec{Kind: ClipsOverlappingRange, Start: 3, End: 3}, true},
		{TargetSpec{Kind: "everything"}, true},
		{TargetSpec{Kind: LastClip, TrackKind: "hologram"}, true},
	}
	for _, tt := range tests {
		if err := tt.spec.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
		}
	}
}
