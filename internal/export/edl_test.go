package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

func editedTimeline() *timeline.Timeline {
	return &timeline.Timeline{
		FPS: 30,
		Media: []timeline.MediaAsset{
			{ID: "m1", Name: "interview.mp4", Path: "/media/interview.mp4", Duration: 20},
			{ID: "m2", Name: "b-roll", Path: "/media/broll.mov", Duration: 10},
		},
		Tracks: []timeline.Track{
			{ID: "v1", Kind: timeline.TrackMedia, Elements: []timeline.Element{
				{ID: "e1", MediaID: "m1", Name: "Intro", StartTime: 0, Duration: 20, TrimStart: 2, TrimEnd: 8},
				{ID: "e2", MediaID: "m2", StartTime: 10, Duration: 10, TrimEnd: 5.5},
				{ID: "e3", MediaID: "gone", StartTime: 20, Duration: 4},
			}},
			{ID: "t1", Kind: timeline.TrackText, Elements: []timeline.Element{
				{ID: "c1", Text: "hello", StartTime: 0, Duration: 2},
			}},
		},
	}
}

func TestEvents(t *testing.T) {
	events, unresolved := Events(editedTimeline())

	if len(unresolved) != 1 || unresolved[0] != "e3" {
		t.Fatalf("unresolved = %v, want [e3]", unresolved)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	first := events[0]
	if first.ClipName != "Intro" || first.Reel != "INTERVIE" {
		t.Fatalf("first event = %+v", first)
	}
	if first.SourceIn != 2 || first.SourceOut != 12 || first.RecordIn != 0 || first.RecordOut != 10 {
		t.Fatalf("first event window = %+v", first)
	}
	second := events[1]
	if second.ClipName != "b-roll" || second.Reel != "BROLL" || second.Duration() != 4.5 {
		t.Fatalf("second event = %+v", second)
	}
}

func TestGenerateEDL(t *testing.T) {
	events, _ := Events(editedTimeline())
	edl := GenerateEDL(events, "Cut One", 30.0)

	for _, want := range []string{
		"TITLE: Cut One",
		"FCM: NON-DROP FRAME",
		"001  INTERVIE V     C        00:00:02:00 00:00:12:00 00:00:00:00 00:00:10:00",
		"* FROM CLIP NAME:  Intro",
		"* MEDIA PATH:  /media/interview.mp4",
		"002  BROLL    V     C        00:00:00:00 00:00:04:15 00:00:10:00 00:00:14:15",
	} {
		if !strings.Contains(edl, want) {
			t.Fatalf("EDL missing %q:\n%s", want, edl)
		}
	}
	if strings.Contains(edl, "hello") {
		t.Fatalf("text track leaked into EDL:\n%s", edl)
	}
}

func TestGenerateEDL_DropFrame(t *testing.T) {
	edl := GenerateEDL([]Event{{ClipName: "Clip", MediaPath: "/x.mp4", SourceOut: 1, RecordOut: 1}}, "Drop", 29.97)

	if !strings.Contains(edl, "FCM: DROP FRAME") {
		t.Fatalf("expected drop frame FCM, got: %q", edl)
	}
	if !strings.Contains(edl, "001  AX       V") {
		t.Fatalf("expected default reel, got: %q", edl)
	}
}

func TestToTimecode(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		fps     int
		want    string
	}{
		{name: "zero", seconds: 0, fps: 30, want: "00:00:00:00"},
		{name: "one second", seconds: 1, fps: 30, want: "00:00:01:00"},
		{name: "fractional second", seconds: 0.5, fps: 30, want: "00:00:00:15"},
		{name: "one minute", seconds: 60, fps: 25, want: "00:01:00:00"},
		{name: "one hour", seconds: 3600, fps: 30, want: "01:00:00:00"},
		{name: "negative clamps", seconds: -1, fps: 30, want: "00:00:00:00"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := toTimecode(tc.seconds, tc.fps)
			if got != tc.want {
				t.Fatalf("toTimecode(%v, %d) = %q, want %q", tc.seconds, tc.fps, got, tc.want)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()

	res, err := Write(dir, "My Edit", editedTimeline())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if res.Path != filepath.Join(dir, "My Edit.edl") || res.EventCount != 2 || res.Format != FormatEDL {
		t.Fatalf("result = %+v", res)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read edl: %v", err)
	}
	if !strings.HasPrefix(string(data), "TITLE: My Edit\n") {
		t.Fatalf("unexpected file contents: %q", data)
	}
}

func TestWrite_RejectsMissingDir(t *testing.T) {
	if _, err := Write(filepath.Join(t.TempDir(), "missing"), "x", editedTimeline()); err == nil {
		t.Fatal("Write() expected error for missing directory")
	}
}
