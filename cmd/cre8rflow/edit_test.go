package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/config"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/llm"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

type scriptedGen struct {
	mu      sync.Mutex
	replies []string
}

func (s *scriptedGen) Generate(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return "", errors.New("no reply scripted")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func testApp(t *testing.T, replies ...string) *app {
	t.Helper()
	t.Setenv(config.EnvEnvFile, filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv(config.EnvConfigFile, "")
	t.Setenv(config.EnvDataDir, t.TempDir())
	t.Setenv(config.EnvLLMAPIKey, "")
	t.Setenv(config.EnvGeminiAPIKey, "")
	t.Setenv(config.EnvServicesURL, "")
	t.Setenv(config.EnvThoughtMode, "off")
	t.Setenv(config.EnvStepPacing, "0")
	t.Setenv(config.EnvFFmpegPath, filepath.Join(t.TempDir(), "no-ffmpeg"))

	cfg, err := config.New()
	if err != nil {
		t.Fatalf("config.New() error = %v", err)
	}
	a, err := newApp(cfg, logging.Discard(), appOptions{})
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(a.Close)
	if len(replies) > 0 {
		a.gen = &scriptedGen{replies: replies}
		if err := a.wire(nil); err != nil {
			t.Fatal(err)
		}
	}
	return a
}

func writeTimeline(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edit.json")
	tl := &timeline.Timeline{
		FPS: 30,
		Tracks: []timeline.Track{{
			ID: "v1", Kind: timeline.TrackMedia,
			Elements: []timeline.Element{
				{ID: "a", MediaID: "m1", StartTime: 0, Duration: 8},
				{ID: "b", MediaID: "m1", StartTime: 8, Duration: 8},
				{ID: "c", MediaID: "m2", StartTime: 16, Duration: 8},
			},
		}},
		Media: []timeline.MediaAsset{
			{ID: "m1", Name: "interview.mp4", Path: "/media/m1.mp4", Duration: 8},
			{ID: "m2", Name: "broll.mp4", Path: "/media/m2.mp4", Duration: 8},
		},
	}
	if err := timeline.WriteFile(path, tl); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunEdit_WritesTimelineAndEDL(t *testing.T) {
	a := testApp(t, `[{"type":"trim","target":{"type":"lastClip"},"right":{"mode":"delta","seconds":2}}]`)
	in := writeTimeline(t)
	out := filepath.Join(t.TempDir(), "edited.json")
	edlDir := t.TempDir()
	var stdout bytes.Buffer

	res, err := runEdit(context.Background(), a, editOptions{timeline: in, prompt: "tighten the ending", out: out, edlDir: edlDir}, &stdout)
	if err != nil {
		t.Fatalf("runEdit() error = %v", err)
	}
	if res.Applied() != 1 {
		t.Fatalf("applied = %d, want 1", res.Applied())
	}

	edited, err := timeline.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	el, _ := edited.Element("v1", "c")
	if el.VisibleDuration() != 6 {
		t.Fatalf("last clip visible = %v, want 6", el.VisibleDuration())
	}
	original, err := timeline.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}
	if el, _ := original.Element("v1", "c"); el.TrimEnd != 0 {
		t.Fatal("input file was modified although --out was given")
	}

	edl, err := os.ReadFile(filepath.Join(edlDir, "edited.edl"))
	if err != nil {
		t.Fatalf("EDL not written: %v", err)
	}
	if !strings.Contains(string(edl), "003  BROLL    V     C        00:00:00:00 00:00:06:00 00:00:16:00 00:00:22:00") {
		t.Fatalf("unexpected EDL:\n%s", edl)
	}
	if !strings.Contains(stdout.String(), "Trimmed") || !strings.Contains(stdout.String(), "EDL written") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunEdit_FramesMode(t *testing.T) {
	a := testApp(t, `[{"type":"trim","target":{"type":"nthClip","n":1},"left":{"mode":"delta","seconds":1}}]`)
	in := writeTimeline(t)
	var stdout bytes.Buffer

	if _, err := runEdit(context.Background(), a, editOptions{timeline: in, prompt: "tighten the opening", frames: true}, &stdout); err != nil {
		t.Fatalf("runEdit() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	var last map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("last line is not a frame: %q", lines[len(lines)-1])
	}
	if last["event"] != "summary" {
		t.Fatalf("last frame = %v", last)
	}

	edited, err := timeline.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}
	if el, _ := edited.Element("v1", "a"); el.TrimStart != 1 {
		t.Fatalf("first clip trimStart = %v, want 1 (written in place)", el.TrimStart)
	}
}

func TestRunEdit_PlanningFailureLeavesFileUntouched(t *testing.T) {
	a := testApp(t)
	in := writeTimeline(t)
	before, _ := os.ReadFile(in)
	var stdout bytes.Buffer

	_, err := runEdit(context.Background(), a, editOptions{timeline: in, prompt: "make it punchier"}, &stdout)
	if agenterr.Classify(err) != agenterr.KindConfiguration {
		t.Fatalf("error = %v, want configuration error", err)
	}
	after, _ := os.ReadFile(in)
	if !bytes.Equal(before, after) {
		t.Fatal("timeline file changed after a failed session")
	}
	if !strings.Contains(stdout.String(), "error (configuration)") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunPlan(t *testing.T) {
	tests := []struct {
		name     string
		replies  []string
		prompt   string
		wantProv string
	}{
		{name: "rule shortcut without model", prompt: "remove silence at the start and end", wantProv: "rule"},
		{name: "model plan", replies: []string{`[{"type":"captions.generate"}]`}, prompt: "subtitle everything", wantProv: "llm"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := testApp(t, tc.replies...)
			var out bytes.Buffer
			if err := runPlan(context.Background(), a, tc.prompt, &out); err != nil {
				t.Fatalf("runPlan() error = %v", err)
			}
			var plan struct {
				Provenance string            `json:"provenance"`
				Steps      []json.RawMessage `json:"steps"`
			}
			if err := json.Unmarshal(out.Bytes(), &plan); err != nil {
				t.Fatalf("output is not JSON: %q", out.String())
			}
			if plan.Provenance != tc.wantProv || len(plan.Steps) != 1 {
				t.Fatalf("plan = %+v", plan)
			}
		})
	}
}
