package playback

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

type fixedStore struct{ tl *timeline.Timeline }

func (f fixedStore) Snapshot() *timeline.Timeline { return f.tl }

func newTestServer(t *testing.T) (*Server, []byte) {
	t.Helper()
	dir := t.TempDir()
	body := []byte("0123456789abcdefghij")
	path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	tl := &timeline.Timeline{Media: []timeline.MediaAsset{
		{ID: "m1", Path: path, Duration: 4},
		{ID: "gone", Path: filepath.Join(dir, "missing.mov"), Duration: 4},
	}}
	return NewServer(fixedStore{tl}, logging.Discard()), body
}

func TestServeMedia_Full(t *testing.T) {
	s, body := newTestServer(t)
	rec := httptest.NewRecorder()
	if err := s.ServeMedia(rec, httptest.NewRequest(http.MethodGet, "/media/m1", nil), "m1"); err != nil {
		t.Fatalf("ServeMedia() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != string(body) {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "video/mp4" {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("Accept-Ranges") != "bytes" {
		t.Error("missing Accept-Ranges")
	}
}

func TestServeMedia_Partial(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/media/m1", nil)
	req.Header.Set("Range", "bytes=10-14")
	rec := httptest.NewRecorder()
	if err := s.ServeMedia(rec, req, "m1"); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if rec.Body.String() != "abcde" {
		t.Errorf("body = %q, want abcde", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 10-14/20" {
		t.Errorf("Content-Range = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "5" {
		t.Errorf("Content-Length = %q", got)
	}
}

func TestServeMedia_Unsatisfiable(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/media/m1", nil)
	req.Header.Set("Range", "bytes=50-")
	rec := httptest.NewRecorder()
	if err := s.ServeMedia(rec, req, "m1"); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */20" {
		t.Errorf("Content-Range = %q", got)
	}
}

func TestServeMedia_Head(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	if err := s.ServeMedia(rec, httptest.NewRequest(http.MethodHead, "/media/m1", nil), "m1"); err != nil {
		t.Fatal(err)
	}
	if rec.Body.Len() != 0 || rec.Header().Get("Content-Length") != "20" {
		t.Errorf("HEAD body = %d bytes, Content-Length = %q", rec.Body.Len(), rec.Header().Get("Content-Length"))
	}
}

func TestServeMedia_Unknown(t *testing.T) {
	s, _ := newTestServer(t)
	for _, id := range []string{"nope", "gone"} {
		rec := httptest.NewRecorder()
		err := s.ServeMedia(rec, httptest.NewRequest(http.MethodGet, "/media/"+id, nil), id)
		if !errors.Is(err, ErrUnknownMedia) {
			t.Errorf("%s: err = %v, want ErrUnknownMedia", id, err)
		}
	}
}
