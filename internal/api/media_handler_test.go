package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestMedia_RangeRequest(t *testing.T) {
	h := newHarness(t, nil)
	path := filepath.Join(t.TempDir(), "m1.mov")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	tl := threeClips()
	tl.Media[0].Path = path
	if err := h.store.Load(tl); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/media/m1", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Range", "bytes=-3")
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rr.Code)
	}
	if rr.Body.String() != "789" {
		t.Errorf("body = %q, want 789", rr.Body.String())
	}
	if rr.Header().Get("Content-Type") != "video/quicktime" {
		t.Errorf("Content-Type = %q", rr.Header().Get("Content-Type"))
	}
}

func TestMedia_NotFound(t *testing.T) {
	h := newHarness(t, nil)
	for _, id := range []string{"m2", "unknown"} {
		rr := h.do(t, http.MethodGet, "/media/"+id, nil)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d, want 404", id, rr.Code)
		}
		if body := decodeJSONBody(t, rr); body["code"] != "MEDIA_NOT_FOUND" {
			t.Errorf("%s: code = %v", id, body["code"])
		}
	}
}

func TestMedia_RequiresAuth(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/media/m1", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}
