package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("RIFF-fake-audio"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHTTPClient_Transcribe(t *testing.T) {
	var gotAuth, gotLanguage string
	var gotAudio []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotLanguage = r.FormValue("language")
		f, _, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("audio part: %v", err)
		} else {
			gotAudio, _ = io.ReadAll(f)
		}

		json.NewEncoder(w).Encode(Transcript{
			Text:     "hello world",
			Language: "en",
			Segments: []Segment{
				{Start: 0.2, End: 1.4, Text: " hello world ", Words: []Word{
					{Start: 0.3, End: 0.7, Text: "hello"},
					{Start: 0.8, End: 1.3, Text: " world "},
					{Start: 1.3, End: 1.3, Text: "  "},
				}},
				{Start: 2.0, End: 2.02, Text: "blip"},
				{Start: 3.0, End: 4.0, Text: "noise", NoSpeechProb: 0.95},
			},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL+"/", "svc-token", server.Client(), nil)
	tr, err := client.Transcribe(context.Background(), writeAudio(t), "")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if gotAuth != "Bearer svc-token" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotLanguage != "auto" {
		t.Errorf("language = %q, want auto", gotLanguage)
	}
	if string(gotAudio) != "RIFF-fake-audio" {
		t.Errorf("audio = %q", gotAudio)
	}
	if len(tr.Segments) != 1 {
		t.Fatalf("segments = %d, want 1 after filtering", len(tr.Segments))
	}
	seg := tr.Segments[0]
	if seg.Start != 0.3 || seg.End != 1.3 || seg.Text != "hello world" {
		t.Errorf("segment = %+v", seg)
	}
	if len(seg.Words) != 2 || seg.Words[1].Text != "world" {
		t.Errorf("words = %+v", seg.Words)
	}
}

func TestHTTPClient_TranscribeErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"model crashed","text":"","segments":[]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", nil, nil)
	if _, err := client.Transcribe(context.Background(), writeAudio(t), "en"); err == nil {
		t.Fatal("expected error from error body")
	}
}

func TestHTTPClient_ServiceError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"detail":"nope"}`))
		}))

		client := NewHTTPClient(server.URL, "", nil, nil)
		_, err := client.Search(context.Background(), SearchRequest{Query: "dog"})
		server.Close()

		var svcErr *ServiceError
		if !errors.As(err, &svcErr) {
			t.Fatalf("status %d: error = %v, want *ServiceError", tt.status, err)
		}
		if svcErr.StatusCode != tt.status || svcErr.IsRetryable() != tt.retryable {
			t.Errorf("status %d: got code %d retryable %v", tt.status, svcErr.StatusCode, svcErr.IsRetryable())
		}
	}
}

func TestHTTPClient_NetworkErrorIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewHTTPClient(url, "", nil, nil)
	_, err := client.Search(context.Background(), SearchRequest{Query: "dog"})
	if agenterr.Classify(err) != agenterr.KindTransport {
		t.Errorf("Classify(%v) = %q, want transport", err, agenterr.Classify(err))
	}
}

func TestHTTPClient_DetectDeadspace(t *testing.T) {
	var gotPre, gotPost string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trim-deadspace" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotPre = r.FormValue("prePadding")
		gotPost = r.FormValue("postPadding")
		json.NewEncoder(w).Encode(DeadspaceResult{
			SpeechDetected: true, SpeechStart: 1.2, SpeechEnd: 6.0,
			TrimStart: 1.12, TrimEnd: 6.6, Duration: 9, Confidence: 0.8,
			AnalysisSource: "transcript",
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", nil, nil)
	res, err := client.DetectDeadspace(context.Background(), DeadspaceRequest{
		AudioPath: writeAudio(t), PrePadding: DefaultPrePadding, PostPadding: DefaultPostPadding,
	})
	if err != nil {
		t.Fatalf("DetectDeadspace() error = %v", err)
	}
	if gotPre != "0.08" || gotPost != "0.6" {
		t.Errorf("padding fields = %q / %q", gotPre, gotPost)
	}
	if res.TrimStart != 1.12 || res.TrimEnd != 6.6 {
		t.Errorf("result = %+v", res)
	}
}

func TestHTTPClient_DetectDeadspaceNoSpeech(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"speechDetected":false,"error":"Transcript contained no spoken words."}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", nil, nil)
	res, err := client.DetectDeadspace(context.Background(), DeadspaceRequest{AudioPath: writeAudio(t)})
	if err == nil {
		t.Fatal("expected error when no speech detected")
	}
	if res == nil || res.Usable() {
		t.Errorf("result = %+v, want unusable report", res)
	}
}

func TestHTTPClient_SearchFiltersMatches(t *testing.T) {
	var got SearchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"matches":[
			{"mediaId":"m1","start":1,"end":2,"score":0.9},
			{"mediaId":"","start":1,"end":2},
			{"mediaId":"m2","start":5,"end":4},
			{"mediaId":"m2","start":7,"end":9}
		]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", nil, nil)
	matches, err := client.Search(context.Background(), SearchRequest{Query: "the dog barks"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got.Query != "the dog barks" || got.Limit != defaultSearchLimit {
		t.Errorf("request = %+v", got)
	}
	if len(matches) != 2 || matches[0].MediaID != "m1" || matches[1].Start != 7 {
		t.Errorf("matches = %+v", matches)
	}
}

func TestStubClient(t *testing.T) {
	stub := NewStubClient(nil)
	if stub.Enabled() {
		t.Error("stub should not be enabled")
	}
	_, err := stub.Transcribe(context.Background(), "a.wav", "en")
	if agenterr.Classify(err) != agenterr.KindConfiguration {
		t.Errorf("Classify(%v) = %q, want configuration", err, agenterr.Classify(err))
	}
	if _, err := stub.DetectDeadspace(context.Background(), DeadspaceRequest{}); err == nil {
		t.Error("expected error")
	}
	if _, err := stub.Search(context.Background(), SearchRequest{Query: "x"}); err == nil {
		t.Error("expected error")
	}
}

func TestNormalizeSegments_NoWords(t *testing.T) {
	got := NormalizeSegments([]Segment{
		{Start: -0.5, End: 1, Text: "clamped"},
		{Start: 2, End: 1, Text: "inverted"},
	})
	if len(got) != 1 || got[0].Start != 0 || got[0].Text != "clamped" {
		t.Errorf("got %+v", got)
	}
}
