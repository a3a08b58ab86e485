// Package cloud holds the clients for the remote speech and search services:
// transcription, transcript-based deadspace detection and semantic search.
package cloud

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/agenterr"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
)

// ErrNotConfigured is returned by the stub client for every call.
var ErrNotConfigured = errors.New("speech services are not configured")

// Transcriber turns an audio file into timed text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (*Transcript, error)
}

// DeadspaceDetector finds the speech window inside an audio file.
type DeadspaceDetector interface {
	DetectDeadspace(ctx context.Context, req DeadspaceRequest) (*DeadspaceResult, error)
}

// Searcher finds moments in source media matching a text query.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]SearchMatch, error)
}

// Client bundles the three services behind one base URL.
type Client interface {
	Transcriber
	DeadspaceDetector
	Searcher
	Enabled() bool
}

// StubClient is used when no services URL is configured. Every call fails
// with a ConfigurationError, which sends deadspace trimming to the local
// detector and fails captions and search with a clear message.
type StubClient struct {
	logger *slog.Logger
}

func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{logger: logging.OrDiscard(logger)}
}

func (s *StubClient) Enabled() bool { return false }

func (s *StubClient) Transcribe(ctx context.Context, audioPath, language string) (*Transcript, error) {
	s.logger.Debug("cloud stub: transcription requested", "language", language)
	return nil, notConfigured()
}

func (s *StubClient) DetectDeadspace(ctx context.Context, req DeadspaceRequest) (*DeadspaceResult, error) {
	s.logger.Debug("cloud stub: deadspace detection requested")
	return nil, notConfigured()
}

func (s *StubClient) Search(ctx context.Context, req SearchRequest) ([]SearchMatch, error) {
	s.logger.Debug("cloud stub: search requested", "query", req.Query)
	return nil, notConfigured()
}

func notConfigured() error {
	return &agenterr.ConfigurationError{Setting: "CRE8R_SERVICES_URL", Message: ErrNotConfigured.Error()}
}
