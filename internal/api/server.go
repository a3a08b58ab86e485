// Package api exposes the timeline, the planner and prompt sessions over a
// loopback HTTP API.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/journal"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/pipelines"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/planner"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/session"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/subtasks"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

const Version = "0.4.0"

// Journal is the read side of the session journal plus the API token.
type Journal interface {
	TokenSource
	Session(ctx context.Context, id string) (*journal.Session, error)
	Sessions(ctx context.Context, limit int) ([]*journal.Session, error)
	Commands(ctx context.Context, sessionID string) ([]*journal.CommandRecord, error)
	Ack(ctx context.Context, id string) error
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port            int
	Store           *timeline.Memory
	Planner         *planner.Planner
	Sessions        *session.Manager
	Journal         Journal
	Tracker         *subtasks.Tracker
	Doctor          *pipelines.CachedDoctor
	LLMEnabled      bool
	ServicesEnabled bool
	Logger          *slog.Logger
	StartTime       time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
