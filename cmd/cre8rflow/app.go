package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/cloud"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/commands"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/config"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/db"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/journal"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/llm"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/netx"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/pipelines"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/planner"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/session"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/subtasks"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg    *config.EnvConfig
	logger *slog.Logger

	gen     llm.Generator // nil without an API key
	speech  cloud.Client
	audio   pipelines.Runner
	doctor  *pipelines.CachedDoctor
	db      *db.DB
	journal *journal.Service

	store    *timeline.Memory
	engine   *commands.Engine
	planner  *planner.Planner
	tracker  *subtasks.Tracker
	subtasks *subtasks.Runner
	sessions *session.Manager
}

type appOptions struct {
	journal bool // open the SQLite journal
}

func newApp(cfg *config.EnvConfig, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	if opts.journal {
		database, err := db.New(cfg.DBPath(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.db = database
		a.journal = journal.NewService(journal.NewRepository(database.Conn()), logger)
	}

	httpClient, err := netx.NewHTTPClient(cfg.ProxyURL(), cfg.TimeoutService())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid proxy: %w", err)
	}
	a.gen = newGenerator(cfg, httpClient, logger)
	a.speech = newSpeechClient(cfg, httpClient, logger)

	pipeCfg := pipelines.DefaultConfig(cfg.DataDir(), logger)
	pipeCfg.FFmpegPath = cfg.FFmpegPath()
	pipeCfg.ArtifactsBase = cfg.ArtifactsDir()
	pipeCfg.DoctorTimeout = cfg.TimeoutDoctor()
	pipeCfg.ExtractTimeout = cfg.TimeoutExtract()
	pr, err := pipelines.NewRunner(pipeCfg)
	if err != nil {
		logger.Warn("audio extraction unavailable, captions and silence removal disabled", "error", err)
	} else {
		a.audio = pr
		a.doctor = pipelines.NewCachedDoctor(pr, logger)
	}

	if err := a.wire(nil); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newGenerator(cfg *config.EnvConfig, httpClient *http.Client, logger *slog.Logger) llm.Generator {
	if cfg.LLMAPIKey() == "" {
		logger.Warn("no language model configured; only rule shortcuts can be planned", "setting", config.EnvLLMAPIKey)
		return nil
	}
	return llm.NewGemini(cfg.LLMAPIKey(), cfg.LLMModel(), cfg.LLMBaseURL(), httpClient, logger)
}

func newSpeechClient(cfg *config.EnvConfig, httpClient *http.Client, logger *slog.Logger) cloud.Client {
	if !cfg.ServicesEnabled() {
		return cloud.NewStubClient(logger)
	}
	logger.Info("speech services enabled", "base_url", cfg.ServicesURL())
	return cloud.NewHTTPClient(cfg.ServicesURL(), cfg.ServicesToken(), httpClient, logger)
}

// wire builds the editing stack on top of the already chosen generator,
// speech client and audio runner.
func (a *app) wire(tl *timeline.Timeline) error {
	a.store = timeline.NewMemory(tl, a.logger)
	a.engine = commands.NewEngine(a.store, a.logger)

	p, err := planner.New(a.gen, a.logger)
	if err != nil {
		return fmt.Errorf("failed to build planner: %w", err)
	}
	a.planner = p

	var recorder journal.Recorder
	if a.journal != nil {
		recorder = a.journal
	}

	a.tracker = subtasks.NewTracker()
	a.subtasks = subtasks.NewRunner(subtasks.Config{
		Engine:   a.engine,
		Audio:    a.audio,
		Speech:   a.speech,
		Recorder: recorder,
		Tracker:  a.tracker,
		Logger:   a.logger,
		Language: a.cfg.Language(),
	})

	var narrator session.Narrator
	if a.gen != nil {
		narrator = session.NewLLMNarrator(a.gen)
	}
	a.sessions = session.NewManager(session.Config{
		Streamer:   session.NewStreamer(p, narrator, a.speech, a.cfg.ThoughtMode(), a.cfg.ThoughtTimeout(), a.logger),
		Engine:     a.engine,
		Subtasks:   a.subtasks,
		Recorder:   recorder,
		Summarizer: session.NewSummarizer(a.gen, a.logger),
		Pacing:     a.cfg.StepPacing(),
		Logger:     a.logger,
	})
	return nil
}

// check runs the ffmpeg doctor once so status reports are populated.
func (a *app) check(ctx context.Context) {
	if a.doctor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.TimeoutDoctor())
	defer cancel()
	caps, err := a.doctor.Refresh(ctx)
	if err != nil {
		a.logger.Warn("initial doctor check failed", "error", err)
		return
	}
	a.logger.Info("ffmpeg detected", "path", caps.FFmpegPath, "version", caps.Version)
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", "error", err)
		}
	}
}
