package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/api"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/config"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/ui"
)

var serveTimeline string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent with its local HTTP API",
	Long: `Run the agent: the loopback HTTP API, the session journal and, unless
CRE8R_HEADLESS is set, the system tray.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveTimeline, "timeline", "", "timeline JSON to load at startup")
}

func runServe() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, logCloser, err := logging.NewFileLogger(cfg.LogLevel(), cfg.LogFile())
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logger.Info("starting cre8rflow agent", "version", Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	a, err := newApp(cfg, logger, appOptions{journal: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if serveTimeline != "" {
		tl, err := timeline.ReadFile(serveTimeline)
		if err != nil {
			return fmt.Errorf("failed to read timeline: %w", err)
		}
		if err := a.store.Load(tl); err != nil {
			return err
		}
	}

	authToken, err := a.journal.EnsureAuthToken(context.Background())
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}
	printBanner(os.Stdout, cfg.Port(), authToken)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.check(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:            cfg.Port(),
		Store:           a.store,
		Planner:         a.planner,
		Sessions:        a.sessions,
		Journal:         a.journal,
		Tracker:         a.tracker,
		Doctor:          a.doctor,
		LLMEnabled:      a.gen != nil,
		ServicesEnabled: a.speech.Enabled(),
		Logger:          logger,
		StartTime:       startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Store:   a.store,
			Tracker: a.tracker,
			Logger:  logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := a.tracker.WaitIdle(shutdownCtx); err != nil {
		logger.Warn("background edits still running at shutdown", "pending", a.tracker.Pending())
	}

	logger.Info("shutdown complete")
	return nil
}

func printBanner(w io.Writer, port int, token string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "+-----------------------------------------------------------------------------+")
	fmt.Fprintf(w, "|  cre8rflow agent v%-58s|\n", Version)
	fmt.Fprintf(w, "|  API URL:    http://127.0.0.1:%-46d|\n", port)
	fmt.Fprintf(w, "|  Auth Token: %-64s|\n", token)
	fmt.Fprintln(w, "+-----------------------------------------------------------------------------+")
	fmt.Fprintln(w)
}
