package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/config"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/export"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/session"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

type editOptions struct {
	timeline string
	prompt   string
	out      string
	edlDir   string
	frames   bool
}

var editOpts editOptions

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Run a prompt against a timeline file",
	Long: `Run one full editing session against a timeline JSON file and write the
edited timeline back (or to --out). Background caption and silence edits
are waited for before the file is written.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger := logging.NewWriterLogger(cfg.LogLevel(), os.Stderr)

		a, err := newApp(cfg, logger, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()
		a.check(cmd.Context())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		_, err = runEdit(ctx, a, editOpts, cmd.OutOrStdout())
		return err
	},
}

func init() {
	editCmd.Flags().StringVar(&editOpts.timeline, "timeline", "", "timeline JSON file (required)")
	editCmd.Flags().StringVar(&editOpts.prompt, "prompt", "", "editing prompt (required)")
	editCmd.Flags().StringVar(&editOpts.out, "out", "", "write the edited timeline here instead of overwriting --timeline")
	editCmd.Flags().StringVar(&editOpts.edlDir, "edl-dir", "", "also export a CMX3600 EDL into this directory")
	editCmd.Flags().BoolVar(&editOpts.frames, "frames", false, "print every NDJSON frame instead of only the summary")
	editCmd.MarkFlagRequired("timeline")
	editCmd.MarkFlagRequired("prompt")
}

func runEdit(ctx context.Context, a *app, opts editOptions, stdout io.Writer) (*session.Result, error) {
	tl, err := timeline.ReadFile(opts.timeline)
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline: %w", err)
	}
	if err := a.store.Load(tl); err != nil {
		return nil, err
	}

	var emitter session.Emitter = session.EmitterFunc(func(f session.Frame) error {
		switch f.Event {
		case session.EventError:
			fmt.Fprintf(stdout, "error (%s): %s\n", f.Code, f.Message)
		case session.EventLog:
			fmt.Fprintln(stdout, f.Message)
		}
		return nil
	})
	if opts.frames {
		emitter = session.NewNDJSONWriter(stdout)
	}

	res, err := a.sessions.Run(ctx, opts.prompt, emitter)
	if err != nil {
		return res, err
	}
	if err := a.tracker.WaitIdle(ctx); err != nil {
		return res, fmt.Errorf("waiting for background edits: %w", err)
	}

	out := opts.out
	if out == "" {
		out = opts.timeline
	}
	if err := timeline.WriteFile(out, a.store.Snapshot()); err != nil {
		return res, fmt.Errorf("failed to write timeline: %w", err)
	}
	a.logger.Info("timeline written", "path", logging.SanitizePath(out), "applied", res.Applied())

	if !opts.frames {
		fmt.Fprintln(stdout, res.Summary)
	}

	if opts.edlDir != "" {
		title := strings.TrimSuffix(filepath.Base(out), filepath.Ext(out))
		exp, err := export.Write(opts.edlDir, title, a.store.Snapshot())
		if err != nil {
			return res, fmt.Errorf("failed to export EDL: %w", err)
		}
		if !opts.frames {
			fmt.Fprintf(stdout, "EDL written to %s (%d events)\n", exp.Path, exp.EventCount)
		}
	}
	return res, nil
}
