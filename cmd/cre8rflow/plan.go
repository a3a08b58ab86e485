package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/config"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/logging"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/planner"
	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/timeline"
)

var planOpts struct {
	prompt   string
	timeline string
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the instruction plan for a prompt",
	Long: `Plan a prompt and print the resulting instructions as JSON without
touching any timeline. With --timeline the plan is made against that
timeline's metadata.`,
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

		if planOpts.timeline != "" {
			tl, err := timeline.ReadFile(planOpts.timeline)
			if err != nil {
				return fmt.Errorf("failed to read timeline: %w", err)
			}
			if err := a.store.Load(tl); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runPlan(ctx, a, planOpts.prompt, cmd.OutOrStdout())
	},
}

func init() {
	planCmd.Flags().StringVar(&planOpts.prompt, "prompt", "", "editing prompt (required)")
	planCmd.Flags().StringVar(&planOpts.timeline, "timeline", "", "timeline JSON used as planning context")
	planCmd.MarkFlagRequired("prompt")
}

func runPlan(ctx context.Context, a *app, prompt string, out io.Writer) error {
	plan, err := a.planner.Plan(ctx, prompt, planner.MetadataFrom(a.store.Snapshot()))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
