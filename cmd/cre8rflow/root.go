package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cre8rflow/cre8rflow-v4-sub000/internal/config"
)

var Version = "0.4.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "cre8rflow",
	Short: "Prompt-driven timeline editing agent",
	Long: `cre8rflow turns natural-language editing prompts into timeline edits.
It plans a prompt into instructions, applies trims and cut-outs to the
timeline and runs caption and silence-removal edits in the background.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			return os.Setenv(config.EnvConfigFile, configFile)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "CUE config overlay (overrides "+config.EnvConfigFile+")")
	rootCmd.Version = Version
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(editCmd)
}
