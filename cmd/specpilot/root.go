package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "specpilot",
	Short: "Durable phase pipeline driver for spec-driven content generation",
	Long: `Specpilot drives a six-phase content-generation pipeline
(requirements, design, tasks, review, fixup, final) for each spec,
with crash-safe resumable progression recorded on the filesystem.

Every phase attempt leaves an immutable receipt; pipeline state is
always re-derived from those receipts, so a killed process can resume
exactly where it stopped. Per-spec lock files prevent two processes
from racing on the same spec.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
