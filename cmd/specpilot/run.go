package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"specpilot/internal/config"
	"specpilot/internal/history"
	"specpilot/internal/orchestrator"
	"specpilot/internal/phase"
	"specpilot/internal/specdir"
)

var (
	runForce    bool
	runInputDir string
)

var runCmd = &cobra.Command{
	Use:   "run <spec-id> <phase>",
	Short: "Run one pipeline phase for a spec",
	Long: `Run one phase of the pipeline for the given spec.

The phase is validated against the dependency graph: every dependency
must have at least one successful receipt. The spec is locked for the
duration of the attempt, and exactly one receipt is written whatever
the outcome.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPhase(args[0], args[1], orchestrator.StrategyRun)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <spec-id> <phase>",
	Short: "Resume the pipeline at a phase after an interruption",
	Long: `Resume the pipeline at the given phase after a crash or timeout.

Resume follows the identical validation and execution path as run: any
partial artifact left by the interrupted attempt is deleted before the
phase re-executes, never reused as if complete.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPhase(args[0], args[1], orchestrator.StrategyResume)
	},
}

func runPhase(specID, phaseName, strategy string) error {
	p, err := phase.Parse(phaseName)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	layout := specdir.New(cfg.Pipeline.Root, specID)
	if !layout.Exists() {
		return fmt.Errorf("spec %q not initialized (run 'specpilot init %s' first)", specID, specID)
	}

	if err := checkDrift(cfg, layout); err != nil {
		return err
	}

	orch, err := newOrchestrator(cfg, layout, runForce, runInputDir)
	if err != nil {
		return err
	}

	var result *orchestrator.ExecutionResult
	ctx := cmdContext()
	if strategy == orchestrator.StrategyResume {
		result, err = orch.ResumeFromPhase(ctx, p)
	} else {
		result, err = orch.RunPhase(ctx, p)
	}

	if result != nil {
		indexResult(cfg, result, orch)
	}

	if err != nil {
		if renderLockError(err) {
			return err
		}
		color.Red("phase %s failed: %v", p, err)
		return err
	}

	color.Green("phase %s completed", p)
	for _, path := range result.ArtifactPaths {
		fmt.Printf("  artifact: %s\n", path)
	}
	fmt.Printf("  receipt:  %s\n", result.ReceiptPath)
	return nil
}

// indexResult records the attempt in the history index. Indexing is
// best-effort: the receipt on disk is the record that matters.
func indexResult(cfg *config.Config, result *orchestrator.ExecutionResult, orch *orchestrator.Orchestrator) {
	if result.ReceiptPath == "" {
		return
	}
	db, err := history.Open(history.DefaultPath(cfg.Pipeline.Root))
	if err != nil {
		return
	}
	defer db.Close()

	latest, err := orch.Store().ReadLatest(result.Phase)
	if err != nil || latest == nil {
		return
	}
	db.Record(latest)
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, resumeCmd} {
		cmd.Flags().BoolVar(&runForce, "force", false, "Take over an existing lock, even from a live process")
		cmd.Flags().StringVar(&runInputDir, "input", "", "Directory packed as content for the requirements phase")
	}
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
}
