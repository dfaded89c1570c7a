package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"specpilot/internal/backend"
	"specpilot/internal/config"
	"specpilot/internal/lockfile"
	"specpilot/internal/orchestrator"
	"specpilot/internal/packer"
	"specpilot/internal/pin"
	"specpilot/internal/protect"
	"specpilot/internal/receipt"
	"specpilot/internal/specdir"
)

// exitCode maps terminal errors to process exit codes. Timeout keeps
// its reserved code so callers can tell "ran and failed" from "never
// finished".
func exitCode(err error) int {
	var timeout *orchestrator.PhaseTimeoutError
	if errors.As(err, &timeout) {
		return receipt.TimeoutExitCode
	}
	return 1
}

// newExecutor builds the configured phase body executor.
func newExecutor(cfg *config.Config) (backend.Executor, error) {
	switch cfg.Backend.Kind {
	case "", "api":
		return backend.NewAPIExecutor(backend.APIConfig{
			Model:         cfg.Backend.Model,
			APIKey:        cfg.Anthropic.APIKey,
			UseAWSBedrock: cfg.Backend.UseBedrock,
			AWSRegion:     cfg.Backend.AWSRegion,
			AWSProfile:    cfg.Backend.AWSProfile,
		})
	case "cli":
		return backend.NewCLIExecutor(backend.CLIConfig{
			Command: cfg.Backend.Command,
			Model:   cfg.Backend.Model,
		})
	default:
		return nil, fmt.Errorf("unknown backend kind %q (expected api or cli)", cfg.Backend.Kind)
	}
}

// newPacker builds the content packer from configuration.
func newPacker(cfg *config.Config) (*packer.Packer, error) {
	pk := packer.New()
	if cfg.Packet.ByteBudget > 0 {
		pk.ByteBudget = cfg.Packet.ByteBudget
	}
	if cfg.Packet.LineBudget > 0 {
		pk.LineBudget = cfg.Packet.LineBudget
	}
	if cfg.Packet.PatternsFile != "" {
		pk.Scanner = protect.NewScanner()
		if err := pk.Scanner.LoadExtraPatterns(cfg.Packet.PatternsFile); err != nil {
			return nil, err
		}
	}
	return pk, nil
}

// newOrchestrator wires an orchestrator for one spec.
func newOrchestrator(cfg *config.Config, layout *specdir.Layout, force bool, inputDir string) (*orchestrator.Orchestrator, error) {
	exec, err := newExecutor(cfg)
	if err != nil {
		return nil, err
	}
	pk, err := newPacker(cfg)
	if err != nil {
		return nil, err
	}
	logger, err := orchestrator.NewDebugLogger(layout.DebugLogPath())
	if err != nil {
		logger = &orchestrator.DebugLogger{}
	}

	return orchestrator.New(orchestrator.Config{
		Layout:   layout,
		Executor: exec,
		Packer:   pk,
		InputDir: inputDir,
		Timeout:  cfg.Pipeline.Timeout,
		LockTTL:  cfg.Pipeline.LockTTL,
		Force:    force,
		Logger:   logger,
	})
}

// checkDrift loads the spec's version pin and prints any drift between
// it and the current run context. Drift never blocks a run; it is
// surfaced, not silently applied.
func checkDrift(cfg *config.Config, layout *specdir.Layout) error {
	p, err := pin.Load(layout.PinPath())
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}

	report := pin.DetectDrift(p, pin.Context{
		Model:          cfg.Backend.Model,
		BackendVersion: cfg.Backend.Version,
		SchemaVersion:  receipt.SchemaVersion,
	})
	if report != nil {
		color.Yellow("%s", report)
		color.Yellow("run 'specpilot init %s --repin' to accept the current environment", layout.SpecID)
	}
	return nil
}

// cmdContext returns a context cancelled by SIGINT/SIGTERM so an
// interrupted run still unwinds through the deferred lock release.
func cmdContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

// renderLockError renders lock errors with actionable detail.
func renderLockError(err error) bool {
	var concurrent *lockfile.ConcurrentExecutionError
	if errors.As(err, &concurrent) {
		color.Red("spec is locked: %v", concurrent)
		return true
	}
	var stale *lockfile.StaleLockError
	if errors.As(err, &stale) {
		color.Red("%v", stale)
		return true
	}
	return false
}
