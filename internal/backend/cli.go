package backend

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"specpilot/internal/receipt"
)

// CLIConfig configures the subprocess executor.
type CLIConfig struct {
	// Command is the executable to run. Required.
	Command string
	// Args are passed before the prompt flag.
	Args []string
	// Model is forwarded with --model when non-empty and recorded in
	// backend metadata.
	Model string
}

// CLIExecutor runs phase bodies by spawning an external command and
// feeding it the prompt on stdin. The child is started in its own
// process group; cancellation kills the whole group so no grandchild
// outlives a timeout.
type CLIExecutor struct {
	cfg CLIConfig
}

// NewCLIExecutor creates a subprocess executor.
func NewCLIExecutor(cfg CLIConfig) (*CLIExecutor, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("command is required")
	}
	if _, err := exec.LookPath(cfg.Command); err != nil {
		return nil, fmt.Errorf("%s not found in PATH: %w", cfg.Command, err)
	}
	return &CLIExecutor{cfg: cfg}, nil
}

// Name implements Executor.
func (e *CLIExecutor) Name() string { return "cli:" + e.cfg.Command }

// Execute implements Executor. Stdout is teed into the request's
// partial sink as it arrives, so a timeout preserves everything the
// child printed before it was killed.
func (e *CLIExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	args := append([]string(nil), e.cfg.Args...)
	if e.cfg.Model != "" {
		args = append(args, "--model", e.cfg.Model)
	}

	cmd := exec.Command(e.cfg.Command, args...)
	cmd.Stdin = strings.NewReader(BuildPrompt(req))
	setProcessGroup(cmd)

	var stdout strings.Builder
	if req.Partial != nil {
		cmd.Stdout = teeWriter{&stdout, req.Partial}
	} else {
		cmd.Stdout = &stdout
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", e.cfg.Command, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		// Kill the entire process group, not just the direct child.
		killProcessGroup(cmd)
		<-done
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			return nil, fmt.Errorf("%s failed: %s", e.cfg.Command, msg)
		}
	}

	result := &Result{
		Outputs: []Output{
			{Name: ArtifactName(req.Phase), Content: []byte(stdout.String())},
		},
		Meta: receipt.BackendMeta{
			Provider: e.Name(),
			Model:    e.cfg.Model,
		},
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		result.Warnings = append(result.Warnings, "stderr: "+msg)
	}
	return result, nil
}

// teeWriter duplicates writes to two sinks.
type teeWriter struct {
	primary   *strings.Builder
	secondary *PartialBuffer
}

func (t teeWriter) Write(p []byte) (int, error) {
	t.secondary.Write(p)
	return t.primary.Write(p)
}
