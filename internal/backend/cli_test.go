//go:build unix

package backend

import (
	"context"
	"strings"
	"testing"
	"time"

	"specpilot/internal/phase"
)

func TestNewCLIExecutor_RequiresCommand(t *testing.T) {
	if _, err := NewCLIExecutor(CLIConfig{}); err == nil {
		t.Error("NewCLIExecutor() accepted an empty command")
	}
	if _, err := NewCLIExecutor(CLIConfig{Command: "definitely-not-a-real-binary"}); err == nil {
		t.Error("NewCLIExecutor() accepted a command missing from PATH")
	}
}

func TestCLIExecutor_CapturesStdoutAsArtifact(t *testing.T) {
	exec, err := NewCLIExecutor(CLIConfig{
		Command: "sh",
		Args:    []string{"-c", "cat >/dev/null; printf '# Design\\n'"},
	})
	if err != nil {
		t.Fatal(err)
	}

	partial := NewPartialBuffer()
	result, err := exec.Execute(context.Background(), Request{
		SpecID:  "demo",
		Phase:   phase.Design,
		Partial: partial,
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if len(result.Outputs) != 1 || result.Outputs[0].Name != "design.md" {
		t.Fatalf("outputs = %+v", result.Outputs)
	}
	if string(result.Outputs[0].Content) != "# Design\n" {
		t.Errorf("content = %q", result.Outputs[0].Content)
	}

	// Stdout is mirrored into the partial sink as it arrives.
	if string(partial.Bytes()) != "# Design\n" {
		t.Errorf("partial = %q", partial.Bytes())
	}
}

func TestCLIExecutor_StderrBecomesError(t *testing.T) {
	exec, err := NewCLIExecutor(CLIConfig{
		Command: "sh",
		Args:    []string{"-c", "cat >/dev/null; echo boom >&2; exit 3"},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = exec.Execute(context.Background(), Request{Phase: phase.Design})
	if err == nil {
		t.Fatal("Execute() of a failing command succeeded")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error = %v, want stderr content", err)
	}
}

func TestCLIExecutor_CancellationKillsChild(t *testing.T) {
	exec, err := NewCLIExecutor(CLIConfig{
		Command: "sh",
		Args:    []string{"-c", "sleep 60"},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = exec.Execute(ctx, Request{Phase: phase.Design})
	if err == nil {
		t.Fatal("Execute() survived cancellation")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %s, child not killed promptly", elapsed)
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(Request{Phase: phase.Review})
	if !strings.Contains(prompt, "Review the artifacts") {
		t.Errorf("prompt missing phase instruction:\n%s", prompt)
	}
	if !strings.Contains(prompt, "--- CONTENT PACKET ---") {
		t.Errorf("prompt missing packet marker:\n%s", prompt)
	}
}
