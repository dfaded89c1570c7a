package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"specpilot/internal/backend"
	"specpilot/internal/canonical"
	"specpilot/internal/fsatomic"
	"specpilot/internal/lockfile"
	"specpilot/internal/packer"
	"specpilot/internal/phase"
	"specpilot/internal/receipt"
	"specpilot/internal/specdir"
)

// Execution strategy tags recorded in receipt pipeline metadata.
const (
	StrategyRun    = "run"
	StrategyResume = "resume"
)

// Config wires an Orchestrator.
type Config struct {
	// Layout resolves the spec's on-disk paths. Required.
	Layout *specdir.Layout
	// Executor runs phase bodies. Required.
	Executor backend.Executor
	// Packer assembles content packets. Nil means packer.New().
	Packer *packer.Packer
	// InputDir is packed for the Requirements phase; later phases pack
	// the spec's artifacts directory. Empty means Requirements also
	// packs the artifacts directory.
	InputDir string
	// Timeout bounds one phase execution; clamped to the supervisor's
	// bounds, zero means the default.
	Timeout time.Duration
	// LockTTL is the lock staleness threshold; zero means the default.
	LockTTL time.Duration
	// Force takes over an existing lock.
	Force bool
	// Logger receives debug output. Nil means no-op.
	Logger *DebugLogger
}

// ExecutionResult is the terminal outcome of one phase attempt. Every
// attempt produces exactly one result and one receipt.
type ExecutionResult struct {
	Success       bool
	ExitCode      int
	Phase         phase.ID
	ArtifactPaths []string
	ReceiptPath   string
	Err           error
}

// Orchestrator drives phase execution for one spec. It holds no
// authoritative in-memory state: every query re-derives from the
// receipt store, which is what makes runs resumable across process
// restarts.
type Orchestrator struct {
	layout   *specdir.Layout
	store    *receipt.Store
	graph    *phase.Graph
	locks    *lockfile.Manager
	executor backend.Executor
	packer   *packer.Packer
	inputDir string
	timeout  time.Duration
	lockTTL  time.Duration
	force    bool
	logger   *DebugLogger
}

// New creates an orchestrator for one spec.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Layout == nil {
		return nil, fmt.Errorf("layout is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}

	pk := cfg.Packer
	if pk == nil {
		pk = packer.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &DebugLogger{}
	}

	return &Orchestrator{
		layout:   cfg.Layout,
		store:    receipt.NewStore(cfg.Layout.ReceiptsDir()),
		graph:    phase.NewGraph(),
		locks:    lockfile.NewManager(),
		executor: cfg.Executor,
		packer:   pk,
		inputDir: cfg.InputDir,
		timeout:  ClampTimeout(cfg.Timeout),
		lockTTL:  cfg.LockTTL,
		force:    cfg.Force,
		logger:   logger,
	}, nil
}

// Store exposes the receipt store for read-only callers.
func (o *Orchestrator) Store() *receipt.Store { return o.store }

// LockManager exposes the lock manager for read-only status queries.
func (o *Orchestrator) LockManager() *lockfile.Manager { return o.locks }

// RunPhase validates, locks, and executes one phase attempt.
func (o *Orchestrator) RunPhase(ctx context.Context, p phase.ID) (*ExecutionResult, error) {
	return o.execute(ctx, p, StrategyRun)
}

// ResumeFromPhase re-enters the pipeline after an interruption. It is
// the identical code path as RunPhase; dependency validation and
// partial-artifact cleanup make resumption safe without special cases.
func (o *Orchestrator) ResumeFromPhase(ctx context.Context, p phase.ID) (*ExecutionResult, error) {
	return o.execute(ctx, p, StrategyResume)
}

// CanRunPhase reports whether p is a legal transition right now. Never
// takes the lock.
func (o *Orchestrator) CanRunPhase(p phase.ID) (bool, error) {
	completed, err := o.store.CompletedPhases()
	if err != nil {
		return false, err
	}
	ok, _ := o.graph.Check(p, completed)
	return ok, nil
}

// LegalNextPhases returns the phases now runnable. Never takes the
// lock.
func (o *Orchestrator) LegalNextPhases() ([]phase.ID, error) {
	completed, err := o.store.CompletedPhases()
	if err != nil {
		return nil, err
	}
	return o.graph.LegalNext(completed), nil
}

// CurrentPhase returns the highest dependency-order phase with a
// successful receipt.
func (o *Orchestrator) CurrentPhase() (phase.ID, bool, error) {
	return o.store.CurrentPhase()
}

// execute is the single path shared by run and resume.
func (o *Orchestrator) execute(ctx context.Context, p phase.ID, strategy string) (*ExecutionResult, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid phase %d", int(p))
	}

	runID := uuid.New().String()
	o.logger.Log("[%s] %s %s starting (run %s)", o.layout.SpecID, strategy, p, runID)

	if err := o.validateTransition(p); err != nil {
		var notSatisfied *DependencyNotSatisfiedError
		var depFailed *DependencyFailedError
		if errors.As(err, &notSatisfied) || errors.As(err, &depFailed) {
			return o.finishBlocked(p, runID, strategy, err)
		}
		// State could not be derived at all (corrupt receipt); nothing
		// was attempted, so nothing is recorded.
		return nil, err
	}

	// A partial from a previous interrupted attempt must never be
	// reused as if complete.
	if err := o.removePartial(p); err != nil {
		return nil, err
	}

	handle, err := o.locks.Acquire(o.layout.LockPath(), o.layout.SpecID, lockfile.Options{
		Force: o.force,
		TTL:   o.lockTTL,
	})
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	if handle.TookOverLiveOwner() {
		o.logger.Log("[%s] WARNING: forced takeover of a live lock", o.layout.SpecID)
	}

	packet, err := o.buildPacket(p)
	if err != nil {
		return nil, fmt.Errorf("phase %s: %w", p, err)
	}

	partial := backend.NewPartialBuffer()
	req := backend.Request{
		SpecID:  o.layout.SpecID,
		Phase:   p,
		Packet:  packet,
		Partial: partial,
	}

	out := supervise(ctx, o.executor, req, o.timeout)

	meta := receipt.BackendMeta{Provider: o.executor.Name()}
	if out.result != nil {
		meta = out.result.Meta
	}

	base := receipt.Receipt{
		SchemaVersion: receipt.SchemaVersion,
		SpecID:        o.layout.SpecID,
		Phase:         p.String(),
		Evidence:      packet.Evidence(),
		Backend:       &meta,
		Pipeline: receipt.PipelineMeta{
			RunID:     runID,
			Strategy:  strategy,
			ElapsedMS: out.elapsed.Milliseconds(),
		},
	}

	switch {
	case out.timedOut:
		return o.finishTimeout(p, base, partial)
	case out.err != nil:
		return o.finishFailure(p, base, out.err)
	default:
		return o.finishSuccess(p, base, out.result)
	}
}

// validateTransition applies the phase graph against the receipt
// store. A failed dependency blocks identically to a missing one but
// the error names the failing phase and its exit code.
func (o *Orchestrator) validateTransition(p phase.ID) error {
	completed, err := o.store.CompletedPhases()
	if err != nil {
		return err
	}

	ok, missing := o.graph.Check(p, completed)
	if ok {
		return nil
	}

	for _, dep := range missing {
		latest, err := o.store.ReadLatest(dep)
		if err != nil {
			return err
		}
		// A blocked receipt means the dependency was never actually
		// attempted; it does not count as a failure of the phase body.
		if latest != nil && !latest.Success() && latest.ErrorClass != receipt.ErrClassBlocked {
			return &DependencyFailedError{Phase: p, Dep: dep, ExitCode: latest.ExitCode}
		}
	}
	return &DependencyNotSatisfiedError{Phase: p, Missing: missing}
}

// finishBlocked writes the receipt for an attempt rejected by the
// transition check. A blocked attempt is a terminal outcome like any
// other and leaves a trace; the failed receipt never affects state
// derivation, which latches successes only.
func (o *Orchestrator) finishBlocked(p phase.ID, runID, strategy string, cause error) (*ExecutionResult, error) {
	rec := receipt.Receipt{
		SchemaVersion: receipt.SchemaVersion,
		SpecID:        o.layout.SpecID,
		Phase:         p.String(),
		ExitCode:      1,
		ErrorClass:    receipt.ErrClassBlocked,
		ErrorReason:   cause.Error(),
		Pipeline:      receipt.PipelineMeta{RunID: runID, Strategy: strategy},
	}

	receiptPath, err := o.store.Write(&rec)
	if err != nil {
		return nil, err
	}

	o.logger.Log("[%s] %s blocked: %v", o.layout.SpecID, p, cause)
	return &ExecutionResult{
		ExitCode:    1,
		Phase:       p,
		ReceiptPath: receiptPath,
		Err:         cause,
	}, cause
}

// buildPacket assembles the content packet for p. Requirements packs
// the configured input directory; later phases pack accumulated
// artifacts.
func (o *Orchestrator) buildPacket(p phase.ID) (*packer.Packet, error) {
	source := o.layout.ArtifactsDir()
	if p == phase.Requirements && o.inputDir != "" {
		source = o.inputDir
	}
	if _, err := os.Stat(source); os.IsNotExist(err) {
		return &packer.Packet{ByteBudget: o.packer.ByteBudget, LineBudget: o.packer.LineBudget}, nil
	}
	return o.packer.Pack(source)
}

// removePartial deletes the partial artifact for p if one exists.
func (o *Orchestrator) removePartial(p phase.ID) error {
	path := o.layout.PartialPath(backend.ArtifactName(p))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove partial artifact: %w", err)
	}
	return nil
}

// finishSuccess persists outputs, removes any partial, and writes the
// success receipt.
func (o *Orchestrator) finishSuccess(p phase.ID, base receipt.Receipt, result *backend.Result) (*ExecutionResult, error) {
	var paths []string
	for _, output := range result.Outputs {
		path := filepath.Join(o.layout.ArtifactsDir(), output.Name)
		if _, err := fsatomic.WriteFile(path, output.Content, 0644); err != nil {
			return nil, fmt.Errorf("write artifact %s: %w", output.Name, err)
		}
		paths = append(paths, path)
		base.OutputFiles = append(base.OutputFiles, receipt.OutputFile{
			Path: output.Name,
			Hash: canonical.HashBytes(output.Content),
		})
	}

	if err := o.removePartial(p); err != nil {
		return nil, err
	}

	base.ExitCode = 0
	base.Warnings = append(base.Warnings, result.Warnings...)

	receiptPath, err := o.store.Write(&base)
	if err != nil {
		return nil, err
	}

	o.logger.Log("[%s] %s succeeded, receipt %s", o.layout.SpecID, p, receiptPath)
	return &ExecutionResult{
		Success:       true,
		ExitCode:      0,
		Phase:         p,
		ArtifactPaths: paths,
		ReceiptPath:   receiptPath,
	}, nil
}

// finishFailure writes the failure receipt and propagates the backend
// error tagged with the phase.
func (o *Orchestrator) finishFailure(p phase.ID, base receipt.Receipt, cause error) (*ExecutionResult, error) {
	base.ExitCode = 1
	base.ErrorClass = receipt.ErrClassBackend
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		base.ErrorClass = receipt.ErrClassCancelled
	}
	base.ErrorReason = cause.Error()

	receiptPath, err := o.store.Write(&base)
	if err != nil {
		return nil, err
	}

	o.logger.Log("[%s] %s failed: %v", o.layout.SpecID, p, cause)
	wrapped := fmt.Errorf("phase %s: %w", p, cause)
	return &ExecutionResult{
		ExitCode:    1,
		Phase:       p,
		ReceiptPath: receiptPath,
		Err:         wrapped,
	}, wrapped
}

// finishTimeout persists the partial output, writes the timeout
// receipt with the reserved exit code, and propagates the timeout. The
// partial file is written even when the body produced nothing: its
// presence is the durable signal of an interrupted attempt that status
// surfaces and the next attempt cleans up. The deferred lock release
// still runs normally.
func (o *Orchestrator) finishTimeout(p phase.ID, base receipt.Receipt, partial *backend.PartialBuffer) (*ExecutionResult, error) {
	path := o.layout.PartialPath(backend.ArtifactName(p))
	if _, err := fsatomic.WriteFile(path, partial.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("persist partial artifact: %w", err)
	}
	o.logger.Log("[%s] %s persisted %d partial bytes", o.layout.SpecID, p, partial.Len())

	base.ExitCode = receipt.TimeoutExitCode
	base.ErrorClass = receipt.ErrClassTimeout
	base.ErrorReason = fmt.Sprintf("phase did not complete within %s", o.timeout)
	base.Warnings = append(base.Warnings, fmt.Sprintf("configured timeout: %s", o.timeout))
	if base.Backend != nil {
		base.Backend.TimedOut = true
	}

	receiptPath, err := o.store.Write(&base)
	if err != nil {
		return nil, err
	}

	o.logger.Log("[%s] %s timed out after %s", o.layout.SpecID, p, o.timeout)
	timeoutErr := &PhaseTimeoutError{Phase: p, Limit: o.timeout}
	return &ExecutionResult{
		ExitCode:    receipt.TimeoutExitCode,
		Phase:       p,
		ReceiptPath: receiptPath,
		Err:         timeoutErr,
	}, timeoutErr
}
