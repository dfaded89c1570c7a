// Package receipt provides the append-only record of phase-execution
// attempts. Receipts are the sole source of truth for pipeline state:
// one immutable file per attempt, current state derived by scanning.
package receipt

import (
	"sort"
	"time"

	"specpilot/internal/phase"
)

// SchemaVersion is the current receipt schema version, stamped into
// every receipt and compared against the version pin.
const SchemaVersion = 1

// Error classifications recorded in receipts.
const (
	// ErrClassTimeout marks an attempt killed by the timeout supervisor.
	ErrClassTimeout = "timeout"
	// ErrClassBackend marks a failure reported by the phase body.
	ErrClassBackend = "backend"
	// ErrClassCancelled marks an attempt cancelled by the caller.
	ErrClassCancelled = "cancelled"
	// ErrClassBlocked marks an attempt rejected by the transition check
	// before the phase body ran.
	ErrClassBlocked = "blocked"
)

// TimeoutExitCode is the reserved exit code for timed-out attempts so
// callers can tell "ran and failed" from "never finished". It matches
// the code GNU timeout uses.
const TimeoutExitCode = 124

// OutputFile records one file produced by a phase attempt.
type OutputFile struct {
	// Path is relative to the spec's artifacts directory.
	Path string `json:"path"`
	// Hash is the hex SHA-256 digest of the file content.
	Hash string `json:"hash"`
}

// PacketEvidence describes the content packet the phase body consumed.
// Only budgets and hashes are recorded, never raw content.
type PacketEvidence struct {
	ByteBudget int          `json:"byte_budget"`
	LineBudget int          `json:"line_budget"`
	TotalBytes int          `json:"total_bytes"`
	TotalLines int          `json:"total_lines"`
	Files      []OutputFile `json:"files"`
}

// BackendMeta records execution-backend details for one attempt.
type BackendMeta struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TimedOut     bool   `json:"timed_out"`
}

// PipelineMeta records orchestration details for one attempt.
type PipelineMeta struct {
	// RunID uniquely identifies the orchestrator invocation.
	RunID string `json:"run_id"`
	// Strategy tags the execution strategy used (e.g. "run", "resume").
	Strategy string `json:"strategy"`
	// ElapsedMS is the supervised execution time in milliseconds. Zero
	// for attempts rejected before the phase body ran.
	ElapsedMS int64 `json:"elapsed_ms"`
}

// Receipt is the immutable record of one execution attempt of one phase
// for one spec. Created exactly once at the end of an attempt and never
// mutated after write.
type Receipt struct {
	SchemaVersion int             `json:"schema_version"`
	EmittedAt     time.Time       `json:"emitted_at"`
	SpecID        string          `json:"spec_id"`
	Phase         string          `json:"phase"`
	ExitCode      int             `json:"exit_code"`
	ErrorClass    string          `json:"error_class,omitempty"`
	ErrorReason   string          `json:"error_reason,omitempty"`
	OutputFiles   []OutputFile    `json:"output_files"`
	Evidence      *PacketEvidence `json:"evidence,omitempty"`
	Backend       *BackendMeta    `json:"backend,omitempty"`
	Pipeline      PipelineMeta    `json:"pipeline"`
	Warnings      []string        `json:"warnings,omitempty"`
}

// Success reports whether this attempt completed with exit code zero.
func (r *Receipt) Success() bool {
	return r.ExitCode == 0
}

// PhaseID returns the parsed phase, or an error for a receipt naming an
// unknown phase.
func (r *Receipt) PhaseID() (phase.ID, error) {
	return phase.Parse(r.Phase)
}

// normalize puts embedded arrays into their stable sort order so that
// byte-identical inputs produce byte-identical receipts regardless of
// the order operations happened to run in.
func (r *Receipt) normalize() {
	sort.Slice(r.OutputFiles, func(i, j int) bool {
		return r.OutputFiles[i].Path < r.OutputFiles[j].Path
	})
	if r.Evidence != nil {
		sort.Slice(r.Evidence.Files, func(i, j int) bool {
			return r.Evidence.Files[i].Path < r.Evidence.Files[j].Path
		})
	}
	sort.Strings(r.Warnings)
}
