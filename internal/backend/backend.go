// Package backend provides the phase body executors: the collaborators
// that actually produce phase artifacts from a content packet, either
// through the Anthropic API or by driving an external CLI tool.
package backend

import (
	"bytes"
	"context"
	"sync"

	"specpilot/internal/packer"
	"specpilot/internal/phase"
	"specpilot/internal/receipt"
)

// Output is one artifact produced by a phase body. Name is the artifact
// file name relative to the spec's artifacts directory.
type Output struct {
	Name    string
	Content []byte
}

// Result is the successful outcome of one phase body invocation.
type Result struct {
	Outputs  []Output
	Meta     receipt.BackendMeta
	Warnings []string
}

// Request describes one phase body invocation.
type Request struct {
	SpecID string
	Phase  phase.ID
	// Packet is the content packet assembled for this phase.
	Packet *packer.Packet
	// Partial collects incremental output so the timeout supervisor can
	// persist whatever exists when an attempt is cut short.
	Partial *PartialBuffer
}

// Executor runs one phase body. Implementations must observe ctx
// cancellation promptly and, when they own subprocesses, terminate the
// entire descendant process tree on cancellation.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
	// Name identifies the provider recorded in receipt backend metadata.
	Name() string
}

// PartialBuffer is a concurrency-safe sink for incremental phase
// output.
type PartialBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewPartialBuffer returns an empty partial buffer.
func NewPartialBuffer() *PartialBuffer {
	return &PartialBuffer{}
}

// Write appends to the buffer. Implements io.Writer.
func (b *PartialBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Bytes returns a copy of the buffered output.
func (b *PartialBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

// Len returns the buffered byte count.
func (b *PartialBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// ArtifactName returns the conventional artifact file name for a phase.
func ArtifactName(p phase.ID) string {
	return p.String() + ".md"
}
