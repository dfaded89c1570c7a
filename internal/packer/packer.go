// Package packer selects and packages file content for a phase body
// under byte and line budgets, and produces the evidence block embedded
// in receipts. Evidence carries budgets and per-file hashes only, never
// raw content.
package packer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"specpilot/internal/canonical"
	"specpilot/internal/protect"
	"specpilot/internal/receipt"
)

// DefaultByteBudget bounds the total packet size.
const DefaultByteBudget = 256 * 1024

// DefaultLineBudget bounds the total packet line count.
const DefaultLineBudget = 8000

// File is one packed file.
type File struct {
	// Path is relative to the packet root.
	Path    string
	Content string
	Hash    string
	Lines   int
}

// Packet is the assembled content handed to a phase body.
type Packet struct {
	Files      []File
	TotalBytes int
	TotalLines int
	ByteBudget int
	LineBudget int
}

// Evidence returns the receipt evidence block for this packet.
func (p *Packet) Evidence() *receipt.PacketEvidence {
	ev := &receipt.PacketEvidence{
		ByteBudget: p.ByteBudget,
		LineBudget: p.LineBudget,
		TotalBytes: p.TotalBytes,
		TotalLines: p.TotalLines,
	}
	for _, f := range p.Files {
		ev.Files = append(ev.Files, receipt.OutputFile{Path: f.Path, Hash: f.Hash})
	}
	return ev
}

// Render flattens the packet into one prompt-ready string with file
// markers.
func (p *Packet) Render() string {
	var b strings.Builder
	for _, f := range p.Files {
		fmt.Fprintf(&b, "=== %s ===\n%s\n", f.Path, f.Content)
	}
	return b.String()
}

// SecretError reports that packed content matched secret patterns. The
// packet must not be sent to a backend.
type SecretError struct {
	Findings []protect.Finding
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("packet contains secret material (%d findings, first: %s)", len(e.Findings), e.Findings[0])
}

// Packer assembles packets from a root directory.
type Packer struct {
	ByteBudget int
	LineBudget int
	// Scanner blocks packets containing secret material. Nil disables
	// scanning.
	Scanner *protect.Scanner
}

// New returns a packer with default budgets and the default scanner.
func New() *Packer {
	return &Packer{
		ByteBudget: DefaultByteBudget,
		LineBudget: DefaultLineBudget,
		Scanner:    protect.NewScanner(),
	}
}

// Pack walks root and packs regular files in path order until a budget
// would be exceeded. Files that individually exceed the remaining
// budget are skipped rather than truncated, so every packed file is
// whole and its hash meaningful.
func (p *Packer) Pack(root string) (*Packet, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(paths)

	packet := &Packet{ByteBudget: p.ByteBudget, LineBudget: p.LineBudget}
	var findings []protect.Finding

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil, fmt.Errorf("relativize %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		lines := strings.Count(string(data), "\n") + 1
		if packet.TotalBytes+len(data) > p.ByteBudget || packet.TotalLines+lines > p.LineBudget {
			continue
		}

		if p.Scanner != nil {
			findings = append(findings, p.Scanner.Scan(rel, string(data))...)
		}

		packet.Files = append(packet.Files, File{
			Path:    rel,
			Content: string(data),
			Hash:    canonical.HashBytes(data),
			Lines:   lines,
		})
		packet.TotalBytes += len(data)
		packet.TotalLines += lines
	}

	if len(findings) > 0 {
		return nil, &SecretError{Findings: findings}
	}
	return packet, nil
}
