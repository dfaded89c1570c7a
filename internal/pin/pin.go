// Package pin persists the version pin for a spec: the model, backend
// version, and receipt schema version captured at initialization. Each
// run compares its context against the pin and surfaces drift; a pin is
// never updated implicitly.
package pin

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"specpilot/internal/fsatomic"
	"specpilot/internal/receipt"
)

// Pin is the long-lived record written at spec initialization.
type Pin struct {
	Model          string `yaml:"model"`
	BackendVersion string `yaml:"backend_version"`
	SchemaVersion  int    `yaml:"schema_version"`
}

// FieldDrift is one pinned field that differs from the run context.
type FieldDrift struct {
	Field   string
	Locked  string
	Current string
}

// DriftReport lists the pinned fields that differ from the current run
// context. A nil report means no drift.
type DriftReport struct {
	Fields []FieldDrift
}

func (d *DriftReport) String() string {
	s := "version drift detected:"
	for _, f := range d.Fields {
		s += fmt.Sprintf("\n  %s: locked %q, current %q", f.Field, f.Locked, f.Current)
	}
	return s
}

// CorruptPinError reports a pin file that exists but is unreadable or
// structurally incomplete. This is fatal, never treated as "no pin".
type CorruptPinError struct {
	Path string
	Err  error
}

func (e *CorruptPinError) Error() string {
	return fmt.Sprintf("corrupt version pin %s: %v", e.Path, e.Err)
}

func (e *CorruptPinError) Unwrap() error { return e.Err }

// Save writes the pin for the given model and backend version,
// overwriting any prior pin. The schema version is stamped from the
// current receipt schema.
func Save(path, model, backendVersion string) (*Pin, error) {
	p := &Pin{
		Model:          model,
		BackendVersion: backendVersion,
		SchemaVersion:  receipt.SchemaVersion,
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode version pin: %w", err)
	}
	if _, err := fsatomic.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("write version pin: %w", err)
	}
	return p, nil
}

// Load reads the pin at path. Returns nil with no error when no pin has
// been written yet; a present-but-corrupt pin is a CorruptPinError.
func Load(path string) (*Pin, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read version pin: %w", err)
	}

	var p Pin
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, &CorruptPinError{Path: path, Err: err}
	}
	if p.Model == "" || p.BackendVersion == "" || p.SchemaVersion == 0 {
		return nil, &CorruptPinError{Path: path, Err: fmt.Errorf("missing required fields")}
	}
	return &p, nil
}

// Context is the run-time environment compared against a pin.
type Context struct {
	Model          string
	BackendVersion string
	SchemaVersion  int
}

// DetectDrift compares each pinned field against the run context
// independently and reports only the fields that differ. Returns nil
// when everything matches.
func DetectDrift(p *Pin, current Context) *DriftReport {
	var fields []FieldDrift
	if p.Model != current.Model {
		fields = append(fields, FieldDrift{Field: "model", Locked: p.Model, Current: current.Model})
	}
	if p.BackendVersion != current.BackendVersion {
		fields = append(fields, FieldDrift{Field: "backend_version", Locked: p.BackendVersion, Current: current.BackendVersion})
	}
	if p.SchemaVersion != current.SchemaVersion {
		fields = append(fields, FieldDrift{
			Field:   "schema_version",
			Locked:  fmt.Sprintf("%d", p.SchemaVersion),
			Current: fmt.Sprintf("%d", current.SchemaVersion),
		})
	}
	if len(fields) == 0 {
		return nil
	}
	return &DriftReport{Fields: fields}
}
