package pin

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"specpilot/internal/receipt"
)

func TestSaveLoad_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pin.yaml")

	saved, err := Save(path, "haiku", "0.8.1")
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if saved.SchemaVersion != receipt.SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", saved.SchemaVersion, receipt.SchemaVersion)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load() = nil for a written pin")
	}
	if *loaded != *saved {
		t.Errorf("Load() = %+v, want %+v", loaded, saved)
	}
}

func TestLoad_MissingIsNotAnError(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "pin.yaml"))
	if err != nil {
		t.Fatalf("Load() of missing pin error: %v", err)
	}
	if p != nil {
		t.Errorf("Load() of missing pin = %+v, want nil", p)
	}
}

func TestLoad_CorruptIsHardError(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not yaml", "{{{{"},
		{"structurally incomplete", "model: haiku\n"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pin.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			_, err := Load(path)
			var corrupt *CorruptPinError
			if !errors.As(err, &corrupt) {
				t.Fatalf("Load() error = %v, want CorruptPinError", err)
			}
		})
	}
}

func TestSave_OverwritesPriorPin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pin.yaml")

	if _, err := Save(path, "haiku", "0.8.1"); err != nil {
		t.Fatal(err)
	}
	if _, err := Save(path, "sonnet", "0.9.0"); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Model != "sonnet" || loaded.BackendVersion != "0.9.0" {
		t.Errorf("Load() after re-pin = %+v", loaded)
	}
}

func TestDetectDrift(t *testing.T) {
	base := &Pin{Model: "haiku", BackendVersion: "0.8.1", SchemaVersion: receipt.SchemaVersion}

	tests := []struct {
		name       string
		current    Context
		wantFields []string
	}{
		{
			name:    "identical context",
			current: Context{Model: "haiku", BackendVersion: "0.8.1", SchemaVersion: receipt.SchemaVersion},
		},
		{
			name:       "model drift only",
			current:    Context{Model: "sonnet", BackendVersion: "0.8.1", SchemaVersion: receipt.SchemaVersion},
			wantFields: []string{"model"},
		},
		{
			name:       "backend drift only",
			current:    Context{Model: "haiku", BackendVersion: "0.9.0", SchemaVersion: receipt.SchemaVersion},
			wantFields: []string{"backend_version"},
		},
		{
			name:       "all fields drift",
			current:    Context{Model: "sonnet", BackendVersion: "0.9.0", SchemaVersion: receipt.SchemaVersion + 1},
			wantFields: []string{"model", "backend_version", "schema_version"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := DetectDrift(base, tt.current)
			if len(tt.wantFields) == 0 {
				if report != nil {
					t.Fatalf("DetectDrift() = %+v, want nil", report)
				}
				return
			}
			if report == nil {
				t.Fatalf("DetectDrift() = nil, want fields %v", tt.wantFields)
			}
			if len(report.Fields) != len(tt.wantFields) {
				t.Fatalf("drift fields = %+v, want %v", report.Fields, tt.wantFields)
			}
			for i, f := range report.Fields {
				if f.Field != tt.wantFields[i] {
					t.Errorf("field[%d] = %s, want %s", i, f.Field, tt.wantFields[i])
				}
			}
		})
	}
}

func TestDetectDrift_ReportsLockedAndCurrent(t *testing.T) {
	base := &Pin{Model: "haiku", BackendVersion: "0.8.1", SchemaVersion: receipt.SchemaVersion}
	report := DetectDrift(base, Context{Model: "sonnet", BackendVersion: "0.8.1", SchemaVersion: receipt.SchemaVersion})
	if report == nil {
		t.Fatal("DetectDrift() = nil")
	}
	f := report.Fields[0]
	if f.Locked != "haiku" || f.Current != "sonnet" {
		t.Errorf("drift pair = (%s, %s), want (haiku, sonnet)", f.Locked, f.Current)
	}
}
