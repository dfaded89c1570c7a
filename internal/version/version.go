// Package version exposes the tool version recorded in lock files and
// printed by the version command.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var raw string

// Get returns the embedded version string, trimmed of surrounding
// whitespace.
func Get() string {
	return strings.TrimSpace(raw)
}
