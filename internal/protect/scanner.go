// Package protect scans packed content for secret material before it
// is handed to an execution backend. Findings block the packet; raw
// secret values are never echoed back, only their location and kind.
package protect

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Finding reports one secret-pattern hit.
type Finding struct {
	// File is the packet-relative path of the offending file.
	File string
	// Line is the 1-based line number of the hit.
	Line int
	// Kind names the matched pattern.
	Kind string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s:%d: %s", f.File, f.Line, f.Kind)
}

// pattern pairs a name with its compiled expression.
type pattern struct {
	kind string
	re   *regexp.Regexp
}

// defaultPatterns covers the credential shapes most likely to leak
// through file content.
var defaultPatterns = []pattern{
	{"anthropic api key", regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`)},
	{"aws access key id", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"github token", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{"private key block", regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH |DSA |PGP )?PRIVATE KEY-----`)},
	{"generic assigned secret", regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)\s*[:=]\s*['"][^'"]{16,}['"]`)},
	{"slack token", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)},
}

// Scanner checks content against the default patterns plus any extras
// loaded from configuration.
type Scanner struct {
	patterns []pattern
}

// NewScanner returns a scanner with the default pattern set.
func NewScanner() *Scanner {
	return &Scanner{patterns: defaultPatterns}
}

// extraConfig is the YAML shape for user-supplied patterns.
type extraConfig struct {
	Patterns []struct {
		Kind  string `yaml:"kind"`
		Regex string `yaml:"regex"`
	} `yaml:"patterns"`
}

// LoadExtraPatterns adds patterns from a YAML file of the form:
//
//	patterns:
//	  - kind: internal token
//	    regex: 'itk_[a-z0-9]{32}'
//
// A missing file is not an error.
func (s *Scanner) LoadExtraPatterns(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read patterns file: %w", err)
	}

	var cfg extraConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse patterns file %s: %w", path, err)
	}

	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return fmt.Errorf("compile pattern %q: %w", p.Kind, err)
		}
		s.patterns = append(s.patterns, pattern{kind: p.Kind, re: re})
	}
	return nil
}

// Scan checks one file's content and returns all findings.
func (s *Scanner) Scan(file, content string) []Finding {
	var findings []Finding
	for i, line := range strings.Split(content, "\n") {
		for _, p := range s.patterns {
			if p.re.MatchString(line) {
				findings = append(findings, Finding{File: file, Line: i + 1, Kind: p.kind})
			}
		}
	}
	return findings
}
