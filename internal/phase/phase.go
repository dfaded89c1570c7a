// Package phase defines the six pipeline phases and their dependency rules.
package phase

import "fmt"

// ID identifies one pipeline phase.
type ID int

const (
	// Requirements is the first phase; it has no dependencies.
	Requirements ID = iota
	// Design depends on Requirements.
	Design
	// Tasks depends on Design.
	Tasks
	// Review depends on Tasks.
	Review
	// Fixup depends on Review.
	Fixup
	// Final depends on Fixup or Review (Fixup is optional).
	Final
)

// All lists every phase in dependency order.
var All = []ID{Requirements, Design, Tasks, Review, Fixup, Final}

// dependencies maps each phase to the phases that must have succeeded
// before it may run. A phase with multiple entries requires ANY one of
// them, not all (only Final uses this: Fixup or Review).
var dependencies = map[ID][][]ID{
	Requirements: nil,
	Design:       {{Requirements}},
	Tasks:        {{Design}},
	Review:       {{Tasks}},
	Fixup:        {{Review}},
	Final:        {{Fixup}, {Review}},
}

// names maps phase IDs to their canonical lowercase names used in
// receipt filenames and CLI arguments.
var names = map[ID]string{
	Requirements: "requirements",
	Design:       "design",
	Tasks:        "tasks",
	Review:       "review",
	Fixup:        "fixup",
	Final:        "final",
}

// String returns the canonical lowercase phase name.
func (p ID) String() string {
	if name, ok := names[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Valid reports whether p is one of the six defined phases.
func (p ID) Valid() bool {
	_, ok := names[p]
	return ok
}

// Parse converts a phase name to its ID. Matching is exact on the
// canonical lowercase name.
func Parse(s string) (ID, error) {
	for id, name := range names {
		if name == s {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q (expected one of: requirements, design, tasks, review, fixup, final)", s)
}

// Dependencies returns the alternative dependency sets for p. Each
// inner slice is one alternative; satisfying any single alternative
// (every phase in it successful) makes p runnable.
func Dependencies(p ID) [][]ID {
	return dependencies[p]
}
