package phase

// Graph validates phase transitions against the static dependency
// metadata. It holds no state and performs no I/O; callers supply the
// set of phases that have at least one successful receipt.
type Graph struct{}

// NewGraph returns the phase dependency graph.
func NewGraph() *Graph {
	return &Graph{}
}

// Check reports whether the requested phase may run given the set of
// successfully completed phases. When the transition is illegal it
// returns the unmet dependencies of the closest alternative (for Final
// that is the Fixup path, its primary alternative).
func (g *Graph) Check(requested ID, completed map[ID]bool) (ok bool, missing []ID) {
	alts := Dependencies(requested)
	if len(alts) == 0 {
		return true, nil
	}

	// Any fully-satisfied alternative makes the transition legal.
	for _, alt := range alts {
		satisfied := true
		for _, dep := range alt {
			if !completed[dep] {
				satisfied = false
				break
			}
		}
		if satisfied {
			return true, nil
		}
	}

	// Report the gaps of the primary alternative.
	for _, dep := range alts[0] {
		if !completed[dep] {
			missing = append(missing, dep)
		}
	}
	return false, missing
}

// LegalNext returns the phases that are now runnable given the set of
// successfully completed phases, in dependency order. Phases that have
// already succeeded are excluded; re-running them is allowed but they
// are not "next".
func (g *Graph) LegalNext(completed map[ID]bool) []ID {
	var next []ID
	for _, p := range All {
		if completed[p] {
			continue
		}
		if ok, _ := g.Check(p, completed); ok {
			next = append(next, p)
		}
	}
	return next
}
