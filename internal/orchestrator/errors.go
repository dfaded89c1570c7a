package orchestrator

import (
	"fmt"
	"time"

	"specpilot/internal/phase"
)

// DependencyNotSatisfiedError reports a phase requested before its
// dependencies have any successful receipt.
type DependencyNotSatisfiedError struct {
	Phase   phase.ID
	Missing []phase.ID
}

func (e *DependencyNotSatisfiedError) Error() string {
	return fmt.Sprintf("cannot run %s: dependency %s has no successful attempt", e.Phase, joinPhases(e.Missing))
}

// DependencyFailedError reports a dependency whose latest attempts all
// failed. It blocks progression exactly like a missing dependency but
// names the failure.
type DependencyFailedError struct {
	Phase    phase.ID
	Dep      phase.ID
	ExitCode int
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("cannot run %s: dependency %s failed (exit code %d); re-run %s first", e.Phase, e.Dep, e.ExitCode, e.Dep)
}

// PhaseTimeoutError reports an attempt cut short by the timeout
// supervisor.
type PhaseTimeoutError struct {
	Phase phase.ID
	Limit time.Duration
}

func (e *PhaseTimeoutError) Error() string {
	return fmt.Sprintf("phase %s exceeded its %s timeout", e.Phase, e.Limit)
}

func joinPhases(phases []phase.ID) string {
	s := ""
	for i, p := range phases {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	return s
}
