package orchestrator

import (
	"context"
	"time"

	"specpilot/internal/backend"
)

// Timeout bounds for one phase execution.
const (
	// DefaultTimeout applies when no per-run timeout is configured.
	DefaultTimeout = 600 * time.Second
	// MinTimeout is the enforced lower bound.
	MinTimeout = 5 * time.Second
	// MaxTimeout is the enforced upper bound.
	MaxTimeout = 7200 * time.Second
)

// ClampTimeout applies the configured bounds to d. Zero means
// DefaultTimeout.
func ClampTimeout(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultTimeout
	case d < MinTimeout:
		return MinTimeout
	case d > MaxTimeout:
		return MaxTimeout
	default:
		return d
	}
}

// supervised is the outcome of one supervised execution.
type supervised struct {
	result   *backend.Result
	err      error
	timedOut bool
	elapsed  time.Duration
}

// supervise runs the phase body under a duration bound. Completion and
// expiry race in a select; on expiry the body is cancelled through its
// context and the supervisor waits for it to unwind (the CLI backend
// kills its process group on cancellation) before returning.
func supervise(ctx context.Context, exec backend.Executor, req backend.Request, limit time.Duration) supervised {
	bodyCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	done := make(chan supervised, 1)
	go func() {
		result, err := exec.Execute(bodyCtx, req)
		done <- supervised{result: result, err: err}
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case out := <-done:
		out.elapsed = time.Since(start)
		return out
	case <-timer.C:
		cancel()
		out := <-done
		return supervised{err: out.err, timedOut: true, elapsed: time.Since(start)}
	case <-ctx.Done():
		cancel()
		out := <-done
		out.elapsed = time.Since(start)
		if out.err == nil {
			out.err = ctx.Err()
		}
		return out
	}
}
