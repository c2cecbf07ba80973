package execution

import (
	"context"
	"os"
	"time"

	"github.com/tunacode-sh/tunacode/internal/sandbox"
	"github.com/tunacode-sh/tunacode/internal/tunalog"
)

var execLog = tunalog.New(os.Stderr, "execution")

// Runner defines the interface for running commands.
// This allows mocking the sandbox runner for testing.
type Runner interface {
	RunCmd(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (sandbox.Result, error)
}

// SandboxRunner is the default implementation that uses the sandbox package.
// It automatically selects the appropriate runner (Docker or host) based on configuration.
type SandboxRunner struct {
	runner sandbox.Runner
}

// NewSandboxRunner creates a new SandboxRunner using the default sandbox configuration.
func NewSandboxRunner() *SandboxRunner {
	return &SandboxRunner{
		runner: sandbox.NewDefaultRunner(),
	}
}

// RunCmd calls the underlying sandbox runner, logging every invocation once
// here rather than at each of run_cmd/run_build/run_tests so the three
// execution tools share one structured log line format.
func (r *SandboxRunner) RunCmd(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
	start := time.Now()
	result, err := r.runner.RunCmd(ctx, repoDir, name, args, timeout)
	fields := tunalog.Fields{
		"cmd": name, "args": args, "exit_code": result.Code,
		"duration_ms": time.Since(start).Milliseconds(), "timed_out": result.TimedOut,
	}
	if err != nil {
		fields["error"] = err
		execLog.Warn("command failed", fields)
	} else {
		execLog.Info("command finished", fields)
	}
	return result, err
}
