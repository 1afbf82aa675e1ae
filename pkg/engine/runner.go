package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultInterruptGrace is how long a cancelled engine may take to exit after
// being interrupted before it is killed.
const DefaultInterruptGrace = 30 * time.Second

// Invocation is the exact command line of one engine run.
type Invocation struct {
	// Path is the engine executable.
	Path string

	// Args are the arguments after the executable, in order.
	Args []string
}

// Argv returns the executable followed by its arguments.
func (i Invocation) Argv() []string {
	out := make([]string, 0, len(i.Args)+1)
	out = append(out, i.Path)
	return append(out, i.Args...)
}

// String renders the invocation for display. Arguments are not shell-quoted.
func (i Invocation) String() string {
	return strings.Join(i.Argv(), " ")
}

// RunnerConfig configures a ProcessRunner.
type RunnerConfig struct {
	// Stdout and Stderr receive the engine's console output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	// Grace bounds the wait after an interrupt is forwarded. Zero uses
	// DefaultInterruptGrace.
	Grace time.Duration
}

// ProcessRunner runs engine invocations as child processes.
type ProcessRunner struct {
	stdout io.Writer
	stderr io.Writer
	grace  time.Duration
	logger *zap.Logger
}

// NewProcessRunner creates a runner. A nil logger disables logging.
func NewProcessRunner(cfg RunnerConfig, logger *zap.Logger) *ProcessRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	grace := cfg.Grace
	if grace <= 0 {
		grace = DefaultInterruptGrace
	}
	return &ProcessRunner{
		stdout: cfg.Stdout,
		stderr: cfg.Stderr,
		grace:  grace,
		logger: logger,
	}
}

// Run starts the invocation and blocks until it exits.
//
// The engine's output is forwarded as-is; nothing is parsed. A normal exit
// returns its status code and a nil error, including non-zero codes. A
// process killed by a signal reports -1. Failure to start returns a
// *LaunchError.
//
// When ctx is cancelled the engine receives a single interrupt so it can
// finish its checkpoint, and is killed only if it is still running after the
// grace period. On Unix the engine runs in its own process group so that
// interrupt is the only one it sees.
func (r *ProcessRunner) Run(ctx context.Context, inv Invocation) (int, error) {
	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	detach(cmd)
	cmd.Cancel = func() error {
		r.logger.Debug("Forwarding interrupt to engine", zap.Int("pid", cmd.Process.Pid))
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			if errors.Is(err, os.ErrProcessDone) {
				return err
			}
			// Interrupt is not deliverable on every platform.
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = r.grace

	if err := cmd.Start(); err != nil {
		return -1, &LaunchError{Path: inv.Path, Err: err}
	}
	r.logger.Debug("Engine started",
		zap.Int("pid", cmd.Process.Pid),
		zap.Strings("argv", inv.Argv()))

	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if cmd.ProcessState != nil {
		// WaitDelay expired or Cancel failed after the process had already
		// produced a status.
		return cmd.ProcessState.ExitCode(), nil
	}
	return -1, err
}
