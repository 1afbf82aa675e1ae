package finetune

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/3leaps/loratune/pkg/engine"
)

// Runner runs an engine invocation and reports its exit status.
//
// Run blocks until the engine exits. A non-zero status is not an error; an
// error means the engine could not be run at all. engine.ProcessRunner is the
// production implementation; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, inv engine.Invocation) (int, error)
}

// DirectoryCreateError reports that the output directory could not be created.
type DirectoryCreateError struct {
	Dir string
	Err error
}

// Error implements the error interface.
func (e *DirectoryCreateError) Error() string {
	return fmt.Sprintf("create output directory %s: %v", e.Dir, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DirectoryCreateError) Unwrap() error {
	return e.Err
}

// Executor prepares the output location, runs the engine and classifies the
// result.
type Executor struct {
	runner Runner
	logger *zap.Logger
}

// NewExecutor creates an executor. A nil logger disables logging.
func NewExecutor(runner Runner, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{runner: runner, logger: logger}
}

// Execute runs inv for cfg and returns the classified outcome.
//
// Failed runs are reported, never retried: a training run is expensive and
// partial engine state is the engine's concern. Cancellation of ctx always
// yields Interrupted, whatever status the engine exits with.
func (e *Executor) Execute(ctx context.Context, cfg JobConfig, inv engine.Invocation) Outcome {
	if ctx.Err() != nil {
		return interrupted(StateExecuting)
	}

	dir := filepath.Dir(cfg.OutputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		dirErr := &DirectoryCreateError{Dir: dir, Err: err}
		return executionFailed(NoExitCode, dirErr.Error(), dirErr)
	}

	e.logger.Debug("Launching engine", zap.String("command", inv.String()))
	code, err := e.runner.Run(ctx, inv)

	if ctx.Err() != nil {
		e.logger.Debug("Engine stopped after interrupt", zap.Int("exit_code", code))
		return interrupted(StateExecuting)
	}
	if err != nil {
		return executionFailed(NoExitCode, fmt.Sprintf("engine could not be started: %v", err), err)
	}
	if code != 0 {
		reason := fmt.Sprintf("engine exited with status %d", code)
		if code < 0 {
			reason = "engine was terminated by a signal"
		}
		return executionFailed(code, reason, &engine.ExitError{Path: inv.Path, Code: code})
	}
	return succeeded(StateExecuting)
}
