package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine operations.
var (
	// ErrEngineNotFound indicates the engine executable could not be resolved.
	ErrEngineNotFound = errors.New("engine executable not found")

	// ErrProbeTimeout indicates the engine did not answer the probe in time.
	ErrProbeTimeout = errors.New("engine probe timed out")
)

// ExitError reports an engine process that exited unsuccessfully.
type ExitError struct {
	// Path is the executable that was run.
	Path string

	// Code is the process exit code, or -1 if it was terminated by a signal.
	Code int
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Code < 0 {
		return fmt.Sprintf("%s terminated by signal", e.Path)
	}
	return fmt.Sprintf("%s exited with status %d", e.Path, e.Code)
}

// LaunchError reports a process that could not be started.
type LaunchError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates the engine is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEngineNotFound)
}

// IsTimeout returns true if the error indicates the probe timed out.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrProbeTimeout)
}
