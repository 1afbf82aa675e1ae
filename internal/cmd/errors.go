package cmd

import (
	"fmt"
)

// ExitError carries the process exit status for a failed command.
//
// An empty Message means the failure was already reported and Execute only
// sets the exit status.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return fmt.Sprintf("exit code %d", e.Code)
	case e.Err == nil:
		return fmt.Sprintf("%s (exit code %d)", e.Message, e.Code)
	case e.Message == "":
		return fmt.Sprintf("%v (exit code %d)", e.Err, e.Code)
	}
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}
