package finetune

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
)

// OutcomeKind classifies how a job ended.
//
// Values are persisted in job records and JSONL output.
type OutcomeKind string

const (
	OutcomeSuccess           OutcomeKind = "success"
	OutcomeValidationFailure OutcomeKind = "validation_failure"
	OutcomeEngineUnavailable OutcomeKind = "engine_unavailable"
	OutcomeExecutionFailure  OutcomeKind = "execution_failure"
	OutcomeInterrupted       OutcomeKind = "interrupted"
)

// NoExitCode marks an outcome without an engine exit status (the engine never
// ran, could not be launched, or was killed by a signal).
const NoExitCode = -1

// Outcome is the terminal result of one job.
type Outcome struct {
	// Kind classifies the result.
	Kind OutcomeKind

	// Stage is the lifecycle state in which the outcome was decided.
	Stage State

	// ExitCode is the engine exit status for ExecutionFailure, or NoExitCode.
	ExitCode int

	// Reason is a short operator-facing explanation. Empty on success.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

func succeeded(stage State) Outcome {
	return Outcome{Kind: OutcomeSuccess, Stage: stage, ExitCode: NoExitCode}
}

func validationFailed(reason string, err error) Outcome {
	return Outcome{Kind: OutcomeValidationFailure, Stage: StateValidating, ExitCode: NoExitCode, Reason: reason, Err: err}
}

func engineUnavailable(engine string) Outcome {
	return Outcome{
		Kind:     OutcomeEngineUnavailable,
		Stage:    StateProbing,
		ExitCode: NoExitCode,
		Reason:   fmt.Sprintf("training engine %q is not installed or not responding", engine),
	}
}

func executionFailed(code int, reason string, err error) Outcome {
	return Outcome{Kind: OutcomeExecutionFailure, Stage: StateExecuting, ExitCode: code, Reason: reason, Err: err}
}

func interrupted(stage State) Outcome {
	return Outcome{Kind: OutcomeInterrupted, Stage: stage, ExitCode: NoExitCode, Reason: "interrupted by operator"}
}

// Succeeded reports whether the outcome is Success.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// ExitStatus is the process exit status for this outcome: 0 for success, 1
// for everything else, interruption included.
func (o Outcome) ExitStatus() int {
	if o.Succeeded() {
		return foundry.ExitSuccess
	}
	return foundry.ExitFailure
}

// String renders the outcome for logs.
func (o Outcome) String() string {
	switch {
	case o.Kind == OutcomeExecutionFailure && o.ExitCode != NoExitCode:
		return fmt.Sprintf("%s (exit code %d)", o.Kind, o.ExitCode)
	case o.Reason != "":
		return fmt.Sprintf("%s: %s", o.Kind, o.Reason)
	default:
		return string(o.Kind)
	}
}
