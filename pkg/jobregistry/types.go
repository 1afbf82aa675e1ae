// Package jobregistry keeps an on-disk history of training jobs.
//
// A record is written when a job starts executing and updated when it ends,
// so an operator can see past runs and spot runs that died without reporting.
package jobregistry

import "time"

// JobState is the lifecycle state of a recorded job.
//
// NOTE: These values are persisted in job.json and are part of the stable
// on-disk contract.
type JobState string

const (
	JobStateRunning     JobState = "running"
	JobStateSuccess     JobState = "success"
	JobStateFailed      JobState = "failed"
	JobStateInterrupted JobState = "interrupted"
	JobStateUnknown     JobState = "unknown"
)

// Terminal reports whether no further transitions are expected.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateSuccess, JobStateFailed, JobStateInterrupted:
		return true
	default:
		return false
	}
}

// Hyperparameters are the tuning values a job ran with.
type Hyperparameters struct {
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	Threads      int     `json:"threads"`
	CtxSize      int     `json:"ctx_size"`
}

// JobRecord is the persistent record written to job.json.
//
// The schema is designed for backward-compatible extension (additive fields).
type JobRecord struct {
	JobID      string   `json:"job_id"`
	State      JobState `json:"state"`
	ModelPath  string   `json:"model_path"`
	DataPath   string   `json:"data_path"`
	OutputPath string   `json:"output_path"`
	Engine     string   `json:"engine"`
	Command    []string `json:"command,omitempty"`
	PID        int      `json:"pid,omitempty"`

	Hyperparameters Hyperparameters `json:"hyperparameters"`

	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Outcome is the orchestrator outcome kind once the job has ended.
	Outcome  string `json:"outcome,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
