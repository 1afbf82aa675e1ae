package jobregistry

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/3leaps/loratune/pkg/engine"
	"github.com/3leaps/loratune/pkg/finetune"
)

// Recorder writes job records for the orchestrator. It implements
// finetune.Journal.
type Recorder struct {
	store *Store
	now   func() time.Time
	pid   int
}

// NewRecorder creates a recorder writing to store, stamping records with
// this process's PID.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		pid:   os.Getpid(),
	}
}

// Started records a job entering execution and returns its new ID.
//
// The recorded PID is this process, which supervises the engine for the
// whole run; if it disappears the job is reported as unknown.
func (r *Recorder) Started(cfg finetune.JobConfig, inv engine.Invocation) (string, error) {
	if r == nil || r.store == nil {
		return "", fmt.Errorf("recorder is not initialized")
	}
	rec := &JobRecord{
		JobID:      uuid.New().String(),
		State:      JobStateRunning,
		ModelPath:  cfg.ModelPath,
		DataPath:   cfg.DataPath,
		OutputPath: cfg.OutputPath,
		Engine:     inv.Path,
		Command:    inv.Argv(),
		PID:        r.pid,
		Hyperparameters: Hyperparameters{
			Epochs:       cfg.Epochs,
			BatchSize:    cfg.BatchSize,
			LearningRate: cfg.LearningRate,
			Threads:      cfg.Threads,
			CtxSize:      cfg.CtxSize,
		},
		CreatedAt: r.now(),
	}
	if err := r.store.Write(rec); err != nil {
		return "", err
	}
	return rec.JobID, nil
}

// Finished records the terminal outcome of a job.
func (r *Recorder) Finished(jobID string, out finetune.Outcome) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("recorder is not initialized")
	}
	rec, err := r.store.Get(jobID)
	if err != nil {
		return err
	}

	ended := r.now()
	rec.EndedAt = &ended
	rec.State = stateFor(out.Kind)
	rec.Outcome = string(out.Kind)
	rec.Reason = out.Reason
	rec.ExitCode = nil
	if out.ExitCode != finetune.NoExitCode {
		code := out.ExitCode
		rec.ExitCode = &code
	}
	return r.store.Write(rec)
}

func stateFor(kind finetune.OutcomeKind) JobState {
	switch kind {
	case finetune.OutcomeSuccess:
		return JobStateSuccess
	case finetune.OutcomeInterrupted:
		return JobStateInterrupted
	default:
		return JobStateFailed
	}
}
