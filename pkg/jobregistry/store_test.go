package jobregistry

import (
	"errors"
	"os"
	"testing"
	"time"
)

func TestStore_WriteGetRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	now := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	rec := &JobRecord{
		JobID:      "job-1",
		State:      JobStateRunning,
		ModelPath:  "/models/base.gguf",
		DataPath:   "/data/train.jsonl",
		OutputPath: "/out/lora.bin",
		Engine:     "llama-cli",
		Hyperparameters: Hyperparameters{
			Epochs:       3,
			BatchSize:    2,
			LearningRate: 0.0002,
			Threads:      4,
			CtxSize:      4096,
		},
		CreatedAt: now,
	}

	if err := s.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := s.Get("job-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.JobID != rec.JobID {
		t.Fatalf("job_id mismatch: got=%q want=%q", got.JobID, rec.JobID)
	}
	if got.State != rec.State {
		t.Fatalf("state mismatch: got=%q want=%q", got.State, rec.State)
	}
	if got.Hyperparameters.LearningRate != 0.0002 {
		t.Fatalf("hyperparameters not persisted: %+v", got.Hyperparameters)
	}
}

func TestStore_ListSortsNewestFirst(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)

	t1 := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 19, 13, 0, 0, 0, time.UTC)

	if err := s.Write(&JobRecord{JobID: "job-1", State: JobStateSuccess, CreatedAt: t1}); err != nil {
		t.Fatalf("Write job-1: %v", err)
	}
	if err := s.Write(&JobRecord{JobID: "job-2", State: JobStateFailed, CreatedAt: t2}); err != nil {
		t.Fatalf("Write job-2: %v", err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("unexpected job count: %d", len(got))
	}
	if got[0].JobID != "job-2" {
		t.Fatalf("expected newest first, got[0]=%q", got[0].JobID)
	}

	latest, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if latest.JobID != "job-2" {
		t.Fatalf("Latest() = %q, want job-2", latest.JobID)
	}
}

func TestStore_ListMissingRoot(t *testing.T) {
	s := NewStore(t.TempDir() + "/does-not-exist")

	got, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no jobs, got %d", len(got))
	}
	if _, err := s.Latest(); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("Latest() error = %v, want ErrJobNotFound", err)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Get("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("Get() error = %v, want ErrJobNotFound", err)
	}
}

func TestStore_WriteRejectsBadIDs(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, id := range []string{"", "  ", "../escape", "a/b", ".."} {
		if err := s.Write(&JobRecord{JobID: id}); err == nil {
			t.Fatalf("Write(%q) expected error", id)
		}
	}
	if err := s.Write(nil); err == nil {
		t.Fatalf("Write(nil) expected error")
	}
}

func TestStore_DeadRunningJobBecomesUnknown(t *testing.T) {
	s := NewStore(t.TempDir())

	// PIDs near the 32-bit limit are never allocated in practice.
	rec := &JobRecord{JobID: "job-dead", State: JobStateRunning, PID: 2147483000, CreatedAt: time.Now().UTC()}
	if err := s.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := s.Get("job-dead")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.State != JobStateUnknown {
		t.Fatalf("state = %q, want unknown", got.State)
	}
	if got.EndedAt == nil {
		t.Fatalf("ended_at not set")
	}

	again, err := s.Get("job-dead")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if again.State != JobStateUnknown {
		t.Fatalf("unknown state not persisted")
	}
}

func TestStore_LiveRunningJobStaysRunning(t *testing.T) {
	s := NewStore(t.TempDir())

	rec := &JobRecord{JobID: "job-live", State: JobStateRunning, PID: os.Getpid(), CreatedAt: time.Now().UTC()}
	if err := s.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	got, err := s.Get("job-live")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.State != JobStateRunning {
		t.Fatalf("state = %q, want running", got.State)
	}
}

func TestJobState_Terminal(t *testing.T) {
	for _, s := range []JobState{JobStateSuccess, JobStateFailed, JobStateInterrupted} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []JobState{JobStateRunning, JobStateUnknown} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
