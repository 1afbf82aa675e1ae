// Package finetune orchestrates one LoRA fine-tuning job.
//
// A job moves strictly forward through Idle, Probing, Validating, Executing
// and Terminal. The training itself is delegated to an external engine behind
// the Runner interface; this package validates inputs, builds the engine
// command line, supervises the run and classifies its outcome.
package finetune

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

// Default hyperparameters for CPU-only training of small models.
const (
	DefaultEpochs       = 3
	DefaultBatchSize    = 2
	DefaultLearningRate = 0.0002
	DefaultThreads      = 4
	DefaultCtxSize      = 4096
)

// Params are the operator-supplied job parameters before validation.
type Params struct {
	ModelPath    string
	DataPath     string
	OutputPath   string
	Epochs       int
	BatchSize    int
	LearningRate float64
	Threads      int
	CtxSize      int
}

// DefaultParams returns Params with every hyperparameter at its default and
// no paths set.
func DefaultParams() Params {
	return Params{
		Epochs:       DefaultEpochs,
		BatchSize:    DefaultBatchSize,
		LearningRate: DefaultLearningRate,
		Threads:      DefaultThreads,
		CtxSize:      DefaultCtxSize,
	}
}

// JobConfig is the validated description of one fine-tuning run.
//
// Obtain one from NewJobConfig; it is passed by value and never modified.
type JobConfig struct {
	ModelPath    string
	DataPath     string
	OutputPath   string
	Epochs       int
	BatchSize    int
	LearningRate float64
	Threads      int
	CtxSize      int
}

// ConfigError describes an invalid job parameter.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

// NewJobConfig validates p and returns the immutable job configuration.
//
// All paths must be non-empty, numeric parameters must be positive, and the
// base model and training data must exist. The output directory is not
// touched here; the executor creates it just before launch.
func NewJobConfig(p Params) (JobConfig, error) {
	cfg := JobConfig{
		ModelPath:    strings.TrimSpace(p.ModelPath),
		DataPath:     strings.TrimSpace(p.DataPath),
		OutputPath:   strings.TrimSpace(p.OutputPath),
		Epochs:       p.Epochs,
		BatchSize:    p.BatchSize,
		LearningRate: p.LearningRate,
		Threads:      p.Threads,
		CtxSize:      p.CtxSize,
	}

	var errs []error
	for _, f := range []struct {
		field, value string
	}{
		{"model", cfg.ModelPath},
		{"data", cfg.DataPath},
		{"output", cfg.OutputPath},
	} {
		if f.value == "" {
			errs = append(errs, &ConfigError{Field: f.field, Message: "path is required"})
		}
	}

	for _, f := range []struct {
		field string
		value int
	}{
		{"epochs", cfg.Epochs},
		{"batch-size", cfg.BatchSize},
		{"threads", cfg.Threads},
		{"ctx-size", cfg.CtxSize},
	} {
		if f.value <= 0 {
			errs = append(errs, &ConfigError{Field: f.field, Message: fmt.Sprintf("must be a positive integer (got %d)", f.value)})
		}
	}

	if math.IsNaN(cfg.LearningRate) || math.IsInf(cfg.LearningRate, 0) || cfg.LearningRate <= 0 {
		errs = append(errs, &ConfigError{Field: "learning-rate", Message: fmt.Sprintf("must be a positive number (got %v)", cfg.LearningRate)})
	}

	if len(errs) > 0 {
		return JobConfig{}, errors.Join(errs...)
	}

	if err := requireExists(cfg.ModelPath, "base model"); err != nil {
		return JobConfig{}, err
	}
	if err := requireExists(cfg.DataPath, "training data"); err != nil {
		return JobConfig{}, err
	}

	return cfg, nil
}

func requireExists(path, what string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s not found: %s", what, path)
		}
		return fmt.Errorf("%s not accessible: %w", what, err)
	}
	return nil
}
