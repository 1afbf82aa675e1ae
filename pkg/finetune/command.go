package finetune

import (
	"strconv"

	"github.com/3leaps/loratune/pkg/engine"
)

// Engine flags, in the order they are emitted.
const (
	SubcommandFinetune = "finetune"

	FlagModel        = "--model"
	FlagLoraOut      = "--lora-out"
	FlagTrainData    = "--train-data"
	FlagEpochs       = "--epochs"
	FlagBatchSize    = "--batch-size"
	FlagLearningRate = "--learning-rate"
	FlagThreads      = "--threads"
	FlagCtxSize      = "--ctx-size"

	// FlagUseCheckpoint is always passed so an interrupted run leaves
	// resumable engine state behind.
	FlagUseCheckpoint = "--use-ckpt"
)

// BuildInvocation maps cfg to the engine command line.
//
// It is pure: the same executable and config always yield the same
// invocation, and nothing on disk is read or written.
func BuildInvocation(executable string, cfg JobConfig) engine.Invocation {
	return engine.Invocation{
		Path: executable,
		Args: []string{
			SubcommandFinetune,
			FlagModel, cfg.ModelPath,
			FlagLoraOut, cfg.OutputPath,
			FlagTrainData, cfg.DataPath,
			FlagEpochs, strconv.Itoa(cfg.Epochs),
			FlagBatchSize, strconv.Itoa(cfg.BatchSize),
			FlagLearningRate, FormatLearningRate(cfg.LearningRate),
			FlagThreads, strconv.Itoa(cfg.Threads),
			FlagCtxSize, strconv.Itoa(cfg.CtxSize),
			FlagUseCheckpoint,
		},
	}
}

// FormatLearningRate renders lr as the shortest plain decimal that round-trips
// (0.0002 -> "0.0002", never exponent notation).
func FormatLearningRate(lr float64) string {
	return strconv.FormatFloat(lr, 'f', -1, 64)
}
