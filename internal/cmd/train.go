package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/loratune/internal/config"
	"github.com/3leaps/loratune/internal/observability"
	"github.com/3leaps/loratune/pkg/corpus"
	"github.com/3leaps/loratune/pkg/engine"
	"github.com/3leaps/loratune/pkg/finetune"
	"github.com/3leaps/loratune/pkg/jobregistry"
	"github.com/3leaps/loratune/pkg/manifest"
)

var (
	trainModel        string
	trainData         string
	trainOutput       string
	trainEpochs       int
	trainBatchSize    int
	trainLearningRate float64
	trainThreads      int
	trainCtxSize      int
	trainValidateOnly bool
	trainJobPath      string
	trainEngine       string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fine-tune LoRA weights on a prompt/completion corpus",
	Long: `Validate a JSONL training corpus and run LoRA fine-tuning with the training
engine.

Each line of the corpus must be a JSON object with "prompt" and "completion"
fields. The engine is probed before any input is read, and the corpus is
validated in full before the engine is launched.

Flags override values from --job, which override configured defaults.

Examples:
  loratune train --model base.gguf --data train.jsonl --output out/lora.bin
  loratune train --model base.gguf --data train.jsonl --output out/lora.bin --validate-only
  loratune train --job job.yaml --epochs 5`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVar(&trainModel, "model", "", "Path to base model (GGUF format)")
	trainCmd.Flags().StringVar(&trainData, "data", "", "Path to training data (JSONL format)")
	trainCmd.Flags().StringVar(&trainOutput, "output", "", "Output path for LoRA weights")
	trainCmd.Flags().IntVar(&trainEpochs, "epochs", finetune.DefaultEpochs, "Number of training epochs")
	trainCmd.Flags().IntVar(&trainBatchSize, "batch-size", finetune.DefaultBatchSize, "Training batch size")
	trainCmd.Flags().Float64Var(&trainLearningRate, "learning-rate", finetune.DefaultLearningRate, "Learning rate")
	trainCmd.Flags().IntVar(&trainThreads, "threads", finetune.DefaultThreads, "Number of CPU threads")
	trainCmd.Flags().IntVar(&trainCtxSize, "ctx-size", finetune.DefaultCtxSize, "Context size")
	trainCmd.Flags().BoolVar(&trainValidateOnly, "validate-only", false, "Only validate training data, don't train")
	trainCmd.Flags().StringVarP(&trainJobPath, "job", "j", "", "Train manifest (YAML or JSON)")
	trainCmd.Flags().StringVar(&trainEngine, "engine", "", "Training engine executable (default: llama-cli on PATH)")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := observability.CLILogger

	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(exitFailure, "Failed to load configuration", err)
	}

	params, enginePath, err := resolveTrainParams(cmd, cfg)
	if err != nil {
		return exitError(exitFailure, "Invalid train arguments", err)
	}

	deps := finetune.Deps{
		EnginePath: enginePath,
		Probe: engine.NewProber(engine.ProbeConfig{
			Path:    enginePath,
			Timeout: cfg.Engine.ProbeTimeout,
		}, logger),
		Validator: corpus.NewValidator(logger),
		Runner: engine.NewProcessRunner(engine.RunnerConfig{
			Stdout: cmd.OutOrStdout(),
			Stderr: cmd.ErrOrStderr(),
			Grace:  cfg.Engine.InterruptGrace,
		}, logger),
		Console: cmd.OutOrStdout(),
		OnTransition: func(from, to finetune.State) {
			logger.Debug("State transition", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	}
	if cfg.Jobs.Enabled && !trainValidateOnly {
		deps.Journal = jobregistry.NewRecorder(jobregistry.NewStore(cfg.Jobs.Dir))
	}

	out := finetune.NewOrchestrator(deps, logger).
		Run(ctx, params, finetune.RunOptions{ValidateOnly: trainValidateOnly})
	if out.Succeeded() {
		return nil
	}
	// The orchestrator has already reported the failure.
	return exitError(out.ExitStatus(), "", out.Err)
}

// resolveTrainParams layers configured defaults, the optional manifest, and
// explicitly set flags, in that order.
func resolveTrainParams(cmd *cobra.Command, cfg *config.Config) (finetune.Params, string, error) {
	params := finetune.Params{
		Epochs:       cfg.Train.Epochs,
		BatchSize:    cfg.Train.BatchSize,
		LearningRate: cfg.Train.LearningRate,
		Threads:      cfg.Train.Threads,
		CtxSize:      cfg.Train.CtxSize,
	}
	enginePath := cfg.Engine.Path

	if trainJobPath != "" {
		m, err := manifest.Load(trainJobPath)
		if err != nil {
			return params, "", err
		}
		m.ApplyTo(&params)
		if m.Engine.Path != "" {
			enginePath = m.Engine.Path
		}
		observability.CLILogger.Debug("Loaded train manifest",
			zap.String("path", trainJobPath),
			zap.String("name", m.Name))
	}

	flags := cmd.Flags()
	if flags.Changed("model") {
		params.ModelPath = trainModel
	}
	if flags.Changed("data") {
		params.DataPath = trainData
	}
	if flags.Changed("output") {
		params.OutputPath = trainOutput
	}
	if flags.Changed("epochs") {
		params.Epochs = trainEpochs
	}
	if flags.Changed("batch-size") {
		params.BatchSize = trainBatchSize
	}
	if flags.Changed("learning-rate") {
		params.LearningRate = trainLearningRate
	}
	if flags.Changed("threads") {
		params.Threads = trainThreads
	}
	if flags.Changed("ctx-size") {
		params.CtxSize = trainCtxSize
	}
	if flags.Changed("engine") {
		enginePath = trainEngine
	}

	var missing []string
	if strings.TrimSpace(params.ModelPath) == "" {
		missing = append(missing, `"model"`)
	}
	if strings.TrimSpace(params.DataPath) == "" {
		missing = append(missing, `"data"`)
	}
	if strings.TrimSpace(params.OutputPath) == "" {
		missing = append(missing, `"output"`)
	}
	if len(missing) > 0 {
		return params, "", fmt.Errorf("required flag(s) %s not set", strings.Join(missing, ", "))
	}

	return params, enginePath, nil
}
