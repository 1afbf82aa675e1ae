package finetune

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/loratune/pkg/corpus"
	"github.com/3leaps/loratune/pkg/engine"
)

// EngineProbe reports whether the training engine is callable.
type EngineProbe interface {
	Probe(ctx context.Context) bool
}

// CorpusValidator checks a training data file.
type CorpusValidator interface {
	Validate(path string) (*corpus.Report, error)
}

// Journal records jobs that reach the Executing state.
//
// Journal errors are logged and never change the job outcome.
type Journal interface {
	Started(cfg JobConfig, inv engine.Invocation) (string, error)
	Finished(jobID string, out Outcome) error
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	// EnginePath is the engine executable placed at the head of every
	// invocation.
	EnginePath string

	Probe     EngineProbe
	Validator CorpusValidator
	Runner    Runner

	// Journal is optional.
	Journal Journal

	// OnTransition is optional and observes every lifecycle transition.
	OnTransition TransitionFunc

	// Console receives the success lines regardless of log level. When nil
	// they are logged at info.
	Console io.Writer
}

// RunOptions tune a single Run.
type RunOptions struct {
	// ValidateOnly stops after validation, never launching the engine.
	ValidateOnly bool
}

// Orchestrator sequences probe, validation and execution of one job and
// reports the result to the operator.
type Orchestrator struct {
	deps     Deps
	executor *Executor
	logger   *zap.Logger
}

// NewOrchestrator creates an orchestrator. A nil logger disables logging.
func NewOrchestrator(deps Deps, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(deps.EnginePath) == "" {
		deps.EnginePath = engine.DefaultExecutable
	}
	return &Orchestrator{
		deps:     deps,
		executor: NewExecutor(deps.Runner, logger),
		logger:   logger,
	}
}

// Run drives one job to its terminal outcome.
//
// Each stage must succeed before the next begins. The engine probe runs
// first, so a missing engine is reported before the corpus is touched.
func (o *Orchestrator) Run(ctx context.Context, p Params, opts RunOptions) Outcome {
	lc := newLifecycle(o.deps.OnTransition)
	finish := func(out Outcome) Outcome {
		lc.to(StateTerminal)
		o.report(out, p)
		return out
	}

	lc.to(StateProbing)
	if !o.deps.Probe.Probe(ctx) {
		if ctx.Err() != nil {
			return finish(interrupted(StateProbing))
		}
		return finish(engineUnavailable(o.deps.EnginePath))
	}

	lc.to(StateValidating)
	cfg, err := NewJobConfig(p)
	if err != nil {
		return finish(validationFailed("invalid job parameters", err))
	}

	o.logger.Info("Validating training data: " + cfg.DataPath)
	rep, err := o.deps.Validator.Validate(cfg.DataPath)
	if err != nil {
		return finish(validationFailed("training data validation failed", err))
	}
	o.logger.Info("✓ Training data is valid",
		zap.Int("records", rep.Records),
		zap.Int("blank_lines", rep.BlankLines))

	if opts.ValidateOnly {
		return finish(succeeded(StateValidating))
	}

	lc.to(StateExecuting)
	inv := BuildInvocation(o.deps.EnginePath, cfg)
	o.printBanner(cfg)

	jobID := o.journalStart(cfg, inv)
	out := o.executor.Execute(ctx, cfg, inv)
	o.journalFinish(jobID, out)

	return finish(out)
}

func (o *Orchestrator) printBanner(cfg JobConfig) {
	rule := strings.Repeat("=", 60)
	o.logger.Info(rule)
	o.logger.Info("Starting LoRA fine-tuning")
	o.logger.Info(rule)
	o.logger.Info("Base model:    " + cfg.ModelPath)
	o.logger.Info("Training data: " + cfg.DataPath)
	o.logger.Info("LoRA output:   " + cfg.OutputPath)
	o.logger.Info("Epochs:        " + strconv.Itoa(cfg.Epochs))
	o.logger.Info("Batch size:    " + strconv.Itoa(cfg.BatchSize))
	o.logger.Info("Learning rate: " + FormatLearningRate(cfg.LearningRate))
	o.logger.Info("Threads:       " + strconv.Itoa(cfg.Threads))
	o.logger.Info("Context size:  " + strconv.Itoa(cfg.CtxSize))
	o.logger.Info(rule)
}

// report prints the terminal diagnostic for out.
func (o *Orchestrator) report(out Outcome, p Params) {
	stage := zap.Stringer("stage", out.Stage)

	switch out.Kind {
	case OutcomeSuccess:
		if out.Stage == StateValidating {
			o.announce("Validation complete!")
			return
		}
		output := strings.TrimSpace(p.OutputPath)
		o.announce("LoRA fine-tuning completed successfully!")
		o.announce("LoRA weights saved to: "+output, zap.String("output", output))

	case OutcomeEngineUnavailable:
		o.logger.Error("Training engine not found: "+o.deps.EnginePath, stage)
		o.logger.Info("Install llama.cpp first:")
		o.logger.Info("  git clone https://github.com/ggerganov/llama.cpp")
		o.logger.Info("  cd llama.cpp && cmake -B build && cmake --build build --config Release")
		o.logger.Info("Then add llama-cli to your PATH, or point --engine / LORATUNE_ENGINE_PATH at it.")

	case OutcomeValidationFailure:
		fields := []zap.Field{stage}
		var defect *corpus.DefectError
		if errors.As(out.Err, &defect) {
			fields = append(fields, zap.Int("line", defect.Line), zap.String("defect", string(defect.Kind)))
		}
		o.logger.Error(capitalize(out.Reason)+": "+errorText(out.Err), fields...)

	case OutcomeExecutionFailure:
		fields := []zap.Field{stage}
		if out.ExitCode != NoExitCode {
			fields = append(fields, zap.Int("exit_code", out.ExitCode))
		}
		o.logger.Error("Training failed: "+out.Reason, fields...)
		o.logger.Info("See the engine output above for details.")

	case OutcomeInterrupted:
		o.logger.Warn("Training interrupted by user", stage)
		if out.Stage == StateExecuting {
			o.logger.Info("Engine checkpoint state, if any, was left in place.")
		}
	}
}

// announce prints a result line the operator must see.
func (o *Orchestrator) announce(msg string, fields ...zap.Field) {
	if o.deps.Console == nil {
		o.logger.Info(msg, fields...)
		return
	}
	if _, err := fmt.Fprintln(o.deps.Console, msg); err != nil {
		o.logger.Warn("Failed to write result", zap.Error(err))
	}
	o.logger.Debug(msg, fields...)
}

func (o *Orchestrator) journalStart(cfg JobConfig, inv engine.Invocation) string {
	if o.deps.Journal == nil {
		return ""
	}
	id, err := o.deps.Journal.Started(cfg, inv)
	if err != nil {
		o.logger.Warn("Failed to record job start", zap.Error(err))
		return ""
	}
	o.logger.Debug("Job recorded", zap.String("job_id", id))
	return id
}

func (o *Orchestrator) journalFinish(jobID string, out Outcome) {
	if o.deps.Journal == nil || jobID == "" {
		return
	}
	if err := o.deps.Journal.Finished(jobID, out); err != nil {
		o.logger.Warn("Failed to record job outcome", zap.String("job_id", jobID), zap.Error(err))
	}
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	// errors.Join separates causes with newlines; keep the diagnostic on one line.
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
