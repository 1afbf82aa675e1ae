package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/loratune/internal/observability"
	"github.com/3leaps/loratune/pkg/corpus"
	"github.com/3leaps/loratune/pkg/output"
)

var (
	prepareOutput        string
	prepareReport        string
	prepareMaxPairs      int
	prepareMinPrompt     int
	prepareMinCompletion int
	prepareKeepSensitive bool
)

var prepareCmd = &cobra.Command{
	Use:   "prepare <input.jsonl>",
	Short: "Clean a raw prompt/completion corpus for training",
	Long: `Filter a raw JSONL corpus into one ready for 'loratune train'.

Lines are dropped when they are malformed, too short, low value ("ok",
"thanks", ...), mention credentials or card numbers, or repeat an earlier
prompt/completion pair. With --max-pairs only the highest scoring pairs are
kept. Surviving lines are written unchanged, in input order.

A loratune.prepare.v1 JSONL record describing the run is written to stdout
or --report.

Examples:
  loratune prepare raw.jsonl -o train.jsonl
  loratune prepare raw.jsonl -o train.jsonl --max-pairs 5000`,
	Args: cobra.ExactArgs(1),
	RunE: runPrepare,
}

func init() {
	rootCmd.AddCommand(prepareCmd)

	defaults := corpus.DefaultPrepareOptions()
	prepareCmd.Flags().StringVarP(&prepareOutput, "output", "o", "", "Prepared corpus path (required)")
	prepareCmd.Flags().StringVar(&prepareReport, "report", "", "Write the JSONL record to this file instead of stdout")
	prepareCmd.Flags().IntVar(&prepareMaxPairs, "max-pairs", 0, "Keep at most this many pairs, best first (0 keeps all)")
	prepareCmd.Flags().IntVar(&prepareMinPrompt, "min-prompt-chars", defaults.MinPromptChars, "Minimum prompt length in characters")
	prepareCmd.Flags().IntVar(&prepareMinCompletion, "min-completion-chars", defaults.MinCompletionChars, "Minimum completion length in characters")
	prepareCmd.Flags().BoolVar(&prepareKeepSensitive, "keep-sensitive", false, "Do not drop pairs that mention credentials")
	_ = prepareCmd.MarkFlagRequired("output")
}

func runPrepare(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.CLILogger
	start := time.Now()
	source := args[0]

	if prepareMaxPairs < 0 || prepareMinPrompt < 0 || prepareMinCompletion < 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid prepare arguments",
			errors.New("--max-pairs, --min-prompt-chars and --min-completion-chars must not be negative"))
	}
	if sameFile(source, prepareOutput) {
		return exitError(foundry.ExitInvalidArgument, "Invalid prepare arguments",
			fmt.Errorf("output %s would overwrite the input", prepareOutput))
	}

	in, err := os.Open(source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(foundry.ExitFileNotFound, "Input corpus not found", err)
		}
		return exitError(foundry.ExitFileReadError, "Cannot read input corpus", err)
	}
	defer func() { _ = in.Close() }()

	opts := corpus.DefaultPrepareOptions()
	opts.MaxPairs = prepareMaxPairs
	opts.MinPromptChars = prepareMinPrompt
	opts.MinCompletionChars = prepareMinCompletion
	if prepareKeepSensitive {
		opts.SensitiveTerms = nil
	}

	var stats *corpus.PrepareStats
	err = writeFileAtomic(prepareOutput, func(w io.Writer) error {
		var prepErr error
		stats, prepErr = corpus.NewPreparer(opts, logger).Prepare(in, w)
		return prepErr
	})
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to prepare corpus", err)
	}

	rec := &output.PrepareRecord{
		Source:     source,
		Output:     prepareOutput,
		Lines:      stats.Lines,
		BlankLines: stats.BlankLines,
		Kept:       stats.Kept,
		Dropped:    make(map[string]int, len(stats.Dropped)),
	}
	for reason, n := range stats.Dropped {
		rec.Dropped[string(reason)] = n
	}
	rec.Duration = time.Since(start)
	rec.DurationHuman = rec.Duration.Round(time.Millisecond).String()

	var dst io.Writer = cmd.OutOrStdout()
	if prepareReport != "" {
		f, err := os.Create(prepareReport)
		if err != nil {
			return exitError(foundry.ExitFileWriteError, "Cannot create report file", err)
		}
		defer func() { _ = f.Close() }()
		dst = f
	}
	w := output.NewJSONLWriter(dst, uuid.New().String())
	defer func() { _ = w.Close() }()
	if err := w.WritePrepare(ctx, rec); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}

	fields := []zap.Field{zap.Int("lines", stats.Lines)}
	for reason, n := range rec.Dropped {
		fields = append(fields, zap.Int("dropped_"+reason, n))
	}
	logger.Info(fmt.Sprintf("Prepared %s: kept %d of %d pair(s)", prepareOutput, stats.Kept, stats.Kept+stats.DroppedTotal()), fields...)

	if stats.Kept == 0 {
		return exitError(exitFailure, "No usable pairs left after preparation", nil)
	}
	return nil
}

// writeFileAtomic writes path through a temp file in the same directory so
// a failed run never leaves a truncated corpus behind.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// sameFile reports whether a and b name the same existing file.
func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
