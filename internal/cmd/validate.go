package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/loratune/internal/observability"
	"github.com/3leaps/loratune/pkg/corpus"
	"github.com/3leaps/loratune/pkg/output"
)

var validateOutput string

var validateCmd = &cobra.Command{
	Use:   "validate <path|glob>...",
	Short: "Validate training corpora without running the engine",
	Long: `Check one or more JSONL training corpora and emit one JSONL record per file
followed by a summary record.

Arguments may be plain paths or doublestar globs. Quote globs so the shell
does not expand them. The training engine is not probed.

Exits 0 only if every file passes.

Examples:
  loratune validate train.jsonl
  loratune validate 'data/**/*.jsonl' --output report.jsonl`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateOutput, "output", "o", "", "Write JSONL records to this file instead of stdout")
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.CLILogger
	start := time.Now()

	paths, unmatched, err := expandCorpusArgs(args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid path pattern", err)
	}

	var dst io.Writer = cmd.OutOrStdout()
	if validateOutput != "" {
		f, err := os.Create(validateOutput)
		if err != nil {
			return exitError(foundry.ExitFileWriteError, "Cannot create output file", err)
		}
		defer func() { _ = f.Close() }()
		dst = f
	}

	runID := uuid.New().String()
	w := output.NewJSONLWriter(dst, runID)
	defer func() { _ = w.Close() }()

	validator := corpus.NewValidator(logger)
	summary := output.SummaryRecord{}

	for _, pattern := range unmatched {
		summary.Files++
		summary.Invalid++
		logger.Error("No files match pattern", zap.String("pattern", pattern))
		env := gferrors.NewErrorEnvelope("NO_MATCH", "no files match pattern "+pattern)
		if err := w.WriteError(ctx, env); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	}

	for _, path := range paths {
		summary.Files++
		rec := checkCorpus(validator, path)
		if rec.Valid {
			summary.Valid++
			summary.Records += rec.Records
			logger.Info("✓ "+path, zap.Int("records", rec.Records))
		} else {
			summary.Invalid++
			reason := rec.Error
			if rec.Defect != nil {
				reason = rec.Defect.Message
			}
			logger.Error("✗ " + path + ": " + reason)
		}

		if err := w.WriteCorpus(ctx, rec); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
		if rec.Error != "" {
			env := gferrors.NewErrorEnvelope("CORPUS_UNREADABLE", rec.Error)
			if withCtx, err := env.WithContext(map[string]interface{}{"path": path}); err == nil {
				env = withCtx
			}
			if err := w.WriteError(ctx, env); err != nil {
				return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
			}
		}
	}

	summary.Duration = time.Since(start)
	summary.DurationHuman = summary.Duration.Round(time.Millisecond).String()
	if err := w.WriteSummary(ctx, &summary); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}

	logger.Info(fmt.Sprintf("Validated %d file(s): %d valid, %d invalid", summary.Files, summary.Valid, summary.Invalid),
		zap.Int("records", summary.Records),
		zap.String("run_id", runID))

	if summary.Invalid > 0 {
		return exitError(exitFailure, "", nil)
	}
	return nil
}

// checkCorpus validates one file and converts the result to an output record.
func checkCorpus(v *corpus.Validator, path string) *output.CorpusRecord {
	rec := &output.CorpusRecord{Path: path}

	rep, err := v.Validate(path)
	if err == nil {
		rec.Valid = true
		rec.Records = rep.Records
		rec.BlankLines = rep.BlankLines
		rec.Lines = rep.Lines
		return rec
	}

	var defect *corpus.DefectError
	if errors.As(err, &defect) {
		rec.Lines = defect.Line
		rec.Defect = &output.DefectRecord{
			Line:    defect.Line,
			Kind:    string(defect.Kind),
			Fields:  defect.Fields,
			Message: defect.Error(),
		}
		return rec
	}

	rec.Error = err.Error()
	return rec
}

// expandCorpusArgs resolves plain paths and glob patterns into a sorted,
// de-duplicated file list. Patterns that match nothing are returned
// separately. Plain paths are kept even when missing so the validator can
// report them.
func expandCorpusArgs(args []string) (paths, unmatched []string, err error) {
	seen := make(map[string]bool)
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		if !hasGlobMeta(arg) {
			if !seen[arg] {
				seen[arg] = true
				paths = append(paths, arg)
			}
			continue
		}

		if !doublestar.ValidatePathPattern(arg) {
			return nil, nil, fmt.Errorf("%w: %s", doublestar.ErrBadPattern, arg)
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, nil, err
		}
		if len(matches) == 0 {
			unmatched = append(unmatched, arg)
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	return paths, unmatched, nil
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
