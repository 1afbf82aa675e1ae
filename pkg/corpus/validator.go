// Package corpus validates newline-delimited prompt/completion training data.
//
// Validation is strict and fail-fast: the first malformed line invalidates the
// whole file and scanning stops there. Partial corpora must never reach the
// training engine.
package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Required record fields, in reporting order.
const (
	FieldPrompt     = "prompt"
	FieldCompletion = "completion"
)

// Scanner buffer sizes. A single training example may be large, but a line
// beyond MaxLineBytes is reported as a defect rather than read unbounded.
const (
	initialLineBytes = 64 * 1024
	MaxLineBytes     = 16 * 1024 * 1024
)

// Record is one line of the corpus.
//
// Additional fields are tolerated and ignored.
type Record struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// Report summarizes a corpus that passed validation.
type Report struct {
	// Path is the validated file.
	Path string `json:"path"`

	// Records is the number of non-blank lines, all valid.
	Records int `json:"records"`

	// BlankLines is the number of whitespace-only lines skipped.
	BlankLines int `json:"blank_lines"`

	// Lines is the total number of lines read.
	Lines int `json:"lines"`
}

// Validator checks corpus files.
type Validator struct {
	logger *zap.Logger
}

// NewValidator creates a validator. A nil logger disables logging.
func NewValidator(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{logger: logger}
}

// Validate opens path and checks every non-blank line.
//
// Returns ErrFileNotFound (wrapped) if the file does not exist, a
// *DefectError for the first offending line, or another error if the file
// cannot be read.
func (v *Validator) Validate(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open training data: %w", err)
	}
	defer func() { _ = f.Close() }()

	rep, err := v.ValidateReader(f)
	if rep != nil {
		rep.Path = path
	}
	var defect *DefectError
	if errors.As(err, &defect) {
		defect.Path = path
		v.logger.Debug("Corpus defect",
			zap.String("path", path),
			zap.Int("line", defect.Line),
			zap.String("kind", string(defect.Kind)))
	}
	return rep, err
}

// ValidateReader checks corpus data read from r.
func (v *Validator) ValidateReader(r io.Reader) (*Report, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, initialLineBytes), MaxLineBytes)

	rep := &Report{}
	for s.Scan() {
		rep.Lines++
		line := bytes.TrimSpace(s.Bytes())
		if len(line) == 0 {
			rep.BlankLines++
			continue
		}
		if err := checkLine(rep.Lines, line); err != nil {
			return nil, err
		}
		rep.Records++
	}
	if err := s.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &DefectError{
				Line:   rep.Lines + 1,
				Kind:   DefectLineTooLong,
				Detail: fmt.Sprintf("line exceeds %d bytes", MaxLineBytes),
			}
		}
		return nil, fmt.Errorf("read training data: %w", err)
	}

	v.logger.Debug("Corpus valid",
		zap.Int("records", rep.Records),
		zap.Int("blank_lines", rep.BlankLines))
	return rep, nil
}

// checkLine validates a single trimmed, non-blank line.
func checkLine(lineNo int, line []byte) error {
	if !utf8.Valid(line) {
		return &DefectError{Line: lineNo, Kind: DefectInvalidUTF8, Detail: "line is not valid UTF-8"}
	}

	var value any
	if err := json.Unmarshal(line, &value); err != nil {
		return &DefectError{Line: lineNo, Kind: DefectInvalidJSON, Detail: err.Error()}
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return &DefectError{
			Line:   lineNo,
			Kind:   DefectNotObject,
			Detail: fmt.Sprintf("expected a JSON object, got %s", jsonKind(value)),
		}
	}

	var missing []string
	for _, field := range []string{FieldPrompt, FieldCompletion} {
		if _, ok := obj[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &DefectError{Line: lineNo, Kind: DefectMissingField, Fields: missing}
	}
	return nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
