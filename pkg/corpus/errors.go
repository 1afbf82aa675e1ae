package corpus

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFileNotFound indicates the training data file does not exist.
var ErrFileNotFound = errors.New("training data not found")

// DefectKind classifies why a corpus line was rejected.
//
// Values appear in JSONL output and are part of the stable contract.
type DefectKind string

const (
	DefectInvalidJSON  DefectKind = "invalid_json"
	DefectNotObject    DefectKind = "not_object"
	DefectMissingField DefectKind = "missing_field"
	DefectInvalidUTF8  DefectKind = "invalid_utf8"
	DefectLineTooLong  DefectKind = "line_too_long"
)

// DefectError reports the first offending line of a corpus.
type DefectError struct {
	// Path is the corpus file, if known.
	Path string

	// Line is the 1-based line number.
	Line int

	// Kind classifies the defect.
	Kind DefectKind

	// Fields lists the missing required fields for DefectMissingField.
	Fields []string

	// Detail carries the parser message for other kinds.
	Detail string
}

// Error implements the error interface.
func (e *DefectError) Error() string {
	var msg string
	switch e.Kind {
	case DefectMissingField:
		quoted := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			quoted[i] = fmt.Sprintf("%q", f)
		}
		noun := "field"
		if len(quoted) > 1 {
			noun = "fields"
		}
		msg = fmt.Sprintf("missing %s %s", strings.Join(quoted, " and "), noun)
	case DefectInvalidJSON:
		msg = "invalid JSON: " + e.Detail
	default:
		msg = e.Detail
	}
	return fmt.Sprintf("line %d: %s", e.Line, msg)
}

// IsDefect reports whether err is a corpus content defect.
func IsDefect(err error) bool {
	var d *DefectError
	return errors.As(err, &d)
}
