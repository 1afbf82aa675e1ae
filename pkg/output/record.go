// Package output provides JSONL output for loratune commands.
//
// Output is structured as typed record envelopes. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: loratune.<type>.v<version>
const (
	// TypeCorpus identifies per-file corpus validation records.
	TypeCorpus = "loratune.corpus.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "loratune.summary.v1"

	// TypeError identifies error records.
	TypeError = "loratune.error.v1"

	// TypeArtifact identifies published artifact records.
	TypeArtifact = "loratune.artifact.v1"

	// TypePrepare identifies corpus preparation results.
	TypePrepare = "loratune.prepare.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "loratune.corpus.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID correlates all records emitted by one command invocation.
	RunID string `json:"run_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// CorpusRecord is the data payload for one validated corpus file.
type CorpusRecord struct {
	Path       string `json:"path"`
	Valid      bool   `json:"valid"`
	Records    int    `json:"records"`
	BlankLines int    `json:"blank_lines"`
	Lines      int    `json:"lines"`

	// Defect describes the first offending line of an invalid file.
	Defect *DefectRecord `json:"defect,omitempty"`

	// Error is set when the file could not be read at all.
	Error string `json:"error,omitempty"`
}

// DefectRecord locates a corpus defect.
type DefectRecord struct {
	Line    int      `json:"line"`
	Kind    string   `json:"kind"`
	Fields  []string `json:"fields,omitempty"`
	Message string   `json:"message"`
}

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	// Files is the number of files checked.
	Files int `json:"files"`

	// Valid is the number of files that passed.
	Valid int `json:"valid"`

	// Invalid is the number of files that failed or could not be read.
	Invalid int `json:"invalid"`

	// Records is the total number of records in valid files.
	Records int `json:"records"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// ArtifactRecord is the data payload for a published adapter file.
type ArtifactRecord struct {
	Source string `json:"source"`
	URI    string `json:"uri"`
	Size   int64  `json:"size"`
	ETag   string `json:"etag,omitempty"`
}

// PrepareRecord is the data payload for one prepared corpus.
type PrepareRecord struct {
	Source     string `json:"source"`
	Output     string `json:"output"`
	Lines      int    `json:"lines"`
	BlankLines int    `json:"blank_lines"`
	Kept       int    `json:"kept"`

	// Dropped counts removed lines by reason (e.g. "duplicate").
	Dropped map[string]int `json:"dropped"`

	Duration      time.Duration `json:"duration_ns"`
	DurationHuman string        `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
