package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"
)

// Writer outputs JSONL records.
//
// Implementations must be safe for concurrent use. Each Write* method emits
// a complete record as a single line of JSON followed by a newline.
type Writer interface {
	WriteCorpus(ctx context.Context, rec *CorpusRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error
	WriteArtifact(ctx context.Context, art *ArtifactRecord) error
	WritePrepare(ctx context.Context, rec *PrepareRecord) error

	// WriteError emits a gofulmen error envelope, stamped with the run ID
	// as its correlation ID.
	WriteError(ctx context.Context, env *gferrors.ErrorEnvelope) error

	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// Writes are serialized using a mutex so lines never interleave.
type JSONLWriter struct {
	w     io.Writer
	runID string
	now   func() time.Time
	mu    sync.Mutex

	closed bool
}

// NewJSONLWriter creates a new JSONL writer. runID is copied into every
// envelope.
func NewJSONLWriter(w io.Writer, runID string) *JSONLWriter {
	return &JSONLWriter{
		w:     w,
		runID: runID,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (jw *JSONLWriter) WriteCorpus(ctx context.Context, rec *CorpusRecord) error {
	return jw.writeRecord(ctx, TypeCorpus, rec)
}

func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

func (jw *JSONLWriter) WriteArtifact(ctx context.Context, art *ArtifactRecord) error {
	return jw.writeRecord(ctx, TypeArtifact, art)
}

func (jw *JSONLWriter) WritePrepare(ctx context.Context, rec *PrepareRecord) error {
	return jw.writeRecord(ctx, TypePrepare, rec)
}

func (jw *JSONLWriter) WriteError(ctx context.Context, env *gferrors.ErrorEnvelope) error {
	if env != nil && jw.runID != "" {
		env = env.WithCorrelationID(jw.runID)
	}
	return jw.writeRecord(ctx, TypeError, env)
}

// Close marks the writer as closed. The underlying writer is left open.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line while holding
// the mutex.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}

	record := Record{
		Type:  recordType,
		TS:    jw.now(),
		RunID: jw.runID,
		Data:  dataBytes,
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may report a short write with a nil error; a truncated line
	// would corrupt the stream.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	return nil
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var _ Writer = (*JSONLWriter)(nil)
