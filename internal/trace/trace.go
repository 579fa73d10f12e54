// Package trace records arbitration events as JSON lines.
package trace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/alertflow/internal/monitor"
)

// SchemaVersion is the current trace schema version.
const SchemaVersion = 1

// schemaHeader is the first line of a trace.
type schemaHeader struct {
	TraceSchemaVersion int    `json:"alertflow_trace_version"`
	Scope              string `json:"scope,omitempty"`
	CreatedAt          int64  `json:"created_at"`
}

// ErrWriterClosed is returned when writing to a closed Writer.
var ErrWriterClosed = errors.New("trace writer is closed")

// Writer is a monitor.Observer appending every event it receives as one
// JSON object per line.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	file   *os.File
	closed bool
	err    error
	logger *slog.Logger
}

// NewWriter writes a header to w and returns a Writer appending to it.
func NewWriter(w io.Writer, scope string) (*Writer, error) {
	tw := &Writer{w: w, logger: slog.Default()}
	if err := tw.writeHeader(scope); err != nil {
		return nil, err
	}
	return tw, nil
}

// NewFileWriter opens path for appending, creating it and its directory if
// needed. The header is written only to an empty file.
func NewFileWriter(path, scope string) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	tw := &Writer{w: file, file: file, logger: slog.Default()}
	if info.Size() == 0 {
		if err := tw.writeHeader(scope); err != nil {
			file.Close()
			return nil, err
		}
	}
	return tw, nil
}

// SetLogger sets the logger used to report write failures.
func (w *Writer) SetLogger(logger *slog.Logger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if logger != nil {
		w.logger = logger
	}
}

func (w *Writer) writeHeader(scope string) error {
	data, err := json.Marshal(schemaHeader{
		TraceSchemaVersion: SchemaVersion,
		Scope:              scope,
		CreatedAt:          time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	_, err = w.w.Write(append(data, '\n'))
	return err
}

// ReceiveEvent implements monitor.Observer. The first write error is kept
// and reported by Err; later events are dropped.
func (w *Writer) ReceiveEvent(e monitor.Event) {
	if err := w.Write(e); err != nil && !errors.Is(err, ErrWriterClosed) {
		w.logger.Warn("failed to write trace event", "kind", e.Kind, "error", err)
	}
}

// Write appends e to the trace.
func (w *Writer) Write(e monitor.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if w.err != nil {
		return w.err
	}

	data, err := json.Marshal(e)
	if err != nil {
		w.err = err
		return err
	}
	if _, err := w.w.Write(append(data, '\n')); err != nil {
		w.err = err
		return err
	}
	return nil
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close flushes and closes the underlying file, if the Writer owns one.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			w.file.Close()
			return err
		}
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}

// Read parses a trace. Malformed lines are skipped; a header with a newer
// schema version is an error.
func Read(r io.Reader) ([]monitor.Event, error) {
	var events []monitor.Event
	scanner := bufio.NewScanner(r)

	// Increase buffer size for potentially long lines
	const maxLineSize = 1024 * 1024 // 1MB
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var header schemaHeader
		if json.Unmarshal(line, &header) == nil && header.TraceSchemaVersion > 0 {
			if header.TraceSchemaVersion > SchemaVersion {
				return nil, fmt.Errorf("unsupported trace schema version %d (max: %d)",
					header.TraceSchemaVersion, SchemaVersion)
			}
			continue
		}

		var e monitor.Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		events = append(events, e)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading trace: %w", err)
	}
	return events, nil
}

// ReadFile parses the trace at path.
func ReadFile(path string) ([]monitor.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Read(file)
}
