package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vyrodovalexey/basefn/internal/datastore"
)

// Sink persists audit events.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev *Event) error
}

// WriterSink writes events as JSON lines.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewWriterSink creates a sink writing to w. The sink does not close w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// OpenWriterSink opens the sink for an output destination: stdout,
// stderr or a file path opened for appending.
func OpenWriterSink(output string) (*WriterSink, error) {
	switch output {
	case OutputStdout, "":
		return NewWriterSink(os.Stdout), nil
	case OutputStderr:
		return NewWriterSink(os.Stderr), nil
	default:
		//nolint:gosec // path comes from trusted configuration
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open audit log file: %w", err)
		}
		return &WriterSink{w: f, closer: f}, nil
	}
}

// Name implements Sink.
func (s *WriterSink) Name() string { return "writer" }

// Write implements Sink.
func (s *WriterSink) Write(_ context.Context, ev *Event) error {
	out, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	out = append(out, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(out); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// Close closes the underlying file, if the sink opened one.
func (s *WriterSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// AuditInserter is the datastore operation the datastore sink needs.
type AuditInserter interface {
	InsertAudit(ctx context.Context, row datastore.AuditRow) (bool, error)
}

// DatastoreSink persists events as audit rows.
type DatastoreSink struct {
	db AuditInserter
}

// NewDatastoreSink creates a sink backed by db.
func NewDatastoreSink(db AuditInserter) *DatastoreSink {
	return &DatastoreSink{db: db}
}

// Name implements Sink.
func (s *DatastoreSink) Name() string { return "datastore" }

// Write implements Sink.
func (s *DatastoreSink) Write(ctx context.Context, ev *Event) error {
	if _, err := s.db.InsertAudit(ctx, ev.Row()); err != nil {
		return err
	}
	return nil
}
