package capture

import (
	"context"
	"fmt"
	"io"
	"time"

	"keytrace/internal/identity"
	"keytrace/internal/keystroke"
)

// Sink receives built events. Sinks are only called from the pipeline's
// build worker and need not be safe for concurrent use.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev keystroke.Event) error
	Close() error
}

// SessionSink is implemented by sinks that record session boundaries.
type SessionSink interface {
	Sink
	BeginSession(ctx context.Context, sessionID string, rec identity.Record, started time.Time) error
	EndSession(ctx context.Context, sessionID string, ended time.Time) error
}

// WriterSink prints each event as one JSON object per line, for
// foreground runs.
type WriterSink struct {
	w io.Writer
}

// NewWriterSink returns a sink that prints to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Name() string { return "console" }

func (s *WriterSink) Write(_ context.Context, ev keystroke.Event) error {
	_, err := fmt.Fprintln(s.w, ev.String())
	return err
}

func (s *WriterSink) Close() error { return nil }
