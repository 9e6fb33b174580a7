package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"keytrace/internal/identity"
	"keytrace/internal/keystroke"
)

// FileSink appends captured sessions to a JSON Lines file.
type FileSink struct {
	path      string
	file      *os.File
	writer    *Writer
	validator *Validator

	closeOnce sync.Once
	closeErr  error
}

// NewFileSink opens path for appending. A non-nil validator rejects records
// that do not match their schema before they are written.
func NewFileSink(path string, validator *Validator) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	return &FileSink{
		path:      path,
		file:      f,
		writer:    NewWriter(f),
		validator: validator,
	}, nil
}

// Name identifies the sink.
func (s *FileSink) Name() string { return "jsonl" }

// Path returns the output file path.
func (s *FileSink) Path() string { return s.path }

// BeginSession writes the identity header.
func (s *FileSink) BeginSession(_ context.Context, sessionID string, rec identity.Record, _ time.Time) error {
	if s.validator != nil {
		if err := s.validator.ValidateIdentity(sessionID, rec); err != nil {
			return fmt.Errorf("identity header: %w", err)
		}
	}
	return s.writer.WriteIdentity(sessionID, rec)
}

// EndSession flushes the file to disk.
func (s *FileSink) EndSession(context.Context, string, time.Time) error {
	return s.file.Sync()
}

// Write appends one event.
func (s *FileSink) Write(_ context.Context, ev keystroke.Event) error {
	if s.validator != nil {
		if err := s.validator.ValidateEvent(ev); err != nil {
			return fmt.Errorf("key event: %w", err)
		}
	}
	return s.writer.WriteEvent(ev)
}

// Close syncs and closes the file. It is safe to call more than once.
func (s *FileSink) Close() error {
	s.closeOnce.Do(func() {
		if err := s.file.Sync(); err != nil {
			s.closeErr = err
		}
		if err := s.file.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
