// Package export writes captured sessions as JSON Lines and validates them
// against the published record schemas.
//
// A file holds one identity header per session followed by that session's
// key events, one JSON object per line. Every line carries a "type" field,
// either "identity" or "key_event".
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"keytrace/internal/identity"
	"keytrace/internal/keystroke"
)

// Record types.
const (
	TypeIdentity = "identity"
	TypeKeyEvent = "key_event"
)

// IdentityLine is the header written before a session's events.
type IdentityLine struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	identity.Record
}

// EventLine is one key event.
type EventLine struct {
	Type string `json:"type"`
	keystroke.Event
}

// Writer encodes records as JSON Lines. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
	n   int
}

// NewWriter returns a Writer that appends to w.
func NewWriter(w io.Writer) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Writer{enc: enc}
}

// WriteIdentity writes the session header.
func (w *Writer) WriteIdentity(sessionID string, rec identity.Record) error {
	return w.encode(IdentityLine{Type: TypeIdentity, SessionID: sessionID, Record: rec})
}

// WriteEvent writes one key event.
func (w *Writer) WriteEvent(ev keystroke.Event) error {
	return w.encode(EventLine{Type: TypeKeyEvent, Event: ev})
}

// WriteSession writes a header followed by events.
func (w *Writer) WriteSession(sessionID string, rec identity.Record, events []keystroke.Event) error {
	if err := w.WriteIdentity(sessionID, rec); err != nil {
		return err
	}
	for _, ev := range events {
		if err := w.WriteEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

// Lines returns the number of lines written.
func (w *Writer) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

func (w *Writer) encode(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("encode line %d: %w", w.n+1, err)
	}
	w.n++
	return nil
}
