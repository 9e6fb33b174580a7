package keystroke

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind is the direction of a key transition.
type EventKind uint8

const (
	KindDown EventKind = iota + 1
	KindUp
)

func (k EventKind) String() string {
	switch k {
	case KindDown:
		return "DOWN"
	case KindUp:
		return "UP"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Valid reports whether k is DOWN or UP.
func (k EventKind) Valid() bool {
	return k == KindDown || k == KindUp
}

// ParseEventKind parses "DOWN" or "UP".
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "DOWN":
		return KindDown, nil
	case "UP":
		return KindUp, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidEventKind, s)
	}
}

func (k EventKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEventKind, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(text []byte) error {
	parsed, err := ParseEventKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// RawEvent is a key transition as delivered by a hook.
type RawEvent struct {
	Name     string    // symbolic key name, e.g. "a", "shift", "enter"
	Kind     EventKind
	ScanCode uint32
	Time     time.Time // capture time, informational only
}

// Event is a normalised key event. It is never modified after Build returns.
type Event struct {
	SessionID      string    `json:"session_id" cbor:"session_id"`
	KeyName        string    `json:"key_name" cbor:"key_name"`
	Kind           EventKind `json:"event" cbor:"event"`
	Timestamp      int64     `json:"timestamp" cbor:"timestamp"`
	ScanCode       uint32    `json:"scan_code" cbor:"scan_code"`
	KeyboardLayout string    `json:"keyboard_layout" cbor:"keyboard_layout"`
	ActiveWindow   string    `json:"active_window" cbor:"active_window"`
}

// Time returns the event timestamp as a time.Time.
func (e Event) Time() time.Time {
	return time.Unix(0, e.Timestamp)
}

// Map returns the event as a field map keyed by the JSON names.
func (e Event) Map() map[string]any {
	return map[string]any{
		"session_id":      e.SessionID,
		"key_name":        e.KeyName,
		"event":           e.Kind.String(),
		"timestamp":       e.Timestamp,
		"scan_code":       e.ScanCode,
		"keyboard_layout": e.KeyboardLayout,
		"active_window":   e.ActiveWindow,
	}
}

// String renders the event as a single JSON object.
func (e Event) String() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("%s %s sc=%d", e.Kind, e.KeyName, e.ScanCode)
	}
	return string(data)
}
