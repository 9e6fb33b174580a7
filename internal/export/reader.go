package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"keytrace/internal/keystroke"
)

// maxLineSize bounds a single JSONL line.
const maxLineSize = 1 << 20

// Session is one identity header and the events that follow it.
type Session struct {
	Header IdentityLine
	Events []keystroke.Event
}

// Read parses a JSON Lines stream. Events before the first header are
// returned in a session with an empty header.
func Read(r io.Reader) ([]Session, error) {
	var sessions []Session
	current := -1

	err := scanLines(r, func(lineNo int, line []byte) error {
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}

		switch probe.Type {
		case TypeIdentity:
			var h IdentityLine
			if err := json.Unmarshal(line, &h); err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			sessions = append(sessions, Session{Header: h})
			current = len(sessions) - 1
		case TypeKeyEvent:
			var e EventLine
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			if current < 0 {
				sessions = append(sessions, Session{})
				current = 0
			}
			sessions[current].Events = append(sessions[current].Events, e.Event)
		default:
			return fmt.Errorf("line %d: unknown record type %q", lineNo, probe.Type)
		}
		return nil
	})
	return sessions, err
}

// ReadFile parses the JSON Lines file at path.
func ReadFile(path string) ([]Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// scanLines calls fn for every non-blank line with its 1-based number.
func scanLines(r io.Reader, fn func(lineNo int, line []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read line %d: %w", lineNo+1, err)
	}
	return nil
}
