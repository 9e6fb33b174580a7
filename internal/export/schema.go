package export

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"keytrace/internal/identity"
	"keytrace/internal/keystroke"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// Schema names.
const (
	SchemaKeyEvent = "key-event-v1"
	SchemaIdentity = "identity-v1"
)

// SchemaJSON returns the raw embedded schema document.
func SchemaJSON(name string) ([]byte, error) {
	return schemaFS.ReadFile(path.Join("schemas", name+".schema.json"))
}

// Validator checks records against the embedded JSON Schemas.
type Validator struct {
	keyEvent *jsonschema.Schema
	identity *jsonschema.Schema
}

// NewValidator compiles the embedded schemas.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	compile := func(name string) (*jsonschema.Schema, error) {
		data, err := SchemaJSON(name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		url := "mem:///" + name + ".schema.json"
		if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", name, err)
		}
		s, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		return s, nil
	}

	v := &Validator{}
	var err error
	if v.keyEvent, err = compile(SchemaKeyEvent); err != nil {
		return nil, err
	}
	if v.identity, err = compile(SchemaIdentity); err != nil {
		return nil, err
	}
	return v, nil
}

// ValidateEvent checks ev as it would be written to a file.
func (v *Validator) ValidateEvent(ev keystroke.Event) error {
	return v.validateValue(v.keyEvent, EventLine{Type: TypeKeyEvent, Event: ev})
}

// ValidateIdentity checks an identity header.
func (v *Validator) ValidateIdentity(sessionID string, rec identity.Record) error {
	return v.validateValue(v.identity, IdentityLine{Type: TypeIdentity, SessionID: sessionID, Record: rec})
}

func (v *Validator) validateValue(s *jsonschema.Schema, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return v.validateJSON(s, data)
}

// ValidateLine checks one JSONL line, picking the schema from its type.
func (v *Validator) ValidateLine(line []byte) error {
	_, err := v.validateLine(line)
	return err
}

func (v *Validator) validateLine(line []byte) (string, error) {
	instance, err := decode(line)
	if err != nil {
		return "", err
	}
	obj, ok := instance.(map[string]any)
	if !ok {
		return "", errors.New("record is not a JSON object")
	}
	switch kind := obj["type"]; kind {
	case TypeKeyEvent:
		return TypeKeyEvent, v.keyEvent.Validate(instance)
	case TypeIdentity:
		return TypeIdentity, v.identity.Validate(instance)
	default:
		return "", fmt.Errorf("unknown record type %v", kind)
	}
}

func (v *Validator) validateJSON(s *jsonschema.Schema, data []byte) error {
	instance, err := decode(data)
	if err != nil {
		return err
	}
	return s.Validate(instance)
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return instance, nil
}

// LineError is a validation failure on one line of a file.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// Report summarises a file validation.
type Report struct {
	Identities int
	Events     int
	Errors     []LineError
}

// Valid reports whether every line passed.
func (r *Report) Valid() bool {
	return len(r.Errors) == 0
}

// ValidateReader checks every line of a JSON Lines stream. Invalid lines are
// collected in the report; the error is reserved for read failures.
func (v *Validator) ValidateReader(r io.Reader) (*Report, error) {
	report := &Report{}
	err := scanLines(r, func(lineNo int, line []byte) error {
		kind, err := v.validateLine(line)
		switch {
		case err != nil:
			report.Errors = append(report.Errors, LineError{Line: lineNo, Err: err})
		case kind == TypeIdentity:
			report.Identities++
		default:
			report.Events++
		}
		return nil
	})
	return report, err
}

// ValidateFile checks the JSON Lines file at path.
func (v *Validator) ValidateFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return v.ValidateReader(f)
}
