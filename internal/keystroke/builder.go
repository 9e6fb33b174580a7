package keystroke

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"keytrace/internal/platform"
)

// Fallback resolvers reported through BuilderOptions.OnFallback.
const (
	FallbackKeyName = "key_name"
	FallbackFocus   = "focus"
	FallbackLayout  = "layout"
	FallbackProcess = "process"
)

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// SessionID is stamped on every event. A new id is generated when empty.
	SessionID string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// OnFallback is called whenever a resolver substitutes a fallback value.
	OnFallback func(resolver string)
}

// Builder assembles Events from raw hook events. It keeps no state between
// calls apart from its fixed session id.
type Builder struct {
	sessionID  string
	now        func() time.Time
	onFallback func(string)

	translator *Translator
	layouts    *Layouts
	focus      *Foreground
}

// NewSessionID returns a random session id as 32 lowercase hex digits.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewBuilder returns a builder backed by os.
func NewBuilder(os platform.OS, opts BuilderOptions) *Builder {
	b := &Builder{
		sessionID:  opts.SessionID,
		now:        opts.Now,
		onFallback: opts.OnFallback,
		translator: NewTranslator(os),
		layouts:    NewLayouts(os),
		focus:      NewForeground(os),
	}
	if b.sessionID == "" {
		b.sessionID = NewSessionID()
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// SessionID returns the id stamped on built events.
func (b *Builder) SessionID() string {
	return b.sessionID
}

// Build normalises raw into an Event. ErrInvalidScanCode and
// ErrKeyboardState are returned as is; a missing foreground window only
// degrades the event to its symbolic name and fallback context.
func (b *Builder) Build(raw RawEvent) (Event, error) {
	if !raw.Kind.Valid() {
		return Event{}, ErrInvalidEventKind
	}

	text, err := b.translator.Translate(raw.ScanCode)
	switch {
	case errors.Is(err, ErrNoForegroundWindow):
		b.fallback(FallbackFocus)
		text = ""
	case err != nil:
		return Event{}, err
	}

	name := strings.TrimSpace(text)
	if name == "" || isSingleControl(name) {
		b.fallback(FallbackKeyName)
		name = raw.Name
	}
	if name == "" {
		name = "sc_" + strconv.FormatUint(uint64(raw.ScanCode), 10)
	}

	layout := b.layouts.FocusedLayoutLocale()
	if strings.HasPrefix(layout, "LANGID_") {
		b.fallback(FallbackLayout)
	}
	window := b.focus.ActiveProcessName()
	if window == UnknownProcess {
		b.fallback(FallbackProcess)
	}

	return Event{
		SessionID:      b.sessionID,
		KeyName:        name,
		Kind:           raw.Kind,
		Timestamp:      b.now().UnixNano(),
		ScanCode:       raw.ScanCode,
		KeyboardLayout: layout,
		ActiveWindow:   window,
	}, nil
}

func (b *Builder) fallback(resolver string) {
	if b.onFallback != nil {
		b.onFallback(resolver)
	}
}

func isSingleControl(s string) bool {
	r, size := utf8.DecodeRuneInString(s)
	return size == len(s) && unicode.Is(unicode.Cc, r)
}
