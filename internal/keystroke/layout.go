package keystroke

import (
	"fmt"

	"keytrace/internal/platform"
)

// Layouts resolves the locale name of the focused thread's keyboard layout.
type Layouts struct {
	os    platform.OS
	focus *Foreground
}

// NewLayouts returns a layout resolver backed by os.
func NewLayouts(os platform.OS) *Layouts {
	return &Layouts{os: os, focus: NewForeground(os)}
}

// FocusedLayoutLocale returns a locale name such as "en-US". When any stage
// of the lookup fails it returns "LANGID_0x%04x" with the best identifier
// obtained so far.
func (l *Layouts) FocusedLayoutLocale() string {
	focus, ok := l.focus.FocusedThreadAndProcess()
	if !ok {
		return langIDFallback(0)
	}
	hkl := l.os.KeyboardLayout(focus.ThreadID)
	if hkl == 0 {
		return langIDFallback(0)
	}
	langID := hkl.LangID()
	name, err := l.os.LCIDToLocaleName(uint32(langID))
	if err != nil || name == "" {
		return langIDFallback(langID)
	}
	return name
}

func langIDFallback(id uint16) string {
	return fmt.Sprintf("LANGID_0x%04x", id)
}
