package keystroke

import (
	"fmt"
	"unicode/utf16"

	"keytrace/internal/platform"
)

// composeBufferSize is the UTF-16 buffer handed to ToUnicodeEx.
const composeBufferSize = 8

// Translator turns a hardware scan code into the characters it produces
// under the focused thread's layout and the current modifier state.
type Translator struct {
	os    platform.OS
	focus *Foreground
}

// NewTranslator returns a translator backed by os.
func NewTranslator(os platform.OS) *Translator {
	return &Translator{os: os, focus: NewForeground(os)}
}

// Translate returns the composed text for scanCode. It returns "" with a nil
// error when the key has no virtual key, produces no character, or is a dead
// key; the pending accent of a dead key is discarded.
func (t *Translator) Translate(scanCode uint32) (string, error) {
	if scanCode == 0 {
		return "", ErrInvalidScanCode
	}

	focus, ok := t.focus.FocusedThreadAndProcess()
	if !ok {
		return "", ErrNoForegroundWindow
	}
	hkl := t.os.KeyboardLayout(focus.ThreadID)

	vk := t.os.MapVirtualKeyEx(scanCode, platform.MapVscToVKEx, hkl)
	if vk == 0 {
		vk = t.os.MapVirtualKey(scanCode, platform.MapVscToVK)
	}
	if vk == 0 {
		return "", nil
	}

	var state platform.KeyboardState
	if err := t.os.KeyboardState(&state); err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyboardState, err)
	}

	buf := make([]uint16, composeBufferSize)
	n := t.os.ToUnicodeEx(vk, scanCode, &state, buf, 0, hkl)
	if n <= 0 {
		return "", nil
	}
	if int(n) > len(buf) {
		n = int32(len(buf))
	}
	return string(utf16.Decode(buf[:n])), nil
}
