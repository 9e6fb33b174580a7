// Package platform exposes the operating-system facilities keytrace needs to
// resolve keyboard input: input focus, per-thread keyboard layouts, scan code
// mapping, modifier state, character composition, locale names and process
// image paths.
//
// The surface deliberately mirrors the Win32 calls it is modelled on
// (GetForegroundWindow, GetKeyboardLayout, MapVirtualKeyEx, ToUnicodeEx, ...).
// Windows binds them directly through user32/kernel32. Other desktops get a
// Desktop shim that answers the same questions from X11/macOS utilities and a
// built-in set of layout tables. Where a platform has no equivalent, the shim
// reports "nothing" and callers substitute their documented fallbacks.
package platform

import (
	"errors"
	"os/exec"
)

// Window identifies a top-level window. Zero means no window.
type Window uintptr

// Layout is a keyboard layout handle (HKL). The low word carries the
// language identifier, the high word the device/layout identifier.
type Layout uintptr

// LangID returns the language identifier embedded in the layout handle.
func (l Layout) LangID() uint16 {
	return uint16(uintptr(l) & 0xFFFF)
}

// KeyboardState is the 256-entry virtual-key state table. The high bit of an
// entry is set while the key is held; the low bit is the toggle state.
type KeyboardState [256]byte

// Down reports whether the key with the given virtual key code is held.
func (s *KeyboardState) Down(vk uint32) bool {
	return vk < 256 && s[vk]&0x80 != 0
}

// Toggled reports whether the toggle bit of a key (e.g. Caps Lock) is set.
func (s *KeyboardState) Toggled(vk uint32) bool {
	return vk < 256 && s[vk]&0x01 != 0
}

// Scan code to virtual key mapping modes for MapVirtualKey(Ex).
const (
	MapVscToVK   = 1
	MapVscToVKEx = 3
)

// Virtual key codes used outside the per-layout tables.
const (
	VKBack     = 0x08
	VKTab      = 0x09
	VKReturn   = 0x0D
	VKShift    = 0x10
	VKControl  = 0x11
	VKMenu     = 0x12
	VKCapital  = 0x14
	VKEscape   = 0x1B
	VKSpace    = 0x20
	VKLShift   = 0xA0
	VKRShift   = 0xA1
	VKLControl = 0xA2
	VKRControl = 0xA3
	VKLMenu    = 0xA4
	VKRMenu    = 0xA5
)

// ErrNoKeyboardState is returned when the modifier state cannot be read.
var ErrNoKeyboardState = errors.New("platform: keyboard state unavailable")

// ErrUnknownLocale is returned when a language identifier has no locale name.
var ErrUnknownLocale = errors.New("platform: unknown locale identifier")

// OS is the set of operating-system queries used by the key event pipeline.
// Implementations must not keep handles open across calls.
type OS interface {
	// ForegroundWindow returns the window holding input focus, or 0.
	ForegroundWindow() Window

	// WindowThreadProcessID returns the owning thread and process of a window.
	// Both are 0 when the window is gone.
	WindowThreadProcessID(w Window) (tid, pid uint32)

	// KeyboardLayout returns the layout bound to a thread, or 0.
	KeyboardLayout(tid uint32) Layout

	// MapVirtualKeyEx maps a code through the given layout.
	MapVirtualKeyEx(code, mapType uint32, layout Layout) uint32

	// MapVirtualKey maps a code without a specific layout.
	MapVirtualKey(code, mapType uint32) uint32

	// KeyboardState fills state with the current virtual-key state.
	KeyboardState(state *KeyboardState) error

	// ToUnicodeEx composes a key into UTF-16 code units written to buf. It
	// returns the number of units written, 0 when the key produces nothing,
	// or a negative value for a dead key.
	ToUnicodeEx(vk, scanCode uint32, state *KeyboardState, buf []uint16, flags uint32, layout Layout) int32

	// LCIDToLocaleName returns the locale name (e.g. "en-US") for an LCID.
	LCIDToLocaleName(lcid uint32) (string, error)

	// ProcessImagePath returns the full executable path of a process.
	ProcessImagePath(pid uint32) (string, error)
}

// Observer is implemented by shims that derive keyboard state from the
// stream of captured key transitions instead of querying the OS.
type Observer interface {
	ObserveKey(scanCode uint32, down bool)
}

// Runner executes an external utility and returns its standard output.
type Runner func(name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}
