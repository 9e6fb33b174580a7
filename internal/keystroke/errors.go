package keystroke

import "errors"

var (
	// ErrInvalidScanCode is returned when a raw event carries scan code 0.
	ErrInvalidScanCode = errors.New("keystroke: scan code must be positive")

	// ErrKeyboardState is returned when the modifier state cannot be read.
	ErrKeyboardState = errors.New("keystroke: keyboard state unreadable")

	// ErrNoForegroundWindow is returned by the translator when no window has
	// input focus. The builder substitutes the symbolic key name.
	ErrNoForegroundWindow = errors.New("keystroke: no foreground window")

	// ErrInvalidEventKind is returned for a raw event that is neither DOWN nor UP.
	ErrInvalidEventKind = errors.New("keystroke: invalid event kind")

	// ErrNotAvailable is returned when no keyboard hook exists on this platform.
	ErrNotAvailable = errors.New("keystroke: keyboard capture not available on this platform")

	// ErrPermissionDenied is returned when input devices cannot be opened.
	ErrPermissionDenied = errors.New("keystroke: insufficient permissions for keyboard capture")

	// ErrAlreadyRunning is returned when Start is called while already running.
	ErrAlreadyRunning = errors.New("keystroke: listener already running")
)
