//go:build !linux && !windows

package keystroke

import "context"

// StubListener is used on platforms without a keyboard hook.
type StubListener struct {
	BaseListener
}

func newPlatformListener() Listener {
	return &StubListener{}
}

// Available returns false on unsupported platforms.
func (s *StubListener) Available() (bool, string) {
	return false, "keyboard capture not implemented for this platform"
}

// Start returns an error on unsupported platforms.
func (s *StubListener) Start(ctx context.Context) error {
	return ErrNotAvailable
}

// Stop is a no-op on unsupported platforms.
func (s *StubListener) Stop() error {
	return nil
}
