//go:build !windows

package platform

import "runtime"

// New returns the Desktop shim for this platform.
func New() OS {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		return NewDesktop(NewX11())
	case "darwin":
		return NewDesktop(NewMacOS())
	default:
		return NewDesktop(nil)
	}
}
