// Package identity resolves the stable device and account identifiers that
// tag every capture session, plus the descriptive host details recorded
// next to them.
//
// Identifiers are prefixed with the source they came from:
//
//	win:<MachineGuid>      Windows registry
//	linux:<machine-id>     /etc/machine-id, /var/lib/dbus/machine-id or D-Bus
//	mac:<IOPlatformUUID>   ioreg
//	fb_mac:<n>             primary hardware address as a decimal integer
//	sid:<SID>              Windows account
//	uid:<n>                POSIX account
package identity

import (
	"net"
	"os"
	"os/user"
	"runtime"

	"keytrace/internal/platform"
)

// Sources are the environment probes identity resolution draws on. Tests
// replace individual fields; DefaultSources wires the real system.
type Sources struct {
	GOOS string

	ReadFile   func(name string) ([]byte, error)
	Run        platform.Runner
	Interfaces func() ([]net.Interface, error)

	// MachineGUID reads the Windows MachineGuid registry value.
	MachineGUID func() (string, error)
	// BusMachineID asks the D-Bus daemon for the machine id.
	BusMachineID func() (string, error)

	Getuid      func() int
	Hostname    func() (string, error)
	Getenv      func(key string) string
	CurrentUser func() (*user.User, error)
}

// DefaultSources returns probes for the running system.
func DefaultSources() Sources {
	return Sources{
		GOOS:         runtime.GOOS,
		ReadFile:     os.ReadFile,
		Run:          platform.ExecRunner,
		Interfaces:   net.Interfaces,
		MachineGUID:  machineGUID,
		BusMachineID: busMachineID,
		Getuid:       os.Getuid,
		Hostname:     os.Hostname,
		Getenv:       os.Getenv,
		CurrentUser:  user.Current,
	}
}

// withDefaults fills nil probes from DefaultSources.
func (s Sources) withDefaults() Sources {
	d := DefaultSources()
	if s.GOOS == "" {
		s.GOOS = d.GOOS
	}
	if s.ReadFile == nil {
		s.ReadFile = d.ReadFile
	}
	if s.Run == nil {
		s.Run = d.Run
	}
	if s.Interfaces == nil {
		s.Interfaces = d.Interfaces
	}
	if s.MachineGUID == nil {
		s.MachineGUID = d.MachineGUID
	}
	if s.BusMachineID == nil {
		s.BusMachineID = d.BusMachineID
	}
	if s.Getuid == nil {
		s.Getuid = d.Getuid
	}
	if s.Hostname == nil {
		s.Hostname = d.Hostname
	}
	if s.Getenv == nil {
		s.Getenv = d.Getenv
	}
	if s.CurrentUser == nil {
		s.CurrentUser = d.CurrentUser
	}
	return s
}
