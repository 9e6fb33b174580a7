package identity

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

// busMachineID asks the system bus daemon for the machine id through the
// org.freedesktop.DBus.Peer interface. It is the same identifier dbus keeps
// in /var/lib/dbus/machine-id.
func busMachineID() (string, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return "", fmt.Errorf("connect system bus: %w", err)
	}

	var id string
	obj := conn.Object("org.freedesktop.DBus", "/org/freedesktop/DBus")
	if err := obj.Call("org.freedesktop.DBus.Peer.GetMachineId", 0).Store(&id); err != nil {
		return "", fmt.Errorf("GetMachineId: %w", err)
	}
	return strings.TrimSpace(id), nil
}
