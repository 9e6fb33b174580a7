package identity

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"os/user"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProbe = errors.New("probe failed")

// isolated returns Sources whose probes all fail, so each test enables only
// what it exercises.
func isolated(goos string) Sources {
	return Sources{
		GOOS:         goos,
		ReadFile:     func(string) ([]byte, error) { return nil, fs.ErrNotExist },
		Run:          func(string, ...string) ([]byte, error) { return nil, errProbe },
		Interfaces:   func() ([]net.Interface, error) { return nil, errProbe },
		MachineGUID:  func() (string, error) { return "", errProbe },
		BusMachineID: func() (string, error) { return "", errProbe },
		Getuid:       func() int { return -1 },
		Hostname:     func() (string, error) { return "", errProbe },
		Getenv:       func(string) string { return "" },
		CurrentUser:  func() (*user.User, error) { return nil, errProbe },
	}
}

func files(m map[string]string) func(string) ([]byte, error) {
	return func(name string) ([]byte, error) {
		if v, ok := m[name]; ok {
			return []byte(v), nil
		}
		return nil, fs.ErrNotExist
	}
}

func ethernet(index int, flags net.Flags, mac string) net.Interface {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		panic(err)
	}
	return net.Interface{Index: index, Name: "eth" + string(rune('0'+index)), Flags: flags, HardwareAddr: hw}
}

func TestDeviceWindows(t *testing.T) {
	src := isolated("windows")
	src.MachineGUID = func() (string, error) { return "4c4c4544-0042-3510-8051-b7c04f4e3132\n", nil }

	assert.Equal(t, "win:4c4c4544-0042-3510-8051-b7c04f4e3132", NewDeviceResolver(src).Resolve())
}

func TestDeviceLinuxSources(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		bus   string
		want  string
	}{
		{
			name:  "etc machine-id",
			files: map[string]string{"/etc/machine-id": "0f1e2d3c4b5a69788796a5b4c3d2e1f0\n", "/var/lib/dbus/machine-id": "other"},
			want:  "linux:0f1e2d3c4b5a69788796a5b4c3d2e1f0",
		},
		{
			name:  "dbus machine-id",
			files: map[string]string{"/var/lib/dbus/machine-id": "aabbccddeeff00112233445566778899"},
			want:  "linux:aabbccddeeff00112233445566778899",
		},
		{
			name:  "empty file falls through",
			files: map[string]string{"/etc/machine-id": "\n", "/var/lib/dbus/machine-id": "fedcba9876543210fedcba9876543210"},
			want:  "linux:fedcba9876543210fedcba9876543210",
		},
		{
			name: "bus daemon",
			bus:  "11112222333344445555666677778888",
			want: "linux:11112222333344445555666677778888",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := isolated("linux")
			src.ReadFile = files(tc.files)
			if tc.bus != "" {
				src.BusMachineID = func() (string, error) { return tc.bus, nil }
			}
			assert.Equal(t, tc.want, NewDeviceResolver(src).Resolve())
		})
	}
}

const ioregOutput = `+-o J314sAP  <class IOPlatformExpertDevice, id 0x100000220, registered, matched, active, busy 0 (12 ms), retain 36>
    {
      "IOPlatformSerialNumber" = "C02XXXXXXXXX"
      "IOPlatformUUID" = "9A1B2C3D-4E5F-6071-8293-A4B5C6D7E8F9"
      "manufacturer" = <"Apple Inc.">
    }
`

func TestDeviceDarwin(t *testing.T) {
	src := isolated("darwin")
	src.Run = func(name string, args ...string) ([]byte, error) {
		require.Equal(t, "ioreg", name)
		require.Equal(t, []string{"-rd1", "-c", "IOPlatformExpertDevice"}, args)
		return []byte(ioregOutput), nil
	}

	assert.Equal(t, "mac:9A1B2C3D-4E5F-6071-8293-A4B5C6D7E8F9", NewDeviceResolver(src).Resolve())
}

func TestDeviceDarwinWithoutUUIDFallsBack(t *testing.T) {
	src := isolated("darwin")
	src.Run = func(string, ...string) ([]byte, error) { return []byte("nothing here\n"), nil }
	assert.Equal(t, FallbackUnknown, NewDeviceResolver(src).Resolve())
}

func TestDeviceFallbackHardwareAddress(t *testing.T) {
	src := isolated("linux")
	src.Interfaces = func() ([]net.Interface, error) {
		return []net.Interface{
			ethernet(3, net.FlagUp, "02:00:00:00:00:03"),
			{Index: 1, Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
			ethernet(2, 0, "02:00:00:00:00:02"),
			ethernet(4, net.FlagUp, "02:00:00:00:00:04"),
		}, nil
	}

	// 0x020000000003
	assert.Equal(t, "fb_mac:2199023255555", NewDeviceResolver(src).Resolve())
}

func TestDeviceFallbackUnknown(t *testing.T) {
	for _, goos := range []string{"windows", "linux", "darwin", "plan9"} {
		t.Run(goos, func(t *testing.T) {
			assert.Equal(t, "fb_mac:unknown", NewDeviceResolver(isolated(goos)).Resolve())
		})
	}
}

func TestDeviceResolveIsCached(t *testing.T) {
	calls := 0
	src := isolated("windows")
	src.MachineGUID = func() (string, error) {
		calls++
		return "guid", nil
	}
	r := NewDeviceResolver(src)
	assert.Equal(t, r.Resolve(), r.Resolve())
	assert.Equal(t, 1, calls)
}

func TestDeviceIDPrefixes(t *testing.T) {
	id := NewDeviceResolver(DefaultSources()).Resolve()
	prefixes := []string{TagWindows, TagLinux, TagMac, TagFallback}
	found := false
	for _, p := range prefixes {
		if strings.HasPrefix(id, p) {
			found = true
		}
	}
	assert.True(t, found, "unexpected device id %q", id)
}

const whoamiTable = `
USER INFORMATION
----------------

User Name        SID
================ ==============================================
desktop-1\alice  S-1-5-21-3623811015-3361044348-30300820-1013
`

const whoamiList = `
USER INFORMATION
----------------

User Name: desktop-1\alice
S-1-5-21-1004336348-1177238915-682003330-512
`

func TestParseWhoami(t *testing.T) {
	assert.Equal(t, "S-1-5-21-3623811015-3361044348-30300820-1013", parseWhoami(whoamiTable))
	assert.Equal(t, "S-1-5-21-1004336348-1177238915-682003330-512", parseWhoami(whoamiList))
	assert.Equal(t, "", parseWhoami("S-1-x\nnothing"))
	assert.Equal(t, "S-1-5-18", parseWhoami("a S-1-5-19 b S-1-5-18"))
}

func TestAccountWindows(t *testing.T) {
	src := isolated("windows")
	src.Run = func(name string, args ...string) ([]byte, error) {
		require.Equal(t, "whoami", name)
		return []byte(whoamiTable), nil
	}
	assert.Equal(t, "sid:S-1-5-21-3623811015-3361044348-30300820-1013", NewAccountResolver(src).Resolve())

	assert.Equal(t, "sid:unknown", NewAccountResolver(isolated("windows")).Resolve())

	src.Run = func(string, ...string) ([]byte, error) { return []byte("no sid\n"), nil }
	assert.Equal(t, "sid:unknown", NewAccountResolver(src).Resolve())
}

func TestAccountPOSIX(t *testing.T) {
	src := isolated("linux")
	src.Getuid = func() int { return 1000 }
	assert.Equal(t, "uid:1000", NewAccountResolver(src).Resolve())

	assert.Equal(t, "uid:unknown", NewAccountResolver(isolated("darwin")).Resolve())
}

func TestSnapshot(t *testing.T) {
	src := isolated("linux")
	src.ReadFile = files(map[string]string{"/etc/machine-id": "abc"})
	src.Getuid = func() int { return 501 }
	src.Hostname = func() (string, error) { return "workstation", nil }
	src.Getenv = func(key string) string {
		if key == "USER" {
			return "alice"
		}
		return ""
	}

	s := NewSnapshot(src)
	assert.Equal(t, Record{
		DeviceID:   "linux:abc",
		AccountID:  "uid:501",
		DeviceName: "workstation",
		Username:   "alice",
		Platform:   "linux",
	}, s.Record())
	assert.Equal(t, "linux:abc", s.Map()["device_id"])

	again := NewSnapshot(src)
	assert.Equal(t, s.Record(), again.Record())

	data, err := s.JSON()
	require.NoError(t, err)
	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, s.Record(), rec)
}

func TestLoginNameOrder(t *testing.T) {
	env := map[string]string{"USER": "user", "USERNAME": "username"}
	src := isolated("linux")
	src.Getenv = func(key string) string { return env[key] }
	assert.Equal(t, "user", loginName(src))

	env["LOGNAME"] = "logname"
	assert.Equal(t, "logname", loginName(src))

	src.Getenv = func(string) string { return "" }
	src.CurrentUser = func() (*user.User, error) { return &user.User{Username: `CORP\bob`}, nil }
	assert.Equal(t, "bob", loginName(src))

	assert.Equal(t, "", loginName(isolated("linux")))
}

func TestCurrentIsStable(t *testing.T) {
	a := Current()
	b := Current()
	assert.Same(t, a, b)
	assert.NotEmpty(t, a.DeviceID())
	assert.NotEmpty(t, a.AccountID())
	assert.NotEmpty(t, a.Platform())
}
