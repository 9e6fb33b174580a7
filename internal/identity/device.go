package identity

import (
	"encoding/binary"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Device id prefixes.
const (
	TagWindows  = "win:"
	TagLinux    = "linux:"
	TagMac      = "mac:"
	TagFallback = "fb_mac:"
)

// FallbackUnknown is the device id when no hardware address exists.
const FallbackUnknown = TagFallback + "unknown"

var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// DeviceResolver produces the per-machine identifier. The platform strategy
// is tried first; the hardware-address fallback always yields a value.
type DeviceResolver struct {
	src  Sources
	once sync.Once
	id   string
}

// NewDeviceResolver returns a resolver over src.
func NewDeviceResolver(src Sources) *DeviceResolver {
	return &DeviceResolver{src: src.withDefaults()}
}

// Resolve returns the device id. The first result is cached.
func (r *DeviceResolver) Resolve() string {
	r.once.Do(func() {
		r.id = r.resolve()
	})
	return r.id
}

func (r *DeviceResolver) resolve() string {
	var id string
	switch {
	case strings.HasPrefix(r.src.GOOS, "windows"):
		id = r.windows()
	case strings.HasPrefix(r.src.GOOS, "linux"):
		id = r.linux()
	case r.src.GOOS == "darwin":
		id = r.darwin()
	}
	if id != "" {
		return id
	}
	return r.fallback()
}

func (r *DeviceResolver) windows() string {
	guid, err := r.src.MachineGUID()
	if err != nil {
		return ""
	}
	guid = strings.TrimSpace(guid)
	if guid == "" {
		return ""
	}
	return TagWindows + guid
}

func (r *DeviceResolver) linux() string {
	for _, path := range machineIDPaths {
		data, err := r.src.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return TagLinux + id
		}
	}
	if id, err := r.src.BusMachineID(); err == nil && id != "" {
		return TagLinux + id
	}
	return ""
}

func (r *DeviceResolver) darwin() string {
	out, err := r.src.Run("ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
	if err != nil {
		return ""
	}
	// "IOPlatformUUID" = "9A1B2C3D-..."
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "IOPlatformUUID") {
			continue
		}
		fields := strings.Split(line, `"`)
		if len(fields) < 2 {
			return ""
		}
		if uuid := fields[len(fields)-2]; uuid != "" {
			return TagMac + uuid
		}
		return ""
	}
	return ""
}

func (r *DeviceResolver) fallback() string {
	ifaces, err := r.src.Interfaces()
	if err != nil {
		return FallbackUnknown
	}
	mac := primaryHardwareAddr(ifaces)
	if mac == nil {
		return FallbackUnknown
	}
	return TagFallback + strconv.FormatUint(hardwareAddrInt(mac), 10)
}

// primaryHardwareAddr returns the address of the lowest-index interface that
// is up, not loopback, and has a 48-bit hardware address.
func primaryHardwareAddr(ifaces []net.Interface) net.HardwareAddr {
	sorted := append([]net.Interface(nil), ifaces...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	for _, iface := range sorted {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if len(iface.HardwareAddr) != 6 {
			continue
		}
		return iface.HardwareAddr
	}
	return nil
}

// hardwareAddrInt reads a 48-bit address as a big-endian integer.
func hardwareAddrInt(mac net.HardwareAddr) uint64 {
	var buf [8]byte
	copy(buf[2:], mac)
	return binary.BigEndian.Uint64(buf[:])
}
