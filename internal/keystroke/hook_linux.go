//go:build linux

package keystroke

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// LinuxListener reads key transitions from /dev/input on Linux.
type LinuxListener struct {
	BaseListener
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	files   []*os.File
	devices []string
}

func newPlatformListener() Listener {
	return &LinuxListener{}
}

// Available checks if we can read input devices.
func (l *LinuxListener) Available() (bool, string) {
	devices, err := findKeyboardDevices()
	if err != nil {
		return false, fmt.Sprintf("cannot find keyboard devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no keyboard devices found"
	}

	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err == nil {
			f.Close()
			return true, fmt.Sprintf("found keyboard device: %s", dev)
		}
	}

	return false, "cannot read keyboard devices (need to be in 'input' group or run as root)"
}

// findKeyboardDevices finds /dev/input devices that are keyboards.
func findKeyboardDevices() ([]string, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	devices := parseInputDevices(f)

	matches, _ := filepath.Glob("/dev/input/by-id/*-kbd")
	for _, m := range matches {
		if target, err := filepath.EvalSymlinks(m); err == nil {
			m = target
		}
		if !contains(devices, m) {
			devices = append(devices, m)
		}
	}
	return devices, nil
}

// parseInputDevices returns the event handlers of devices in
// /proc/bus/input/devices format that report key and repeat capabilities.
func parseInputDevices(r io.Reader) []string {
	var devices []string
	var handler string
	var keyboard bool

	flush := func() {
		if keyboard && handler != "" && !contains(devices, handler) {
			devices = append(devices, handler)
		}
		handler = ""
		keyboard = false
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
				if strings.HasPrefix(part, "event") {
					handler = "/dev/input/" + part
				}
			}
		case strings.HasPrefix(line, "B: EV="):
			// EV_KEY (bit 1) together with EV_REP (bit 20) marks a keyboard
			// rather than a mouse or power button.
			var ev uint64
			if _, err := fmt.Sscanf(strings.TrimPrefix(line, "B: EV="), "%x", &ev); err == nil {
				keyboard = ev&(1<<1) != 0 && ev&(1<<20) != 0
			}
		case line == "":
			flush()
		}
	}
	flush()
	return devices
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Start opens every readable keyboard and begins delivering events.
func (l *LinuxListener) Start(ctx context.Context) error {
	if l.IsRunning() {
		return ErrAlreadyRunning
	}

	devices, err := findKeyboardDevices()
	if err != nil || len(devices) == 0 {
		return ErrNotAvailable
	}

	var files []*os.File
	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err != nil {
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return ErrPermissionDenied
	}

	l.init()
	l.devices = devices
	l.mu.Lock()
	l.files = files
	l.mu.Unlock()

	ctx, l.cancel = context.WithCancel(ctx)
	l.SetRunning(true)

	for _, f := range files {
		l.wg.Add(1)
		go l.readLoop(f)
	}
	go func() {
		<-ctx.Done()
		_ = l.Stop()
	}()

	return nil
}

const (
	evKey       = 1
	keyRelease  = 0
	keyPress    = 1
	keyAutoRep  = 2
	timevalSize = int(unsafe.Sizeof(unix.Timeval{}))
	eventSize   = timevalSize + 8
)

// decodeInputEvent decodes a struct input_event. ok is false for anything
// other than a key transition.
func decodeInputEvent(buf []byte) (RawEvent, bool) {
	if len(buf) < eventSize {
		return RawEvent{}, false
	}
	typ := binary.LittleEndian.Uint16(buf[timevalSize:])
	code := binary.LittleEndian.Uint16(buf[timevalSize+2:])
	value := int32(binary.LittleEndian.Uint32(buf[timevalSize+4:]))
	if typ != evKey || code == 0 {
		return RawEvent{}, false
	}

	var kind EventKind
	switch value {
	case keyPress, keyAutoRep:
		kind = KindDown
	case keyRelease:
		kind = KindUp
	default:
		return RawEvent{}, false
	}

	var sec, usec int64
	if timevalSize == 16 {
		sec = int64(binary.LittleEndian.Uint64(buf[0:8]))
		usec = int64(binary.LittleEndian.Uint64(buf[8:16]))
	} else {
		sec = int64(int32(binary.LittleEndian.Uint32(buf[0:4])))
		usec = int64(int32(binary.LittleEndian.Uint32(buf[4:8])))
	}

	return RawEvent{
		Name:     KeyName(uint32(code)),
		Kind:     kind,
		ScanCode: uint32(code),
		Time:     time.Unix(sec, usec*int64(time.Microsecond)),
	}, true
}

func (l *LinuxListener) readLoop(f *os.File) {
	defer l.wg.Done()

	buf := make([]byte, eventSize*64)
	for {
		n, err := f.Read(buf)
		if err != nil {
			if errors.Is(err, unix.EINTR) && l.IsRunning() {
				continue
			}
			// closed by Stop, or the device was unplugged (ENODEV)
			return
		}
		for off := 0; off+eventSize <= n; off += eventSize {
			if raw, ok := decodeInputEvent(buf[off : off+eventSize]); ok {
				l.Emit(raw)
			}
		}
	}
}

// Stop closes the devices and the event channel.
func (l *LinuxListener) Stop() error {
	if !l.markStopped() {
		return nil
	}

	if l.cancel != nil {
		l.cancel()
	}

	l.mu.Lock()
	for _, f := range l.files {
		f.Close()
	}
	l.files = nil
	l.mu.Unlock()

	l.wg.Wait()
	l.CloseEvents()

	return nil
}
