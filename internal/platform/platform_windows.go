//go:build windows

package platform

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procGetKeyboardLayout = user32.NewProc("GetKeyboardLayout")
	procMapVirtualKeyExW  = user32.NewProc("MapVirtualKeyExW")
	procMapVirtualKeyW    = user32.NewProc("MapVirtualKeyW")
	procGetKeyboardState  = user32.NewProc("GetKeyboardState")
	procToUnicodeEx       = user32.NewProc("ToUnicodeEx")

	procLCIDToLocaleName = kernel32.NewProc("LCIDToLocaleName")
)

// localeNameMaxLength is LOCALE_NAME_MAX_LENGTH in WCHARs.
const localeNameMaxLength = 85

// Win32 binds OS directly to user32 and kernel32.
type Win32 struct{}

// New returns the native implementation for this platform.
func New() OS {
	return Win32{}
}

func (Win32) ForegroundWindow() Window {
	return Window(windows.GetForegroundWindow())
}

func (Win32) WindowThreadProcessID(w Window) (uint32, uint32) {
	var pid uint32
	tid, err := windows.GetWindowThreadProcessId(windows.HWND(w), &pid)
	if err != nil {
		return 0, 0
	}
	return tid, pid
}

func (Win32) KeyboardLayout(tid uint32) Layout {
	r, _, _ := procGetKeyboardLayout.Call(uintptr(tid))
	return Layout(r)
}

func (Win32) MapVirtualKeyEx(code, mapType uint32, layout Layout) uint32 {
	r, _, _ := procMapVirtualKeyExW.Call(uintptr(code), uintptr(mapType), uintptr(layout))
	return uint32(r)
}

func (Win32) MapVirtualKey(code, mapType uint32) uint32 {
	r, _, _ := procMapVirtualKeyW.Call(uintptr(code), uintptr(mapType))
	return uint32(r)
}

func (Win32) KeyboardState(state *KeyboardState) error {
	r, _, e1 := procGetKeyboardState.Call(uintptr(unsafe.Pointer(&state[0])))
	if r == 0 {
		return fmt.Errorf("%w: GetKeyboardState: %v", ErrNoKeyboardState, e1)
	}
	return nil
}

func (Win32) ToUnicodeEx(vk, scanCode uint32, state *KeyboardState, buf []uint16, flags uint32, layout Layout) int32 {
	if len(buf) == 0 {
		return 0
	}
	r, _, _ := procToUnicodeEx.Call(
		uintptr(vk),
		uintptr(scanCode),
		uintptr(unsafe.Pointer(&state[0])),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		uintptr(flags),
		uintptr(layout),
	)
	return int32(r)
}

func (Win32) LCIDToLocaleName(lcid uint32) (string, error) {
	var buf [localeNameMaxLength]uint16
	r, _, e1 := procLCIDToLocaleName.Call(
		uintptr(lcid),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		0,
	)
	if r == 0 {
		return "", fmt.Errorf("%w: 0x%04x: %v", ErrUnknownLocale, lcid, e1)
	}
	return windows.UTF16ToString(buf[:]), nil
}

// ProcessImagePath opens the process with the least rights that allow the
// image path query. The handle is closed before returning on every path.
func (Win32) ProcessImagePath(pid uint32) (string, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", fmt.Errorf("query image name %d: %w", pid, err)
	}
	return windows.UTF16ToString(buf[:size]), nil
}
