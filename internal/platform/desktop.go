package platform

import (
	"fmt"
	"sync"
	"unicode"
	"unicode/utf16"
)

// WindowSystem answers focus and layout questions on desktops that have no
// Win32-style API. Implementations shell out to the utilities the desktop
// ships with.
type WindowSystem interface {
	// ActiveWindow returns an identifier of the focused window, 0 if none.
	ActiveWindow() (uint64, error)
	// WindowPID returns the process owning a window.
	WindowPID(id uint64) (uint32, error)
	// LayoutName returns the short name of the active layout (e.g. "us").
	LayoutName() (string, error)
	// ProcessImage returns the executable path or name of a process.
	ProcessImage(pid uint32) (string, error)
}

// Desktop implements OS on top of a WindowSystem. Keyboards on these desktops
// do not expose a global modifier table, so Desktop keeps one fed from the
// observed key stream.
type Desktop struct {
	ws   WindowSystem
	keys *KeyState
}

// NewDesktop returns a Desktop shim. A nil WindowSystem reports no focus.
func NewDesktop(ws WindowSystem) *Desktop {
	return &Desktop{ws: ws, keys: NewKeyState()}
}

// ObserveKey implements Observer.
func (d *Desktop) ObserveKey(scanCode uint32, down bool) {
	d.keys.Observe(scanCode, down)
}

func (d *Desktop) ForegroundWindow() Window {
	if d.ws == nil {
		return 0
	}
	id, err := d.ws.ActiveWindow()
	if err != nil {
		return 0
	}
	return Window(id)
}

// WindowThreadProcessID reports the process id for both values; these
// desktops bind layouts per session rather than per thread.
func (d *Desktop) WindowThreadProcessID(w Window) (uint32, uint32) {
	if d.ws == nil || w == 0 {
		return 0, 0
	}
	pid, err := d.ws.WindowPID(uint64(w))
	if err != nil {
		return 0, 0
	}
	return pid, pid
}

func (d *Desktop) KeyboardLayout(tid uint32) Layout {
	if d.ws == nil || tid == 0 {
		return 0
	}
	name, err := d.ws.LayoutName()
	if err != nil {
		return 0
	}
	return LayoutForName(name)
}

// MapVirtualKeyEx returns 0 for layouts without a table so that callers fall
// back to the layout-agnostic mapping.
func (d *Desktop) MapVirtualKeyEx(code, mapType uint32, layout Layout) uint32 {
	lang := layout.LangID()
	if _, ok := glyphTables[lang]; !ok {
		return 0
	}
	if vk, ok := layoutVK[lang][code]; ok {
		return vk
	}
	return d.MapVirtualKey(code, mapType)
}

func (d *Desktop) MapVirtualKey(code, mapType uint32) uint32 {
	switch mapType {
	case MapVscToVK:
		return ScanCodeToVK(code, false)
	case MapVscToVKEx:
		return ScanCodeToVK(code, true)
	default:
		return 0
	}
}

func (d *Desktop) KeyboardState(state *KeyboardState) error {
	if d.keys == nil {
		return ErrNoKeyboardState
	}
	d.keys.Snapshot(state)
	return nil
}

func (d *Desktop) ToUnicodeEx(vk, scanCode uint32, state *KeyboardState, buf []uint16, flags uint32, layout Layout) int32 {
	if len(buf) == 0 {
		return 0
	}
	if r, ok := controlUnits[vk]; ok {
		buf[0] = uint16(r)
		return 1
	}

	// Layouts without a table produce nothing rather than US characters.
	table, ok := glyphTables[layout.LangID()]
	if !ok {
		return 0
	}
	g, ok := table[scanCode]
	if !ok {
		return 0
	}

	shift := state.Down(VKShift) || state.Down(VKLShift) || state.Down(VKRShift)
	ctrl := state.Down(VKControl) || state.Down(VKLControl) || state.Down(VKRControl)
	alt := state.Down(VKMenu) || state.Down(VKLMenu) || state.Down(VKRMenu)
	caps := state.Toggled(VKCapital)
	altGrDown := state.Down(VKRMenu) || (ctrl && alt)

	var r rune
	switch {
	case altGrDown && g.altgr != 0:
		r = g.altgr
		if unicode.IsLetter(r) && shift != caps {
			r = unicode.ToUpper(r)
		}
	case g.dead:
		return -1
	case ctrl && alt:
		return 0
	case ctrl:
		if vk < 'A' || vk > 'Z' {
			return 0
		}
		r = rune(vk-'A') + 1
	default:
		r = g.plain
		if shift {
			r = g.shifted
		}
		if caps && unicode.IsLetter(g.plain) && unicode.IsLetter(g.shifted) {
			if unicode.IsUpper(r) {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToUpper(r)
			}
		}
	}
	if r == 0 {
		return 0
	}

	units := utf16.Encode([]rune{r})
	n := copy(buf, units)
	return int32(n)
}

func (d *Desktop) LCIDToLocaleName(lcid uint32) (string, error) {
	name, ok := localeNames[uint16(lcid)]
	if !ok || lcid > 0xFFFF {
		return "", fmt.Errorf("%w: 0x%04x", ErrUnknownLocale, lcid)
	}
	return name, nil
}

func (d *Desktop) ProcessImagePath(pid uint32) (string, error) {
	if d.ws == nil {
		return "", fmt.Errorf("process %d: no window system", pid)
	}
	return d.ws.ProcessImage(pid)
}

// KeyState tracks the virtual-key table from observed scan code transitions.
type KeyState struct {
	mu    sync.Mutex
	state KeyboardState
}

// NewKeyState returns an empty key state.
func NewKeyState() *KeyState {
	return &KeyState{}
}

// Observe records a transition. Caps Lock flips its toggle bit on the first
// down of each press; auto-repeat does not toggle again.
func (k *KeyState) Observe(scanCode uint32, down bool) {
	generic := ScanCodeToVK(scanCode, false)
	if generic == 0 {
		return
	}
	specific := ScanCodeToVK(scanCode, true)

	k.mu.Lock()
	defer k.mu.Unlock()

	if down {
		if generic == VKCapital && k.state[generic]&0x80 == 0 {
			k.state[generic] ^= 0x01
		}
		k.state[generic] |= 0x80
		k.state[specific] |= 0x80
		return
	}
	k.state[specific] &^= 0x80
	if specific != generic && k.pairedDown(specific) {
		return
	}
	k.state[generic] &^= 0x80
}

// pairedDown reports whether the other side of a left/right modifier is still
// held, in which case the side-neutral key stays down.
func (k *KeyState) pairedDown(released uint32) bool {
	var other uint32
	switch released {
	case VKLShift:
		other = VKRShift
	case VKRShift:
		other = VKLShift
	case VKLControl:
		other = VKRControl
	case VKRControl:
		other = VKLControl
	case VKLMenu:
		other = VKRMenu
	case VKRMenu:
		other = VKLMenu
	default:
		return false
	}
	return k.state[other]&0x80 != 0
}

// Snapshot copies the current table into dst.
func (k *KeyState) Snapshot(dst *KeyboardState) {
	k.mu.Lock()
	*dst = k.state
	k.mu.Unlock()
}
