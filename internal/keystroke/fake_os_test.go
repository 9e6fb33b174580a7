package keystroke

import (
	"errors"
	"unicode/utf16"

	"keytrace/internal/platform"
)

// fakeOS is a scriptable platform.OS.
type fakeOS struct {
	window   platform.Window
	tid, pid uint32
	layout   platform.Layout
	locales  map[uint32]string
	images   map[uint32]string

	vkEx, vk map[uint32]uint32
	stateErr error
	// compose returns the text for a virtual key, or dead for a dead key.
	compose func(vk uint32, state *platform.KeyboardState) (text string, dead bool)

	stateCalls   int
	composeCalls int
}

func newFakeOS() *fakeOS {
	return &fakeOS{
		window:  0x1001,
		tid:     11,
		pid:     4242,
		layout:  0x04090409,
		locales: map[uint32]string{0x0409: "en-US", 0x0422: "uk-UA"},
		images:  map[uint32]string{4242: `C:\Windows\System32\notepad.exe`},
		vkEx:    map[uint32]uint32{0x1E: 'A', 0x39: platform.VKSpace, 0x1C: platform.VKReturn, 0x2A: platform.VKLShift},
		vk:      map[uint32]uint32{0x1E: 'A'},
		compose: func(vk uint32, _ *platform.KeyboardState) (string, bool) {
			switch vk {
			case 'A':
				return "a", false
			case platform.VKSpace:
				return " ", false
			case platform.VKReturn:
				return "\r", false
			}
			return "", false
		},
	}
}

func (f *fakeOS) ForegroundWindow() platform.Window { return f.window }

func (f *fakeOS) WindowThreadProcessID(w platform.Window) (uint32, uint32) {
	if w == 0 {
		return 0, 0
	}
	return f.tid, f.pid
}

func (f *fakeOS) KeyboardLayout(tid uint32) platform.Layout {
	if tid == 0 {
		return 0
	}
	return f.layout
}

func (f *fakeOS) MapVirtualKeyEx(code, mapType uint32, _ platform.Layout) uint32 {
	if mapType != platform.MapVscToVKEx {
		return 0
	}
	return f.vkEx[code]
}

func (f *fakeOS) MapVirtualKey(code, mapType uint32) uint32 {
	if mapType != platform.MapVscToVK {
		return 0
	}
	return f.vk[code]
}

func (f *fakeOS) KeyboardState(*platform.KeyboardState) error {
	f.stateCalls++
	return f.stateErr
}

func (f *fakeOS) ToUnicodeEx(vk, _ uint32, state *platform.KeyboardState, buf []uint16, _ uint32, _ platform.Layout) int32 {
	f.composeCalls++
	text, dead := f.compose(vk, state)
	if dead {
		return -1
	}
	units := utf16.Encode([]rune(text))
	return int32(copy(buf, units))
}

func (f *fakeOS) LCIDToLocaleName(lcid uint32) (string, error) {
	if name, ok := f.locales[lcid]; ok {
		return name, nil
	}
	return "", platform.ErrUnknownLocale
}

func (f *fakeOS) ProcessImagePath(pid uint32) (string, error) {
	if path, ok := f.images[pid]; ok {
		return path, nil
	}
	return "", errors.New("access denied")
}
