package keystroke

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keytrace/internal/platform"
)

func TestFocusedThreadAndProcess(t *testing.T) {
	os := newFakeOS()
	f := NewForeground(os)

	focus, ok := f.FocusedThreadAndProcess()
	require.True(t, ok)
	assert.Equal(t, Focus{Window: 0x1001, ThreadID: 11, ProcessID: 4242}, focus)

	os.window = 0
	_, ok = f.FocusedThreadAndProcess()
	assert.False(t, ok)
}

func TestProcessImageName(t *testing.T) {
	os := newFakeOS()
	os.images[7] = "/usr/lib/firefox/firefox"
	os.images[8] = ""
	f := NewForeground(os)

	tests := []struct {
		name string
		pid  uint32
		want string
	}{
		{"windows path", 4242, "notepad.exe"},
		{"posix path", 7, "firefox"},
		{"empty path", 8, UnknownProcess},
		{"open fails", 99, UnknownProcess},
		{"no process", 0, UnknownProcess},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, f.ProcessImageName(tc.pid))
		})
	}
}

func TestActiveProcessName(t *testing.T) {
	os := newFakeOS()
	f := NewForeground(os)
	assert.Equal(t, "notepad.exe", f.ActiveProcessName())

	os.window = 0
	assert.Equal(t, UnknownProcess, f.ActiveProcessName())
}

func TestFocusedLayoutLocale(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeOS)
		want  string
	}{
		{"resolved", func(*fakeOS) {}, "en-US"},
		{"ukrainian", func(o *fakeOS) { o.layout = 0xF0A80422 }, "uk-UA"},
		{"no focus", func(o *fakeOS) { o.window = 0 }, "LANGID_0x0000"},
		{"no layout", func(o *fakeOS) { o.layout = 0 }, "LANGID_0x0000"},
		{"no locale name", func(o *fakeOS) { o.layout = 0x04150415 }, "LANGID_0x0415"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			os := newFakeOS()
			tc.setup(os)
			assert.Equal(t, tc.want, NewLayouts(os).FocusedLayoutLocale())
		})
	}
}

func TestTranslate(t *testing.T) {
	os := newFakeOS()
	tr := NewTranslator(os)

	got, err := tr.Translate(0x1E)
	require.NoError(t, err)
	assert.Equal(t, "a", got)
}

func TestTranslateRejectsZeroScanCode(t *testing.T) {
	os := newFakeOS()
	_, err := NewTranslator(os).Translate(0)
	assert.ErrorIs(t, err, ErrInvalidScanCode)
	assert.Zero(t, os.composeCalls)
}

func TestTranslateWithoutFocus(t *testing.T) {
	os := newFakeOS()
	os.window = 0
	_, err := NewTranslator(os).Translate(0x1E)
	assert.ErrorIs(t, err, ErrNoForegroundWindow)
}

func TestTranslateFallsBackToLayoutAgnosticMapping(t *testing.T) {
	os := newFakeOS()
	delete(os.vkEx, 0x1E)

	got, err := NewTranslator(os).Translate(0x1E)
	require.NoError(t, err)
	assert.Equal(t, "a", got)
}

func TestTranslateUnmappedScanCode(t *testing.T) {
	os := newFakeOS()
	got, err := NewTranslator(os).Translate(0x7E)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, os.stateCalls, "no state read without a virtual key")
}

func TestTranslateKeyboardStateFailure(t *testing.T) {
	os := newFakeOS()
	os.stateErr = platform.ErrNoKeyboardState

	_, err := NewTranslator(os).Translate(0x1E)
	assert.ErrorIs(t, err, ErrKeyboardState)
}

func TestTranslateDeadKey(t *testing.T) {
	os := newFakeOS()
	os.compose = func(uint32, *platform.KeyboardState) (string, bool) { return "", true }

	got, err := NewTranslator(os).Translate(0x1E)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTranslateDecodesSurrogatePairs(t *testing.T) {
	os := newFakeOS()
	os.compose = func(uint32, *platform.KeyboardState) (string, bool) { return "😀", false }

	got, err := NewTranslator(os).Translate(0x1E)
	require.NoError(t, err)
	assert.Equal(t, "😀", got)
}

func TestTranslateWithDesktopShim(t *testing.T) {
	d := platform.NewDesktop(&stubWindows{layout: "us"})

	got, err := NewTranslator(d).Translate(0x1E)
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	d.ObserveKey(0x2A, true)
	got, err = NewTranslator(d).Translate(0x1E)
	require.NoError(t, err)
	assert.Equal(t, "A", got)
}

func TestErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrInvalidScanCode, ErrKeyboardState))
	assert.False(t, errors.Is(ErrNoForegroundWindow, ErrInvalidScanCode))
}

type stubWindows struct {
	layout string
}

func (s *stubWindows) ActiveWindow() (uint64, error)       { return 1, nil }
func (s *stubWindows) WindowPID(uint64) (uint32, error)    { return 100, nil }
func (s *stubWindows) LayoutName() (string, error)         { return s.layout, nil }
func (s *stubWindows) ProcessImage(uint32) (string, error) { return "/usr/bin/gedit", nil }

func TestBuildWithDesktopLayouts(t *testing.T) {
	tests := []struct {
		layout     string
		scanCode   uint32
		wantName   string
		wantLocale string
	}{
		{"us", 0x1E, "a", "en-US"},
		{"gb", 0x28, "'", "en-GB"},
		{"ru", 0x1E, "ф", "ru-RU"},
		{"ua", 0x1F, "і", "uk-UA"},
		{"fr", 0x10, "a", "fr-FR"},
		{"de", 0x15, "z", "de-DE"},
		{"es", 0x27, "ñ", "es-ES"},
		{"it", 0x1A, "è", "it-IT"},
		{"pl", 0x1E, "a", "pl-PL"},
		// no table: the symbolic name is kept
		{"nl", 0x1E, "sym", "LANGID_0x0000"},
	}
	for _, tt := range tests {
		t.Run(tt.layout, func(t *testing.T) {
			d := platform.NewDesktop(&stubWindows{layout: tt.layout})
			b := NewBuilder(d, BuilderOptions{SessionID: "s1"})

			ev, err := b.Build(RawEvent{Name: "sym", Kind: KindDown, ScanCode: tt.scanCode})
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, ev.KeyName)
			assert.Equal(t, tt.wantLocale, ev.KeyboardLayout)
			assert.Equal(t, "gedit", ev.ActiveWindow)
		})
	}
}

func TestBuildWithDesktopRightModifiers(t *testing.T) {
	d := platform.NewDesktop(&stubWindows{layout: "de"})
	d.ObserveKey(100, true) // KEY_RIGHTALT
	ev, err := NewBuilder(d, BuilderOptions{}).Build(RawEvent{Name: "q", Kind: KindDown, ScanCode: 0x10})
	require.NoError(t, err)
	assert.Equal(t, "@", ev.KeyName)

	d = platform.NewDesktop(&stubWindows{layout: "us"})
	d.ObserveKey(97, true) // KEY_RIGHTCTRL
	ev, err = NewBuilder(d, BuilderOptions{}).Build(RawEvent{Name: "c", Kind: KindDown, ScanCode: 0x2E})
	require.NoError(t, err)
	assert.Equal(t, "c", ev.KeyName, "ctrl+c composes a control character")
}
