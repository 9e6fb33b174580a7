package platform

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner answers commands from a table keyed by the joined argv.
type scriptedRunner map[string]string

func (s scriptedRunner) run(name string, args ...string) ([]byte, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	out, ok := s[key]
	if !ok {
		return nil, errors.New("exec: " + key + ": not found")
	}
	return []byte(out), nil
}

func TestX11PrefersXdotool(t *testing.T) {
	x := &X11{Run: scriptedRunner{
		"xdotool getactivewindow":       "60817415\n",
		"xdotool getwindowpid 60817415": "4242\n",
	}.run}

	id, err := x.ActiveWindow()
	require.NoError(t, err)
	assert.Equal(t, uint64(60817415), id)

	pid, err := x.WindowPID(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(4242), pid)
}

func TestX11FallsBackToXprop(t *testing.T) {
	x := &X11{Run: scriptedRunner{
		"xprop -root _NET_ACTIVE_WINDOW":      "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x3a00007\n",
		"xprop -id 0x3a00007 _NET_WM_PID":     "_NET_WM_PID(CARDINAL) = 977\n",
	}.run}

	id, err := x.ActiveWindow()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x3a00007), id)

	pid, err := x.WindowPID(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(977), pid)
}

func TestX11NoDisplay(t *testing.T) {
	x := &X11{Run: scriptedRunner{}.run}
	_, err := x.ActiveWindow()
	assert.Error(t, err)
}

func TestX11LayoutName(t *testing.T) {
	x := &X11{Run: scriptedRunner{
		"setxkbmap -query": "rules:      evdev\nmodel:      pc105\nlayout:     ua,us\noptions:    grp:alt_shift_toggle\n",
	}.run}

	name, err := x.LayoutName()
	require.NoError(t, err)
	assert.Equal(t, "ua", name)
}

func TestX11ProcessImageFromProc(t *testing.T) {
	proc := t.TempDir()
	dir := filepath.Join(proc, "31")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "comm"), []byte("firefox\n"), 0o644))

	x := &X11{Run: scriptedRunner{}.run, Proc: proc}
	image, err := x.ProcessImage(31)
	require.NoError(t, err)
	assert.Equal(t, "firefox", image)

	_, err = x.ProcessImage(32)
	assert.Error(t, err)
}

func TestMacOSFrontApplication(t *testing.T) {
	m := &MacOS{Run: scriptedRunner{
		"lsappinfo front":                              "ASN:0x0-0x1d01d:\n",
		"lsappinfo info -only pid ASN:0x0-0x1d01d:":    "\"pid\"=512\n",
		"ps -o comm= -p 512":                           "/Applications/Safari.app/Contents/MacOS/Safari\n",
		"defaults read com.apple.HIToolbox AppleCurrentKeyboardLayoutInputSourceID": "com.apple.keylayout.Ukrainian-PC\n",
	}.run}

	id, err := m.ActiveWindow()
	require.NoError(t, err)
	assert.Equal(t, uint64(512), id)

	pid, err := m.WindowPID(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(512), pid)

	image, err := m.ProcessImage(pid)
	require.NoError(t, err)
	assert.Equal(t, "/Applications/Safari.app/Contents/MacOS/Safari", image)

	layout, err := m.LayoutName()
	require.NoError(t, err)
	assert.Equal(t, "ua", layout)
}

func TestMacLayoutName(t *testing.T) {
	assert.Equal(t, "us", macLayoutName("com.apple.keylayout.ABC"))
	assert.Equal(t, "de", macLayoutName("com.apple.keylayout.German"))
	assert.Equal(t, "dvorak", macLayoutName("com.apple.keylayout.Dvorak"))
}
