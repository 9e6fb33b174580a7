package keystroke

import (
	"strings"

	"keytrace/internal/platform"
)

// UnknownProcess is reported when the focused process cannot be identified.
const UnknownProcess = "unknown.exe"

// Focus is the window holding input focus and its owners.
type Focus struct {
	Window    platform.Window
	ThreadID  uint32
	ProcessID uint32
}

// Foreground resolves which window, thread and process hold input focus.
type Foreground struct {
	os platform.OS
}

// NewForeground returns a resolver backed by os.
func NewForeground(os platform.OS) *Foreground {
	return &Foreground{os: os}
}

// FocusedThreadAndProcess returns the focus owners. ok is false when no
// window has focus.
func (f *Foreground) FocusedThreadAndProcess() (Focus, bool) {
	w := f.os.ForegroundWindow()
	if w == 0 {
		return Focus{}, false
	}
	tid, pid := f.os.WindowThreadProcessID(w)
	return Focus{Window: w, ThreadID: tid, ProcessID: pid}, true
}

// ProcessImageName returns the base name of the process executable, or
// UnknownProcess if the process cannot be opened or queried.
func (f *Foreground) ProcessImageName(pid uint32) string {
	if pid == 0 {
		return UnknownProcess
	}
	path, err := f.os.ProcessImagePath(pid)
	if err != nil {
		return UnknownProcess
	}
	name := baseName(path)
	if name == "" {
		return UnknownProcess
	}
	return name
}

// ActiveProcessName returns the image name of the focused process.
func (f *Foreground) ActiveProcessName() string {
	focus, ok := f.FocusedThreadAndProcess()
	if !ok {
		return UnknownProcess
	}
	return f.ProcessImageName(focus.ProcessID)
}

// baseName strips both separator styles; image paths may come from either.
func baseName(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.LastIndexAny(path, `\/`); i != -1 {
		path = path[i+1:]
	}
	if path == "." || path == ".." {
		return ""
	}
	return path
}
