package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// X11 answers WindowSystem queries with xdotool, falling back to xprop, and
// reads process images from /proc.
type X11 struct {
	Run  Runner
	Proc string // procfs mount, "/proc" when empty
}

// NewX11 returns an X11 window system using os/exec.
func NewX11() *X11 {
	return &X11{Run: ExecRunner, Proc: "/proc"}
}

func (x *X11) ActiveWindow() (uint64, error) {
	if out, err := x.Run("xdotool", "getactivewindow"); err == nil {
		if id, err := strconv.ParseUint(strings.TrimSpace(string(out)), 10, 64); err == nil && id != 0 {
			return id, nil
		}
	}

	out, err := x.Run("xprop", "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return 0, fmt.Errorf("xprop active window: %w", err)
	}
	// _NET_ACTIVE_WINDOW(WINDOW): window id # 0x3a00007
	fields := strings.Fields(string(out))
	if len(fields) < 5 {
		return 0, errors.New("failed to parse xprop output")
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(fields[len(fields)-1], "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse window id: %w", err)
	}
	return id, nil
}

func (x *X11) WindowPID(id uint64) (uint32, error) {
	if out, err := x.Run("xdotool", "getwindowpid", strconv.FormatUint(id, 10)); err == nil {
		if pid, err := strconv.ParseUint(strings.TrimSpace(string(out)), 10, 32); err == nil {
			return uint32(pid), nil
		}
	}

	out, err := x.Run("xprop", "-id", "0x"+strconv.FormatUint(id, 16), "_NET_WM_PID")
	if err != nil {
		return 0, fmt.Errorf("xprop window pid: %w", err)
	}
	// _NET_WM_PID(CARDINAL) = 12345
	line := string(out)
	idx := strings.Index(line, "= ")
	if idx == -1 {
		return 0, errors.New("window has no _NET_WM_PID")
	}
	pid, err := strconv.ParseUint(strings.TrimSpace(line[idx+2:]), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse window pid: %w", err)
	}
	return uint32(pid), nil
}

// LayoutName returns the first layout of `setxkbmap -query`. Group switching
// is not visible through setxkbmap, so multi-layout setups report the primary.
func (x *X11) LayoutName() (string, error) {
	out, err := x.Run("setxkbmap", "-query")
	if err != nil {
		return "", fmt.Errorf("setxkbmap: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) != "layout" {
			continue
		}
		first, _, _ := strings.Cut(strings.TrimSpace(value), ",")
		if first != "" {
			return first, nil
		}
	}
	return "", errors.New("setxkbmap reported no layout")
}

func (x *X11) ProcessImage(pid uint32) (string, error) {
	proc := x.Proc
	if proc == "" {
		proc = "/proc"
	}
	dir := filepath.Join(proc, strconv.FormatUint(uint64(pid), 10))
	if target, err := os.Readlink(filepath.Join(dir, "exe")); err == nil {
		return target, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, "comm"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
