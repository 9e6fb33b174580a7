package platform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MacOS answers WindowSystem queries with lsappinfo, defaults and ps. The
// frontmost application's pid doubles as the window identifier.
type MacOS struct {
	Run Runner
}

// NewMacOS returns a macOS window system using os/exec.
func NewMacOS() *MacOS {
	return &MacOS{Run: ExecRunner}
}

func (m *MacOS) ActiveWindow() (uint64, error) {
	out, err := m.Run("lsappinfo", "front")
	if err != nil {
		return 0, fmt.Errorf("lsappinfo front: %w", err)
	}
	asn := strings.TrimSpace(string(out))
	if asn == "" || asn == "[ NULL ]" {
		return 0, nil
	}

	out, err = m.Run("lsappinfo", "info", "-only", "pid", asn)
	if err != nil {
		return 0, fmt.Errorf("lsappinfo info: %w", err)
	}
	// "pid"=1234
	_, value, ok := strings.Cut(strings.TrimSpace(string(out)), "=")
	if !ok {
		return 0, errors.New("lsappinfo reported no pid")
	}
	pid, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse pid: %w", err)
	}
	return pid, nil
}

func (m *MacOS) WindowPID(id uint64) (uint32, error) {
	if id == 0 || id > 0xFFFFFFFF {
		return 0, fmt.Errorf("invalid window id %d", id)
	}
	return uint32(id), nil
}

func (m *MacOS) LayoutName() (string, error) {
	out, err := m.Run("defaults", "read", "com.apple.HIToolbox", "AppleCurrentKeyboardLayoutInputSourceID")
	if err != nil {
		return "", fmt.Errorf("read input source: %w", err)
	}
	return macLayoutName(strings.TrimSpace(string(out))), nil
}

func (m *MacOS) ProcessImage(pid uint32) (string, error) {
	out, err := m.Run("ps", "-o", "comm=", "-p", strconv.FormatUint(uint64(pid), 10))
	if err != nil {
		return "", fmt.Errorf("ps: %w", err)
	}
	image := strings.TrimSpace(string(out))
	if image == "" {
		return "", fmt.Errorf("process %d not found", pid)
	}
	return image, nil
}

var macInputSources = map[string]string{
	"us":           "us",
	"abc":          "us",
	"british":      "gb",
	"ukrainian":    "ua",
	"ukrainian-pc": "ua",
	"german":       "de",
	"russian":      "ru",
	"russian-pc":   "ru",
	"french":       "fr",
	"polish":       "pl",
	"italian":      "it",
	"spanish":      "es",
}

// macLayoutName turns "com.apple.keylayout.German" into "de". Unknown sources
// yield their lowercased suffix, which has no layout table.
func macLayoutName(source string) string {
	suffix := source
	if i := strings.LastIndex(source, "."); i != -1 {
		suffix = source[i+1:]
	}
	suffix = strings.ToLower(suffix)
	if name, ok := macInputSources[suffix]; ok {
		return name
	}
	return suffix
}
