package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keytrace/internal/export"
	"keytrace/internal/identity"
	"keytrace/internal/keystroke"
)

func runCtl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(args, &out)
	return out.String(), err
}

func TestTranslate(t *testing.T) {
	out, err := runCtl(t, "translate", "0x1E")
	require.NoError(t, err)
	assert.Contains(t, out, `text "a"`)

	out, err = runCtl(t, "translate", "--shift", "0x1E")
	require.NoError(t, err)
	assert.Contains(t, out, `text "A"`)

	out, err = runCtl(t, "translate", "--layout", "ua", "30")
	require.NoError(t, err)
	assert.Contains(t, out, `text "ф"`)

	_, err = runCtl(t, "translate", "zz")
	assert.Error(t, err)
}

func TestSchema(t *testing.T) {
	out, err := runCtl(t, "schema", export.SchemaKeyEvent)
	require.NoError(t, err)
	assert.Contains(t, out, `"$schema"`)

	_, err = runCtl(t, "schema", "nope")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")

	var buf bytes.Buffer
	w := export.NewWriter(&buf)
	rec := identity.Record{
		DeviceID:   "linux:0123456789abcdef0123456789abcdef",
		AccountID:  "uid:1000",
		DeviceName: "host",
		Username:   "alice",
		Platform:   "linux",
	}
	ev := keystroke.Event{
		SessionID:      "s1",
		KeyName:        "A",
		Kind:           keystroke.KindDown,
		Timestamp:      time.Unix(1700000000, 0).UnixNano(),
		ScanCode:       0x1E,
		KeyboardLayout: "en-US",
		ActiveWindow:   "editor",
	}
	require.NoError(t, w.WriteSession("s1", rec, []keystroke.Event{ev}))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0600))

	out, err := runCtl(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 identity records, 1 key events")

	require.NoError(t, os.WriteFile(path, []byte("{\"type\":\"key_event\"}\n"), 0600))
	_, err = runCtl(t, "validate", path)
	assert.Error(t, err)
}

func TestUnknownCommand(t *testing.T) {
	_, err := runCtl(t, "frobnicate")
	assert.Error(t, err)

	_, err = runCtl(t)
	assert.Error(t, err)

	out, err := runCtl(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "keytracectl "))
}

func TestStatusNotRunning(t *testing.T) {
	t.Setenv("KEYTRACE_DAEMON_DIR", t.TempDir())
	out, err := runCtl(t, "--config", filepath.Join(t.TempDir(), "missing.toml"), "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not running")
}
