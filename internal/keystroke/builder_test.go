package keystroke

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keytrace/internal/platform"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)

func newTestBuilder(os platform.OS, fallbacks map[string]int) *Builder {
	return NewBuilder(os, BuilderOptions{
		SessionID: "0123456789abcdef0123456789abcdef",
		Now:       func() time.Time { return fixedNow },
		OnFallback: func(resolver string) {
			if fallbacks != nil {
				fallbacks[resolver]++
			}
		},
	})
}

func TestBuildCharacterKey(t *testing.T) {
	b := newTestBuilder(newFakeOS(), nil)

	ev, err := b.Build(RawEvent{Name: "a", Kind: KindDown, ScanCode: 0x1E})
	require.NoError(t, err)
	assert.Equal(t, Event{
		SessionID:      "0123456789abcdef0123456789abcdef",
		KeyName:        "a",
		Kind:           KindDown,
		Timestamp:      fixedNow.UnixNano(),
		ScanCode:       0x1E,
		KeyboardLayout: "en-US",
		ActiveWindow:   "notepad.exe",
	}, ev)
}

func TestBuildUsesSymbolicNameForNonPrintingKeys(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawEvent
		wantName string
	}{
		{"whitespace trims to empty", RawEvent{Name: "space", Kind: KindDown, ScanCode: 0x39}, "space"},
		{"control character", RawEvent{Name: "enter", Kind: KindUp, ScanCode: 0x1C}, "enter"},
		{"no character", RawEvent{Name: "shift", Kind: KindDown, ScanCode: 0x2A}, "shift"},
		{"unmapped", RawEvent{Name: "f13", Kind: KindDown, ScanCode: 0x64}, "f13"},
		{"nothing at all", RawEvent{Kind: KindDown, ScanCode: 0x64}, "sc_100"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := newTestBuilder(newFakeOS(), nil).Build(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.wantName, ev.KeyName)
			assert.Equal(t, tc.raw.Kind, ev.Kind)
		})
	}
}

func TestBuildKeepsMultiCharacterControlSequences(t *testing.T) {
	os := newFakeOS()
	os.compose = func(uint32, *platform.KeyboardState) (string, bool) { return "\x01\x02", false }

	ev, err := newTestBuilder(os, nil).Build(RawEvent{Name: "a", Kind: KindDown, ScanCode: 0x1E})
	require.NoError(t, err)
	assert.Equal(t, "\x01\x02", ev.KeyName)
}

func TestBuildWithoutFocus(t *testing.T) {
	os := newFakeOS()
	os.window = 0
	fallbacks := map[string]int{}

	ev, err := newTestBuilder(os, fallbacks).Build(RawEvent{Name: "a", Kind: KindDown, ScanCode: 0x1E})
	require.NoError(t, err)
	assert.Equal(t, "a", ev.KeyName)
	assert.Equal(t, "LANGID_0x0000", ev.KeyboardLayout)
	assert.Equal(t, UnknownProcess, ev.ActiveWindow)
	assert.Equal(t, map[string]int{
		FallbackFocus:   1,
		FallbackKeyName: 1,
		FallbackLayout:  1,
		FallbackProcess: 1,
	}, fallbacks)
}

func TestBuildPropagatesFatalErrors(t *testing.T) {
	b := newTestBuilder(newFakeOS(), nil)
	_, err := b.Build(RawEvent{Name: "a", Kind: KindDown, ScanCode: 0})
	assert.ErrorIs(t, err, ErrInvalidScanCode)

	os := newFakeOS()
	os.stateErr = platform.ErrNoKeyboardState
	_, err = newTestBuilder(os, nil).Build(RawEvent{Name: "a", Kind: KindDown, ScanCode: 0x1E})
	assert.ErrorIs(t, err, ErrKeyboardState)
}

func TestBuildRejectsInvalidKind(t *testing.T) {
	_, err := newTestBuilder(newFakeOS(), nil).Build(RawEvent{Name: "a", ScanCode: 0x1E})
	assert.ErrorIs(t, err, ErrInvalidEventKind)
}

func TestBuildIsStateless(t *testing.T) {
	b := newTestBuilder(newFakeOS(), nil)
	raw := RawEvent{Name: "a", Kind: KindDown, ScanCode: 0x1E}

	first, err := b.Build(raw)
	require.NoError(t, err)
	second, err := b.Build(raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildClockAndSession(t *testing.T) {
	b := NewBuilder(newFakeOS(), BuilderOptions{})
	assert.Len(t, b.SessionID(), 32)
	assert.NotContains(t, b.SessionID(), "-")

	before := time.Now().UnixNano()
	ev, err := b.Build(RawEvent{Name: "a", Kind: KindUp, ScanCode: 0x1E})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ev.Timestamp, before)
	assert.Equal(t, b.SessionID(), ev.SessionID)
}

func TestNewSessionIDUnique(t *testing.T) {
	assert.NotEqual(t, NewSessionID(), NewSessionID())
}

func TestEventJSON(t *testing.T) {
	ev, err := newTestBuilder(newFakeOS(), nil).Build(RawEvent{Name: "a", Kind: KindDown, ScanCode: 0x1E})
	require.NoError(t, err)

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "DOWN", fields["event"])
	assert.Equal(t, "a", fields["key_name"])
	assert.Equal(t, float64(0x1E), fields["scan_code"])
	assert.ElementsMatch(t,
		[]string{"session_id", "key_name", "event", "timestamp", "scan_code", "keyboard_layout", "active_window"},
		keys(fields))

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ev, back)
	assert.Equal(t, ev.Map()["event"], "DOWN")
}

func TestEventKind(t *testing.T) {
	assert.Equal(t, "DOWN", KindDown.String())
	assert.Equal(t, "UP", KindUp.String())
	assert.False(t, EventKind(0).Valid())

	k, err := ParseEventKind("UP")
	require.NoError(t, err)
	assert.Equal(t, KindUp, k)

	_, err = ParseEventKind("down")
	assert.ErrorIs(t, err, ErrInvalidEventKind)

	_, err = json.Marshal(Event{Kind: 7})
	assert.Error(t, err)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
