//go:build linux

package keystroke

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const procDevices = `I: Bus=0011 Vendor=0001 Product=0001 Version=ab41
N: Name="AT Translated Set 2 keyboard"
H: Handlers=sysrq kbd leds event3
B: EV=120013
B: KEY=402000000 3803078f800d001 feffffdfffefffff fffffffffffffffe

I: Bus=0019 Vendor=0000 Product=0001 Version=0000
N: Name="Power Button"
H: Handlers=kbd event0
B: EV=3
B: KEY=10000000000000 0

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech USB Receiver"
H: Handlers=sysrq kbd leds event7
B: EV=12001f
`

func TestParseInputDevices(t *testing.T) {
	got := parseInputDevices(strings.NewReader(procDevices))
	assert.Equal(t, []string{"/dev/input/event3", "/dev/input/event7"}, got)
}

func encodeInputEvent(typ, code uint16, value int32) []byte {
	buf := make([]byte, eventSize)
	if timevalSize == 16 {
		binary.LittleEndian.PutUint64(buf[0:], 1700000000)
		binary.LittleEndian.PutUint64(buf[8:], 250000)
	} else {
		binary.LittleEndian.PutUint32(buf[0:], 1700000000)
		binary.LittleEndian.PutUint32(buf[4:], 250000)
	}
	binary.LittleEndian.PutUint16(buf[timevalSize:], typ)
	binary.LittleEndian.PutUint16(buf[timevalSize+2:], code)
	binary.LittleEndian.PutUint32(buf[timevalSize+4:], uint32(value))
	return buf
}

func TestDecodeInputEvent(t *testing.T) {
	raw, ok := decodeInputEvent(encodeInputEvent(evKey, 30, keyPress))
	assert.True(t, ok)
	assert.Equal(t, "a", raw.Name)
	assert.Equal(t, KindDown, raw.Kind)
	assert.Equal(t, uint32(30), raw.ScanCode)
	assert.Equal(t, int64(1700000000250000000), raw.Time.UnixNano())

	raw, ok = decodeInputEvent(encodeInputEvent(evKey, 42, keyRelease))
	assert.True(t, ok)
	assert.Equal(t, KindUp, raw.Kind)

	raw, ok = decodeInputEvent(encodeInputEvent(evKey, 30, keyAutoRep))
	assert.True(t, ok)
	assert.Equal(t, KindDown, raw.Kind)

	_, ok = decodeInputEvent(encodeInputEvent(4, 4, 30)) // EV_MSC
	assert.False(t, ok)

	_, ok = decodeInputEvent(encodeInputEvent(evKey, 0, keyPress))
	assert.False(t, ok)

	_, ok = decodeInputEvent([]byte{1, 2, 3})
	assert.False(t, ok)
}
