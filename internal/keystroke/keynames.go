package keystroke

import "strconv"

// keyNames holds the symbolic names of set-1 scan codes. Linux evdev key
// codes are identical for this block.
var keyNames = map[uint32]string{
	1: "esc", 2: "1", 3: "2", 4: "3", 5: "4", 6: "5", 7: "6", 8: "7", 9: "8",
	10: "9", 11: "0", 12: "-", 13: "=", 14: "backspace", 15: "tab",
	16: "q", 17: "w", 18: "e", 19: "r", 20: "t", 21: "y", 22: "u", 23: "i",
	24: "o", 25: "p", 26: "[", 27: "]", 28: "enter", 29: "ctrl",
	30: "a", 31: "s", 32: "d", 33: "f", 34: "g", 35: "h", 36: "j", 37: "k",
	38: "l", 39: ";", 40: "'", 41: "`", 42: "shift", 43: "\\",
	44: "z", 45: "x", 46: "c", 47: "v", 48: "b", 49: "n", 50: "m",
	51: ",", 52: ".", 53: "/", 54: "right shift", 55: "*", 56: "alt",
	57: "space", 58: "caps lock",
	59: "f1", 60: "f2", 61: "f3", 62: "f4", 63: "f5", 64: "f6", 65: "f7",
	66: "f8", 67: "f9", 68: "f10", 69: "num lock", 70: "scroll lock",
	71: "7", 72: "8", 73: "9", 74: "-", 75: "4", 76: "5", 77: "6", 78: "+",
	79: "1", 80: "2", 81: "3", 82: "0", 83: ".",
	86: "\\", 87: "f11", 88: "f12",
	// evdev codes past the set-1 block
	96: "enter", 97: "right ctrl", 98: "/", 99: "print screen", 100: "alt gr",
	102: "home", 103: "up", 104: "page up", 105: "left", 106: "right",
	107: "end", 108: "down", 109: "page down", 110: "insert", 111: "delete",
	119: "pause", 125: "windows", 126: "right windows", 127: "menu",
}

// KeyName returns the symbolic name of a scan code, "sc_<n>" if unknown.
func KeyName(scanCode uint32) string {
	if name, ok := keyNames[scanCode]; ok {
		return name
	}
	return "sc_" + strconv.FormatUint(uint64(scanCode), 10)
}

// usScanCodes maps printable ASCII to the US scan code producing it unshifted.
var usScanCodes = func() map[rune]uint32 {
	m := map[rune]uint32{' ': 57}
	for sc := uint32(2); sc <= 53; sc++ {
		name := keyNames[sc]
		if len(name) == 1 {
			m[rune(name[0])] = sc
		}
	}
	return m
}()
