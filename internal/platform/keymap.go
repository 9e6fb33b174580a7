package platform

import "unicode"

// Layout tables for the Desktop shim. Scan codes are PC set 1, which Linux
// evdev key codes match for the main key block.

// scanToVK maps set-1 scan codes to US virtual key codes. Modifiers resolve to
// their side-neutral codes; scanToVKEx overrides them with left/right codes.
var scanToVK = map[uint32]uint32{
	0x01: VKEscape,
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0',
	0x0C: 0xBD, // VK_OEM_MINUS
	0x0D: 0xBB, // VK_OEM_PLUS
	0x0E: VKBack,
	0x0F: VKTab,
	0x10: 'Q', 0x11: 'W', 0x12: 'E', 0x13: 'R', 0x14: 'T',
	0x15: 'Y', 0x16: 'U', 0x17: 'I', 0x18: 'O', 0x19: 'P',
	0x1A: 0xDB, // VK_OEM_4
	0x1B: 0xDD, // VK_OEM_6
	0x1C: VKReturn,
	0x1D: VKControl,
	0x1E: 'A', 0x1F: 'S', 0x20: 'D', 0x21: 'F', 0x22: 'G',
	0x23: 'H', 0x24: 'J', 0x25: 'K', 0x26: 'L',
	0x27: 0xBA, // VK_OEM_1
	0x28: 0xDE, // VK_OEM_7
	0x29: 0xC0, // VK_OEM_3
	0x2A: VKShift,
	0x2B: 0xDC, // VK_OEM_5
	0x2C: 'Z', 0x2D: 'X', 0x2E: 'C', 0x2F: 'V', 0x30: 'B',
	0x31: 'N', 0x32: 'M',
	0x33: 0xBC, // VK_OEM_COMMA
	0x34: 0xBE, // VK_OEM_PERIOD
	0x35: 0xBF, // VK_OEM_2
	0x36: VKShift,
	0x37: 0x6A, // VK_MULTIPLY
	0x38: VKMenu,
	0x39: VKSpace,
	0x3A: VKCapital,
	0x3B: 0x70, 0x3C: 0x71, 0x3D: 0x72, 0x3E: 0x73, 0x3F: 0x74,
	0x40: 0x75, 0x41: 0x76, 0x42: 0x77, 0x43: 0x78, 0x44: 0x79,
	0x45: 0x90, // VK_NUMLOCK
	0x46: 0x91, // VK_SCROLL
	0x56: 0xE2, // VK_OEM_102
	0x57: 0x7A,
	0x58: 0x7B,

	scanRightCtrl: VKControl,
	scanRightAlt:  VKMenu,
}

// Right Ctrl and right Alt arrive with an E0 prefix on PC keyboards; evdev
// reports them as KEY_RIGHTCTRL (97) and KEY_RIGHTALT (100).
const (
	scanRightCtrl = 0x61
	scanRightAlt  = 0x64
)

var scanToVKEx = map[uint32]uint32{
	0x1D:          VKLControl,
	0x2A:          VKLShift,
	0x36:          VKRShift,
	0x38:          VKLMenu,
	scanRightCtrl: VKRControl,
	scanRightAlt:  VKRMenu,
}

// layoutVK holds, per language identifier, the key positions whose virtual
// key differs from the US mapping.
var layoutVK = map[uint16]map[uint32]uint32{
	// QWERTZ
	0x0407: {
		0x0C: 0xDB, 0x0D: 0xDD,
		0x15: 'Z', 0x2C: 'Y',
		0x1A: 0xBA, 0x1B: 0xBB,
		0x27: 0xC0, 0x28: 0xDE, 0x29: 0xDC,
		0x2B: 0xBF, 0x35: 0xBD,
	},
	// AZERTY
	0x040C: {
		0x10: 'A', 0x11: 'Z', 0x1E: 'Q', 0x2C: 'W', 0x27: 'M',
		0x32: 0xBC, 0x33: 0xBE, 0x34: 0xBF, 0x35: 0xDF,
	},
}

// controlUnits are the code units ToUnicodeEx reports for editing keys.
var controlUnits = map[uint32]rune{
	VKBack:   '\b',
	VKTab:    '\t',
	VKReturn: '\r',
	VKEscape: 0x1B,
}

// glyph is what one key position produces. altgr is the character with
// AltGr (right Alt, or Ctrl+Alt) held; 0 when the layout has none.
type glyph struct {
	plain, shifted, altgr rune
	dead                  bool
}

type glyphTable map[uint32]glyph

func letterRow(t glyphTable, first uint32, row string) {
	sc := first
	for _, r := range row {
		t[sc] = glyph{plain: r, shifted: unicode.ToUpper(r)}
		sc++
	}
}

func pairs(t glyphTable, p map[uint32][2]rune) {
	for sc, g := range p {
		t[sc] = glyph{plain: g[0], shifted: g[1]}
	}
}

func altGr(t glyphTable, p map[uint32]rune) {
	for sc, r := range p {
		g := t[sc]
		g.altgr = r
		t[sc] = g
	}
}

func dead(t glyphTable, scanCodes ...uint32) {
	for _, sc := range scanCodes {
		g := t[sc]
		g.dead = true
		t[sc] = g
	}
}

func clone(t glyphTable) glyphTable {
	c := make(glyphTable, len(t))
	for sc, g := range t {
		c[sc] = g
	}
	return c
}

// Keys shared by every table: numpad multiply and space.
func common(t glyphTable) {
	pairs(t, map[uint32][2]rune{0x37: {'*', '*'}, 0x39: {' ', ' '}})
}

var usGlyphs = func() glyphTable {
	t := glyphTable{}
	common(t)
	letterRow(t, 0x10, "qwertyuiop")
	letterRow(t, 0x1E, "asdfghjkl")
	letterRow(t, 0x2C, "zxcvbnm")
	pairs(t, map[uint32][2]rune{
		0x02: {'1', '!'}, 0x03: {'2', '@'}, 0x04: {'3', '#'}, 0x05: {'4', '$'},
		0x06: {'5', '%'}, 0x07: {'6', '^'}, 0x08: {'7', '&'}, 0x09: {'8', '*'},
		0x0A: {'9', '('}, 0x0B: {'0', ')'}, 0x0C: {'-', '_'}, 0x0D: {'=', '+'},
		0x1A: {'[', '{'}, 0x1B: {']', '}'}, 0x27: {';', ':'}, 0x28: {'\'', '"'},
		0x29: {'`', '~'}, 0x2B: {'\\', '|'}, 0x33: {',', '<'}, 0x34: {'.', '>'},
		0x35: {'/', '?'}, 0x56: {'\\', '|'},
	})
	return t
}()

var ukGlyphs = func() glyphTable {
	t := clone(usGlyphs)
	pairs(t, map[uint32][2]rune{
		0x03: {'2', '"'}, 0x04: {'3', '£'}, 0x28: {'\'', '@'},
		0x29: {'`', '¬'}, 0x2B: {'#', '~'}, 0x56: {'\\', '|'},
	})
	altGr(t, map[uint32]rune{0x05: '€'})
	return t
}()

var ukrainianGlyphs = func() glyphTable {
	t := glyphTable{}
	common(t)
	letterRow(t, 0x10, "йцукенгшщзхї")
	letterRow(t, 0x1E, "фівапролджє")
	letterRow(t, 0x2C, "ячсмитьбю")
	pairs(t, map[uint32][2]rune{
		0x02: {'1', '!'}, 0x03: {'2', '"'}, 0x04: {'3', '№'}, 0x05: {'4', ';'},
		0x06: {'5', '%'}, 0x07: {'6', ':'}, 0x08: {'7', '?'}, 0x09: {'8', '*'},
		0x0A: {'9', '('}, 0x0B: {'0', ')'}, 0x0C: {'-', '_'}, 0x0D: {'=', '+'},
		0x29: {'\'', '₴'}, 0x2B: {'\\', '/'}, 0x35: {'.', ','}, 0x56: {'ґ', 'Ґ'},
	})
	altGr(t, map[uint32]rune{0x16: 'ґ'})
	return t
}()

var russianGlyphs = func() glyphTable {
	t := glyphTable{}
	common(t)
	letterRow(t, 0x10, "йцукенгшщзхъ")
	letterRow(t, 0x1E, "фывапролджэ")
	letterRow(t, 0x2C, "ячсмитьбю")
	letterRow(t, 0x29, "ё")
	pairs(t, map[uint32][2]rune{
		0x02: {'1', '!'}, 0x03: {'2', '"'}, 0x04: {'3', '№'}, 0x05: {'4', ';'},
		0x06: {'5', '%'}, 0x07: {'6', ':'}, 0x08: {'7', '?'}, 0x09: {'8', '*'},
		0x0A: {'9', '('}, 0x0B: {'0', ')'}, 0x0C: {'-', '_'}, 0x0D: {'=', '+'},
		0x2B: {'\\', '/'}, 0x35: {'.', ','}, 0x56: {'\\', '/'},
	})
	return t
}()

var germanGlyphs = func() glyphTable {
	t := glyphTable{}
	common(t)
	letterRow(t, 0x10, "qwertzuiopü")
	letterRow(t, 0x1E, "asdfghjklöä")
	letterRow(t, 0x2C, "yxcvbnm")
	pairs(t, map[uint32][2]rune{
		0x02: {'1', '!'}, 0x03: {'2', '"'}, 0x04: {'3', '§'}, 0x05: {'4', '$'},
		0x06: {'5', '%'}, 0x07: {'6', '&'}, 0x08: {'7', '/'}, 0x09: {'8', '('},
		0x0A: {'9', ')'}, 0x0B: {'0', '='}, 0x0C: {'ß', '?'}, 0x1B: {'+', '*'},
		0x2B: {'#', '\''}, 0x33: {',', ';'}, 0x34: {'.', ':'}, 0x35: {'-', '_'},
		0x56: {'<', '>'},
	})
	t[0x0D] = glyph{plain: '´', shifted: '`', dead: true}
	t[0x29] = glyph{plain: '^', shifted: '°', dead: true}
	altGr(t, map[uint32]rune{
		0x03: '²', 0x04: '³', 0x08: '{', 0x09: '[', 0x0A: ']', 0x0B: '}',
		0x0C: '\\', 0x10: '@', 0x12: '€', 0x1B: '~', 0x32: 'µ', 0x56: '|',
	})
	return t
}()

var frenchGlyphs = func() glyphTable {
	t := glyphTable{}
	common(t)
	letterRow(t, 0x10, "azertyuiop")
	letterRow(t, 0x1E, "qsdfghjklm")
	letterRow(t, 0x2C, "wxcvbn")
	pairs(t, map[uint32][2]rune{
		0x02: {'&', '1'}, 0x03: {'é', '2'}, 0x04: {'"', '3'}, 0x05: {'\'', '4'},
		0x06: {'(', '5'}, 0x07: {'-', '6'}, 0x08: {'è', '7'}, 0x09: {'_', '8'},
		0x0A: {'ç', '9'}, 0x0B: {'à', '0'}, 0x0C: {')', '°'}, 0x0D: {'=', '+'},
		0x1A: {'^', '¨'}, 0x1B: {'$', '£'}, 0x28: {'ù', '%'}, 0x2B: {'*', 'µ'},
		0x29: {'²', '²'}, 0x32: {',', '?'}, 0x33: {';', '.'}, 0x34: {':', '/'},
		0x35: {'!', '§'}, 0x56: {'<', '>'},
	})
	dead(t, 0x1A)
	altGr(t, map[uint32]rune{
		0x04: '#', 0x05: '{', 0x06: '[', 0x07: '|', 0x09: '\\', 0x0A: '^',
		0x0B: '@', 0x0C: ']', 0x0D: '}', 0x12: '€', 0x1B: '¤',
	})
	return t
}()

// Polish (programmers) is the US layout with AltGr diacritics.
var polishGlyphs = func() glyphTable {
	t := clone(usGlyphs)
	altGr(t, map[uint32]rune{
		0x1E: 'ą', 0x2E: 'ć', 0x12: 'ę', 0x26: 'ł', 0x31: 'ń',
		0x18: 'ó', 0x1F: 'ś', 0x2D: 'ź', 0x2C: 'ż', 0x16: '€',
	})
	return t
}()

var italianGlyphs = func() glyphTable {
	t := glyphTable{}
	common(t)
	letterRow(t, 0x10, "qwertyuiop")
	letterRow(t, 0x1E, "asdfghjkl")
	letterRow(t, 0x2C, "zxcvbnm")
	pairs(t, map[uint32][2]rune{
		0x02: {'1', '!'}, 0x03: {'2', '"'}, 0x04: {'3', '£'}, 0x05: {'4', '$'},
		0x06: {'5', '%'}, 0x07: {'6', '&'}, 0x08: {'7', '/'}, 0x09: {'8', '('},
		0x0A: {'9', ')'}, 0x0B: {'0', '='}, 0x0C: {'\'', '?'}, 0x0D: {'ì', '^'},
		0x1A: {'è', 'é'}, 0x1B: {'+', '*'}, 0x27: {'ò', 'ç'}, 0x28: {'à', '°'},
		0x29: {'\\', '|'}, 0x2B: {'ù', '§'}, 0x33: {',', ';'}, 0x34: {'.', ':'},
		0x35: {'-', '_'}, 0x56: {'<', '>'},
	})
	altGr(t, map[uint32]rune{0x12: '€', 0x1A: '[', 0x1B: ']', 0x27: '@', 0x28: '#'})
	return t
}()

var spanishGlyphs = func() glyphTable {
	t := glyphTable{}
	common(t)
	letterRow(t, 0x10, "qwertyuiop")
	letterRow(t, 0x1E, "asdfghjklñ")
	letterRow(t, 0x2C, "zxcvbnm")
	pairs(t, map[uint32][2]rune{
		0x02: {'1', '!'}, 0x03: {'2', '"'}, 0x04: {'3', '·'}, 0x05: {'4', '$'},
		0x06: {'5', '%'}, 0x07: {'6', '&'}, 0x08: {'7', '/'}, 0x09: {'8', '('},
		0x0A: {'9', ')'}, 0x0B: {'0', '='}, 0x0C: {'\'', '?'}, 0x0D: {'¡', '¿'},
		0x1A: {'`', '^'}, 0x1B: {'+', '*'}, 0x28: {'´', '¨'}, 0x29: {'º', 'ª'},
		0x2B: {'ç', 'Ç'}, 0x33: {',', ';'}, 0x34: {'.', ':'}, 0x35: {'-', '_'},
		0x56: {'<', '>'},
	})
	dead(t, 0x1A, 0x28)
	altGr(t, map[uint32]rune{
		0x02: '|', 0x03: '@', 0x04: '#', 0x12: '€', 0x1A: '[', 0x1B: ']',
		0x28: '{', 0x2B: '}', 0x29: '\\',
	})
	return t
}()

// glyphTables is keyed by language identifier. Layouts without a table
// produce no characters.
var glyphTables = map[uint16]glyphTable{
	0x0409: usGlyphs,
	0x0809: ukGlyphs,
	0x0422: ukrainianGlyphs,
	0x0419: russianGlyphs,
	0x0407: germanGlyphs,
	0x040C: frenchGlyphs,
	0x0415: polishGlyphs,
	0x0410: italianGlyphs,
	0x0C0A: spanishGlyphs,
}

// layoutLangIDs maps short layout names (xkb names, normalised macOS input
// source names) to Windows language identifiers.
var layoutLangIDs = map[string]uint16{
	"us": 0x0409,
	"gb": 0x0809,
	"ua": 0x0422,
	"de": 0x0407,
	"ru": 0x0419,
	"fr": 0x040C,
	"pl": 0x0415,
	"it": 0x0410,
	"es": 0x0C0A,
}

var localeNames = map[uint16]string{
	0x0407: "de-DE",
	0x0409: "en-US",
	0x040C: "fr-FR",
	0x0410: "it-IT",
	0x0415: "pl-PL",
	0x0419: "ru-RU",
	0x0422: "uk-UA",
	0x0809: "en-GB",
	0x0C0A: "es-ES",
}

// LayoutForName returns the layout handle for a short layout name, or 0.
func LayoutForName(name string) Layout {
	id, ok := layoutLangIDs[name]
	if !ok {
		return 0
	}
	return Layout(uintptr(id)<<16 | uintptr(id))
}

// ScanCodeToVK maps a set-1 scan code to a US virtual key. When extended is
// true, modifiers map to their left/right specific codes.
func ScanCodeToVK(scanCode uint32, extended bool) uint32 {
	if extended {
		if vk, ok := scanToVKEx[scanCode]; ok {
			return vk
		}
	}
	return scanToVK[scanCode]
}
