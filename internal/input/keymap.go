package input

import "sync"

// Wire keycodes for the paste shortcut synthesized by literal-text
// insertion.
const (
	keyCodeV       uint16 = 0x09
	keyCodeCommand uint16 = 0x37
)

// modifierFlags maps wire virtual-keycodes of modifier keys to host
// modifier flags. Four modifiers are recognized; unrecognized codes are
// ignored by Injector.
var modifierFlags = map[uint16]Modifier{
	0x38: ModShift,   // left shift
	0x3C: ModShift,   // right shift
	0x3A: ModOption,  // left option
	0x3D: ModOption,  // right option
	0x37: ModCommand, // left command
	0x36: ModCommand, // right command
	0x3B: ModControl, // left control
	0x3E: ModControl, // right control
}

// defaultKeymap maps wire virtual-keycodes to synthesizer key names. The
// table is a replaceable data asset, not protocol logic: handheld layouts
// disagree on physical-keycode assignments, so deployments can swap the
// whole table with SetKeymap without touching the replay engine.
var defaultKeymap = map[uint16]string{
	// Letters
	0x00: "a", 0x0B: "b", 0x08: "c", 0x02: "d", 0x0E: "e", 0x03: "f",
	0x05: "g", 0x04: "h", 0x22: "i", 0x26: "j", 0x28: "k", 0x25: "l",
	0x2E: "m", 0x2D: "n", 0x1F: "o", 0x23: "p", 0x0C: "q", 0x0F: "r",
	0x01: "s", 0x11: "t", 0x20: "u", 0x09: "v", 0x0D: "w", 0x07: "x",
	0x10: "y", 0x06: "z",

	// Digits
	0x1D: "0", 0x12: "1", 0x13: "2", 0x14: "3", 0x15: "4", 0x17: "5",
	0x16: "6", 0x1A: "7", 0x1C: "8", 0x19: "9",

	// Function row
	0x7A: "f1", 0x78: "f2", 0x63: "f3", 0x76: "f4", 0x60: "f5",
	0x61: "f6", 0x62: "f7", 0x64: "f8", 0x65: "f9", 0x6D: "f10",
	0x67: "f11", 0x6F: "f12",

	// Control keys
	0x24: "enter",
	0x30: "tab",
	0x31: "space",
	0x33: "backspace",
	0x35: "escape",
	0x39: "capslock",
	0x75: "delete",
	0x73: "home",
	0x77: "end",
	0x74: "pageup",
	0x79: "pagedown",

	// Arrows
	0x7B: "left", 0x7C: "right", 0x7E: "up", 0x7D: "down",

	// Modifiers as standalone keys
	0x38: "shift", 0x3C: "rshift",
	0x3A: "alt", 0x3D: "ralt",
	0x37: "cmd", 0x36: "rcmd",
	0x3B: "ctrl", 0x3E: "rctrl",

	// Punctuation
	0x29: ";", 0x18: "=", 0x2B: ",", 0x1B: "-", 0x2F: ".", 0x2C: "/",
	0x32: "`", 0x21: "[", 0x2A: "\\", 0x1E: "]", 0x27: "'",

	// Keypad
	0x52: "num0", 0x53: "num1", 0x54: "num2", 0x55: "num3", 0x56: "num4",
	0x57: "num5", 0x58: "num6", 0x59: "num7", 0x5B: "num8", 0x5C: "num9",
	0x43: "num*", 0x45: "num+", 0x4E: "num-", 0x41: "num.", 0x4B: "num/",
	0x4C: "numenter",
}

var (
	keymapMu sync.RWMutex
	keymap   = defaultKeymap
)

// SetKeymap replaces the wire-keycode to key-name table.
func SetKeymap(m map[uint16]string) {
	keymapMu.Lock()
	keymap = m
	keymapMu.Unlock()
}

// KeyName resolves a wire keycode to a synthesizer key name.
func KeyName(code uint16) (string, bool) {
	keymapMu.RLock()
	defer keymapMu.RUnlock()
	name, ok := keymap[code]
	return name, ok
}

// FoldModifiers converts requested modifier keycodes into the combined host
// flag set, ignoring unrecognized codes.
func FoldModifiers(codes []uint16) Modifier {
	var flags Modifier
	for _, c := range codes {
		if f, ok := modifierFlags[c]; ok {
			flags |= f
		}
	}
	return flags
}
