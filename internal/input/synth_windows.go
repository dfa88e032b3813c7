//go:build windows

package input

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procSendInput        = user32.NewProc("SendInput")
	procSetCursorPos     = user32.NewProc("SetCursorPos")
	procGetCursorPos     = user32.NewProc("GetCursorPos")
	procGetSystemMetrics = user32.NewProc("GetSystemMetrics")
	procMapVirtualKeyW   = user32.NewProc("MapVirtualKeyW")
)

const (
	inputMouse    = 0
	inputKeyboard = 1

	mouseeventfLeftDown   = 0x0002
	mouseeventfLeftUp     = 0x0004
	mouseeventfRightDown  = 0x0008
	mouseeventfRightUp    = 0x0010
	mouseeventfMiddleDown = 0x0020
	mouseeventfMiddleUp   = 0x0040

	keyeventfKeyUp = 0x0002

	smCxScreen = 0
	smCyScreen = 1
)

type mouseInput struct {
	Dx          int32
	Dy          int32
	MouseData   uint32
	DwFlags     uint32
	Time        uint32
	DwExtraInfo uintptr
}

type keybdInput struct {
	WVk         uint16
	WScan       uint16
	DwFlags     uint32
	Time        uint32
	DwExtraInfo uintptr
	_           [8]byte // pad to MOUSEINPUT size
}

// winInput mirrors the win64 INPUT struct: 4-byte Type, 4 bytes of
// alignment padding the compiler inserts before the 8-aligned union, then
// the 32-byte union with MOUSEINPUT as its largest member. 40 bytes total;
// SendInput rejects any other cbSize.
type winInput struct {
	Type uint32
	Mi   mouseInput
}

type point struct {
	X, Y int32
}

// winModifierVK maps wire modifier keycodes to Windows virtual keys for
// the flag-press bracket around a keycode injection.
var winModifierVK = map[Modifier]uint16{
	ModShift:   0x10, // VK_SHIFT
	ModControl: 0x11, // VK_CONTROL
	ModOption:  0x12, // VK_MENU
	ModCommand: 0x5B, // VK_LWIN
}

// winKeymap translates the wire keycode space to Windows virtual keys.
// Like the name table, it is a replaceable asset.
var winKeymap = map[uint16]uint16{
	0x00: 'A', 0x0B: 'B', 0x08: 'C', 0x02: 'D', 0x0E: 'E', 0x03: 'F',
	0x05: 'G', 0x04: 'H', 0x22: 'I', 0x26: 'J', 0x28: 'K', 0x25: 'L',
	0x2E: 'M', 0x2D: 'N', 0x1F: 'O', 0x23: 'P', 0x0C: 'Q', 0x0F: 'R',
	0x01: 'S', 0x11: 'T', 0x20: 'U', 0x09: 'V', 0x0D: 'W', 0x07: 'X',
	0x10: 'Y', 0x06: 'Z',
	0x1D: '0', 0x12: '1', 0x13: '2', 0x14: '3', 0x15: '4', 0x17: '5',
	0x16: '6', 0x1A: '7', 0x1C: '8', 0x19: '9',
	0x24: 0x0D, // enter
	0x30: 0x09, // tab
	0x31: 0x20, // space
	0x33: 0x08, // backspace
	0x35: 0x1B, // escape
	0x75: 0x2E, // delete
	0x7B: 0x25, 0x7C: 0x27, 0x7E: 0x26, 0x7D: 0x28, // arrows
}

// SendInputSynth is the Windows OS backend built directly on SendInput,
// avoiding the cgo toolchain requirement of the robotgo backend.
type SendInputSynth struct{}

// NewSendInputSynth returns the SendInput-backed synthesizer.
func NewSendInputSynth() *SendInputSynth { return &SendInputSynth{} }

// Inject performs one synthetic input action.
func (s *SendInputSynth) Inject(a Action) error {
	switch a.Kind {
	case ActionMove, ActionDrag:
		procSetCursorPos.Call(uintptr(int32(a.X)), uintptr(int32(a.Y)))
		return nil

	case ActionButtonDown, ActionButtonUp:
		flags, err := buttonFlags(a.Button, a.Kind == ActionButtonDown)
		if err != nil {
			return err
		}
		procSetCursorPos.Call(uintptr(int32(a.X)), uintptr(int32(a.Y)))
		var in winInput
		in.Type = inputMouse
		in.Mi.DwFlags = flags
		n, _, callErr := procSendInput.Call(1, uintptr(unsafe.Pointer(&in)), unsafe.Sizeof(in))
		if n != 1 {
			return fmt.Errorf("input: SendInput mouse: %v", callErr)
		}
		return nil

	case ActionKey:
		vk, ok := winKeymap[a.KeyCode]
		if !ok {
			return fmt.Errorf("input: no key mapping for keycode 0x%02X", a.KeyCode)
		}
		// Modifier flags bracket the single key event.
		if a.KeyDown {
			for _, m := range []Modifier{ModShift, ModControl, ModOption, ModCommand} {
				if a.Flags&m != 0 {
					if err := sendKey(winModifierVK[m], true); err != nil {
						return err
					}
				}
			}
		}
		if err := sendKey(vk, a.KeyDown); err != nil {
			return err
		}
		if !a.KeyDown {
			for _, m := range []Modifier{ModShift, ModControl, ModOption, ModCommand} {
				if a.Flags&m != 0 {
					if err := sendKey(winModifierVK[m], false); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
	return fmt.Errorf("input: unsupported action %v", a.Kind)
}

// PointerPosition returns the current cursor position.
func (s *SendInputSynth) PointerPosition() (float64, float64) {
	var p point
	procGetCursorPos.Call(uintptr(unsafe.Pointer(&p)))
	return float64(p.X), float64(p.Y)
}

// Bounds returns the primary display size.
func (s *SendInputSynth) Bounds() (float64, float64) {
	w, _, _ := procGetSystemMetrics.Call(smCxScreen)
	h, _, _ := procGetSystemMetrics.Call(smCyScreen)
	return float64(int32(w)), float64(int32(h))
}

func sendKey(vk uint16, down bool) error {
	scan, _, _ := procMapVirtualKeyW.Call(uintptr(vk), 0)
	var in struct {
		Type uint32
		Ki   keybdInput
	}
	in.Type = inputKeyboard
	in.Ki.WVk = vk
	in.Ki.WScan = uint16(scan)
	if !down {
		in.Ki.DwFlags = keyeventfKeyUp
	}
	n, _, callErr := procSendInput.Call(1, uintptr(unsafe.Pointer(&in)), unsafe.Sizeof(in))
	if n != 1 {
		return fmt.Errorf("input: SendInput key 0x%02X: %v", vk, callErr)
	}
	return nil
}

func buttonFlags(button string, down bool) (uint32, error) {
	switch button {
	case "left":
		if down {
			return mouseeventfLeftDown, nil
		}
		return mouseeventfLeftUp, nil
	case "right":
		if down {
			return mouseeventfRightDown, nil
		}
		return mouseeventfRightUp, nil
	case "middle":
		if down {
			return mouseeventfMiddleDown, nil
		}
		return mouseeventfMiddleUp, nil
	}
	return 0, fmt.Errorf("input: unknown button %q", button)
}
