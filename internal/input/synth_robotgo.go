package input

import (
	"fmt"

	"github.com/go-vgo/robotgo"
)

// RobotSynth is the default OS backend, implementing the Synthesizer,
// Screen and Clipboard collaborators with robotgo.
type RobotSynth struct{}

// NewRobotSynth returns the robotgo-backed OS collaborator set.
func NewRobotSynth() *RobotSynth { return &RobotSynth{} }

// Inject performs one synthetic input action.
func (s *RobotSynth) Inject(a Action) error {
	switch a.Kind {
	case ActionMove:
		robotgo.Move(int(a.X), int(a.Y))

	case ActionButtonDown:
		robotgo.Move(int(a.X), int(a.Y))
		robotgo.Toggle(a.Button, "down")

	case ActionButtonUp:
		robotgo.Toggle(a.Button, "up")

	case ActionDrag:
		robotgo.DragSmooth(int(a.X), int(a.Y))

	case ActionKey:
		name, ok := KeyName(a.KeyCode)
		if !ok {
			return fmt.Errorf("input: no key mapping for keycode 0x%02X", a.KeyCode)
		}
		dir := "up"
		if a.KeyDown {
			dir = "down"
		}
		args := []interface{}{dir}
		for _, m := range modifierNames(a.Flags) {
			args = append(args, m)
		}
		robotgo.KeyToggle(name, args...)

	default:
		return fmt.Errorf("input: unsupported action %v", a.Kind)
	}
	return nil
}

// PointerPosition returns the current cursor position.
func (s *RobotSynth) PointerPosition() (float64, float64) {
	x, y := robotgo.GetMousePos()
	return float64(x), float64(y)
}

// Bounds returns the primary display size.
func (s *RobotSynth) Bounds() (float64, float64) {
	w, h := robotgo.GetScreenSize()
	return float64(w), float64(h)
}

// Read returns the current clipboard text.
func (s *RobotSynth) Read() (string, error) {
	return robotgo.ReadAll()
}

// Write replaces the clipboard text.
func (s *RobotSynth) Write(text string) error {
	return robotgo.WriteAll(text)
}

func modifierNames(flags Modifier) []string {
	var names []string
	if flags&ModShift != 0 {
		names = append(names, "shift")
	}
	if flags&ModOption != 0 {
		names = append(names, "alt")
	}
	if flags&ModCommand != 0 {
		names = append(names, "cmd")
	}
	if flags&ModControl != 0 {
		names = append(names, "ctrl")
	}
	return names
}
