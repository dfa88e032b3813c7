// Package input turns decoded events into synthetic OS pointer and
// keyboard actions, preserving multi-click, drag and modifier semantics.
// The OS-specific mechanics live behind small collaborator interfaces; the
// replay state machine itself is platform-neutral.
package input

// ActionKind discriminates the synthetic input actions handed to the OS.
type ActionKind int

const (
	ActionMove ActionKind = iota
	ActionButtonDown
	ActionButtonUp
	ActionDrag
	ActionKey
)

// String returns the action kind name, mainly for test failure output.
func (k ActionKind) String() string {
	switch k {
	case ActionMove:
		return "move"
	case ActionButtonDown:
		return "buttonDown"
	case ActionButtonUp:
		return "buttonUp"
	case ActionDrag:
		return "drag"
	case ActionKey:
		return "key"
	}
	return "unknown"
}

// Modifier is the host-side modifier flag set applied to a key action.
type Modifier uint32

const (
	ModShift Modifier = 1 << iota
	ModOption
	ModCommand
	ModControl
)

// Action is one synthetic input primitive: {action, position, button,
// flags} plus the key fields for keyboard actions. ClickCount tags button
// actions so the OS groups rapid pairs into double-clicks.
type Action struct {
	Kind       ActionKind
	X, Y       float64
	Button     string // "left", "right", "middle"
	ClickCount int
	KeyCode    uint16
	KeyDown    bool
	Flags      Modifier
}

// Synthesizer is the OS input-injection collaborator.
type Synthesizer interface {
	Inject(Action) error
	PointerPosition() (x, y float64)
}

// Screen is the visible-bounds query used to clamp pointer targets.
type Screen interface {
	Bounds() (w, h float64)
}

// Clipboard is the process-wide clipboard collaborator used by literal-text
// insertion.
type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

// Permission is the accessibility/input-injection capability gate. The
// core only consumes granted / not granted plus a human-readable reason;
// obtaining the grant is the outer layer's concern.
type Permission interface {
	Granted() bool
	Reason() string
}

// StaticPermission is a Permission with a fixed answer, supplied by the
// platform layer at startup.
type StaticPermission struct {
	Value  bool
	Detail string
}

func (p StaticPermission) Granted() bool  { return p.Value }
func (p StaticPermission) Reason() string { return p.Detail }
