// Package protocol defines the wire-level event model and the
// newline-delimited JSON framing used between the handheld client and the
// desktop host. Every frame is one UTF-8 JSON object followed by a single
// '\n' byte; events flow client -> host only.
package protocol

// MouseKind discriminates the mouse event variants.
type MouseKind string

const (
	MouseMove        MouseKind = "move"
	MouseClick       MouseKind = "click"
	MouseDoubleClick MouseKind = "doubleClick"
	MouseRightClick  MouseKind = "rightClick"
	MouseScroll      MouseKind = "scroll"
	MouseGesture     MouseKind = "gesture"
	MouseDragStart   MouseKind = "dragStart"
	MouseDragMove    MouseKind = "dragMove"
	MouseDragEnd     MouseKind = "dragEnd"
)

// Valid reports whether k is one of the defined mouse kinds.
func (k MouseKind) Valid() bool {
	switch k {
	case MouseMove, MouseClick, MouseDoubleClick, MouseRightClick,
		MouseScroll, MouseGesture, MouseDragStart, MouseDragMove, MouseDragEnd:
		return true
	}
	return false
}

// Button identifies a mouse button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// GestureKind identifies a trackpad gesture carried by a gesture event.
type GestureKind string

const (
	GestureNone      GestureKind = "none"
	GesturePinch     GestureKind = "pinch"
	GestureRotate    GestureKind = "rotate"
	GestureSwipe     GestureKind = "swipe"
	GestureSmartZoom GestureKind = "smartZoom"
)

// SwipeDirection identifies the direction of a swipe gesture.
type SwipeDirection string

const (
	SwipeLeft  SwipeDirection = "left"
	SwipeRight SwipeDirection = "right"
	SwipeUp    SwipeDirection = "up"
	SwipeDown  SwipeDirection = "down"
)

// MouseEvent is one pointer action. DeltaX/DeltaY are relative to the
// host's current pointer position; DeltaZ carries scroll distance.
type MouseEvent struct {
	Kind           MouseKind      `json:"kind"`
	DeltaX         float32        `json:"deltaX"`
	DeltaY         float32        `json:"deltaY"`
	DeltaZ         float32        `json:"deltaZ"`
	Button         Button         `json:"button,omitempty"`
	GestureKind    GestureKind    `json:"gestureKind,omitempty"`
	GestureScale   float32        `json:"gestureScale"`
	Rotation       float32        `json:"rotation"`
	SwipeDirection SwipeDirection `json:"swipeDirection,omitempty"`
	FingerCount    int            `json:"fingerCount"`
}

// KeyEvent is one keyboard action. Exactly one payload form is populated:
// a character payload (Text, "insert this literal text") or a keycode
// payload (KeyCode/IsKeyDown/Modifiers). The two forms are mutually
// exclusive on the wire.
type KeyEvent struct {
	Text      string   `json:"text,omitempty"`
	KeyCode   uint16   `json:"keyCode"`
	IsKeyDown bool     `json:"isKeyDown"`
	Modifiers []uint16 `json:"modifiers,omitempty"`
}

// IsText reports whether the event carries a character payload.
func (k KeyEvent) IsText() bool { return k.Text != "" }

// Event is the tagged union carried by one frame: exactly one of Mouse or
// Key is non-nil. Events are immutable once constructed.
type Event struct {
	Mouse *MouseEvent
	Key   *KeyEvent
}

// NewMouseEvent builds a normalized mouse event: FingerCount is floored at
// 1 and GestureScale defaults to 1.0 when unset.
func NewMouseEvent(e MouseEvent) Event {
	if e.FingerCount < 1 {
		e.FingerCount = 1
	}
	if e.GestureScale == 0 {
		e.GestureScale = 1.0
	}
	return Event{Mouse: &e}
}

// NewTextEvent builds a character-payload key event.
func NewTextEvent(text string) Event {
	return Event{Key: &KeyEvent{Text: text}}
}

// NewKeyCodeEvent builds a keycode-payload key event.
func NewKeyCodeEvent(code uint16, down bool, modifiers []uint16) Event {
	return Event{Key: &KeyEvent{KeyCode: code, IsKeyDown: down, Modifiers: modifiers}}
}
