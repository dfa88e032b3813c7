package input

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"deskpad/internal/metrics"
	"deskpad/internal/protocol"
)

// ErrPermissionRequired reports an injection attempt without the host
// capability grant. No OS call is made in that case.
var ErrPermissionRequired = errors.New("input: accessibility permission not granted")

// Delays inherited from how OS input pipelines behave, not tunables to
// optimize away: the click delay keeps immediately-adjacent down/up pairs
// from being coalesced into a no-op, and the paste delay gives the paste a
// chance to complete before the clipboard is restored.
const (
	DefaultClickDelay = 50 * time.Millisecond
	DefaultPasteDelay = 100 * time.Millisecond
	doubleClickWindow = 500 * time.Millisecond
)

// Injector replays decoded events as OS input actions while tracking
// gesture and modifier state across calls. All events for one connection
// pass through Apply from a single goroutine; Reset is called on
// disconnect.
type Injector struct {
	synth Synthesizer
	scr   Screen
	clip  Clipboard
	perm  Permission

	// Test seams; production uses the defaults.
	clickDelay time.Duration
	pasteDelay time.Duration
	sleep      func(time.Duration)

	mu            sync.Mutex
	dragging      bool
	pendingClicks int
	lastClick     time.Time
	lastButton    string
}

// New creates an Injector over the supplied OS collaborators.
func New(synth Synthesizer, scr Screen, clip Clipboard, perm Permission) *Injector {
	return &Injector{
		synth:      synth,
		scr:        scr,
		clip:       clip,
		perm:       perm,
		clickDelay: DefaultClickDelay,
		pasteDelay: DefaultPasteDelay,
		sleep:      time.Sleep,
	}
}

// Apply replays one event. Unsupported kinds (scroll, gesture) are
// accepted and ignored; a missing capability grant refuses the whole call
// before any OS interaction.
func (in *Injector) Apply(e protocol.Event) error {
	if !in.perm.Granted() {
		metrics.EventsInjected.WithLabelValues("refused").Inc()
		return fmt.Errorf("%w: %s", ErrPermissionRequired, in.perm.Reason())
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	var (
		injected bool
		err      error
	)
	switch {
	case e.Mouse != nil:
		injected, err = in.applyMouse(*e.Mouse)
	case e.Key != nil:
		err = in.applyKey(*e.Key)
		injected = err == nil
	default:
		return protocol.ErrEmptyEvent
	}
	if err != nil {
		return err
	}
	// Each event lands in exactly one outcome bucket: "injected" when OS
	// actions were emitted, "ignored" otherwise.
	if injected {
		metrics.EventsInjected.WithLabelValues("injected").Inc()
	} else {
		metrics.EventsInjected.WithLabelValues("ignored").Inc()
	}
	return nil
}

// Reset clears gesture and modifier state. Called on disconnect so a stale
// drag never leaks into the next session.
func (in *Injector) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.dragging {
		// Release the held button rather than leaving it stuck down.
		x, y := in.synth.PointerPosition()
		if err := in.synth.Inject(Action{Kind: ActionButtonUp, X: x, Y: y, Button: "left", ClickCount: 1}); err != nil {
			log.Printf("Injector: releasing drag on reset: %v", err)
		}
	}
	in.dragging = false
	in.pendingClicks = 0
	in.lastClick = time.Time{}
	in.lastButton = ""
}

// applyMouse replays one mouse event. The injected result reports whether
// any OS action was emitted; state-guarded no-ops and unhandled kinds
// report false.
func (in *Injector) applyMouse(m protocol.MouseEvent) (injected bool, err error) {
	switch m.Kind {
	case protocol.MouseMove:
		x, y := in.target(float64(m.DeltaX), float64(m.DeltaY))
		return true, in.synth.Inject(Action{Kind: ActionMove, X: x, Y: y})

	case protocol.MouseClick:
		return true, in.click("left")

	case protocol.MouseRightClick:
		return true, in.click("right")

	case protocol.MouseDoubleClick:
		// Two pairs tagged with explicit click counts 1 then 2, so the
		// OS groups them as one double-click.
		x, y := in.synth.PointerPosition()
		for count := 1; count <= 2; count++ {
			if err := in.pressRelease("left", x, y, count); err != nil {
				return true, err
			}
		}
		in.pendingClicks = 2
		in.lastClick = time.Now()
		in.lastButton = "left"
		return true, nil

	case protocol.MouseDragStart:
		x, y := in.synth.PointerPosition()
		if err := in.synth.Inject(Action{Kind: ActionButtonDown, X: x, Y: y, Button: "left", ClickCount: 1}); err != nil {
			return true, err
		}
		in.dragging = true
		return true, nil

	case protocol.MouseDragMove:
		if !in.dragging {
			// Reordered or duplicated frame; defuse rather than raise.
			return false, nil
		}
		x, y := in.target(float64(m.DeltaX), float64(m.DeltaY))
		return true, in.synth.Inject(Action{Kind: ActionDrag, X: x, Y: y, Button: "left"})

	case protocol.MouseDragEnd:
		if !in.dragging {
			return false, nil
		}
		x, y := in.synth.PointerPosition()
		if err := in.synth.Inject(Action{Kind: ActionButtonUp, X: x, Y: y, Button: "left", ClickCount: 1}); err != nil {
			return true, err
		}
		in.dragging = false
		return true, nil

	case protocol.MouseScroll, protocol.MouseGesture:
		// Decoded but not replayed: this engine deliberately does not
		// synthesize scroll or trackpad gestures.
		return false, nil
	}
	return false, nil
}

// click emits a down/up pair at the current pointer position. Rapid
// successive clicks of the same button within the double-click window
// escalate the click count so the OS can group them; switching buttons
// starts a fresh sequence.
func (in *Injector) click(button string) error {
	now := time.Now()
	if button == in.lastButton && now.Sub(in.lastClick) < doubleClickWindow {
		in.pendingClicks++
	} else {
		in.pendingClicks = 1
	}
	in.lastClick = now
	in.lastButton = button

	x, y := in.synth.PointerPosition()
	return in.pressRelease(button, x, y, in.pendingClicks)
}

// pressRelease emits button-down then button-up with the inter-action
// delay in between.
func (in *Injector) pressRelease(button string, x, y float64, count int) error {
	if err := in.synth.Inject(Action{Kind: ActionButtonDown, X: x, Y: y, Button: button, ClickCount: count}); err != nil {
		return err
	}
	in.sleep(in.clickDelay)
	return in.synth.Inject(Action{Kind: ActionButtonUp, X: x, Y: y, Button: button, ClickCount: count})
}

// target computes the absolute pointer target for a relative delta,
// clamped to the visible screen bounds.
func (in *Injector) target(dx, dy float64) (float64, float64) {
	x, y := in.synth.PointerPosition()
	w, h := in.scr.Bounds()
	return clamp(x+dx, 0, w-1), clamp(y+dy, 0, h-1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (in *Injector) applyKey(k protocol.KeyEvent) error {
	if k.IsText() {
		return in.insertText(k.Text)
	}

	// Keycode path: modifiers become flags on the one key event rather
	// than separate key presses, so a lost up-frame can never leave a
	// modifier stuck down on the host.
	flags := FoldModifiers(k.Modifiers)
	return in.synth.Inject(Action{
		Kind:    ActionKey,
		KeyCode: k.KeyCode,
		KeyDown: k.IsKeyDown,
		Flags:   flags,
	})
}

// insertText inserts literal text at the host's focus via a clipboard
// round-trip: direct Unicode keycode synthesis is unreliable across
// layouts, pasting is not. The prior clipboard contents are restored no
// matter how the paste goes.
func (in *Injector) insertText(text string) error {
	prev, err := in.clip.Read()
	restorable := err == nil
	if err != nil {
		log.Printf("Injector: clipboard snapshot failed, restore skipped: %v", err)
	}

	if restorable {
		defer func() {
			if rerr := in.clip.Write(prev); rerr != nil {
				// Best effort: clipboard state is not safety-critical.
				log.Printf("Injector: clipboard restore failed: %v", rerr)
			}
		}()
	}

	if err := in.clip.Write(text); err != nil {
		return fmt.Errorf("input: clipboard write: %w", err)
	}

	if err := in.pasteShortcut(); err != nil {
		return err
	}

	// Give the focused application time to consume the paste before the
	// deferred restore overwrites the clipboard.
	in.sleep(in.pasteDelay)
	return nil
}

// pasteShortcut synthesizes modifier-down, paste-key-down, paste-key-up,
// modifier-up.
func (in *Injector) pasteShortcut() error {
	steps := []Action{
		{Kind: ActionKey, KeyCode: keyCodeCommand, KeyDown: true},
		{Kind: ActionKey, KeyCode: keyCodeV, KeyDown: true, Flags: ModCommand},
		{Kind: ActionKey, KeyCode: keyCodeV, KeyDown: false, Flags: ModCommand},
		{Kind: ActionKey, KeyCode: keyCodeCommand, KeyDown: false},
	}
	for _, a := range steps {
		if err := in.synth.Inject(a); err != nil {
			return fmt.Errorf("input: paste shortcut: %w", err)
		}
	}
	return nil
}
