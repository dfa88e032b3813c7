package input

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"deskpad/internal/metrics"
	"deskpad/internal/protocol"
)

// fakeSynth records injected actions and serves a scripted pointer
// position and screen size.
type fakeSynth struct {
	actions []Action
	x, y    float64
	w, h    float64
	fail    error
}

func (f *fakeSynth) Inject(a Action) error {
	if f.fail != nil {
		return f.fail
	}
	f.actions = append(f.actions, a)
	switch a.Kind {
	case ActionMove, ActionDrag:
		f.x, f.y = a.X, a.Y
	}
	return nil
}

func (f *fakeSynth) PointerPosition() (float64, float64) { return f.x, f.y }
func (f *fakeSynth) Bounds() (float64, float64)          { return f.w, f.h }

type fakeClipboard struct {
	content string
	writes  []string
	readErr error
}

func (f *fakeClipboard) Read() (string, error) {
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.content, nil
}

func (f *fakeClipboard) Write(text string) error {
	f.content = text
	f.writes = append(f.writes, text)
	return nil
}

func newTestInjector(synth *fakeSynth, clip *fakeClipboard) *Injector {
	in := New(synth, synth, clip, StaticPermission{Value: true})
	in.sleep = func(time.Duration) {}
	return in
}

func mouse(kind protocol.MouseKind, dx, dy float32) protocol.Event {
	return protocol.NewMouseEvent(protocol.MouseEvent{Kind: kind, DeltaX: dx, DeltaY: dy})
}

func TestMoveClampsToScreenBounds(t *testing.T) {
	synth := &fakeSynth{x: 100, y: 100, w: 1920, h: 1080}
	in := newTestInjector(synth, &fakeClipboard{})

	if err := in.Apply(mouse(protocol.MouseMove, 10, -5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(synth.actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(synth.actions))
	}
	a := synth.actions[0]
	if a.Kind != ActionMove || a.X != 110 || a.Y != 95 {
		t.Errorf("expected move to (110, 95), got %v at (%v, %v)", a.Kind, a.X, a.Y)
	}

	// A huge delta pins the target to the far corner.
	if err := in.Apply(mouse(protocol.MouseMove, 5000, 5000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a = synth.actions[1]
	if a.X != 1919 || a.Y != 1079 {
		t.Errorf("expected clamp to (1919, 1079), got (%v, %v)", a.X, a.Y)
	}

	// And a huge negative delta pins to the origin.
	if err := in.Apply(mouse(protocol.MouseMove, -5000, -5000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a = synth.actions[2]
	if a.X != 0 || a.Y != 0 {
		t.Errorf("expected clamp to (0, 0), got (%v, %v)", a.X, a.Y)
	}
}

func TestClickEmitsDownUpPairWithDelay(t *testing.T) {
	synth := &fakeSynth{x: 50, y: 60, w: 1920, h: 1080}
	in := newTestInjector(synth, &fakeClipboard{})

	var slept []time.Duration
	in.sleep = func(d time.Duration) { slept = append(slept, d) }

	if err := in.Apply(mouse(protocol.MouseClick, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(synth.actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(synth.actions))
	}
	down, up := synth.actions[0], synth.actions[1]
	if down.Kind != ActionButtonDown || down.Button != "left" || down.ClickCount != 1 {
		t.Errorf("unexpected down action: %+v", down)
	}
	if up.Kind != ActionButtonUp || up.Button != "left" || up.ClickCount != 1 {
		t.Errorf("unexpected up action: %+v", up)
	}
	if down.X != 50 || down.Y != 60 {
		t.Errorf("expected click at pointer position (50, 60), got (%v, %v)", down.X, down.Y)
	}
	if len(slept) != 1 || slept[0] != DefaultClickDelay {
		t.Errorf("expected one %v sleep between down and up, got %v", DefaultClickDelay, slept)
	}
}

func TestRightClickUsesRightButton(t *testing.T) {
	synth := &fakeSynth{w: 1920, h: 1080}
	in := newTestInjector(synth, &fakeClipboard{})

	if err := in.Apply(mouse(protocol.MouseRightClick, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, a := range synth.actions {
		if a.Button != "right" {
			t.Errorf("expected right button, got %q", a.Button)
		}
	}
}

func TestRapidClicksEscalateClickCount(t *testing.T) {
	synth := &fakeSynth{w: 1920, h: 1080}
	in := newTestInjector(synth, &fakeClipboard{})

	if err := in.Apply(mouse(protocol.MouseClick, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := in.Apply(mouse(protocol.MouseClick, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := synth.actions[2].ClickCount; got != 2 {
		t.Errorf("expected second click to carry count 2, got %d", got)
	}
}

func TestButtonChangeResetsClickEscalation(t *testing.T) {
	synth := &fakeSynth{w: 1920, h: 1080}
	in := newTestInjector(synth, &fakeClipboard{})

	if err := in.Apply(mouse(protocol.MouseClick, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := in.Apply(mouse(protocol.MouseRightClick, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A right click immediately after a left click starts a new sequence.
	if got := synth.actions[2].ClickCount; got != 1 {
		t.Errorf("expected right click to carry count 1, got %d", got)
	}
	if got := synth.actions[2].Button; got != "right" {
		t.Errorf("expected button right, got %q", got)
	}
	if err := in.Apply(mouse(protocol.MouseRightClick, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Same button within the window still escalates.
	if got := synth.actions[4].ClickCount; got != 2 {
		t.Errorf("expected repeated right click to carry count 2, got %d", got)
	}
}

func TestDoubleClickEmitsTwoPairsWithCounts(t *testing.T) {
	synth := &fakeSynth{w: 1920, h: 1080}
	in := newTestInjector(synth, &fakeClipboard{})

	if err := in.Apply(mouse(protocol.MouseDoubleClick, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(synth.actions) != 4 {
		t.Fatalf("expected 4 actions, got %d", len(synth.actions))
	}
	wantCounts := []int{1, 1, 2, 2}
	wantKinds := []ActionKind{ActionButtonDown, ActionButtonUp, ActionButtonDown, ActionButtonUp}
	for i, a := range synth.actions {
		if a.Kind != wantKinds[i] {
			t.Errorf("action %d: expected %v, got %v", i, wantKinds[i], a.Kind)
		}
		if a.ClickCount != wantCounts[i] {
			t.Errorf("action %d: expected click count %d, got %d", i, wantCounts[i], a.ClickCount)
		}
	}
}

func TestDragSequence(t *testing.T) {
	synth := &fakeSynth{x: 10, y: 10, w: 1920, h: 1080}
	in := newTestInjector(synth, &fakeClipboard{})

	for _, e := range []protocol.Event{
		mouse(protocol.MouseDragStart, 0, 0),
		mouse(protocol.MouseDragMove, 5, 5),
		mouse(protocol.MouseDragEnd, 0, 0),
	} {
		if err := in.Apply(e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	wantKinds := []ActionKind{ActionButtonDown, ActionDrag, ActionButtonUp}
	if len(synth.actions) != len(wantKinds) {
		t.Fatalf("expected %d actions, got %d", len(wantKinds), len(synth.actions))
	}
	for i, a := range synth.actions {
		if a.Kind != wantKinds[i] {
			t.Errorf("action %d: expected %v, got %v", i, wantKinds[i], a.Kind)
		}
	}
	if drag := synth.actions[1]; drag.X != 15 || drag.Y != 15 {
		t.Errorf("expected drag target (15, 15), got (%v, %v)", drag.X, drag.Y)
	}
}

func TestDragMoveAndEndWithoutStartAreNoOps(t *testing.T) {
	synth := &fakeSynth{w: 1920, h: 1080}
	in := newTestInjector(synth, &fakeClipboard{})

	if err := in.Apply(mouse(protocol.MouseDragMove, 5, 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := in.Apply(mouse(protocol.MouseDragEnd, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(synth.actions) != 0 {
		t.Errorf("expected no actions, got %d", len(synth.actions))
	}
}

func TestScrollAndGestureAreAcceptedAndIgnored(t *testing.T) {
	synth := &fakeSynth{w: 1920, h: 1080}
	in := newTestInjector(synth, &fakeClipboard{})

	injectedBefore := testutil.ToFloat64(metrics.EventsInjected.WithLabelValues("injected"))
	ignoredBefore := testutil.ToFloat64(metrics.EventsInjected.WithLabelValues("ignored"))

	if err := in.Apply(mouse(protocol.MouseScroll, 0, -3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := in.Apply(mouse(protocol.MouseGesture, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(synth.actions) != 0 {
		t.Errorf("expected no actions, got %d", len(synth.actions))
	}
	if got := testutil.ToFloat64(metrics.EventsInjected.WithLabelValues("injected")); got != injectedBefore {
		t.Errorf("expected injected count unchanged at %v, got %v", injectedBefore, got)
	}
	if got := testutil.ToFloat64(metrics.EventsInjected.WithLabelValues("ignored")); got != ignoredBefore+2 {
		t.Errorf("expected ignored count %v, got %v", ignoredBefore+2, got)
	}
}

func TestDragNoOpsCountAsIgnored(t *testing.T) {
	synth := &fakeSynth{w: 1920, h: 1080}
	in := newTestInjector(synth, &fakeClipboard{})

	injectedBefore := testutil.ToFloat64(metrics.EventsInjected.WithLabelValues("injected"))
	ignoredBefore := testutil.ToFloat64(metrics.EventsInjected.WithLabelValues("ignored"))

	if err := in.Apply(mouse(protocol.MouseDragMove, 5, 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := in.Apply(mouse(protocol.MouseDragEnd, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := testutil.ToFloat64(metrics.EventsInjected.WithLabelValues("injected")); got != injectedBefore {
		t.Errorf("expected injected count unchanged at %v, got %v", injectedBefore, got)
	}
	if got := testutil.ToFloat64(metrics.EventsInjected.WithLabelValues("ignored")); got != ignoredBefore+2 {
		t.Errorf("expected ignored count %v, got %v", ignoredBefore+2, got)
	}
}

func TestResetReleasesHeldDragButton(t *testing.T) {
	synth := &fakeSynth{w: 1920, h: 1080}
	in := newTestInjector(synth, &fakeClipboard{})

	if err := in.Apply(mouse(protocol.MouseDragStart, 0, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in.Reset()

	last := synth.actions[len(synth.actions)-1]
	if last.Kind != ActionButtonUp || last.Button != "left" {
		t.Errorf("expected reset to release left button, got %+v", last)
	}

	// A drag-move after reset is a no-op again.
	n := len(synth.actions)
	if err := in.Apply(mouse(protocol.MouseDragMove, 5, 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(synth.actions) != n {
		t.Errorf("expected no action after reset, got %d new", len(synth.actions)-n)
	}
}

func TestKeyCodeEventCarriesModifierFlags(t *testing.T) {
	synth := &fakeSynth{w: 1920, h: 1080}
	in := newTestInjector(synth, &fakeClipboard{})

	e := protocol.NewKeyCodeEvent(0x00, true, []uint16{0x38, 0x37}) // shift+cmd A down
	if err := in.Apply(e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(synth.actions) != 1 {
		t.Fatalf("expected exactly 1 action, got %d", len(synth.actions))
	}
	a := synth.actions[0]
	if a.Kind != ActionKey || a.KeyCode != 0x00 || !a.KeyDown {
		t.Errorf("unexpected key action: %+v", a)
	}
	if a.Flags != ModShift|ModCommand {
		t.Errorf("expected shift|command flags, got %v", a.Flags)
	}
}

func TestUnrecognizedModifiersAreIgnored(t *testing.T) {
	synth := &fakeSynth{w: 1920, h: 1080}
	in := newTestInjector(synth, &fakeClipboard{})

	e := protocol.NewKeyCodeEvent(0x00, true, []uint16{0x38, 0xFF})
	if err := in.Apply(e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := synth.actions[0].Flags; got != ModShift {
		t.Errorf("expected only shift flag, got %v", got)
	}
}

func TestTextInsertionPastesAndRestoresClipboard(t *testing.T) {
	synth := &fakeSynth{w: 1920, h: 1080}
	clip := &fakeClipboard{content: "previous"}
	in := newTestInjector(synth, clip)

	if err := in.Apply(protocol.NewTextEvent("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Text written, then prior content restored.
	if len(clip.writes) != 2 || clip.writes[0] != "hello" || clip.writes[1] != "previous" {
		t.Errorf("unexpected clipboard writes: %v", clip.writes)
	}
	if clip.content != "previous" {
		t.Errorf("expected clipboard restored to %q, got %q", "previous", clip.content)
	}

	// Paste shortcut: modifier down, flagged V down/up, modifier up.
	if len(synth.actions) != 4 {
		t.Fatalf("expected 4 key actions, got %d", len(synth.actions))
	}
	v := synth.actions[1]
	if v.KeyCode != keyCodeV || !v.KeyDown || v.Flags != ModCommand {
		t.Errorf("unexpected paste key action: %+v", v)
	}
	first, last := synth.actions[0], synth.actions[3]
	if first.KeyCode != keyCodeCommand || !first.KeyDown {
		t.Errorf("unexpected leading modifier action: %+v", first)
	}
	if last.KeyCode != keyCodeCommand || last.KeyDown {
		t.Errorf("unexpected trailing modifier action: %+v", last)
	}
}

func TestTextInsertionRestoresEmptyClipboard(t *testing.T) {
	synth := &fakeSynth{w: 1920, h: 1080}
	clip := &fakeClipboard{content: ""}
	in := newTestInjector(synth, clip)

	if err := in.Apply(protocol.NewTextEvent("hi")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clip.content != "" {
		t.Errorf("expected empty clipboard restored, got %q", clip.content)
	}
}

func TestTextInsertionRestoresClipboardOnPasteFailure(t *testing.T) {
	synth := &fakeSynth{w: 1920, h: 1080}
	clip := &fakeClipboard{content: "keep me"}
	in := newTestInjector(synth, clip)

	synth.fail = errors.New("synthesis rejected")

	if err := in.Apply(protocol.NewTextEvent("lost")); err == nil {
		t.Fatal("expected error, got nil")
	}
	if clip.content != "keep me" {
		t.Errorf("expected clipboard restored after failure, got %q", clip.content)
	}
}

func TestTextInsertionSkipsRestoreWhenSnapshotFails(t *testing.T) {
	synth := &fakeSynth{w: 1920, h: 1080}
	clip := &fakeClipboard{readErr: errors.New("clipboard busy")}
	in := newTestInjector(synth, clip)

	if err := in.Apply(protocol.NewTextEvent("hi")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Only the text write happens; nothing to restore.
	if len(clip.writes) != 1 || clip.writes[0] != "hi" {
		t.Errorf("unexpected clipboard writes: %v", clip.writes)
	}
}

func TestPermissionRefusalBlocksAllInjection(t *testing.T) {
	synth := &fakeSynth{w: 1920, h: 1080}
	clip := &fakeClipboard{content: "untouched"}
	in := New(synth, synth, clip, StaticPermission{Value: false, Detail: "accessibility not granted"})
	in.sleep = func(time.Duration) {}

	err := in.Apply(mouse(protocol.MouseClick, 0, 0))
	if !errors.Is(err, ErrPermissionRequired) {
		t.Fatalf("expected ErrPermissionRequired, got %v", err)
	}
	if err := in.Apply(protocol.NewTextEvent("hi")); !errors.Is(err, ErrPermissionRequired) {
		t.Fatalf("expected ErrPermissionRequired, got %v", err)
	}
	if len(synth.actions) != 0 {
		t.Errorf("expected no OS actions, got %d", len(synth.actions))
	}
	if len(clip.writes) != 0 {
		t.Errorf("expected no clipboard writes, got %v", clip.writes)
	}
}

func TestEmptyEventIsRejected(t *testing.T) {
	in := newTestInjector(&fakeSynth{w: 1920, h: 1080}, &fakeClipboard{})
	if err := in.Apply(protocol.Event{}); !errors.Is(err, protocol.ErrEmptyEvent) {
		t.Fatalf("expected ErrEmptyEvent, got %v", err)
	}
}

func TestKeymapLookup(t *testing.T) {
	if name, ok := KeyName(keyCodeV); !ok || name != "v" {
		t.Errorf("expected %q, got %q (ok=%v)", "v", name, ok)
	}
	if _, ok := KeyName(0xFF); ok {
		t.Error("expected unknown keycode to miss")
	}

	// The table is a replaceable asset.
	SetKeymap(map[uint16]string{0x01: "custom"})
	defer SetKeymap(defaultKeymap)
	if name, ok := KeyName(0x01); !ok || name != "custom" {
		t.Errorf("expected %q, got %q (ok=%v)", "custom", name, ok)
	}
	if _, ok := KeyName(keyCodeV); ok {
		t.Error("expected replaced table to drop default entries")
	}
}
