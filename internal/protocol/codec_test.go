package protocol

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

// TestRoundTripMouse verifies decode(encode(e)) == e for mouse events.
func TestRoundTripMouse(t *testing.T) {
	events := []Event{
		NewMouseEvent(MouseEvent{Kind: MouseMove, DeltaX: 10, DeltaY: -5}),
		NewMouseEvent(MouseEvent{Kind: MouseClick, Button: ButtonLeft}),
		NewMouseEvent(MouseEvent{Kind: MouseDoubleClick, Button: ButtonLeft}),
		NewMouseEvent(MouseEvent{Kind: MouseRightClick, Button: ButtonRight}),
		NewMouseEvent(MouseEvent{Kind: MouseScroll, DeltaZ: 3.5}),
		NewMouseEvent(MouseEvent{
			Kind:         MouseGesture,
			GestureKind:  GesturePinch,
			GestureScale: 1.25,
			FingerCount:  2,
		}),
		NewMouseEvent(MouseEvent{
			Kind:           MouseGesture,
			GestureKind:    GestureSwipe,
			SwipeDirection: SwipeLeft,
			FingerCount:    3,
		}),
		NewMouseEvent(MouseEvent{Kind: MouseDragStart, Button: ButtonLeft}),
		NewMouseEvent(MouseEvent{Kind: MouseDragMove, DeltaX: 2.5, DeltaY: 4}),
		NewMouseEvent(MouseEvent{Kind: MouseDragEnd}),
	}

	for _, want := range events {
		data, err := Encode(want)
		if err != nil {
			t.Fatalf("encode %v: unexpected error: %v", want.Mouse.Kind, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("decode %v: unexpected error: %v", want.Mouse.Kind, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip %v: expected %+v, got %+v", want.Mouse.Kind, want.Mouse, got.Mouse)
		}
	}
}

// TestRoundTripKey verifies decode(encode(e)) == e for both key payload forms.
func TestRoundTripKey(t *testing.T) {
	events := []Event{
		NewTextEvent("hello"),
		NewTextEvent("two\nlines with \"quotes\""),
		NewKeyCodeEvent(0x09, true, []uint16{0x37}),
		NewKeyCodeEvent(0x09, false, []uint16{0x37}),
		NewKeyCodeEvent(0x24, true, nil),
	}

	for i, want := range events {
		data, err := Encode(want)
		if err != nil {
			t.Fatalf("encode case %d: unexpected error: %v", i, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("decode case %d: unexpected error: %v", i, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip case %d: expected %+v, got %+v", i, want.Key, got.Key)
		}
	}
}

// TestEncodeDeterministic verifies that the same event always produces the
// same bytes.
func TestEncodeDeterministic(t *testing.T) {
	e := NewMouseEvent(MouseEvent{Kind: MouseGesture, GestureKind: GestureRotate, Rotation: 45, FingerCount: 2})

	first, err := Encode(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Encode(e)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding not deterministic: %q vs %q", first, again)
		}
	}
}

// TestEncodeSingleDelimiter verifies exactly one delimiter byte per frame,
// even when the text payload contains newlines.
func TestEncodeSingleDelimiter(t *testing.T) {
	data, err := Encode(NewTextEvent("line1\nline2\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := bytes.Count(data, []byte{Delimiter}); n != 1 {
		t.Errorf("expected exactly 1 delimiter, got %d in %q", n, data)
	}
	if data[len(data)-1] != Delimiter {
		t.Errorf("frame does not end with delimiter: %q", data)
	}
}

// TestDecodeKindPrecedence verifies the mouse schema wins when a frame has a
// valid kind, and that keycode frames are never mistaken for mouse frames.
func TestDecodeKindPrecedence(t *testing.T) {
	got, err := Decode([]byte(`{"kind":"move","deltaX":1,"deltaY":2,"keyCode":9}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Mouse == nil {
		t.Fatalf("expected mouse event, got %+v", got)
	}

	got, err = Decode([]byte(`{"keyCode":9,"isKeyDown":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Key == nil || got.Key.IsText() {
		t.Fatalf("expected keycode event, got %+v", got)
	}
}

// TestDecodeDefaults verifies gestureScale and fingerCount normalization on
// frames that omit them.
func TestDecodeDefaults(t *testing.T) {
	got, err := Decode([]byte(`{"kind":"gesture","gestureKind":"pinch"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Mouse.GestureScale != 1.0 {
		t.Errorf("expected gestureScale 1.0, got %v", got.Mouse.GestureScale)
	}
	if got.Mouse.FingerCount != 1 {
		t.Errorf("expected fingerCount 1, got %d", got.Mouse.FingerCount)
	}
}

// TestDecodeUnrecognized verifies frames matching neither schema fail with
// ErrUnrecognized.
func TestDecodeUnrecognized(t *testing.T) {
	frames := []string{
		``,
		`{}`,
		`not json`,
		`{"kind":"teleport"}`,
		`{"text":""}`,
		`{"text":"a","keyCode":9}`, // both payload forms: closed exclusive pair
		`{"something":"else"}`,
	}
	for _, f := range frames {
		if _, err := Decode([]byte(f)); !errors.Is(err, ErrUnrecognized) {
			t.Errorf("frame %q: expected ErrUnrecognized, got %v", f, err)
		}
	}
}

// TestEncodeEmptyEvent verifies an event with no variant is rejected.
func TestEncodeEmptyEvent(t *testing.T) {
	if _, err := Encode(Event{}); !errors.Is(err, ErrEmptyEvent) {
		t.Errorf("expected ErrEmptyEvent, got %v", err)
	}
}

// TestFrameScannerSplit verifies multiple frames arriving in one read are
// split on the delimiter before decode.
func TestFrameScannerSplit(t *testing.T) {
	var buf bytes.Buffer
	want := []Event{
		NewMouseEvent(MouseEvent{Kind: MouseMove, DeltaX: 1}),
		NewKeyCodeEvent(0x09, true, []uint16{0x37}),
		NewTextEvent("hi"),
	}
	for _, e := range want {
		data, err := Encode(e)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		buf.Write(data)
	}

	s := NewFrameScanner(&buf)
	for i, w := range want {
		frame, err := s.Next()
		if err != nil {
			t.Fatalf("frame %d: unexpected error: %v", i, err)
		}
		got, err := Decode(frame)
		if err != nil {
			t.Fatalf("frame %d: decode error: %v", i, err)
		}
		if !reflect.DeepEqual(got, w) {
			t.Errorf("frame %d: expected %+v, got %+v", i, w, got)
		}
	}
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after last frame, got %v", err)
	}
}

// TestFrameScannerPartial verifies a stream ending mid-frame reports an
// unexpected EOF instead of handing out a truncated frame.
func TestFrameScannerPartial(t *testing.T) {
	s := NewFrameScanner(strings.NewReader(`{"kind":"move"`))
	if _, err := s.Next(); err != io.ErrUnexpectedEOF {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

// TestHandshakeRoundTrip covers the out-of-band identity payload.
func TestHandshakeRoundTrip(t *testing.T) {
	want := Handshake{
		DeviceType: "handheld",
		DeviceName: "Pad",
		DeviceID:   "8c2f9c1e",
		AppName:    "deskpad",
	}
	data, err := EncodeHandshake(want)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := DecodeHandshake(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}

	if _, err := DecodeHandshake([]byte(`{"deviceName":"Pad"}`)); err == nil {
		t.Error("expected error for handshake without deviceID")
	}
}
