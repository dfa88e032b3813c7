package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Delimiter separates frames on the wire. It never appears unescaped inside
// a frame: JSON string encoding escapes control characters, so the only raw
// 0x0A in an encoded frame is the trailer.
const Delimiter byte = '\n'

// MaxFrameSize bounds a single frame. Text-insertion events carry arbitrary
// pasted text, so the limit is generous.
const MaxFrameSize = 1 << 20

var (
	// ErrUnrecognized reports a frame that matches neither the mouse nor
	// the key schema.
	ErrUnrecognized = errors.New("protocol: unrecognized frame")

	// ErrEmptyEvent reports an Event with no variant set.
	ErrEmptyEvent = errors.New("protocol: event has no variant")

	// ErrFrameTooLarge reports a frame exceeding MaxFrameSize.
	ErrFrameTooLarge = errors.New("protocol: frame too large")
)

// Wire forms for KeyEvent. The character and keycode payloads are encoded
// as disjoint JSON shapes so a decoder can tell them apart by field
// presence alone.
type textFrame struct {
	Text string `json:"text"`
}

type codeFrame struct {
	KeyCode   uint16   `json:"keyCode"`
	IsKeyDown bool     `json:"isKeyDown"`
	Modifiers []uint16 `json:"modifiers,omitempty"`
}

// keyProbe detects which key payload form a frame carries.
type keyProbe struct {
	Text      *string  `json:"text"`
	KeyCode   *uint16  `json:"keyCode"`
	IsKeyDown bool     `json:"isKeyDown"`
	Modifiers []uint16 `json:"modifiers"`
}

// Encode serializes e into a self-delimiting frame: one JSON object plus
// the trailing delimiter. Encoding is deterministic: the same Event always
// produces the same bytes.
func Encode(e Event) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case e.Mouse != nil:
		data, err = json.Marshal(e.Mouse)
	case e.Key != nil && e.Key.IsText():
		data, err = json.Marshal(textFrame{Text: e.Key.Text})
	case e.Key != nil:
		data, err = json.Marshal(codeFrame{
			KeyCode:   e.Key.KeyCode,
			IsKeyDown: e.Key.IsKeyDown,
			Modifiers: e.Key.Modifiers,
		})
	default:
		return nil, ErrEmptyEvent
	}
	if err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	if bytes.IndexByte(data, Delimiter) >= 0 {
		return nil, fmt.Errorf("protocol: encode: embedded delimiter")
	}
	return append(data, Delimiter), nil
}

// Decode parses a single frame (with or without the trailing delimiter)
// back into an Event. The mouse schema is attempted first, then the key
// schema; a frame matching neither fails with ErrUnrecognized. Decode is
// pure: it never mutates shared state.
func Decode(data []byte) (Event, error) {
	data = bytes.TrimSuffix(data, []byte{Delimiter})
	if len(data) == 0 {
		return Event{}, ErrUnrecognized
	}

	// Mouse schema: a valid "kind" discriminator decides.
	var m MouseEvent
	if err := json.Unmarshal(data, &m); err == nil && m.Kind.Valid() {
		if m.FingerCount < 1 {
			m.FingerCount = 1
		}
		if m.GestureScale == 0 {
			m.GestureScale = 1.0
		}
		return Event{Mouse: &m}, nil
	}

	// Key schema: exactly one of the two payload forms must be present.
	var p keyProbe
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}
	switch {
	case p.Text != nil && p.KeyCode == nil:
		if *p.Text == "" {
			return Event{}, ErrUnrecognized
		}
		return Event{Key: &KeyEvent{Text: *p.Text}}, nil
	case p.KeyCode != nil && p.Text == nil:
		return Event{Key: &KeyEvent{
			KeyCode:   *p.KeyCode,
			IsKeyDown: p.IsKeyDown,
			Modifiers: p.Modifiers,
		}}, nil
	}
	return Event{}, ErrUnrecognized
}

// FrameScanner splits a byte stream into delimited frames. Multiple frames
// arriving in one read are handed out one at a time; a partial frame is
// held until its delimiter arrives.
type FrameScanner struct {
	r *bufio.Reader
}

// NewFrameScanner returns a scanner reading frames from r.
func NewFrameScanner(r io.Reader) *FrameScanner {
	return &FrameScanner{r: bufio.NewReaderSize(r, 4096)}
}

// Next returns the next frame without its delimiter. It returns io.EOF when
// the stream ends cleanly and ErrFrameTooLarge when a frame exceeds
// MaxFrameSize.
func (s *FrameScanner) Next() ([]byte, error) {
	var frame []byte
	for {
		chunk, err := s.r.ReadSlice(Delimiter)
		frame = append(frame, chunk...)
		if err == nil {
			return frame[:len(frame)-1], nil
		}
		if err == bufio.ErrBufferFull {
			if len(frame) > MaxFrameSize {
				return nil, ErrFrameTooLarge
			}
			continue
		}
		if err == io.EOF && len(frame) > 0 {
			// Stream ended mid-frame; the partial frame is dropped.
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
}
