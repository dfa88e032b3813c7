//go:build windows

package input

// NewPlatformSynthesizer returns the default OS backend for this platform.
// Pointer and key injection go through SendInput directly; clipboard access
// still uses the robotgo backend.
func NewPlatformSynthesizer() (Synthesizer, Screen, Clipboard) {
	s := NewSendInputSynth()
	return s, s, NewRobotSynth()
}
