//go:build !windows

package input

// NewPlatformSynthesizer returns the default OS backend for this platform.
func NewPlatformSynthesizer() (Synthesizer, Screen, Clipboard) {
	r := NewRobotSynth()
	return r, r, r
}
