// Package audio holds the PCM primitives shared by the transport engine and
// the monitoring streams: frame constants, fade curves, and file decoding.
package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// SilenceFrame returns a zeroed frame of the standard size.
func SilenceFrame() []int16 {
	return make([]int16, FrameSamples)
}

// FramesForDuration returns how many 20ms frames cover d, rounding up.
func FramesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := int(d / FrameDuration)
	if d%FrameDuration != 0 {
		n++
	}
	return n
}
