package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

func clip(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// CrossfadeFrames blends an outgoing frame with an incoming frame at the given
// progress (0.0 = all outgoing, 1.0 = all incoming). Uses smoothstep curve.
// Both frames must have the same length. Returns the blended frame.
func CrossfadeFrames(outgoing, incoming []int16, progress float64) []int16 {
	gain := Smoothstep(progress)
	result := make([]int16, len(outgoing))

	for i := range outgoing {
		out := float64(outgoing[i]) * (1 - gain)
		in := float64(incoming[i]) * gain
		result[i] = clip(out + in)
	}

	return result
}

// MixFrames sums two frames sample by sample with each side scaled by its
// gain, clipping to the int16 range. Used for the double-drop envelope where
// both decks run at full level through the drop.
func MixFrames(a, b []int16, gainA, gainB float64) []int16 {
	result := make([]int16, len(a))
	for i := range a {
		result[i] = clip(float64(a[i])*gainA + float64(b[i])*gainB)
	}
	return result
}

// GainFrame scales a frame by a flat gain, clipping to int16.
func GainFrame(frame []int16, gain float64) []int16 {
	result := make([]int16, len(frame))
	for i, s := range frame {
		result[i] = clip(float64(s) * gain)
	}
	return result
}

// EchoState carries the feedback-delay line used by the echo-out envelope.
// The delay buffer holds delaySamples interleaved samples; each pass mixes
// the delayed signal back in at the feedback gain, so a silenced input rings
// out with a decaying tail.
type EchoState struct {
	buf      []int16
	pos      int
	feedback float64
}

// NewEchoState creates an echo line with the given delay (interleaved sample
// count, must be a multiple of Channels) and feedback gain in (0,1).
func NewEchoState(delaySamples int, feedback float64) *EchoState {
	if delaySamples < Channels {
		delaySamples = Channels
	}
	if feedback <= 0 || feedback >= 1 {
		feedback = 0.5
	}
	return &EchoState{
		buf:      make([]int16, delaySamples),
		feedback: feedback,
	}
}

// Process runs one frame through the echo line: dry input at dryGain plus the
// delayed tail. Feed silence with dryGain 0 to let the tail decay.
func (e *EchoState) Process(frame []int16, dryGain float64) []int16 {
	result := make([]int16, len(frame))
	for i := range frame {
		dry := float64(frame[i]) * dryGain
		wet := float64(e.buf[e.pos]) * e.feedback
		mixed := clip(dry + wet)
		result[i] = mixed
		e.buf[e.pos] = mixed
		e.pos++
		if e.pos >= len(e.buf) {
			e.pos = 0
		}
	}
	return result
}

// ResampleFrame reads FrameSize output samples per channel from src starting
// at the fractional cursor (in per-channel sample units), advancing by rate
// per output sample. Linear interpolation between neighbouring samples keeps
// tempo-synced decks click-free at small rate offsets. Returns the rendered
// frame and the new cursor. Past the end of src the output is silence.
func ResampleFrame(src []int16, cursor, rate float64) ([]int16, float64) {
	frame := make([]int16, FrameSamples)
	srcFrames := len(src) / Channels

	for i := 0; i < FrameSize; i++ {
		pos := cursor + float64(i)*rate
		idx := int(pos)
		if idx >= srcFrames-1 {
			break
		}
		frac := pos - float64(idx)
		for c := 0; c < Channels; c++ {
			a := float64(src[idx*Channels+c])
			b := float64(src[(idx+1)*Channels+c])
			frame[i*Channels+c] = clip(a + (b-a)*frac)
		}
	}

	return frame, cursor + float64(FrameSize)*rate
}
