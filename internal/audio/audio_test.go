package audio

import (
	"testing"
	"time"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
}

func TestSilenceFrame(t *testing.T) {
	frame := SilenceFrame()
	if len(frame) != FrameSamples {
		t.Fatalf("SilenceFrame length = %d, want %d", len(frame), FrameSamples)
	}
	for i, s := range frame {
		if s != 0 {
			t.Fatalf("SilenceFrame sample[%d] = %d, want 0", i, s)
		}
	}
}

func TestFramesForDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{FrameDuration, 1},
		{time.Second, 50},
		{30 * time.Millisecond, 2}, // partial frames round up
	}
	for _, tt := range tests {
		if got := FramesForDuration(tt.d); got != tt.want {
			t.Errorf("FramesForDuration(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

// --- Smoothstep ---

func TestSmoothstepBoundaries(t *testing.T) {
	tests := []struct {
		input float64
		want  float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.5, 1},
	}
	for _, tt := range tests {
		got := Smoothstep(tt.input)
		if got != tt.want {
			t.Errorf("Smoothstep(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSmoothstepMonotonic(t *testing.T) {
	prev := 0.0
	for i := 1; i <= 100; i++ {
		x := float64(i) / 100.0
		val := Smoothstep(x)
		if val < prev {
			t.Errorf("Smoothstep not monotonic: f(%v)=%v < f(%v)=%v", x, val, float64(i-1)/100.0, prev)
		}
		prev = val
	}
}

// --- CrossfadeFrames / MixFrames ---

func TestCrossfadeAllOutgoing(t *testing.T) {
	out := []int16{1000, -1000, 500, -500}
	in := []int16{2000, -2000, 1500, -1500}
	result := CrossfadeFrames(out, in, 0)
	for i, v := range result {
		if v != out[i] {
			t.Errorf("At progress=0 sample[%d] = %d, want %d (all outgoing)", i, v, out[i])
		}
	}
}

func TestCrossfadeAllIncoming(t *testing.T) {
	out := []int16{1000, -1000, 500, -500}
	in := []int16{2000, -2000, 1500, -1500}
	result := CrossfadeFrames(out, in, 1)
	for i, v := range result {
		if v != in[i] {
			t.Errorf("At progress=1 sample[%d] = %d, want %d (all incoming)", i, v, in[i])
		}
	}
}

func TestMixFramesFullGain(t *testing.T) {
	a := []int16{1000, -1000}
	b := []int16{500, -500}
	result := MixFrames(a, b, 1, 1)
	for i, want := range []int16{1500, -1500} {
		if result[i] != want {
			t.Errorf("MixFrames sample[%d] = %d, want %d", i, result[i], want)
		}
	}
}

func TestMixFramesClips(t *testing.T) {
	a := []int16{30000, -30000}
	b := []int16{30000, -30000}
	result := MixFrames(a, b, 1, 1)
	if result[0] != 32767 {
		t.Errorf("positive overflow = %d, want 32767", result[0])
	}
	if result[1] != -32768 {
		t.Errorf("negative overflow = %d, want -32768", result[1])
	}
}

func TestGainFrame(t *testing.T) {
	frame := []int16{1000, -2000}
	result := GainFrame(frame, 0.5)
	if result[0] != 500 || result[1] != -1000 {
		t.Errorf("GainFrame = %v, want [500 -1000]", result)
	}
}

// --- EchoState ---

func TestEchoTailDecays(t *testing.T) {
	e := NewEchoState(4, 0.5)

	// One loud frame, then silence. The tail must ring and decay.
	loud := []int16{10000, 10000, 10000, 10000}
	e.Process(loud, 1.0)

	silence := make([]int16, 4)
	first := e.Process(silence, 0)
	second := e.Process(silence, 0)

	if first[0] == 0 {
		t.Fatal("echo tail silent immediately after input")
	}
	if abs16(second[0]) >= abs16(first[0]) {
		t.Errorf("echo tail not decaying: %d then %d", first[0], second[0])
	}
}

func TestEchoDryGainZeroPassesTailOnly(t *testing.T) {
	e := NewEchoState(2, 0.5)
	in := []int16{8000, 8000}
	out := e.Process(in, 0)
	// Empty delay line plus zero dry gain means full silence.
	if out[0] != 0 || out[1] != 0 {
		t.Errorf("dry gain 0 on empty line = %v, want silence", out)
	}
}

func abs16(v int16) int16 {
	if v < 0 {
		return -v
	}
	return v
}

// --- ResampleFrame ---

func TestResampleFrameNativeRate(t *testing.T) {
	src := make([]int16, FrameSamples*2)
	for i := range src {
		src[i] = int16(i % 1000)
	}
	frame, next := ResampleFrame(src, 0, 1.0)
	if len(frame) != FrameSamples {
		t.Fatalf("frame length = %d, want %d", len(frame), FrameSamples)
	}
	if next != float64(FrameSize) {
		t.Errorf("cursor advanced to %v, want %d", next, FrameSize)
	}
	for i := 0; i < FrameSamples; i++ {
		if frame[i] != src[i] {
			t.Fatalf("rate 1.0 sample[%d] = %d, want %d (identity copy)", i, frame[i], src[i])
		}
	}
}

func TestResampleFrameCursorAdvanceScalesWithRate(t *testing.T) {
	src := make([]int16, FrameSamples*4)
	_, next := ResampleFrame(src, 100, 1.05)
	want := 100 + float64(FrameSize)*1.05
	if diff := next - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("cursor = %v, want %v", next, want)
	}
}

func TestResampleFrameInterpolates(t *testing.T) {
	// Two stereo frames: 0 then 1000 per channel. Halfway gives 500.
	src := []int16{0, 0, 1000, 1000}
	frame, _ := ResampleFrame(src, 0.5, 1.0)
	if frame[0] != 500 || frame[1] != 500 {
		t.Errorf("halfway interpolation = [%d %d], want [500 500]", frame[0], frame[1])
	}
}

func TestResampleFramePastEndIsSilence(t *testing.T) {
	src := make([]int16, 10*Channels)
	frame, _ := ResampleFrame(src, 1e9, 1.0)
	for i, s := range frame {
		if s != 0 {
			t.Fatalf("past-end sample[%d] = %d, want 0", i, s)
		}
	}
}
