package session

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dropdeck/dropdeck/internal/audio"
)

func TestRecorderWriteBeforeOpen(t *testing.T) {
	r := NewRecorder(t.TempDir())
	if err := r.Write(audio.SilenceFrame()); err != ErrRecorderClosed {
		t.Errorf("Write before Open = %v, want ErrRecorderClosed", err)
	}
	if err := r.Close(); err != ErrRecorderClosed {
		t.Errorf("Close before Open = %v, want ErrRecorderClosed", err)
	}
}

func TestRecorderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir)
	if err := r.Open("session-1"); err != nil {
		t.Fatal(err)
	}

	// Three distinct frames, in order.
	var want []int16
	for n := 0; n < 3; n++ {
		frame := make([]int16, audio.FrameSamples)
		for i := range frame {
			frame[i] = int16(n*1000 + i%7)
		}
		if err := r.Write(frame); err != nil {
			t.Fatal(err)
		}
		want = append(want, frame...)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "session-1.wav")
	if r.File() != path {
		t.Errorf("File() = %q, want %q", r.File(), path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	wantBytes := 3 * audio.FrameBytes
	if len(data) != 44+wantBytes {
		t.Fatalf("file size = %d, want %d", len(data), 44+wantBytes)
	}

	// Header sizes must be patched, not left at the placeholder.
	if got := binary.LittleEndian.Uint32(data[40:44]); got != uint32(wantBytes) {
		t.Errorf("data chunk size = %d, want %d", got, wantBytes)
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); got != uint32(36+wantBytes) {
		t.Errorf("RIFF size = %d, want %d", got, 36+wantBytes)
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != audio.SampleRate {
		t.Errorf("sample rate = %d, want %d", got, audio.SampleRate)
	}

	// Payload must be the exact frames in emission order.
	got := make([]int16, wantBytes/2)
	for i := range got {
		got[i] = int16(binary.LittleEndian.Uint16(data[44+i*2 : 46+i*2]))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("recorded samples mismatch (-want +got):\n%s", diff)
	}
}

func TestRecorderDoubleOpen(t *testing.T) {
	r := NewRecorder(t.TempDir())
	if err := r.Open("one"); err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if err := r.Open("two"); err == nil {
		t.Error("second Open without Close must fail")
	}
}

func TestRecorderStopsAtWAVSizeLimit(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir)
	if err := r.Open("long"); err != nil {
		t.Fatal(err)
	}

	// Pretend hours of audio were already appended, leaving less than one
	// frame of headroom under the 32-bit size fields.
	r.mu.Lock()
	r.dataBytes = maxDataBytes - int64(audio.FrameBytes) + 1
	r.mu.Unlock()

	if err := r.Write(audio.SilenceFrame()); err != nil {
		t.Fatalf("Write at the size limit = %v, want frames dropped without error", err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "long.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 44 {
		t.Errorf("file size = %d, want the bare header with the capped frame dropped", len(data))
	}
}

func TestWAVHeaderClampsOversizedData(t *testing.T) {
	h := wavHeader(maxDataBytes + 1<<20)
	if got := binary.LittleEndian.Uint32(h[40:44]); got != uint32(maxDataBytes) {
		t.Errorf("data chunk size = %d, want clamped to %d", got, maxDataBytes)
	}
	if got := binary.LittleEndian.Uint32(h[4:8]); got != ^uint32(0) {
		t.Errorf("RIFF size = %d, want clamped to the 32-bit maximum", got)
	}
}

func TestRecorderFileSurvivesClose(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir)
	if err := r.Open("kept"); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if r.File() != filepath.Join(dir, "kept.wav") {
		t.Errorf("File() after Close = %q, the manifest needs the path", r.File())
	}
}
