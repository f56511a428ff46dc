// Package session owns the session lifecycle: start/stop control, the
// append-only master recording, the ordered action/feedback log, and the
// sealed manifest written when a session ends.
package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/dropdeck/dropdeck/internal/audio"
)

// ErrRecorderClosed is returned by Write after Close or before Open.
var ErrRecorderClosed = errors.New("recorder not open")

// maxDataBytes is the largest payload a RIFF header can describe. At 48kHz
// stereo s16 that is roughly 6.2 hours; past it frames are dropped rather
// than wrapping the 32-bit size fields.
const maxDataBytes = int64(^uint32(0)) - 36

// Recorder appends rendered master frames to a single WAV file, in emission
// order, never reordering or rewriting what was already written. It is the
// literal record of what was played.
type Recorder struct {
	mu        sync.Mutex
	f         *os.File
	path      string
	lastFile  string
	dataBytes int64
	capLogged bool
}

// NewRecorder creates a recorder writing under dir.
func NewRecorder(dir string) *Recorder {
	return &Recorder{path: dir}
}

// Open starts a new session file named after the session ID. Fails if a
// file is already open.
func (r *Recorder) Open(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f != nil {
		return errors.New("recorder already open")
	}
	if err := os.MkdirAll(r.path, 0o755); err != nil {
		return fmt.Errorf("create recording dir: %w", err)
	}

	f, err := os.Create(filepath.Join(r.path, sessionID+".wav"))
	if err != nil {
		return fmt.Errorf("open session recording: %w", err)
	}

	// Placeholder header; sizes are patched on Close.
	if _, err := f.Write(wavHeader(0)); err != nil {
		f.Close()
		return fmt.Errorf("write wav header: %w", err)
	}

	r.f = f
	r.lastFile = f.Name()
	r.dataBytes = 0
	r.capLogged = false
	return nil
}

// File returns the path of the currently open (or last written) file.
func (r *Recorder) File() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastFile
}

// Write appends one master frame. Satisfies engine.RecorderSink.
func (r *Recorder) Write(frame []int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return ErrRecorderClosed
	}
	buf := audio.SamplesToBytes(frame)
	if r.dataBytes+int64(len(buf)) > maxDataBytes {
		if !r.capLogged {
			r.capLogged = true
			log.Printf("Recording %s reached the WAV size limit, dropping further frames", r.lastFile)
		}
		return nil
	}
	n, err := r.f.Write(buf)
	r.dataBytes += int64(n)
	if err != nil {
		return fmt.Errorf("recorder write: %w", err)
	}
	return nil
}

// Close patches the RIFF sizes and seals the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return ErrRecorderClosed
	}

	header := wavHeader(r.dataBytes)
	if _, err := r.f.WriteAt(header, 0); err != nil {
		r.f.Close()
		r.f = nil
		return fmt.Errorf("patch wav header: %w", err)
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// wavHeader builds a canonical 44-byte PCM WAV header for the engine format.
// Sizes clamp at the format's 32-bit limit instead of wrapping.
func wavHeader(dataBytes int64) []byte {
	if dataBytes > maxDataBytes {
		dataBytes = maxDataBytes
	}
	h := make([]byte, 44)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataBytes))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(h[22:24], audio.Channels)
	binary.LittleEndian.PutUint32(h[24:28], audio.SampleRate)
	binary.LittleEndian.PutUint32(h[28:32], audio.SampleRate*audio.Channels*audio.BitDepth/8)
	binary.LittleEndian.PutUint16(h[32:34], audio.Channels*audio.BitDepth/8)
	binary.LittleEndian.PutUint16(h[34:36], audio.BitDepth)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataBytes))
	return h
}
