package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned when a file can be opened but not parsed
// as audio.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// DecodeFile decodes an audio file to interleaved stereo int16 samples at
// 48kHz. MP3 and RIFF/WAV are decoded natively; anything else falls through
// to FFmpeg.
func DecodeFile(path string) ([]int16, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return decodeMP3(path)
	case ".wav":
		return decodeWAV(path)
	default:
		return decodeFFmpeg(path)
	}
}

// decodeMP3 decodes an MP3 file via go-mp3 (always 16-bit stereo output at
// the source sample rate), then resamples to 48kHz.
func decodeMP3(path string) ([]int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode %s: %w", path, err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("mp3 read %s: %w", path, err)
	}

	samples := bytesToSamples(raw)
	return resampleTo48k(samples, dec.SampleRate(), 2), nil
}

// decodeWAV reads a 16-bit PCM RIFF/WAVE file.
func decodeWAV(path string) ([]int16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	var (
		channels   int
		sampleRate int
		bits       int
		pcm        []byte
	)

	// Walk RIFF chunks for fmt and data.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size >= 16 {
				channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
				sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
				bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			}
		case "data":
			pcm = data[body : body+size]
		}
		off = body + size
		if size%2 == 1 {
			off++ // chunks are word aligned
		}
	}

	if pcm == nil || channels == 0 || sampleRate == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if bits != 16 {
		return decodeFFmpeg(path)
	}

	return resampleTo48k(bytesToSamples(pcm), sampleRate, channels), nil
}

// decodeFFmpeg runs FFmpeg to decode any other format to raw PCM int16,
// interleaved stereo at 48kHz.
func decodeFFmpeg(path string) ([]int16, error) {
	cmd := exec.Command("ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	return bytesToSamples(out), nil
}

// bytesToSamples converts little-endian PCM bytes to int16 samples.
func bytesToSamples(raw []byte) []int16 {
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
	}
	return samples
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// resampleTo48k converts interleaved samples from srcRate/srcChannels to the
// engine format (48kHz stereo) with linear interpolation. Mono input is
// duplicated to both channels.
func resampleTo48k(samples []int16, srcRate, srcChannels int) []int16 {
	if srcChannels < 1 {
		return nil
	}

	// Normalize channel count first.
	var stereo []int16
	switch srcChannels {
	case Channels:
		stereo = samples
	case 1:
		stereo = make([]int16, len(samples)*2)
		for i, s := range samples {
			stereo[i*2] = s
			stereo[i*2+1] = s
		}
	default:
		// Fold extra channels down to the first two.
		frames := len(samples) / srcChannels
		stereo = make([]int16, frames*2)
		for i := 0; i < frames; i++ {
			stereo[i*2] = samples[i*srcChannels]
			stereo[i*2+1] = samples[i*srcChannels+1]
		}
	}

	if srcRate == SampleRate || srcRate <= 0 {
		return stereo
	}

	srcFrames := len(stereo) / Channels
	dstFrames := int(float64(srcFrames) * float64(SampleRate) / float64(srcRate))
	ratio := float64(srcRate) / float64(SampleRate)
	out := make([]int16, dstFrames*Channels)
	for i := 0; i < dstFrames; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= srcFrames-1 {
			idx = srcFrames - 2
			if idx < 0 {
				break
			}
			pos = float64(idx)
		}
		frac := pos - float64(idx)
		for c := 0; c < Channels; c++ {
			a := float64(stereo[idx*Channels+c])
			b := float64(stereo[(idx+1)*Channels+c])
			out[i*Channels+c] = clip(a + (b-a)*frac)
		}
	}
	return out
}
