package library

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// DefaultBPM is assumed when the filename carries no usable tempo hint.
const DefaultBPM = 140.0

const fallbackDuration = 180.0

var (
	bpmRe     = regexp.MustCompile(`(?i)(\d{2,3}(?:\.\d+)?)\s?bpm`)
	camelotRe = regexp.MustCompile(`(?i)(?:^|[^A-Za-z0-9])(\d{1,2}[AB])(?:[^A-Za-z0-9]|$)`)
	keyRe     = regexp.MustCompile(`(?:^|[^A-Za-z0-9])([A-G](?:#|b)?m?)(?:[^A-Za-z0-9]|$)`)
)

// ParseFilename extracts a BPM and key hint from a track filename, e.g.
// "dark_rider_140bpm_8A.wav" -> (140, "8A"). BPM outside 60-220 is ignored.
// Returns DefaultBPM and "Unknown" when nothing matches.
func ParseFilename(name string) (bpm float64, key string) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	bpm = DefaultBPM
	if m := bpmRe.FindStringSubmatch(stem); m != nil {
		if candidate, err := strconv.ParseFloat(m[1], 64); err == nil && candidate >= 60 && candidate <= 220 {
			bpm = candidate
		}
	}

	if m := camelotRe.FindStringSubmatch(stem); m != nil {
		return bpm, strings.ToUpper(m[1])
	}
	if m := keyRe.FindStringSubmatch(stem); m != nil {
		return bpm, m[1]
	}
	return bpm, "Unknown"
}

// probeDuration reads just enough of the file to estimate its duration in
// seconds without decoding the audio. Unknown formats get a fixed estimate;
// offline analysis is the real source of truth.
func probeDuration(path string) float64 {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		if d := mp3Duration(path); d > 0 {
			return d
		}
	case ".wav":
		if d := wavDuration(path); d > 0 {
			return d
		}
	}
	return fallbackDuration
}

func mp3Duration(path string) float64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return 0
	}
	// Length is decoded bytes: 16-bit stereo at the source rate.
	return float64(dec.Length()) / float64(4*dec.SampleRate())
}

func wavDuration(path string) float64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	header := make([]byte, 44)
	if _, err := f.Read(header); err != nil {
		return 0
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0
	}
	byteRate := binary.LittleEndian.Uint32(header[28:32])
	if byteRate == 0 {
		return 0
	}
	info, err := f.Stat()
	if err != nil {
		return 0
	}
	return float64(info.Size()-44) / float64(byteRate)
}
