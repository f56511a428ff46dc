// Package library is the read-only track metadata store. Tracks are built
// once at scan time from the analyzer's sidecar files (or filename
// heuristics when no sidecar exists) and are immutable afterwards; the
// engine and the decision path hold references, never copies.
package library

import (
	"sort"
)

// Track holds the pre-computed facts about one audio file.
type Track struct {
	ID              string    `json:"track_id"` // absolute file path
	Title           string    `json:"title"`
	BPM             float64   `json:"bpm"`
	Key             string    `json:"key"` // Camelot ("8A") or standard ("F#m"), "Unknown" if undetected
	DropTimes       []float64 `json:"drop_times"`
	BassProfile     []float64 `json:"bass_profile,omitempty"` // one energy sample per second, normalized 0..1
	RhythmicDensity float64   `json:"rhythmic_density,omitempty"`
	Duration        float64   `json:"duration_s"` // seconds
}

// NextDropAfter returns the first drop timestamp strictly after t, or -1 if
// the track has no further drop.
func (t *Track) NextDropAfter(sec float64) float64 {
	for _, d := range t.DropTimes {
		if d > sec {
			return d
		}
	}
	return -1
}

// BassAround averages the bass profile over a window of the given width
// (seconds) centred on sec. Missing profile data reads as 0.5.
func (t *Track) BassAround(sec, width float64) []float64 {
	half := width / 2
	lo := int(sec - half)
	hi := int(sec + half)
	if lo < 0 {
		lo = 0
	}
	out := make([]float64, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		if i >= 0 && i < len(t.BassProfile) {
			out = append(out, t.BassProfile[i])
		} else {
			out = append(out, 0.5)
		}
	}
	return out
}

// normalize sorts drop times and discards any outside [0, duration).
func (t *Track) normalize() {
	sort.Float64s(t.DropTimes)
	kept := t.DropTimes[:0]
	for _, d := range t.DropTimes {
		if d >= 0 && d < t.Duration {
			kept = append(kept, d)
		}
	}
	t.DropTimes = kept
}
