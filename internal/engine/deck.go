package engine

import (
	"time"

	"github.com/dropdeck/dropdeck/internal/audio"
	"github.com/dropdeck/dropdeck/internal/library"
)

// DeckStatus is the lifecycle state of a virtual deck.
type DeckStatus string

const (
	DeckIdle   DeckStatus = "idle"   // no track loaded
	DeckArmed  DeckStatus = "armed"  // track loaded, not yet audible
	DeckActive DeckStatus = "active" // playing on the master bus
	DeckFading DeckStatus = "fading" // participating in a transition
)

// Deck is one virtual playback unit: a non-owning track reference plus its
// own cursor. Only the engine mutates deck state.
type Deck struct {
	ID     string
	track  *library.Track
	status DeckStatus

	samples    []int16 // decoded PCM, engine format
	cursor     float64 // fractional per-channel sample position
	rate       float64 // playback rate from BPM sync, 1.0 = native
	unreadable bool    // mid-playback read failure, renders silence
}

func newDeck(id string) *Deck {
	return &Deck{ID: id, status: DeckIdle, rate: 1.0}
}

// Track returns the loaded track, nil when idle.
func (d *Deck) Track() *library.Track { return d.track }

// Status returns the deck's lifecycle state.
func (d *Deck) Status() DeckStatus { return d.status }

// Position returns the cursor as track time, already bounded by duration.
func (d *Deck) Position() time.Duration {
	return time.Duration(d.cursor / float64(audio.SampleRate) * float64(time.Second))
}

// renderFrame produces the deck's next frame and advances the cursor by one
// frame at the deck's sync rate. An unreadable source or an exhausted track
// contributes silence; the cursor never moves backwards and never exceeds
// the loaded material.
func (d *Deck) renderFrame() []int16 {
	if d.samples == nil || d.unreadable {
		d.advanceSilent()
		return audio.SilenceFrame()
	}

	frame, next := audio.ResampleFrame(d.samples, d.cursor, d.rate)
	d.cursor = d.clampCursor(next)
	return frame
}

// advanceSilent moves the cursor forward without reading samples, so track
// progress stays truthful while a deck is degraded to silence.
func (d *Deck) advanceSilent() {
	if d.track == nil {
		return
	}
	d.cursor = d.clampCursor(d.cursor + float64(audio.FrameSize)*d.rate)
}

func (d *Deck) clampCursor(c float64) float64 {
	limit := float64(len(d.samples) / audio.Channels)
	if d.samples == nil && d.track != nil {
		limit = d.track.Duration * audio.SampleRate
	}
	if c > limit {
		return limit
	}
	if c < d.cursor {
		return d.cursor
	}
	return c
}

// unload returns the deck to idle, releasing the sample buffer.
func (d *Deck) unload() {
	d.track = nil
	d.samples = nil
	d.cursor = 0
	d.rate = 1.0
	d.unreadable = false
	d.status = DeckIdle
}
