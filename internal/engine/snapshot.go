package engine

import (
	"time"
)

// dropWindowLead is how far ahead of a drop a deck's drop indicator lights.
const dropWindowLead = 4 * time.Second

// DeckSnapshot is the read-only view of one deck for state reporting.
type DeckSnapshot struct {
	ID         string     `json:"deck_id"`
	Status     DeckStatus `json:"status"`
	TrackID    string     `json:"track_id,omitempty"`
	Title      string     `json:"title,omitempty"`
	BPM        float64    `json:"bpm,omitempty"`
	Key        string     `json:"key,omitempty"`
	ProgressS  float64    `json:"progress_s"`
	DurationS  float64    `json:"duration_s"`
	Rate       float64    `json:"rate"`
	DropWindow bool       `json:"is_drop_window"`
}

// Snapshot is the engine's full read-only state. Identical between ticks.
type Snapshot struct {
	MasterTime    time.Duration  `json:"-"`
	MasterTimeS   float64        `json:"master_time_s"`
	Lead          string         `json:"lead_deck"`
	Decks         []DeckSnapshot `json:"decks"`
	PendingAction *Action        `json:"pending_action,omitempty"`
	ActiveAction  *Action        `json:"active_action,omitempty"`
}

// Snapshot captures the current transport state. Repeated calls without
// intervening ticks or actions return identical values.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.masterTimeLocked()
	snap := Snapshot{
		MasterTime:  now,
		MasterTimeS: now.Seconds(),
		Lead:        e.lead,
	}
	if e.pending != nil {
		a := *e.pending
		snap.PendingAction = &a
	}
	if e.active != nil {
		a := e.active.action
		snap.ActiveAction = &a
	}

	for _, id := range e.order {
		d := e.decks[id]
		ds := DeckSnapshot{ID: id, Status: d.status, Rate: d.rate}
		if d.track != nil {
			pos := d.Position().Seconds()
			ds.TrackID = d.track.ID
			ds.Title = d.track.Title
			ds.BPM = d.track.BPM
			ds.Key = d.track.Key
			ds.ProgressS = pos
			ds.DurationS = d.track.Duration
			if next := d.track.NextDropAfter(pos); next >= 0 {
				ds.DropWindow = next-pos <= dropWindowLead.Seconds()
			}
		}
		snap.Decks = append(snap.Decks, ds)
	}
	return snap
}

// DeckPosition returns a deck's current track time, for the window detector.
func (e *Engine) DeckPosition(deckID string) (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.decks[deckID]
	if !ok || d.track == nil {
		return 0, false
	}
	return d.Position(), true
}
