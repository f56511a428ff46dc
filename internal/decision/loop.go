package decision

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dropdeck/dropdeck/internal/engine"
	"github.com/dropdeck/dropdeck/internal/library"
	"github.com/dropdeck/dropdeck/internal/window"
)

// TrackResolver maps a deck snapshot back to its track metadata.
type TrackResolver func(trackID string) (*library.Track, bool)

// Loop watches the transport for approaching drops, runs the decision
// engine inside each window, and commits the chosen action to the
// transport. Deliberation is deadline-bounded and best-effort: a stalled
// evaluation just lets the window expire into the safe fallback.
type Loop struct {
	transport *engine.Engine
	detector  *window.Detector
	decider   *Engine
	resolve   TrackResolver

	pollInterval time.Duration

	mu          sync.Mutex
	handled     map[string]bool // windows already consumed, keyed by pair+drop
	lastOutcome *Outcome
	onCommit    func(Outcome)
}

// NewLoop wires the deliberation loop.
func NewLoop(transport *engine.Engine, detector *window.Detector, decider *Engine, resolve TrackResolver) *Loop {
	return &Loop{
		transport:    transport,
		detector:     detector,
		decider:      decider,
		resolve:      resolve,
		pollInterval: 200 * time.Millisecond,
		handled:      make(map[string]bool),
	}
}

// SetOnCommit registers a callback fired for every outcome (committed or
// expired) so the session can log it.
func (l *Loop) SetOnCommit(fn func(Outcome)) {
	l.mu.Lock()
	l.onCommit = fn
	l.mu.Unlock()
}

// LastOutcome returns the most recent deliberation result for display.
func (l *Loop) LastOutcome() *Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastOutcome == nil {
		return nil
	}
	o := *l.lastOutcome
	return &o
}

// Run polls until ctx is cancelled. Blocks.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step performs one deliberation pass against the current transport state.
// Exposed for deterministic tests with a virtual clock.
func (l *Loop) Step() {
	if l.transport.InTransition() {
		return
	}

	snap := l.transport.Snapshot()
	leadTrack, inTrack := l.pair(snap)
	if leadTrack == nil || inTrack == nil {
		return
	}

	w, err := l.detector.Next(snap, leadTrack, inTrack)
	if err != nil {
		// Incompatible pairs and drop-less leads are expected states, not
		// faults; the transport keeps playing.
		return
	}
	if snap.MasterTime < w.OpenAt {
		return
	}

	key := windowKey(w)
	l.mu.Lock()
	seen := l.handled[key]
	l.mu.Unlock()
	if seen {
		return
	}

	outcome := l.decider.Decide(w, snap.MasterTime)
	if err := l.transport.ExecuteAction(outcome.Action); err != nil {
		log.Printf("Action rejected by transport: %v", err)
		return
	}

	if outcome.State == StateExpired {
		log.Printf("Window expired (drop at %v), forced %s", w.DropAt, outcome.Action.Type)
	} else {
		log.Printf("Committed %s for drop at %v (%s)", outcome.Action.Type, w.DropAt, outcome.Reason)
	}

	l.mu.Lock()
	l.handled[key] = true
	l.lastOutcome = &outcome
	onCommit := l.onCommit
	l.mu.Unlock()

	if onCommit != nil {
		onCommit(outcome)
	}
}

// Reset clears consumed-window tracking, e.g. on session restart.
func (l *Loop) Reset() {
	l.mu.Lock()
	l.handled = make(map[string]bool)
	l.lastOutcome = nil
	l.mu.Unlock()
}

// pair resolves the lead track and the next armed/active track from the
// snapshot.
func (l *Loop) pair(snap engine.Snapshot) (lead, incoming *library.Track) {
	for _, d := range snap.Decks {
		if d.TrackID == "" {
			continue
		}
		t, ok := l.resolve(d.TrackID)
		if !ok {
			continue
		}
		if d.ID == snap.Lead {
			lead = t
		} else if d.Status == engine.DeckArmed || d.Status == engine.DeckActive {
			if incoming == nil {
				incoming = t
			}
		}
	}
	return lead, incoming
}

func windowKey(w *window.Window) string {
	return w.FromDeck + ">" + w.ToDeck + "@" + w.DropAt.String()
}
