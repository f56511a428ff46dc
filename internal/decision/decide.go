package decision

import (
	"time"

	"github.com/google/uuid"

	"github.com/dropdeck/dropdeck/internal/audio"
	"github.com/dropdeck/dropdeck/internal/engine"
	"github.com/dropdeck/dropdeck/internal/score"
	"github.com/dropdeck/dropdeck/internal/window"
)

// preferenceRank encodes the fixed tie-break order: richest transition
// first. Lower rank wins ties.
var preferenceRank = map[engine.ActionType]int{}

func init() {
	for i, t := range engine.ActionTypes {
		preferenceRank[t] = i
	}
}

// Candidate is one ranked option for a window, kept around for the
// monitoring surface so every decision stays explainable.
type Candidate struct {
	Type  engine.ActionType `json:"type"`
	Key   string            `json:"feature_key"`
	Score float64           `json:"score"`
}

// Outcome is the result of deliberating one window.
type Outcome struct {
	State  State         `json:"state"`
	Action engine.Action `json:"action"`
	Ranked []Candidate   `json:"ranked"`
	Reason string        `json:"reason"`
}

// Engine evaluates windows against the score store. Stateless across
// windows.
type Engine struct {
	scores    *score.Store
	threshold float64 // minimum confidence; below it the safe fallback wins
}

// NewEngine creates a decision engine reading from the given score store.
func NewEngine(scores *score.Store, threshold float64) *Engine {
	return &Engine{scores: scores, threshold: threshold}
}

// Rank scores every candidate action for the window, descending, ties
// broken by the fixed preference order.
func (e *Engine) Rank(w *window.Window) []Candidate {
	out := make([]Candidate, 0, len(w.Candidates))
	for _, t := range w.Candidates {
		key := score.FeatureKey(t, w.Features)
		out = append(out, Candidate{Type: t, Key: key, Score: e.scores.Lookup(key)})
	}
	// Insertion sort keeps this allocation-free for the short lists here.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && less(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func less(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return preferenceRank[a.Type] < preferenceRank[b.Type]
}

// Decide deliberates one open window at the given master-clock time and
// produces its single committed action. Past the deadline the outcome is
// Expired carrying the forced fallback; below the confidence threshold the
// top pick is discarded for the safe hard cut. Rules first, learning second.
func (e *Engine) Decide(w *window.Window, now time.Duration) Outcome {
	if now >= w.DeadlineAt {
		return Outcome{
			State:  StateExpired,
			Action: e.buildAction(engine.HardCut, w, true),
			Reason: "deadline passed before commitment",
		}
	}

	ranked := e.Rank(w)
	if len(ranked) == 0 {
		// Detector guarantees a non-empty candidate set; guard anyway.
		return Outcome{
			State:  StateCommitted,
			Action: e.buildAction(engine.HardCut, w, true),
			Reason: "empty candidate set, forced fallback",
		}
	}

	top := ranked[0]
	if top.Score < e.threshold {
		return Outcome{
			State:  StateCommitted,
			Action: e.buildAction(engine.HardCut, w, false),
			Ranked: ranked,
			Reason: "top score below confidence threshold, safe fallback",
		}
	}

	return Outcome{
		State:  StateCommitted,
		Action: e.buildAction(top.Type, w, false),
		Ranked: ranked,
		Reason: "highest-ranked candidate",
	}
}

// buildAction assembles the immutable action record with type-specific
// timing anchored on the window's drop.
func (e *Engine) buildAction(t engine.ActionType, w *window.Window, fallback bool) engine.Action {
	executeAt, duration := actionTiming(t, w.DropAt, w.LeadBPM)
	if executeAt < 0 {
		executeAt = 0
	}
	return engine.Action{
		ID:         uuid.NewString(),
		Type:       t,
		FromDeck:   w.FromDeck,
		ToDeck:     w.ToDeck,
		ExecuteAt:  executeAt,
		DropAt:     w.DropAt,
		Duration:   duration,
		FeatureKey: score.FeatureKey(t, w.Features),
		Features:   w.Features,
		Fallback:   fallback,
	}
}

// actionTiming places each action type relative to the drop, measured in
// bars at the lead tempo.
func actionTiming(t engine.ActionType, dropAt time.Duration, bpm float64) (executeAt, duration time.Duration) {
	if bpm <= 0 {
		bpm = 140
	}
	bar := time.Duration(4 * 60 / bpm * float64(time.Second))

	switch t {
	case engine.SingleDrop:
		// Crossfade completing exactly on the drop.
		return dropAt - 8*bar, 8 * bar
	case engine.DoubleDrop:
		// Both decks ride through the drop together.
		return dropAt - 4*bar, 8 * bar
	case engine.EarlyCut:
		// Swap well before the drop ever lands.
		return dropAt - 16*bar, 8 * bar
	case engine.FakeDrop:
		return dropAt - 2*bar, 4 * bar
	case engine.EchoOut:
		return dropAt - 4*bar, 8 * bar
	case engine.SilenceTransition:
		// Incoming fade-in starts right on the drop.
		gap := 4 * bar
		return dropAt - gap*3/4, gap
	default: // HardCut
		return dropAt, audio.FrameDuration
	}
}
