package decision

import (
	"testing"
	"time"

	"github.com/dropdeck/dropdeck/internal/engine"
	"github.com/dropdeck/dropdeck/internal/score"
	"github.com/dropdeck/dropdeck/internal/window"
)

func testWindow(candidates ...engine.ActionType) *window.Window {
	return &window.Window{
		OpenAt:     100 * time.Second,
		DeadlineAt: 106 * time.Second,
		DropAt:     108 * time.Second,
		FromDeck:   "A",
		ToDeck:     "B",
		LeadBPM:    120, // bar = 2s, keeps timing arithmetic readable
		Candidates: candidates,
		Features: engine.Features{
			BPMRatio:    1.0,
			KeyRelation: "match",
			BassBucket:  "tight",
		},
	}
}

func seedScores(t *testing.T, entries map[string]float64) *score.Store {
	t.Helper()
	seed := make(map[string]score.Entry, len(entries))
	for k, v := range entries {
		seed[k] = score.Entry{Key: k, Score: v}
	}
	return score.NewStore(score.Config{Increment: 1, Decay: 0.98}, seed)
}

func TestRankOrdersByScoreThenPreference(t *testing.T) {
	w := testWindow(engine.HardCut, engine.SingleDrop, engine.DoubleDrop, engine.EchoOut)
	scores := seedScores(t, map[string]float64{
		"single_drop|tight|match": 3,
		"echo_out|tight|match":    5,
	})
	e := NewEngine(scores, 0)

	ranked := e.Rank(w)
	wantOrder := []engine.ActionType{
		engine.EchoOut,    // 5
		engine.SingleDrop, // 3
		engine.DoubleDrop, // 0, preferred over hard_cut on the tie
		engine.HardCut,    // 0
	}
	for i, want := range wantOrder {
		if ranked[i].Type != want {
			t.Fatalf("rank[%d] = %s, want %s (full: %v)", i, ranked[i].Type, want, ranked)
		}
	}
}

func TestRankIsDeterministic(t *testing.T) {
	w := testWindow(engine.SilenceTransition, engine.HardCut, engine.FakeDrop)
	e := NewEngine(seedScores(t, nil), 0)

	first := e.Rank(w)
	for i := 0; i < 10; i++ {
		again := e.Rank(w)
		for j := range first {
			if again[j].Type != first[j].Type {
				t.Fatalf("ranking unstable on identical input: %v vs %v", first, again)
			}
		}
	}
	// All-neutral scores fall back to pure preference order.
	want := []engine.ActionType{engine.FakeDrop, engine.HardCut, engine.SilenceTransition}
	for i := range want {
		if first[i].Type != want[i] {
			t.Fatalf("neutral rank[%d] = %s, want %s", i, first[i].Type, want[i])
		}
	}
}

func TestDecideCommitsTopCandidate(t *testing.T) {
	w := testWindow(engine.SingleDrop, engine.HardCut)
	scores := seedScores(t, map[string]float64{"single_drop|tight|match": 2})
	e := NewEngine(scores, 0)

	o := e.Decide(w, 101*time.Second)
	if o.State != StateCommitted {
		t.Fatalf("state = %s, want committed", o.State)
	}
	if o.Action.Type != engine.SingleDrop {
		t.Errorf("action = %s, want single_drop", o.Action.Type)
	}
	if o.Action.Fallback {
		t.Error("chosen action must not be flagged as fallback")
	}
	if o.Action.FeatureKey != "single_drop|tight|match" {
		t.Errorf("FeatureKey = %q", o.Action.FeatureKey)
	}
	if o.Action.ID == "" {
		t.Error("action must carry an ID")
	}
}

func TestDecideExpiredPastDeadline(t *testing.T) {
	w := testWindow(engine.SingleDrop, engine.HardCut)
	e := NewEngine(seedScores(t, nil), 0)

	o := e.Decide(w, w.DeadlineAt)
	if o.State != StateExpired {
		t.Fatalf("state = %s, want expired", o.State)
	}
	if o.Action.Type != engine.HardCut || !o.Action.Fallback {
		t.Errorf("expired window must force the hard-cut fallback, got %+v", o.Action)
	}
}

func TestDecideBelowThresholdFallsBack(t *testing.T) {
	w := testWindow(engine.DoubleDrop, engine.HardCut)
	scores := seedScores(t, map[string]float64{"double_drop|tight|match": -4})
	e := NewEngine(scores, 0)

	o := e.Decide(w, 101*time.Second)
	if o.State != StateCommitted {
		t.Fatalf("state = %s, want committed", o.State)
	}
	if o.Action.Type != engine.HardCut {
		t.Errorf("below-threshold pick must yield the safe hard cut, got %s", o.Action.Type)
	}
}

func TestActionTiming(t *testing.T) {
	// 120 BPM: one bar is exactly 2 seconds.
	drop := 100 * time.Second
	tests := []struct {
		t        engine.ActionType
		execAt   time.Duration
		duration time.Duration
	}{
		{engine.SingleDrop, 84 * time.Second, 16 * time.Second}, // ends on the drop
		{engine.DoubleDrop, 92 * time.Second, 16 * time.Second}, // spans the drop
		{engine.EarlyCut, 68 * time.Second, 16 * time.Second},   // done long before
		{engine.FakeDrop, 96 * time.Second, 8 * time.Second},
		{engine.EchoOut, 92 * time.Second, 16 * time.Second},
		{engine.SilenceTransition, 94 * time.Second, 8 * time.Second},
		{engine.HardCut, 100 * time.Second, 20 * time.Millisecond},
	}
	for _, tt := range tests {
		execAt, duration := actionTiming(tt.t, drop, 120)
		if execAt != tt.execAt || duration != tt.duration {
			t.Errorf("%s timing = (%v, %v), want (%v, %v)", tt.t, execAt, duration, tt.execAt, tt.duration)
		}
	}
}

func TestBuildActionClampsExecuteAt(t *testing.T) {
	w := testWindow(engine.EarlyCut, engine.HardCut)
	w.DropAt = 10 * time.Second // 16 bars before this is negative
	w.DeadlineAt = 9 * time.Second
	e := NewEngine(seedScores(t, map[string]float64{"early_cut|tight|match": 1}), 0)

	o := e.Decide(w, 0)
	if o.Action.ExecuteAt != 0 {
		t.Errorf("ExecuteAt = %v, want clamped to 0", o.Action.ExecuteAt)
	}
}

func TestSingleDropEndsOnDrop(t *testing.T) {
	for _, bpm := range []float64{120, 140, 174} {
		execAt, duration := actionTiming(engine.SingleDrop, 200*time.Second, bpm)
		if execAt+duration != 200*time.Second {
			t.Errorf("at %.0f BPM crossfade ends at %v, want exactly on the drop", bpm, execAt+duration)
		}
	}
}
