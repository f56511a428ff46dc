package engine

import (
	"time"

	"github.com/dropdeck/dropdeck/internal/audio"
)

// ActionType enumerates the transition moves the transport can execute.
type ActionType string

const (
	SingleDrop        ActionType = "single_drop"
	DoubleDrop        ActionType = "double_drop"
	EarlyCut          ActionType = "early_cut"
	FakeDrop          ActionType = "fake_drop"
	HardCut           ActionType = "hard_cut"
	EchoOut           ActionType = "echo_out"
	SilenceTransition ActionType = "silence_transition"
)

// ActionTypes lists every type in the fixed preference order used for
// deterministic tie-breaking: richest transition first, safest last.
var ActionTypes = []ActionType{
	DoubleDrop,
	SingleDrop,
	EchoOut,
	EarlyCut,
	FakeDrop,
	HardCut,
	SilenceTransition,
}

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	for _, known := range ActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Features is the deterministic decision context snapshot an action was
// chosen under. It is what the feature key is derived from and what feedback
// is attributed to.
type Features struct {
	BPMRatio    float64 `json:"bpm_ratio" yaml:"bpm_ratio"`
	KeyRelation string  `json:"key_relation" yaml:"key_relation"` // "match", "adjacent", "clash", "unknown"
	BassBucket  string  `json:"bass_bucket" yaml:"bass_bucket"`   // "tight", "loose", "clash"
}

// Action is an immutable committed mixing decision. Created once per
// transition window by the decision engine, consumed by the transport for
// execution, then archived on the session log for feedback.
type Action struct {
	ID         string        `json:"id" yaml:"id"`
	Type       ActionType    `json:"type" yaml:"type"`
	FromDeck   string        `json:"from_deck" yaml:"from_deck"`
	ToDeck     string        `json:"to_deck" yaml:"to_deck"`
	ExecuteAt  time.Duration `json:"execute_at" yaml:"execute_at"` // master-clock time
	DropAt     time.Duration `json:"drop_at" yaml:"drop_at"`       // master-clock time of the anchoring drop
	Duration   time.Duration `json:"duration" yaml:"duration"`
	FeatureKey string        `json:"feature_key" yaml:"feature_key"`
	Features   Features      `json:"features" yaml:"features"`
	Fallback   bool          `json:"fallback,omitempty" yaml:"fallback,omitempty"` // forced, not chosen
}

// envelope computes the per-frame outgoing/incoming gains for an action at
// progress p in [0,1]. Echo-out is handled separately because it is
// stateful.
func (a Action) envelope(p float64) (outGain, inGain float64) {
	switch a.Type {
	case SingleDrop, EarlyCut:
		// Plain crossfade; early_cut only differs in when it starts.
		g := audio.Smoothstep(p)
		return 1 - g, g
	case DoubleDrop:
		// Both decks ride through the drop, outgoing leaves late.
		if p < 0.75 {
			return 1, 1
		}
		g := audio.Smoothstep((p - 0.75) / 0.25)
		return 1 - g, 1
	case FakeDrop:
		// Duck the outgoing as if the drop hit, then swap for real.
		if p < 0.5 {
			return 1 - 0.6*audio.Smoothstep(p*2), 0
		}
		return 0, 1
	case HardCut:
		return 0, 1
	case SilenceTransition:
		// Fade out, hold a gap, fade the incoming in.
		switch {
		case p < 0.25:
			return 1 - audio.Smoothstep(p*4), 0
		case p < 0.75:
			return 0, 0
		default:
			return 0, audio.Smoothstep((p - 0.75) * 4)
		}
	default:
		return 1 - audio.Smoothstep(p), audio.Smoothstep(p)
	}
}
