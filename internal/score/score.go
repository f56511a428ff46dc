// Package score is the tabular preference store behind the decision engine:
// a mapping from decision feature keys to running scalar scores, updated
// only by explicit GOOD/BAD feedback. Intentionally not a gradient model;
// every number in it is inspectable.
package score

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/dropdeck/dropdeck/internal/engine"
)

// ErrFeedbackMismatch means feedback referenced no recent decision.
var ErrFeedbackMismatch = errors.New("no matching decision for feedback")

// Verdict is an explicit human judgement on an executed action.
type Verdict string

const (
	Good Verdict = "GOOD"
	Bad  Verdict = "BAD"
)

// ParseVerdict validates a wire verdict string.
func ParseVerdict(s string) (Verdict, error) {
	switch Verdict(s) {
	case Good, Bad:
		return Verdict(s), nil
	default:
		return "", fmt.Errorf("invalid verdict %q (want GOOD or BAD)", s)
	}
}

// FeatureKey derives the canonical score-table key for an action type under
// a feature snapshot. Purely deterministic: same context, same key.
func FeatureKey(t engine.ActionType, f engine.Features) string {
	bass := f.BassBucket
	if bass == "" {
		bass = "loose"
	}
	key := f.KeyRelation
	if key == "" {
		key = "unknown"
	}
	return fmt.Sprintf("%s|%s|%s", t, bass, key)
}

// Entry is one row of the score table.
type Entry struct {
	Key          string    `json:"feature_key"`
	Score        float64   `json:"score"`
	Observations int       `json:"observations"`
	Positive     int       `json:"n_positive"`
	Negative     int       `json:"n_negative"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Config tunes the update rule. Score update on feedback:
// score = score*Decay + Increment (GOOD) or - Increment (BAD).
type Config struct {
	Increment float64 // feedback magnitude, e.g. 1.0
	Decay     float64 // old-score retention, e.g. 0.98
	Neutral   float64 // returned for unseen keys
}

// Store holds the score table in memory for lock-cheap lookups on the
// decision path, with an optional persistence hook fired after each update.
// Single writer (feedback intake), occasional readers (ranking).
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	cfg     Config
	persist func(Entry) error // nil when running without durable storage
}

// NewStore creates a store seeded with previously persisted entries.
func NewStore(cfg Config, seed map[string]Entry) *Store {
	if cfg.Decay <= 0 || cfg.Decay > 1 {
		cfg.Decay = 1
	}
	if cfg.Increment <= 0 {
		cfg.Increment = 1
	}
	s := &Store{entries: make(map[string]*Entry), cfg: cfg}
	for k, e := range seed {
		entry := e
		s.entries[k] = &entry
	}
	return s
}

// SetPersist installs the durable-write hook called after each feedback
// application.
func (s *Store) SetPersist(fn func(Entry) error) {
	s.mu.Lock()
	s.persist = fn
	s.mu.Unlock()
}

// Lookup returns the score for a feature key. Never fails: unseen keys
// return the configured neutral default.
func (s *Store) Lookup(key string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[key]; ok {
		return e.Score
	}
	return s.cfg.Neutral
}

// ApplyFeedback folds one verdict into the score for the action's feature
// key and bumps the observation counters. Actions without a feature key
// (nothing was ever committed) are rejected.
func (s *Store) ApplyFeedback(action engine.Action, verdict Verdict) (Entry, error) {
	if action.FeatureKey == "" {
		return Entry{}, ErrFeedbackMismatch
	}

	delta := s.cfg.Increment
	if verdict == Bad {
		delta = -delta
	}

	s.mu.Lock()
	e, ok := s.entries[action.FeatureKey]
	if !ok {
		e = &Entry{Key: action.FeatureKey, Score: s.cfg.Neutral}
		s.entries[action.FeatureKey] = e
	}
	e.Score = e.Score*s.cfg.Decay + delta
	e.Observations++
	if delta > 0 {
		e.Positive++
	} else {
		e.Negative++
	}
	e.UpdatedAt = time.Now().UTC()
	updated := *e
	persist := s.persist
	s.mu.Unlock()

	if persist != nil {
		if err := persist(updated); err != nil {
			// Memory stays authoritative for the session; durable storage
			// catches up on the next write.
			log.Printf("Score persist error for %s: %v", updated.Key, err)
		}
	}

	log.Printf("Feedback %s applied to %s: score %.3f (%d obs)", verdict, updated.Key, updated.Score, updated.Observations)
	return updated, nil
}

// Top returns up to limit entries ranked by score descending.
func (s *Store) Top(limit int) []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
