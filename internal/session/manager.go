package session

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropdeck/dropdeck/internal/decision"
	"github.com/dropdeck/dropdeck/internal/engine"
	"github.com/dropdeck/dropdeck/internal/library"
	"github.com/dropdeck/dropdeck/internal/score"
)

// ErrSessionState means start/stop was called in the wrong state. The call
// is rejected without any state change.
var ErrSessionState = errors.New("session state error")

// deckIDs is the fixed deck rotation a session cycles tracks through.
var deckIDs = []string{"A", "B"}

// ActionRecord is one archived decision on the session log.
type ActionRecord struct {
	Action      engine.Action `yaml:"action" json:"action"`
	State       string        `yaml:"state" json:"state"` // committed, executed, expired
	CommittedAt time.Time     `yaml:"committed_at" json:"committed_at"`
	ExecutedAt  *time.Time    `yaml:"executed_at,omitempty" json:"executed_at,omitempty"`
}

// FeedbackRecord is one received verdict on the session log.
type FeedbackRecord struct {
	ActionID   string        `yaml:"action_id" json:"action_id"`
	FeatureKey string        `yaml:"feature_key" json:"feature_key"`
	Verdict    score.Verdict `yaml:"verdict" json:"verdict"`
	ReceivedAt time.Time     `yaml:"received_at" json:"received_at"`
}

// Manager drives session start/stop, keeps the ordered action/feedback log,
// and rotates library tracks onto freed decks as transitions complete.
type Manager struct {
	transport *engine.Engine
	lib       *library.Store
	scores    *score.Store
	loop      *decision.Loop
	recorder  *Recorder

	mu        sync.Mutex
	active    bool
	sessionID string
	startedAt time.Time
	nextTrack int // rotation index into the library
	actions   []ActionRecord
	feedback  []FeedbackRecord
}

// NewManager wires the session manager and hooks itself into the loop and
// transport callbacks.
func NewManager(transport *engine.Engine, lib *library.Store, scores *score.Store, loop *decision.Loop, recorder *Recorder) *Manager {
	m := &Manager{
		transport: transport,
		lib:       lib,
		scores:    scores,
		loop:      loop,
		recorder:  recorder,
	}
	loop.SetOnCommit(m.recordOutcome)
	transport.SetOnActionDone(m.actionDone)
	return m
}

// Start begins a session. Fails with ErrSessionState if one is already
// active or fewer than minTracks are scanned; nothing changes on failure
// and the recorder is never opened.
func (m *Manager) Start(minTracks int) (string, error) {
	if minTracks < 2 {
		minTracks = 2
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return "", fmt.Errorf("%w: session already running", ErrSessionState)
	}
	tracks := m.lib.List()
	if len(tracks) < minTracks {
		return "", fmt.Errorf("%w: need at least %d tracks, have %d (scan the music directory first)", ErrSessionState, minTracks, len(tracks))
	}

	sessionID := uuid.NewString()

	if err := m.transport.LoadTrack("A", tracks[0]); err != nil {
		return "", fmt.Errorf("load deck A: %w", err)
	}
	if err := m.transport.LoadTrack("B", tracks[1]); err != nil {
		m.transport.ReleaseDeck("A")
		return "", fmt.Errorf("load deck B: %w", err)
	}
	if err := m.transport.StartDeck("A"); err != nil {
		m.transport.ReleaseDeck("A")
		m.transport.ReleaseDeck("B")
		return "", err
	}

	if err := m.recorder.Open(sessionID); err != nil {
		m.transport.ReleaseDeck("B")
		m.transport.ReleaseDeck("A")
		return "", err
	}
	m.transport.SetRecorder(m.recorder)
	m.loop.Reset()

	m.active = true
	m.sessionID = sessionID
	m.startedAt = time.Now().UTC()
	m.nextTrack = 2 % len(tracks)
	m.actions = nil
	m.feedback = nil

	log.Printf("Session started: %s (%d tracks scanned)", sessionID, len(tracks))
	return sessionID, nil
}

// Stop ends the active session. Any in-flight transition finishes executing
// before the recorder closes, so the recording never truncates mid-action.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return fmt.Errorf("%w: no session active", ErrSessionState)
	}
	sessionID := m.sessionID
	m.mu.Unlock()

	m.waitForTransition(30 * time.Second)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.transport.SetRecorder(nil)
	if err := m.recorder.Close(); err != nil {
		log.Printf("Recorder close error: %v", err)
	}
	for _, id := range deckIDs {
		m.transport.ReleaseDeck(id)
	}

	if err := m.writeManifestLocked(); err != nil {
		log.Printf("Session manifest error: %v", err)
	}

	m.active = false
	log.Printf("Session stopped: %s (%d actions, %d feedback events)", sessionID, len(m.actions), len(m.feedback))
	return nil
}

// waitForTransition blocks until no action is pending or executing, bounded
// by max.
func (m *Manager) waitForTransition(max time.Duration) {
	deadline := time.Now().Add(max)
	for m.transport.InTransition() {
		if time.Now().After(deadline) {
			log.Printf("Giving up waiting for in-flight action after %v", max)
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Feedback attaches a verdict to the most recent committed or executed
// action and folds it into the score store. With no such action the event
// is rejected and the store is untouched.
func (m *Manager) Feedback(verdict score.Verdict) (score.Entry, error) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return score.Entry{}, fmt.Errorf("%w: no session active", score.ErrFeedbackMismatch)
	}
	if len(m.actions) == 0 {
		m.mu.Unlock()
		return score.Entry{}, fmt.Errorf("%w: no action in this session yet", score.ErrFeedbackMismatch)
	}
	rec := m.actions[len(m.actions)-1]
	m.mu.Unlock()

	entry, err := m.scores.ApplyFeedback(rec.Action, verdict)
	if err != nil {
		return score.Entry{}, err
	}

	m.mu.Lock()
	m.feedback = append(m.feedback, FeedbackRecord{
		ActionID:   rec.Action.ID,
		FeatureKey: rec.Action.FeatureKey,
		Verdict:    verdict,
		ReceivedAt: time.Now().UTC(),
	})
	m.mu.Unlock()
	return entry, nil
}

// State is the read-only session snapshot for the control surface.
type State struct {
	SessionID   string            `json:"session_id,omitempty"`
	Status      string            `json:"status"` // running or stopped
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	Transport   engine.Snapshot   `json:"transport"`
	LastOutcome *decision.Outcome `json:"current_decision,omitempty"`
	Actions     int               `json:"actions_logged"`
	Feedback    int               `json:"feedback_received"`
}

// State returns the current snapshot. Idempotent between ticks.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := State{
		Status:    "stopped",
		Transport: m.transport.Snapshot(),
		Actions:   len(m.actions),
		Feedback:  len(m.feedback),
	}
	if m.active {
		s.Status = "running"
		s.SessionID = m.sessionID
		started := m.startedAt
		s.StartedAt = &started
		s.LastOutcome = m.loop.LastOutcome()
	}
	return s
}

// recordOutcome logs every deliberation result in commit order.
func (m *Manager) recordOutcome(o decision.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	state := "committed"
	if o.State == decision.StateExpired {
		state = "expired"
	}
	m.actions = append(m.actions, ActionRecord{
		Action:      o.Action,
		State:       state,
		CommittedAt: time.Now().UTC(),
	})
}

// actionDone marks the action executed and rotates the next library track
// onto the deck the transition freed.
func (m *Manager) actionDone(a engine.Action) {
	m.mu.Lock()
	for i := len(m.actions) - 1; i >= 0; i-- {
		if m.actions[i].Action.ID == a.ID {
			now := time.Now().UTC()
			m.actions[i].State = "executed"
			m.actions[i].ExecutedAt = &now
			break
		}
	}
	if !m.active {
		m.mu.Unlock()
		return
	}
	tracks := m.lib.List()
	var next *library.Track
	if len(tracks) > 0 {
		next = tracks[m.nextTrack%len(tracks)]
		m.nextTrack = (m.nextTrack + 1) % len(tracks)
	}
	m.mu.Unlock()

	if next == nil {
		return
	}
	if err := m.transport.LoadTrack(a.FromDeck, next); err != nil {
		log.Printf("Queueing next track onto deck %s failed: %v", a.FromDeck, err)
		return
	}
	m.transport.StartDeck(a.FromDeck)
}
