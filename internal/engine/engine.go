// Package engine is the transport/mixing core: it owns the virtual decks,
// advances them on a shared master clock, and renders the master bus by
// applying whichever transition action is currently executing. Everything on
// the render path recovers locally; the master clock never stalls.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dropdeck/dropdeck/internal/audio"
	"github.com/dropdeck/dropdeck/internal/library"
)

var (
	// ErrDeckBusy means LoadTrack targeted a deck that is not idle.
	ErrDeckBusy = errors.New("deck already loaded and not released")
	// ErrLoad wraps a failed decode; the deck stays idle.
	ErrLoad = errors.New("track load failed")
	// ErrActionPending means a deck referenced by ExecuteAction is already
	// part of a pending or executing transition.
	ErrActionPending = errors.New("deck already in transition")
	// ErrUnknownDeck is returned for deck IDs the engine does not own.
	ErrUnknownDeck = errors.New("unknown deck")
)

// RecorderSink receives every rendered master frame in emission order.
// A write failure is logged once and playback continues.
type RecorderSink interface {
	Write(frame []int16) error
}

type activeTransition struct {
	action     Action
	startFrame int64
	endFrame   int64
	echo       *audio.EchoState
}

// Engine owns 2-3 decks and the master clock. Tick is the only place deck
// cursors move.
type Engine struct {
	mu    sync.Mutex
	decks map[string]*Deck
	order []string

	bpmTolerance float64 // sync ratio clamp band, e.g. 0.06

	lead         string // deck currently defining the reference BPM
	masterFrames int64
	tickCarry    time.Duration

	pending *Action
	active  *activeTransition

	frameCh     chan []int16
	onDone      func(Action)
	underrunLog bool

	recMu      sync.Mutex // serializes sink writes against SetRecorder
	recorder   RecorderSink
	recErrSeen bool
}

// New creates an engine with the given deck IDs (typically "A","B" or
// "A","B","C") and BPM sync tolerance band.
func New(deckIDs []string, bpmTolerance float64) *Engine {
	e := &Engine{
		decks:        make(map[string]*Deck, len(deckIDs)),
		order:        append([]string(nil), deckIDs...),
		bpmTolerance: bpmTolerance,
		frameCh:      make(chan []int16, 100),
	}
	for _, id := range deckIDs {
		e.decks[id] = newDeck(id)
	}
	return e
}

// Frames returns the monitor channel of rendered master frames. Slow
// consumers miss frames; the recorder sink is the lossless tap.
func (e *Engine) Frames() <-chan []int16 { return e.frameCh }

// SetRecorder installs the lossless master-output tap. Pass nil to detach;
// the swap waits for any in-flight frame write, so once SetRecorder returns
// the previous sink receives nothing further.
func (e *Engine) SetRecorder(r RecorderSink) {
	e.recMu.Lock()
	e.recorder = r
	e.recErrSeen = false
	e.recMu.Unlock()
}

// SetOnActionDone registers the callback fired after a transition finishes
// executing. Dispatched on its own goroutine so slow handlers (track loads,
// disk reads) never stall the render clock.
func (e *Engine) SetOnActionDone(fn func(Action)) {
	e.mu.Lock()
	e.onDone = fn
	e.mu.Unlock()
}

// MasterTime returns the master clock position.
func (e *Engine) MasterTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.masterTimeLocked()
}

func (e *Engine) masterTimeLocked() time.Duration {
	return time.Duration(e.masterFrames) * audio.FrameDuration
}

// LoadTrack decodes a track onto an idle deck, leaving it armed. Fails with
// ErrDeckBusy if the deck holds a track that was not released, and with a
// wrapped ErrLoad if the source cannot be decoded (deck stays idle).
func (e *Engine) LoadTrack(deckID string, track *library.Track) error {
	e.mu.Lock()
	d, ok := e.decks[deckID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDeck, deckID)
	}
	if d.status != DeckIdle {
		e.mu.Unlock()
		return fmt.Errorf("%w: deck %s", ErrDeckBusy, deckID)
	}
	e.mu.Unlock()

	// Decode outside the lock; this is control-path work.
	samples, err := audio.DecodeFile(track.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoad, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if d.status != DeckIdle {
		return fmt.Errorf("%w: deck %s", ErrDeckBusy, deckID)
	}
	e.loadDecoded(d, track, samples)
	return nil
}

// loadDecoded arms a deck with pre-decoded PCM. Caller holds the lock.
func (e *Engine) loadDecoded(d *Deck, track *library.Track, samples []int16) {
	d.track = track
	d.samples = samples
	d.cursor = 0
	d.unreadable = false
	d.status = DeckArmed
	d.rate = e.syncRateLocked(d)
	log.Printf("Deck %s loaded: %s (%.1f BPM, key %s)", d.ID, track.Title, track.BPM, track.Key)
}

// StartDeck makes an armed deck audible. The first started deck becomes the
// lead; followers are tempo-locked to it.
func (e *Engine) StartDeck(deckID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.decks[deckID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDeck, deckID)
	}
	if d.status != DeckArmed {
		return fmt.Errorf("deck %s not armed", deckID)
	}
	d.status = DeckActive
	if e.lead == "" {
		e.lead = deckID
		d.rate = 1.0
	} else {
		d.rate = e.syncRateLocked(d)
	}
	return nil
}

// ReleaseDeck unloads a deck that is not part of a transition.
func (e *Engine) ReleaseDeck(deckID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.decks[deckID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDeck, deckID)
	}
	if e.deckInTransitionLocked(deckID) {
		return fmt.Errorf("%w: deck %s", ErrActionPending, deckID)
	}
	if e.lead == deckID {
		e.lead = ""
	}
	d.unload()
	return nil
}

// MarkUnreadable degrades a deck to silence after a mid-playback read
// failure. The master clock and the other decks are unaffected.
func (e *Engine) MarkUnreadable(deckID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.decks[deckID]; ok {
		d.unreadable = true
		log.Printf("Deck %s source unreadable, degrading to silence", deckID)
	}
}

// Lead returns the current lead deck ID ("" before playback starts).
func (e *Engine) Lead() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lead
}

// InTransition reports whether any action is pending or executing.
func (e *Engine) InTransition() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending != nil || e.active != nil
}

// syncRateLocked computes a follower's playback rate leadBPM/deckBPM,
// clamped to the tolerance band. The lead always runs at native rate.
func (e *Engine) syncRateLocked(d *Deck) float64 {
	if e.lead == "" || e.lead == d.ID || d.track == nil {
		return 1.0
	}
	leadDeck := e.decks[e.lead]
	if leadDeck == nil || leadDeck.track == nil || d.track.BPM <= 0 {
		return 1.0
	}
	rate := leadDeck.track.BPM / d.track.BPM
	lo, hi := 1-e.bpmTolerance, 1+e.bpmTolerance
	if rate < lo {
		rate = lo
	}
	if rate > hi {
		rate = hi
	}
	return rate
}

// ExecuteAction schedules a transition. From its acceptance until the
// action's declared completion, both participating decks refuse further
// actions. At most one action is ever pending per deck pair.
func (e *Engine) ExecuteAction(a Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !a.Type.Valid() {
		return fmt.Errorf("invalid action type %q", a.Type)
	}
	from, ok := e.decks[a.FromDeck]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDeck, a.FromDeck)
	}
	to, ok := e.decks[a.ToDeck]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDeck, a.ToDeck)
	}
	if e.deckInTransitionLocked(a.FromDeck) || e.deckInTransitionLocked(a.ToDeck) {
		return fmt.Errorf("%w: %s/%s", ErrActionPending, a.FromDeck, a.ToDeck)
	}
	if from.status != DeckActive {
		return fmt.Errorf("deck %s not active", a.FromDeck)
	}
	if to.status != DeckArmed && to.status != DeckActive {
		return fmt.Errorf("deck %s has no material", a.ToDeck)
	}
	if a.Duration < audio.FrameDuration {
		a.Duration = audio.FrameDuration
	}

	e.pending = &a
	log.Printf("Action scheduled: %s %s->%s at %v", a.Type, a.FromDeck, a.ToDeck, a.ExecuteAt)
	return nil
}

func (e *Engine) deckInTransitionLocked(deckID string) bool {
	if e.pending != nil && (e.pending.FromDeck == deckID || e.pending.ToDeck == deckID) {
		return true
	}
	if e.active != nil && (e.active.action.FromDeck == deckID || e.active.action.ToDeck == deckID) {
		return true
	}
	return false
}

// Run drives the master clock in real time until ctx is cancelled, emitting
// monitor frames on Frames(). Tests drive Tick directly instead.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.frameCh)

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.Tick(now.Sub(last))
			last = now
		}
	}
}

// Tick advances the master clock by elapsed, rendering every due frame.
// Never blocks: monitor frames are dropped for slow consumers, a failing
// recorder is logged once and skipped, and completion callbacks run on
// their own goroutine instead of the render path.
func (e *Engine) Tick(elapsed time.Duration) {
	e.mu.Lock()

	e.tickCarry += elapsed
	var done []Action
	var frames [][]int16
	for e.tickCarry >= audio.FrameDuration {
		e.tickCarry -= audio.FrameDuration
		frame, finished := e.renderFrameLocked()
		frames = append(frames, frame)
		if finished != nil {
			done = append(done, *finished)
		}
	}

	onDone := e.onDone
	e.mu.Unlock()

	e.recMu.Lock()
	for _, frame := range frames {
		if e.recorder != nil {
			if err := e.recorder.Write(frame); err != nil && !e.recErrSeen {
				e.recErrSeen = true
				log.Printf("Recorder write error (continuing): %v", err)
			}
		}
		select {
		case e.frameCh <- frame:
		default:
			// monitor too slow, keep the clock moving
		}
	}
	e.recMu.Unlock()

	if onDone != nil && len(done) > 0 {
		go func() {
			for _, a := range done {
				onDone(a)
			}
		}()
	}
}

// renderFrameLocked renders exactly one master frame and advances the clock.
// Returns the completed action, if this frame finished one.
func (e *Engine) renderFrameLocked() ([]int16, *Action) {
	now := e.masterTimeLocked()

	// Activate a due pending action.
	if e.pending != nil && now >= e.pending.ExecuteAt {
		e.activateLocked(*e.pending, now)
		e.pending = nil
	}

	var frame []int16
	var finished *Action

	switch {
	case e.active != nil:
		frame, finished = e.renderTransitionLocked(now)
	case e.lead != "":
		frame = e.decks[e.lead].renderFrame()
		// Followers keep position in sync even while inaudible.
		for _, id := range e.order {
			if id != e.lead && e.decks[id].status == DeckActive {
				e.decks[id].advanceSilent()
			}
		}
	default:
		frame = audio.SilenceFrame()
	}

	if frame == nil {
		// A render fault degrades to silence, never a stalled clock.
		if !e.underrunLog {
			e.underrunLog = true
			log.Printf("Render underrun: emitting silence")
		}
		frame = audio.SilenceFrame()
	}

	e.masterFrames++
	return frame, finished
}

// activateLocked begins executing an action: marks decks fading, builds the
// echo line if needed, and positions the incoming deck.
func (e *Engine) activateLocked(a Action, now time.Duration) {
	from := e.decks[a.FromDeck]
	to := e.decks[a.ToDeck]

	durFrames := int64(a.Duration / audio.FrameDuration)
	if durFrames < 1 {
		durFrames = 1
	}

	t := &activeTransition{
		action:     a,
		startFrame: e.masterFrames,
		endFrame:   e.masterFrames + durFrames,
	}

	if a.Type == EchoOut && from.track != nil && from.track.BPM > 0 {
		// Half-beat delay at the outgoing tempo.
		delaySec := 60.0 / from.track.BPM / 2
		t.echo = audio.NewEchoState(int(delaySec*audio.SampleRate)*audio.Channels, 0.55)
	}

	e.alignIncomingLocked(a, to, now)

	from.status = DeckFading
	to.status = DeckFading
	e.active = t
	log.Printf("Action executing: %s %s->%s (%v)", a.Type, a.FromDeck, a.ToDeck, a.Duration)
}

// alignIncomingLocked positions the incoming deck's cursor for the action.
// Drop-anchored types jump so the track's first drop lands exactly on the
// action's drop moment; every other type enters from the top, discarding
// whatever position the deck drifted to while advancing silently.
func (e *Engine) alignIncomingLocked(a Action, to *Deck, now time.Duration) {
	switch a.Type {
	case SingleDrop, DoubleDrop, FakeDrop, HardCut:
	default:
		to.cursor = 0
		return
	}
	if to.track == nil || a.DropAt <= now {
		return
	}
	drop := to.track.NextDropAfter(0)
	if drop < 0 {
		return
	}
	framesToDrop := float64((a.DropAt - now) / audio.FrameDuration)
	want := drop*audio.SampleRate - framesToDrop*float64(audio.FrameSize)*to.rate
	if want < 0 {
		want = 0
	}
	to.cursor = want
}

// renderTransitionLocked mixes the two participating decks under the active
// action's envelope, plus any bystander lead output for three-deck setups.
func (e *Engine) renderTransitionLocked(now time.Duration) ([]int16, *Action) {
	t := e.active
	a := t.action
	from := e.decks[a.FromDeck]
	to := e.decks[a.ToDeck]

	total := t.endFrame - t.startFrame
	p := float64(e.masterFrames-t.startFrame) / float64(total)

	outFrame := from.renderFrame()
	inFrame := to.renderFrame()

	var frame []int16
	if a.Type == EchoOut && t.echo != nil {
		// Outgoing rings out through the delay line while the incoming
		// fades in underneath the tail.
		dry := 1 - audio.Smoothstep(p*2)
		if p >= 0.5 {
			dry = 0
		}
		tail := t.echo.Process(outFrame, dry)
		frame = audio.MixFrames(tail, inFrame, 1, audio.Smoothstep(p))
	} else {
		outGain, inGain := a.envelope(p)
		frame = audio.MixFrames(outFrame, inFrame, outGain, inGain)
	}

	if e.masterFrames+1 >= t.endFrame {
		// Transition complete: outgoing releases, incoming leads.
		from.unload()
		to.status = DeckActive
		to.rate = 1.0
		e.lead = a.ToDeck
		e.active = nil
		log.Printf("Action complete: %s, deck %s now leading", a.Type, a.ToDeck)
		return frame, &a
	}
	return frame, nil
}
