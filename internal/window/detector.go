// Package window computes transition windows: as the lead deck approaches a
// drop, it derives the bounded interval during which a mixing decision must
// be committed, together with the candidate actions valid for the deck pair.
package window

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/dropdeck/dropdeck/internal/engine"
	"github.com/dropdeck/dropdeck/internal/library"
)

// ErrIncompatiblePair means the deck pair cannot be tempo-locked within the
// configured tolerance; no window is produced for it.
var ErrIncompatiblePair = errors.New("track pair outside BPM tolerance")

// ErrNoUpcomingDrop means the lead track has no drop ahead of its cursor.
var ErrNoUpcomingDrop = errors.New("no upcoming drop on lead track")

// Bass-compatibility buckets for the feature snapshot.
const (
	BassTight = "tight"
	BassLoose = "loose"
	BassClash = "clash"
)

// Window is a deadline-carrying message: a decision for the deck pair must
// be committed inside [OpenAt, DeadlineAt) on the master clock. Consumed
// exactly once by the decision engine; void after DeadlineAt.
type Window struct {
	OpenAt     time.Duration
	DeadlineAt time.Duration
	DropAt     time.Duration // master-clock time of the lead's drop
	FromDeck   string
	ToDeck     string
	LeadBPM    float64 // reference tempo for bar-length timing
	Candidates []engine.ActionType
	Features   engine.Features
}

// Config holds the detector's timing and compatibility parameters.
type Config struct {
	LeadOffset     time.Duration // window opens this far before the drop
	DeadlineOffset time.Duration // decision due this far before the drop
	BPMTolerance   float64       // sync ratio band, e.g. 0.06
	StrictKey      bool          // exclude drop-layering actions on key clashes
	BassWindow     float64       // seconds of bass profile compared around the drop
}

// Detector derives windows from track metadata and the live transport state.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector. LeadOffset must exceed DeadlineOffset so
// the transport keeps a guaranteed preparation interval.
func NewDetector(cfg Config) *Detector {
	if cfg.BassWindow <= 0 {
		cfg.BassWindow = 8
	}
	return &Detector{cfg: cfg}
}

// Next computes the upcoming window for the lead/incoming pair given the
// current transport snapshot. Pairs outside the BPM tolerance yield
// ErrIncompatiblePair; a lead with no drop ahead yields ErrNoUpcomingDrop.
func (d *Detector) Next(snap engine.Snapshot, lead, incoming *library.Track) (*Window, error) {
	ratio, ok := bpmRatio(lead, incoming, d.cfg.BPMTolerance)
	if !ok {
		return nil, ErrIncompatiblePair
	}

	var leadDeck, inDeck engine.DeckSnapshot
	for _, ds := range snap.Decks {
		switch ds.TrackID {
		case lead.ID:
			leadDeck = ds
		case incoming.ID:
			inDeck = ds
		}
	}
	if leadDeck.ID == "" || inDeck.ID == "" {
		return nil, errors.New("pair not loaded on decks")
	}

	drop := lead.NextDropAfter(leadDeck.ProgressS)
	if drop < 0 {
		return nil, ErrNoUpcomingDrop
	}

	// Lead runs at native rate, so track seconds map 1:1 onto the master
	// clock from here.
	untilDrop := time.Duration((drop - leadDeck.ProgressS) * float64(time.Second))
	dropAt := snap.MasterTime + untilDrop

	w := &Window{
		OpenAt:     dropAt - d.cfg.LeadOffset,
		DeadlineAt: dropAt - d.cfg.DeadlineOffset,
		DropAt:     dropAt,
		FromDeck:   leadDeck.ID,
		ToDeck:     inDeck.ID,
		LeadBPM:    lead.BPM,
		Features: engine.Features{
			BPMRatio:    ratio,
			KeyRelation: KeyRelation(lead.Key, incoming.Key),
			BassBucket:  bassBucket(lead, incoming, drop, d.cfg.BassWindow),
		},
	}
	if w.OpenAt < snap.MasterTime {
		w.OpenAt = snap.MasterTime
	}

	w.Candidates = d.candidates(lead, incoming, drop, w.Features)
	return w, nil
}

// candidates applies the static compatibility rules. The hard-cut fallback
// is always present, so the set is never empty.
func (d *Detector) candidates(lead, incoming *library.Track, drop float64, f engine.Features) []engine.ActionType {
	var out []engine.ActionType

	keyOK := !d.cfg.StrictKey || f.KeyRelation != KeyClash

	for _, t := range engine.ActionTypes {
		switch t {
		case engine.DoubleDrop:
			// Needs both tracks to carry material past their drops, and a
			// workable key pairing: two clashing drops layered is noise.
			if keyOK && hasTailPast(lead, drop, 16) && incomingHasDropTail(incoming, 16) {
				out = append(out, t)
			}
		case engine.SingleDrop, engine.FakeDrop:
			if keyOK && incoming.NextDropAfter(0) >= 0 {
				out = append(out, t)
			}
		case engine.EarlyCut:
			// Only meaningful with room before the drop.
			if drop > 16 {
				out = append(out, t)
			}
		case engine.EchoOut, engine.HardCut, engine.SilenceTransition:
			out = append(out, t)
		}
	}
	return out
}

// bpmRatio returns the follower sync ratio and whether it is inside the
// tolerance band.
func bpmRatio(lead, incoming *library.Track, tolerance float64) (float64, bool) {
	if lead.BPM <= 0 || incoming.BPM <= 0 {
		return 0, false
	}
	ratio := lead.BPM / incoming.BPM
	return ratio, ratio >= 1-tolerance && ratio <= 1+tolerance
}

// hasTailPast reports whether the track has at least tail seconds of
// material after the given position.
func hasTailPast(t *library.Track, pos, tail float64) bool {
	return t.Duration-pos >= tail
}

// incomingHasDropTail checks the incoming track has a drop and enough
// material after it.
func incomingHasDropTail(t *library.Track, tail float64) bool {
	drop := t.NextDropAfter(0)
	return drop >= 0 && hasTailPast(t, drop, tail)
}

// bassBucket correlates the two tracks' bass-energy profiles around their
// respective drops and buckets the result. Thin profiles read as loose.
func bassBucket(lead, incoming *library.Track, leadDrop, width float64) string {
	inDrop := incoming.NextDropAfter(0)
	if inDrop < 0 {
		inDrop = 0
	}
	a := lead.BassAround(leadDrop, width)
	b := incoming.BassAround(inDrop, width)
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 3 {
		return BassLoose
	}
	r := stat.Correlation(a[:n], b[:n], nil)
	if math.IsNaN(r) {
		// Flat profiles have no variance to correlate.
		return BassLoose
	}
	switch {
	case r >= 0.4:
		return BassTight
	case r > -0.3:
		return BassLoose
	default:
		return BassClash
	}
}
