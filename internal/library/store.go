package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned by Get for unknown track IDs.
var ErrNotFound = errors.New("track not found in scanned library")

var supportedExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
}

// Store holds the scanned library. A scan replaces the whole snapshot;
// individual tracks are never mutated.
type Store struct {
	mu     sync.RWMutex
	tracks map[string]*Track
	order  []string // scan order, stable for List
}

// NewStore creates an empty library store.
func NewStore() *Store {
	return &Store{tracks: make(map[string]*Track)}
}

// Scan walks dir for supported audio files and rebuilds the library
// snapshot. Returns the number of tracks found.
func (s *Store) Scan(dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return 0, fmt.Errorf("music directory not found: %s", dir)
	}

	log.Printf("Scan started: %s", dir)

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(paths)

	tracks := make(map[string]*Track, len(paths))
	order := make([]string, 0, len(paths))
	for i, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		track := loadTrack(abs)
		tracks[track.ID] = track
		order = append(order, track.ID)
		if len(paths) <= 10 || i+1 == len(paths) || (i+1)%max(1, len(paths)/10) == 0 {
			log.Printf("Scan progress: %d/%d", i+1, len(paths))
		}
	}

	s.mu.Lock()
	s.tracks = tracks
	s.order = order
	s.mu.Unlock()

	log.Printf("Scan finished: found %d tracks in %s", len(order), dir)
	return len(order), nil
}

// Get returns the track for id.
func (s *Store) Get(id string) (*Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// List returns all tracks in scan order.
func (s *Store) List() []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Track, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tracks[id])
	}
	return out
}

// Count returns the number of scanned tracks.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// loadTrack builds a Track for path. The analyzer's sidecar
// ("<path>.analysis.json") wins when present and parseable; otherwise the
// filename heuristics fill in BPM/key and the drops fall back to fixed
// phrase positions.
func loadTrack(path string) *Track {
	if t, err := loadSidecar(path); err == nil {
		return t
	}

	bpm, key := ParseFilename(filepath.Base(path))
	t := &Track{
		ID:        path,
		Title:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		BPM:       bpm,
		Key:       key,
		DropTimes: []float64{32.0, 64.0},
		Duration:  probeDuration(path),
	}
	t.normalize()
	return t
}

// loadSidecar reads the analysis sidecar written by the external analyzer.
func loadSidecar(path string) (*Track, error) {
	data, err := os.ReadFile(path + ".analysis.json")
	if err != nil {
		return nil, err
	}
	var t Track
	if err := json.Unmarshal(data, &t); err != nil {
		log.Printf("Sidecar parse error for %s: %v", path, err)
		return nil, err
	}
	if t.BPM <= 0 || t.Duration <= 0 {
		return nil, fmt.Errorf("sidecar for %s: missing bpm or duration", path)
	}
	t.ID = path
	if t.Title == "" {
		t.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if t.Key == "" {
		t.Key = "Unknown"
	}
	t.normalize()
	return &t, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
