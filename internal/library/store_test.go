package library

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// writeWAV writes a minimal 16-bit stereo 48kHz PCM file with the given
// number of seconds of silence.
func writeWAV(t *testing.T, path string, seconds int) {
	t.Helper()
	dataLen := seconds * 48000 * 2 * 2

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], 2)
	binary.LittleEndian.PutUint32(header[24:28], 48000)
	binary.LittleEndian.PutUint32(header[28:32], 48000*2*2)
	binary.LittleEndian.PutUint16(header[32:34], 4)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))

	if err := os.WriteFile(path, append(header, make([]byte, dataLen)...), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanBuildsLibraryFromFilenames(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "alpha_140bpm_8A.wav"), 120)
	writeWAV(t, filepath.Join(dir, "beta_174bpm_9A.wav"), 120)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644)

	s := NewStore()
	n, err := s.Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("Scan = %d tracks, want 2", n)
	}
	if s.Count() != 2 {
		t.Errorf("Count = %d, want 2", s.Count())
	}

	tracks := s.List()
	if tracks[0].Title != "alpha_140bpm_8A" {
		t.Errorf("first track = %q, scan order must be path-sorted", tracks[0].Title)
	}
	if tracks[0].BPM != 140 || tracks[0].Key != "8A" {
		t.Errorf("filename heuristics: got %.0f BPM key %s", tracks[0].BPM, tracks[0].Key)
	}
	if len(tracks[0].DropTimes) != 2 || tracks[0].DropTimes[0] != 32 || tracks[0].DropTimes[1] != 64 {
		t.Errorf("placeholder drops = %v, want [32 64]", tracks[0].DropTimes)
	}
	if d := tracks[0].Duration; d < 119 || d > 121 {
		t.Errorf("probed duration = %v, want ~120", d)
	}
}

func TestScanSidecarWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gamma_140bpm_8A.wav")
	writeWAV(t, path, 120)

	sidecar := `{"title":"Gamma","bpm":172.5,"key":"11B","drop_times":[60.5,30.25,999],"bass_profile":[0.1,0.9],"duration_s":118.0}`
	if err := os.WriteFile(path+".analysis.json", []byte(sidecar), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore()
	if _, err := s.Scan(dir); err != nil {
		t.Fatal(err)
	}
	tr := s.List()[0]
	if tr.Title != "Gamma" || tr.BPM != 172.5 || tr.Key != "11B" {
		t.Errorf("sidecar not applied: %+v", tr)
	}
	// Drops sorted, out-of-range discarded.
	if len(tr.DropTimes) != 2 || tr.DropTimes[0] != 30.25 || tr.DropTimes[1] != 60.5 {
		t.Errorf("DropTimes = %v, want [30.25 60.5]", tr.DropTimes)
	}
}

func TestScanBadSidecarFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "delta_150bpm_2B.wav")
	writeWAV(t, path, 90)
	os.WriteFile(path+".analysis.json", []byte("{not json"), 0o644)

	s := NewStore()
	if _, err := s.Scan(dir); err != nil {
		t.Fatal(err)
	}
	tr := s.List()[0]
	if tr.BPM != 150 || tr.Key != "2B" {
		t.Errorf("fallback heuristics: got %.0f BPM key %s", tr.BPM, tr.Key)
	}
}

func TestScanMissingDir(t *testing.T) {
	s := NewStore()
	if _, err := s.Scan(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("Scan of missing directory must fail")
	}
}

func TestGetUnknownID(t *testing.T) {
	s := NewStore()
	if _, err := s.Get("/no/such/track.wav"); err != ErrNotFound {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestScanReplacesSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old_140bpm.wav")
	writeWAV(t, path, 60)

	s := NewStore()
	s.Scan(dir)
	os.Remove(path)
	writeWAV(t, filepath.Join(dir, "new_150bpm.wav"), 60)
	s.Scan(dir)

	if s.Count() != 1 {
		t.Fatalf("Count = %d after rescan, want 1", s.Count())
	}
	if s.List()[0].Title != "new_150bpm" {
		t.Errorf("rescan must replace the snapshot, got %q", s.List()[0].Title)
	}
}
