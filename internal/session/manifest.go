package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is the sealed, immutable record of a finished session: the
// recording path plus the ordered log of executed actions and received
// feedback.
type Manifest struct {
	SessionID string           `yaml:"session_id"`
	StartedAt time.Time        `yaml:"started_at"`
	EndedAt   time.Time        `yaml:"ended_at"`
	Recording string           `yaml:"recording"`
	Actions   []ActionRecord   `yaml:"actions"`
	Feedback  []FeedbackRecord `yaml:"feedback"`
}

// writeManifestLocked seals the session log next to the recording. Caller
// holds m.mu.
func (m *Manager) writeManifestLocked() error {
	recording := m.recorder.File()
	manifest := Manifest{
		SessionID: m.sessionID,
		StartedAt: m.startedAt,
		EndedAt:   time.Now().UTC(),
		Recording: recording,
		Actions:   m.actions,
		Feedback:  m.feedback,
	}

	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return fmt.Errorf("marshal session manifest: %w", err)
	}

	path := strings.TrimSuffix(recording, filepath.Ext(recording)) + ".session.yaml"
	if path == ".session.yaml" {
		path = filepath.Join(m.recorder.path, m.sessionID+".session.yaml")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write session manifest: %w", err)
	}
	return nil
}
