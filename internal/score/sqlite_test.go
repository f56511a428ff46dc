package score

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDBCreatesSchemaAndDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "experience.sqlite")
	db, err := OpenDB(path)
	require.NoError(t, err)
	defer db.Close()

	scores, err := db.LoadScores()
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestUpsertRoundTrip(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "experience.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	e := Entry{
		Key:          "double_drop|tight|match",
		Score:        2.96,
		Observations: 3,
		Positive:     3,
		Negative:     0,
		UpdatedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Upsert(e))

	// Second write for the same key replaces the row.
	e.Score = 1.9
	e.Observations = 4
	e.Negative = 1
	require.NoError(t, db.Upsert(e))

	loaded, err := db.LoadScores()
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded["double_drop|tight|match"]
	assert.Equal(t, e.Key, got.Key)
	assert.InDelta(t, 1.9, got.Score, 1e-9)
	assert.Equal(t, 4, got.Observations)
	assert.Equal(t, 3, got.Positive)
	assert.Equal(t, 1, got.Negative)
	assert.True(t, got.UpdatedAt.Equal(e.UpdatedAt))
}

func TestScoresSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experience.sqlite")

	db, err := OpenDB(path)
	require.NoError(t, err)
	store := NewStore(Config{Increment: 1, Decay: 0.98}, nil)
	store.SetPersist(db.Upsert)

	_, err = store.ApplyFeedback(testAction("single_drop|tight|match"), Good)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Fresh process: seed from disk.
	db2, err := OpenDB(path)
	require.NoError(t, err)
	defer db2.Close()

	seed, err := db2.LoadScores()
	require.NoError(t, err)
	restored := NewStore(Config{Increment: 1, Decay: 0.98}, seed)
	assert.Equal(t, 1.0, restored.Lookup("single_drop|tight|match"))
}
