package score

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB is the durable backing for the score table.
type DB struct {
	*sql.DB
}

// OpenDB opens (creating directories and schema as needed) the experience
// database at path.
func OpenDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open experience db: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS experience_scores (
			feature_key TEXT PRIMARY KEY,
			score REAL NOT NULL DEFAULT 0,
			observations INTEGER NOT NULL DEFAULT 0,
			n_positive INTEGER NOT NULL DEFAULT 0,
			n_negative INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init experience schema: %w", err)
	}

	return &DB{db}, nil
}

// LoadScores reads every persisted entry, keyed by feature key. Called once
// at startup to seed the in-memory store.
func (db *DB) LoadScores() (map[string]Entry, error) {
	rows, err := db.Query(`
		SELECT feature_key, score, observations, n_positive, n_negative, updated_at
		FROM experience_scores
	`)
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Entry)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Score, &e.Observations, &e.Positive, &e.Negative, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		out[e.Key] = e
	}
	return out, rows.Err()
}

// Upsert writes one entry durably. Used as the store's persist hook after
// each feedback application.
func (db *DB) Upsert(e Entry) error {
	_, err := db.Exec(`
		INSERT INTO experience_scores (feature_key, score, observations, n_positive, n_negative, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(feature_key) DO UPDATE SET
			score = excluded.score,
			observations = excluded.observations,
			n_positive = excluded.n_positive,
			n_negative = excluded.n_negative,
			updated_at = excluded.updated_at
	`, e.Key, e.Score, e.Observations, e.Positive, e.Negative, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert score %s: %w", e.Key, err)
	}
	return nil
}
