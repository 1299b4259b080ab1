// Package db opens and migrates the tracker's sqlite database. The
// database stores tracker runs, per-frame pose estimates, and adaptive
// loop telemetry; the stores in internal/track/storage/sqlite sit on top
// of this wrapper.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite connection.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the sqlite database at path and
// bootstraps the base schema. Use ":memory:" for tests.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer; serialise access through one
	// connection rather than letting database/sql fan out.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA foreign_keys = ON;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS tracker_runs (
			run_id            TEXT PRIMARY KEY,
			tracker_id        TEXT NOT NULL,
			backend           TEXT NOT NULL,
			transition        TEXT NOT NULL,
			bodies            INTEGER NOT NULL,
			evaluation_count  INTEGER NOT NULL,
			max_sample_count  INTEGER NOT NULL,
			update_rate       DOUBLE NOT NULL,
			max_kl_divergence DOUBLE NOT NULL,
			started_nanos     BIGINT NOT NULL,
			finished_nanos    BIGINT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS pose_estimates (
			run_id            TEXT NOT NULL,
			frame_index       INTEGER NOT NULL,
			timestamp_nanos   BIGINT NOT NULL,
			state_json        TEXT NOT NULL,
			particle_count    INTEGER NOT NULL,
			ess               DOUBLE NOT NULL,
			kl_divergence     DOUBLE NOT NULL,
			resampled         INTEGER NOT NULL,
			PRIMARY KEY (run_id, frame_index),
			FOREIGN KEY (run_id) REFERENCES tracker_runs(run_id)
		);
		CREATE INDEX IF NOT EXISTS idx_pose_estimates_run
			ON pose_estimates(run_id, timestamp_nanos);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	return &DB{db}, nil
}
