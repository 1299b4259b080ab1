package sqlite

import (
	"fmt"

	"github.com/banshee-data/depthtrack/internal/db"
	"github.com/banshee-data/depthtrack/internal/track"
)

// StoredBlockTelemetry is one persisted per-block telemetry row.
type StoredBlockTelemetry struct {
	RunID         string  `json:"run_id"`
	FrameIndex    int     `json:"frame_index"`
	BlockIndex    int     `json:"block_index"`
	ParticleCount int     `json:"particle_count"`
	ESS           float64 `json:"ess"`
	KLDivergence  float64 `json:"kl_divergence"`
	Resampled     bool    `json:"resampled"`
}

// TelemetryStore manages step_telemetry rows. The table is created by the
// migrations, not the schema bootstrap, so callers must run MigrateUp
// before using this store.
type TelemetryStore struct {
	db *db.DB
}

// NewTelemetryStore creates a TelemetryStore backed by the given database.
func NewTelemetryStore(d *db.DB) *TelemetryStore {
	return &TelemetryStore{db: d}
}

// InsertStepTelemetry persists the per-block telemetry of one step.
func (s *TelemetryStore) InsertStepTelemetry(runID string, frameIndex int, blocks []track.BlockTelemetry) error {
	for _, b := range blocks {
		resampled := 0
		if b.Resampled {
			resampled = 1
		}
		_, err := s.db.Exec(`
			INSERT INTO step_telemetry (
				run_id, frame_index, block_index,
				particle_count, ess, kl_divergence, resampled
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, frameIndex, b.Block,
			b.ParticleCount, b.ESS, b.KLDivergence, resampled,
		)
		if err != nil {
			return fmt.Errorf("insert step telemetry: %w", err)
		}
	}
	return nil
}

// ListStepTelemetry returns a run's telemetry in frame then block order.
func (s *TelemetryStore) ListStepTelemetry(runID string) ([]StoredBlockTelemetry, error) {
	rows, err := s.db.Query(`
		SELECT run_id, frame_index, block_index,
		       particle_count, ess, kl_divergence, resampled
		FROM step_telemetry WHERE run_id = ?
		ORDER BY frame_index, block_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("list step telemetry: %w", err)
	}
	defer rows.Close()

	var out []StoredBlockTelemetry
	for rows.Next() {
		var t StoredBlockTelemetry
		var resampled int
		if err := rows.Scan(&t.RunID, &t.FrameIndex, &t.BlockIndex,
			&t.ParticleCount, &t.ESS, &t.KLDivergence, &resampled); err != nil {
			return nil, fmt.Errorf("list step telemetry: %w", err)
		}
		t.Resampled = resampled != 0
		out = append(out, t)
	}
	return out, rows.Err()
}
