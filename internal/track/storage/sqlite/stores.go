// Package sqlite persists tracker runs and per-frame pose estimates.
// It is an adapter over internal/db — not a domain layer — so nothing in
// internal/track depends on it; the run loop in cmd/tracker wires it in.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/depthtrack/internal/db"
	"github.com/banshee-data/depthtrack/internal/track"
)

// Run is the persisted record of one tracker session.
type Run struct {
	RunID           string  `json:"run_id"`
	TrackerID       string  `json:"tracker_id"`
	Backend         string  `json:"backend"`
	Transition      string  `json:"transition"`
	Bodies          int     `json:"bodies"`
	EvaluationCount int     `json:"evaluation_count"`
	MaxSampleCount  int     `json:"max_sample_count"`
	UpdateRate      float64 `json:"update_rate"`
	MaxKLDivergence float64 `json:"max_kl_divergence"`
	StartedNanos    int64   `json:"started_nanos"`
	FinishedNanos   *int64  `json:"finished_nanos,omitempty"`
}

// StoredEstimate is one persisted per-frame estimate row.
type StoredEstimate struct {
	RunID          string          `json:"run_id"`
	FrameIndex     int             `json:"frame_index"`
	TimestampNanos int64           `json:"timestamp_nanos"`
	State          []float64       `json:"state"`
	ParticleCount  int             `json:"particle_count"`
	ESS            float64         `json:"ess"`
	KLDivergence   float64         `json:"kl_divergence"`
	Resampled      bool            `json:"resampled"`
}

// RunStore manages tracker_runs rows.
type RunStore struct {
	db *db.DB
}

// NewRunStore creates a RunStore backed by the given database.
func NewRunStore(d *db.DB) *RunStore {
	return &RunStore{db: d}
}

// CreateRun inserts a new run record for the given tracker and
// configuration, returning the generated run ID.
func (s *RunStore) CreateRun(tracker *track.Tracker, cfg track.Config, bodies int, started time.Time) (string, error) {
	runID := fmt.Sprintf("run_%s", uuid.NewString())
	params := cfg.ActiveParams()
	_, err := s.db.Exec(`
		INSERT INTO tracker_runs (
			run_id, tracker_id, backend, transition, bodies,
			evaluation_count, max_sample_count, update_rate, max_kl_divergence,
			started_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, tracker.TrackerID, string(tracker.Backend()), string(cfg.ActiveTransition), bodies,
		params.EvaluationCount, params.MaxSampleCount, params.UpdateRate, params.MaxKLDivergence,
		started.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return runID, nil
}

// FinishRun stamps the run's finish time.
func (s *RunStore) FinishRun(runID string, finished time.Time) error {
	res, err := s.db.Exec(`UPDATE tracker_runs SET finished_nanos = ? WHERE run_id = ?`,
		finished.UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("finish run: unknown run %q", runID)
	}
	return nil
}

// GetRun loads one run record.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, tracker_id, backend, transition, bodies,
		       evaluation_count, max_sample_count, update_rate, max_kl_divergence,
		       started_nanos, finished_nanos
		FROM tracker_runs WHERE run_id = ?`, runID)

	var r Run
	var finished sql.NullInt64
	err := row.Scan(&r.RunID, &r.TrackerID, &r.Backend, &r.Transition, &r.Bodies,
		&r.EvaluationCount, &r.MaxSampleCount, &r.UpdateRate, &r.MaxKLDivergence,
		&r.StartedNanos, &finished)
	if err != nil {
		return nil, fmt.Errorf("get run %q: %w", runID, err)
	}
	if finished.Valid {
		v := finished.Int64
		r.FinishedNanos = &v
	}
	return &r, nil
}

// ListRuns returns all runs, most recent first.
func (s *RunStore) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, tracker_id, backend, transition, bodies,
		       evaluation_count, max_sample_count, update_rate, max_kl_divergence,
		       started_nanos, finished_nanos
		FROM tracker_runs ORDER BY started_nanos DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullInt64
		if err := rows.Scan(&r.RunID, &r.TrackerID, &r.Backend, &r.Transition, &r.Bodies,
			&r.EvaluationCount, &r.MaxSampleCount, &r.UpdateRate, &r.MaxKLDivergence,
			&r.StartedNanos, &finished); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		if finished.Valid {
			v := finished.Int64
			r.FinishedNanos = &v
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// EstimateStore manages pose_estimates rows.
type EstimateStore struct {
	db *db.DB
}

// NewEstimateStore creates an EstimateStore backed by the given database.
func NewEstimateStore(d *db.DB) *EstimateStore {
	return &EstimateStore{db: d}
}

// InsertEstimate persists one per-frame estimate. The joint state is
// stored as a JSON array so the schema is independent of body count.
func (s *EstimateStore) InsertEstimate(runID string, frameIndex int, est track.Estimate) error {
	stateJSON, err := json.Marshal([]float64(est.State))
	if err != nil {
		return fmt.Errorf("insert estimate: encode state: %w", err)
	}
	resampled := 0
	if est.Resampled {
		resampled = 1
	}
	_, err = s.db.Exec(`
		INSERT INTO pose_estimates (
			run_id, frame_index, timestamp_nanos, state_json,
			particle_count, ess, kl_divergence, resampled
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, frameIndex, est.TimestampNanos, string(stateJSON),
		est.ParticleCount, est.ESS, est.KLDivergence, resampled,
	)
	if err != nil {
		return fmt.Errorf("insert estimate: %w", err)
	}
	return nil
}

// ListEstimates returns a run's estimates in frame order.
func (s *EstimateStore) ListEstimates(runID string) ([]StoredEstimate, error) {
	rows, err := s.db.Query(`
		SELECT run_id, frame_index, timestamp_nanos, state_json,
		       particle_count, ess, kl_divergence, resampled
		FROM pose_estimates WHERE run_id = ? ORDER BY frame_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("list estimates: %w", err)
	}
	defer rows.Close()

	var out []StoredEstimate
	for rows.Next() {
		var e StoredEstimate
		var stateJSON string
		var resampled int
		if err := rows.Scan(&e.RunID, &e.FrameIndex, &e.TimestampNanos, &stateJSON,
			&e.ParticleCount, &e.ESS, &e.KLDivergence, &resampled); err != nil {
			return nil, fmt.Errorf("list estimates: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &e.State); err != nil {
			return nil, fmt.Errorf("list estimates: decode state: %w", err)
		}
		e.Resampled = resampled != 0
		out = append(out, e)
	}
	return out, rows.Err()
}
