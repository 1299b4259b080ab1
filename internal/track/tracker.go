package track

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/depthtrack/internal/rigid"
)

// MaxStepDt caps the step length fed to the transition model so frame
// gaps (dropped frames, replay catch-up) cannot balloon the prediction
// spread in a single step.
const MaxStepDt = 0.25

// Stats holds aggregate adaptive-loop telemetry across all steps of a
// tracker's lifetime. Returned by value from Tracker.Stats.
type Stats struct {
	Steps             int     `json:"steps"`
	Resamples         int     `json:"resamples"`
	PeakParticleCount int     `json:"peak_particle_count"`
	MinParticleCount  int     `json:"min_particle_count"`
	MeanESS           float64 `json:"mean_ess"`
	LastKLDivergence  float64 `json:"last_kl_divergence"`

	essSum float64
}

// Tracker is the externally returned artifact: it owns a Filter and
// exposes the per-frame update/estimate interface. All methods are safe
// for concurrent use; Step calls are serialised by the tracker lock, and
// getters return snapshot copies in the usual way so callers never read
// live filter state.
type Tracker struct {
	// TrackerID is globally unique across restarts and rebuilds.
	TrackerID string

	mu            sync.RWMutex
	filter        *Filter
	backend       Backend
	params        TrackerParams
	latest        *Estimate
	stats         Stats
	lastStepNanos int64
	closed        bool
}

func newTracker(filter *Filter, backend Backend, params TrackerParams) *Tracker {
	return &Tracker{
		TrackerID: fmt.Sprintf("trk_%s", uuid.NewString()),
		filter:    filter,
		backend:   backend,
		params:    params,
		stats:     Stats{MinParticleCount: params.MaxSampleCount},
	}
}

// Backend reports which observation backend the tracker was built with.
func (t *Tracker) Backend() Backend {
	return t.backend
}

// Params returns the build-time filter parameter set.
func (t *Tracker) Params() TrackerParams {
	return t.params
}

// SamplingBlocks returns a copy of the filter's block partition.
func (t *Tracker) SamplingBlocks() []SamplingBlock {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.filter.Blocks()
}

// Init seeds the filter at the given initial joint state. Must be called
// once before the first Step.
func (t *Tracker) Init(initial rigid.State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("tracker %s: closed", t.TrackerID)
	}
	t.lastStepNanos = 0
	return t.filter.Init(initial)
}

// Step feeds one depth observation to the filter and returns the updated
// posterior estimate. The step length is derived from the wall-clock gap
// between calls, clamped to MaxStepDt.
func (t *Tracker) Step(frame *Frame, timestamp time.Time) (Estimate, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return Estimate{}, fmt.Errorf("tracker %s: closed", t.TrackerID)
	}

	nowNanos := timestamp.UnixNano()
	dt := 0.1 // default 100ms for the first frame
	if t.lastStepNanos > 0 {
		dt = float64(nowNanos-t.lastStepNanos) / 1e9
	}
	if dt > MaxStepDt {
		dt = MaxStepDt
	}
	t.lastStepNanos = nowNanos

	est, err := t.filter.Step(frame, dt)
	if err != nil {
		return Estimate{}, err
	}

	t.stats.Steps++
	if est.Resampled {
		t.stats.Resamples++
	}
	if est.ParticleCount > t.stats.PeakParticleCount {
		t.stats.PeakParticleCount = est.ParticleCount
	}
	if est.ParticleCount < t.stats.MinParticleCount {
		t.stats.MinParticleCount = est.ParticleCount
	}
	t.stats.essSum += est.ESS
	t.stats.MeanESS = t.stats.essSum / float64(t.stats.Steps)
	t.stats.LastKLDivergence = est.KLDivergence

	copied := est
	t.latest = &copied
	return est, nil
}

// LatestEstimate returns a copy of the most recent posterior estimate,
// or nil if no step has completed yet.
func (t *Tracker) LatestEstimate() *Estimate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.latest == nil {
		return nil
	}
	copied := *t.latest
	copied.State = t.latest.State.Clone()
	copied.Poses = append([]rigid.Pose(nil), t.latest.Poses...)
	copied.Blocks = append([]BlockTelemetry(nil), t.latest.Blocks...)
	return &copied
}

// Stats returns a snapshot of the aggregate step telemetry.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

// Adaptive returns the current runtime-tunable filter parameters.
func (t *Tracker) Adaptive() AdaptiveParams {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.filter.Adaptive()
}

// UpdateAdaptive applies fn to the runtime-tunable parameters under the
// tracker lock. This is the safe way to adjust the divergence bound or
// update rate on a live tracker (e.g. from the HTTP tuning handlers);
// out-of-range values are clamped back to the previous setting.
func (t *Tracker) UpdateAdaptive(fn func(*AdaptiveParams)) AdaptiveParams {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.filter.Adaptive()
	fn(&p)
	t.filter.SetAdaptive(p)
	return t.filter.Adaptive()
}

// Close releases the filter's observation backend resources. Subsequent
// Step calls fail. Idempotent.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.filter.Close()
}
