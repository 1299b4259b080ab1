package track

import (
	"math"
	"testing"

	"github.com/banshee-data/depthtrack/internal/rigid"
)

func buildTestFilter(t *testing.T, bodies int, params TrackerParams) (*Filter, *ObjectModel, CameraData) {
	t.Helper()
	model := testObjectModel(bodies)
	cam := testCamera()
	obs, err := NewObservationModel(false, model, cam, ObservationParams{
		DepthSigmaMeters: 0.02,
		TailWeight:       0.02,
		MaxDepthMeters:   10,
	})
	if err != nil {
		t.Fatalf("observation model: %v", err)
	}
	transition := NewBrownianTransition(BrownianTransitionParams{LinearSigma: 0.01, AngularSigma: 0.02}, 7)
	blocks, err := SamplingBlocks(bodies, rigid.BodyDoF)
	if err != nil {
		t.Fatalf("sampling blocks: %v", err)
	}
	f, err := NewFilter(transition, obs, blocks, params, 7)
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f, model, cam
}

func TestNewFilterRejectsBadInputs(t *testing.T) {
	params := TrackerParams{EvaluationCount: 10, MaxSampleCount: 20, UpdateRate: 1, MaxKLDivergence: 1}
	transition := NewBrownianTransition(BrownianTransitionParams{}, 1)
	obs, err := NewObservationModel(false, testObjectModel(1), testCamera(), ObservationParams{DepthSigmaMeters: 0.02, MaxDepthMeters: 10})
	if err != nil {
		t.Fatalf("observation model: %v", err)
	}
	defer obs.Close()
	blocks, _ := SamplingBlocks(1, rigid.BodyDoF)

	if _, err := NewFilter(nil, obs, blocks, params, 1); err == nil {
		t.Fatal("expected error for nil transition")
	}
	if _, err := NewFilter(transition, nil, blocks, params, 1); err == nil {
		t.Fatal("expected error for nil observation")
	}
	if _, err := NewFilter(transition, obs, nil, params, 1); err == nil {
		t.Fatal("expected error for empty blocks")
	}
	if _, err := NewFilter(transition, obs, blocks, TrackerParams{}, 1); err == nil {
		t.Fatal("expected error for invalid params")
	}
	// Blocks must form a contiguous cover starting at zero.
	broken := []SamplingBlock{{1, 2, 3, 4, 5, 6}}
	if _, err := NewFilter(transition, obs, broken, params, 1); err == nil {
		t.Fatal("expected error for non-contiguous blocks")
	}
}

func TestFilterStepBeforeInitFails(t *testing.T) {
	f, model, cam := buildTestFilter(t, 1, TrackerParams{EvaluationCount: 10, MaxSampleCount: 20, UpdateRate: 1, MaxKLDivergence: 1})
	frame := renderFrame(model, cam, rigid.FromPoses([]rigid.Pose{{Z: 1}}), 1)
	if _, err := f.Step(frame, 0.1); err == nil {
		t.Fatal("expected error for Step before Init")
	}
}

func TestFilterInitDimensionCheck(t *testing.T) {
	f, _, _ := buildTestFilter(t, 2, TrackerParams{EvaluationCount: 10, MaxSampleCount: 20, UpdateRate: 1, MaxKLDivergence: 1})
	if err := f.Init(rigid.NewState(1)); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if err := f.Init(rigid.NewState(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.ParticleCount(); got != 10 {
		t.Fatalf("initial particle count: got %d want 10", got)
	}
}

func TestFilterParticleCountStaysBounded(t *testing.T) {
	params := TrackerParams{EvaluationCount: 40, MaxSampleCount: 200, UpdateRate: 1.0, MaxKLDivergence: 0.5}
	f, model, cam := buildTestFilter(t, 1, params)

	truth := rigid.FromPoses([]rigid.Pose{{Z: 1.0}})
	if err := f.Init(truth); err != nil {
		t.Fatalf("init: %v", err)
	}

	for i := 0; i < 40; i++ {
		frame := renderFrame(model, cam, truth, int64(i+1))
		est, err := f.Step(frame, 0.033)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if est.ParticleCount < params.EvaluationCount || est.ParticleCount > params.MaxSampleCount {
			t.Fatalf("step %d: particle count %d outside [%d, %d]",
				i, est.ParticleCount, params.EvaluationCount, params.MaxSampleCount)
		}
		if est.ESS <= 0 || est.ESS > float64(est.ParticleCount)+1e-9 {
			t.Fatalf("step %d: ESS %v outside (0, count=%d]", i, est.ESS, est.ParticleCount)
		}
		if est.KLDivergence < 0 {
			t.Fatalf("step %d: negative KL divergence %v", i, est.KLDivergence)
		}
	}
}

func TestFilterConvergesOnStaticTarget(t *testing.T) {
	params := TrackerParams{EvaluationCount: 80, MaxSampleCount: 400, UpdateRate: 1.0, MaxKLDivergence: 1.0}
	f, model, cam := buildTestFilter(t, 1, params)

	truth := rigid.FromPoses([]rigid.Pose{{X: 0.02, Z: 1.0}})
	// Start the filter slightly off the true pose.
	start := rigid.FromPoses([]rigid.Pose{{Z: 1.03}})
	if err := f.Init(start); err != nil {
		t.Fatalf("init: %v", err)
	}

	var last Estimate
	for i := 0; i < 60; i++ {
		frame := renderFrame(model, cam, truth, int64(i+1))
		est, err := f.Step(frame, 0.033)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		last = est
	}

	got := last.Poses[0]
	want := truth.PoseAt(0)
	dist := math.Sqrt((got.X-want.X)*(got.X-want.X) +
		(got.Y-want.Y)*(got.Y-want.Y) +
		(got.Z-want.Z)*(got.Z-want.Z))
	if dist > 0.02 {
		t.Fatalf("filter did not converge: estimate %+v, truth %+v, error %v m", got, want, dist)
	}
}

func TestFilterEstimateShape(t *testing.T) {
	f, model, cam := buildTestFilter(t, 2, TrackerParams{EvaluationCount: 30, MaxSampleCount: 120, UpdateRate: 1, MaxKLDivergence: 1})

	truth := rigid.FromPoses([]rigid.Pose{{Z: 1.0}, {X: 0.3, Z: 1.2}})
	if err := f.Init(truth); err != nil {
		t.Fatalf("init: %v", err)
	}
	frame := renderFrame(model, cam, truth, 42)
	est, err := f.Step(frame, 0.1)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if est.TimestampNanos != 42 {
		t.Fatalf("timestamp not propagated: %d", est.TimestampNanos)
	}
	if len(est.Poses) != 2 {
		t.Fatalf("expected 2 poses, got %d", len(est.Poses))
	}
	if len(est.State) != 2*rigid.BodyDoF {
		t.Fatalf("expected state dimension %d, got %d", 2*rigid.BodyDoF, len(est.State))
	}
	if len(est.Blocks) != 2 {
		t.Fatalf("expected telemetry for 2 blocks, got %d", len(est.Blocks))
	}
	for i, b := range est.Blocks {
		if b.Block != i {
			t.Fatalf("telemetry block order: got %d at position %d", b.Block, i)
		}
		if b.ParticleCount < 30 || b.ParticleCount > 120 {
			t.Fatalf("telemetry particle count out of bounds: %+v", b)
		}
	}
}

func TestFilterNilFrame(t *testing.T) {
	f, _, _ := buildTestFilter(t, 1, TrackerParams{EvaluationCount: 10, MaxSampleCount: 20, UpdateRate: 1, MaxKLDivergence: 1})
	if err := f.Init(rigid.NewState(1)); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := f.Step(nil, 0.1); err == nil {
		t.Fatal("expected error for nil frame")
	}
}

func TestSetAdaptiveClampsInvalidValues(t *testing.T) {
	f, _, _ := buildTestFilter(t, 1, TrackerParams{EvaluationCount: 10, MaxSampleCount: 20, UpdateRate: 0.8, MaxKLDivergence: 0.5})

	f.SetAdaptive(AdaptiveParams{UpdateRate: 2.0, MaxKLDivergence: -1})
	got := f.Adaptive()
	if got.UpdateRate != 0.8 || got.MaxKLDivergence != 0.5 {
		t.Fatalf("invalid values not clamped back: %+v", got)
	}

	f.SetAdaptive(AdaptiveParams{UpdateRate: 0.5, MaxKLDivergence: 0.2})
	got = f.Adaptive()
	if got.UpdateRate != 0.5 || got.MaxKLDivergence != 0.2 {
		t.Fatalf("valid values not applied: %+v", got)
	}
}

func TestKLDivergence(t *testing.T) {
	uniform := []float64{0.25, 0.25, 0.25, 0.25}
	if kl := klDivergence(uniform, uniform); kl != 0 {
		t.Fatalf("KL of identical distributions: got %v want 0", kl)
	}

	peaked := []float64{0.97, 0.01, 0.01, 0.01}
	if kl := klDivergence(peaked, uniform); kl <= 0 {
		t.Fatalf("KL of diverged distributions must be positive, got %v", kl)
	}

	// Zero prior mass with posterior mass is floored, not +Inf.
	if kl := klDivergence([]float64{1, 0}, []float64{0, 1}); math.IsInf(kl, 1) {
		t.Fatal("KL must stay finite under zero prior mass")
	}
}

func TestEffectiveSampleSize(t *testing.T) {
	if got := effectiveSampleSize([]float64{0.25, 0.25, 0.25, 0.25}); math.Abs(got-4) > 1e-12 {
		t.Fatalf("uniform ESS: got %v want 4", got)
	}
	if got := effectiveSampleSize([]float64{1, 0, 0, 0}); math.Abs(got-1) > 1e-12 {
		t.Fatalf("degenerate ESS: got %v want 1", got)
	}
	if got := effectiveSampleSize(nil); got != 0 {
		t.Fatalf("empty ESS: got %v want 0", got)
	}
}
