package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthtrack/internal/rigid"
)

// TestStepTelemetryAggregation tests the aggregate statistics a tracker
// accumulates across its lifetime.
func TestStepTelemetryAggregation(t *testing.T) {
	t.Run("fresh tracker reports zero steps", func(t *testing.T) {
		tracker, _, _ := buildTestTracker(t, 1)

		stats := tracker.Stats()
		assert.Zero(t, stats.Steps)
		assert.Zero(t, stats.Resamples)
		assert.Zero(t, stats.MeanESS)
	})

	t.Run("stats accumulate across steps", func(t *testing.T) {
		tracker, model, cam := buildTestTracker(t, 1)
		truth := rigid.FromPoses([]rigid.Pose{{Z: 1.0}})
		require.NoError(t, tracker.Init(truth))

		var essSum float64
		const steps = 8
		for i := 0; i < steps; i++ {
			frame := renderFrame(model, cam, truth, int64(i+1))
			est, err := tracker.Step(frame, timeAt(i))
			require.NoError(t, err)
			essSum += est.ESS
		}

		stats := tracker.Stats()
		assert.Equal(t, steps, stats.Steps)
		assert.InDelta(t, essSum/steps, stats.MeanESS, 1e-9)
		assert.GreaterOrEqual(t, stats.PeakParticleCount, stats.MinParticleCount)
		assert.GreaterOrEqual(t, stats.LastKLDivergence, 0.0)
	})

	t.Run("stats snapshot is stable across reads", func(t *testing.T) {
		tracker, model, cam := buildTestTracker(t, 1)
		truth := rigid.FromPoses([]rigid.Pose{{Z: 1.0}})
		require.NoError(t, tracker.Init(truth))

		frame := renderFrame(model, cam, truth, 1)
		_, err := tracker.Step(frame, timeAt(0))
		require.NoError(t, err)

		first := tracker.Stats()
		second := tracker.Stats()
		assert.Equal(t, first, second)
	})
}
