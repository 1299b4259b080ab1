package track

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/depthtrack/internal/rigid"
)

// Adaptive-loop constants — not user-tunable.
const (
	// essResampleFraction triggers resampling when the effective sample
	// size drops below this fraction of the current particle count.
	essResampleFraction = 0.5
	// shrinkKLFraction of the divergence bound: below it the population
	// decays back toward the evaluation count, so a step that needed extra
	// particles does not pin the filter at the ceiling forever.
	shrinkKLFraction = 0.25
	// minStepDt floors the step length so a repeated timestamp cannot
	// produce a zero-variance prediction.
	minStepDt = 1e-3
)

// AdaptiveParams is the runtime-tunable subset of the filter parameters.
// Structural parameters (particle count bounds, block layout, backend) are
// fixed at build time.
type AdaptiveParams struct {
	// UpdateRate blends new evidence into particle weights, in (0, 1].
	UpdateRate float64 `json:"update_rate"`
	// MaxKLDivergence is the weight-distribution divergence bound above
	// which the particle population grows.
	MaxKLDivergence float64 `json:"max_kl_divergence"`
}

// BlockTelemetry records the adaptive-loop outcome of one sampling block
// within a step.
type BlockTelemetry struct {
	Block         int     `json:"block"`
	ParticleCount int     `json:"particle_count"`
	ESS           float64 `json:"ess"`
	KLDivergence  float64 `json:"kl_divergence"`
	Resampled     bool    `json:"resampled"`
}

// Estimate is the posterior point estimate after one full block pass.
type Estimate struct {
	TimestampNanos int64            `json:"timestamp_nanos"`
	State          rigid.State      `json:"state"`
	Poses          []rigid.Pose     `json:"poses"`
	ParticleCount  int              `json:"particle_count"`
	ESS            float64          `json:"ess"`
	KLDivergence   float64          `json:"kl_divergence"`
	Resampled      bool             `json:"resampled"`
	Blocks         []BlockTelemetry `json:"blocks,omitempty"`
}

// Filter is the adaptive Rao-Blackwellised coordinate particle filter. It
// holds a weighted particle population over the joint state, partitioned
// into sampling blocks, and adapts the population size per block step
// based on the divergence between pre- and post-update weight
// distributions.
//
// Particles live in a flat pre-allocated arena sized for MaxSampleCount,
// so block iteration and resampling are allocation-free per step.
// A Filter is not safe for concurrent use; the owning Tracker serialises
// access.
type Filter struct {
	transition  TransitionModel
	observation ObservationModel
	blocks      []SamplingBlock
	stateDim    int

	evaluationCount int
	maxSampleCount  int
	adaptive        AdaptiveParams

	count       int
	states      []float64 // particle arena: particle i at [i*stateDim, (i+1)*stateDim)
	resampleBuf []float64
	logW        []float64
	prior       []float64
	post        []float64
	poseBuf     []rigid.Pose

	rng         *rand.Rand
	initialised bool
}

// NewFilter assembles a filter from already-constructed models, sampling
// blocks, and the active parameter set. The blocks must be the exact
// disjoint contiguous cover produced by SamplingBlocks; the filter checks
// the cover invariant once here so every later block pass can trust it.
func NewFilter(transition TransitionModel, observation ObservationModel, blocks []SamplingBlock, params TrackerParams, seed uint64) (*Filter, error) {
	if transition == nil {
		return nil, fmt.Errorf("filter: transition model is nil")
	}
	if observation == nil {
		return nil, fmt.Errorf("filter: observation model is nil")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("filter: no sampling blocks")
	}
	next := 0
	for b, block := range blocks {
		for _, idx := range block {
			if idx != next {
				return nil, fmt.Errorf("filter: sampling block %d breaks the contiguous cover at index %d (want %d)", b, idx, next)
			}
			next++
		}
	}
	stateDim := next

	f := &Filter{
		transition:      transition,
		observation:     observation,
		blocks:          blocks,
		stateDim:        stateDim,
		evaluationCount: params.EvaluationCount,
		maxSampleCount:  params.MaxSampleCount,
		adaptive: AdaptiveParams{
			UpdateRate:      params.UpdateRate,
			MaxKLDivergence: params.MaxKLDivergence,
		},
		states:      make([]float64, params.MaxSampleCount*stateDim),
		resampleBuf: make([]float64, params.MaxSampleCount*stateDim),
		logW:        make([]float64, params.MaxSampleCount),
		prior:       make([]float64, params.MaxSampleCount),
		post:        make([]float64, params.MaxSampleCount),
		poseBuf:     make([]rigid.Pose, params.MaxSampleCount),
		rng:         rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb)),
	}
	return f, nil
}

// StateDim returns the joint state dimension the filter operates on.
func (f *Filter) StateDim() int { return f.stateDim }

// Blocks returns a copy of the sampling block partition.
func (f *Filter) Blocks() []SamplingBlock {
	out := make([]SamplingBlock, len(f.blocks))
	for i, b := range f.blocks {
		out[i] = append(SamplingBlock(nil), b...)
	}
	return out
}

// ParticleCount returns the current adaptive particle count.
func (f *Filter) ParticleCount() int { return f.count }

// Adaptive returns the current runtime-tunable parameters.
func (f *Filter) Adaptive() AdaptiveParams { return f.adaptive }

// SetAdaptive replaces the runtime-tunable parameters, clamping them to
// valid ranges.
func (f *Filter) SetAdaptive(p AdaptiveParams) {
	if p.UpdateRate <= 0 || p.UpdateRate > 1 {
		p.UpdateRate = f.adaptive.UpdateRate
	}
	if p.MaxKLDivergence <= 0 {
		p.MaxKLDivergence = f.adaptive.MaxKLDivergence
	}
	f.adaptive = p
}

// Init seeds the particle population at the given initial joint state with
// uniform weights and resets the count to the evaluation count. The first
// Step's prediction spreads the population with process noise.
func (f *Filter) Init(initial rigid.State) error {
	if len(initial) != f.stateDim {
		return fmt.Errorf("filter: initial state has dimension %d, want %d", len(initial), f.stateDim)
	}
	f.count = f.evaluationCount
	for i := 0; i < f.count; i++ {
		copy(f.particle(i), initial)
		f.logW[i] = 0
	}
	f.initialised = true
	return nil
}

func (f *Filter) particle(i int) []float64 {
	return f.states[i*f.stateDim : (i+1)*f.stateDim]
}

// Step runs one full block-sequential pass against the observation and
// returns the posterior point estimate. For each sampling block, in block
// order: predict the block's coordinates forward with the transition
// model, reweight every particle with the observation likelihood, grow or
// shrink the particle count when the weight divergence crosses the bound
// (always within [evaluation_count, max_sample_count]), and resample when
// the effective sample size collapses.
func (f *Filter) Step(frame *Frame, dt float64) (Estimate, error) {
	if !f.initialised {
		return Estimate{}, fmt.Errorf("filter: Step before Init")
	}
	if frame == nil {
		return Estimate{}, fmt.Errorf("filter: nil observation frame")
	}
	if dt < minStepDt {
		dt = minStepDt
	}

	var lastKL float64
	var resampled bool
	telemetry := make([]BlockTelemetry, 0, len(f.blocks))

	for blockIdx, block := range f.blocks {
		// (a) Predict the block's coordinates, other blocks held fixed.
		for i := 0; i < f.count; i++ {
			f.transition.Propagate(f.particle(i), block, dt)
		}

		prior := f.normalise(f.prior)

		// (b) Reweight with the observation likelihood, blended by the
		// update rate.
		for i := 0; i < f.count; i++ {
			f.logW[i] += f.adaptive.UpdateRate * f.observation.Evaluate(f.particle(i), frame)
		}
		post := f.normalise(f.post)

		// (c) Divergence between pre- and post-update weights drives the
		// particle count for the next block/step.
		kl := klDivergence(post, prior)
		lastKL = kl
		target := f.count
		switch {
		case kl > f.adaptive.MaxKLDivergence:
			target = min(f.count*2, f.maxSampleCount)
		case kl < f.adaptive.MaxKLDivergence*shrinkKLFraction:
			target = max(f.count/2, f.evaluationCount)
		}

		// (d) Resample on ESS collapse or whenever the population size
		// changes.
		ess := effectiveSampleSize(post)
		blockResampled := target != f.count || ess < essResampleFraction*float64(f.count)
		if blockResampled {
			f.resample(target, post)
			resampled = true
		}
		telemetry = append(telemetry, BlockTelemetry{
			Block:         blockIdx,
			ParticleCount: f.count,
			ESS:           ess,
			KLDivergence:  kl,
			Resampled:     blockResampled,
		})
	}

	post := f.normalise(f.post)
	est := Estimate{
		TimestampNanos: frame.TimestampNanos,
		ParticleCount:  f.count,
		ESS:            effectiveSampleSize(post),
		KLDivergence:   lastKL,
		Resampled:      resampled,
		Blocks:         telemetry,
	}

	// Point estimate: weighted mean position, chordal mean orientation,
	// per body.
	bodies := f.stateDim / rigid.BodyDoF
	poses := make([]rigid.Pose, bodies)
	for b := 0; b < bodies; b++ {
		for i := 0; i < f.count; i++ {
			f.poseBuf[i] = rigid.State(f.particle(i)).PoseAt(b)
		}
		poses[b] = rigid.MeanPose(f.poseBuf[:f.count], post)
	}
	est.Poses = poses
	est.State = rigid.FromPoses(poses)
	return est, nil
}

// normalise converts the current log-weights into normalised linear
// weights written into dst[:count], returning the slice.
func (f *Filter) normalise(dst []float64) []float64 {
	lse := floats.LogSumExp(f.logW[:f.count])
	for i := 0; i < f.count; i++ {
		dst[i] = math.Exp(f.logW[i] - lse)
	}
	return dst[:f.count]
}

// resample draws `target` particles from the current population with
// systematic (low-variance) resampling, then resets weights to uniform.
func (f *Filter) resample(target int, weights []float64) {
	u := f.rng.Float64() / float64(target)
	cum := weights[0]
	src := 0
	for j := 0; j < target; j++ {
		for cum < u && src < f.count-1 {
			src++
			cum += weights[src]
		}
		copy(f.resampleBuf[j*f.stateDim:(j+1)*f.stateDim], f.particle(src))
		u += 1 / float64(target)
	}
	f.states, f.resampleBuf = f.resampleBuf, f.states
	f.count = target
	for i := 0; i < f.count; i++ {
		f.logW[i] = 0
	}
}

// Close releases the observation model's backend resources.
func (f *Filter) Close() error {
	return f.observation.Close()
}

// klDivergence computes the discrete Kullback-Leibler divergence
// D(post || prior) over matched particle indices. Indices with zero
// posterior mass contribute nothing; zero prior mass with non-zero
// posterior mass is guarded with a floor rather than returning +Inf.
func klDivergence(post, prior []float64) float64 {
	const floor = 1e-12
	kl := 0.0
	for i := range post {
		p := post[i]
		if p <= 0 {
			continue
		}
		q := prior[i]
		if q < floor {
			q = floor
		}
		kl += p * math.Log(p/q)
	}
	if kl < 0 {
		// Rounding can push a near-identical pair slightly negative.
		kl = 0
	}
	return kl
}

// effectiveSampleSize computes 1/Σw² over normalised weights.
func effectiveSampleSize(weights []float64) float64 {
	sumSq := 0.0
	for _, w := range weights {
		sumSq += w * w
	}
	if sumSq == 0 {
		return 0
	}
	return 1 / sumSq
}
