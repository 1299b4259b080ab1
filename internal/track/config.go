package track

import "fmt"

// Backend identifies the compute backend an observation model runs on.
type Backend string

const (
	// BackendDefault is the host-compute likelihood evaluator, always
	// available.
	BackendDefault Backend = "default"
	// BackendAccelerated is the parallel evaluator compiled in with the
	// "gpu" build tag.
	BackendAccelerated Backend = "accelerated"
)

// TransitionKind selects which transition-model parameter set is active.
// The choice is made at configuration time and is not runtime-switchable.
type TransitionKind string

const (
	// TransitionObject is the rigid-body kinematic model: commanded twist
	// plus damped velocity, orientation perturbations composed on SO(3).
	TransitionObject TransitionKind = "object"
	// TransitionBrownian is the coordinate-wise random walk.
	TransitionBrownian TransitionKind = "brownian"
)

// TrackerParams is one backend's filter parameter set.
type TrackerParams struct {
	// EvaluationCount is the number of particles evaluated per step and
	// the lower bound of the adaptive population. Must be > 0.
	EvaluationCount int
	// MaxSampleCount is the upper bound of the adaptively grown particle
	// population. Must be >= EvaluationCount.
	MaxSampleCount int
	// UpdateRate blends new evidence into particle weights, in (0, 1].
	UpdateRate float64
	// MaxKLDivergence is the divergence bound above which the filter grows
	// its particle population. Must be > 0.
	MaxKLDivergence float64
}

// Validate checks the parameter invariants.
func (p TrackerParams) Validate() error {
	if p.EvaluationCount <= 0 {
		return fmt.Errorf("tracker params: evaluation count must be positive, got %d", p.EvaluationCount)
	}
	if p.MaxSampleCount < p.EvaluationCount {
		return fmt.Errorf("tracker params: max sample count %d below evaluation count %d",
			p.MaxSampleCount, p.EvaluationCount)
	}
	if p.UpdateRate <= 0 || p.UpdateRate > 1 {
		return fmt.Errorf("tracker params: update rate must be in (0, 1], got %f", p.UpdateRate)
	}
	if p.MaxKLDivergence <= 0 {
		return fmt.Errorf("tracker params: max KL divergence must be positive, got %f", p.MaxKLDivergence)
	}
	return nil
}

// BrownianTransitionParams parameterise the random-walk transition model.
type BrownianTransitionParams struct {
	LinearSigma  float64 // position random-walk std-dev (m/sqrt(s))
	AngularSigma float64 // orientation random-walk std-dev (rad/sqrt(s))
}

// ObjectTransitionParams parameterise the rigid-body kinematic model.
type ObjectTransitionParams struct {
	LinearSigma     float64 // position process noise std-dev (m/sqrt(s))
	AngularSigma    float64 // orientation process noise std-dev (rad/sqrt(s))
	VelocityDamping float64 // per-step damping of the commanded twist, in [0, 1]
}

// ObservationParams parameterise the depth likelihood.
type ObservationParams struct {
	// DepthSigmaMeters is the std-dev of the per-pixel depth residual model.
	DepthSigmaMeters float64
	// TailWeight is the mixture weight of the uniform outlier tail, in [0, 1).
	// It bounds how hard a single bad pixel can punish a hypothesis.
	TailWeight float64
	// MaxDepthMeters is the sensor range; residuals and the uniform tail
	// density are defined over [0, MaxDepthMeters].
	MaxDepthMeters float64
}

// Config is the immutable tracker configuration. It is created once at
// startup (normally from the tuning file, see internal/config) and never
// mutated after Builder.Build consumes it.
type Config struct {
	// UseAcceleratedBackend selects the observation backend.
	UseAcceleratedBackend bool

	// Default and Accelerated hold per-backend filter parameters; the set
	// matching UseAcceleratedBackend is active.
	Default     TrackerParams
	Accelerated TrackerParams

	// Object names the geometry resources of the tracked bodies.
	Object ResourceIdentifier

	// Observation parameterises the depth likelihood.
	Observation ObservationParams

	// Exactly one of the two transition parameter sets is active,
	// designated by ActiveTransition.
	ObjectTransition   ObjectTransitionParams
	BrownianTransition BrownianTransitionParams
	ActiveTransition   TransitionKind

	// Seed makes particle propagation and resampling reproducible.
	Seed uint64
}

// ActiveParams returns the filter parameter set matching the backend flag.
func (c Config) ActiveParams() TrackerParams {
	if c.UseAcceleratedBackend {
		return c.Accelerated
	}
	return c.Default
}
