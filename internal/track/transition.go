package track

import (
	"math"
	"sync"

	"github.com/banshee-data/depthtrack/internal/rigid"
)

// TransitionModel is a stochastic state-transition function. Propagate
// advances the coordinates of one sampling block of the joint state in
// place by a step of length dt seconds, holding all other coordinates
// fixed. Implementations draw their own process noise; the filter owns the
// model exclusively once built, so implementations need not be safe for
// concurrent Propagate calls on the same block.
type TransitionModel interface {
	Propagate(state rigid.State, block SamplingBlock, dt float64)
}

// NewTransitionModel constructs the transition model designated active by
// the configuration. Selection between the kinematic object model and the
// Brownian random walk is a configuration-time decision; there is no
// failure path — parameter validation happens in the configuration loader.
func NewTransitionModel(cfg Config) TransitionModel {
	if cfg.ActiveTransition == TransitionBrownian {
		return NewBrownianTransition(cfg.BrownianTransition, cfg.Seed)
	}
	return NewObjectTransition(cfg.ObjectTransition, cfg.Seed)
}

// BrownianTransition is the simple random-walk motion model: every block
// coordinate receives an independent Gaussian increment. Position
// coordinates use the linear sigma, orientation coordinates the angular
// sigma. The walk happens directly on the axis-angle chart, which is the
// cheap, model-free prior for slow or erratically moving targets.
type BrownianTransition struct {
	noise *rigid.GaussianNoise
	buf   [rigid.BodyDoF]float64
}

// NewBrownianTransition builds a random-walk model with the given
// parameters and deterministic seed.
func NewBrownianTransition(p BrownianTransitionParams, seed uint64) *BrownianTransition {
	return &BrownianTransition{
		noise: rigid.NewGaussianNoise(p.LinearSigma, p.AngularSigma, seed),
	}
}

// Propagate adds one random-walk increment to every index in the block.
func (m *BrownianTransition) Propagate(state rigid.State, block SamplingBlock, dt float64) {
	sqrtDt := math.Sqrt(dt)
	n := m.buf[:]
	for off := 0; off < len(block); off += rigid.BodyDoF {
		width := len(block) - off
		if width > rigid.BodyDoF {
			width = rigid.BodyDoF
		}
		m.noise.SampleBlock(n, sqrtDt)
		for i := 0; i < width; i++ {
			state[block[off+i]] += n[i]
		}
	}
}

// ObjectTransition is the rigid-body kinematic motion model. Each body
// block advances by a damped commanded twist plus Gaussian process noise;
// orientation increments are composed through quaternions so hypotheses
// stay on SO(3) instead of drifting off the axis-angle chart.
type ObjectTransition struct {
	params ObjectTransitionParams
	noise  *rigid.GaussianNoise

	mu sync.RWMutex
	// control holds the commanded twist per body:
	// [vx, vy, vz, wx, wy, wz] in body units per second.
	control map[int][rigid.BodyDoF]float64
}

// NewObjectTransition builds a kinematic model with the given parameters
// and deterministic seed. Commanded twists default to zero for every body.
func NewObjectTransition(p ObjectTransitionParams, seed uint64) *ObjectTransition {
	return &ObjectTransition{
		params:  p,
		noise:   rigid.NewGaussianNoise(p.LinearSigma, p.AngularSigma, seed),
		control: make(map[int][rigid.BodyDoF]float64),
	}
}

// SetControl sets the commanded twist for one body. Safe to call while the
// filter is stepping; the twist takes effect on the next Propagate.
func (m *ObjectTransition) SetControl(body int, twist [rigid.BodyDoF]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.control[body] = twist
}

// Propagate advances one body block. The block must cover exactly one
// body's six coordinates in order, which is what SamplingBlocks produces
// for rigid-body tracking.
func (m *ObjectTransition) Propagate(state rigid.State, block SamplingBlock, dt float64) {
	body := block[0] / rigid.BodyDoF

	m.mu.RLock()
	twist := m.control[body]
	m.mu.RUnlock()

	damping := 1 - m.params.VelocityDamping
	sqrtDt := math.Sqrt(dt)

	var n [rigid.BodyDoF]float64
	m.noise.SampleBlock(n[:], sqrtDt)

	// Position: commanded linear velocity (damped) plus noise.
	for i := 0; i < 3; i++ {
		state[block[i]] += twist[i]*damping*dt + n[i]
	}

	// Orientation: compose the angular increment on SO(3).
	r := [3]float64{state[block[3]], state[block[4]], state[block[5]]}
	d := [3]float64{
		twist[3]*damping*dt + n[3],
		twist[4]*damping*dt + n[4],
		twist[5]*damping*dt + n[5],
	}
	r = rigid.ComposeRotVec(r, d)
	state[block[3]], state[block[4]], state[block[5]] = r[0], r[1], r[2]
}
