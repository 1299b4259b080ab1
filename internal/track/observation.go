package track

import (
	"fmt"
	"math"

	"github.com/banshee-data/depthtrack/internal/rigid"
)

// Internal likelihood floor constants — not user-tunable.
const (
	// minDepthSigma guards the Gaussian residual term against a zero or
	// negative configured sigma.
	minDepthSigma = 1e-4
	// occludedLogLik is the per-point log-likelihood charged when a model
	// point projects outside the frame or onto a missing return. It equals
	// a mild outlier penalty rather than -Inf so partial occlusion does
	// not annihilate a hypothesis.
	occludedLogLik = -3.0
)

// ObservationModel scores how well a hypothesised joint state explains a
// depth observation. Exactly one of two variants exists per tracker —
// default host-compute or accelerated — chosen at build time. The filter
// owns the model exclusively; Close releases any backend resources.
type ObservationModel interface {
	// Evaluate returns the log-likelihood of the frame given the state.
	Evaluate(state rigid.State, frame *Frame) float64
	// Backend reports which compute backend the model runs on.
	Backend() Backend
	// Close releases backend resources. Idempotent.
	Close() error
}

// NewObservationModel constructs the likelihood evaluator for the selected
// backend. The default backend always succeeds given a valid model and
// camera. Requesting the accelerated backend from a binary built without
// the "gpu" tag fails with ErrBackendUnavailable before any resource is
// allocated; with the tag present the accelerated evaluator is constructed
// with the same parameters. Ownership of any backend resources transfers
// to the returned model.
func NewObservationModel(useAccelerated bool, model *ObjectModel, cam CameraData, p ObservationParams) (ObservationModel, error) {
	if useAccelerated {
		return newAcceleratedObservationModel(model, cam, p)
	}
	return newHostObservationModel(model, cam, p)
}

// hostObservationModel is the default backend: a single-threaded projective
// depth likelihood over the object model's sample points.
type hostObservationModel struct {
	eval *depthEvaluator
}

func newHostObservationModel(model *ObjectModel, cam CameraData, p ObservationParams) (*hostObservationModel, error) {
	eval, err := newDepthEvaluator(model, cam, p)
	if err != nil {
		return nil, err
	}
	return &hostObservationModel{eval: eval}, nil
}

func (m *hostObservationModel) Evaluate(state rigid.State, frame *Frame) float64 {
	total := 0.0
	for body := 0; body < m.eval.bodies(); body++ {
		total += m.eval.bodyLogLik(state.PoseAt(body), body, frame)
	}
	return total
}

func (m *hostObservationModel) Backend() Backend { return BackendDefault }
func (m *hostObservationModel) Close() error     { return nil }

// depthEvaluator holds the projection and residual-model state shared by
// both backends. It projects body-frame sample points through a
// hypothesised pose and the camera intrinsics, then scores the predicted
// depth against the observed depth with a Gaussian-plus-uniform-tail
// mixture.
type depthEvaluator struct {
	model *ObjectModel
	cam   CameraData

	sigma      float64
	logGauss   float64 // log of the Gaussian normaliser times (1-tail)
	tailDens   float64 // uniform tail density times tail weight
	downsample int
}

func newDepthEvaluator(model *ObjectModel, cam CameraData, p ObservationParams) (*depthEvaluator, error) {
	if model == nil || model.Bodies() == 0 {
		return nil, fmt.Errorf("observation model: object model holds no bodies")
	}
	if err := cam.Validate(); err != nil {
		return nil, fmt.Errorf("observation model: %w", err)
	}
	sigma := p.DepthSigmaMeters
	if sigma < minDepthSigma {
		sigma = minDepthSigma
	}
	maxDepth := p.MaxDepthMeters
	if maxDepth <= 0 {
		maxDepth = 10
	}
	tail := p.TailWeight
	if tail < 0 {
		tail = 0
	}
	if tail >= 1 {
		tail = 0.99
	}
	return &depthEvaluator{
		model:      model,
		cam:        cam,
		sigma:      sigma,
		logGauss:   math.Log((1 - tail) / (sigma * math.Sqrt(2*math.Pi))),
		tailDens:   tail / maxDepth,
		downsample: cam.DownsampleFactor,
	}, nil
}

func (e *depthEvaluator) bodies() int { return e.model.Bodies() }

// bodyLogLik scores one body's sample points under the given pose. The
// camera sits at the origin looking down +Z.
func (e *depthEvaluator) bodyLogLik(pose rigid.Pose, body int, frame *Frame) float64 {
	points := e.model.BodyPoints[body]
	total := 0.0
	scored := 0
	for i := 0; i < len(points); i += e.downsample {
		w := pose.TransformPoint(points[i])
		z := w[2]
		if z <= 0 {
			total += occludedLogLik
			scored++
			continue
		}
		u := int(e.cam.FocalX*w[0]/z + e.cam.CenterX)
		v := int(e.cam.FocalY*w[1]/z + e.cam.CenterY)
		observed, ok := frame.At(u, v)
		if !ok {
			total += occludedLogLik
			scored++
			continue
		}
		residual := float64(observed) - z
		lik := math.Exp(e.logGauss-residual*residual/(2*e.sigma*e.sigma)) + e.tailDens
		if lik < math.SmallestNonzeroFloat64 {
			// A zero tail weight with a far-off residual underflows; clamp
			// so one pixel cannot drive the log-likelihood to -Inf.
			lik = math.SmallestNonzeroFloat64
		}
		total += math.Log(lik)
		scored++
	}
	if scored == 0 {
		return occludedLogLik
	}
	// Normalise by scored point count so likelihood magnitudes are
	// comparable across bodies with different sampling densities.
	return total / float64(scored)
}
