package track

import (
	"github.com/banshee-data/depthtrack/internal/rigid"
)

// testCamera returns small intrinsics so synthetic frames stay cheap.
func testCamera() CameraData {
	return CameraData{
		Width:            160,
		Height:           120,
		FocalX:           120,
		FocalY:           120,
		CenterX:          79.5,
		CenterY:          59.5,
		DownsampleFactor: 1,
	}
}

// testObjectModel builds an object model of `bodies` identical boxes.
func testObjectModel(bodies int) *ObjectModel {
	points := BoxModel(0.2, 0.2, 0.2, 4)
	model := &ObjectModel{BodyPoints: make([][][3]float64, bodies)}
	for i := range model.BodyPoints {
		model.BodyPoints[i] = points
	}
	return model
}

// renderFrame synthesises a depth frame of the model at the given joint
// state through the same pinhole projection the likelihood uses, keeping
// the nearest return per pixel.
func renderFrame(model *ObjectModel, cam CameraData, state rigid.State, ts int64) *Frame {
	frame := &Frame{
		TimestampNanos: ts,
		Width:          cam.Width,
		Height:         cam.Height,
		Depth:          make([]float32, cam.Width*cam.Height),
	}
	for body := 0; body < model.Bodies(); body++ {
		pose := state.PoseAt(body)
		for _, p := range model.BodyPoints[body] {
			w := pose.TransformPoint(p)
			if w[2] <= 0 {
				continue
			}
			u := int(cam.FocalX*w[0]/w[2] + cam.CenterX)
			v := int(cam.FocalY*w[1]/w[2] + cam.CenterY)
			if u < 0 || v < 0 || u >= cam.Width || v >= cam.Height {
				continue
			}
			idx := v*cam.Width + u
			d := float32(w[2])
			if frame.Depth[idx] == 0 || d < frame.Depth[idx] {
				frame.Depth[idx] = d
			}
		}
	}
	return frame
}

// testConfig returns a small but functional tracker configuration for
// `bodies` boxes at the given depth.
func testConfig(bodies int) Config {
	names := make([]string, bodies)
	for i := range names {
		names[i] = "body.json"
	}
	return Config{
		Default:     TrackerParams{EvaluationCount: 50, MaxSampleCount: 400, UpdateRate: 1.0, MaxKLDivergence: 1.0},
		Accelerated: TrackerParams{EvaluationCount: 100, MaxSampleCount: 800, UpdateRate: 1.0, MaxKLDivergence: 1.0},
		Object:      ResourceIdentifier{Directory: "testdata", Bodies: names},
		Observation: ObservationParams{DepthSigmaMeters: 0.02, TailWeight: 0.02, MaxDepthMeters: 10},
		ObjectTransition: ObjectTransitionParams{
			LinearSigma:     0.01,
			AngularSigma:    0.02,
			VelocityDamping: 0.1,
		},
		BrownianTransition: BrownianTransitionParams{LinearSigma: 0.01, AngularSigma: 0.02},
		ActiveTransition:   TransitionObject,
		Seed:               1,
	}
}
