package track

import (
	"fmt"

	"github.com/banshee-data/depthtrack/internal/rigid"
)

// Builder turns an immutable Config plus a sensor handle into a
// ready-to-run Tracker. It retains no mutable state across Build calls;
// every call performs the full factory sequence against the same inputs,
// so two Build calls with identical configuration and collaborator state
// produce structurally equivalent trackers.
type Builder struct {
	cfg    Config
	camera CameraData
	loader ModelLoader
}

// NewBuilder creates a tracker builder. The configuration is treated as
// immutable; the loader resolves the configured object resource.
func NewBuilder(cfg Config, camera CameraData, loader ModelLoader) *Builder {
	return &Builder{cfg: cfg, camera: camera, loader: loader}
}

// Build assembles the tracker:
//
//  1. load the object model for the configured resource identifier,
//  2. construct the active transition model,
//  3. construct the observation model for the configured backend,
//  4. partition the joint state into per-body sampling blocks,
//  5. select the active backend's filter parameters,
//  6. wire filter and tracker.
//
// Build either returns a fully-initialised tracker or fails atomically:
// observation-backend resources allocated in step 3 are released if a
// later step fails, and no partially-constructed tracker is ever
// returned. Loader errors and ErrBackendUnavailable propagate to the
// caller unchanged.
func (b *Builder) Build() (*Tracker, error) {
	if b.loader == nil {
		return nil, fmt.Errorf("build tracker: no object model loader")
	}

	objectModel, err := b.loader.Load(b.cfg.Object)
	if err != nil {
		return nil, err
	}

	transition := NewTransitionModel(b.cfg)

	observation, err := NewObservationModel(b.cfg.UseAcceleratedBackend, objectModel, b.camera, b.cfg.Observation)
	if err != nil {
		return nil, err
	}

	blocks, err := SamplingBlocks(objectModel.Bodies(), rigid.BodyDoF)
	if err != nil {
		observation.Close()
		return nil, err
	}

	params := b.cfg.ActiveParams()

	filter, err := NewFilter(transition, observation, blocks, params, b.cfg.Seed)
	if err != nil {
		observation.Close()
		return nil, err
	}

	return newTracker(filter, observation.Backend(), params), nil
}
