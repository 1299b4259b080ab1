// Package config loads the tracker tuning configuration. The schema is a
// single JSON file with optional (pointer-typed) fields: fields omitted
// from the file fall back to canonical defaults via the Get* accessors, so
// partial configs are safe for experiments and deployments alike.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/depthtrack/internal/track"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root tracker tuning configuration. The same
// JSON schema serves startup configuration and the /api/tracker/params
// runtime-tuning endpoint (for the runtime-tunable subset).
type TuningConfig struct {
	// Backend selection
	UseAcceleratedBackend *bool `json:"use_accelerated_backend,omitempty"`

	// Per-backend filter parameters
	DefaultEvaluationCount     *int     `json:"default_evaluation_count,omitempty"`
	DefaultMaxSampleCount      *int     `json:"default_max_sample_count,omitempty"`
	DefaultUpdateRate          *float64 `json:"default_update_rate,omitempty"`
	DefaultMaxKLDivergence     *float64 `json:"default_max_kl_divergence,omitempty"`
	AcceleratedEvaluationCount *int     `json:"accelerated_evaluation_count,omitempty"`
	AcceleratedMaxSampleCount  *int     `json:"accelerated_max_sample_count,omitempty"`
	AcceleratedUpdateRate      *float64 `json:"accelerated_update_rate,omitempty"`
	AcceleratedMaxKLDivergence *float64 `json:"accelerated_max_kl_divergence,omitempty"`

	// Object resource identifier
	ObjectDirectory *string  `json:"object_directory,omitempty"`
	ObjectBodies    []string `json:"object_bodies,omitempty"`

	// Observation model params
	DepthSigmaMeters *float64 `json:"depth_sigma_meters,omitempty"`
	TailWeight       *float64 `json:"tail_weight,omitempty"`
	MaxDepthMeters   *float64 `json:"max_depth_meters,omitempty"`

	// Transition model params (exactly one set is active)
	ActiveTransition      *string  `json:"active_transition,omitempty"` // "object" or "brownian"
	ObjectLinearSigma     *float64 `json:"object_linear_sigma,omitempty"`
	ObjectAngularSigma    *float64 `json:"object_angular_sigma,omitempty"`
	ObjectVelocityDamping *float64 `json:"object_velocity_damping,omitempty"`
	BrownianLinearSigma   *float64 `json:"brownian_linear_sigma,omitempty"`
	BrownianAngularSigma  *float64 `json:"brownian_angular_sigma,omitempty"`

	// Camera intrinsics
	CameraWidth            *int     `json:"camera_width,omitempty"`
	CameraHeight           *int     `json:"camera_height,omitempty"`
	CameraFocalX           *float64 `json:"camera_focal_x,omitempty"`
	CameraFocalY           *float64 `json:"camera_focal_y,omitempty"`
	CameraCenterX          *float64 `json:"camera_center_x,omitempty"`
	CameraCenterY          *float64 `json:"camera_center_y,omitempty"`
	CameraDownsampleFactor *int     `json:"camera_downsample_factor,omitempty"`

	// Reproducibility
	Seed *uint64 `json:"seed,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the max file size. Fields omitted
// from the JSON retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching the current directory and common parent
// directories. Panics if the file cannot be loaded; intended for test
// setup and binaries that have already validated config availability.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/track/
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that configured values satisfy the tracker invariants.
// Only set fields are checked; defaults are always valid.
func (c *TuningConfig) Validate() error {
	checkParams := func(name string, eval, maxCount *int, rate, kl *float64) error {
		if eval != nil && *eval <= 0 {
			return fmt.Errorf("%s_evaluation_count must be positive, got %d", name, *eval)
		}
		if maxCount != nil {
			lower := 1
			if eval != nil {
				lower = *eval
			}
			if *maxCount < lower {
				return fmt.Errorf("%s_max_sample_count must be >= evaluation count %d, got %d", name, lower, *maxCount)
			}
		}
		if rate != nil && (*rate <= 0 || *rate > 1) {
			return fmt.Errorf("%s_update_rate must be in (0, 1], got %f", name, *rate)
		}
		if kl != nil && *kl <= 0 {
			return fmt.Errorf("%s_max_kl_divergence must be positive, got %f", name, *kl)
		}
		return nil
	}
	if err := checkParams("default", c.DefaultEvaluationCount, c.DefaultMaxSampleCount,
		c.DefaultUpdateRate, c.DefaultMaxKLDivergence); err != nil {
		return err
	}
	if err := checkParams("accelerated", c.AcceleratedEvaluationCount, c.AcceleratedMaxSampleCount,
		c.AcceleratedUpdateRate, c.AcceleratedMaxKLDivergence); err != nil {
		return err
	}

	if c.ActiveTransition != nil {
		switch track.TransitionKind(*c.ActiveTransition) {
		case track.TransitionObject, track.TransitionBrownian:
		default:
			return fmt.Errorf("active_transition must be %q or %q, got %q",
				track.TransitionObject, track.TransitionBrownian, *c.ActiveTransition)
		}
	}

	if c.TailWeight != nil && (*c.TailWeight < 0 || *c.TailWeight >= 1) {
		return fmt.Errorf("tail_weight must be in [0, 1), got %f", *c.TailWeight)
	}
	if c.DepthSigmaMeters != nil && *c.DepthSigmaMeters <= 0 {
		return fmt.Errorf("depth_sigma_meters must be positive, got %f", *c.DepthSigmaMeters)
	}
	if c.CameraDownsampleFactor != nil && *c.CameraDownsampleFactor < 1 {
		return fmt.Errorf("camera_downsample_factor must be >= 1, got %d", *c.CameraDownsampleFactor)
	}

	return nil
}

// GetUseAcceleratedBackend returns the backend flag or the default.
func (c *TuningConfig) GetUseAcceleratedBackend() bool {
	if c.UseAcceleratedBackend == nil {
		return false // default: host backend
	}
	return *c.UseAcceleratedBackend
}

// GetDefaultParams returns the default-backend filter parameter set.
func (c *TuningConfig) GetDefaultParams() track.TrackerParams {
	p := track.TrackerParams{
		EvaluationCount: 100,
		MaxSampleCount:  1000,
		UpdateRate:      1.0,
		MaxKLDivergence: 1.0,
	}
	if c.DefaultEvaluationCount != nil {
		p.EvaluationCount = *c.DefaultEvaluationCount
	}
	if c.DefaultMaxSampleCount != nil {
		p.MaxSampleCount = *c.DefaultMaxSampleCount
	}
	if c.DefaultUpdateRate != nil {
		p.UpdateRate = *c.DefaultUpdateRate
	}
	if c.DefaultMaxKLDivergence != nil {
		p.MaxKLDivergence = *c.DefaultMaxKLDivergence
	}
	return p
}

// GetAcceleratedParams returns the accelerated-backend filter parameter
// set. The accelerated defaults evaluate more particles per step because
// evaluation cost is amortised across parallel lanes.
func (c *TuningConfig) GetAcceleratedParams() track.TrackerParams {
	p := track.TrackerParams{
		EvaluationCount: 200,
		MaxSampleCount:  2000,
		UpdateRate:      1.0,
		MaxKLDivergence: 1.0,
	}
	if c.AcceleratedEvaluationCount != nil {
		p.EvaluationCount = *c.AcceleratedEvaluationCount
	}
	if c.AcceleratedMaxSampleCount != nil {
		p.MaxSampleCount = *c.AcceleratedMaxSampleCount
	}
	if c.AcceleratedUpdateRate != nil {
		p.UpdateRate = *c.AcceleratedUpdateRate
	}
	if c.AcceleratedMaxKLDivergence != nil {
		p.MaxKLDivergence = *c.AcceleratedMaxKLDivergence
	}
	return p
}

// GetActiveTransition returns the active transition kind or the default.
func (c *TuningConfig) GetActiveTransition() track.TransitionKind {
	if c.ActiveTransition == nil {
		return track.TransitionObject // default
	}
	return track.TransitionKind(*c.ActiveTransition)
}

// GetObjectTransitionParams returns the kinematic transition parameters.
func (c *TuningConfig) GetObjectTransitionParams() track.ObjectTransitionParams {
	p := track.ObjectTransitionParams{
		LinearSigma:     0.02,
		AngularSigma:    0.05,
		VelocityDamping: 0.1,
	}
	if c.ObjectLinearSigma != nil {
		p.LinearSigma = *c.ObjectLinearSigma
	}
	if c.ObjectAngularSigma != nil {
		p.AngularSigma = *c.ObjectAngularSigma
	}
	if c.ObjectVelocityDamping != nil {
		p.VelocityDamping = *c.ObjectVelocityDamping
	}
	return p
}

// GetBrownianTransitionParams returns the random-walk transition parameters.
func (c *TuningConfig) GetBrownianTransitionParams() track.BrownianTransitionParams {
	p := track.BrownianTransitionParams{
		LinearSigma:  0.01,
		AngularSigma: 0.02,
	}
	if c.BrownianLinearSigma != nil {
		p.LinearSigma = *c.BrownianLinearSigma
	}
	if c.BrownianAngularSigma != nil {
		p.AngularSigma = *c.BrownianAngularSigma
	}
	return p
}

// GetObservationParams returns the depth likelihood parameters.
func (c *TuningConfig) GetObservationParams() track.ObservationParams {
	p := track.ObservationParams{
		DepthSigmaMeters: 0.01,
		TailWeight:       0.02,
		MaxDepthMeters:   10,
	}
	if c.DepthSigmaMeters != nil {
		p.DepthSigmaMeters = *c.DepthSigmaMeters
	}
	if c.TailWeight != nil {
		p.TailWeight = *c.TailWeight
	}
	if c.MaxDepthMeters != nil {
		p.MaxDepthMeters = *c.MaxDepthMeters
	}
	return p
}

// GetCameraData returns the camera intrinsics handle. Defaults match a
// VGA structured-light depth sensor.
func (c *TuningConfig) GetCameraData() track.CameraData {
	cam := track.CameraData{
		Width:            640,
		Height:           480,
		FocalX:           525,
		FocalY:           525,
		CenterX:          319.5,
		CenterY:          239.5,
		DownsampleFactor: 1,
	}
	if c.CameraWidth != nil {
		cam.Width = *c.CameraWidth
	}
	if c.CameraHeight != nil {
		cam.Height = *c.CameraHeight
	}
	if c.CameraFocalX != nil {
		cam.FocalX = *c.CameraFocalX
	}
	if c.CameraFocalY != nil {
		cam.FocalY = *c.CameraFocalY
	}
	if c.CameraCenterX != nil {
		cam.CenterX = *c.CameraCenterX
	}
	if c.CameraCenterY != nil {
		cam.CenterY = *c.CameraCenterY
	}
	if c.CameraDownsampleFactor != nil {
		cam.DownsampleFactor = *c.CameraDownsampleFactor
	}
	return cam
}

// GetSeed returns the reproducibility seed or the default.
func (c *TuningConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetObjectResource returns the object resource identifier.
func (c *TuningConfig) GetObjectResource() track.ResourceIdentifier {
	ori := track.ResourceIdentifier{Directory: "models"}
	if c.ObjectDirectory != nil {
		ori.Directory = *c.ObjectDirectory
	}
	ori.Bodies = append(ori.Bodies, c.ObjectBodies...)
	return ori
}

// TrackerConfig assembles the immutable tracker configuration from the
// tuning file. Use this in production code where the TuningConfig is
// already loaded.
func (c *TuningConfig) TrackerConfig() track.Config {
	return track.Config{
		UseAcceleratedBackend: c.GetUseAcceleratedBackend(),
		Default:               c.GetDefaultParams(),
		Accelerated:           c.GetAcceleratedParams(),
		Object:                c.GetObjectResource(),
		Observation:           c.GetObservationParams(),
		ObjectTransition:      c.GetObjectTransitionParams(),
		BrownianTransition:    c.GetBrownianTransitionParams(),
		ActiveTransition:      c.GetActiveTransition(),
		Seed:                  c.GetSeed(),
	}
}
