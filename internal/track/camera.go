package track

import (
	"fmt"
	"math"
)

// CameraData is the opaque sensor handle handed to the observation-model
// factory at build time. It carries the pinhole intrinsics the depth
// likelihood needs to project hypothesised model points into the frame.
// Acquisition (drivers, streaming) happens outside this package; the
// tracker only ever sees decoded Frames.
type CameraData struct {
	Width  int // frame width (pixels)
	Height int // frame height (pixels)

	// Pinhole intrinsics (pixels).
	FocalX  float64
	FocalY  float64
	CenterX float64
	CenterY float64

	// DownsampleFactor subsamples the model point set during likelihood
	// evaluation (1 = use every point). Values > 1 trade accuracy for
	// per-particle evaluation cost.
	DownsampleFactor int
}

// Validate checks the intrinsics for internal consistency.
func (c CameraData) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("camera: frame dimensions must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.FocalX <= 0 || c.FocalY <= 0 {
		return fmt.Errorf("camera: focal lengths must be positive, got (%f, %f)", c.FocalX, c.FocalY)
	}
	if c.DownsampleFactor < 1 {
		return fmt.Errorf("camera: downsample factor must be >= 1, got %d", c.DownsampleFactor)
	}
	return nil
}

// Frame is one depth observation: a row-major depth image in metres.
// Zero, negative, or NaN entries mark missing returns.
type Frame struct {
	TimestampNanos int64
	Width          int
	Height         int
	Depth          []float32
}

// At returns the depth at pixel (u, v) and whether it is a valid return.
func (f *Frame) At(u, v int) (float32, bool) {
	if u < 0 || v < 0 || u >= f.Width || v >= f.Height {
		return 0, false
	}
	idx := v*f.Width + u
	if idx >= len(f.Depth) {
		// Truncated buffer; treat the pixel as a missing return.
		return 0, false
	}
	d := f.Depth[idx]
	if d <= 0 || math.IsNaN(float64(d)) {
		return 0, false
	}
	return d, true
}
