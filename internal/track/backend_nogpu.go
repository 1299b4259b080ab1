//go:build !gpu

package track

// AcceleratedBackendAvailable reports whether this binary was compiled
// with accelerated-backend support. The answer is fixed at build time.
const AcceleratedBackendAvailable = false

// newAcceleratedObservationModel is the stub used by binaries built
// without the "gpu" tag. It fails before allocating anything so a failed
// build leaves no resources behind.
func newAcceleratedObservationModel(*ObjectModel, CameraData, ObservationParams) (ObservationModel, error) {
	return nil, ErrBackendUnavailable
}
