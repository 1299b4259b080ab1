package track

import "errors"

// ErrBackendUnavailable is returned by the observation-model factory (and
// propagated unchanged by Builder.Build) when the accelerated backend is
// requested from a binary compiled without it. The condition is fixed per
// binary — it is a build-capability failure, not a runtime resource
// failure — so callers must not retry with the same backend flag.
var ErrBackendUnavailable = errors.New(
	"tracker binary was built without accelerated backend support (gpu build tag not set)")
