// Package track implements the adaptive Rao-Blackwellised coordinate
// particle filter used to estimate 6-DoF rigid-body poses from streaming
// depth observations.
//
// The package is organised around a single orchestration point, the
// Builder, which turns an immutable Config into a running Tracker:
//
//	Config → {ModelLoader, NewTransitionModel, NewObservationModel,
//	          SamplingBlocks} → Builder.Build() → *Tracker
//
// The Tracker owns a Filter that maintains a weighted particle population
// over the joint state of all tracked bodies. Each Step performs one
// block-sequential pass: per sampling block the filter predicts the block's
// coordinates forward with the transition model, reweights particles with
// the observation model's depth likelihood, adapts its particle count when
// the weight-distribution divergence exceeds the configured bound, and
// resamples when the effective sample size collapses.
//
// Observation likelihoods run on one of two backends chosen at build time:
// the default host evaluator, always available, or the accelerated
// evaluator compiled in with the "gpu" build tag. Requesting the
// accelerated backend from a binary built without the tag fails with
// ErrBackendUnavailable.
package track
