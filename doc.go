// Package gif implements a generalized information filter: a modular,
// time-aligned recursive state estimator which fuses heterogeneous sensor
// measurements over manifold-valued states using an information-form
// iterated Gauss-Newton update.
//
// States are element vectors (package element): named tuples of values
// living on mixed manifolds (vectors, unit quaternions, arrays thereof)
// exposing a uniform boxplus/boxminus interface over a flat tangent space.
// Measurements arrive asynchronously on per-residual channels (package
// timeline) and are fused by the scheduler in package filter.
//
// The root package holds the time plumbing shared by all subpackages.
package gif
