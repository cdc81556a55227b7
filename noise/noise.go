// Package noise provides the noise sources used to corrupt simulated
// measurements and to sample residual noise in tests.
package noise

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Source is a noise source.
type Source interface {
	// Sample returns a sample of the noise
	Sample() *mat.VecDense
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Dim returns the noise dimension
	Dim() int
}

// Gaussian is zero or non-zero mean gaussian noise
type Gaussian struct {
	// dist is a multivariate normal distribution
	dist *distmv.Normal
	// mean is Gaussian mean
	mean []float64
	// cov is Gaussian covariance
	cov mat.Symmetric
	// rng is the random source the distribution draws from
	rng *rand.Rand
}

// NewGaussian creates new Gaussian noise with given mean and covariance,
// drawing from rng (rnd.Default() is a reasonable choice).
// It returns error if the covariance is not positive definite or its size
// does not match the mean.
func NewGaussian(mean []float64, cov mat.Symmetric, rng *rand.Rand) (*Gaussian, error) {
	if len(mean) != cov.SymmetricDim() {
		return nil, fmt.Errorf("invalid dimensions: mean %d, cov %d", len(mean), cov.SymmetricDim())
	}

	dist, ok := distmv.NewNormal(mean, cov, rng)
	if !ok {
		return nil, fmt.Errorf("failed to create new Gaussian noise")
	}

	return &Gaussian{
		dist: dist,
		mean: mean,
		cov:  cov,
		rng:  rng,
	}, nil
}

// Sample generates a sample from Gaussian noise and returns it.
func (g *Gaussian) Sample() *mat.VecDense {
	r := g.dist.Rand(nil)
	return mat.NewVecDense(len(r), r)
}

// Cov returns covariance matrix of Gaussian noise.
func (g *Gaussian) Cov() mat.Symmetric {
	return g.cov
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	return g.mean
}

// Dim returns the noise dimension.
func (g *Gaussian) Dim() int {
	return len(g.mean)
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.mean, mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}

// Zero is zero noise i.e. no noise
type Zero struct {
	dim int
}

// NewZero creates new zero noise i.e. zero mean and zero covariance.
// It returns error if dim is non-positive.
func NewZero(dim int) (*Zero, error) {
	if dim < 1 {
		return nil, fmt.Errorf("invalid noise dimension: %d", dim)
	}

	return &Zero{dim: dim}, nil
}

// Sample generates empty sample and returns it: a vector with zero values.
func (z *Zero) Sample() *mat.VecDense {
	return mat.NewVecDense(z.dim, nil)
}

// Cov returns empty covariance matrix: symmetric matrix with zero values.
func (z *Zero) Cov() mat.Symmetric {
	return mat.NewSymDense(z.dim, nil)
}

// Dim returns the noise dimension.
func (z *Zero) Dim() int {
	return z.dim
}

// String implements the Stringer interface.
func (z *Zero) String() string {
	return fmt.Sprintf("Zero{Dim=%d}", z.dim)
}
