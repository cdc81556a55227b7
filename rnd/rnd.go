package rnd

import (
	"fmt"
	"math"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

var (
	defaultOnce sync.Once
	defaultRng  *rand.Rand
)

// Default returns the lazily initialised process-wide random source used
// wherever no explicit source is injected. The filter core itself is
// single threaded; the source is not safe for concurrent use.
func Default() *rand.Rand {
	defaultOnce.Do(func() {
		defaultRng = rand.New(rand.NewSource(1))
	})

	return defaultRng
}

// New returns a new random source seeded with seed. Tests inject these to
// make random element draws reproducible.
func New(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// WithCovN draws n zero-mean Gaussian samples with the given covariance
// from rng and returns them as the columns of the result. sim.CorruptBatch
// uses this to perturb a whole simulated measurement stream with a single
// covariance factorization.
// It returns error if n is not positive or the factorization fails.
func WithCovN(rng *rand.Rand, cov mat.Symmetric, n int) (*mat.Dense, error) {
	if n < 1 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	l, err := covFactor(cov)
	if err != nil {
		return nil, err
	}

	dim := cov.SymmetricDim()
	samples := mat.NewDense(dim, n, nil)
	for j := 0; j < n; j++ {
		for i := 0; i < dim; i++ {
			samples.Set(i, j, rng.NormFloat64())
		}
	}
	samples.Mul(l, samples)

	return samples, nil
}

// covFactor returns a matrix l with l*l' = cov. The factorization goes
// through SVD so that nearly singular covariances remain usable.
func covFactor(cov mat.Symmetric) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	var l mat.Dense
	svd.UTo(&l)

	vals := svd.Values(nil)
	for i, v := range vals {
		vals[i] = math.Sqrt(v)
	}
	l.Mul(&l, mat.NewDiagDense(len(vals), vals))

	return &l, nil
}
