// Package sim provides small helpers to exercise a filter against a
// simulated trajectory: measurement corruption, track recording and plot
// rendering of the reference, measured and filtered tracks.
package sim

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-gif/noise"
	"github.com/milosgajdos/go-gif/rnd"
)

// Corrupt returns v perturbed by one sample of n.
// It returns error if the noise dimension does not match v.
func Corrupt(v *mat.VecDense, n noise.Source) (*mat.VecDense, error) {
	if n.Dim() != v.Len() {
		return nil, fmt.Errorf("invalid noise dimension: got %d, want %d", n.Dim(), v.Len())
	}

	out := mat.NewVecDense(v.Len(), nil)
	out.AddVec(v, n.Sample())

	return out, nil
}

// CorruptBatch returns copies of vs, each perturbed by zero-mean Gaussian
// noise with the given covariance. All perturbations are drawn in one
// batch through a single covariance factorization, which keeps long
// simulated measurement streams cheap.
// It returns error if the vectors and the covariance disagree in size or
// the factorization fails.
func CorruptBatch(rng *rand.Rand, vs []*mat.VecDense, cov mat.Symmetric) ([]*mat.VecDense, error) {
	if len(vs) == 0 {
		return nil, nil
	}

	dim := cov.SymmetricDim()
	for _, v := range vs {
		if v.Len() != dim {
			return nil, fmt.Errorf("invalid measurement dimension: got %d, want %d", v.Len(), dim)
		}
	}

	pert, err := rnd.WithCovN(rng, cov, len(vs))
	if err != nil {
		return nil, err
	}

	out := make([]*mat.VecDense, len(vs))
	for i, v := range vs {
		o := mat.NewVecDense(dim, nil)
		o.AddVec(v, pert.ColView(i))
		out[i] = o
	}

	return out, nil
}

// Track records a planar trajectory sample by sample.
type Track struct {
	xy []float64
}

// Append stores the next track point.
func (t *Track) Append(x, y float64) {
	t.xy = append(t.xy, x, y)
}

// Len returns the number of stored points.
func (t *Track) Len() int { return len(t.xy) / 2 }

// Matrix returns the stored points as rows of a dense matrix.
// It returns error if the track is empty.
func (t *Track) Matrix() (*mat.Dense, error) {
	if len(t.xy) == 0 {
		return nil, fmt.Errorf("empty track")
	}

	out := mat.NewDense(len(t.xy)/2, 2, nil)
	copy(out.RawMatrix().Data, t.xy)

	return out, nil
}
