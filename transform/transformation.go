// Package transform implements typed maps between element vectors with
// analytic Jacobians, finite difference self-tests and covariance
// propagation.
package transform

import (
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-gif/element"
	"github.com/milosgajdos/go-gif/matrix"
)

// Model is a typed map from one element vector space to another with an
// analytic Jacobian.
type Model interface {
	// InputDefinition returns the input definition
	InputDefinition() *element.Definition
	// OutputDefinition returns the output definition
	OutputDefinition() *element.Definition
	// Transform writes the image of in into out
	Transform(out, in *element.Vector) error
	// Jacobian writes the analytic Jacobian at in into jac.
	// jac is OutputDefinition().Dim() x InputDefinition().Dim() and zeroed.
	Jacobian(jac *mat.Dense, in *element.Vector) error
}

// Transformation wraps a Model with state and covariance transforms and a
// finite difference self-test.
type Transformation struct {
	model Model
}

// New creates a new Transformation of the given model.
func New(model Model) *Transformation {
	return &Transformation{model: model}
}

// Model returns the wrapped model.
func (t *Transformation) Model() Model { return t.model }

// Apply transforms in and returns the resulting output vector.
func (t *Transformation) Apply(in *element.Vector) (*element.Vector, error) {
	out := element.NewVector(t.model.OutputDefinition())
	if err := t.model.Transform(out, in); err != nil {
		return nil, err
	}

	return out, nil
}

// Jac evaluates the analytic Jacobian at in.
func (t *Transformation) Jac(in *element.Vector) (*mat.Dense, error) {
	j := mat.NewDense(t.model.OutputDefinition().Dim(), t.model.InputDefinition().Dim(), nil)
	if err := t.model.Jacobian(j, in); err != nil {
		return nil, err
	}

	return j, nil
}

// JacFD evaluates the Jacobian at in with central finite differences over
// the input tangent space.
func (t *Transformation) JacFD(in *element.Vector, step float64) (*mat.Dense, error) {
	out0, err := t.Apply(in)
	if err != nil {
		return nil, err
	}

	inDim := t.model.InputDefinition().Dim()
	outDim := t.model.OutputDefinition().Dim()

	var ferr error
	f := func(y, x []float64) {
		xin := element.NewVector(t.model.InputDefinition())
		if err := in.BoxPlus(mat.NewVecDense(inDim, x), xin); err != nil {
			ferr = err
			return
		}
		xout, err := t.Apply(xin)
		if err != nil {
			ferr = err
			return
		}
		d := mat.NewVecDense(outDim, y)
		if err := xout.BoxMinus(out0, d); err != nil {
			ferr = err
		}
	}

	j := mat.NewDense(outDim, inDim, nil)
	fd.Jacobian(j, f, make([]float64, inDim), &fd.JacobianSettings{
		Formula: fd.Central,
		Step:    step,
	})
	if ferr != nil {
		return nil, ferr
	}

	return j, nil
}

// JacTest compares the analytic Jacobian against central finite differences
// at in. It returns error if any entry deviates by more than tol.
func (t *Transformation) JacTest(in *element.Vector, step, tol float64) error {
	ja, err := t.Jac(in)
	if err != nil {
		return err
	}
	jn, err := t.JacFD(in, step)
	if err != nil {
		return err
	}

	diff := &mat.Dense{}
	diff.Sub(ja, jn)
	r, c := diff.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if d := diff.At(i, j); d > tol || d < -tol {
				return fmt.Errorf("jacobian mismatch at (%d,%d): analytic %v, numeric %v",
					i, j, ja.At(i, j), jn.At(i, j))
			}
		}
	}

	return nil
}

// TransformCov propagates the input covariance through the transformation
// linearised at in: P_out = J * P_in * J'.
func (t *Transformation) TransformCov(in *element.Vector, cov mat.Symmetric) (*mat.SymDense, error) {
	if cov.SymmetricDim() != t.model.InputDefinition().Dim() {
		return nil, fmt.Errorf("invalid covariance dimension: %d", cov.SymmetricDim())
	}

	j, err := t.Jac(in)
	if err != nil {
		return nil, err
	}

	jp := &mat.Dense{}
	jp.Mul(j, cov)
	jpj := &mat.Dense{}
	jpj.Mul(jp, j.T())

	return matrix.Symmetrize(jpj), nil
}

// JacBlock returns the writable sub-block of jac for output element i with
// respect to input element k of model.
func JacBlock(model Model, jac *mat.Dense, i, k int) *mat.Dense {
	return element.JacBlock(jac, model.OutputDefinition(), model.InputDefinition(), i, k)
}
