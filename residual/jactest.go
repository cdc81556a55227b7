package residual

import (
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-gif/element"
)

// Innovation evaluates the residual at (pre, cur, noi) and returns the
// innovation expressed in the tangent space at the innovation identity.
// This is the residual vector the filter stacks.
func Innovation(r Residual, pre, cur, noi *element.Vector) (*mat.VecDense, error) {
	inn := element.NewVector(r.InnDefinition())
	if err := r.Eval(inn, pre, cur, noi); err != nil {
		return nil, err
	}

	out := mat.NewVecDense(r.InnDefinition().Dim(), nil)
	if err := inn.BoxMinus(element.NewVector(r.InnDefinition()), out); err != nil {
		return nil, err
	}

	return out, nil
}

// TestJacs compares the analytic Jacobians of r at (pre, cur, noi) against
// central finite differences with the given step.
// It returns error if any entry deviates by more than tol. The JacPre
// check is skipped for residuals with an empty previous state definition.
func TestJacs(r Residual, pre, cur, noi *element.Vector, step, tol float64) error {
	if r.PreDefinition().Dim() > 0 {
		ja := mat.NewDense(r.InnDefinition().Dim(), r.PreDefinition().Dim(), nil)
		if err := r.JacPre(ja, pre, cur, noi); err != nil {
			return err
		}
		jn, err := jacFD(r, pre, cur, noi, step, func(p *element.Vector) (*element.Vector, *element.Vector, *element.Vector) {
			return p, cur, noi
		}, pre)
		if err != nil {
			return err
		}
		if err := compareJacs("pre", ja, jn, tol); err != nil {
			return err
		}
	}

	ja := mat.NewDense(r.InnDefinition().Dim(), r.CurDefinition().Dim(), nil)
	if err := r.JacCur(ja, pre, cur, noi); err != nil {
		return err
	}
	jn, err := jacFD(r, pre, cur, noi, step, func(c *element.Vector) (*element.Vector, *element.Vector, *element.Vector) {
		return pre, c, noi
	}, cur)
	if err != nil {
		return err
	}
	if err := compareJacs("cur", ja, jn, tol); err != nil {
		return err
	}

	ja = mat.NewDense(r.InnDefinition().Dim(), r.NoiDefinition().Dim(), nil)
	if err := r.JacNoi(ja, pre, cur, noi); err != nil {
		return err
	}
	jn, err = jacFD(r, pre, cur, noi, step, func(n *element.Vector) (*element.Vector, *element.Vector, *element.Vector) {
		return pre, cur, n
	}, noi)
	if err != nil {
		return err
	}

	return compareJacs("noi", ja, jn, tol)
}

// jacFD computes the finite difference Jacobian of the innovation w.r.t.
// the argument arg, with place rebuilding the (pre, cur, noi) triple from
// a perturbed copy of arg.
func jacFD(r Residual, pre, cur, noi *element.Vector, step float64,
	place func(*element.Vector) (*element.Vector, *element.Vector, *element.Vector), arg *element.Vector) (*mat.Dense, error) {

	argDim := arg.Dim()
	innDim := r.InnDefinition().Dim()

	var ferr error
	f := func(y, x []float64) {
		pert := element.NewVector(arg.Definition())
		if err := arg.BoxPlus(mat.NewVecDense(argDim, x), pert); err != nil {
			ferr = err
			return
		}
		p, c, n := place(pert)
		out, err := Innovation(r, p, c, n)
		if err != nil {
			ferr = err
			return
		}
		copy(y, out.RawVector().Data)
	}

	j := mat.NewDense(innDim, argDim, nil)
	fd.Jacobian(j, f, make([]float64, argDim), &fd.JacobianSettings{
		Formula: fd.Central,
		Step:    step,
	})
	if ferr != nil {
		return nil, ferr
	}

	return j, nil
}

func compareJacs(which string, ja, jn *mat.Dense, tol float64) error {
	r, c := ja.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := ja.At(i, j) - jn.At(i, j)
			if d > tol || d < -tol {
				return fmt.Errorf("jac %s mismatch at (%d,%d): analytic %v, numeric %v",
					which, i, j, ja.At(i, j), jn.At(i, j))
			}
		}
	}

	return nil
}
