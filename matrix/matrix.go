package matrix

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrNotSPD is returned when a Cholesky factorization fails because the
// supplied matrix is not symmetric positive definite.
var ErrNotSPD = errors.New("matrix is not symmetric positive definite")

// Eye returns the n x n identity matrix.
func Eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1.0)
	}

	return m
}

// Symmetrize returns the symmetric part (m + m')/2 of a square matrix m.
// It panics if m is not square.
func Symmetrize(m mat.Matrix) *mat.SymDense {
	r, c := m.Dims()
	if r != c {
		panic("matrix: symmetrize of non-square matrix")
	}

	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}

	return s
}

// SPDInverse returns the inverse of a symmetric positive definite matrix
// computed via its Cholesky factorization.
// It returns error if the factorization fails.
func SPDInverse(a mat.Symmetric) (*mat.SymDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, ErrNotSPD
	}

	inv := mat.NewSymDense(a.SymmetricDim(), nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, err
	}

	return inv, nil
}

// SolveChol solves a*x = b for symmetric positive definite a.
// It returns error if the Cholesky factorization of a fails.
func SolveChol(a mat.Symmetric, b mat.Matrix) (*mat.Dense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, ErrNotSPD
	}

	_, c := b.Dims()
	x := mat.NewDense(a.SymmetricDim(), c, nil)
	if err := chol.SolveTo(x, b); err != nil {
		return nil, err
	}

	return x, nil
}

// SolveCholVec solves a*x = b for symmetric positive definite a and a
// single right hand side vector b.
// It returns error if the Cholesky factorization of a fails.
func SolveCholVec(a mat.Symmetric, b mat.Vector) (*mat.VecDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, ErrNotSPD
	}

	x := mat.NewVecDense(a.SymmetricDim(), nil)
	if err := chol.SolveVecTo(x, b); err != nil {
		return nil, err
	}

	return x, nil
}
