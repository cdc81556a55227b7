package element

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-gif/matrix"
)

// Traits defines the manifold operations of a single element type: its
// tangent dimension, boxplus/boxminus and their Jacobians, identity and
// random elements. All Jacobians are dim x dim.
//
// Implementations must guarantee Boxplus(x, 0) == x and that the analytic
// Jacobians agree with central finite differences.
type Traits interface {
	// Dim returns the tangent space dimension
	Dim() int
	// VectorSpace reports whether boxplus/boxminus reduce to +/-
	VectorSpace() bool
	// Identity returns the identity element
	Identity() any
	// Random returns a random element drawn from rng
	Random(rng *rand.Rand) any
	// Clone returns a deep copy of x
	Clone(x any) any
	// Boxplus returns x boxplus vec
	Boxplus(x any, vec mat.Vector) any
	// Boxminus writes x boxminus ref into dst
	Boxminus(x, ref any, dst *mat.VecDense)
	// BoxplusJacInp is the Jacobian of Boxplus w.r.t. x
	BoxplusJacInp(x any, vec mat.Vector) *mat.Dense
	// BoxplusJacVec is the Jacobian of Boxplus w.r.t. vec
	BoxplusJacVec(x any, vec mat.Vector) *mat.Dense
	// BoxminusJacInp is the Jacobian of Boxminus w.r.t. x
	BoxminusJacInp(x, ref any) *mat.Dense
	// BoxminusJacRef is the Jacobian of Boxminus w.r.t. ref
	BoxminusJacRef(x, ref any) *mat.Dense
	// Print renders x for diagnostics
	Print(x any) string
}

// Scalar returns the traits of a scalar element stored as float64.
func Scalar() Traits {
	return scalarTraits{}
}

type scalarTraits struct{}

func (scalarTraits) Dim() int          { return 1 }
func (scalarTraits) VectorSpace() bool { return true }
func (scalarTraits) Identity() any     { return 0.0 }

func (scalarTraits) Random(rng *rand.Rand) any {
	return rng.NormFloat64()
}

func (scalarTraits) Clone(x any) any { return x.(float64) }

func (scalarTraits) Boxplus(x any, vec mat.Vector) any {
	return x.(float64) + vec.AtVec(0)
}

func (scalarTraits) Boxminus(x, ref any, dst *mat.VecDense) {
	dst.SetVec(0, x.(float64)-ref.(float64))
}

func (scalarTraits) BoxplusJacInp(x any, vec mat.Vector) *mat.Dense { return matrix.Eye(1) }
func (scalarTraits) BoxplusJacVec(x any, vec mat.Vector) *mat.Dense { return matrix.Eye(1) }
func (scalarTraits) BoxminusJacInp(x, ref any) *mat.Dense           { return matrix.Eye(1) }

func (scalarTraits) BoxminusJacRef(x, ref any) *mat.Dense {
	j := matrix.Eye(1)
	j.Scale(-1.0, j)
	return j
}

func (scalarTraits) Print(x any) string {
	return fmt.Sprintf("%v", x.(float64))
}

// Vec returns the traits of a fixed-length vector element stored as
// *mat.VecDense of length n.
func Vec(n int) Traits {
	if n < 1 {
		panic("element: non-positive vector dimension")
	}
	return vecTraits{n: n}
}

type vecTraits struct {
	n int
}

func (t vecTraits) Dim() int          { return t.n }
func (t vecTraits) VectorSpace() bool { return true }

func (t vecTraits) Identity() any {
	return mat.NewVecDense(t.n, nil)
}

func (t vecTraits) Random(rng *rand.Rand) any {
	v := mat.NewVecDense(t.n, nil)
	for i := 0; i < t.n; i++ {
		v.SetVec(i, rng.NormFloat64())
	}
	return v
}

func (t vecTraits) Clone(x any) any {
	v := mat.NewVecDense(t.n, nil)
	v.CopyVec(x.(*mat.VecDense))
	return v
}

func (t vecTraits) Boxplus(x any, vec mat.Vector) any {
	out := mat.NewVecDense(t.n, nil)
	out.AddVec(x.(*mat.VecDense), vec)
	return out
}

func (t vecTraits) Boxminus(x, ref any, dst *mat.VecDense) {
	dst.SubVec(x.(*mat.VecDense), ref.(*mat.VecDense))
}

func (t vecTraits) BoxplusJacInp(x any, vec mat.Vector) *mat.Dense { return matrix.Eye(t.n) }
func (t vecTraits) BoxplusJacVec(x any, vec mat.Vector) *mat.Dense { return matrix.Eye(t.n) }
func (t vecTraits) BoxminusJacInp(x, ref any) *mat.Dense           { return matrix.Eye(t.n) }

func (t vecTraits) BoxminusJacRef(x, ref any) *mat.Dense {
	j := matrix.Eye(t.n)
	j.Scale(-1.0, j)
	return j
}

func (t vecTraits) Print(x any) string {
	return fmt.Sprintf("%v", mat.Formatted(x.(*mat.VecDense).T()))
}

// NewVec builds a *mat.VecDense from the given components.
func NewVec(vals ...float64) *mat.VecDense {
	return mat.NewVecDense(len(vals), vals)
}

// Array returns the traits of a homogeneous array of n sub-elements, each
// governed by sub. Values are stored as []any of length n and the tangent
// dimension is n*sub.Dim() with block diagonal Jacobians.
func Array(sub Traits, n int) Traits {
	if n < 0 {
		panic("element: negative array length")
	}
	return arrayTraits{sub: sub, n: n}
}

type arrayTraits struct {
	sub Traits
	n   int
}

func (t arrayTraits) Dim() int          { return t.n * t.sub.Dim() }
func (t arrayTraits) VectorSpace() bool { return t.sub.VectorSpace() }

func (t arrayTraits) Identity() any {
	x := make([]any, t.n)
	for i := range x {
		x[i] = t.sub.Identity()
	}
	return x
}

func (t arrayTraits) Random(rng *rand.Rand) any {
	x := make([]any, t.n)
	for i := range x {
		x[i] = t.sub.Random(rng)
	}
	return x
}

func (t arrayTraits) Clone(x any) any {
	in := x.([]any)
	out := make([]any, t.n)
	for i := range out {
		out[i] = t.sub.Clone(in[i])
	}
	return out
}

func (t arrayTraits) Boxplus(x any, vec mat.Vector) any {
	in := x.([]any)
	d := t.sub.Dim()
	if d == 0 {
		return t.Clone(x)
	}
	out := make([]any, t.n)
	for i := range out {
		out[i] = t.sub.Boxplus(in[i], sliceVec(vec, i*d, d))
	}
	return out
}

func (t arrayTraits) Boxminus(x, ref any, dst *mat.VecDense) {
	xs, rs := x.([]any), ref.([]any)
	d := t.sub.Dim()
	if d == 0 {
		return
	}
	for i := 0; i < t.n; i++ {
		t.sub.Boxminus(xs[i], rs[i], dst.SliceVec(i*d, (i+1)*d).(*mat.VecDense))
	}
}

func (t arrayTraits) BoxplusJacInp(x any, vec mat.Vector) *mat.Dense {
	return t.blockDiag(func(i int) *mat.Dense {
		return t.sub.BoxplusJacInp(x.([]any)[i], sliceVec(vec, i*t.sub.Dim(), t.sub.Dim()))
	})
}

func (t arrayTraits) BoxplusJacVec(x any, vec mat.Vector) *mat.Dense {
	return t.blockDiag(func(i int) *mat.Dense {
		return t.sub.BoxplusJacVec(x.([]any)[i], sliceVec(vec, i*t.sub.Dim(), t.sub.Dim()))
	})
}

func (t arrayTraits) BoxminusJacInp(x, ref any) *mat.Dense {
	return t.blockDiag(func(i int) *mat.Dense {
		return t.sub.BoxminusJacInp(x.([]any)[i], ref.([]any)[i])
	})
}

func (t arrayTraits) BoxminusJacRef(x, ref any) *mat.Dense {
	return t.blockDiag(func(i int) *mat.Dense {
		return t.sub.BoxminusJacRef(x.([]any)[i], ref.([]any)[i])
	})
}

func (t arrayTraits) blockDiag(block func(i int) *mat.Dense) *mat.Dense {
	d := t.sub.Dim()
	if d == 0 {
		return nil
	}
	j := mat.NewDense(t.Dim(), t.Dim(), nil)
	for i := 0; i < t.n; i++ {
		j.Slice(i*d, (i+1)*d, i*d, (i+1)*d).(*mat.Dense).Copy(block(i))
	}
	return j
}

func (t arrayTraits) Print(x any) string {
	s := ""
	for _, e := range x.([]any) {
		s += t.sub.Print(e) + "\n"
	}
	return s
}

// Static returns the traits of a zero-dimension element holding data which
// is not actively estimated. The payload is carried along unchanged; it is
// treated as immutable and copied by reference.
func Static(proto any) Traits {
	return staticTraits{proto: proto}
}

type staticTraits struct {
	proto any
}

func (t staticTraits) Dim() int                        { return 0 }
func (t staticTraits) VectorSpace() bool               { return true }
func (t staticTraits) Identity() any                   { return t.proto }
func (t staticTraits) Random(rng *rand.Rand) any       { return t.proto }
func (t staticTraits) Clone(x any) any                 { return x }
func (t staticTraits) Boxplus(x any, _ mat.Vector) any { return x }

func (t staticTraits) Boxminus(x, ref any, dst *mat.VecDense) {}

// Jacobians of a zero-dim element are empty and never consumed.
func (t staticTraits) BoxplusJacInp(x any, vec mat.Vector) *mat.Dense { return nil }
func (t staticTraits) BoxplusJacVec(x any, vec mat.Vector) *mat.Dense { return nil }
func (t staticTraits) BoxminusJacInp(x, ref any) *mat.Dense           { return nil }
func (t staticTraits) BoxminusJacRef(x, ref any) *mat.Dense           { return nil }
func (t staticTraits) Print(x any) string                             { return "" }

// sliceVec returns the length dim sub-vector of v starting at off.
func sliceVec(v mat.Vector, off, dim int) mat.Vector {
	if vd, ok := v.(*mat.VecDense); ok {
		return vd.SliceVec(off, off+dim)
	}
	out := mat.NewVecDense(dim, nil)
	for i := 0; i < dim; i++ {
		out.SetVec(i, v.AtVec(off+i))
	}
	return out
}
