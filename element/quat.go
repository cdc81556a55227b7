package element

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/milosgajdos/go-gif/matrix"
)

// Quat returns the traits of a unit quaternion element stored as
// quat.Number. The tangent is the 3-vector rotation increment with
// q boxplus v = exp(v)*q and q boxminus r = log(q*r^-1).
func Quat() Traits {
	return quatTraits{}
}

type quatTraits struct{}

func (quatTraits) Dim() int          { return 3 }
func (quatTraits) VectorSpace() bool { return false }

func (quatTraits) Identity() any {
	return quat.Number{Real: 1.0}
}

func (quatTraits) Random(rng *rand.Rand) any {
	q := quat.Number{
		Real: rng.NormFloat64(),
		Imag: rng.NormFloat64(),
		Jmag: rng.NormFloat64(),
		Kmag: rng.NormFloat64(),
	}
	return FixQuat(q)
}

func (quatTraits) Clone(x any) any { return x.(quat.Number) }

func (quatTraits) Boxplus(x any, vec mat.Vector) any {
	return FixQuat(quat.Mul(ExpQuat(vec), x.(quat.Number)))
}

func (quatTraits) Boxminus(x, ref any, dst *mat.VecDense) {
	dst.CopyVec(LogQuat(quat.Mul(x.(quat.Number), quat.Inv(ref.(quat.Number)))))
}

func (quatTraits) BoxplusJacInp(x any, vec mat.Vector) *mat.Dense {
	return RotationMatrix(ExpQuat(vec))
}

func (quatTraits) BoxplusJacVec(x any, vec mat.Vector) *mat.Dense {
	return GammaMatrix(vec)
}

func (quatTraits) BoxminusJacInp(x, ref any) *mat.Dense {
	d := quat.Mul(x.(quat.Number), quat.Inv(ref.(quat.Number)))
	return gammaInv(LogQuat(d))
}

func (quatTraits) BoxminusJacRef(x, ref any) *mat.Dense {
	d := quat.Mul(x.(quat.Number), quat.Inv(ref.(quat.Number)))
	j := &mat.Dense{}
	j.Mul(gammaInv(LogQuat(d)), RotationMatrix(d))
	j.Scale(-1.0, j)
	return j
}

func (quatTraits) Print(x any) string {
	q := x.(quat.Number)
	return fmt.Sprintf("%v %v %v %v", q.Real, q.Imag, q.Jmag, q.Kmag)
}

// FixQuat normalizes q back onto the unit sphere.
func FixQuat(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1.0}
	}
	return quat.Scale(1.0/n, q)
}

// ExpQuat maps a rotation vector to its unit quaternion, rotating by the
// angle |v| around v.
func ExpQuat(v mat.Vector) quat.Number {
	th := mat.Norm(v, 2)
	// sin(th/2)/th with series fallback around zero
	s := 0.5 - th*th/48.0
	if th > 1e-8 {
		s = math.Sin(0.5*th) / th
	}
	return quat.Number{
		Real: math.Cos(0.5 * th),
		Imag: s * v.AtVec(0),
		Jmag: s * v.AtVec(1),
		Kmag: s * v.AtVec(2),
	}
}

// LogQuat maps a unit quaternion to its rotation vector, picking the
// geodesic with angle at most pi.
func LogQuat(q quat.Number) *mat.VecDense {
	if q.Real < 0 {
		q = quat.Scale(-1.0, q)
	}
	vn := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	th := 2.0 * math.Atan2(vn, q.Real)
	// th/sin(th/2) with series fallback around zero
	s := 2.0 + th*th/12.0
	if vn > 1e-8 {
		s = th / vn
	}
	return mat.NewVecDense(3, []float64{s * q.Imag, s * q.Jmag, s * q.Kmag})
}

// RotationMatrix returns the rotation matrix of a unit quaternion.
func RotationMatrix(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// RotateVec rotates v by the unit quaternion q.
func RotateVec(q quat.Number, v mat.Vector) *mat.VecDense {
	out := mat.NewVecDense(3, nil)
	out.MulVec(RotationMatrix(q), v)
	return out
}

// Skew returns the cross product matrix of a 3-vector.
func Skew(v mat.Vector) *mat.Dense {
	x, y, z := v.AtVec(0), v.AtVec(1), v.AtVec(2)
	return mat.NewDense(3, 3, []float64{
		0, -z, y,
		z, 0, -x,
		-y, x, 0,
	})
}

// GammaMatrix returns the matrix relating additive increments of a rotation
// vector v to tangent increments of exp(v):
//
//	Gamma(v) = I + (1-cos th)/th^2 [v]x + (th - sin th)/th^3 [v]x^2
//
// so that BoxplusJacVec = Gamma(v) and BoxminusJacInp = Gamma(v)^-1.
func GammaMatrix(v mat.Vector) *mat.Dense {
	th := mat.Norm(v, 2)
	a := 0.5 - th*th/24.0
	b := 1.0/6.0 - th*th/120.0
	if th > 1e-6 {
		a = (1.0 - math.Cos(th)) / (th * th)
		b = (th - math.Sin(th)) / (th * th * th)
	}

	sk := Skew(v)
	sk2 := &mat.Dense{}
	sk2.Mul(sk, sk)

	g := matrix.Eye(3)
	sk.Scale(a, sk)
	sk2.Scale(b, sk2)
	g.Add(g, sk)
	g.Add(g, sk2)

	return g
}

func gammaInv(v mat.Vector) *mat.Dense {
	inv := &mat.Dense{}
	if err := inv.Inverse(GammaMatrix(v)); err != nil {
		panic(fmt.Sprintf("element: singular gamma matrix: %v", err))
	}
	return inv
}
