package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-gif/element"
	"github.com/milosgajdos/go-gif/rnd"
)

// exampleModel maps (tim, sta[4]) onto pos = (tim+1)*(sta[2] + (1,2,3)).
type exampleModel struct {
	in  *element.Definition
	out *element.Definition
}

func newExampleModel() *exampleModel {
	return &exampleModel{
		in: element.MustDefinition(
			element.Spec{Name: "tim", Traits: element.Scalar()},
			element.Spec{Name: "sta", Traits: element.Array(element.Vec(3), 4)},
		),
		out: element.MustDefinition(
			element.Spec{Name: "pos", Traits: element.Vec(3)},
		),
	}
}

func (m *exampleModel) InputDefinition() *element.Definition  { return m.in }
func (m *exampleModel) OutputDefinition() *element.Definition { return m.out }

func (m *exampleModel) Transform(out, in *element.Vector) error {
	tim := element.MustValue[float64](in, "tim")
	sta := element.MustValue[[]any](in, "sta")

	pos := mat.NewVecDense(3, nil)
	pos.AddVec(sta[2].(*mat.VecDense), element.NewVec(1, 2, 3))
	pos.ScaleVec(tim+1.0, pos)

	return element.Set(out, "pos", pos)
}

func (m *exampleModel) Jacobian(jac *mat.Dense, in *element.Vector) error {
	tim := element.MustValue[float64](in, "tim")
	sta := element.MustValue[[]any](in, "sta")

	jac.Zero()

	// w.r.t. tim
	jt := JacBlock(m, jac, 0, 0)
	dt := mat.NewVecDense(3, nil)
	dt.AddVec(sta[2].(*mat.VecDense), element.NewVec(1, 2, 3))
	for i := 0; i < 3; i++ {
		jt.Set(i, 0, dt.AtVec(i))
	}

	// w.r.t. sta: only the third entry enters
	js := JacBlock(m, jac, 0, 1)
	for i := 0; i < 3; i++ {
		js.Set(i, 6+i, tim+1.0)
	}

	return nil
}

func TestTransformationApply(t *testing.T) {
	assert := assert.New(t)

	tr := New(newExampleModel())

	in := element.NewVector(tr.Model().InputDefinition())
	out, err := tr.Apply(in)
	assert.NoError(err)

	pos := element.MustValue[*mat.VecDense](out, "pos")
	assert.InDelta(1.0, pos.AtVec(0), 1e-12)
	assert.InDelta(2.0, pos.AtVec(1), 1e-12)
	assert.InDelta(3.0, pos.AtVec(2), 1e-12)
}

func TestTransformationJacTest(t *testing.T) {
	assert := assert.New(t)

	tr := New(newExampleModel())

	// at the identity
	in := element.NewVector(tr.Model().InputDefinition())
	assert.NoError(tr.JacTest(in, 1e-6, 1e-6))

	// at a random point
	in.SetRandom(rnd.New(21))
	assert.NoError(tr.JacTest(in, 1e-6, 1e-6))
}

func TestTransformCov(t *testing.T) {
	assert := assert.New(t)

	tr := New(newExampleModel())
	in := element.NewVector(tr.Model().InputDefinition())

	n := tr.Model().InputDefinition().Dim()
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		cov.SetSym(i, i, 1.0)
	}

	out, err := tr.TransformCov(in, cov)
	assert.NoError(err)
	assert.Equal(3, out.SymmetricDim())

	// J has a (1,2,3) column for tim and an identity block for sta[2]:
	// the diagonal of J J' is 1+v_i^2
	assert.InDelta(2.0, out.At(0, 0), 1e-12)
	assert.InDelta(5.0, out.At(1, 1), 1e-12)
	assert.InDelta(10.0, out.At(2, 2), 1e-12)

	// dimension mismatch
	_, err = tr.TransformCov(in, mat.NewSymDense(2, nil))
	assert.Error(err)
}
