package residuals

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-gif/element"
	"github.com/milosgajdos/go-gif/residual"
)

// randomWalk is a prediction model holding every state element at its
// previous value up to noise scaled with the square root of the interval
// length. It works over arbitrary element definitions, manifolds
// included, and is the usual model for slowly drifting extrinsics.
type randomWalk struct {
	base  *residual.Base
	state *element.Definition
}

// NewRandomWalk creates a random walk prediction over state. The noise
// definition mirrors the state with one vector element per state element
// of non-zero dimension.
func NewRandomWalk(name string, state *element.Definition) (*residual.Prediction, error) {
	specs := make([]element.Spec, 0, state.Len())
	for i := 0; i < state.Len(); i++ {
		d := state.TraitsAt(i).Dim()
		if d == 0 {
			continue
		}
		specs = append(specs, element.Spec{Name: state.Name(i), Traits: element.Vec(d)})
	}
	noi, err := element.NewDefinition(specs...)
	if err != nil {
		return nil, err
	}
	if noi.Dim() != state.Dim() {
		return nil, fmt.Errorf("random walk %q: unsupported state definition", name)
	}

	m := &randomWalk{state: state}
	pred, err := residual.NewPrediction(name, m, state, noi)
	if err != nil {
		return nil, err
	}
	m.base = pred.Base

	return pred, nil
}

// Predict holds every element: cur_i = pre_i boxplus sqrt(dt)*noi_i.
func (m *randomWalk) Predict(cur *element.Vector, pre, noi *element.Vector) error {
	sq := math.Sqrt(m.base.Dt())

	w := mat.NewVecDense(m.state.Dim(), nil)
	if err := noi.BoxMinus(element.NewVector(noi.Definition()), w); err != nil {
		return err
	}
	w.ScaleVec(sq, w)

	return pre.BoxPlus(w, cur)
}

// PredictJacPre writes the block diagonal boxplus input Jacobians.
func (m *randomWalk) PredictJacPre(jac *mat.Dense, pre, noi *element.Vector) error {
	w, err := m.noiseTangent(noi)
	if err != nil {
		return err
	}

	jac.Zero()
	for i := 0; i < m.state.Len(); i++ {
		tr := m.state.TraitsAt(i)
		d := tr.Dim()
		if d == 0 {
			continue
		}
		off := m.state.Offset(i)
		element.JacBlock(jac, m.state, m.state, i, i).Copy(
			tr.BoxplusJacInp(pre.At(i), w.SliceVec(off, off+d)))
	}

	return nil
}

// PredictJacNoi writes the block diagonal boxplus tangent Jacobians
// scaled by sqrt(dt).
func (m *randomWalk) PredictJacNoi(jac *mat.Dense, pre, noi *element.Vector) error {
	w, err := m.noiseTangent(noi)
	if err != nil {
		return err
	}
	sq := math.Sqrt(m.base.Dt())

	jac.Zero()
	for i := 0; i < m.state.Len(); i++ {
		tr := m.state.TraitsAt(i)
		d := tr.Dim()
		if d == 0 {
			continue
		}
		off := m.state.Offset(i)
		b := element.JacBlock(jac, m.state, m.state, i, i)
		b.Copy(tr.BoxplusJacVec(pre.At(i), w.SliceVec(off, off+d)))
		b.Scale(sq, b)
	}

	return nil
}

// noiseTangent returns the scaled noise tangent sqrt(dt)*noi.
func (m *randomWalk) noiseTangent(noi *element.Vector) (*mat.VecDense, error) {
	w := mat.NewVecDense(m.state.Dim(), nil)
	if err := noi.BoxMinus(element.NewVector(noi.Definition()), w); err != nil {
		return nil, err
	}
	w.ScaleVec(math.Sqrt(m.base.Dt()), w)

	return w, nil
}
