package residuals

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-gif/element"
	"github.com/milosgajdos/go-gif/residual"
)

// NewRorMeas builds a rotational rate measurement in the IMU frame.
func NewRorMeas(ror *mat.VecDense) *element.Vector {
	m := element.NewVector(element.MustDefinition(
		element.Spec{Name: "MwM", Traits: element.Vec(3)},
	))
	element.MustSet(m, "MwM", ror)

	return m
}

// RorUpdate is a unary rotational rate update over the state
// {MwM, MwM_bias}: the measured rate explains the estimated rate plus the
// gyroscope bias. Enable the Huber threshold to reject rate outliers.
type RorUpdate struct {
	*residual.Base
}

// NewRorUpdate creates a new rotational rate update residual.
func NewRorUpdate(name string) (*RorUpdate, error) {
	inn := element.MustDefinition(element.Spec{Name: "MwM", Traits: element.Vec(3)})
	cur := element.MustDefinition(
		element.Spec{Name: "MwM", Traits: element.Vec(3)},
		element.Spec{Name: "MwM_bias", Traits: element.Vec(3)},
	)
	noi := element.MustDefinition(element.Spec{Name: "MwM", Traits: element.Vec(3)})

	base, err := residual.NewUnaryBase(name, inn, cur, noi)
	if err != nil {
		return nil, err
	}

	return &RorUpdate{Base: base}, nil
}

// Eval evaluates the innovation meas - (rate + bias + noi/sqrt(dt)).
func (r *RorUpdate) Eval(inn *element.Vector, pre, cur, noi *element.Vector) error {
	meas, err := r.Measurement()
	if err != nil {
		return err
	}

	v := mat.NewVecDense(3, nil)
	v.AddVec(element.MustValue[*mat.VecDense](cur, "MwM"), element.MustValue[*mat.VecDense](cur, "MwM_bias"))
	v.AddScaledVec(v, 1.0/math.Sqrt(r.Dt()), element.MustValue[*mat.VecDense](noi, "MwM"))
	v.SubVec(element.MustValue[*mat.VecDense](meas, "MwM"), v)
	element.MustSet(inn, "MwM", v)

	return nil
}

// JacPre writes nothing: the residual is unary.
func (r *RorUpdate) JacPre(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	return nil
}

// JacCur writes the Jacobian w.r.t. the current state.
func (r *RorUpdate) JacCur(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	jac.Zero()
	for _, k := range []int{0, 1} {
		b := r.JacBlockCur(jac, 0, k)
		for i := 0; i < 3; i++ {
			b.Set(i, i, -1.0)
		}
	}

	return nil
}

// JacNoi writes the Jacobian w.r.t. the noise.
func (r *RorUpdate) JacNoi(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	jac.Zero()
	b := r.JacBlockNoi(jac, 0, 0)
	s := -1.0 / math.Sqrt(r.Dt())
	for i := 0; i < 3; i++ {
		b.Set(i, i, s)
	}

	return nil
}
