package residuals

import (
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-gif/element"
	"github.com/milosgajdos/go-gif/residual"
)

// VelocityResidual is a kinematic coupling of position and velocity:
// posCur explains posPre advanced by the interval velocity. It carries no
// measurement payload and is neither splittable nor mergeable.
type VelocityResidual struct {
	*residual.Base
	dt float64
}

// NewEmptyMeas builds a measurement without payload for residuals which
// only consume the measurement time.
func NewEmptyMeas() *element.Vector {
	return element.NewVector(element.MustDefinition())
}

// NewVelocityResidual creates a new velocity residual with a fixed
// nominal step length.
func NewVelocityResidual(name string, dt float64) (*VelocityResidual, error) {
	inn := element.MustDefinition(element.Spec{Name: "pos", Traits: element.Vec(3)})
	pre := element.MustDefinition(
		element.Spec{Name: "pos", Traits: element.Vec(3)},
		element.Spec{Name: "vel", Traits: element.Vec(3)},
	)
	cur := element.MustDefinition(element.Spec{Name: "pos", Traits: element.Vec(3)})
	noi := element.MustDefinition(element.Spec{Name: "pos", Traits: element.Vec(3)})

	base, err := residual.NewBase(name, inn, pre, cur, noi, false, false, false)
	if err != nil {
		return nil, err
	}

	return &VelocityResidual{Base: base, dt: dt}, nil
}

// Eval evaluates posPre + dt*velPre - posCur + noi.
func (r *VelocityResidual) Eval(inn *element.Vector, pre, cur, noi *element.Vector) error {
	p := mat.NewVecDense(3, nil)
	p.AddScaledVec(element.MustValue[*mat.VecDense](pre, "pos"), r.dt, element.MustValue[*mat.VecDense](pre, "vel"))
	p.SubVec(p, element.MustValue[*mat.VecDense](cur, "pos"))
	p.AddVec(p, element.MustValue[*mat.VecDense](noi, "pos"))
	element.MustSet(inn, "pos", p)

	return nil
}

// JacPre writes the Jacobian w.r.t. the previous state.
func (r *VelocityResidual) JacPre(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	jac.Zero()
	for i := 0; i < 3; i++ {
		r.JacBlockPre(jac, 0, 0).Set(i, i, 1.0)
		r.JacBlockPre(jac, 0, 1).Set(i, i, r.dt)
	}

	return nil
}

// JacCur writes the Jacobian w.r.t. the current state.
func (r *VelocityResidual) JacCur(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	jac.Zero()
	for i := 0; i < 3; i++ {
		r.JacBlockCur(jac, 0, 0).Set(i, i, -1.0)
	}

	return nil
}

// JacNoi writes the Jacobian w.r.t. the noise.
func (r *VelocityResidual) JacNoi(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	jac.Zero()
	for i := 0; i < 3; i++ {
		r.JacBlockNoi(jac, 0, 0).Set(i, i, 1.0)
	}

	return nil
}
