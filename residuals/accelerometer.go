package residuals

import (
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-gif/element"
	"github.com/milosgajdos/go-gif/residual"
)

// NewAccMeas builds an accelerometer measurement.
func NewAccMeas(acc *mat.VecDense) *element.Vector {
	m := element.NewVector(element.MustDefinition(
		element.Spec{Name: "acc", Traits: element.Vec(3)},
	))
	element.MustSet(m, "acc", acc)

	return m
}

// AccResidual integrates accelerometer measurements into the velocity:
// velCur explains velPre advanced by the measured acceleration. It is
// splittable and mergeable, so its measurement stream can be re-timed
// onto the shared break-point set.
type AccResidual struct {
	*residual.Base
	dt float64
}

// NewAccResidual creates a new accelerometer residual with a fixed
// nominal step length.
func NewAccResidual(name string, dt float64) (*AccResidual, error) {
	inn := element.MustDefinition(element.Spec{Name: "vel", Traits: element.Vec(3)})
	pre := element.MustDefinition(element.Spec{Name: "vel", Traits: element.Vec(3)})
	cur := element.MustDefinition(element.Spec{Name: "vel", Traits: element.Vec(3)})
	noi := element.MustDefinition(element.Spec{Name: "vel", Traits: element.Vec(3)})

	base, err := residual.NewBase(name, inn, pre, cur, noi, false, true, true)
	if err != nil {
		return nil, err
	}

	return &AccResidual{Base: base, dt: dt}, nil
}

// Eval evaluates velPre + dt*acc - velCur + noi.
func (r *AccResidual) Eval(inn *element.Vector, pre, cur, noi *element.Vector) error {
	meas, err := r.Measurement()
	if err != nil {
		return err
	}

	v := mat.NewVecDense(3, nil)
	v.AddScaledVec(element.MustValue[*mat.VecDense](pre, "vel"), r.dt, element.MustValue[*mat.VecDense](meas, "acc"))
	v.SubVec(v, element.MustValue[*mat.VecDense](cur, "vel"))
	v.AddVec(v, element.MustValue[*mat.VecDense](noi, "vel"))
	element.MustSet(inn, "vel", v)

	return nil
}

// JacPre writes the Jacobian w.r.t. the previous state.
func (r *AccResidual) JacPre(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	jac.Zero()
	for i := 0; i < 3; i++ {
		r.JacBlockPre(jac, 0, 0).Set(i, i, 1.0)
	}

	return nil
}

// JacCur writes the Jacobian w.r.t. the current state.
func (r *AccResidual) JacCur(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	jac.Zero()
	for i := 0; i < 3; i++ {
		r.JacBlockCur(jac, 0, 0).Set(i, i, -1.0)
	}

	return nil
}

// JacNoi writes the Jacobian w.r.t. the noise.
func (r *AccResidual) JacNoi(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	jac.Zero()
	for i := 0; i < 3; i++ {
		r.JacBlockNoi(jac, 0, 0).Set(i, i, 1.0)
	}

	return nil
}

// accPredictor implements the accelerometer velocity propagation as a
// prediction model.
type accPredictor struct {
	base *residual.Base
	dt   float64
}

// NewAccPrediction creates the accelerometer velocity propagation as a
// prediction residual: velCur = velPre + dt*acc + noi.
func NewAccPrediction(name string, dt float64) (*residual.Prediction, error) {
	state := element.MustDefinition(element.Spec{Name: "vel", Traits: element.Vec(3)})
	noi := element.MustDefinition(element.Spec{Name: "vel", Traits: element.Vec(3)})

	m := &accPredictor{dt: dt}
	pred, err := residual.NewPrediction(name, m, state, noi)
	if err != nil {
		return nil, err
	}
	m.base = pred.Base

	return pred, nil
}

func (m *accPredictor) Predict(cur *element.Vector, pre, noi *element.Vector) error {
	meas, err := m.base.Measurement()
	if err != nil {
		return err
	}

	v := mat.NewVecDense(3, nil)
	v.AddScaledVec(element.MustValue[*mat.VecDense](pre, "vel"), m.dt, element.MustValue[*mat.VecDense](meas, "acc"))
	v.AddVec(v, element.MustValue[*mat.VecDense](noi, "vel"))

	return element.Set(cur, "vel", v)
}

func (m *accPredictor) PredictJacPre(jac *mat.Dense, pre, noi *element.Vector) error {
	jac.Zero()
	for i := 0; i < 3; i++ {
		jac.Set(i, i, 1.0)
	}

	return nil
}

func (m *accPredictor) PredictJacNoi(jac *mat.Dense, pre, noi *element.Vector) error {
	jac.Zero()
	for i := 0; i < 3; i++ {
		jac.Set(i, i, 1.0)
	}

	return nil
}
