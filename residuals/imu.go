// Package residuals provides concrete residuals for inertial, pose and
// kinematic fusion built on the residual contracts.
package residuals

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/milosgajdos/go-gif/element"
	"github.com/milosgajdos/go-gif/residual"
)

// Gravity is the inertial-frame gravity vector.
var Gravity = element.NewVec(0, 0, -9.81)

// NewImuMeas builds an IMU measurement holding the rotational rate MwM
// and the proper acceleration MaM, both in the IMU frame.
func NewImuMeas(gyr, acc *mat.VecDense) *element.Vector {
	m := element.NewVector(element.MustDefinition(
		element.Spec{Name: "MwM", Traits: element.Vec(3)},
		element.Spec{Name: "MaM", Traits: element.Vec(3)},
	))
	element.MustSet(m, "MwM", gyr)
	element.MustSet(m, "MaM", acc)

	return m
}

// ImuPrediction is a strapdown IMU propagation residual over the state
// {IrIM, IvM, MwM_bias, MaM_bias, qIM}: inertial position, inertial
// velocity, gyroscope bias, accelerometer bias and attitude. Noise enters
// as random walk scaled with the square root of the interval length.
type ImuPrediction struct {
	*residual.Base
}

func imuStateDefinition() *element.Definition {
	return element.MustDefinition(
		element.Spec{Name: "IrIM", Traits: element.Vec(3)},
		element.Spec{Name: "IvM", Traits: element.Vec(3)},
		element.Spec{Name: "MwM_bias", Traits: element.Vec(3)},
		element.Spec{Name: "MaM_bias", Traits: element.Vec(3)},
		element.Spec{Name: "qIM", Traits: element.Quat()},
	)
}

func imuTangentDefinition() *element.Definition {
	return element.MustDefinition(
		element.Spec{Name: "IrIM", Traits: element.Vec(3)},
		element.Spec{Name: "IvM", Traits: element.Vec(3)},
		element.Spec{Name: "MwM_bias", Traits: element.Vec(3)},
		element.Spec{Name: "MaM_bias", Traits: element.Vec(3)},
		element.Spec{Name: "qIM", Traits: element.Vec(3)},
	)
}

// NewImuPrediction creates a new IMU propagation residual.
func NewImuPrediction(name string) (*ImuPrediction, error) {
	base, err := residual.NewBase(name,
		imuTangentDefinition(), imuStateDefinition(), imuStateDefinition(), imuTangentDefinition(),
		false, true, true)
	if err != nil {
		return nil, err
	}

	return &ImuPrediction{Base: base}, nil
}

// inputs gathers the bound measurement and the interval length shared by
// the evaluation and all Jacobians.
func (r *ImuPrediction) inputs() (gyr, acc *mat.VecDense, dt float64, err error) {
	meas, err := r.Measurement()
	if err != nil {
		return nil, nil, 0, err
	}
	gyr, err = element.Value[*mat.VecDense](meas, "MwM")
	if err != nil {
		return nil, nil, 0, err
	}
	acc, err = element.Value[*mat.VecDense](meas, "MaM")
	if err != nil {
		return nil, nil, 0, err
	}

	return gyr, acc, r.Dt(), nil
}

// Eval evaluates the propagation innovation: the predicted state boxminus
// the current one, with additive noise scaled by sqrt(dt).
func (r *ImuPrediction) Eval(inn *element.Vector, pre, cur, noi *element.Vector) error {
	gyr, acc, dt, err := r.inputs()
	if err != nil {
		return err
	}
	sq := math.Sqrt(dt)

	qPre := element.MustValue[quat.Number](pre, "qIM")
	rot := element.RotationMatrix(qPre)

	// position
	p := mat.NewVecDense(3, nil)
	p.AddScaledVec(element.MustValue[*mat.VecDense](pre, "IrIM"), dt, element.MustValue[*mat.VecDense](pre, "IvM"))
	p.SubVec(p, element.MustValue[*mat.VecDense](cur, "IrIM"))
	p.AddScaledVec(p, sq, element.MustValue[*mat.VecDense](noi, "IrIM"))
	element.MustSet(inn, "IrIM", p)

	// velocity
	f := mat.NewVecDense(3, nil)
	f.SubVec(acc, element.MustValue[*mat.VecDense](pre, "MaM_bias"))
	aI := mat.NewVecDense(3, nil)
	aI.MulVec(rot, f)
	aI.AddVec(aI, Gravity)
	v := mat.NewVecDense(3, nil)
	v.AddScaledVec(element.MustValue[*mat.VecDense](pre, "IvM"), dt, aI)
	v.SubVec(v, element.MustValue[*mat.VecDense](cur, "IvM"))
	v.AddScaledVec(v, sq, element.MustValue[*mat.VecDense](noi, "IvM"))
	element.MustSet(inn, "IvM", v)

	// biases
	for _, name := range []string{"MwM_bias", "MaM_bias"} {
		b := mat.NewVecDense(3, nil)
		b.SubVec(element.MustValue[*mat.VecDense](pre, name), element.MustValue[*mat.VecDense](cur, name))
		b.AddScaledVec(b, sq, element.MustValue[*mat.VecDense](noi, name))
		element.MustSet(inn, name, b)
	}

	// attitude
	w := r.rotIncrement(pre, gyr, dt)
	qPred := quat.Mul(element.ExpQuat(w), qPre)
	d := element.LogQuat(quat.Mul(qPred, quat.Inv(element.MustValue[quat.Number](cur, "qIM"))))
	d.AddScaledVec(d, sq, element.MustValue[*mat.VecDense](noi, "qIM"))
	element.MustSet(inn, "qIM", d)

	return nil
}

// rotIncrement returns the world-frame rotation increment dt*R(q)(gyr - bias).
func (r *ImuPrediction) rotIncrement(pre *element.Vector, gyr *mat.VecDense, dt float64) *mat.VecDense {
	om := mat.NewVecDense(3, nil)
	om.SubVec(gyr, element.MustValue[*mat.VecDense](pre, "MwM_bias"))
	w := element.RotateVec(element.MustValue[quat.Number](pre, "qIM"), om)
	w.ScaleVec(dt, w)

	return w
}

// JacPre writes the Jacobian w.r.t. the previous state.
func (r *ImuPrediction) JacPre(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	gyr, acc, dt, err := r.inputs()
	if err != nil {
		return err
	}
	jac.Zero()

	qPre := element.MustValue[quat.Number](pre, "qIM")
	rot := element.RotationMatrix(qPre)

	eye := func(s float64) *mat.Dense {
		m := mat.NewDense(3, 3, nil)
		for i := 0; i < 3; i++ {
			m.Set(i, i, s)
		}
		return m
	}

	// position w.r.t. position and velocity
	r.JacBlockPre(jac, 0, 0).Copy(eye(1.0))
	r.JacBlockPre(jac, 0, 1).Copy(eye(dt))

	// velocity w.r.t. velocity, accelerometer bias and attitude
	r.JacBlockPre(jac, 1, 1).Copy(eye(1.0))
	f := mat.NewVecDense(3, nil)
	f.SubVec(acc, element.MustValue[*mat.VecDense](pre, "MaM_bias"))
	rf := mat.NewVecDense(3, nil)
	rf.MulVec(rot, f)
	jab := &mat.Dense{}
	jab.Scale(-dt, rot)
	r.JacBlockPre(jac, 1, 3).Copy(jab)
	jav := element.Skew(rf)
	jav.Scale(-dt, jav)
	r.JacBlockPre(jac, 1, 4).Copy(jav)

	// biases
	r.JacBlockPre(jac, 2, 2).Copy(eye(1.0))
	r.JacBlockPre(jac, 3, 3).Copy(eye(1.0))

	// attitude w.r.t. attitude and gyroscope bias
	w := r.rotIncrement(pre, gyr, dt)
	qPred := quat.Mul(element.ExpQuat(w), qPre)
	v := element.LogQuat(quat.Mul(qPred, quat.Inv(element.MustValue[quat.Number](cur, "qIM"))))
	gvInv := invert(element.GammaMatrix(v))
	gw := element.GammaMatrix(w)

	jq := &mat.Dense{}
	jq.Mul(gw, element.Skew(w))
	jq.Sub(element.RotationMatrix(element.ExpQuat(w)), jq)
	jq.Mul(gvInv, jq)
	r.JacBlockPre(jac, 4, 4).Copy(jq)

	jwb := &mat.Dense{}
	jwb.Mul(gw, rot)
	jwb.Scale(-dt, jwb)
	jwb.Mul(gvInv, jwb)
	r.JacBlockPre(jac, 4, 2).Copy(jwb)

	return nil
}

// JacCur writes the Jacobian w.r.t. the current state.
func (r *ImuPrediction) JacCur(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	gyr, _, dt, err := r.inputs()
	if err != nil {
		return err
	}
	jac.Zero()

	for i := 0; i < 4; i++ {
		b := r.JacBlockCur(jac, i, i)
		for k := 0; k < 3; k++ {
			b.Set(k, k, -1.0)
		}
	}

	w := r.rotIncrement(pre, gyr, dt)
	qPred := quat.Mul(element.ExpQuat(w), element.MustValue[quat.Number](pre, "qIM"))
	d := quat.Mul(qPred, quat.Inv(element.MustValue[quat.Number](cur, "qIM")))
	j := &mat.Dense{}
	j.Mul(invert(element.GammaMatrix(element.LogQuat(d))), element.RotationMatrix(d))
	j.Scale(-1.0, j)
	r.JacBlockCur(jac, 4, 4).Copy(j)

	return nil
}

// JacNoi writes the Jacobian w.r.t. the noise: sqrt(dt) on the diagonal.
func (r *ImuPrediction) JacNoi(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	_, _, dt, err := r.inputs()
	if err != nil {
		return err
	}
	jac.Zero()

	sq := math.Sqrt(dt)
	for i := 0; i < 5; i++ {
		b := r.JacBlockNoi(jac, i, i)
		for k := 0; k < 3; k++ {
			b.Set(k, k, sq)
		}
	}

	return nil
}

func invert(m *mat.Dense) *mat.Dense {
	out := &mat.Dense{}
	if err := out.Inverse(m); err != nil {
		panic(err)
	}
	return out
}
