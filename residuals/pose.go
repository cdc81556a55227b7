package residuals

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/milosgajdos/go-gif/element"
	"github.com/milosgajdos/go-gif/residual"
)

// NewPoseMeas builds a pose measurement holding the IMU position JrJM and
// attitude qJM expressed in the external pose frame J.
func NewPoseMeas(pos *mat.VecDense, att quat.Number) *element.Vector {
	m := element.NewVector(element.MustDefinition(
		element.Spec{Name: "JrJM", Traits: element.Vec(3)},
		element.Spec{Name: "qJM", Traits: element.Quat()},
	))
	element.MustSet(m, "JrJM", pos)
	element.MustSet(m, "qJM", att)

	return m
}

// PoseUpdate is a unary update fusing an external pose measurement of the
// IMU in frame J while co-estimating the frame extrinsics: the state is
// {IrIM, qIM, IrIJ, qIJ} with the predicted measurement
//
//	JrJM = R(qIJ)'(IrIM - IrIJ),  qJM = qIJ^-1 * qIM.
type PoseUpdate struct {
	*residual.Base
}

// NewPoseUpdate creates a new pose update residual.
func NewPoseUpdate(name string) (*PoseUpdate, error) {
	inn := element.MustDefinition(
		element.Spec{Name: "JrJM", Traits: element.Vec(3)},
		element.Spec{Name: "qJM", Traits: element.Vec(3)},
	)
	cur := element.MustDefinition(
		element.Spec{Name: "IrIM", Traits: element.Vec(3)},
		element.Spec{Name: "qIM", Traits: element.Quat()},
		element.Spec{Name: "IrIJ", Traits: element.Vec(3)},
		element.Spec{Name: "qIJ", Traits: element.Quat()},
	)
	noi := element.MustDefinition(
		element.Spec{Name: "JrJM", Traits: element.Vec(3)},
		element.Spec{Name: "qJM", Traits: element.Vec(3)},
	)

	base, err := residual.NewUnaryBase(name, inn, cur, noi)
	if err != nil {
		return nil, err
	}

	return &PoseUpdate{Base: base}, nil
}

// predicted returns the pose of the IMU in frame J at cur.
func (r *PoseUpdate) predicted(cur *element.Vector) (*mat.VecDense, quat.Number) {
	qIJ := element.MustValue[quat.Number](cur, "qIJ")

	y := mat.NewVecDense(3, nil)
	y.SubVec(element.MustValue[*mat.VecDense](cur, "IrIM"), element.MustValue[*mat.VecDense](cur, "IrIJ"))
	p := element.RotateVec(quat.Inv(qIJ), y)

	q := quat.Mul(quat.Inv(qIJ), element.MustValue[quat.Number](cur, "qIM"))

	return p, q
}

// Eval evaluates the innovation: predicted pose perturbed by noise,
// compared against the measured pose.
func (r *PoseUpdate) Eval(inn *element.Vector, pre, cur, noi *element.Vector) error {
	meas, err := r.Measurement()
	if err != nil {
		return err
	}

	pEst, qEst := r.predicted(cur)

	p := mat.NewVecDense(3, nil)
	p.AddVec(pEst, element.MustValue[*mat.VecDense](noi, "JrJM"))
	p.SubVec(p, element.MustValue[*mat.VecDense](meas, "JrJM"))
	element.MustSet(inn, "JrJM", p)

	qn := quat.Mul(element.ExpQuat(element.MustValue[*mat.VecDense](noi, "qJM")), qEst)
	d := element.LogQuat(quat.Mul(qn, quat.Inv(element.MustValue[quat.Number](meas, "qJM"))))
	element.MustSet(inn, "qJM", d)

	return nil
}

// JacPre writes nothing: the residual is unary.
func (r *PoseUpdate) JacPre(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	return nil
}

// JacCur writes the Jacobian w.r.t. the current state.
func (r *PoseUpdate) JacCur(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	meas, err := r.Measurement()
	if err != nil {
		return err
	}
	jac.Zero()

	qIJ := element.MustValue[quat.Number](cur, "qIJ")
	rotIJT := element.RotationMatrix(quat.Inv(qIJ))

	// position row
	r.JacBlockCur(jac, 0, 0).Copy(rotIJT)
	neg := &mat.Dense{}
	neg.Scale(-1.0, rotIJT)
	r.JacBlockCur(jac, 0, 2).Copy(neg)

	y := mat.NewVecDense(3, nil)
	y.SubVec(element.MustValue[*mat.VecDense](cur, "IrIM"), element.MustValue[*mat.VecDense](cur, "IrIJ"))
	jq := &mat.Dense{}
	jq.Mul(rotIJT, element.Skew(y))
	r.JacBlockCur(jac, 0, 3).Copy(jq)

	// attitude row: chain through the noise boxplus and the measurement
	// boxminus
	_, qEst := r.predicted(cur)
	n := element.MustValue[*mat.VecDense](noi, "qJM")
	qn := quat.Mul(element.ExpQuat(n), qEst)
	v := element.LogQuat(quat.Mul(qn, quat.Inv(element.MustValue[quat.Number](meas, "qJM"))))

	chain := &mat.Dense{}
	chain.Mul(element.RotationMatrix(element.ExpQuat(n)), rotIJT)
	chain.Mul(invert(element.GammaMatrix(v)), chain)
	r.JacBlockCur(jac, 1, 1).Copy(chain)
	chain.Scale(-1.0, chain)
	r.JacBlockCur(jac, 1, 3).Copy(chain)

	return nil
}

// JacNoi writes the Jacobian w.r.t. the noise.
func (r *PoseUpdate) JacNoi(jac *mat.Dense, pre, cur, noi *element.Vector) error {
	meas, err := r.Measurement()
	if err != nil {
		return err
	}
	jac.Zero()

	b := r.JacBlockNoi(jac, 0, 0)
	for k := 0; k < 3; k++ {
		b.Set(k, k, 1.0)
	}

	_, qEst := r.predicted(cur)
	n := element.MustValue[*mat.VecDense](noi, "qJM")
	qn := quat.Mul(element.ExpQuat(n), qEst)
	v := element.LogQuat(quat.Mul(qn, quat.Inv(element.MustValue[quat.Number](meas, "qJM"))))

	j := &mat.Dense{}
	j.Mul(invert(element.GammaMatrix(v)), element.GammaMatrix(n))
	r.JacBlockNoi(jac, 1, 1).Copy(j)

	return nil
}
