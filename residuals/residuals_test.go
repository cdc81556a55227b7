package residuals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	gif "github.com/milosgajdos/go-gif"
	"github.com/milosgajdos/go-gif/element"
	"github.com/milosgajdos/go-gif/filter"
	"github.com/milosgajdos/go-gif/residual"
	"github.com/milosgajdos/go-gif/rnd"
)

const (
	jacStep = 1e-6
	jacTol  = 1e-6
)

func randomTriple(r residual.Residual, seed uint64) (pre, cur, noi *element.Vector) {
	rng := rnd.New(seed)
	pre = element.NewVector(r.PreDefinition())
	pre.SetRandom(rng)
	cur = element.NewVector(r.CurDefinition())
	cur.SetRandom(rng)
	noi = element.NewVector(r.NoiDefinition())
	if err := noi.BoxPlus(scaledRandom(rng, noi.Dim(), 0.1), noi); err != nil {
		panic(err)
	}

	return pre, cur, noi
}

func scaledRandom(rng *rand.Rand, n int, s float64) *mat.VecDense {
	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, s*rng.NormFloat64())
	}

	return v
}

func TestVelocityResidualJacs(t *testing.T) {
	assert := assert.New(t)

	r, err := NewVelocityResidual("velRes", 0.1)
	assert.NoError(err)
	r.BindMeasurement(NewEmptyMeas(), gif.FromSec(0.1))

	pre, cur, noi := randomTriple(r, 31)
	assert.NoError(residual.TestJacs(r, pre, cur, noi, jacStep, jacTol))
}

func TestAccResidualJacs(t *testing.T) {
	assert := assert.New(t)

	r, err := NewAccResidual("accRes", 0.1)
	assert.NoError(err)
	r.BindMeasurement(NewAccMeas(element.NewVec(0.1, -0.2, 0.3)), gif.FromSec(0.1))

	pre, cur, noi := randomTriple(r, 32)
	assert.NoError(residual.TestJacs(r, pre, cur, noi, jacStep, jacTol))
}

func TestAccPredictionJacs(t *testing.T) {
	assert := assert.New(t)

	r, err := NewAccPrediction("accPre", 0.1)
	assert.NoError(err)
	r.BindMeasurement(NewAccMeas(element.NewVec(0.1, -0.2, 0.3)), gif.FromSec(0.1))

	pre, cur, noi := randomTriple(r, 33)
	assert.NoError(residual.TestJacs(r, pre, cur, noi, jacStep, jacTol))
}

func TestImuPredictionJacs(t *testing.T) {
	assert := assert.New(t)

	r, err := NewImuPrediction("imuPre")
	assert.NoError(err)
	r.BindMeasurement(NewImuMeas(element.NewVec(0.3, -0.1, 0.2), element.NewVec(0.1, 0.2, 9.81)), gif.FromSec(0.1))

	pre, cur, noi := randomTriple(r, 34)
	assert.NoError(residual.TestJacs(r, pre, cur, noi, jacStep, jacTol))
}

func TestPoseUpdateJacs(t *testing.T) {
	assert := assert.New(t)

	r, err := NewPoseUpdate("poseUpd")
	assert.NoError(err)

	rng := rnd.New(35)
	att := element.Quat().Random(rng).(quat.Number)
	r.BindMeasurement(NewPoseMeas(element.NewVec(0.4, -0.3, 0.2), att), gif.FromSec(0.1))

	pre, cur, noi := randomTriple(r, 36)
	assert.NoError(residual.TestJacs(r, pre, cur, noi, jacStep, jacTol))
}

func TestRandomWalkJacs(t *testing.T) {
	assert := assert.New(t)

	r, err := NewRandomWalk("extPre", element.MustDefinition(
		element.Spec{Name: "IrIJ", Traits: element.Vec(3)},
		element.Spec{Name: "qIJ", Traits: element.Quat()},
	))
	assert.NoError(err)
	r.BindMeasurement(NewEmptyMeas(), gif.FromSec(0.1))

	pre, cur, noi := randomTriple(r, 37)
	assert.NoError(residual.TestJacs(r, pre, cur, noi, jacStep, jacTol))
}

func TestRorUpdateJacs(t *testing.T) {
	assert := assert.New(t)

	r, err := NewRorUpdate("rorUpd")
	assert.NoError(err)
	r.BindMeasurement(NewRorMeas(element.NewVec(0.3, 0.0, -0.1)), gif.FromSec(0.1))

	pre, cur, noi := randomTriple(r, 38)
	assert.NoError(residual.TestJacs(r, pre, cur, noi, jacStep, jacTol))
}

func TestRorHuberWeighting(t *testing.T) {
	assert := assert.New(t)

	r, err := NewRorUpdate("rorUpd")
	assert.NoError(err)

	inn := element.NewVec(3.0, 0.0, 0.0)
	assert.Equal(1.0, r.NoiseWeighting(inn, 0))

	r.SetHuberThreshold(1.0)
	w := r.NoiseWeighting(inn, 0)
	assert.Less(w, 1.0)
	assert.Greater(w, 0.0)
}

// stationary IMU fused with pose measurements and a random walk on the
// pose frame extrinsics: every update cycle must converge and the
// extrinsic estimate stay bounded
func TestImuPoseFilter(t *testing.T) {
	assert := assert.New(t)

	imuPre, err := NewImuPrediction("imuPre")
	assert.NoError(err)
	imuPre.ScaleNoiseCovariance(1e-4)

	extPre, err := NewRandomWalk("extPre", element.MustDefinition(
		element.Spec{Name: "IrIJ", Traits: element.Vec(3)},
		element.Spec{Name: "qIJ", Traits: element.Quat()},
	))
	assert.NoError(err)
	extPre.ScaleNoiseCovariance(1e-4)

	poseUpd, err := NewPoseUpdate("poseUpd")
	assert.NoError(err)
	poseUpd.ScaleNoiseCovariance(1e-4)

	start := time.Unix(2000, 0)
	now := start
	f := filter.New(filter.WithClock(func() gif.TimePoint { return now }))

	imuCh, err := f.AddResidual(imuPre, gif.FromSec(0.1), 0)
	assert.NoError(err)
	extCh, err := f.AddResidual(extPre, gif.FromSec(0.1), 0)
	assert.NoError(err)
	poseCh, err := f.AddResidual(poseUpd, gif.FromSec(0.1), 0)
	assert.NoError(err)

	// state: imu state plus extrinsics
	assert.Equal(21, f.StateDefinition().Dim())

	stationary := func() *element.Vector {
		return NewImuMeas(element.NewVec(0, 0, 0), element.NewVec(0, 0, 9.81))
	}

	assert.NoError(f.AddMeasurement(imuCh, stationary(), start))
	assert.NoError(f.Update())

	for i := 1; i <= 10; i++ {
		tImu := start.Add(gif.FromSec(0.1 * float64(i)))
		tPose := start.Add(gif.FromSec(0.05 + 0.1*float64(i)))

		assert.NoError(f.AddMeasurement(imuCh, stationary(), tImu))
		now = tImu
		assert.NoError(f.Update())

		assert.NoError(f.AddMeasurement(poseCh, NewPoseMeas(element.NewVec(0, 0, 0), quat.Number{Real: 1}), tPose))
		assert.NoError(f.AddMeasurement(extCh, NewEmptyMeas(), tPose))
		now = tPose
		assert.NoError(f.Update())
	}

	// the stationary setup keeps the whole state near identity
	state := f.State()
	vel := element.MustValue[*mat.VecDense](state, "IvM")
	assert.InDelta(0.0, mat.Norm(vel, 2), 1e-6)

	ext := element.MustValue[*mat.VecDense](state, "IrIJ")
	assert.Less(mat.Norm(ext, 2), 1.0)

	att := element.MustValue[quat.Number](state, "qIM")
	assert.InDelta(1.0, att.Real, 1e-6)

	assert.True(f.Time().After(start))
}
