package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	gif "github.com/milosgajdos/go-gif"
	"github.com/milosgajdos/go-gif/element"
	"github.com/milosgajdos/go-gif/residuals"
)

var start = time.Unix(1000, 0)

func at(sec float64) gif.TimePoint {
	return start.Add(gif.FromSec(sec))
}

func fixedClock() Option {
	return WithClock(func() gif.TimePoint { return start })
}

// velocity + accelerometer filter: the accelerometer stream is re-timed
// onto the velocity residual break points and both channels advance the
// state together
func TestVelAccFilter(t *testing.T) {
	assert := assert.New(t)

	velRes, err := residuals.NewVelocityResidual("velRes", 0.1)
	assert.NoError(err)
	accRes, err := residuals.NewAccResidual("accRes", 0.1)
	assert.NoError(err)

	f := New(fixedClock())
	velCh, err := f.AddResidual(velRes, gif.FromSec(0.1), 0)
	assert.NoError(err)
	accCh, err := f.AddResidual(accRes, gif.FromSec(0.1), 0)
	assert.NoError(err)

	// joint state is the union of the residual states
	assert.Equal(6, f.StateDefinition().Dim())

	for _, sec := range []float64{-0.1, 0.0, 0.2, 0.3, 0.4} {
		assert.NoError(f.AddMeasurement(velCh, residuals.NewEmptyMeas(), at(sec)))
	}
	accs := map[float64]float64{-0.1: -0.1, 0.0: 0.0, 0.1: 0.1, 0.3: 0.4, 0.5: 0.3}
	for _, sec := range []float64{-0.1, 0.0, 0.1, 0.3, 0.5} {
		assert.NoError(f.AddMeasurement(accCh, residuals.NewAccMeas(element.NewVec(accs[sec], 0, 0)), at(sec)))
	}

	assert.NoError(f.Update())

	// the horizon is bounded by the velocity channel
	assert.True(f.Time().Equal(at(0.4)), "time is %v", f.Time())

	// positive accelerations along +x drag the velocity estimate up
	vel := element.MustValue[*mat.VecDense](f.State(), "vel")
	assert.Greater(vel.AtVec(0), 0.0)
	assert.InDelta(0.0, vel.AtVec(1), 1e-9)

	// consumed measurements are gone, the late accelerometer sample stays
	assert.Equal(0, f.Timeline(velCh).Len())
	assert.Equal(1, f.Timeline(accCh).Len())

	// a second update without new measurements is a no-op
	stateBefore := f.State()
	assert.NoError(f.Update())
	assert.True(f.Time().Equal(at(0.4)))
	d := mat.NewVecDense(6, nil)
	assert.NoError(f.State().BoxMinus(stateBefore, d))
	assert.InDelta(0.0, mat.Norm(d, 2), 1e-12)
}

// the same filter built with the prediction flavour of the accelerometer
// residual behaves alike
func TestVelAccPredictionFilter(t *testing.T) {
	assert := assert.New(t)

	velRes, err := residuals.NewVelocityResidual("velRes", 0.1)
	assert.NoError(err)
	accPre, err := residuals.NewAccPrediction("accPre", 0.1)
	assert.NoError(err)

	f := New(fixedClock())
	velCh, err := f.AddResidual(velRes, gif.FromSec(0.1), 0)
	assert.NoError(err)
	accCh, err := f.AddResidual(accPre, gif.FromSec(0.1), 0)
	assert.NoError(err)

	for _, sec := range []float64{-0.1, 0.0, 0.2, 0.3, 0.4} {
		assert.NoError(f.AddMeasurement(velCh, residuals.NewEmptyMeas(), at(sec)))
	}
	accs := map[float64]float64{-0.1: -0.1, 0.0: 0.0, 0.1: 0.1, 0.3: 0.4, 0.5: 0.3}
	for _, sec := range []float64{-0.1, 0.0, 0.1, 0.3, 0.5} {
		assert.NoError(f.AddMeasurement(accCh, residuals.NewAccMeas(element.NewVec(accs[sec], 0, 0)), at(sec)))
	}

	assert.NoError(f.Update())
	assert.NoError(f.Update())

	assert.True(f.Time().Equal(at(0.4)))
	vel := element.MustValue[*mat.VecDense](f.State(), "vel")
	assert.Greater(vel.AtVec(0), 0.0)
}

// two spanning channels at different rates share every break point after
// alignment
func TestSplitCoverage(t *testing.T) {
	assert := assert.New(t)

	slow, err := residuals.NewAccResidual("slow", 0.1)
	assert.NoError(err)
	fast, err := residuals.NewAccResidual("fast", 0.05)
	assert.NoError(err)

	f := New(WithClock(func() gif.TimePoint { return at(0.35) }))
	slowCh, err := f.AddResidual(slow, gif.FromSec(0.1), 0)
	assert.NoError(err)
	fastCh, err := f.AddResidual(fast, gif.FromSec(0.1), 0)
	assert.NoError(err)

	// 10 Hz channel: baseline at 0, then every 100 ms
	for _, sec := range []float64{0.0, 0.1, 0.2, 0.3} {
		assert.NoError(f.AddMeasurement(slowCh, residuals.NewAccMeas(element.NewVec(0.1, 0, 0)), at(sec)))
	}
	// 20 Hz channel: baseline at 0, then every 50 ms
	for _, sec := range []float64{0.0, 0.05, 0.1, 0.15, 0.2, 0.25} {
		assert.NoError(f.AddMeasurement(fastCh, residuals.NewAccMeas(element.NewVec(0.2, 0, 0)), at(sec)))
	}

	assert.NoError(f.Update())

	// the fast channel bounds the horizon at 0.25: the slow channel can
	// only reach it by splitting its 0.3 measurement there, so both
	// channels processed every boundary
	assert.True(f.Time().Equal(at(0.25)), "time is %v", f.Time())
	assert.True(f.Timeline(slowCh).GetLastProcessedTime().Equal(at(0.25)))
	assert.True(f.Timeline(fastCh).GetLastProcessedTime().Equal(at(0.25)))

	// the split remainder covering (0.25, 0.3] is still stored
	assert.Equal(1, f.Timeline(slowCh).Len())
	assert.Equal(0, f.Timeline(fastCh).Len())
}

func TestAddResidualErrors(t *testing.T) {
	assert := assert.New(t)

	accRes, err := residuals.NewAccResidual("accRes", 0.1)
	assert.NoError(err)

	f := New(fixedClock())
	_, err = f.AddResidual(accRes, gif.FromSec(0.1), 0)
	assert.NoError(err)

	// "vel" as a quaternion collides with the accelerometer state
	clash, err := residuals.NewRandomWalk("clash", element.MustDefinition(
		element.Spec{Name: "vel", Traits: element.Quat()},
	))
	assert.NoError(err)
	_, err = f.AddResidual(clash, gif.FromSec(0.1), 0)
	assert.ErrorIs(err, element.ErrTypeMismatch)

	// adding residuals after initialisation is rejected
	f.Init(start)
	_, err = f.AddResidual(accRes, gif.FromSec(0.1), 0)
	assert.ErrorIs(err, ErrInitialized)
}

func TestAddMeasurementErrors(t *testing.T) {
	assert := assert.New(t)

	f := New(fixedClock())
	err := f.AddMeasurement(0, residuals.NewEmptyMeas(), start)
	assert.ErrorIs(err, ErrInvalidChannel)
}

func TestInitAndAccessors(t *testing.T) {
	assert := assert.New(t)

	accRes, err := residuals.NewAccResidual("accRes", 0.1)
	assert.NoError(err)

	f := New(fixedClock(), WithInitInformation(4.0))
	ch, err := f.AddResidual(accRes, gif.FromSec(0.1), 0)
	assert.NoError(err)
	assert.Equal(0, ch)

	f.Init(start)
	assert.True(f.Time().Equal(start))
	assert.Equal(3, f.State().Dim())
	assert.InDelta(4.0, f.Information().At(0, 0), 1e-12)

	cov, err := f.Covariance()
	assert.NoError(err)
	assert.InDelta(0.25, cov.At(0, 0), 1e-12)

	// state and information setters
	x := element.NewVector(f.StateDefinition())
	element.MustSet(x, "vel", element.NewVec(1, 2, 3))
	assert.NoError(f.SetState(x))
	assert.InDelta(2.0, element.MustValue[*mat.VecDense](f.State(), "vel").AtVec(1), 1e-12)

	inf := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		inf.SetSym(i, i, 2.0)
	}
	assert.NoError(f.SetInformation(inf))
	assert.InDelta(2.0, f.Information().At(2, 2), 1e-12)

	// non-SPD information is rejected
	bad := mat.NewSymDense(3, nil)
	assert.Error(f.SetInformation(bad))

	assert.Same(accRes, f.Residual(ch))
	assert.NotEmpty(f.PrintConnectivity())
}

// updating a filter with no measurements at all stays a no-op
func TestUpdateNoMeasurements(t *testing.T) {
	assert := assert.New(t)

	accRes, err := residuals.NewAccResidual("accRes", 0.1)
	assert.NoError(err)

	f := New(fixedClock())
	_, err = f.AddResidual(accRes, gif.FromSec(0.1), 0)
	assert.NoError(err)

	assert.NoError(f.Update())
	assert.False(f.Time().After(start))
}
