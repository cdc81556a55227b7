package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	"github.com/milosgajdos/go-gif/noise"
	"github.com/milosgajdos/go-gif/rnd"
)

func TestCorrupt(t *testing.T) {
	assert := assert.New(t)

	v := mat.NewVecDense(2, []float64{1.0, 2.0})

	z, err := noise.NewZero(2)
	assert.NoError(err)
	out, err := Corrupt(v, z)
	assert.NoError(err)
	assert.Equal(1.0, out.AtVec(0))
	assert.Equal(2.0, out.AtVec(1))

	g, err := noise.NewGaussian([]float64{0, 0}, mat.NewSymDense(2, []float64{0.01, 0, 0, 0.01}), rnd.New(5))
	assert.NoError(err)
	out, err = Corrupt(v, g)
	assert.NoError(err)
	assert.InDelta(1.0, out.AtVec(0), 1.0)

	// dimension mismatch
	z3, err := noise.NewZero(3)
	assert.NoError(err)
	_, err = Corrupt(v, z3)
	assert.Error(err)
}

func TestCorruptBatch(t *testing.T) {
	assert := assert.New(t)

	vs := []*mat.VecDense{
		mat.NewVecDense(2, []float64{1.0, 2.0}),
		mat.NewVecDense(2, []float64{3.0, 4.0}),
	}
	cov := mat.NewSymDense(2, []float64{0.01, 0, 0, 0.01})

	out, err := CorruptBatch(rnd.New(9), vs, cov)
	assert.NoError(err)
	assert.Len(out, 2)
	for i := range out {
		assert.InDelta(vs[i].AtVec(0), out[i].AtVec(0), 1.0)
		assert.InDelta(vs[i].AtVec(1), out[i].AtVec(1), 1.0)
	}
	// the inputs stay untouched
	assert.Equal(1.0, vs[0].AtVec(0))

	// empty batch
	out, err = CorruptBatch(rnd.New(9), nil, cov)
	assert.NoError(err)
	assert.Nil(out)

	// dimension mismatch
	_, err = CorruptBatch(rnd.New(9), []*mat.VecDense{mat.NewVecDense(3, nil)}, cov)
	assert.Error(err)
}

func TestTrackAndPlot(t *testing.T) {
	assert := assert.New(t)

	var model, meas, filt Track
	for i := 0; i < 10; i++ {
		x := float64(i)
		model.Append(x, x)
		meas.Append(x, x+0.1)
		filt.Append(x, x+0.05)
	}
	assert.Equal(10, model.Len())

	mm, err := model.Matrix()
	assert.NoError(err)
	zm, err := meas.Matrix()
	assert.NoError(err)
	fm, err := filt.Matrix()
	assert.NoError(err)

	p, err := New2DPlot(mm, zm, fm)
	assert.NoError(err)
	assert.NotNil(p)

	// empty track
	var empty Track
	_, err = empty.Matrix()
	assert.Error(err)

	// nil data
	_, err = New2DPlot(nil, zm, fm)
	assert.Error(err)
}
