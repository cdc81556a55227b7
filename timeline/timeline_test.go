package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	gif "github.com/milosgajdos/go-gif"
	"github.com/milosgajdos/go-gif/element"
)

var start = time.Unix(1000, 0)

func at(sec float64) gif.TimePoint {
	return start.Add(gif.FromSec(sec))
}

func scalarMeas(v float64) *element.Vector {
	m := element.NewVector(element.MustDefinition(element.Spec{Name: "v", Traits: element.Scalar()}))
	element.MustSet(m, "v", v)

	return m
}

// copySplit mirrors the residual defaults: split copies, merge keeps the
// later measurement.
type copySplit struct{}

func (copySplit) Name() string { return "copySplit" }

func (copySplit) SplitMeasurements(t0, t1, t2 gif.TimePoint, meas *element.Vector) (*element.Vector, *element.Vector, error) {
	return meas.Clone(), meas.Clone(), nil
}

func (copySplit) MergeMeasurements(t0, t1, t2 gif.TimePoint, a, b *element.Vector) (*element.Vector, error) {
	return b.Clone(), nil
}

func TestAddMeasurement(t *testing.T) {
	assert := assert.New(t)

	tl := New(false, gif.FromSec(0.1), 0)
	assert.NoError(tl.AddMeasurement(scalarMeas(1), at(0.0)))
	assert.NoError(tl.AddMeasurement(scalarMeas(2), at(0.1)))
	assert.Equal(2, tl.Len())

	// duplicate timestamps are rejected
	assert.ErrorIs(tl.AddMeasurement(scalarMeas(3), at(0.1)), ErrDuplicateTime)
	assert.Equal(2, tl.Len())

	m, ok := tl.GetMeasurement(at(0.0))
	assert.True(ok)
	assert.Equal(1.0, element.MustValue[float64](m, "v"))
	_, ok = tl.GetMeasurement(at(0.05))
	assert.False(ok)
}

// with drop_first the first measurement only sets the baseline
func TestDropFirst(t *testing.T) {
	assert := assert.New(t)

	tl := New(true, gif.FromSec(0.1), 0)
	assert.NoError(tl.AddMeasurement(scalarMeas(1), at(0.0)))
	assert.Equal(0, tl.Len())
	assert.True(tl.GetLastProcessedTime().Equal(at(0.0)))

	// a later measurement with the same timestamp must be rejected
	assert.ErrorIs(tl.AddMeasurement(scalarMeas(2), at(0.0)), ErrOrderViolation)
	assert.Equal(0, tl.Len())

	assert.NoError(tl.AddMeasurement(scalarMeas(3), at(0.1)))
	assert.Equal(1, tl.Len())
}

// last processed time is non-decreasing and stored keys stay above it
func TestMonotonicity(t *testing.T) {
	assert := assert.New(t)

	tl := New(false, gif.FromSec(0.1), 0)
	for _, sec := range []float64{0.0, 0.1, 0.2, 0.3} {
		assert.NoError(tl.AddMeasurement(scalarMeas(sec), at(sec)))
	}

	last := tl.GetLastProcessedTime()
	assert.NoError(tl.RemoveProcessedFirst())
	assert.False(tl.GetLastProcessedTime().Before(last))
	last = tl.GetLastProcessedTime()

	tl.RemoveOutdated(at(0.2))
	assert.False(tl.GetLastProcessedTime().Before(last))
	assert.True(tl.GetLastProcessedTime().Equal(at(0.2)))
	assert.Equal(1, tl.Len())
	assert.True(tl.GetFirstTime().After(tl.GetLastProcessedTime()))

	// measurements at or before the processed time are rejected
	assert.ErrorIs(tl.AddMeasurement(scalarMeas(9), at(0.15)), ErrOrderViolation)
}

func TestRangeQueries(t *testing.T) {
	assert := assert.New(t)

	tl := New(false, gif.FromSec(0.1), 0)
	for _, sec := range []float64{0.0, 0.1, 0.3, 0.5} {
		assert.NoError(tl.AddMeasurement(scalarMeas(sec), at(sec)))
	}

	// start is exclusive, end inclusive
	all := tl.GetAllInRange(at(0.0), at(0.3))
	assert.Len(all, 2)
	assert.True(all[0].Equal(at(0.1)))
	assert.True(all[1].Equal(at(0.3)))

	last, ok := tl.GetLastInRange(at(0.0), at(0.4))
	assert.True(ok)
	assert.True(last.Equal(at(0.3)))

	_, ok = tl.GetLastInRange(at(0.5), at(0.6))
	assert.False(ok)

	assert.True(tl.GetFirstTime().Equal(at(0.0)))
	assert.True(tl.GetLastTime().Equal(at(0.5)))

	m, ok := tl.GetFirst()
	assert.True(ok)
	assert.Equal(0.0, element.MustValue[float64](m, "v"))
}

func TestMaximalUpdateTime(t *testing.T) {
	assert := assert.New(t)

	tl := New(false, gif.FromSec(0.1), gif.FromSec(0.02))

	// empty timeline: now - maxWait vs baseline + minWait
	now := at(1.0)
	assert.True(tl.GetMaximalUpdateTime(now).Equal(at(0.9)))

	// the newest measurement pushes the horizon forward
	assert.NoError(tl.AddMeasurement(scalarMeas(1), at(1.5)))
	assert.True(tl.GetMaximalUpdateTime(now).Equal(at(1.52)))
}

func TestSplit(t *testing.T) {
	assert := assert.New(t)

	tl := New(false, gif.FromSec(0.1), 0)
	assert.NoError(tl.AddMeasurement(scalarMeas(7), at(0.2)))

	assert.NoError(tl.Split(at(0.0), at(0.1), at(0.2), copySplit{}))
	assert.Equal(2, tl.Len())

	m, ok := tl.GetMeasurement(at(0.1))
	assert.True(ok)
	assert.Equal(7.0, element.MustValue[float64](m, "v"))

	// non-chronological times
	assert.ErrorIs(tl.Split(at(0.2), at(0.1), at(0.0), copySplit{}), ErrRange)
	// no measurement to split
	assert.ErrorIs(tl.Split(at(0.2), at(0.3), at(0.4), copySplit{}), ErrNoMeasurement)
}

func TestSplitAtTimes(t *testing.T) {
	assert := assert.New(t)

	tl := New(false, gif.FromSec(0.1), 0)
	assert.NoError(tl.AddMeasurement(scalarMeas(1), at(0.2)))
	assert.NoError(tl.AddMeasurement(scalarMeas(2), at(0.4)))

	tl.SplitAtTimes([]gif.TimePoint{at(0.1), at(0.2), at(0.3), at(0.5)}, copySplit{})

	// 0.1 and 0.3 created, 0.2 already there, 0.5 past the last entry
	assert.Equal(4, tl.Len())
	for _, sec := range []float64{0.1, 0.2, 0.3, 0.4} {
		_, ok := tl.GetMeasurement(at(sec))
		assert.True(ok, "missing measurement at %v", sec)
	}
}

// split then merge must restore the original stored measurement
func TestSplitMergeRoundTrip(t *testing.T) {
	assert := assert.New(t)

	tl := New(false, gif.FromSec(0.1), 0)
	assert.NoError(tl.AddMeasurement(scalarMeas(7), at(0.2)))

	assert.NoError(tl.Split(at(0.0), at(0.1), at(0.2), copySplit{}))
	tl.MergeUndesired([]gif.TimePoint{at(0.2)}, copySplit{})

	assert.Equal(1, tl.Len())
	m, ok := tl.GetMeasurement(at(0.2))
	assert.True(ok)
	assert.Equal(7.0, element.MustValue[float64](m, "v"))
}

func TestRemoveOutdated(t *testing.T) {
	assert := assert.New(t)

	tl := New(false, gif.FromSec(0.1), 0)
	for _, sec := range []float64{0.0, 0.1, 0.2, 0.3} {
		assert.NoError(tl.AddMeasurement(scalarMeas(sec), at(sec)))
	}

	tl.RemoveOutdated(at(0.15))
	assert.Equal(2, tl.Len())
	assert.True(tl.GetLastProcessedTime().Equal(at(0.1)))
	assert.True(tl.GetFirstTime().Equal(at(0.2)))
}

func TestReset(t *testing.T) {
	assert := assert.New(t)

	tl := New(false, gif.FromSec(0.1), 0)
	assert.NoError(tl.AddMeasurement(scalarMeas(1), at(0.0)))
	tl.RemoveOutdated(at(0.0))

	tl.Reset()
	assert.Equal(0, tl.Len())
	assert.True(tl.GetLastProcessedTime().Equal(gif.MinTime))
}

func TestPrint(t *testing.T) {
	assert := assert.New(t)

	tl := New(false, gif.FromSec(0.1), 0)
	assert.NoError(tl.AddMeasurement(scalarMeas(1), at(0.05)))

	out := tl.Print(at(0.0), 1, 0.01)
	assert.Contains(out, "1")
	assert.Contains(out, "-")
}
