// Package residual defines the typed residual contracts consumed by the
// filter: binary residuals r = R(pre, cur, noi; meas), predictions
// cur = P(pre, noi; meas) and unary updates over the current state only.
package residual

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	gif "github.com/milosgajdos/go-gif"
	"github.com/milosgajdos/go-gif/element"
	"github.com/milosgajdos/go-gif/matrix"
)

var (
	// ErrUnboundMeasurement is returned when a residual is evaluated with no measurement bound.
	ErrUnboundMeasurement = errors.New("no measurement bound")
	// ErrInvalidNoise is returned when a noise covariance has the wrong shape.
	ErrInvalidNoise = errors.New("invalid noise covariance")
)

// Residual is a binary residual over four element vector definitions:
// innovation, previous state, current state and noise. Unary updates have
// an empty previous state definition.
//
// The filter binds the current measurement and the sub-interval length
// before calling Eval or the Jacobians; implementations must not retain
// the bound measurement past the call.
type Residual interface {
	// Name returns the residual name
	Name() string
	// InnDefinition returns the innovation definition
	InnDefinition() *element.Definition
	// PreDefinition returns the previous state definition
	PreDefinition() *element.Definition
	// CurDefinition returns the current state definition
	CurDefinition() *element.Definition
	// NoiDefinition returns the noise definition
	NoiDefinition() *element.Definition
	// Unary reports whether the residual is independent of the previous state
	Unary() bool
	// Splittable reports whether measurements may be split at break points
	Splittable() bool
	// Mergeable reports whether redundant measurements may be merged
	Mergeable() bool

	// Eval evaluates the innovation at (pre, cur, noi)
	Eval(inn *element.Vector, pre, cur, noi *element.Vector) error
	// JacPre writes the analytic Jacobian w.r.t. pre into jac
	JacPre(jac *mat.Dense, pre, cur, noi *element.Vector) error
	// JacCur writes the analytic Jacobian w.r.t. cur into jac
	JacCur(jac *mat.Dense, pre, cur, noi *element.Vector) error
	// JacNoi writes the analytic Jacobian w.r.t. noi into jac
	JacNoi(jac *mat.Dense, pre, cur, noi *element.Vector) error

	// NoiseCovariance returns the mutable noise covariance
	NoiseCovariance() *mat.SymDense
	// SetNoiseCovariance replaces the noise covariance
	SetNoiseCovariance(cov mat.Symmetric) error
	// NoiseWeighting returns the robustification weight in (0, 1] for the
	// given innovation tangent and row
	NoiseWeighting(inn mat.Vector, row int) float64

	// BindMeasurement makes meas the current measurement spanning dt
	BindMeasurement(meas *element.Vector, dt gif.Duration)
	// Measurement returns the bound measurement
	Measurement() (*element.Vector, error)
	// ClearMeasurement releases the bound measurement
	ClearMeasurement()

	// SplitMeasurements produces two sub-measurements covering (t0, t1]
	// and (t1, t2] from one spanning (t0, t2]
	SplitMeasurements(t0, t1, t2 gif.TimePoint, meas *element.Vector) (a, b *element.Vector, err error)
	// MergeMeasurements composes measurements covering (t0, t1] and
	// (t1, t2] into one spanning (t0, t2]
	MergeMeasurements(t0, t1, t2 gif.TimePoint, a, b *element.Vector) (*element.Vector, error)
}

// Base carries the shared residual state: definitions, scheduling flags,
// noise covariance, Huber threshold and the bound measurement. Concrete
// residuals embed *Base and implement Eval and the Jacobians.
type Base struct {
	name       string
	inn        *element.Definition
	pre        *element.Definition
	cur        *element.Definition
	noi        *element.Definition
	unary      bool
	splittable bool
	mergeable  bool
	noiseCov   *mat.SymDense
	huberTh    float64
	meas       *element.Vector
	dt         float64
}

// NewBase creates the shared residual state. The noise covariance defaults
// to identity and the Huber threshold to disabled.
// It returns error if the innovation or the noise dimension is zero.
func NewBase(name string, inn, pre, cur, noi *element.Definition, unary, splittable, mergeable bool) (*Base, error) {
	if inn.Dim() == 0 {
		return nil, fmt.Errorf("residual %q: empty innovation", name)
	}
	if noi.Dim() == 0 {
		return nil, fmt.Errorf("residual %q: empty noise", name)
	}

	noiseCov := mat.NewSymDense(noi.Dim(), nil)
	for i := 0; i < noi.Dim(); i++ {
		noiseCov.SetSym(i, i, 1.0)
	}

	return &Base{
		name:       name,
		inn:        inn,
		pre:        pre,
		cur:        cur,
		noi:        noi,
		unary:      unary,
		splittable: splittable,
		mergeable:  mergeable,
		noiseCov:   noiseCov,
		huberTh:    -1.0,
	}, nil
}

// Name returns the residual name.
func (b *Base) Name() string { return b.name }

// InnDefinition returns the innovation definition.
func (b *Base) InnDefinition() *element.Definition { return b.inn }

// PreDefinition returns the previous state definition.
func (b *Base) PreDefinition() *element.Definition { return b.pre }

// CurDefinition returns the current state definition.
func (b *Base) CurDefinition() *element.Definition { return b.cur }

// NoiDefinition returns the noise definition.
func (b *Base) NoiDefinition() *element.Definition { return b.noi }

// Unary reports whether the residual is independent of the previous state.
func (b *Base) Unary() bool { return b.unary }

// Splittable reports whether measurements may be split at break points.
func (b *Base) Splittable() bool { return b.splittable }

// Mergeable reports whether redundant measurements may be merged.
func (b *Base) Mergeable() bool { return b.mergeable }

// NoiseCovariance returns the mutable noise covariance.
func (b *Base) NoiseCovariance() *mat.SymDense { return b.noiseCov }

// SetNoiseCovariance replaces the noise covariance.
// It returns error if cov is not SPD or has the wrong dimension.
func (b *Base) SetNoiseCovariance(cov mat.Symmetric) error {
	if cov.SymmetricDim() != b.noi.Dim() {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidNoise, cov.SymmetricDim(), b.noi.Dim())
	}
	if _, err := matrix.SPDInverse(cov); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNoise, err)
	}

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)
	b.noiseCov = c

	return nil
}

// ScaleNoiseCovariance scales the noise covariance by s.
func (b *Base) ScaleNoiseCovariance(s float64) {
	b.noiseCov.ScaleSym(s, b.noiseCov)
}

// SetHuberThreshold enables Huber noise weighting above th; a negative
// threshold disables it.
func (b *Base) SetHuberThreshold(th float64) { b.huberTh = th }

// NoiseWeighting returns the robustification weight for the innovation
// block containing row. With the Huber threshold th enabled and block norm
// above it the weight is sqrt(th*(norm - th/2))/norm, 1 otherwise.
func (b *Base) NoiseWeighting(inn mat.Vector, row int) float64 {
	if b.huberTh < 0 {
		return 1.0
	}

	// locate the innovation element block holding row
	for i := 0; i < b.inn.Len(); i++ {
		off := b.inn.Offset(i)
		d := b.inn.TraitsAt(i).Dim()
		if row < off || row >= off+d {
			continue
		}
		norm := 0.0
		for k := off; k < off+d; k++ {
			norm += inn.AtVec(k) * inn.AtVec(k)
		}
		norm = math.Sqrt(norm)
		if norm > b.huberTh {
			return math.Sqrt(b.huberTh * (norm - 0.5*b.huberTh) / (norm * norm))
		}
		return 1.0
	}

	return 1.0
}

// BindMeasurement makes meas the current measurement spanning dt.
func (b *Base) BindMeasurement(meas *element.Vector, dt gif.Duration) {
	b.meas = meas
	b.dt = gif.ToSec(dt)
}

// Measurement returns the bound measurement.
// It returns ErrUnboundMeasurement if no measurement is bound.
func (b *Base) Measurement() (*element.Vector, error) {
	if b.meas == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnboundMeasurement, b.name)
	}

	return b.meas, nil
}

// ClearMeasurement releases the bound measurement.
func (b *Base) ClearMeasurement() {
	b.meas = nil
}

// Dt returns the bound sub-interval length in seconds.
func (b *Base) Dt() float64 { return b.dt }

// SplitMeasurements produces two sub-measurements covering (t0, t1] and
// (t1, t2] from one spanning (t0, t2]. The default copies meas into both
// halves, which is exact for measurements holding rates or increments
// consumed with the sub-interval length.
// It returns error if the times are not chronological.
func (b *Base) SplitMeasurements(t0, t1, t2 gif.TimePoint, meas *element.Vector) (*element.Vector, *element.Vector, error) {
	if t0.After(t1) || t1.After(t2) {
		return nil, nil, fmt.Errorf("split times not chronological")
	}

	return meas.Clone(), meas.Clone(), nil
}

// MergeMeasurements composes measurements covering (t0, t1] and (t1, t2]
// into one spanning (t0, t2]. The default keeps the later measurement.
// It returns error if the times are not chronological.
func (b *Base) MergeMeasurements(t0, t1, t2 gif.TimePoint, a, c *element.Vector) (*element.Vector, error) {
	if t0.After(t1) || t1.After(t2) {
		return nil, fmt.Errorf("merge times not chronological")
	}

	return c.Clone(), nil
}

// JacBlockPre returns the writable sub-block of jac for innovation element
// i w.r.t. previous state element k.
func (b *Base) JacBlockPre(jac *mat.Dense, i, k int) *mat.Dense {
	return element.JacBlock(jac, b.inn, b.pre, i, k)
}

// JacBlockCur returns the writable sub-block of jac for innovation element
// i w.r.t. current state element k.
func (b *Base) JacBlockCur(jac *mat.Dense, i, k int) *mat.Dense {
	return element.JacBlock(jac, b.inn, b.cur, i, k)
}

// JacBlockNoi returns the writable sub-block of jac for innovation element
// i w.r.t. noise element k.
func (b *Base) JacBlockNoi(jac *mat.Dense, i, k int) *mat.Dense {
	return element.JacBlock(jac, b.inn, b.noi, i, k)
}
