// Package filter implements the measurement scheduler and the
// information-form iterated Gauss-Newton update of the generalized
// information filter.
//
// Residuals are registered on channels, each backed by a measurement
// timeline. Update picks the update horizon from the per-channel latency
// windows, aligns all measurement intervals on a shared break-point set
// and advances the state estimate and its information matrix across every
// sub-interval by solving the joint (previous, current) normal equations
// with a one-step information prior, marginalising the previous state.
package filter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	gif "github.com/milosgajdos/go-gif"
	"github.com/milosgajdos/go-gif/element"
	"github.com/milosgajdos/go-gif/matrix"
	"github.com/milosgajdos/go-gif/residual"
	"github.com/milosgajdos/go-gif/timeline"
)

var (
	// ErrNoConvergence is returned when the Gauss-Newton iteration does not
	// reach the tangent tolerance within the iteration limit.
	ErrNoConvergence = errors.New("gauss-newton iteration did not converge")
	// ErrInitialized is returned when residuals are added to an initialised filter.
	ErrInitialized = errors.New("filter already initialised")
	// ErrInvalidChannel is returned for out-of-range channel ids.
	ErrInvalidChannel = errors.New("invalid channel")
)

type slot struct {
	res        residual.Residual
	tl         *timeline.Timeline
	prediction bool
	// state element index per residual pre/cur element
	preIdx []int
	curIdx []int
}

// Filter is a multi-channel manifold state estimator carrying the
// information pair (state estimate, information matrix).
type Filter struct {
	def    *element.Definition
	state  *element.Vector
	inf    *mat.SymDense
	time   gif.TimePoint
	inited bool

	slots []slot

	maxIter    int
	tangentTol float64
	initInf    float64
	now        func() gif.TimePoint
}

// Option configures the filter.
type Option func(*Filter)

// WithMaxIter sets the Gauss-Newton iteration limit.
func WithMaxIter(n int) Option {
	return func(f *Filter) { f.maxIter = n }
}

// WithTangentTolerance sets the infinity-norm tangent tolerance stopping
// the Gauss-Newton iteration.
func WithTangentTolerance(tol float64) Option {
	return func(f *Filter) { f.tangentTol = tol }
}

// WithClock injects the clock used to pick the update horizon.
func WithClock(now func() gif.TimePoint) Option {
	return func(f *Filter) { f.now = now }
}

// WithInitInformation sets the diagonal weight of the initial information
// matrix set by Init, whether called explicitly or on self-initialisation.
func WithInitInformation(w float64) Option {
	return func(f *Filter) { f.initInf = w }
}

// New creates a new empty filter.
func New(opts ...Option) *Filter {
	f := &Filter{
		def:        element.MustDefinition(),
		maxIter:    10,
		tangentTol: 1e-6,
		initInf:    1.0,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// StateDefinition returns the joint state definition: the union of the
// pre and cur definitions of all registered residuals.
func (f *Filter) StateDefinition() *element.Definition { return f.def }

// Time returns the time of the current estimate.
func (f *Filter) Time() gif.TimePoint { return f.time }

// State returns a copy of the current estimate.
func (f *Filter) State() *element.Vector {
	if f.state == nil {
		return element.NewVector(f.def)
	}

	return f.state.Clone()
}

// Information returns a copy of the current information matrix.
func (f *Filter) Information() *mat.SymDense {
	if f.inf == nil {
		return mat.NewSymDense(f.def.Dim(), nil)
	}

	inf := mat.NewSymDense(f.inf.SymmetricDim(), nil)
	inf.CopySym(f.inf)

	return inf
}

// Covariance returns the inverse of the current information matrix.
// It returns error if the information matrix is not SPD.
func (f *Filter) Covariance() (*mat.SymDense, error) {
	if f.inf == nil {
		return nil, matrix.ErrNotSPD
	}

	return matrix.SPDInverse(f.inf)
}

// AddResidual registers res on a new measurement channel with the given
// latency window and returns the channel id. The joint state definition
// is extended by the residual pre and cur element names; shared names
// must carry compatible types. Channels of spanning (non-unary) residuals
// drop their first measurement to establish the processing baseline.
// It returns error if the filter is already initialised or the state
// definitions collide.
func (f *Filter) AddResidual(res residual.Residual, maxWait, minWait gif.Duration) (int, error) {
	if f.inited {
		return 0, ErrInitialized
	}

	if err := f.def.Extend(res.PreDefinition()); err != nil {
		return 0, errors.Wrapf(err, "residual %s", res.Name())
	}
	if err := f.def.Extend(res.CurDefinition()); err != nil {
		return 0, errors.Wrapf(err, "residual %s", res.Name())
	}

	prediction := !res.Unary()
	f.slots = append(f.slots, slot{
		res:        res,
		tl:         timeline.New(prediction, maxWait, minWait),
		prediction: prediction,
	})

	return len(f.slots) - 1, nil
}

// AddMeasurement stores meas at time t on the given channel.
// It returns error if the channel id is unknown or the timeline rejects
// the measurement.
func (f *Filter) AddMeasurement(ch int, meas *element.Vector, t gif.TimePoint) error {
	if ch < 0 || ch >= len(f.slots) {
		return errors.Wrapf(ErrInvalidChannel, "channel %d", ch)
	}

	return f.slots[ch].tl.AddMeasurement(meas, t)
}

// Residual returns the residual registered on channel ch.
func (f *Filter) Residual(ch int) residual.Residual { return f.slots[ch].res }

// Timeline returns the measurement timeline of channel ch.
func (f *Filter) Timeline(ch int) *timeline.Timeline { return f.slots[ch].tl }

// Init initialises the filter at time t with the identity state and a
// diagonal information matrix. Residuals cannot be added afterwards.
func (f *Filter) Init(t gif.TimePoint) {
	f.buildIndexMaps()
	f.state = element.NewVector(f.def)
	n := f.def.Dim()
	f.inf = mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		f.inf.SetSym(i, i, f.initInf)
	}
	f.time = t
	f.inited = true
	log.Infof("filter initialised at %v", t)
}

// SetState overwrites the current estimate.
// It returns error if the definitions differ.
func (f *Filter) SetState(x *element.Vector) error {
	if !f.inited {
		return errors.New("filter not initialised")
	}

	return f.state.Copy(x)
}

// SetInformation overwrites the current information matrix.
// It returns error if the dimension does not match or inf is not SPD.
func (f *Filter) SetInformation(inf mat.Symmetric) error {
	if !f.inited {
		return errors.New("filter not initialised")
	}
	if inf.SymmetricDim() != f.def.Dim() {
		return fmt.Errorf("invalid information dimension: %d", inf.SymmetricDim())
	}
	if _, err := matrix.SPDInverse(inf); err != nil {
		return err
	}

	c := mat.NewSymDense(inf.SymmetricDim(), nil)
	c.CopySym(inf)
	f.inf = c

	return nil
}

func (f *Filter) buildIndexMaps() {
	for i := range f.slots {
		s := &f.slots[i]
		s.preIdx = indexMap(f.def, s.res.PreDefinition())
		s.curIdx = indexMap(f.def, s.res.CurDefinition())
	}
}

func indexMap(state, def *element.Definition) []int {
	idx := make([]int, def.Len())
	for i := 0; i < def.Len(); i++ {
		j, ok := state.IndexOf(def.Name(i))
		if !ok {
			panic(fmt.Sprintf("filter: state misses element %q", def.Name(i)))
		}
		idx[i] = j
	}

	return idx
}

// selfInit initialises the filter at the latest processing baseline of the
// spanning residual channels, falling back to the earliest stored
// measurement. It reports whether initialisation happened.
func (f *Filter) selfInit() bool {
	t := gif.MinTime
	found := false
	for i := range f.slots {
		s := &f.slots[i]
		if !s.prediction {
			continue
		}
		base := s.tl.GetLastProcessedTime()
		if base.Equal(gif.MinTime) {
			if s.tl.Len() == 0 {
				continue
			}
			base = s.tl.GetFirstTime()
		}
		if !found || base.After(t) {
			t = base
			found = true
		}
	}
	if !found {
		for i := range f.slots {
			if first := f.slots[i].tl.GetFirstTime(); !first.Equal(gif.MaxTime) && (!found || first.Before(t)) {
				t = first
				found = true
			}
		}
	}
	if !found {
		return false
	}

	f.Init(t)
	return true
}

// Update advances the filter to the maximal consistent update time,
// consuming every aligned measurement. The horizon is the earliest of the
// per-channel maximal update times; Update is a no-op while that horizon
// does not pass the current estimate time.
// It returns error on numeric failure; the committed state and
// information are left unchanged in that case.
func (f *Filter) Update() error {
	if !f.inited && !f.selfInit() {
		return nil
	}

	// update horizon
	tEnd := gif.MaxTime
	now := f.now()
	for i := range f.slots {
		if t := f.slots[i].tl.GetMaximalUpdateTime(now); t.Before(tEnd) {
			tEnd = t
		}
	}
	if !tEnd.After(f.time) {
		return nil
	}

	// break-point set: all spanning-channel measurement times in the
	// horizon plus the chosen time of each unary channel
	var breaks []gif.TimePoint
	for i := range f.slots {
		s := &f.slots[i]
		if s.prediction {
			breaks = append(breaks, s.tl.GetAllInRange(f.time, tEnd)...)
			continue
		}
		if t, ok := s.tl.GetLastInRange(f.time, tEnd); ok {
			breaks = append(breaks, t)
		}
	}
	breaks = sortedUnique(breaks)

	if len(breaks) == 0 {
		f.commit(f.state, f.inf, tEnd)
		return nil
	}

	// force a shared break-point set on the re-timeable channels
	for i := range f.slots {
		s := &f.slots[i]
		if !s.prediction {
			continue
		}
		if s.res.Splittable() {
			s.tl.SplitAtTimes(breaks, s.res)
		}
		if s.res.Mergeable() {
			s.tl.MergeUndesired(breaks, s.res)
		}
	}

	// advance across sub-intervals on working copies
	xPrev := f.state.Clone()
	infPrev := mat.NewSymDense(f.inf.SymmetricDim(), nil)
	infPrev.CopySym(f.inf)
	prev := f.time

	for _, tau := range breaks {
		var parts []part
		for i := range f.slots {
			s := &f.slots[i]
			if meas, ok := s.tl.GetMeasurement(tau); ok {
				parts = append(parts, part{slot: s, meas: meas})
			}
		}
		if len(parts) == 0 {
			prev = tau
			continue
		}

		xCur, infCur, err := f.step(xPrev, infPrev, prev, tau, parts)
		if err != nil {
			return errors.Wrapf(err, "update step at %v", tau)
		}
		xPrev, infPrev, prev = xCur, infCur, tau
	}

	f.commit(xPrev, infPrev, tEnd)
	return nil
}

func (f *Filter) commit(x *element.Vector, inf *mat.SymDense, t gif.TimePoint) {
	f.state = x
	f.inf = inf
	f.time = t
	for i := range f.slots {
		f.slots[i].tl.RemoveOutdated(t)
		f.slots[i].res.ClearMeasurement()
	}
}

// PrintConnectivity renders the channel layout and the stored measurement
// times relative to the estimate time on a fixed-resolution tick grid.
func (f *Filter) PrintConnectivity() string {
	const (
		offset     = 1
		resolution = 0.01
	)

	var b strings.Builder
	fmt.Fprintf(&b, "state dim %d at %v\n", f.def.Dim(), f.time)
	for i := range f.slots {
		s := &f.slots[i]
		kind := "update"
		if s.prediction {
			kind = "spanning"
		}
		fmt.Fprintf(&b, "%2d %-16s %-8s %s\n", i, s.res.Name(), kind, s.tl.Print(f.time, offset, resolution))
	}

	return b.String()
}

func sortedUnique(times []gif.TimePoint) []gif.TimePoint {
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	out := times[:0]
	for i, t := range times {
		if i > 0 && t.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, t)
	}

	return out
}
