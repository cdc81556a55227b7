// Package timeline implements the per-channel measurement store of the
// filter: a time-ordered sequence of measurements with a latency window,
// range queries and the split/merge re-timing policies used to align
// residual intervals across channels.
package timeline

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	gif "github.com/milosgajdos/go-gif"
	"github.com/milosgajdos/go-gif/element"
)

var (
	// ErrOrderViolation is returned when a measurement does not advance the timeline.
	ErrOrderViolation = errors.New("measurement not after last processed time")
	// ErrDuplicateTime is returned when a measurement timestamp is already stored.
	ErrDuplicateTime = errors.New("measurement already exists")
	// ErrRange is returned when a split or merge is requested over non-chronological times.
	ErrRange = errors.New("range error")
	// ErrNoMeasurement is returned when an operation needs a measurement the timeline does not hold.
	ErrNoMeasurement = errors.New("no measurement")
)

// SplitMerger re-times measurements: it splits one spanning measurement
// into two sub-measurements and merges two adjacent ones. Residuals
// implement it.
type SplitMerger interface {
	// Name identifies the owning residual in logs
	Name() string
	// SplitMeasurements produces measurements covering (t0,t1] and (t1,t2]
	SplitMeasurements(t0, t1, t2 gif.TimePoint, meas *element.Vector) (a, b *element.Vector, err error)
	// MergeMeasurements composes measurements covering (t0,t1] and (t1,t2]
	MergeMeasurements(t0, t1, t2 gif.TimePoint, a, b *element.Vector) (*element.Vector, error)
}

type entry struct {
	t    gif.TimePoint
	meas *element.Vector
}

// Timeline is a per-channel time-ordered measurement store. Stored keys
// are strictly increasing and strictly greater than the last processed
// time, which never decreases.
type Timeline struct {
	entries       []entry
	lastProcessed gif.TimePoint
	dropFirst     bool
	maxWait       gif.Duration
	minWait       gif.Duration
}

// New creates a new timeline. With dropFirst set the first measurement
// only establishes the processing baseline and is discarded; spanning
// residual channels need this. maxWait bounds how long the channel may
// hold back the filter, minWait lets the update horizon reach that far
// past the newest measurement (or processing baseline).
func New(dropFirst bool, maxWait, minWait gif.Duration) *Timeline {
	return &Timeline{
		dropFirst:     dropFirst,
		maxWait:       maxWait,
		minWait:       minWait,
		lastProcessed: gif.MinTime,
	}
}

// Len returns the number of stored measurements.
func (tl *Timeline) Len() int { return len(tl.entries) }

// lowerBound returns the index of the first entry with time >= t.
func (tl *Timeline) lowerBound(t gif.TimePoint) int {
	return sort.Search(len(tl.entries), func(i int) bool {
		return !tl.entries[i].t.Before(t)
	})
}

// AddMeasurement stores meas at time t.
// It returns error if t does not advance the timeline or is already taken;
// the measurement is discarded in both cases.
func (tl *Timeline) AddMeasurement(meas *element.Vector, t gif.TimePoint) error {
	if tl.dropFirst && tl.lastProcessed.Equal(gif.MinTime) {
		log.Info("dropping first measurement")
		tl.lastProcessed = t
		return nil
	}
	if !t.After(tl.lastProcessed) {
		log.Errorf("measurement at %v not after last processed time %v (discarded)", t, tl.lastProcessed)
		return errors.Wrapf(ErrOrderViolation, "measurement at %v", t)
	}

	i := tl.lowerBound(t)
	if i < len(tl.entries) && tl.entries[i].t.Equal(t) {
		log.Errorf("measurement at %v already exists (discarded)", t)
		return errors.Wrapf(ErrDuplicateTime, "measurement at %v", t)
	}

	tl.entries = append(tl.entries, entry{})
	copy(tl.entries[i+1:], tl.entries[i:])
	tl.entries[i] = entry{t: t, meas: meas}

	return nil
}

// GetMeasurement returns the measurement stored at t.
func (tl *Timeline) GetMeasurement(t gif.TimePoint) (*element.Vector, bool) {
	i := tl.lowerBound(t)
	if i < len(tl.entries) && tl.entries[i].t.Equal(t) {
		return tl.entries[i].meas, true
	}

	return nil, false
}

// RemoveProcessedFirst marks the first measurement processed: it advances
// the last processed time to its key and erases it.
// It returns error if the timeline is empty.
func (tl *Timeline) RemoveProcessedFirst() error {
	if len(tl.entries) == 0 {
		return ErrNoMeasurement
	}
	tl.lastProcessed = tl.entries[0].t
	tl.entries = tl.entries[1:]

	return nil
}

// Reset clears all measurements and the processing baseline.
func (tl *Timeline) Reset() {
	tl.entries = nil
	tl.lastProcessed = gif.MinTime
}

// GetLastProcessedTime returns the last processed time.
func (tl *Timeline) GetLastProcessedTime() gif.TimePoint { return tl.lastProcessed }

// GetLastTime returns the newest stored key, or the last processed time
// when the timeline is empty.
func (tl *Timeline) GetLastTime() gif.TimePoint {
	if n := len(tl.entries); n > 0 {
		return tl.entries[n-1].t
	}

	return tl.lastProcessed
}

// GetFirstTime returns the oldest stored key, or MaxTime when the
// timeline is empty.
func (tl *Timeline) GetFirstTime() gif.TimePoint {
	if len(tl.entries) > 0 {
		return tl.entries[0].t
	}

	return gif.MaxTime
}

// GetFirst returns the oldest stored measurement.
func (tl *Timeline) GetFirst() (*element.Vector, bool) {
	if len(tl.entries) > 0 {
		return tl.entries[0].meas, true
	}

	return nil, false
}

// GetMaximalUpdateTime returns how far the filter may advance given the
// channel's latency window: at least now less the maximal wait, pushed
// forward to the newest measurement (or processing baseline) plus the
// minimal wait.
func (tl *Timeline) GetMaximalUpdateTime(now gif.TimePoint) gif.TimePoint {
	t := now.Add(-tl.maxWait)
	newest := tl.lastProcessed
	if n := len(tl.entries); n > 0 {
		newest = tl.entries[n-1].t
	}
	if withMin := newest.Add(tl.minWait); withMin.After(t) {
		t = withMin
	}

	return t
}

// GetAllInRange returns all stored keys t with start < t <= end in
// ascending order.
func (tl *Timeline) GetAllInRange(start, end gif.TimePoint) []gif.TimePoint {
	var times []gif.TimePoint
	for i := tl.lowerBound(start); i < len(tl.entries); i++ {
		t := tl.entries[i].t
		if t.After(end) {
			break
		}
		if t.After(start) {
			times = append(times, t)
		}
	}

	return times
}

// GetLastInRange returns the greatest stored key t with start < t <= end.
func (tl *Timeline) GetLastInRange(start, end gif.TimePoint) (gif.TimePoint, bool) {
	best := gif.TimePoint{}
	found := false
	for i := tl.lowerBound(start); i < len(tl.entries); i++ {
		t := tl.entries[i].t
		if t.After(end) {
			break
		}
		if t.After(start) {
			best = t
			found = true
		}
	}

	return best, found
}

// Split inserts a virtual measurement at t1 by splitting the measurement
// stored at t2 into halves covering (t0,t1] and (t1,t2].
// It returns error if the times are not chronological or t2 holds no
// measurement.
func (tl *Timeline) Split(t0, t1, t2 gif.TimePoint, res SplitMerger) error {
	if t0.After(t1) || t1.After(t2) {
		log.Errorf("split times not chronological (%s)", res.Name())
		return errors.Wrapf(ErrRange, "split in %s", res.Name())
	}
	meas, ok := tl.GetMeasurement(t2)
	if !ok {
		return errors.Wrapf(ErrNoMeasurement, "split in %s at %v", res.Name(), t2)
	}

	log.Infof("inserting measurement in %s at %v", res.Name(), t1)
	a, b, err := res.SplitMeasurements(t0, t1, t2, meas)
	if err != nil {
		return errors.Wrapf(err, "split in %s", res.Name())
	}

	if err := tl.AddMeasurement(a, t1); err != nil {
		return err
	}
	i := tl.lowerBound(t2)
	tl.entries[i].meas = b

	return nil
}

// SplitAtTimes forces a measurement at every requested time: times not
// stored yet are created by splitting the next stored measurement.
// Range errors are logged and skipped.
func (tl *Timeline) SplitAtTimes(times []gif.TimePoint, res SplitMerger) {
	for _, t := range times {
		i := tl.lowerBound(t)
		if i == len(tl.entries) {
			log.Errorf("range error while splitting: no measurement at or after %v (%s)", t, res.Name())
			continue
		}
		if tl.entries[i].t.Equal(t) {
			// measurement already available
			continue
		}
		prev := tl.lastProcessed
		if i > 0 {
			prev = tl.entries[i-1].t
		}
		if err := tl.Split(prev, t, tl.entries[i].t, res); err != nil {
			log.Warnf("split failed: %v", err)
		}
	}
}

// MergeUndesired merges every stored measurement strictly before the
// greatest keep time which is not itself in keep into its right
// neighbour. Merged keys are erased without counting as processed.
func (tl *Timeline) MergeUndesired(keep []gif.TimePoint, res SplitMerger) {
	if len(keep) == 0 {
		return
	}
	last := keep[len(keep)-1]

	for i := 0; i < len(tl.entries); {
		t := tl.entries[i].t
		if t.After(last) {
			break
		}
		if containsTime(keep, t) {
			i++
			continue
		}
		if i+1 >= len(tl.entries) {
			log.Error("range error while merging")
			break
		}
		prev := tl.lastProcessed
		if i > 0 {
			prev = tl.entries[i-1].t
		}
		next := tl.entries[i+1]

		log.Infof("merging measurement in %s, removed at %v", res.Name(), t)
		merged, err := res.MergeMeasurements(prev, t, next.t, tl.entries[i].meas, next.meas)
		if err != nil {
			log.Warnf("merge failed: %v", err)
			i++
			continue
		}
		tl.entries[i+1].meas = merged
		tl.entries = append(tl.entries[:i], tl.entries[i+1:]...)
	}
}

// RemoveOutdated drops all measurements with keys at or before t,
// treating each as processed.
func (tl *Timeline) RemoveOutdated(t gif.TimePoint) {
	for len(tl.entries) > 0 && !tl.entries[0].t.After(t) {
		log.Warnf("removing outdated measurement at %v (normal at end of update)", tl.entries[0].t)
		tl.RemoveProcessedFirst()
	}
}

// Print renders the stored keys on a fixed-resolution tick grid starting
// at start with the given column offset. Each column shows the number of
// measurements in its tick, empty ticks print as a dash.
func (tl *Timeline) Print(start gif.TimePoint, startOffset int, resolution float64) string {
	width := startOffset
	if n := len(tl.entries); n > 0 {
		width = startOffset + int(math.Ceil(gif.ToSec(tl.entries[n-1].t.Sub(start))/resolution)) + 1
	}
	counts := make([]int, width)
	for _, e := range tl.entries {
		x := startOffset + int(math.Ceil(gif.ToSec(e.t.Sub(start))/resolution))
		if x >= 0 && x < width {
			counts[x]++
		}
	}

	var b strings.Builder
	for _, c := range counts {
		if c == 0 {
			b.WriteString("-")
			continue
		}
		fmt.Fprintf(&b, "%d", c)
	}

	return b.String()
}

func containsTime(times []gif.TimePoint, t gif.TimePoint) bool {
	i := sort.Search(len(times), func(i int) bool { return !times[i].Before(t) })
	return i < len(times) && times[i].Equal(t)
}
