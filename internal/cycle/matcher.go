package cycle

import (
	"fmt"
	"math"

	"github.com/mrzor/cycletrace/internal/event"
	"github.com/mrzor/cycletrace/internal/metricspec"
)

// DefaultSlot is the timeslot width used when none is configured (100us).
const DefaultSlot uint64 = 100_000

// Matcher turns ordered events of one source into metric samples.
type Matcher interface {
	// Update applies one event. Events outside the configured names are ignored.
	Update(ev event.Event)
	// Close force-closes the in-progress cycle at end of stream.
	Close()
	// Drain returns the samples produced since the previous Drain, indexed
	// like Metrics, and clears them.
	Drain() [][]uint64
	// Metrics returns the ordered metric names.
	Metrics() []string
}

// Mark is one recorded marker of a finalized cycle.
type Mark struct {
	Index     int
	Name      string
	Timestamp uint64
	Pid       int32
	Comm      string
}

// Latency is one surviving latency value of a finalized cycle.
type Latency struct {
	Metric string
	Value  uint64
}

// Cycle describes a finalized latency cycle.
type Cycle struct {
	Source    event.Source
	Marks     []Mark
	Latencies []Latency
}

// Observer receives every finalized latency cycle that recorded at least
// two markers.
type Observer interface {
	ObserveCycle(c Cycle)
}

type options struct {
	limit    uint64
	slot     uint64
	source   event.Source
	observer Observer
}

// Option configures a Matcher.
type Option func(*options)

// WithLimit sets the latency ceiling; values >= limit are discarded.
// Zero keeps the default (unbounded).
func WithLimit(limit uint64) Option {
	return func(o *options) {
		if limit > 0 {
			o.limit = limit
		}
	}
}

// WithSlot sets the timeslot width in nanoseconds. Zero keeps DefaultSlot.
func WithSlot(slot uint64) Option {
	return func(o *options) {
		if slot > 0 {
			o.slot = slot
		}
	}
}

// WithSource tags cycles reported to the observer.
func WithSource(src event.Source) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithObserver registers an observer for finalized latency cycles.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// New returns the matcher for spec's mode.
func New(spec *metricspec.Spec, opts ...Option) (Matcher, error) {
	o := options{limit: math.MaxUint64, slot: DefaultSlot}
	for _, opt := range opts {
		opt(&o)
	}

	switch spec.Mode() {
	case metricspec.Count:
		return newCountMatcher(spec), nil
	case metricspec.Latency:
		return newLatencyMatcher(spec, o), nil
	case metricspec.Timeslot:
		return newTimeslotMatcher(spec, o.slot), nil
	}
	return nil, fmt.Errorf("%w: %s", metricspec.ErrUnknownMode, spec.Mode())
}

// samples is the per-metric append-only sample buffer shared by matchers.
type samples struct {
	metrics []string
	values  [][]uint64
}

func newSamples(metrics []string) samples {
	return samples{
		metrics: metrics,
		values:  make([][]uint64, len(metrics)),
	}
}

func (s *samples) add(metric int, v uint64) {
	s.values[metric] = append(s.values[metric], v)
}

func (s *samples) Drain() [][]uint64 {
	out := s.values
	s.values = make([][]uint64, len(s.metrics))
	return out
}

func (s *samples) Metrics() []string {
	return append([]string(nil), s.metrics...)
}
