package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/mrzor/cycletrace/internal/cycle"
	"github.com/mrzor/cycletrace/internal/event"
	"github.com/mrzor/cycletrace/internal/metricspec"
	"github.com/mrzor/cycletrace/internal/stats"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrNoHistogram is returned by histogram queries when histograms are disabled.
	ErrNoHistogram = errors.New("histograms are not configured")
)

// NotFoundError names the source or metric a query could not resolve.
type NotFoundError struct {
	Kind string // "source" or "metric"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// HistogramConfig is the bucket layout shared by every histogram.
type HistogramConfig struct {
	BucketWidth uint64
	BucketCount int
}

// sourceState is everything kept for one source.
type sourceState struct {
	matcher cycle.Matcher
	stats   []stats.Statistics
	histos  []*stats.Histogram
	// slots maps a timeslot index to per-name counts (timeslot mode only).
	slots map[uint64][]uint64
}

// Registry maps sources to their matcher and accumulators.
type Registry struct {
	mu sync.RWMutex

	spec        *metricspec.Spec
	metrics     []string
	histogram   *HistogramConfig
	matcherOpts []cycle.Option
	slotWidth   uint64
	logger      *zap.SugaredLogger

	sources map[event.Source]*sourceState
	samples uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithHistogram enables histograms with the given layout.
func WithHistogram(cfg HistogramConfig) Option {
	return func(r *Registry) {
		r.histogram = &cfg
	}
}

// WithMatcherOptions passes options to every matcher the registry creates.
func WithMatcherOptions(opts ...cycle.Option) Option {
	return func(r *Registry) {
		r.matcherOpts = append(r.matcherOpts, opts...)
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates an empty registry for spec.
func New(spec *metricspec.Spec, opts ...Option) (*Registry, error) {
	r := &Registry{
		spec:    spec,
		metrics: spec.Metrics(),
		logger:  zap.NewNop().Sugar(),
		sources: make(map[event.Source]*sourceState),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.histogram != nil {
		if _, err := stats.NewHistogram(r.histogram.BucketWidth, r.histogram.BucketCount); err != nil {
			return nil, err
		}
	}
	m, err := cycle.New(spec, r.matcherOpts...)
	if err != nil {
		return nil, err
	}
	if tl, ok := m.(cycle.Timeline); ok {
		r.slotWidth = tl.SlotWidth()
	}

	return r, nil
}

// Process applies an ordered batch of events for src.
func (r *Registry) Process(src event.Source, events []event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.getOrCreate(src)
	for _, ev := range events {
		st.matcher.Update(ev)
	}
	r.absorb(st)
}

// Close force-closes src's open cycle and absorbs the result.
func (r *Registry) Close(src event.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.sources[src]
	if !ok {
		return
	}
	st.matcher.Close()
	r.absorb(st)
}

// getOrCreate must be called with mu held.
func (r *Registry) getOrCreate(src event.Source) *sourceState {
	if st, ok := r.sources[src]; ok {
		return st
	}

	opts := append(slices.Clone(r.matcherOpts), cycle.WithSource(src))
	//nolint:errcheck // spec and options were validated by New
	matcher, _ := cycle.New(r.spec, opts...)

	st := &sourceState{
		matcher: matcher,
		stats:   make([]stats.Statistics, len(r.metrics)),
	}
	for i := range st.stats {
		st.stats[i] = stats.NewStatistics()
	}
	if r.histogram != nil {
		st.histos = make([]*stats.Histogram, len(r.metrics))
		for i := range st.histos {
			//nolint:errcheck // layout was validated by New
			st.histos[i], _ = stats.NewHistogram(r.histogram.BucketWidth, r.histogram.BucketCount)
		}
	}

	if r.slotWidth > 0 {
		st.slots = make(map[uint64][]uint64)
	}

	r.sources[src] = st
	r.logger.Debugw("new source", "source", src.String())
	return st
}

// absorb must be called with mu held.
func (r *Registry) absorb(st *sourceState) {
	for i, values := range st.matcher.Drain() {
		for _, v := range values {
			st.stats[i].Update(v)
			if st.histos != nil {
				st.histos[i].Update(v)
			}
		}
		r.samples += uint64(len(values))
	}

	tl, ok := st.matcher.(cycle.Timeline)
	if !ok {
		return
	}
	for _, slot := range tl.DrainSlots() {
		st.slots[slot.Index] = addCounts(st.slots[slot.Index], slot.Counts)
	}
}

// addCounts adds src into dst element-wise, allocating dst when nil.
func addCounts(dst, src []uint64) []uint64 {
	if dst == nil {
		dst = make([]uint64, len(src))
	}
	for i, c := range src {
		dst[i] += c
	}
	return dst
}

// SlotWidth returns the timeslot width in nanoseconds, or zero outside
// timeslot mode.
func (r *Registry) SlotWidth() uint64 { return r.slotWidth }

// Metrics returns the ordered metric names.
func (r *Registry) Metrics() []string {
	return slices.Clone(r.metrics)
}

// HistogramConfig returns the histogram layout, or nil when disabled.
func (r *Registry) HistogramConfig() *HistogramConfig {
	if r.histogram == nil {
		return nil
	}
	cfg := *r.histogram
	return &cfg
}

// Sources returns the known sources in ascending order followed by event.All.
func (r *Registry) Sources() []event.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(r.sortedSources(), event.All)
}

func (r *Registry) sortedSources() []event.Source {
	srcs := make([]event.Source, 0, len(r.sources)+1)
	for src := range r.sources {
		srcs = append(srcs, src)
	}
	slices.Sort(srcs)
	return srcs
}

// Samples returns the total number of samples absorbed.
func (r *Registry) Samples() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.samples
}

func (r *Registry) metricIndex(metric string) (int, error) {
	i := slices.Index(r.metrics, metric)
	if i < 0 {
		return 0, &NotFoundError{Kind: "metric", Name: metric}
	}
	return i, nil
}

// Statistics returns a copy of the accumulator for (src, metric).
// For event.All it is the merge over every known source.
func (r *Registry) Statistics(src event.Source, metric string) (stats.Statistics, error) {
	i, err := r.metricIndex(metric)
	if err != nil {
		return stats.Statistics{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if src == event.All {
		merged := stats.NewStatistics()
		for _, s := range r.sortedSources() {
			merged.Add(r.sources[s].stats[i])
		}
		return merged, nil
	}

	st, ok := r.sources[src]
	if !ok {
		return stats.Statistics{}, &NotFoundError{Kind: "source", Name: src.String()}
	}
	return st.stats[i], nil
}

// Timeslots returns a copy of src's per-slot counts keyed by slot index,
// each indexed like Metrics. For event.All the counts of every
// source are summed per slot. It is nil outside timeslot mode.
func (r *Registry) Timeslots(src event.Source) (map[uint64][]uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.slotWidth == 0 {
		return nil, nil
	}
	if src == event.All {
		merged := make(map[uint64][]uint64)
		for _, st := range r.sources {
			mergeSlots(merged, st.slots)
		}
		return merged, nil
	}

	st, ok := r.sources[src]
	if !ok {
		return nil, &NotFoundError{Kind: "source", Name: src.String()}
	}
	out := make(map[uint64][]uint64, len(st.slots))
	mergeSlots(out, st.slots)
	return out, nil
}

func mergeSlots(dst, src map[uint64][]uint64) {
	for idx, counts := range src {
		dst[idx] = addCounts(dst[idx], counts)
	}
}

// Histogram returns a copy of the histogram for (src, metric).
// For event.All it is the merge over every known source.
func (r *Registry) Histogram(src event.Source, metric string) (*stats.Histogram, error) {
	if r.histogram == nil {
		return nil, ErrNoHistogram
	}
	i, err := r.metricIndex(metric)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if src == event.All {
		merged, err := stats.NewHistogram(r.histogram.BucketWidth, r.histogram.BucketCount)
		if err != nil {
			return nil, err
		}
		for _, s := range r.sortedSources() {
			if err := merged.Add(r.sources[s].histos[i]); err != nil {
				return nil, err
			}
		}
		return merged, nil
	}

	st, ok := r.sources[src]
	if !ok {
		return nil, &NotFoundError{Kind: "source", Name: src.String()}
	}
	return st.histos[i].Clone(), nil
}
