package registry

import (
	"slices"

	"github.com/mrzor/cycletrace/internal/event"
	"github.com/mrzor/cycletrace/internal/metricspec"
	"github.com/mrzor/cycletrace/internal/stats"
)

// SourceSummary holds copies of one source's accumulators, indexed like
// Snapshot.Metrics. Histograms is nil when histograms are disabled and
// Slots is nil outside timeslot mode.
type SourceSummary struct {
	Source     event.Source
	Statistics []stats.Statistics
	Histograms []*stats.Histogram
	// Slots maps a timeslot index to per-metric event counts.
	Slots map[uint64][]uint64
}

// Snapshot is a consistent, detached copy of the registry for reporting.
type Snapshot struct {
	Mode      metricspec.Mode
	Names     []string
	Metrics   []string
	Histogram *HistogramConfig
	// SlotWidth is the timeslot width in nanoseconds; zero outside
	// timeslot mode.
	SlotWidth uint64
	Samples   uint64
	// Sources lists real sources ascending, then the merged event.All entry.
	Sources []SourceSummary
}

// Snapshot copies every accumulator under a single read lock.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Mode:      r.spec.Mode(),
		Names:     r.spec.Names(),
		Metrics:   r.Metrics(),
		Histogram: r.HistogramConfig(),
		SlotWidth: r.slotWidth,
		Samples:   r.samples,
	}

	all := SourceSummary{
		Source:     event.All,
		Statistics: make([]stats.Statistics, len(r.metrics)),
	}
	for i := range all.Statistics {
		all.Statistics[i] = stats.NewStatistics()
	}
	if r.histogram != nil {
		all.Histograms = make([]*stats.Histogram, len(r.metrics))
		for i := range all.Histograms {
			//nolint:errcheck // layout was validated by New
			all.Histograms[i], _ = stats.NewHistogram(r.histogram.BucketWidth, r.histogram.BucketCount)
		}
	}
	if r.slotWidth > 0 {
		all.Slots = make(map[uint64][]uint64)
	}

	for _, src := range r.sortedSources() {
		st := r.sources[src]
		sum := SourceSummary{
			Source:     src,
			Statistics: append([]stats.Statistics(nil), st.stats...),
		}
		for i, s := range st.stats {
			all.Statistics[i].Add(s)
		}
		if st.histos != nil {
			sum.Histograms = make([]*stats.Histogram, len(st.histos))
			for i, h := range st.histos {
				sum.Histograms[i] = h.Clone()
				//nolint:errcheck // every histogram shares the validated layout
				_ = all.Histograms[i].Add(h)
			}
		}
		if st.slots != nil {
			sum.Slots = make(map[uint64][]uint64, len(st.slots))
			mergeSlots(sum.Slots, st.slots)
			mergeSlots(all.Slots, st.slots)
		}
		snap.Sources = append(snap.Sources, sum)
	}
	snap.Sources = append(snap.Sources, all)

	return snap
}

// SlotIndexes returns every timeslot index seen by any source, ascending.
func (s Snapshot) SlotIndexes() []uint64 {
	seen := make(map[uint64]struct{})
	for _, src := range s.Sources {
		for idx := range src.Slots {
			seen[idx] = struct{}{}
		}
	}
	indexes := make([]uint64, 0, len(seen))
	for idx := range seen {
		indexes = append(indexes, idx)
	}
	slices.Sort(indexes)
	return indexes
}
