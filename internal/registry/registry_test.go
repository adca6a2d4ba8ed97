package registry

import (
	"testing"

	"github.com/mrzor/cycletrace/internal/cycle"
	"github.com/mrzor/cycletrace/internal/event"
	"github.com/mrzor/cycletrace/internal/metricspec"
	"github.com/mrzor/cycletrace/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newLatencyRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	spec, err := metricspec.New(metricspec.Latency, []string{"A", "B", "C"})
	require.NoError(t, err)
	opts = append(opts, WithLogger(zaptest.NewLogger(t).Sugar()))
	r, err := New(spec, opts...)
	require.NoError(t, err)
	return r
}

func cycleEvents(src event.Source, base uint64, ab, bc uint64) []event.Event {
	return []event.Event{
		{Name: "A", Source: src, Timestamp: base},
		{Name: "B", Source: src, Timestamp: base + ab},
		{Name: "C", Source: src, Timestamp: base + ab + bc},
	}
}

func TestProcess_PerSourceStatistics(t *testing.T) {
	r := newLatencyRegistry(t)

	r.Process(0, cycleEvents(0, 0, 10, 20))
	r.Process(0, cycleEvents(0, 1000, 30, 40))
	r.Process(2, cycleEvents(2, 0, 5, 5))

	s, err := r.Statistics(0, "A -> B")
	require.NoError(t, err)
	minimum, maximum, mean := s.Values()
	assert.Equal(t, []uint64{10, 30, 20}, []uint64{minimum, maximum, mean})

	s, err = r.Statistics(2, "total")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), s.Sum)
	assert.Equal(t, uint64(1), s.Count)

	assert.Equal(t, []event.Source{0, 2, event.All}, r.Sources())
	assert.Equal(t, uint64(9), r.Samples())
}

func TestStatistics_AllMatchesSingleFold(t *testing.T) {
	r := newLatencyRegistry(t, WithHistogram(HistogramConfig{BucketWidth: 10, BucketCount: 4}))

	r.Process(3, cycleEvents(3, 0, 10, 20))
	r.Process(1, cycleEvents(1, 0, 7, 45))
	r.Process(0, cycleEvents(0, 0, 33, 1))

	wantStats := stats.NewStatistics()
	wantHisto, err := stats.NewHistogram(10, 4)
	require.NoError(t, err)
	for _, v := range []uint64{30, 52, 34} {
		wantStats.Update(v)
		wantHisto.Update(v)
	}

	got, err := r.Statistics(event.All, "total")
	require.NoError(t, err)
	assert.Equal(t, wantStats, got)

	h, err := r.Histogram(event.All, "total")
	require.NoError(t, err)
	assert.Equal(t, wantHisto, h)
}

func TestStatistics_AllWithoutSources(t *testing.T) {
	r := newLatencyRegistry(t)

	s, err := r.Statistics(event.All, "total")
	require.NoError(t, err)
	minimum, maximum, mean := s.Values()
	assert.Zero(t, minimum+maximum+mean)
}

func TestQueries_NotFound(t *testing.T) {
	r := newLatencyRegistry(t, WithHistogram(HistogramConfig{BucketWidth: 1, BucketCount: 1}))
	r.Process(0, cycleEvents(0, 0, 1, 1))

	_, err := r.Statistics(5, "total")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), `source "5"`)

	_, err = r.Statistics(0, "C -> A")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), `metric "C -> A"`)

	_, err = r.Histogram(9, "total")
	require.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "source", nf.Kind)
}

func TestHistogram_Disabled(t *testing.T) {
	r := newLatencyRegistry(t)
	r.Process(0, cycleEvents(0, 0, 1, 1))

	_, err := r.Histogram(0, "total")
	require.ErrorIs(t, err, ErrNoHistogram)
	assert.Nil(t, r.HistogramConfig())
}

func TestHistogram_ReturnsCopy(t *testing.T) {
	r := newLatencyRegistry(t, WithHistogram(HistogramConfig{BucketWidth: 100, BucketCount: 2}))
	r.Process(0, cycleEvents(0, 0, 1, 1))

	h, err := r.Histogram(0, "total")
	require.NoError(t, err)
	h.Update(1)

	h2, err := r.Histogram(0, "total")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h2.Total)
}

func TestNew_InvalidHistogram(t *testing.T) {
	spec, err := metricspec.New(metricspec.Latency, []string{"A", "B"})
	require.NoError(t, err)

	_, err = New(spec, WithHistogram(HistogramConfig{BucketWidth: 0, BucketCount: 3}))
	require.Error(t, err)
}

func TestClose_FinalizesPartialCycles(t *testing.T) {
	r := newLatencyRegistry(t, WithMatcherOptions(cycle.WithLimit(1000)))

	r.Process(0, []event.Event{
		{Name: "A", Source: 0, Timestamp: 100},
		{Name: "B", Source: 0, Timestamp: 160},
	})
	s, err := r.Statistics(0, "A -> B")
	require.NoError(t, err)
	assert.Zero(t, s.Count, "cycle still open")

	r.Close(0)
	s, err = r.Statistics(0, "A -> B")
	require.NoError(t, err)
	assert.Equal(t, uint64(60), s.Sum)

	// Closing an unknown source is a no-op.
	r.Close(42)
	assert.Equal(t, []event.Source{0, event.All}, r.Sources())
}

func TestCountMode(t *testing.T) {
	spec, err := metricspec.New(metricspec.Count, []string{"B", "X", "Y", "E"})
	require.NoError(t, err)
	r, err := New(spec)
	require.NoError(t, err)

	names := []string{"B", "X", "X", "Y", "E", "B", "X", "E"}
	events := make([]event.Event, len(names))
	for i, n := range names {
		events[i] = event.Event{Name: n, Source: 1, Timestamp: uint64(i)}
	}
	r.Process(1, events)

	x, err := r.Statistics(1, "X")
	require.NoError(t, err)
	assert.Equal(t, stats.Statistics{Min: 1, Max: 2, Sum: 3, Count: 2}, x)

	y, err := r.Statistics(1, "Y")
	require.NoError(t, err)
	assert.Equal(t, stats.Statistics{Min: 0, Max: 1, Sum: 1, Count: 2}, y)
}

func TestSnapshot(t *testing.T) {
	r := newLatencyRegistry(t, WithHistogram(HistogramConfig{BucketWidth: 10, BucketCount: 10}))
	r.Process(1, cycleEvents(1, 0, 10, 20))
	r.Process(0, cycleEvents(0, 0, 5, 5))

	snap := r.Snapshot()

	assert.Equal(t, metricspec.Latency, snap.Mode)
	assert.Equal(t, []string{"A", "B", "C"}, snap.Names)
	assert.Equal(t, []string{"A -> B", "B -> C", "total"}, snap.Metrics)
	require.Len(t, snap.Sources, 3)
	assert.Equal(t, event.Source(0), snap.Sources[0].Source)
	assert.Equal(t, event.Source(1), snap.Sources[1].Source)
	assert.Equal(t, event.All, snap.Sources[2].Source)

	all := snap.Sources[2]
	assert.Equal(t, uint64(40), all.Statistics[2].Sum)
	assert.Equal(t, uint64(2), all.Histograms[2].Total)

	// Snapshots are detached from the registry.
	snap.Sources[0].Histograms[0].Update(1)
	h, err := r.Histogram(0, "A -> B")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.Total)
}

func TestTimeslots_PerSourceAndAll(t *testing.T) {
	spec, err := metricspec.New(metricspec.Timeslot, []string{"A", "B"})
	require.NoError(t, err)
	r, err := New(spec, WithMatcherOptions(cycle.WithSlot(100)))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), r.SlotWidth())

	r.Process(0, []event.Event{
		{Name: "A", Source: 0, Timestamp: 100},
		{Name: "B", Source: 0, Timestamp: 150},
		{Name: "A", Source: 0, Timestamp: 300},
	})
	r.Process(2, []event.Event{
		{Name: "A", Source: 2, Timestamp: 120},
		{Name: "A", Source: 2, Timestamp: 210},
	})
	r.Close(0)
	r.Close(2)

	src0, err := r.Timeslots(0)
	require.NoError(t, err)
	assert.Equal(t, map[uint64][]uint64{1: {1, 1}, 3: {1, 0}}, src0)

	all, err := r.Timeslots(event.All)
	require.NoError(t, err)
	assert.Equal(t, map[uint64][]uint64{1: {2, 1}, 2: {1, 0}, 3: {1, 0}}, all)

	_, err = r.Timeslots(7)
	assert.ErrorIs(t, err, ErrNotFound)

	snap := r.Snapshot()
	assert.Equal(t, uint64(100), snap.SlotWidth)
	assert.Equal(t, []uint64{1, 2, 3}, snap.SlotIndexes())
	require.Len(t, snap.Sources, 3)
	assert.Equal(t, []uint64{1, 0}, snap.Sources[1].Slots[2])
	assert.Equal(t, all, snap.Sources[2].Slots)

	// Snapshots are detached from the registry.
	snap.Sources[0].Slots[1][0] = 99
	src0, err = r.Timeslots(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), src0[1][0])
}

func TestTimeslots_OtherModes(t *testing.T) {
	r := newLatencyRegistry(t)
	r.Process(0, cycleEvents(0, 0, 5, 5))

	assert.Zero(t, r.SlotWidth())
	slots, err := r.Timeslots(0)
	require.NoError(t, err)
	assert.Nil(t, slots)
	assert.Nil(t, r.Snapshot().Sources[0].Slots)
}
