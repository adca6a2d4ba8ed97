package cycle

import (
	"github.com/mrzor/cycletrace/internal/event"
	"github.com/mrzor/cycletrace/internal/metricspec"
)

// countMatcher tallies interior markers between a begin and an end edge.
type countMatcher struct {
	samples
	spec      *metricspec.Spec
	last      int // index of the end edge
	recording bool
	current   []uint64
}

func newCountMatcher(spec *metricspec.Spec) *countMatcher {
	metrics := spec.Metrics()
	return &countMatcher{
		samples: newSamples(metrics),
		spec:    spec,
		last:    spec.Len() - 1,
		current: make([]uint64, len(metrics)),
	}
}

func (m *countMatcher) Update(ev event.Event) {
	idx, ok := m.spec.Index(ev.Name)
	if !ok {
		return
	}

	switch {
	case idx == 0:
		// A begin while recording means the previous end was lost.
		clear(m.current)
		m.recording = true
	case !m.recording:
		// end or interior marker without a begin
	case idx == m.last:
		for i, c := range m.current {
			m.add(i, c)
		}
		m.recording = false
	default:
		m.current[idx-1]++
	}
}

// Close discards any partial tally: only cycles bounded by both edges count.
func (m *countMatcher) Close() {
	m.recording = false
	clear(m.current)
}
