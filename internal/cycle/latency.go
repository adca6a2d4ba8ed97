package cycle

import (
	"github.com/mrzor/cycletrace/internal/event"
	"github.com/mrzor/cycletrace/internal/metricspec"
)

// latencyMatcher measures elapsed time between consecutive markers.
type latencyMatcher struct {
	samples
	spec     *metricspec.Spec
	names    []string
	limit    uint64
	source   event.Source
	observer Observer

	next    int
	present []bool
	stamps  []uint64
	pids    []int32
	comms   []string
}

func newLatencyMatcher(spec *metricspec.Spec, o options) *latencyMatcher {
	return &latencyMatcher{
		samples:  newSamples(spec.Metrics()),
		spec:     spec,
		names:    spec.Names(),
		limit:    o.limit,
		source:   o.source,
		observer: o.observer,
		present:  make([]bool, spec.Len()),
		stamps:   make([]uint64, spec.Len()),
		pids:     make([]int32, spec.Len()),
		comms:    make([]string, spec.Len()),
	}
}

func (m *latencyMatcher) Update(ev event.Event) {
	idx, ok := m.spec.Index(ev.Name)
	if !ok {
		return
	}

	for {
		advanced := idx >= m.next
		if advanced {
			m.stamps[idx] = ev.Timestamp
			m.pids[idx] = ev.Pid
			m.comms[idx] = ev.Comm
			m.present[idx] = true
			m.next = idx + 1
		}

		if !advanced || m.next == len(m.stamps) {
			m.finalize()
		}

		// A marker that went backwards closed the old cycle above and now
		// seeds the new one on the next pass.
		if advanced {
			return
		}
	}
}

// Close finalizes whatever partial cycle remains.
func (m *latencyMatcher) Close() {
	m.finalize()
}

func (m *latencyMatcher) finalize() {
	n := len(m.stamps)
	var cycle *Cycle
	if m.observer != nil {
		cycle = m.observedCycle()
	}

	for i := 0; i < n-1; i++ {
		if m.present[i] && m.present[i+1] {
			m.emit(i, m.stamps[i], m.stamps[i+1], cycle)
		}
	}
	if m.present[0] && m.present[n-1] {
		m.emit(n-1, m.stamps[0], m.stamps[n-1], cycle)
	}

	if cycle != nil && len(cycle.Marks) >= 2 {
		m.observer.ObserveCycle(*cycle)
	}

	clear(m.present)
	m.next = 0
}

func (m *latencyMatcher) emit(metric int, from, to uint64, cycle *Cycle) {
	// Pairs that straddle an out-of-order flush boundary can run backwards.
	if to < from {
		return
	}
	v := to - from
	if v >= m.limit {
		return
	}
	m.add(metric, v)
	if cycle != nil {
		cycle.Latencies = append(cycle.Latencies, Latency{Metric: m.metrics[metric], Value: v})
	}
}

func (m *latencyMatcher) observedCycle() *Cycle {
	c := &Cycle{Source: m.source}
	for i, ok := range m.present {
		if ok {
			c.Marks = append(c.Marks, Mark{
				Index:     i,
				Name:      m.names[i],
				Timestamp: m.stamps[i],
				Pid:       m.pids[i],
				Comm:      m.comms[i],
			})
		}
	}
	return c
}
