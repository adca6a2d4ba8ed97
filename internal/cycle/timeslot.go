package cycle

import (
	"slices"

	"github.com/mrzor/cycletrace/internal/event"
	"github.com/mrzor/cycletrace/internal/metricspec"
)

// Slot is the per-name event count of one finished timeslot, indexed like
// metricspec.Spec.Names. Index is ts / width.
type Slot struct {
	Index  uint64
	Counts []uint64
}

// Timeline is implemented by matchers that keep per-slot counts.
type Timeline interface {
	// SlotWidth returns the slot width in nanoseconds.
	SlotWidth() uint64
	// DrainSlots returns the slots finished since the previous call and
	// clears them.
	DrainSlots() []Slot
}

// timeslotMatcher counts markers per fixed-width time slot.
type timeslotMatcher struct {
	samples
	spec   *metricspec.Spec
	width  uint64
	active bool
	slot   uint64
	counts []uint64
	slots  []Slot
}

func newTimeslotMatcher(spec *metricspec.Spec, width uint64) *timeslotMatcher {
	return &timeslotMatcher{
		samples: newSamples(spec.Metrics()),
		spec:    spec,
		width:   width,
		counts:  make([]uint64, spec.Len()),
	}
}

func (m *timeslotMatcher) Update(ev event.Event) {
	idx, ok := m.spec.Index(ev.Name)
	if !ok {
		return
	}

	slot := ev.Timestamp / m.width
	if m.active && slot != m.slot {
		m.emit()
	}
	if !m.active {
		m.active = true
		m.slot = slot
	}
	m.counts[idx]++
}

func (m *timeslotMatcher) Close() {
	if m.active {
		m.emit()
	}
}

func (m *timeslotMatcher) SlotWidth() uint64 { return m.width }

func (m *timeslotMatcher) DrainSlots() []Slot {
	out := m.slots
	m.slots = nil
	return out
}

func (m *timeslotMatcher) emit() {
	for i, c := range m.counts {
		m.add(i, c)
	}
	m.slots = append(m.slots, Slot{Index: m.slot, Counts: slices.Clone(m.counts)})
	clear(m.counts)
	m.active = false
}
