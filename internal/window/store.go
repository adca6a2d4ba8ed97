// Package window buffers events per source and hands timestamp-ordered
// batches to a Processor while keeping per-source memory bounded.
//
// When a source's buffer grows past the high-water mark it is stably sorted
// by timestamp, everything but the last low-water events is processed, and
// that tail is kept: its cycles may still be waiting for events in flight.
package window

import (
	"cmp"
	"slices"

	"github.com/mrzor/cycletrace/internal/event"
	"go.uber.org/zap"
)

// Default watermarks.
const (
	DefaultHighWater = 1024
	DefaultLowWater  = 128
)

// Processor consumes ordered batches for one source.
type Processor interface {
	// Process applies events, already sorted by timestamp, for src.
	// The slice is only valid for the duration of the call.
	Process(src event.Source, events []event.Event)
	// Close is called once per source at end of stream, after its last batch.
	Close(src event.Source)
}

// Store is the per-source windowed event buffer. It is not safe for
// concurrent use.
type Store struct {
	proc      Processor
	high      int
	low       int
	unbounded bool
	logger    *zap.SugaredLogger

	buffers map[event.Source][]event.Event
	flushes uint64
}

// Option configures a Store.
type Option func(*Store)

// WithWatermarks sets the high- and low-water marks.
func WithWatermarks(high, low int) Option {
	return func(s *Store) {
		s.high = max(high, 0)
		s.low = max(low, 0)
	}
}

// WithoutWindowing buffers everything until FlushAll.
func WithoutWindowing() Option {
	return func(s *Store) {
		s.unbounded = true
	}
}

// WithLogger sets the logger used for flush diagnostics.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store feeding proc.
func New(proc Processor, opts ...Option) *Store {
	s := &Store{
		proc:    proc,
		high:    DefaultHighWater,
		low:     DefaultLowWater,
		logger:  zap.NewNop().Sugar(),
		buffers: make(map[event.Source][]event.Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append routes ev into its source's buffer, flushing the buffer's sorted
// prefix when it exceeds the high-water mark.
func (s *Store) Append(ev event.Event) {
	buf := append(s.buffers[ev.Source], ev)

	if !s.unbounded && len(buf) > s.high {
		buf = s.flush(ev.Source, buf)
	}
	s.buffers[ev.Source] = buf
}

func (s *Store) flush(src event.Source, buf []event.Event) []event.Event {
	sortByTimestamp(buf)

	cut := len(buf) - s.low
	if cut <= 0 {
		return buf
	}
	s.proc.Process(src, buf[:cut])
	s.flushes++
	s.logger.Debugw("window flushed", "source", src.String(), "processed", cut, "retained", len(buf)-cut)

	n := copy(buf, buf[cut:])
	clear(buf[n:])
	return buf[:n]
}

// FlushAll processes every remaining buffered event and closes each source.
// Sources are flushed in ascending order.
func (s *Store) FlushAll() {
	for _, src := range s.Sources() {
		buf := s.buffers[src]
		sortByTimestamp(buf)
		if len(buf) > 0 {
			s.proc.Process(src, buf)
		}
		s.proc.Close(src)

		clear(buf)
		s.buffers[src] = buf[:0]
	}
}

// Sources returns the known sources in ascending order.
func (s *Store) Sources() []event.Source {
	srcs := make([]event.Source, 0, len(s.buffers))
	for src := range s.buffers {
		srcs = append(srcs, src)
	}
	slices.Sort(srcs)
	return srcs
}

// Buffered returns the number of events waiting for src.
func (s *Store) Buffered(src event.Source) int {
	return len(s.buffers[src])
}

// Flushes returns how many watermark flushes have run.
func (s *Store) Flushes() uint64 {
	return s.flushes
}

// sortByTimestamp stably sorts so equal timestamps keep arrival order.
func sortByTimestamp(events []event.Event) {
	slices.SortStableFunc(events, func(a, b event.Event) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
}
