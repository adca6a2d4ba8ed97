package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/mrzor/cycletrace/internal/cycle"
	"github.com/mrzor/cycletrace/internal/event"
	"github.com/mrzor/cycletrace/internal/filter"
	"github.com/mrzor/cycletrace/internal/metricspec"
	"github.com/mrzor/cycletrace/internal/registry"
	"github.com/mrzor/cycletrace/internal/window"
	"go.uber.org/zap"
)

// ErrFinished is returned by Ingest and Finish after Finish has run.
var ErrFinished = errors.New("engine already finished")

// Source delivers events to ingest until the trace ends, ctx is cancelled
// or ingest returns an error.
type Source interface {
	Stream(ctx context.Context, ingest func(event.Event) error) error
}

// Config is everything the engine needs for one run.
type Config struct {
	Spec      *metricspec.Spec
	Histogram *registry.HistogramConfig
	// Limit is the latency ceiling; zero means unbounded.
	Limit uint64
	// Slot is the timeslot width in nanoseconds; zero means cycle.DefaultSlot.
	Slot uint64

	HighWater     int
	LowWater      int
	DisableWindow bool

	Filter   *filter.Filter
	Observer cycle.Observer
	Logger   *zap.SugaredLogger
}

// Engine ingests events and answers statistics queries.
type Engine struct {
	logger   *zap.SugaredLogger
	filter   *filter.Filter
	store    *window.Store
	registry *registry.Registry

	finished atomic.Bool
	ingested atomic.Uint64
	dropped  atomic.Uint64
}

// New validates cfg and builds an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Spec == nil {
		return nil, fmt.Errorf("engine: metric specification is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	matcherOpts := []cycle.Option{cycle.WithLimit(cfg.Limit), cycle.WithSlot(cfg.Slot)}
	if cfg.Observer != nil {
		matcherOpts = append(matcherOpts, cycle.WithObserver(cfg.Observer))
	}
	regOpts := []registry.Option{
		registry.WithMatcherOptions(matcherOpts...),
		registry.WithLogger(logger.Named("registry")),
	}
	if cfg.Histogram != nil {
		regOpts = append(regOpts, registry.WithHistogram(*cfg.Histogram))
	}
	reg, err := registry.New(cfg.Spec, regOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating registry: %w", err)
	}

	high, low := cfg.HighWater, cfg.LowWater
	if high == 0 && low == 0 {
		high, low = window.DefaultHighWater, window.DefaultLowWater
	}
	if high < 0 || low < 0 {
		return nil, fmt.Errorf("window watermarks must not be negative (high=%d, low=%d)", high, low)
	}
	storeOpts := []window.Option{
		window.WithWatermarks(high, low),
		window.WithLogger(logger.Named("window")),
	}
	if cfg.DisableWindow {
		storeOpts = append(storeOpts, window.WithoutWindowing())
	}

	return &Engine{
		logger:   logger,
		filter:   cfg.Filter,
		store:    window.New(reg, storeOpts...),
		registry: reg,
	}, nil
}

// Ingest accepts one event. Invalid events are refused with an error
// wrapping the event package's validation error; events rejected by the
// filter are dropped. Ingest is not safe for concurrent use.
func (e *Engine) Ingest(ev event.Event) error {
	if e.finished.Load() {
		return ErrFinished
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("ingesting event: %w", err)
	}

	ok, err := e.filter.Match(ev)
	if err != nil {
		e.logger.Debugw("dropping event", "event", ev.Name, "error", err)
	}
	if !ok {
		e.dropped.Add(1)
		return nil
	}

	e.ingested.Add(1)
	e.store.Append(ev)
	return nil
}

// Finish flushes every buffered event and force-closes open cycles.
func (e *Engine) Finish() error {
	if !e.finished.CompareAndSwap(false, true) {
		return ErrFinished
	}
	e.store.FlushAll()
	e.logger.Debugw("stream finished",
		"ingested", e.ingested.Load(),
		"dropped", e.dropped.Load(),
		"flushes", e.store.Flushes(),
		"samples", e.registry.Samples(),
	)
	return nil
}

// Run streams src into the engine and finishes it. Finish runs even when the
// source fails, so partial results remain queryable.
func (e *Engine) Run(ctx context.Context, src Source) error {
	streamErr := src.Stream(ctx, e.Ingest)
	if err := e.Finish(); err != nil {
		return errors.Join(streamErr, err)
	}
	if streamErr != nil && !errors.Is(streamErr, context.Canceled) {
		return fmt.Errorf("reading trace: %w", streamErr)
	}
	return nil
}

// Finished reports whether Finish has run.
func (e *Engine) Finished() bool { return e.finished.Load() }

// Ingested returns the number of events accepted by the filter.
func (e *Engine) Ingested() uint64 { return e.ingested.Load() }

// Dropped returns the number of events rejected by the filter.
func (e *Engine) Dropped() uint64 { return e.dropped.Load() }

// Sources lists the observed sources followed by event.All.
func (e *Engine) Sources() []event.Source { return e.registry.Sources() }

// Metrics lists the metric names in order.
func (e *Engine) Metrics() []string { return e.registry.Metrics() }

// Statistics returns (min, max, mean) for src and metric.
func (e *Engine) Statistics(src event.Source, metric string) (minimum, maximum, mean uint64, err error) {
	s, err := e.registry.Statistics(src, metric)
	if err != nil {
		return 0, 0, 0, err
	}
	minimum, maximum, mean = s.Values()
	return minimum, maximum, mean, nil
}

// Histogram returns the bucket counts, overflow and total for src and metric.
func (e *Engine) Histogram(src event.Source, metric string) (buckets []uint64, overflow, total uint64, err error) {
	h, err := e.registry.Histogram(src, metric)
	if err != nil {
		return nil, 0, 0, err
	}
	buckets, overflow, total = h.Values()
	return buckets, overflow, total, nil
}

// Snapshot returns a detached copy of every accumulator.
func (e *Engine) Snapshot() registry.Snapshot { return e.registry.Snapshot() }
