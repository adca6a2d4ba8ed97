package output

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mrzor/cycletrace/internal/attributes"
	"github.com/mrzor/cycletrace/internal/cycle"
	"github.com/mrzor/cycletrace/internal/metricspec"
	"github.com/mrzor/cycletrace/internal/timesync"
)

// CycleExporter emits one span per finalized latency cycle.
type CycleExporter struct {
	tracer    trace.Tracer
	clock     *timesync.Converter
	parent    context.Context
	evaluator *attributes.Evaluator
	warnings  []attribute.KeyValue
	logger    *zap.SugaredLogger
	exported  atomic.Uint64
	failed    atomic.Uint64
}

// ExporterOption configures a CycleExporter.
type ExporterOption func(*exporterOptions)

type exporterOptions struct {
	traceID   trace.TraceID
	parentID  trace.SpanID
	evaluator *attributes.Evaluator
	warnings  []attribute.KeyValue
	logger    *zap.SugaredLogger
}

// WithTraceParent places spans under an existing trace instead of the one
// derived from the run ID. A zero parentID keeps the run-derived parent.
func WithTraceParent(traceID trace.TraceID, parentID trace.SpanID) ExporterOption {
	return func(o *exporterOptions) {
		o.traceID = traceID
		o.parentID = parentID
	}
}

// WithAttributeEvaluator adds custom attributes to every span.
func WithAttributeEvaluator(e *attributes.Evaluator) ExporterOption {
	return func(o *exporterOptions) { o.evaluator = e }
}

// WithSpanWarnings attaches fixed attributes, such as ID resolution
// warnings, to every span.
func WithSpanWarnings(attrs ...attribute.KeyValue) ExporterOption {
	return func(o *exporterOptions) { o.warnings = append(o.warnings, attrs...) }
}

// WithExporterLogger sets the logger for attribute evaluation failures.
func WithExporterLogger(l *zap.SugaredLogger) ExporterOption {
	return func(o *exporterOptions) { o.logger = l }
}

// NewCycleExporter creates an exporter whose spans all belong to the trace
// identified by runID, unless WithTraceParent overrides it.
func NewCycleExporter(tracer trace.Tracer, runID uuid.UUID, clock *timesync.Converter, opts ...ExporterOption) (*CycleExporter, error) {
	if tracer == nil {
		return nil, fmt.Errorf("tracer is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("time converter is required")
	}

	var o exporterOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop().Sugar()
	}

	traceID := trace.TraceID(runID)
	if o.traceID.IsValid() {
		traceID = o.traceID
	}
	var spanID trace.SpanID
	copy(spanID[:], runID[8:])
	if o.parentID.IsValid() {
		spanID = o.parentID
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	if !sc.IsValid() {
		return nil, fmt.Errorf("invalid run ID %s", runID)
	}

	return &CycleExporter{
		tracer:    tracer,
		clock:     clock,
		parent:    trace.ContextWithRemoteSpanContext(context.Background(), sc),
		evaluator: o.evaluator,
		warnings:  o.warnings,
		logger:    o.logger,
	}, nil
}

// ObserveCycle implements cycle.Observer.
func (x *CycleExporter) ObserveCycle(c cycle.Cycle) {
	if len(c.Marks) < 2 {
		return
	}
	first, last := c.Marks[0], c.Marks[len(c.Marks)-1]

	_, span := x.tracer.Start(x.parent, "cycle",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(x.clock.WallClock(first.Timestamp)),
		trace.WithAttributes(
			attribute.Int("cycletrace.source", int(c.Source)),
			attribute.String("cycletrace.first", first.Name),
			attribute.String("cycletrace.last", last.Name),
			attribute.Int("cycletrace.marks", len(c.Marks)),
		),
	)

	for _, m := range c.Marks {
		span.AddEvent(m.Name,
			trace.WithTimestamp(x.clock.WallClock(m.Timestamp)),
			trace.WithAttributes(attribute.Int("cycletrace.mark.index", m.Index)),
		)
	}

	attrs := make([]attribute.KeyValue, 0, len(c.Latencies)+len(x.warnings)+2)
	for _, l := range c.Latencies {
		//nolint:gosec // latencies fit in int64
		attrs = append(attrs, attribute.Int64(LatencyAttributeKey(l.Metric), int64(l.Value)))
	}
	if first.Comm != "" {
		attrs = append(attrs,
			attribute.Int("process.pid", int(first.Pid)),
			attribute.String("process.command", first.Comm),
		)
	}
	attrs = append(attrs, x.warnings...)

	custom, err := x.evaluator.Evaluate(c)
	if err != nil {
		x.failed.Add(1)
		x.logger.Debugw("evaluating custom attributes", "source", int(c.Source), "error", err)
	}
	attrs = append(attrs, custom...)
	span.SetAttributes(attrs...)

	span.End(trace.WithTimestamp(x.clock.WallClock(last.Timestamp)))
	x.exported.Add(1)
}

// Exported returns the number of spans emitted.
func (x *CycleExporter) Exported() uint64 { return x.exported.Load() }

// AttributeFailures returns the number of spans on which at least one
// custom attribute failed to evaluate.
func (x *CycleExporter) AttributeFailures() uint64 { return x.failed.Load() }

// LatencyAttributeKey maps a latency metric name to a span attribute key,
// e.g. "irq:entry -> irq:exit" becomes "cycletrace.latency.irq_entry.irq_exit_ns".
func LatencyAttributeKey(metric string) string {
	if metric == metricspec.TotalMetric {
		return "cycletrace.latency.total_ns"
	}
	from, to, _ := strings.Cut(metric, " -> ")
	return "cycletrace.latency." + attrToken(from) + "." + attrToken(to) + "_ns"
}

func attrToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
