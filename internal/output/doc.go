// Package output renders engine results.
//
// WriteReport prints a registry snapshot as the plain-text report familiar
// from the perf trace scripts: a legend, per-source min/avg/max rows and,
// when enabled, one histogram table per metric.
//
// CycleExporter is a cycle.Observer that turns every finalized latency
// cycle into an OpenTelemetry span:
//
//	first mark                                      last mark
//	    |------------------ span "cycle" -----------------|
//	    ^ event A            ^ event B                ^ event C
//
// All spans of one run share a trace ID derived from the run ID, so a
// collector groups them together.
package output
