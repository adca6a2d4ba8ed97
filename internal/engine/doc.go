// Package engine is the explicit run context tying the event pipeline
// together:
//
//	source ──► Ingest ──► filter ──► window.Store ──► registry.Registry
//	                                  (per source)     ├─ cycle.Matcher
//	                                                   ├─ stats.Statistics
//	                                                   └─ stats.Histogram
//
// Ingest is called once per observed event, Finish exactly once at end of
// stream; queries are valid afterwards and permitted (best-effort) before.
// One Engine holds one run's state; nothing is process-global.
package engine
