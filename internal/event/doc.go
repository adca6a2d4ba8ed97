// Package event defines the immutable trace event consumed by the cycle engine.
//
// An Event is one observed occurrence delivered by a trace source:
//
//	(name, context, source, timestamp_ns, pid, comm)
//
// Source partitions the stream (normally the CPU the event was recorded
// on). Events within a source are ordered by Timestamp; ties keep arrival
// order.
package event
