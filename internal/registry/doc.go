// Package registry owns the per-source cycle matchers and accumulators and
// answers statistics and histogram queries, including the synthetic "all"
// source that merges every real source.
//
// Registry implements window.Processor: ordered batches from the windowed
// store are applied to the source's matcher, and every sample the matcher
// produces is folded into that source's Statistics and Histogram for the
// metric. Samples are not retained after absorption.
//
// Queries may run concurrently with ingestion; they see the samples absorbed
// so far, not events still waiting in the window.
package registry
