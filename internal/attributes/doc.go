// Package attributes evaluates user expressions that enrich exported cycle
// spans.
//
// Evaluator runs custom attribute expressions against each finalized
// cycle. TraceIDEvaluator and ParentIDEvaluator run once at startup
// against the process environment, so a run can join an existing trace
// (for example one started by a CI job):
//
//	--trace-id 'env["CI_TRACE_ID"]' --parent-id 'env["CI_SPAN_ID"]'
//
// Invalid trace IDs are hashed with SHA-256 into valid ones. Invalid
// parent IDs yield no parent.
package attributes
