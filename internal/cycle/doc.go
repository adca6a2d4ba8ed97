// Package cycle reconstructs measurement cycles from a timestamp-ordered
// sequence of marker events belonging to one source.
//
// Three matchers share the Matcher interface:
//
//	count:    B ... X ... Y ... E   -> one sample per interior marker (its tally)
//	latency:  A ... B ... C         -> A->B, B->C and total (C-A)
//	timeslot: events in [k*slot, (k+1)*slot) -> one tally per marker name
//
// State Machine (count):
//
//	┌──────┐  begin   ┌───────────┐
//	│ Idle │ ───────► │ Recording │ ◄─┐ interior marker: tally++
//	└──────┘          └─────┬─────┘ ──┘ begin: restart from zero
//	    ▲                   │
//	    │        end        │
//	    └───────────────────┘  emit tallies
//
// State Machine (latency):
//
//	marker index i, expected index n
//	  i >= n : record ts[i], n = i+1
//	  i <  n : finalize current cycle, then record ts[i] as the seed of the next
//	  n == N : finalize
//
// A finalized latency cycle yields every consecutive pair whose two endpoints
// were recorded, plus the total when the first and last markers were both
// seen. Values at or above the configured ceiling are discarded.
//
// Samples accumulate inside the matcher until Drain is called. Matchers are
// not safe for concurrent use; each source owns its own.
package cycle
