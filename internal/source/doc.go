// Package source turns trace files into event streams for the engine.
//
// Two line-oriented formats are understood:
//
//	perf   default `perf script` text output
//	       "  swapper     0 [002]  6305.137521: irq:irq_handler_entry: irq=19 name=ahci"
//	jsonl  one JSON object per line
//	       {"name":"irq:irq_handler_entry","cpu":2,"ts":6305137521000,"pid":0,"comm":"swapper"}
//
// Lines that cannot be parsed are logged at debug level, counted and
// skipped; they never abort the stream.
package source
