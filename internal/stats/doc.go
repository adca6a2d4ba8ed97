// Package stats provides mergeable running accumulators for cycle samples.
//
// Statistics keeps min/max/sum/count. Histogram keeps fixed-width bucket
// counts plus an overflow bucket. Both are updated incrementally, one sample
// at a time, and merge exactly: folding partitions of a sample set into
// separate accumulators and merging them in any order yields the same result
// as folding every sample into one accumulator. Samples are not retained.
package stats
