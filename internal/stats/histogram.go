package stats

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when merging histograms of different layout.
var ErrShapeMismatch = errors.New("histogram shape mismatch")

// Histogram counts samples into BucketCount buckets of BucketWidth each.
// Values at or beyond BucketWidth*BucketCount land in Overflow.
// Invariant: Total == Overflow + sum(Buckets).
type Histogram struct {
	BucketWidth uint64
	Buckets     []uint64
	Overflow    uint64
	Total       uint64
}

// NewHistogram returns an empty histogram. Both dimensions must be positive.
func NewHistogram(bucketWidth uint64, bucketCount int) (*Histogram, error) {
	if bucketWidth == 0 {
		return nil, fmt.Errorf("histogram bucket width must be positive")
	}
	if bucketCount <= 0 {
		return nil, fmt.Errorf("histogram bucket count must be positive, got %d", bucketCount)
	}
	return &Histogram{
		BucketWidth: bucketWidth,
		Buckets:     make([]uint64, bucketCount),
	}, nil
}

// BucketCount is the number of regular (non-overflow) buckets.
func (h *Histogram) BucketCount() int { return len(h.Buckets) }

// Update folds one sample into the histogram.
func (h *Histogram) Update(value uint64) {
	idx := value / h.BucketWidth
	if idx < uint64(len(h.Buckets)) {
		h.Buckets[idx]++
	} else {
		h.Overflow++
	}
	h.Total++
}

// Add merges other into h. Both must share bucket width and count.
func (h *Histogram) Add(other *Histogram) error {
	if other.BucketWidth != h.BucketWidth || len(other.Buckets) != len(h.Buckets) {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch,
			h.BucketWidth, len(h.Buckets), other.BucketWidth, len(other.Buckets))
	}
	for i, c := range other.Buckets {
		h.Buckets[i] += c
	}
	h.Overflow += other.Overflow
	h.Total += other.Total
	return nil
}

// Clone returns a deep copy.
func (h *Histogram) Clone() *Histogram {
	c := *h
	c.Buckets = append([]uint64(nil), h.Buckets...)
	return &c
}

// Values returns a copy of the bucket counts, the overflow and the total.
func (h *Histogram) Values() (buckets []uint64, overflow, total uint64) {
	return append([]uint64(nil), h.Buckets...), h.Overflow, h.Total
}
