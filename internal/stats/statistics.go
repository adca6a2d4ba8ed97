package stats

import "math"

// Statistics is a running min/max/sum/count accumulator.
// The zero value is not ready for use; call NewStatistics.
type Statistics struct {
	Min   uint64
	Max   uint64
	Sum   uint64
	Count uint64
}

// NewStatistics returns an empty accumulator with Min at its sentinel.
func NewStatistics() Statistics {
	return Statistics{Min: math.MaxUint64}
}

// Update folds one sample into the accumulator.
func (s *Statistics) Update(value uint64) {
	if value < s.Min {
		s.Min = value
	}
	if value > s.Max {
		s.Max = value
	}
	s.Sum += value
	s.Count++
}

// Add merges other into s.
func (s *Statistics) Add(other Statistics) {
	if other.Min < s.Min {
		s.Min = other.Min
	}
	if other.Max > s.Max {
		s.Max = other.Max
	}
	s.Sum += other.Sum
	s.Count += other.Count
}

// Merge returns the merge of a and b without modifying either.
func Merge(a, b Statistics) Statistics {
	a.Add(b)
	return a
}

// Values returns (min, max, mean). An empty accumulator reports zeros.
func (s Statistics) Values() (minimum, maximum, mean uint64) {
	if s.Count == 0 {
		return 0, 0, 0
	}
	return s.Min, s.Max, s.Sum / s.Count
}
