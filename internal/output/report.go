package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/mrzor/cycletrace/internal/event"
	"github.com/mrzor/cycletrace/internal/metricspec"
	"github.com/mrzor/cycletrace/internal/registry"
)

// ReportOption configures WriteReport.
type ReportOption func(*reportOptions)

type reportOptions struct {
	runID string
	extra []string
}

// WithRunID prints the run identifier in the report header.
func WithRunID(id string) ReportOption {
	return func(o *reportOptions) { o.runID = id }
}

// WithHeaderLine adds a free-form "# ..." line to the report header.
func WithHeaderLine(format string, args ...any) ReportOption {
	return func(o *reportOptions) { o.extra = append(o.extra, fmt.Sprintf(format, args...)) }
}

// errWriter keeps the first write error so rendering code stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// WriteReport writes snap to w.
func WriteReport(w io.Writer, snap registry.Snapshot, opts ...ReportOption) error {
	var o reportOptions
	for _, opt := range opts {
		opt(&o)
	}

	ew := &errWriter{w: w}
	if o.runID != "" {
		ew.printf("# run: %s mode: %s samples: %d\n", o.runID, snap.Mode, snap.Samples)
	}
	for _, line := range o.extra {
		ew.printf("# %s\n", line)
	}

	writeLegend(ew, snap)
	if snap.Mode == metricspec.Timeslot {
		writeTimeslots(ew, snap)
	}
	writeStatistics(ew, snap)
	if snap.Histogram != nil {
		writeHistograms(ew, snap)
	}
	return ew.err
}

// label is "L" for latency metrics and "E" for event counts.
func label(mode metricspec.Mode, i int) string {
	if mode == metricspec.Latency {
		return fmt.Sprintf("L%02d", i)
	}
	return fmt.Sprintf("E%02d", i)
}

func unit(mode metricspec.Mode) string {
	if mode == metricspec.Latency {
		return "ns"
	}
	return "count"
}

func writeLegend(ew *errWriter, snap registry.Snapshot) {
	ew.printf("# === Legend ===\n")
	for i, m := range snap.Metrics {
		ew.printf("# %s: %s\n", label(snap.Mode, i), m)
	}
}

// writeTimeslots prints one row per slot, offset from the first slot, with
// per-source columns of per-event counts.
func writeTimeslots(ew *errWriter, snap registry.Snapshot) {
	ew.printf("# === Timeslots (slot duration: %dns) ===\n", snap.SlotWidth)

	n := len(snap.Metrics)
	labels := make([]string, n)
	for i := range labels {
		labels[i] = label(snap.Mode, i)
	}

	cols := make([]string, len(snap.Sources))
	for j, s := range snap.Sources {
		cols[j] = center(sourceLabel(s.Source), n*4-1)
	}
	ew.printf("#  cpus   : %s\n", strings.Join(cols, " | "))

	for j := range snap.Sources {
		cols[j] = strings.Join(labels, " ")
	}
	ew.printf("# ns\\evts : %s\n", strings.Join(cols, " | "))

	indexes := snap.SlotIndexes()
	counts := make([]string, n)
	for _, idx := range indexes {
		for j, s := range snap.Sources {
			slot := s.Slots[idx]
			for i := range counts {
				var c uint64
				if slot != nil {
					c = slot[i]
				}
				counts[i] = fmt.Sprintf("%03d", c)
			}
			cols[j] = strings.Join(counts, " ")
		}
		ew.printf("%010d: %s\n", (idx-indexes[0])*snap.SlotWidth, strings.Join(cols, " | "))
	}
}

func writeStatistics(ew *errWriter, snap registry.Snapshot) {
	ew.printf("# === Statistics: min avg max (%s) ===\n", unit(snap.Mode))

	cols := make([]string, len(snap.Sources))
	for i, s := range snap.Sources {
		cols[i] = center(sourceLabel(s.Source), 23)
	}
	ew.printf("# cpus: %s\n", strings.Join(cols, " | "))

	for i := range snap.Metrics {
		for j, s := range snap.Sources {
			minimum, maximum, mean := s.Statistics[i].Values()
			cols[j] = fmt.Sprintf("%07d %07d %07d", minimum, mean, maximum)
		}
		ew.printf("%s: %s\n", center(label(snap.Mode, i), 6), strings.Join(cols, " | "))
	}
}

func writeHistograms(ew *errWriter, snap registry.Snapshot) {
	width := snap.Histogram.BucketWidth
	if snap.Mode == metricspec.Latency {
		ew.printf("# === Histograms: bucket:%dns ===\n", width)
	} else {
		ew.printf("# === Histograms: bucket:%d ===\n", width)
	}

	cols := make([]string, len(snap.Sources))
	for i := range snap.Metrics {
		for j, s := range snap.Sources {
			cols[j] = center(sourceLabel(s.Source), 4)
		}
		ew.printf(" %s \\ cpus: %s\n", label(snap.Mode, i), strings.Join(cols, " | "))

		for b := 0; b < snap.Histogram.BucketCount; b++ {
			for j, s := range snap.Sources {
				cols[j] = fmt.Sprintf("%04d", s.Histograms[i].Buckets[b])
			}
			ew.printf("%011d: %s\n", uint64(b)*width, strings.Join(cols, " | "))
		}

		for j, s := range snap.Sources {
			cols[j] = fmt.Sprintf("%04d", s.Histograms[i].Overflow)
		}
		ew.printf(" overflows : %s\n", strings.Join(cols, " | "))

		for j, s := range snap.Sources {
			cols[j] = fmt.Sprintf("%04d", s.Histograms[i].Total)
		}
		ew.printf("  totals   : %s\n", strings.Join(cols, " | "))
	}
}

func sourceLabel(s event.Source) string { return s.String() }

// center pads s with spaces to width, extra space going to the right.
func center(s string, width int) string {
	pad := width - len(s)
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}
