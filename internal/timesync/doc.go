// Package timesync converts trace timestamps to wall-clock time.
//
// perf and BPF producers stamp events with CLOCK_MONOTONIC (nanoseconds
// since boot). The converter reads the boot time from /proc/stat and adds
// the offset. Traces already in Unix nanoseconds use the Realtime clock.
package timesync
