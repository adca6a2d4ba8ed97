package timesync

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Clock names the time base of trace timestamps.
type Clock string

const (
	// Monotonic timestamps count nanoseconds since boot (perf, BPF).
	Monotonic Clock = "monotonic"
	// Realtime timestamps are nanoseconds since the Unix epoch.
	Realtime Clock = "realtime"
)

// ParseClock parses a clock name.
func ParseClock(s string) (Clock, error) {
	switch c := Clock(strings.ToLower(strings.TrimSpace(s))); c {
	case Monotonic, Realtime:
		return c, nil
	case "":
		return Monotonic, nil
	}
	return "", fmt.Errorf("unknown clock %q (want monotonic or realtime)", s)
}

// Converter maps trace timestamps to wall-clock time.
type Converter struct {
	clock    Clock
	bootTime time.Time
}

// NewConverter creates a converter for clock. Monotonic conversion reads the
// boot time from /proc/stat and falls back to an estimate of one hour ago.
func NewConverter(clock Clock) (*Converter, error) {
	if clock == Realtime {
		return &Converter{clock: Realtime, bootTime: time.Unix(0, 0)}, nil
	}
	if clock != Monotonic {
		return nil, fmt.Errorf("unknown clock %q", clock)
	}

	bootTime, err := systemBootTime()
	if err != nil {
		bootTime = time.Now().Add(-time.Hour)
	}
	return &Converter{clock: Monotonic, bootTime: bootTime}, nil
}

// NewConverterAt creates a monotonic converter with a known boot time.
func NewConverterAt(bootTime time.Time) *Converter {
	return &Converter{clock: Monotonic, bootTime: bootTime}
}

// Clock returns the converter's time base.
func (c *Converter) Clock() Clock { return c.clock }

// WallClock converts a trace timestamp in nanoseconds to wall-clock time.
func (c *Converter) WallClock(nanos uint64) time.Time {
	//nolint:gosec // trace timestamps fit in int64
	return c.bootTime.Add(time.Duration(nanos))
}

// BootTime returns the epoch used for conversions.
func (c *Converter) BootTime() time.Time {
	return c.bootTime
}

func systemBootTime() (time.Time, error) {
	file, err := os.Open("/proc/stat")
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to open /proc/stat: %w", err)
	}
	defer func() {
		_ = file.Close() //nolint:errcheck // read-only
	}()
	return parseBootTime(file)
}

// parseBootTime extracts the "btime" line from /proc/stat content.
func parseBootTime(r io.Reader) (time.Time, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "btime" {
			sec, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				return time.Time{}, fmt.Errorf("failed to parse btime: %w", err)
			}
			return time.Unix(sec, 0), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return time.Time{}, fmt.Errorf("error reading /proc/stat: %w", err)
	}
	return time.Time{}, fmt.Errorf("btime not found in /proc/stat")
}
