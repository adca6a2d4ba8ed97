package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/cycletrace/internal/metricspec"
)

func TestParseArgs_Flags(t *testing.T) {
	cfg, err := ParseArgs([]string{"cycletrace",
		"-m", "count", "-e", "a,b, c", "--histo=5,7", "-l", "900", "--slot", "250",
		"-i", "trace.txt", "-f", "jsonl", "--filter", "cpu == 1", "--log-level", "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, metricspec.Count, cfg.Spec.Mode())
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Spec.Names())
	require.NotNil(t, cfg.Histogram)
	assert.Equal(t, Histogram{BucketWidth: 5, BucketCount: 7}, *cfg.Histogram)
	assert.Equal(t, uint64(900), cfg.Limit)
	assert.Equal(t, uint64(250), cfg.Slot)
	assert.Equal(t, "trace.txt", cfg.Input)
	assert.Equal(t, FormatJSONL, cfg.Format)
	assert.Equal(t, "cpu == 1", cfg.Filter)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParseArgs_Defaults(t *testing.T) {
	cfg, err := ParseArgs([]string{"cycletrace", "--events=x,y"})
	require.NoError(t, err)

	assert.Equal(t, metricspec.Latency, cfg.Spec.Mode())
	assert.Nil(t, cfg.Histogram)
	assert.Zero(t, cfg.Limit)
	assert.Zero(t, cfg.Slot)
	assert.Equal(t, "-", cfg.Input)
	assert.Equal(t, FormatPerf, cfg.Format)
}

func TestParseArgs_Legacy(t *testing.T) {
	cfg, err := ParseArgs([]string{"cycletrace", "events=sched:sched_waking,sched:sched_switch", "histo", "limit=1000000"})
	require.NoError(t, err)

	assert.Equal(t, []string{"sched:sched_waking", "sched:sched_switch"}, cfg.Spec.Names())
	require.NotNil(t, cfg.Histogram)
	assert.Equal(t, Histogram{BucketWidth: 1000, BucketCount: 100}, *cfg.Histogram)
	assert.Equal(t, uint64(1000000), cfg.Limit)
}

func TestParseArgs_HistogramDefaultsPerMode(t *testing.T) {
	tests := []struct {
		mode   string
		events string
		histo  string
		want   Histogram
	}{
		{"latency", "a,b", "--histo", Histogram{1000, 100}},
		{"count", "a,b,c", "--histo", Histogram{10, 20}},
		{"timeslot", "a", "--histo", Histogram{1, 20}},
		{"latency", "a,b", "--histo=50", Histogram{50, 100}},
		{"count", "a,b,c", "--histo=3,4", Histogram{3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.mode+tt.histo, func(t *testing.T) {
			cfg, err := ParseArgs([]string{"cycletrace", "-m", tt.mode, "-e", tt.events, tt.histo})
			require.NoError(t, err)
			require.NotNil(t, cfg.Histogram)
			assert.Equal(t, tt.want, *cfg.Histogram)
		})
	}
}

func TestParseArgs_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no events", []string{"cycletrace"}, "invalid events"},
		{"too few for count", []string{"cycletrace", "-m", "count", "-e", "a,b"}, "invalid events"},
		{"duplicate", []string{"cycletrace", "-e", "a:b,a__b"}, "invalid events"},
		{"unknown mode", []string{"cycletrace", "-m", "nope", "-e", "a,b"}, "mode"},
		{"zero limit", []string{"cycletrace", "-e", "a,b", "limit=0"}, "invalid limit"},
		{"bad limit", []string{"cycletrace", "-e", "a,b", "-l", "abc"}, "invalid limit"},
		{"zero slot", []string{"cycletrace", "-m", "timeslot", "-e", "a", "--slot", "0"}, "invalid slot"},
		{"zero bucket width", []string{"cycletrace", "-e", "a,b", "histo=0,5"}, "bucket width"},
		{"bucket count over cap", []string{"cycletrace", "-e", "a,b", "--histo=10,1048577"}, "must not exceed 1048576"},
		{"too many histo parts", []string{"cycletrace", "-e", "a,b", "--histo=1,2,3"}, "invalid histogram"},
		{"missing value", []string{"cycletrace", "-e"}, "requires a value"},
		{"unknown flag", []string{"cycletrace", "--bogus", "x"}, "unsupported option"},
		{"unknown positional", []string{"cycletrace", "foo=bar"}, "unsupported option"},
		{"bad format", []string{"cycletrace", "-e", "a,b", "-f", "xml"}, "unsupported input format"},
		{"ringbuf needs input", []string{"cycletrace", "-e", "a,b", "-f", "ringbuf"}, "pinned BPF map"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArgs(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseArgs_HelpAndVersion(t *testing.T) {
	_, err := ParseArgs([]string{"cycletrace", "--help"})
	assert.ErrorIs(t, err, ErrHelp)

	cfg, err := ParseArgs([]string{"cycletrace", "-v"})
	require.NoError(t, err)
	assert.True(t, cfg.ShowVersion)

	_, err = ParseArgs(nil)
	assert.Error(t, err)
}

func TestParseArgs_BucketCountCap(t *testing.T) {
	cfg, err := ParseArgs([]string{"cycletrace", "-e", "a,b", "--histo=10,1048576"})
	require.NoError(t, err)
	assert.Equal(t, MaxBucketCount, cfg.Histogram.BucketCount)

	path := filepath.Join(t.TempDir(), "cycletrace.yaml")
	require.NoError(t, os.WriteFile(path, []byte("events: [a, b]\nhistogram:\n  bucket_count: 2000000\n"), 0o600))
	_, err = ParseArgs([]string{"cycletrace", "--config", path})
	assert.ErrorContains(t, err, "invalid histogram bucket count 2000000")
}

func TestParseArgs_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycletrace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: count
events: [begin, mid, end]
histogram:
  bucket_width: 2
limit: 77
filter: pid > 0
`), 0o600))

	cfg, err := ParseArgs([]string{"cycletrace", "--config", path})
	require.NoError(t, err)
	assert.Equal(t, metricspec.Count, cfg.Spec.Mode())
	assert.Equal(t, []string{"begin", "mid", "end"}, cfg.Spec.Names())
	assert.Equal(t, Histogram{BucketWidth: 2, BucketCount: 20}, *cfg.Histogram)
	assert.Equal(t, uint64(77), cfg.Limit)
	assert.Equal(t, "pid > 0", cfg.Filter)

	// Flags take precedence over the file.
	cfg, err = ParseArgs([]string{"cycletrace", "-c", path, "-l", "5", "-e", "x,y,z"})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), cfg.Limit)
	assert.Equal(t, []string{"x", "y", "z"}, cfg.Spec.Names())
	assert.Equal(t, metricspec.Count, cfg.Spec.Mode())
}

func TestParseArgs_SpanOptions(t *testing.T) {
	cfg, err := ParseArgs([]string{"cycletrace", "-e", "a,b",
		"--attr", "slow=total > 1000", "--attr=cpu=source",
		"--trace-id", `env["TRACE"]`, "--parent-id", `env["SPAN"]`,
	})
	require.NoError(t, err)
	assert.Equal(t, []CustomAttribute{
		{Name: "slow", Expression: "total > 1000"},
		{Name: "cpu", Expression: "source"},
	}, cfg.CustomAttributes)
	assert.Equal(t, `env["TRACE"]`, cfg.TraceID)
	assert.Equal(t, `env["SPAN"]`, cfg.ParentID)

	_, err = ParseArgs([]string{"cycletrace", "-e", "a,b", "--attr", "noequals"})
	assert.ErrorContains(t, err, "NAME=EXPR")
}

func TestParseArgs_FileAttributesMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
events: [a, b]
trace_id: env["T"]
attributes:
  - name: from_file
    expression: comm
`), 0o600))

	cfg, err := ParseArgs([]string{"cycletrace", "-c", path, "--attr", "from_cli=pid"})
	require.NoError(t, err)
	assert.Equal(t, `env["T"]`, cfg.TraceID)
	assert.Equal(t, []CustomAttribute{
		{Name: "from_file", Expression: "comm"},
		{Name: "from_cli", Expression: "pid"},
	}, cfg.CustomAttributes)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("events: [a, b]\nattributes:\n  - name: x\n"), 0o600))
	_, err = ParseArgs([]string{"cycletrace", "-c", bad})
	assert.ErrorContains(t, err, "needs both name and expression")
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: latency\nunknown_key: 1\n"), 0o600))
	_, err = LoadFile(path)
	assert.ErrorContains(t, err, "parsing config file")

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	opts, err := LoadFile(empty)
	require.NoError(t, err)
	assert.Nil(t, opts.Mode)
}

func TestUsage(t *testing.T) {
	u := Usage("cycletrace")
	assert.Contains(t, u, "Usage: cycletrace")
	assert.Contains(t, u, "--histo")
}
