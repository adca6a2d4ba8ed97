// Package config resolves cycletrace's run configuration from the command
// line, an optional YAML file and the environment.
//
// Precedence, lowest first: built-in defaults, the --config file, flags.
// Window tuning and logging come from CYCLETRACE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/mrzor/cycletrace/internal/metricspec"
)

// ErrHelp is returned by ParseArgs when -h/--help was given.
var ErrHelp = errors.New("help requested")

// Input formats.
const (
	FormatPerf    = "perf"
	FormatJSONL   = "jsonl"
	FormatRingbuf = "ringbuf"
)

// MaxBucketCount is the largest accepted histogram bucket count.
const MaxBucketCount = 1 << 20

// Histogram is the bucket layout requested for histograms.
type Histogram struct {
	BucketWidth uint64 `yaml:"bucket_width"`
	BucketCount int    `yaml:"bucket_count"`
}

// CustomAttribute is an expression-derived attribute added to every
// exported cycle span.
type CustomAttribute struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
}

// Config is the fully resolved run configuration.
type Config struct {
	Spec *metricspec.Spec
	// Histogram is nil when histograms are disabled.
	Histogram *Histogram
	// Limit is the latency ceiling; zero means unbounded.
	Limit uint64
	// Slot is the timeslot width in nanoseconds.
	Slot   uint64
	Filter string
	Input  string
	Format string
	// Span export settings; see package attributes.
	TraceID          string
	ParentID         string
	CustomAttributes []CustomAttribute
	// LogLevel overrides CYCLETRACE_LOG_LEVEL when set.
	LogLevel    string
	ShowVersion bool
}

// Options holds settings that may come from either a file or flags. Nil
// fields were not given.
type Options struct {
	Mode      *string    `yaml:"mode"`
	Events    []string   `yaml:"events"`
	Histogram *Histogram `yaml:"histogram"`
	Limit     *uint64    `yaml:"limit"`
	Slot      *uint64    `yaml:"slot"`
	Filter    *string    `yaml:"filter"`
	Input     *string    `yaml:"input"`
	Format    *string    `yaml:"format"`

	TraceID    *string           `yaml:"trace_id"`
	ParentID   *string           `yaml:"parent_id"`
	Attributes []CustomAttribute `yaml:"attributes"`
}

// merge overlays the fields set in o onto base.
func (base Options) merge(o Options) Options {
	if o.Mode != nil {
		base.Mode = o.Mode
	}
	if o.Events != nil {
		base.Events = o.Events
	}
	if o.Histogram != nil {
		base.Histogram = o.Histogram
	}
	if o.Limit != nil {
		base.Limit = o.Limit
	}
	if o.Slot != nil {
		base.Slot = o.Slot
	}
	if o.Filter != nil {
		base.Filter = o.Filter
	}
	if o.Input != nil {
		base.Input = o.Input
	}
	if o.Format != nil {
		base.Format = o.Format
	}
	if o.TraceID != nil {
		base.TraceID = o.TraceID
	}
	if o.ParentID != nil {
		base.ParentID = o.ParentID
	}
	base.Attributes = append(slices.Clone(base.Attributes), o.Attributes...)
	return base
}

// Usage returns the command-line help text.
func Usage(programName string) string {
	return fmt.Sprintf(`Usage: %[1]s [options] [events=A,B,... histo[=W[,N]] limit=N slot=N]

Reconstructs count, latency or timeslot cycles from a trace and prints
per-source and merged statistics.

Options:
  -m, --mode MODE        count | latency | timeslot (default latency)
  -e, --events A,B,...   ordered marker event names
      --histo[=W[,N]]    enable histograms (bucket width W, N buckets)
  -l, --limit N          discard latencies >= N nanoseconds
      --slot N           timeslot width in nanoseconds (default 100000)
  -i, --input PATH       trace input, "-" for stdin (default -)
  -f, --format FORMAT    perf | jsonl | ringbuf (default perf)
      --filter EXPR      only ingest events matching the expression
      --attr NAME=EXPR   add an expression attribute to cycle spans (repeatable)
      --trace-id EXPR    trace ID for cycle spans, evaluated over env
      --parent-id EXPR   parent span ID for cycle spans, evaluated over env
  -c, --config FILE      YAML configuration file
      --log-level LEVEL  trace|debug|info|warn|error|critical|off
  -v, --version          print version and exit
  -h, --help             print this help

Example: perf script -s - | %[1]s -m latency -e irq:irq_handler_entry,irq:irq_handler_exit --histo=1000,100
`, programName)
}

// ParseArgs parses command-line arguments (args[0] is the program name),
// loads --config if given, and validates the result.
func ParseArgs(args []string) (*Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no arguments provided")
	}

	cli, meta, err := parseFlags(args[1:])
	if err != nil {
		return nil, err
	}
	if meta.help {
		return nil, ErrHelp
	}
	if meta.version {
		return &Config{ShowVersion: true}, nil
	}

	opts := cli
	if meta.configFile != "" {
		file, err := LoadFile(meta.configFile)
		if err != nil {
			return nil, err
		}
		opts = file.merge(cli)
	}

	cfg, err := Resolve(opts)
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = meta.logLevel
	return cfg, nil
}

// valueFlags lists the flags that take an argument.
var valueFlags = map[string]bool{
	"-m": true, "--mode": true,
	"-e": true, "--events": true,
	"-l": true, "--limit": true,
	"-i": true, "--input": true,
	"-f": true, "--format": true,
	"-c": true, "--config": true,
	"--slot": true, "--filter": true,
	"--attr": true, "--trace-id": true, "--parent-id": true,
	"--log-level": true,
}

type flagMeta struct {
	configFile string
	logLevel   string
	help       bool
	version    bool
}

func parseFlags(args []string) (Options, flagMeta, error) {
	var opts Options
	var meta flagMeta

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// Positional key=value options as accepted by the perf scripts.
		if !strings.HasPrefix(arg, "-") {
			if err := parseLegacy(arg, &opts); err != nil {
				return opts, meta, err
			}
			continue
		}

		name, inline, hasInline := strings.Cut(arg, "=")
		value := func() (string, error) {
			if hasInline {
				return inline, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", name)
			}
			i++
			return args[i], nil
		}

		var v string
		var err error
		switch name {
		case "-h", "--help":
			meta.help = true
			continue
		case "-v", "--version":
			meta.version = true
			continue
		case "--histo":
			h, err := parseHistogram(inline)
			if err != nil {
				return opts, meta, err
			}
			opts.Histogram = h
			continue
		}

		if !valueFlags[name] {
			return opts, meta, fmt.Errorf("unsupported option: %s", name)
		}
		if v, err = value(); err != nil {
			return opts, meta, err
		}

		switch name {
		case "-m", "--mode":
			opts.Mode = &v
		case "-e", "--events":
			opts.Events = splitList(v)
		case "-l", "--limit":
			n, err := parsePositive("limit", v)
			if err != nil {
				return opts, meta, err
			}
			opts.Limit = &n
		case "--slot":
			n, err := parsePositive("slot", v)
			if err != nil {
				return opts, meta, err
			}
			opts.Slot = &n
		case "-i", "--input":
			opts.Input = &v
		case "-f", "--format":
			opts.Format = &v
		case "--filter":
			opts.Filter = &v
		case "--attr":
			name, expression, ok := strings.Cut(v, "=")
			if !ok || strings.TrimSpace(name) == "" {
				return opts, meta, fmt.Errorf("invalid --attr %q: expected NAME=EXPR", v)
			}
			opts.Attributes = append(opts.Attributes, CustomAttribute{Name: strings.TrimSpace(name), Expression: expression})
		case "--trace-id":
			opts.TraceID = &v
		case "--parent-id":
			opts.ParentID = &v
		case "-c", "--config":
			meta.configFile = v
		case "--log-level":
			meta.logLevel = v
		}
	}

	return opts, meta, nil
}

func parseLegacy(arg string, opts *Options) error {
	key, value, _ := strings.Cut(arg, "=")
	switch key {
	case "events":
		opts.Events = splitList(value)
	case "mode":
		opts.Mode = &value
	case "histo":
		h, err := parseHistogram(value)
		if err != nil {
			return err
		}
		opts.Histogram = h
	case "limit":
		n, err := parsePositive("limit", value)
		if err != nil {
			return err
		}
		opts.Limit = &n
	case "slot":
		n, err := parsePositive("slot", value)
		if err != nil {
			return err
		}
		opts.Slot = &n
	default:
		return fmt.Errorf("unsupported option: %s", arg)
	}
	return nil
}

// parseHistogram parses "", "W" or "W,N". Omitted parts take mode defaults.
func parseHistogram(s string) (*Histogram, error) {
	h := &Histogram{}
	if s == "" {
		return h, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid histogram %q: expected WIDTH[,COUNT]", s)
	}
	width, err := parsePositive("histogram bucket width", parts[0])
	if err != nil {
		return nil, err
	}
	h.BucketWidth = width
	if len(parts) == 2 {
		count, err := parsePositive("histogram bucket count", parts[1])
		if err != nil {
			return nil, err
		}
		if count > MaxBucketCount {
			return nil, fmt.Errorf("invalid histogram bucket count %d: must not exceed %d", count, MaxBucketCount)
		}
		h.BucketCount = int(count)
	}
	return h, nil
}

func parsePositive(what, s string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", what, s)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// defaultHistogram is the per-mode layout used for omitted dimensions.
func defaultHistogram(mode metricspec.Mode) Histogram {
	switch mode {
	case metricspec.Latency:
		return Histogram{BucketWidth: 1000, BucketCount: 100}
	case metricspec.Timeslot:
		return Histogram{BucketWidth: 1, BucketCount: 20}
	default:
		return Histogram{BucketWidth: 10, BucketCount: 20}
	}
}

// Resolve applies defaults to opts and validates them.
func Resolve(opts Options) (*Config, error) {
	mode := metricspec.Latency
	if opts.Mode != nil {
		m, err := metricspec.ParseMode(*opts.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}

	spec, err := metricspec.New(mode, opts.Events)
	if err != nil {
		return nil, fmt.Errorf("invalid events: %w", err)
	}

	cfg := &Config{
		Spec:   spec,
		Input:  "-",
		Format: FormatPerf,
	}

	if opts.Histogram != nil {
		h := *opts.Histogram
		def := defaultHistogram(mode)
		if h.BucketWidth == 0 {
			h.BucketWidth = def.BucketWidth
		}
		if h.BucketCount == 0 {
			h.BucketCount = def.BucketCount
		}
		if h.BucketCount < 0 || h.BucketCount > MaxBucketCount {
			return nil, fmt.Errorf("invalid histogram bucket count %d: must be in 1..%d", h.BucketCount, MaxBucketCount)
		}
		cfg.Histogram = &h
	}

	if opts.Limit != nil {
		if *opts.Limit == 0 {
			return nil, fmt.Errorf("invalid limit 0: must be positive")
		}
		cfg.Limit = *opts.Limit
	}
	if opts.Slot != nil {
		if *opts.Slot == 0 {
			return nil, fmt.Errorf("invalid slot 0: must be positive")
		}
		cfg.Slot = *opts.Slot
	}
	if opts.Filter != nil {
		cfg.Filter = *opts.Filter
	}
	if opts.TraceID != nil {
		cfg.TraceID = *opts.TraceID
	}
	if opts.ParentID != nil {
		cfg.ParentID = *opts.ParentID
	}
	for _, a := range opts.Attributes {
		if a.Name == "" || a.Expression == "" {
			return nil, fmt.Errorf("custom attribute needs both name and expression (got %q=%q)", a.Name, a.Expression)
		}
	}
	cfg.CustomAttributes = opts.Attributes
	if opts.Input != nil && *opts.Input != "" {
		cfg.Input = *opts.Input
	}
	if opts.Format != nil {
		switch f := strings.ToLower(*opts.Format); f {
		case FormatPerf, FormatJSONL, FormatRingbuf:
			cfg.Format = f
		default:
			return nil, fmt.Errorf("unsupported input format %q", *opts.Format)
		}
	}
	if cfg.Format == FormatRingbuf && cfg.Input == "-" {
		return nil, fmt.Errorf("ringbuf format needs --input pointing at a pinned BPF map")
	}

	return cfg, nil
}
