// cycletrace reconstructs event cycles from kernel traces and reports
// per-CPU latency, count and timeslot statistics.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mrzor/cycletrace/internal/attributes"
	"github.com/mrzor/cycletrace/internal/config"
	"github.com/mrzor/cycletrace/internal/cycle"
	"github.com/mrzor/cycletrace/internal/engine"
	"github.com/mrzor/cycletrace/internal/eventstream"
	"github.com/mrzor/cycletrace/internal/filter"
	"github.com/mrzor/cycletrace/internal/logger"
	"github.com/mrzor/cycletrace/internal/metricspec"
	"github.com/mrzor/cycletrace/internal/otel"
	"github.com/mrzor/cycletrace/internal/output"
	"github.com/mrzor/cycletrace/internal/registry"
	"github.com/mrzor/cycletrace/internal/source"
	"github.com/mrzor/cycletrace/internal/timesync"
)

// Version information injected by GoReleaser at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// spanOptions compiles the span enrichment expressions and resolves the
// trace parent from the process environment.
func spanOptions(cfg *config.Config, lg *zap.SugaredLogger) ([]output.ExporterOption, error) {
	evaluator, err := attributes.NewEvaluator(cfg.CustomAttributes)
	if err != nil {
		return nil, err
	}
	traceEval, err := attributes.NewTraceIDEvaluator(cfg.TraceID)
	if err != nil {
		return nil, err
	}
	parentEval, err := attributes.NewParentIDEvaluator(cfg.ParentID)
	if err != nil {
		return nil, err
	}

	environ := attributes.Environ(os.Environ())
	traceID, traceWarnings, err := traceEval.EvaluateAndValidate(environ)
	if err != nil {
		return nil, err
	}
	parentID, parentWarnings, err := parentEval.EvaluateAndValidate(environ)
	if err != nil {
		return nil, err
	}
	warnings := append(traceWarnings, parentWarnings...)
	if len(warnings) > 0 {
		lg.Warnw("trace parent expressions produced invalid IDs", "warnings", warnings)
	}

	return []output.ExporterOption{
		output.WithTraceParent(traceID, parentID),
		output.WithAttributeEvaluator(evaluator),
		output.WithSpanWarnings(warnings...),
		output.WithExporterLogger(lg),
	}, nil
}

// setupOTEL returns a cycle observer exporting spans, or nil when no
// collector is configured.
func setupOTEL(cfg *config.Config, runID uuid.UUID, env *config.EnvConfig, lg *zap.SugaredLogger) (cycle.Observer, func(), error) {
	opts, err := spanOptions(cfg, lg)
	if err != nil {
		return nil, nil, err
	}

	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, err
	}
	if !otelCfg.Enabled() {
		return nil, func() {}, nil
	}

	clock, err := timesync.ParseClock(env.Clock)
	if err != nil {
		return nil, nil, err
	}
	converter, err := timesync.NewConverter(clock)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create time converter: %w", err)
	}

	tp, err := otel.InitProvider(otelCfg, runID, lg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OTEL provider: %w", err)
	}

	exporter, err := output.NewCycleExporter(tp.Tracer("cycletrace"), runID, converter, opts...)
	if err != nil {
		_ = otel.ShutdownProvider(context.Background(), tp)
		return nil, nil, err
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			lg.Errorw("shutting down OTEL provider", "error", err)
		}
		lg.Infow("exported cycle spans",
			"spans", exporter.Exported(),
			"attribute_failures", exporter.AttributeFailures(),
		)
	}
	return exporter, cleanup, nil
}

// lineCounter is implemented by text sources.
type lineCounter interface {
	Lines() uint64
	Skipped() uint64
}

// openSource opens the configured trace input.
func openSource(cfg *config.Config, lg *zap.SugaredLogger) (engine.Source, func(), error) {
	if cfg.Format == config.FormatRingbuf {
		stream, err := eventstream.Open(cfg.Input, lg)
		if err != nil {
			return nil, nil, err
		}
		return stream, func() { _ = stream.Stop() }, nil
	}

	var r io.Reader = os.Stdin
	cleanup := func() {}
	if cfg.Input != "-" {
		f, err := os.Open(cfg.Input)
		if err != nil {
			return nil, nil, fmt.Errorf("opening trace: %w", err)
		}
		r = f
		cleanup = func() { _ = f.Close() }
	}

	if cfg.Format == config.FormatJSONL {
		return source.NewJSONLines(r, source.WithLogger(lg)), cleanup, nil
	}
	return source.NewPerfText(r, source.WithLogger(lg)), cleanup, nil
}

func newEngine(cfg *config.Config, env *config.EnvConfig, observer cycle.Observer, lg *zap.SugaredLogger) (*engine.Engine, error) {
	flt, err := filter.Compile(cfg.Filter)
	if err != nil {
		return nil, err
	}

	var histo *registry.HistogramConfig
	if cfg.Histogram != nil {
		histo = &registry.HistogramConfig{
			BucketWidth: cfg.Histogram.BucketWidth,
			BucketCount: cfg.Histogram.BucketCount,
		}
	}

	return engine.New(engine.Config{
		Spec:          cfg.Spec,
		Histogram:     histo,
		Limit:         cfg.Limit,
		Slot:          cfg.Slot,
		HighWater:     env.HighWater,
		LowWater:      env.LowWater,
		DisableWindow: env.DisableWindow,
		Filter:        flt,
		Observer:      observer,
		Logger:        lg,
	})
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	cfg, err := config.ParseArgs(os.Args)
	if errors.Is(err, config.ErrHelp) {
		fmt.Print(config.Usage(os.Args[0]))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w\n\n%s", err, config.Usage(os.Args[0]))
	}
	if cfg.ShowVersion {
		fmt.Printf("cycletrace %s (commit: %s, built: %s)\n", version, commit, date)
		return nil
	}

	env, err := config.ParseEnv()
	if err != nil {
		return err
	}
	levelName := env.LogLevel
	if cfg.LogLevel != "" {
		levelName = cfg.LogLevel
	}
	level, err := logger.ParseLogLevel(levelName)
	if err != nil {
		return err
	}
	lg, err := logger.New(logger.WithLevel(level))
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	runID := uuid.New()
	lg = lg.With("run_id", runID.String())
	lg.Infow("starting cycletrace",
		"version", version,
		"commit", commit,
		"mode", cfg.Spec.Mode().String(),
		"events", cfg.Spec.Names(),
		"input", cfg.Input,
		"format", cfg.Format,
	)

	observer, cleanupOTEL, err := setupOTEL(cfg, runID, env, lg)
	if err != nil {
		return err
	}
	defer cleanupOTEL()
	if observer != nil && cfg.Spec.Mode() != metricspec.Latency {
		lg.Warnw("cycle spans are only emitted in latency mode", "mode", cfg.Spec.Mode().String())
	}

	eng, err := newEngine(cfg, env, observer, lg)
	if err != nil {
		return err
	}

	src, cleanupSource, err := openSource(cfg, lg)
	if err != nil {
		return err
	}
	defer cleanupSource()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Run(ctx, src); err != nil {
		return err
	}
	fields := []any{"ingested", eng.Ingested(), "filtered", eng.Dropped()}
	if lc, ok := src.(lineCounter); ok {
		fields = append(fields, "lines", lc.Lines(), "skipped", lc.Skipped())
		if lc.Skipped() > 0 {
			lg.Warnw("some input lines could not be parsed", "skipped", lc.Skipped(), "format", cfg.Format)
		}
	}
	lg.Infow("trace processed", fields...)

	return output.WriteReport(os.Stdout, eng.Snapshot(),
		output.WithRunID(runID.String()),
		output.WithHeaderLine("events: %v", cfg.Spec.Names()),
	)
}
