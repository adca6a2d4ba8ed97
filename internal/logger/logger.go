// Package logger builds the structured ECS-formatted zap logger used across
// cycletrace.
package logger

import (
	"fmt"
	"strings"

	"go.elastic.co/ecszap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option customises the zap configuration before the logger is built.
type Option func(*zap.Config)

// WithLevel sets the minimum enabled level.
func WithLevel(level zapcore.Level) Option {
	return func(c *zap.Config) {
		c.Level = zap.NewAtomicLevelAt(level)
	}
}

// WithOutputPaths sets where log lines are written ("stderr", file paths).
func WithOutputPaths(paths ...string) Option {
	return func(c *zap.Config) {
		c.OutputPaths = paths
	}
}

// WithEncoderConfig replaces the encoder configuration.
func WithEncoderConfig(enc zapcore.EncoderConfig) Option {
	return func(c *zap.Config) {
		c.EncoderConfig = enc
	}
}

// New returns a logger. Reports go to stdout, so logs default to stderr.
func New(opts ...Option) (*zap.SugaredLogger, error) {
	conf := zap.NewProductionConfig()
	conf.OutputPaths = []string{"stderr"}
	conf.Sampling = nil

	for _, opt := range opts {
		opt(&conf)
	}

	l, err := conf.Build(ecszap.WrapCoreOption(), zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	return l.Sugar(), nil
}

// ParseLogLevel parses a level name. "off" disables logging entirely.
func ParseLogLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "critical":
		return zapcore.FatalLevel, nil
	case "off":
		return zapcore.FatalLevel + 1, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", s)
}
