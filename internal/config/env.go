package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvConfig holds tuning read from CYCLETRACE_* environment variables.
type EnvConfig struct {
	HighWater     int    `env:"CYCLETRACE_HIGH_WATER" envDefault:"1024"`
	LowWater      int    `env:"CYCLETRACE_LOW_WATER" envDefault:"128"`
	DisableWindow bool   `env:"CYCLETRACE_WINDOW_DISABLED" envDefault:"false"`
	LogLevel      string `env:"CYCLETRACE_LOG_LEVEL" envDefault:"info"`
	// Clock is the time base of input timestamps: monotonic or realtime.
	Clock string `env:"CYCLETRACE_CLOCK" envDefault:"monotonic"`
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding the real environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ParseEnv parses EnvConfig from the environment.
func ParseEnv() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.HighWater < 0 || cfg.LowWater < 0 {
		return nil, fmt.Errorf("window watermarks must not be negative (high=%d, low=%d)", cfg.HighWater, cfg.LowWater)
	}
	return &cfg, nil
}
