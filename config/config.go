// Package config reads service configuration from the environment. An
// optional .env file in the working directory is loaded first; variables
// already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string        `env:"LORE_ADDR"         envDefault:":8080"`
	DBPath      string        `env:"LORE_DB_PATH"`
	RedisAddr   string        `env:"LORE_REDIS_ADDR"`
	CampaignDir string        `env:"LORE_CAMPAIGN_DIR"`
	LogLevel    string        `env:"LORE_LOG_LEVEL"    envDefault:"info"`
	PresenceTTL time.Duration `env:"LORE_PRESENCE_TTL" envDefault:"30s"`
	// RNGSeed of 0 seeds the roller from crypto/rand.
	RNGSeed    int64 `env:"LORE_RNG_SEED"`
	LogRetries uint  `env:"LORE_LOG_RETRIES" envDefault:"3"`
}

// Load reads .env files (if present) and then the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PresenceTTL <= 0 {
		return Config{}, fmt.Errorf("LORE_PRESENCE_TTL must be positive, got %s", cfg.PresenceTTL)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// Level is ParseLevel for an already validated config.
func (c Config) Level() slog.Level {
	l, _ := ParseLevel(c.LogLevel)
	return l
}
