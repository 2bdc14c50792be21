// Package config loads server configuration from the environment.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/evcraddock/checklist-casa/internal/auth"
	"github.com/evcraddock/checklist-casa/internal/email"
)

// Prefix is prepended to every environment variable name.
const Prefix = "CASA_"

// Config holds all server configuration.
type Config struct {
	Port           int           `env:"PORT" envDefault:"8080"`
	DBPath         string        `env:"DB_PATH"`
	MediaDir       string        `env:"MEDIA_DIR" envDefault:"media"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"5242880"`
	DraftSecret    string        `env:"DRAFT_SECRET"`
	DraftTTL       time.Duration `env:"DRAFT_TTL" envDefault:"2h"`
	MetricsEnabled bool          `env:"METRICS_ENABLED" envDefault:"true"`

	Auth auth.Config
	SMTP email.Config
}

// Load reads an optional .env file from the working directory, then parses
// CASA_* environment variables. Variables already set in the environment win
// over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	if cfg.DraftSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return Config{}, fmt.Errorf("generating draft secret: %w", err)
		}
		cfg.DraftSecret = secret
		slog.Warn("CASA_DRAFT_SECRET not set; visit drafts will not survive a restart")
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}
	if c.DraftTTL <= 0 {
		return fmt.Errorf("draft ttl must be positive")
	}
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
