package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables read by Load itself.
const (
	EnvPrefix     = "RUNTEST_"
	EnvConfigFile = "RUNTEST_CONFIG"
	EnvDotEnvFile = "RUNTEST_ENV_FILE"
	EnvAPIKey     = "API_KEY"

	defaultDotEnvFile = ".env"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. .env file (RUNTEST_ENV_FILE, default .env) exported into the environment;
//     variables already set win over the file
//  3. file (YAML) if RUNTEST_CONFIG is set
//  4. API_KEY
//  5. env (prefix RUNTEST_)
func Load(_ context.Context) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Bare API_KEY is what existing clients and .env files use.
	apiKeyProvider := env.Provider(EnvAPIKey, ".", func(s string) string {
		if s == EnvAPIKey {
			return "api_key"
		}
		return ""
	})
	if err := k.Load(apiKeyProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Map env keys like RUNTEST_QUEUE_SIZE -> queue_size (flat keys).
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// loadDotEnv exports the .env file into the process environment.
// A missing file is not an error.
func loadDotEnv() error {
	path := os.Getenv(EnvDotEnvFile)
	if path == "" {
		path = defaultDotEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: env file %s: %w", ErrLoadConfig, path, err)
	}
	return nil
}
