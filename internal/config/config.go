// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads Gatehouse configuration from defaults, an optional
// YAML file, environment variables, and command-line flags, in that order of
// precedence (later sources win).
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/gatehouse/gatehouse/internal/xdg"
)

// Environment variable overrides. The signing secret and database URL carry
// credentials and are conventionally injected through the environment.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvSecret      = "GATEHOUSE_SECRET"
)

// Config is the root configuration, assembled once at startup and passed into
// constructors explicitly. Nothing reads it as ambient global state.
type Config struct {
	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	DatabaseURL string `koanf:"database_url"`
	LogFormat   string `koanf:"log_format"`

	Auth AuthConfig `koanf:"auth"`
}

// AuthConfig configures the credential codec and cookie behavior.
type AuthConfig struct {
	// Secret signs every credential. Required for serve; has no default.
	Secret string `koanf:"secret"`

	Issuer     string        `koanf:"issuer"`
	AccessTTL  time.Duration `koanf:"access_ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl"`

	// CookieSecure marks issued cookies Secure. Disable only for local
	// development over plain HTTP.
	CookieSecure bool `koanf:"cookie_secure"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:  ":8080",
		MetricsAddr: "127.0.0.1:9100",
		LogFormat:   "json",
		Auth: AuthConfig{
			Issuer:       "gatehouse",
			AccessTTL:    15 * time.Minute,
			RefreshTTL:   7 * 24 * time.Hour,
			CookieSecure: true,
		},
	}
}

// Load assembles the configuration. An empty path falls back to the XDG
// config file if one exists; flags may be nil (no flag overrides).
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path == "" {
		if candidate := xdg.ConfigFile(); fileExists(candidate) {
			path = candidate
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}

	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv(EnvSecret); v != "" {
		cfg.Auth.Secret = v
	}

	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Validate checks the fields the serve command requires.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("database URL is required (set database_url or %s)", EnvDatabaseURL)
	}
	if c.Auth.Secret == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("signing secret is required (set auth.secret or %s)", EnvSecret)
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("credential TTLs must be positive")
	}
	if c.Auth.AccessTTL >= c.Auth.RefreshTTL {
		return oops.Code("CONFIG_INVALID").
			With("access_ttl", c.Auth.AccessTTL).
			With("refresh_ttl", c.Auth.RefreshTTL).
			Errorf("access TTL must be shorter than refresh TTL")
	}
	return nil
}
