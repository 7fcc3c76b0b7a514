// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

// Package config loads authd configuration from defaults, an optional YAML
// file and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/phobos/authd/internal/auth"
	"github.com/phobos/authd/internal/logging"
	"github.com/phobos/authd/internal/xdg"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Default values.
const (
	DefaultApplication = "auth"
	DefaultVersion     = "0.1"
	DefaultHTTPAddr    = "127.0.0.1:8080"
	DefaultMetricsAddr = "127.0.0.1:9100"
	DefaultLogFormat   = "json"
)

// Config is the full authd configuration.
type Config struct {
	Application string        `koanf:"application"`
	Version     string        `koanf:"version"`
	HTTPAddr    string        `koanf:"http_addr"`
	MetricsAddr string        `koanf:"metrics_addr"`
	DatabaseURL string        `koanf:"database_url"`
	Store       string        `koanf:"store"`
	AutoMigrate bool          `koanf:"auto_migrate"`
	LogFormat   string        `koanf:"log_format"`
	LogLevel    string        `koanf:"log_level"`
	Hasher      string        `koanf:"hasher"`
	Session     SessionConfig `koanf:"session"`
	CORS        CORSConfig    `koanf:"cors"`
}

// SessionConfig controls session lifetime.
type SessionConfig struct {
	ExpiresIn     time.Duration `koanf:"expires_in"`
	EnforceExpiry bool          `koanf:"enforce_expiry"`
}

// CORSConfig lists allowed browser origins. Entries are glob patterns such
// as "https://*.example.com".
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Application: DefaultApplication,
		Version:     DefaultVersion,
		HTTPAddr:    DefaultHTTPAddr,
		MetricsAddr: DefaultMetricsAddr,
		Store:       StorePostgres,
		LogFormat:   DefaultLogFormat,
		LogLevel:    "info",
		Hasher:      auth.AlgorithmHMACSHA512,
		Session: SessionConfig{
			ExpiresIn: auth.DefaultSessionTTL,
		},
	}
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"application":            "application",
	"api-version":            "version",
	"http-addr":              "http_addr",
	"metrics-addr":           "metrics_addr",
	"database-url":           "database_url",
	"store":                  "store",
	"auto-migrate":           "auto_migrate",
	"log-format":             "log_format",
	"log-level":              "log_level",
	"hasher":                 "hasher",
	"session-expires-in":     "session.expires_in",
	"session-enforce-expiry": "session.enforce_expiry",
	"cors-allowed-origins":   "cors.allowed_origins",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("application", d.Application, "application name used in the API path")
	fs.String("api-version", d.Version, "API version used in the API path (semantic version)")
	fs.String("http-addr", d.HTTPAddr, "HTTP API listen address")
	fs.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	fs.String("store", d.Store, "user store backend (postgres or memory)")
	fs.Bool("auto-migrate", d.AutoMigrate, "apply pending migrations on startup")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("hasher", d.Hasher, "password hash format for new hashes (hmac-sha512 or argon2id)")
	fs.Duration("session-expires-in", d.Session.ExpiresIn, "session lifetime reported to clients")
	fs.Bool("session-enforce-expiry", d.Session.EnforceExpiry, "reject sessions older than session-expires-in")
	fs.StringSlice("cors-allowed-origins", nil, "allowed CORS origins (glob patterns)")
}

// Load builds a Config. path names a YAML file; when empty the XDG config
// file is read if it exists. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := loadFile(k, path); err != nil {
		return nil, err
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "unmarshal").Wrap(err)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	explicit := path != ""
	if !explicit {
		def, err := xdg.ConfigFile()
		if err != nil {
			return nil //nolint:nilerr // no home directory means no default file
		}
		path = def
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Application == "" || strings.ContainsAny(c.Application, "/ ") {
		return invalid("application", "must be a non-empty path segment, got %q", c.Application)
	}
	if _, err := semver.NewVersion(c.Version); err != nil {
		return invalid("version", "must be a semantic version, got %q", c.Version)
	}
	if c.HTTPAddr == "" {
		return invalid("http_addr", "is required")
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return invalid("database_url", "is required for the postgres store (set DATABASE_URL)")
		}
	case StoreMemory:
	default:
		return invalid("store", "must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if !logging.ValidFormat(c.LogFormat) {
		return invalid("log_format", "must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", "unknown level %q", c.LogLevel)
	}
	if _, err := auth.NewPasswordHasher(c.Hasher); err != nil {
		return invalid("hasher", "unknown hasher %q", c.Hasher)
	}
	if c.Session.ExpiresIn < time.Second {
		return invalid("session.expires_in", "must be at least 1s, got %s", c.Session.ExpiresIn)
	}
	for _, origin := range c.CORS.AllowedOrigins {
		if _, err := glob.Compile(origin); err != nil {
			return invalid("cors.allowed_origins", "bad pattern %q: %v", origin, err)
		}
	}
	return nil
}

// APIPrefix returns the route prefix /{application}/api/{version}.
func (c *Config) APIPrefix() string {
	return "/" + c.Application + "/api/" + c.Version
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(key+" "+format, args...)
}
