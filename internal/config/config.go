// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads userauth settings from defaults, a YAML file, a .env
// file, USERAUTH_* environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/userauth/internal/auth"
	"github.com/holomush/userauth/internal/logging"
	"github.com/holomush/userauth/internal/store"
	"github.com/holomush/userauth/internal/xdg"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "USERAUTH_"

// DefaultDotEnvFile is read from the working directory when present.
const DefaultDotEnvFile = ".env"

// Deployment environments.
const (
	EnvironmentLocal      = "local"
	EnvironmentStaging    = "staging"
	EnvironmentProduction = "production"
)

// Config is the effective userauth configuration.
type Config struct {
	Environment string `koanf:"environment" yaml:"environment" env:"ENVIRONMENT"`
	// Domain is the public host name advertised in the API documentation.
	Domain string `koanf:"domain" yaml:"domain" env:"DOMAIN"`

	HTTP     HTTPConfig     `koanf:"http" yaml:"http" envPrefix:"HTTP_"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics" envPrefix:"METRICS_"`
	API      APIConfig      `koanf:"api" yaml:"api" envPrefix:"API_"`
	Database DatabaseConfig `koanf:"database" yaml:"database" envPrefix:"DATABASE_"`
	Token    TokenConfig    `koanf:"token" yaml:"token" envPrefix:"TOKEN_"`
	Hashing  HashingConfig  `koanf:"hashing" yaml:"hashing" envPrefix:"HASHING_"`
	CORS     CORSConfig     `koanf:"cors" yaml:"cors" envPrefix:"CORS_"`
	Log      LogConfig      `koanf:"log" yaml:"log" envPrefix:"LOG_"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `koanf:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `koanf:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// MetricsConfig configures the metrics and health listener.
// An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr" env:"ADDR"`
}

// APIConfig configures the route layout.
type APIConfig struct {
	Prefix string `koanf:"prefix" yaml:"prefix" env:"PREFIX"`
}

// DatabaseConfig selects and tunes the identity store.
type DatabaseConfig struct {
	URL             string        `koanf:"url" yaml:"url" env:"URL"`
	AutoMigrate     bool          `koanf:"auto_migrate" yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	ConnectAttempts uint64        `koanf:"connect_attempts" yaml:"connect_attempts" env:"CONNECT_ATTEMPTS"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff" yaml:"connect_backoff" env:"CONNECT_BACKOFF"`
	MaxConns        int32         `koanf:"max_conns" yaml:"max_conns" env:"MAX_CONNS"`
}

// TokenConfig configures access tokens.
type TokenConfig struct {
	// SigningKey is the HS256 secret. Empty means a random key is generated
	// at startup, which is refused in production.
	SigningKey string        `koanf:"signing_key" yaml:"signing_key" env:"SIGNING_KEY"`
	TTL        time.Duration `koanf:"ttl" yaml:"ttl" env:"TTL"`
}

// HashingConfig configures password hashing.
type HashingConfig struct {
	Algorithm string `koanf:"algorithm" yaml:"algorithm" env:"ALGORITHM"`
	Cost      int    `koanf:"cost" yaml:"cost" env:"COST"`
	// Workers bounds concurrent hash operations. Zero selects runtime.NumCPU.
	Workers int `koanf:"workers" yaml:"workers" env:"WORKERS"`
}

// CORSConfig lists allowed browser origins. Entries may be glob patterns.
type CORSConfig struct {
	Origins []string `koanf:"origins" yaml:"origins" env:"ORIGINS" envSeparator:","`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format" env:"FORMAT"`
	Level  string `koanf:"level" yaml:"level" env:"LEVEL"`
}

// FlagKeys maps command-line flag names to configuration keys. Only flags
// listed here, and only when set explicitly, override other sources.
var FlagKeys = map[string]string{
	"log-format":   "log.format",
	"log-level":    "log.level",
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"database-url": "database.url",
	"auto-migrate": "database.auto_migrate",
	"api-prefix":   "api.prefix",
}

// Default returns the built-in configuration.
func Default() Config {
	dbPath, err := xdg.DefaultDatabasePath()
	if err != nil {
		dbPath = xdg.DatabaseFile
	}
	return Config{
		Environment: EnvironmentLocal,
		Domain:      "localhost",
		HTTP: HTTPConfig{
			Addr:            "127.0.0.1:8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		API:     APIConfig{Prefix: "/api/v1"},
		Database: DatabaseConfig{
			URL:             "sqlite://" + dbPath,
			AutoMigrate:     true,
			ConnectAttempts: 5,
			ConnectBackoff:  250 * time.Millisecond,
		},
		Token: TokenConfig{TTL: auth.DefaultTokenTTL},
		Hashing: HashingConfig{
			Algorithm: auth.AlgorithmBcrypt,
			Cost:      auth.DefaultBcryptCost,
		},
		Log: LogConfig{Format: "json", Level: "info"},
	}
}

// Loader reads configuration from its sources.
type Loader struct {
	// ConfigFile is an explicit YAML file. It must exist when set. When
	// empty, the XDG default path is read if present.
	ConfigFile string
	// DotEnvFile overrides DefaultDotEnvFile. A missing file is ignored.
	DotEnvFile string
	// Environ replaces os.Environ, mainly for tests.
	Environ []string
	// Flags supplies command-line overrides. May be nil.
	Flags *pflag.FlagSet
}

// Load reads configuration with an explicit file and flag set.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	return Loader{ConfigFile: configFile, Flags: flags}.Load()
}

// Load merges every source over Default and validates the result.
func (l Loader) Load() (*Config, error) {
	cfg := Default()

	if err := l.loadFile(&cfg); err != nil {
		return nil, err
	}
	if err := l.loadEnv(&cfg); err != nil {
		return nil, err
	}
	if err := l.loadFlags(&cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l Loader) loadFile(cfg *Config) error {
	path := l.ConfigFile
	required := path != ""
	if !required {
		var err error
		path, err = xdg.DefaultConfigPath()
		if err != nil {
			return nil //nolint:nilerr // no home directory means no default config file
		}
	}

	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_FILE_UNREADABLE").With("path", path).Wrap(err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	}
	return nil
}

func (l Loader) loadEnv(cfg *Config) error {
	environ := l.Environ
	if environ == nil {
		environ = os.Environ()
	}

	dotenvPath := l.DotEnvFile
	if dotenvPath == "" {
		dotenvPath = DefaultDotEnvFile
	}
	vars := map[string]string{}
	dotenv, err := godotenv.Read(dotenvPath)
	switch {
	case err == nil:
		for k, v := range dotenv {
			vars[k] = v
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return oops.Code("CONFIG_DOTENV_INVALID").With("path", dotenvPath).Wrap(err)
	}
	// Real environment variables win over the .env file.
	for k, v := range env.ToMap(environ) {
		vars[k] = v
	}

	if err := env.ParseWithOptions(cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: vars,
	}); err != nil {
		return oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}
	return nil
}

func (l Loader) loadFlags(cfg *Config) error {
	if l.Flags == nil {
		return nil
	}
	k := koanf.New(".")
	provider := posflag.ProviderWithFlag(l.Flags, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := FlagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, posflag.FlagVal(l.Flags, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
	}
	return nil
}

func (c *Config) normalize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.API.Prefix = "/" + strings.Trim(strings.TrimSpace(c.API.Prefix), "/")
	c.Hashing.Algorithm = strings.ToLower(strings.TrimSpace(c.Hashing.Algorithm))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))

	origins := c.CORS.Origins[:0:0]
	for _, o := range c.CORS.Origins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, strings.TrimRight(o, "/"))
		}
	}
	c.CORS.Origins = origins
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvironmentLocal, EnvironmentStaging, EnvironmentProduction:
	default:
		return invalid("environment", "must be one of local, staging, production")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "is required")
	}
	if c.Token.TTL <= 0 {
		return invalid("token.ttl", "must be positive")
	}
	if c.Token.SigningKey != "" && len(c.Token.SigningKey) < auth.MinSigningKeyBytes {
		return invalid("token.signing_key", "must be at least 32 bytes")
	}
	if c.Token.SigningKey == "" && c.Environment == EnvironmentProduction {
		return invalid("token.signing_key", "is required in production")
	}
	switch c.Hashing.Algorithm {
	case auth.AlgorithmBcrypt, auth.AlgorithmArgon2id:
	default:
		return invalid("hashing.algorithm", "must be bcrypt or argon2id")
	}
	if c.Hashing.Workers < 0 {
		return invalid("hashing.workers", "must not be negative")
	}
	if _, err := store.ParseURL(c.Database.URL); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "database.url").Wrap(err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "log.level").Wrap(err)
	}
	return nil
}

// SigningKey returns the configured key, or a freshly generated one when
// none is configured. generated reports which.
func (c *Config) SigningKey() (key auth.SigningKey, generated bool, err error) {
	if c.Token.SigningKey == "" {
		key, err = auth.GenerateSigningKey()
		return key, true, err
	}
	key, err = auth.NewSigningKey([]byte(c.Token.SigningKey))
	return key, false, err
}

// Redacted returns a copy safe to print, with the signing key and any
// database password masked.
func (c *Config) Redacted() Config {
	out := *c
	out.CORS.Origins = append([]string(nil), c.CORS.Origins...)
	if out.Token.SigningKey != "" {
		out.Token.SigningKey = "[REDACTED]"
	}
	if target, err := store.ParseURL(out.Database.URL); err == nil && target.Dialect == store.DialectPostgres {
		out.Database.URL = target.Redacted()
	}
	return out
}

// IsProduction reports whether the production environment is selected.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

func invalid(field, msg string) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf("%s %s", field, msg)
}
