// Package config centralizes how SiteVault reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Backends accepted by StorageBackend.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config represents runtime configuration for the API, the worker and the CLI.
type Config struct {
	Address  string `env:"ADDRESS" envDefault:":8080"`
	Env      string `env:"ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"memory"`
	DatabaseURL    string `env:"DATABASE_URL"`
	DatabaseConns  int32  `env:"DATABASE_MAX_CONNS" envDefault:"8"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	S3Endpoint    string `env:"S3_ENDPOINT"`
	S3AccessKey   string `env:"S3_ACCESS_KEY"`
	S3SecretKey   string `env:"S3_SECRET_KEY"`
	S3UseSSL      bool   `env:"S3_USE_SSL" envDefault:"false"`
	S3Region      string `env:"S3_REGION" envDefault:"us-east-1"`
	Bucket        string `env:"BUCKET" envDefault:"sitevault"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080/files"`

	SigningSecret string        `env:"SIGNING_SECRET"`
	SignedURLTTL  time.Duration `env:"SIGNED_URL_TTL" envDefault:"5m"`
	MaxFileBytes  int64         `env:"MAX_FILE_BYTES" envDefault:"26214400"`

	SourceTimeout        time.Duration `env:"SOURCE_TIMEOUT" envDefault:"5s"`
	SourceLimit          int           `env:"SOURCE_LIMIT" envDefault:"500"`
	RegistryCacheTTL     time.Duration `env:"REGISTRY_CACHE_TTL" envDefault:"30s"`
	RegistryChannel      string        `env:"REGISTRY_CHANNEL" envDefault:"sitevault:registry:invalidate"`
	AttachmentCategories []string      `env:"ATTACHMENT_CATEGORIES" envDefault:"before,after" envSeparator:","`

	Workers       int    `env:"WORKERS" envDefault:"4"`
	OTelEndpoint  string `env:"OTEL_ENDPOINT"`
	DevBypassAuth bool   `env:"DEV_BYPASS_AUTH" envDefault:"false"`
}

// Prefix is prepended to every variable name.
const Prefix = "SITEVAULT_"

// Load reads configuration from environment variables falling back to defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Secret returns the signing secret, generating a random per-process one
// when none is configured. Signed URLs then stop validating on restart.
func (c *Config) Secret() []byte {
	if c.SigningSecret != "" {
		return []byte(c.SigningSecret)
	}
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	c.SigningSecret = string(buf)
	return buf
}

// Production reports whether the service runs in production mode.
func (c *Config) Production() bool {
	return c.Env == "production"
}

func (c *Config) normalize() error {
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	switch c.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%sDATABASE_URL is required for the postgres backend", Prefix)
		}
	default:
		return fmt.Errorf("%sSTORAGE_BACKEND must be %q or %q, got %q", Prefix, BackendPostgres, BackendMemory, c.StorageBackend)
	}
	cats := c.AttachmentCategories[:0]
	for _, cat := range c.AttachmentCategories {
		if cat = strings.TrimSpace(cat); cat != "" {
			cats = append(cats, cat)
		}
	}
	if len(cats) < 2 {
		return fmt.Errorf("%sATTACHMENT_CATEGORIES needs at least two values", Prefix)
	}
	c.AttachmentCategories = cats
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.SignedURLTTL <= 0 {
		c.SignedURLTTL = 5 * time.Minute
	}
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = 5 * time.Second
	}
	return nil
}
