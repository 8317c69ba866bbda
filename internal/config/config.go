package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr      = ":5000"
	defaultDatabaseName    = "crack-ai-db"
	defaultMaxUploadBytes  = 100 << 20
	defaultMultipartMemory = 32 << 20
	defaultStoreTimeout    = 30 * time.Second
	defaultBlobThreshold   = 1 << 20
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second

	// MemoryDSNPrefix selects the in-process store instead of PostgreSQL.
	MemoryDSNPrefix = "memory://"
)

// Blob configures payload offloading to an S3-compatible object store.
// Offloading is disabled while Endpoint is empty.
type Blob struct {
	Endpoint       string `yaml:"endpoint" json:"endpoint"`
	AccessKey      string `yaml:"access_key" json:"-"`
	SecretKey      string `yaml:"secret_key" json:"-"`
	Bucket         string `yaml:"bucket" json:"bucket"`
	ThresholdBytes int64  `yaml:"threshold_bytes" json:"threshold_bytes"`
}

// Enabled reports whether payloads should be offloaded.
func (b Blob) Enabled() bool {
	return strings.TrimSpace(b.Endpoint) != ""
}

// Breaker configures the circuit breaker in front of the store.
type Breaker struct {
	Failures int64         `yaml:"failures" json:"failures"`
	Cooldown time.Duration `yaml:"cooldown" json:"cooldown"`
}

type Config struct {
	ListenAddr      string        `yaml:"listen_addr" json:"listen_addr"`
	DatabaseURL     string        `yaml:"database_url" json:"-"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" json:"max_upload_bytes"`
	MultipartMemory int64         `yaml:"multipart_memory" json:"multipart_memory"`
	StoreTimeout    time.Duration `yaml:"store_timeout" json:"store_timeout"`
	StoreBreaker    Breaker       `yaml:"store_breaker" json:"store_breaker"`
	CORSOrigin      string        `yaml:"cors_origin" json:"cors_origin"`
	Blob            Blob          `yaml:"blob" json:"blob"`
	LogLevel        string        `yaml:"log_level" json:"log_level"`
	LogFormat       string        `yaml:"log_format" json:"log_format"`
	Version         string        `yaml:"version" json:"version"`
}

// Load reads .env, then the optional YAML file at CONFIG_PATH, then applies
// environment overrides and defaults. A missing .env or YAML file is not an
// error; a malformed one is.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var c Config
	path := getenv("CONFIG_PATH", "./config.yaml")
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.applyDefaults()

	return &c, nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.ListenAddr = ":" + v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		c.CORSOrigin = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("APP_VERSION"); v != "" {
		c.Version = v
	}
	if v := os.Getenv("BLOB_ENDPOINT"); v != "" {
		c.Blob.Endpoint = v
	}
	if v := os.Getenv("BLOB_ACCESS_KEY"); v != "" {
		c.Blob.AccessKey = v
	}
	if v := os.Getenv("BLOB_SECRET_KEY"); v != "" {
		c.Blob.SecretKey = v
	}
	if v := os.Getenv("BLOB_BUCKET"); v != "" {
		c.Blob.Bucket = v
	}

	var err error
	if c.MaxUploadBytes, err = envInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes); err != nil {
		return err
	}
	if c.MultipartMemory, err = envInt64("MULTIPART_MEMORY", c.MultipartMemory); err != nil {
		return err
	}
	if c.Blob.ThresholdBytes, err = envInt64("BLOB_THRESHOLD_BYTES", c.Blob.ThresholdBytes); err != nil {
		return err
	}
	if v := os.Getenv("STORE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STORE_TIMEOUT: %w", err)
		}
		c.StoreTimeout = d
	}
	if c.StoreBreaker.Failures, err = envInt64("STORE_BREAKER_FAILURES", c.StoreBreaker.Failures); err != nil {
		return err
	}
	if v := os.Getenv("STORE_BREAKER_COOLDOWN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STORE_BREAKER_COOLDOWN: %w", err)
		}
		c.StoreBreaker.Cooldown = d
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = databaseURLFromParts()
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = defaultMaxUploadBytes
	}
	if c.MultipartMemory == 0 {
		c.MultipartMemory = defaultMultipartMemory
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = defaultStoreTimeout
	}
	if c.StoreBreaker.Failures == 0 {
		c.StoreBreaker.Failures = defaultBreakerFailures
	}
	if c.StoreBreaker.Cooldown == 0 {
		c.StoreBreaker.Cooldown = defaultBreakerCooldown
	}
	if c.CORSOrigin == "" {
		c.CORSOrigin = "*"
	}
	if c.Blob.ThresholdBytes == 0 {
		c.Blob.ThresholdBytes = defaultBlobThreshold
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
		if os.Getenv("APP_ENV") == "production" {
			c.LogFormat = "json"
		}
	}
	if c.Version == "" {
		c.Version = "dev"
	}
}

// UsesMemoryStore reports whether DatabaseURL selects the in-process store.
func (c *Config) UsesMemoryStore() bool {
	return strings.HasPrefix(strings.TrimSpace(c.DatabaseURL), MemoryDSNPrefix)
}

// databaseURLFromParts assembles a PostgreSQL URL from the DB_* variables.
func databaseURLFromParts() string {
	u := url.URL{
		Scheme: "postgres",
		User: url.UserPassword(
			getenv("DB_USER", "postgres"),
			getenv("DB_PASSWORD", "postgres"),
		),
		Host:     getenv("DB_HOST", "localhost") + ":" + getenv("DB_PORT", "5432"),
		Path:     "/" + getenv("DB_NAME", defaultDatabaseName),
		RawQuery: "sslmode=" + getenv("DB_SSLMODE", "disable"),
	}
	return u.String()
}

func envInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}

	return def
}
