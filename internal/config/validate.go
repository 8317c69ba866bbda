// validate.go - startup validation of the loaded configuration.
//
// Every problem is collected so the operator sees the full list at once
// instead of fixing one variable per restart.
package config

import (
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validator accumulates configuration validation errors.
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make([]ValidationError, 0)}
}

// AddError adds a validation error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ErrorString returns a formatted string of all errors.
func (v *Validator) ErrorString() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):\n", len(v.errors)))
	for i, err := range v.errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidateListenAddr accepts "host:port" or ":port".
func (v *Validator) ValidateListenAddr(key, value string) {
	_, portStr, err := net.SplitHostPort(value)
	if err != nil {
		v.AddError(key, fmt.Sprintf("invalid listen address: %v", err))
		return
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		v.AddError(key, "port must be a number")
		return
	}
	// 0 lets the kernel pick, which tests rely on.
	if port < 0 || port > 65535 {
		v.AddError(key, "port must be between 0 and 65535")
	}
}

// ValidateEnum validates that a value is one of allowed options.
func (v *Validator) ValidateEnum(key, value string, allowed []string) {
	for _, opt := range allowed {
		if value == opt {
			return
		}
	}

	v.AddError(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

// ValidatePositive validates that a numeric setting is above zero.
func (v *Validator) ValidatePositive(key string, value int64) {
	if value <= 0 {
		v.AddError(key, "must be a positive integer")
	}
}

// Validate checks the whole configuration and returns every problem found.
func (c *Config) Validate() error {
	v := NewValidator()

	v.ValidateListenAddr("listen_addr", c.ListenAddr)

	dsn := strings.TrimSpace(c.DatabaseURL)
	switch {
	case dsn == "":
		v.AddError("database_url", "required")
	case strings.HasPrefix(dsn, MemoryDSNPrefix):
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		if _, err := url.Parse(dsn); err != nil {
			v.AddError("database_url", fmt.Sprintf("invalid URL: %v", err))
		}
	default:
		v.AddError("database_url", "must be a postgres:// URL or "+MemoryDSNPrefix)
	}

	v.ValidatePositive("max_upload_bytes", c.MaxUploadBytes)
	v.ValidatePositive("multipart_memory", c.MultipartMemory)
	if c.StoreTimeout <= 0 {
		v.AddError("store_timeout", "must be a positive duration")
	}
	v.ValidatePositive("store_breaker.failures", c.StoreBreaker.Failures)
	if c.StoreBreaker.Failures > math.MaxUint32 {
		v.AddError("store_breaker.failures", fmt.Sprintf("must not exceed %d", uint64(math.MaxUint32)))
	}
	if c.StoreBreaker.Cooldown <= 0 {
		v.AddError("store_breaker.cooldown", "must be a positive duration")
	}

	if c.Blob.Enabled() {
		if c.Blob.AccessKey == "" || c.Blob.SecretKey == "" {
			v.AddError("blob", "access_key and secret_key are required when endpoint is set")
		}
		if c.Blob.Bucket == "" {
			v.AddError("blob.bucket", "required when endpoint is set")
		}
		v.ValidatePositive("blob.threshold_bytes", c.Blob.ThresholdBytes)
	}

	v.ValidateEnum("log_format", c.LogFormat, []string{"json", "text"})
	v.ValidateEnum("log_level", strings.ToLower(c.LogLevel), []string{"debug", "info", "warn", "error"})

	if v.HasErrors() {
		return fmt.Errorf("%s", v.ErrorString())
	}

	return nil
}
