// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"net"
	"runtime"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" json:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format" json:"log_format"`

	// Addr configures the HTTP listen address, e.g. "0.0.0.0:3000".
	Addr string `koanf:"addr" json:"addr"`

	// APIKey is the shared secret every request must present.
	// Empty means every request is rejected.
	APIKey string `koanf:"api_key" json:"-"`

	// WorkerCount sets the number of selection workers.
	WorkerCount int `koanf:"worker_count" json:"worker_count"`

	// QueueSize bounds the selection job queue.
	QueueSize int `koanf:"queue_size" json:"queue_size"`

	// SelectionTimeoutMS bounds how long a request waits for its selection.
	SelectionTimeoutMS int `koanf:"selection_timeout_ms" json:"selection_timeout_ms"`

	// MaxBodyBytes caps the size of a request body.
	MaxBodyBytes int64 `koanf:"max_body_bytes" json:"max_body_bytes"`

	// RateLimit is the sustained requests per second on POST /runtest. Zero disables it.
	RateLimit float64 `koanf:"rate_limit" json:"rate_limit"`

	// RateBurst is the token bucket size used with RateLimit.
	RateBurst int `koanf:"rate_burst" json:"rate_burst"`

	// ShutdownTimeoutMS bounds graceful shutdown of the HTTP server.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms" json:"shutdown_timeout_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          LogFormatText,
		Addr:               "0.0.0.0:3000",
		WorkerCount:        runtime.NumCPU() * 2,
		QueueSize:          4096,
		SelectionTimeoutMS: 5000,
		MaxBodyBytes:       10 << 20,
		RateLimit:          0,
		RateBurst:          100,
		ShutdownTimeoutMS:  10_000,
	}
}

// SelectionTimeout returns SelectionTimeoutMS as a duration.
func (c *Config) SelectionTimeout() time.Duration {
	return time.Duration(c.SelectionTimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns ShutdownTimeoutMS as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// Validate implements validation.Validatable.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.Required, validation.In("debug", "info", "warn", "warning", "error")),
		validation.Field(&c.LogFormat, validation.Required, validation.In(LogFormatText, LogFormatJSON)),
		validation.Field(&c.Addr, validation.Required, validation.By(hostPort)),
		validation.Field(&c.WorkerCount, validation.Required, validation.Min(1)),
		validation.Field(&c.QueueSize, validation.Required, validation.Min(1)),
		validation.Field(&c.SelectionTimeoutMS, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxBodyBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.RateLimit, validation.Min(0.0)),
		validation.Field(&c.RateBurst, validation.Min(0)),
		validation.Field(&c.ShutdownTimeoutMS, validation.Required, validation.Min(1)),
	)
}

// hostPort accepts "host:port" and ":port".
func hostPort(value interface{}) error {
	s, _ := value.(string)
	_, port, err := net.SplitHostPort(s)
	if err != nil {
		return fmt.Errorf("must be host:port: %w", err)
	}
	return validation.Validate(port, validation.Required, is.Port)
}
