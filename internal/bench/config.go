// Package bench drives repeated POST /runtest calls and records how long
// the server and the client spent on each one.
package bench

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/okian/runtest/internal/domain/model"
)

// Defaults used by the bench command.
const (
	DefaultURL     = "http://localhost:3000"
	DefaultBudget  = 500
	DefaultRuns    = 100
	DefaultItems   = 1000
	DefaultTimeout = 30 * time.Second
	DefaultOutput  = "results.json"
)

// Config holds one bench invocation.
type Config struct {
	URL         string        `json:"url"`         // Base URL of the service
	Secret      string        `json:"secret"`      // Shared secret sent in every request
	Items       model.Items   `json:"items"`       // Candidates sent in every request
	Budget      float64       `json:"budget"`      // Weight budget sent in every request
	Runs        int           `json:"runs"`        // Number of requests
	Concurrency int           `json:"concurrency"` // Requests in flight at once
	RPS         float64       `json:"rps"`         // Request rate cap, 0 for unlimited
	Timeout     time.Duration `json:"timeout"`     // Per-request timeout
	Output      string        `json:"output"`      // Results file, empty to skip
}

// Validate implements validation.Validatable.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, is.URL),
		validation.Field(&c.Items, validation.NotNil),
		validation.Field(&c.Budget, validation.Min(0.0)),
		validation.Field(&c.Runs, validation.Required, validation.Min(1)),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1)),
		validation.Field(&c.RPS, validation.Min(0.0)),
		validation.Field(&c.Timeout, validation.Required),
	)
}
