package provider

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultMaxRetries bounds the blocking transport's retry loop.
	DefaultMaxRetries = 3
	// DefaultTimeout is applied per request attempt.
	DefaultTimeout = 30 * time.Second
)

// Config selects a provider variant and carries the credentials and knobs for
// talking to it. It is immutable after the chat service is initialized.
type Config struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	Timeout    time.Duration

	_ struct{} // require keyed usage
}

// Resolve validates the configuration, fills in the adapter's defaults for
// any zero-valued field, and returns the adapter it names. Configuration
// problems are fatal at initialization; they never reach a request attempt.
func (c *Config) Resolve() (Adapter, error) {
	if strings.TrimSpace(c.Provider) == "" {
		return nil, fmt.Errorf("provider is required")
	}
	adapter, err := ForName(c.Provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, fmt.Errorf("api key is required for provider %q", c.Provider)
	}
	if c.Model == "" {
		c.Model = adapter.DefaultModel()
	}
	if c.BaseURL == "" {
		c.BaseURL = adapter.DefaultBaseURL()
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return adapter, nil
}
