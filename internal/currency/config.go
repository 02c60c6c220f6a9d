package currency

import (
	"fmt"
	"net/url"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/service"
)

// Config holds exchange-rate service settings.
type Config struct {
	BaseURL           string
	APIKey            string
	Retry             service.RetryOptions
	Timeout           time.Duration
	CacheTTL          time.Duration
	RequestsPerMinute int
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://api.exchangerate.host",
		Timeout:           10 * time.Second,
		CacheTTL:          time.Hour,
		RequestsPerMinute: 30,
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: currency base URL is required", common.ErrInvalidConfig)
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("%w: currency base URL: %v", common.ErrInvalidConfig, err)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: currency timeout must be positive", common.ErrInvalidConfig)
	}
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("%w: currency requests per minute must be positive", common.ErrInvalidConfig)
	}
	return nil
}
