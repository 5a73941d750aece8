// Package config loads the service configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// AppConfig composes the domain-specific configuration structs.
//
// Values are parsed from environment variables with github.com/caarlos0/env.
// See the individual files for the variables each section reads:
//   - auth.go: dashboard/API authentication
//   - database.go: Postgres and Redis
//   - http.go: HTTP server
//   - services.go: service mode and background runners
//   - tracking.go: collector behaviour (ignore lists, thresholds, argument capture)
type AppConfig struct {
	// IsDev relaxes a few production guardrails. Set DEV=true or APP_ENV=development.
	IsDev bool `env:"DEV" envDefault:"false"`

	Auth AuthConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	HTTP HTTPConfig

	// Services is a comma-delimited list of enabled services.
	Services string `env:"SERVICES" envDefault:"http"`

	Tracking  TrackingConfig  `envPrefix:"PULSE_"`
	Summary   SummaryConfig   `envPrefix:"SUMMARY_"`
	Retention RetentionConfig `envPrefix:"RETENTION_"`

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to values loaded from env.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Tracking.Sanitize()
	c.Summary.Sanitize()
	c.Retention.Sanitize()
	c.Observability.Sanitize()
	c.detectDevMode()
}

// Validate fails fast on settings that would make instrumentation misbehave.
// Call after Sanitize.
func (c *AppConfig) Validate() error {
	var errs []error
	if _, err := ParseServices(c.Services); err != nil {
		errs = append(errs, fmt.Errorf("services: %w", err))
	}
	if err := c.Tracking.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracking: %w", err))
	}
	if err := c.Summary.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("summary: %w", err))
	}
	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("auth: %w", err))
	}
	return errors.Join(errs...)
}

func (c *AppConfig) detectDevMode() {
	if c.IsDev {
		return
	}
	appEnv := strings.ToLower(os.Getenv("APP_ENV"))
	c.IsDev = appEnv == "development" || appEnv == "dev"
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsServiceEnabled reports whether mode is listed in Services.
func (c *AppConfig) IsServiceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool { return c.IsServiceEnabled(ServiceModeHTTP) }

// IsSummarizerEnabled returns true if the scheduled summary aggregation is enabled.
func (c *AppConfig) IsSummarizerEnabled() bool { return c.IsServiceEnabled(ServiceModeSummarizer) }

// IsRetentionEnabled returns true if the retention runner is enabled.
func (c *AppConfig) IsRetentionEnabled() bool { return c.IsServiceEnabled(ServiceModeRetention) }
