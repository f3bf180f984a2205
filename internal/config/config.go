// Package config defines the global configuration structure for the chatforge
// platform. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved from the OS environment, optionally seeded from a .env
// file for local development. Any missing required value or invalid format
// causes the application to fail immediately on startup (fail fast).
package config

import (
	"time"

	"chatforge/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the chatforge platform.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require
// (Least Privilege principle).
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"chatforge-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Billing  BillingConfig
	AI       AIConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public app URL for payment redirects (no trailing slash),
	// e.g. https://app.chatforge.io
	AppURL string `envconfig:"APP_URL" validate:"required,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AuthConfig holds the external auth provider endpoint and credentials.
// Session tokens arrive as cookies and are resolved against this provider on
// every protected request; this service never issues sessions itself.
type AuthConfig struct {
	URL        string       `envconfig:"AUTH_URL" validate:"required,url"`
	ServiceKey SecretString `envconfig:"AUTH_SERVICE_KEY" validate:"required"`
	CookieName string       `envconfig:"SESSION_COOKIE_NAME" default:"sb-access-token"`
}

// BillingConfig holds payment provider credentials for both Stripe and PayPal.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`

	PayPalClientID     string       `envconfig:"PAYPAL_CLIENT_ID" validate:"required"`
	PayPalClientSecret SecretString `envconfig:"PAYPAL_CLIENT_SECRET" validate:"required"`
	PayPalBaseURL      string       `envconfig:"PAYPAL_API_BASE" default:"https://api-m.sandbox.paypal.com"`
}

// AIConfig holds the generation provider credentials and model selection.
type AIConfig struct {
	GeminiAPIKey SecretString `envconfig:"GEMINI_API_KEY" validate:"required"`
	Model        string       `envconfig:"GEMINI_MODEL" default:"gemini-1.5-pro"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
