// Package config provides configuration management for the requisition sync service.
// It handles loading and validation of environment variables and the optional sync policy file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverSQLite   = "sqlite3"
	StoreDriverPostgres = "pgx"
	StoreDriverMemory   = "memory"
)

// Default configuration values
const (
	DefaultPort              = "8080"
	DefaultLogLevel          = "info"
	DefaultClearCompanyURL   = "https://api.clearcompany.com"
	DefaultPaylocityURL      = "https://api.paylocity.com"
	DefaultEventSource       = "requisition-sync"
	DefaultATSEventSource    = "clearcompany"
	DefaultPlanHeadcount     = 1
	DefaultPlanBudget        = 0.0
	DefaultSQLiteDSN         = "requisitions.db"
	defaultConsumerName      = "reqsync"
	ProviderClearCompanyPath = "/clearcompany"
	ProviderPaylocityPath    = "/paylocity"
)

// Config holds all configuration for the application
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Mode switches
	LocalInvocation     bool   `env:"LOCAL_INVOCATION"`
	DryRun              bool   `env:"DRY_RUN"`
	UseMockProviders    bool   `env:"USE_MOCK_PROVIDERS"`
	MockProviderBaseURL string `env:"MOCK_PROVIDER_BASE_URL" envDefault:"http://localhost:8080/mock"`

	// Providers
	ClearCompanyBaseURL string `env:"CLEARCOMPANY_API_URL" envDefault:"https://api.clearcompany.com"`
	PaylocityBaseURL    string `env:"PAYLOCITY_API_URL" envDefault:"https://api.paylocity.com"`
	ClearCompanyAPIKey  string `env:"CLEARCOMPANY_API_KEY"`
	PaylocityAPIKey     string `env:"PAYLOCITY_API_KEY"`
	CredentialsFile     string `env:"API_CREDENTIALS_FILE"`

	ProviderTimeout          time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s"`
	ProviderRateLimit        float64       `env:"PROVIDER_RATE_LIMIT" envDefault:"10"`
	ProviderRetryMaxAttempts int           `env:"PROVIDER_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	ProviderRetryBaseDelayMs int           `env:"PROVIDER_RETRY_BASE_DELAY_MS" envDefault:"200"`

	// Requisition store
	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite3"`
	StoreDSN    string `env:"STORE_DSN"`

	// Event bus
	EventBusName       string `env:"EVENT_BUS_NAME"`
	RedisURL           string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	EventSource        string `env:"EVENT_SOURCE" envDefault:"requisition-sync"`
	ATSEventSource     string `env:"ATS_EVENT_SOURCE" envDefault:"clearcompany"`
	EventConsumerGroup string `env:"EVENT_CONSUMER_GROUP" envDefault:"requisition-sync"`
	EventConsumerName  string `env:"EVENT_CONSUMER_NAME"`

	// Headcount plan defaults; unset means "use the policy file"
	PlanDefaultHeadcount *int          `env:"PLAN_DEFAULT_HEADCOUNT"`
	PlanDefaultBudget    *float64      `env:"PLAN_DEFAULT_BUDGET"`
	SyncPolicyFile       string        `env:"SYNC_POLICY_FILE"`
	PolicyReloadInterval time.Duration `env:"SYNC_POLICY_RELOAD_INTERVAL" envDefault:"30s"`
	Policy               SyncPolicy

	// Inbound rate limiting
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// Observability
	MetricsEnabled    bool    `env:"METRICS_ENABLED" envDefault:"true"`
	TracingEnabled    bool    `env:"TRACING_ENABLED"`
	OTLPEndpoint      string  `env:"OTLP_ENDPOINT"`
	TracingConsole    bool    `env:"TRACING_CONSOLE"`
	TracingSampleRate float64 `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`
	AuditMaxEvents    int     `env:"AUDIT_MAX_EVENTS" envDefault:"1000"`
}

// Load loads configuration from the process environment and an optional .env file
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// It's okay if .env file doesn't exist - we'll use environment variables
		_ = err
	}

	return Parse(env.Options{})
}

// Parse builds a Config with the given env options. Tests pass an explicit
// Environment map to stay hermetic.
func Parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.StoreDriver == StoreDriverSQLite && cfg.StoreDSN == "" {
		cfg.StoreDSN = DefaultSQLiteDSN
	}

	if cfg.EventConsumerName == "" {
		cfg.EventConsumerName = defaultConsumerName
		if host, err := os.Hostname(); err == nil && host != "" {
			cfg.EventConsumerName = host
		}
	}

	policy, err := LoadSyncPolicy(cfg.SyncPolicyFile)
	if err != nil {
		return nil, err
	}
	cfg.Policy = cfg.applyOverrides(policy)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyOverrides lets PLAN_DEFAULT_* replace the file's base plan defaults.
// Department entries keep precedence over both.
func (c *Config) applyOverrides(policy SyncPolicy) SyncPolicy {
	if c.PlanDefaultHeadcount != nil {
		policy.PlanDefaults.Headcount = *c.PlanDefaultHeadcount
	}
	if c.PlanDefaultBudget != nil {
		policy.PlanDefaults.Budget = *c.PlanDefaultBudget
	}
	return policy
}

// validate checks the configuration for values the service cannot run with
func (c *Config) validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	switch c.StoreDriver {
	case StoreDriverSQLite, StoreDriverPostgres:
		if c.StoreDSN == "" {
			return fmt.Errorf("STORE_DSN is required for driver %s", c.StoreDriver)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of %s, %s, %s; got %q",
			StoreDriverSQLite, StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}

	if err := c.Policy.validate(); err != nil {
		return err
	}

	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be between 0 and 1")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.ProviderRateLimit <= 0 {
		return fmt.Errorf("PROVIDER_RATE_LIMIT must be positive")
	}

	return nil
}

// ClearCompanyURL returns the base URL adapter traffic should use.
func (c *Config) ClearCompanyURL() string {
	if c.UseMockProviders {
		return c.MockProviderBaseURL + ProviderClearCompanyPath
	}
	return c.ClearCompanyBaseURL
}

// PaylocityURL returns the base URL adapter traffic should use.
func (c *Config) PaylocityURL() string {
	if c.UseMockProviders {
		return c.MockProviderBaseURL + ProviderPaylocityPath
	}
	return c.PaylocityBaseURL
}

// ProviderRetryBaseDelay returns the retry base delay as a duration
func (c *Config) ProviderRetryBaseDelay() time.Duration {
	return time.Duration(c.ProviderRetryBaseDelayMs) * time.Millisecond
}

// ShortCircuitCreate reports whether Create must bypass the live adapters.
func (c *Config) ShortCircuitCreate() bool {
	return c.LocalInvocation || c.DryRun
}
