package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"rafflehub"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"rafflehub"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"rafflehub"`
	PGMaxConns  int32  `env:"PG_MAX_CONNS" envDefault:"20"`

	// Redis; empty falls back to the in-process rate limiter.
	RedisURL           string `env:"REDIS_URL"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"10"`

	// JWT
	JWTSecret      string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTUserExpiry  string `env:"JWT_USER_EXPIRY" envDefault:"24h"`
	JWTAdminExpiry string `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3100"`

	// Kafka
	KafkaBrokers     string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled     bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopicPrefix string `env:"KAFKA_TOPIC_PREFIX" envDefault:"rafflehub"`

	// Observability
	LokiURL             string        `env:"LOKI_URL"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	MetricsPushURL      string        `env:"METRICS_PUSH_URL"`
	MetricsPushInterval time.Duration `env:"METRICS_PUSH_INTERVAL" envDefault:"15s"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`

	// Payments
	PaymentEnvironment   string        `env:"PAYMENT_ENVIRONMENT" envDefault:"SANDBOX"`
	DefaultCurrency      string        `env:"DEFAULT_CURRENCY" envDefault:"GBP"`
	SecretsMasterKey     string        `env:"SECRETS_MASTER_KEY"`
	SecretCacheTTL       time.Duration `env:"SECRET_CACHE_TTL" envDefault:"5m"`
	ProviderTimeout      time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"20s"`
	CheckoutExpiry       time.Duration `env:"CHECKOUT_EXPIRY" envDefault:"24h"`
	ExpiryJobSchedule    string        `env:"EXPIRY_JOB_SCHEDULE" envDefault:"@every 15m"`
	LimitResetSchedule   string        `env:"LIMIT_RESET_SCHEDULE" envDefault:"0 0 * * *"`
	UniversalTicketPrice int64         `env:"UNIVERSAL_TICKET_PRICE" envDefault:"100"`
	PublicBaseURL        string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`
	ReportCacheTTL       time.Duration `env:"REPORT_CACHE_TTL" envDefault:"1m"`

	// Provider environment fallbacks; gateway_configs rows and the secret
	// store take precedence.
	StripeSecretKey      string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret  string `env:"STRIPE_WEBHOOK_SECRET"`
	StripeBaseURL        string `env:"STRIPE_BASE_URL" envDefault:"https://api.stripe.com"`
	PayPalClientID       string `env:"PAYPAL_CLIENT_ID"`
	PayPalClientSecret   string `env:"PAYPAL_CLIENT_SECRET"`
	PayPalWebhookID      string `env:"PAYPAL_WEBHOOK_ID"`
	PayPalBaseURL        string `env:"PAYPAL_BASE_URL"`
	RevolutAPIKey        string `env:"REVOLUT_API_KEY"`
	RevolutWebhookSecret string `env:"REVOLUT_WEBHOOK_SECRET"`
	RevolutBusinessToken string `env:"REVOLUT_BUSINESS_TOKEN"`
	RevolutSourceAccount string `env:"REVOLUT_SOURCE_ACCOUNT_ID"`
	RevolutBaseURL       string `env:"REVOLUT_BASE_URL"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass the JWT checks (local dev only).
// A missing SECRETS_MASTER_KEY is always fatal.
func (c *Config) Validate() error {
	if c.SecretsMasterKey == "" {
		return fmt.Errorf("SECRETS_MASTER_KEY is required")
	}
	if c.PaymentEnvironment != "SANDBOX" && c.PaymentEnvironment != "LIVE" {
		return fmt.Errorf("PAYMENT_ENVIRONMENT must be SANDBOX or LIVE, got %q", c.PaymentEnvironment)
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// EnvFallbacks maps the credential keys gateways look up to the values
// loaded from the environment.
func (c *Config) EnvFallbacks() map[string]string {
	return map[string]string{
		"STRIPE_SECRET_KEY":         c.StripeSecretKey,
		"STRIPE_WEBHOOK_SECRET":     c.StripeWebhookSecret,
		"STRIPE_BASE_URL":           c.StripeBaseURL,
		"PAYPAL_CLIENT_ID":          c.PayPalClientID,
		"PAYPAL_CLIENT_SECRET":      c.PayPalClientSecret,
		"PAYPAL_WEBHOOK_ID":         c.PayPalWebhookID,
		"PAYPAL_BASE_URL":           c.PayPalBaseURL,
		"REVOLUT_API_KEY":           c.RevolutAPIKey,
		"REVOLUT_WEBHOOK_SECRET":    c.RevolutWebhookSecret,
		"REVOLUT_BUSINESS_TOKEN":    c.RevolutBusinessToken,
		"REVOLUT_SOURCE_ACCOUNT_ID": c.RevolutSourceAccount,
		"REVOLUT_BASE_URL":          c.RevolutBaseURL,
	}
}
