// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3004"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	Database  DatabaseConfig
	Directory DirectoryConfig
	Email     EmailConfig
	Tracing   TracingConfig

	// Invitation lifetime; resend extends by the same window
	InviteTTL time.Duration `env:"INVITE_TTL" envDefault:"168h"`

	// Cron spec for the expired-invitation sweep; empty disables it
	InviteSweepSchedule string `env:"INVITE_SWEEP_SCHEDULE" envDefault:"@hourly"`

	// Base URL used when building setup and invitation links
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:5173"`

	// Run embedded migrations on startup
	AutoMigrate bool `env:"AUTO_MIGRATE" envDefault:"false"`

	// Requests per second allowed per client IP on public token endpoints
	PublicRateLimit float64 `env:"PUBLIC_RATE_LIMIT" envDefault:"5"`
	PublicRateBurst int     `env:"PUBLIC_RATE_BURST" envDefault:"10"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"slotwise"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"slotwise"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// DirectoryConfig holds credential-store (account directory) settings.
// Mode "oidc" talks to an external identity provider; mode "local"
// keeps accounts in Postgres and issues HS256 tokens (development,
// single-box deployments, tests).
type DirectoryConfig struct {
	Mode string `env:"DIRECTORY_MODE" envDefault:"local"`

	// OIDC provider settings
	Issuer string `env:"DIRECTORY_ISSUER"`

	// Resource-server credentials for token introspection
	ClientID     string `env:"DIRECTORY_CLIENT_ID"`
	ClientSecret string `env:"DIRECTORY_CLIENT_SECRET"`

	// Management API for account lookup/creation
	ManagementURL string `env:"DIRECTORY_MANAGEMENT_URL"`

	// Introspection cache TTL (Postgres-backed)
	IntrospectCacheTTL time.Duration `env:"DIRECTORY_INTROSPECT_CACHE_TTL" envDefault:"5m"`

	// Local mode: HMAC secret for issued bearer tokens
	TokenSecret string        `env:"DIRECTORY_TOKEN_SECRET" envDefault:"dev-only-secret-change-me"`
	TokenTTL    time.Duration `env:"DIRECTORY_TOKEN_TTL" envDefault:"24h"`
}

// EmailConfig holds outbound notification settings
type EmailConfig struct {
	Enabled          bool   `env:"EMAIL_ENABLED" envDefault:"false"`
	MailgunDomain    string `env:"MAILGUN_DOMAIN"`
	MailgunAPIKey    string `env:"MAILGUN_API_KEY"`
	FromEmail        string `env:"EMAIL_FROM" envDefault:"no-reply@slotwise.app"`
	FromName         string `env:"EMAIL_FROM_NAME" envDefault:"Slotwise"`
	WorkerEnabled    bool   `env:"EMAIL_WORKER_ENABLED" envDefault:"true"`
	MaxRetries       int    `env:"EMAIL_MAX_RETRIES" envDefault:"3"`
	RetryDelaySec    int    `env:"EMAIL_RETRY_DELAY_SEC" envDefault:"60"`
	WorkerIntervalMs int    `env:"EMAIL_WORKER_INTERVAL_MS" envDefault:"5000"`
	WorkerBatchSize  int    `env:"EMAIL_WORKER_BATCH_SIZE" envDefault:"10"`
}

// IsConfigured reports whether Mailgun credentials are present
func (e *EmailConfig) IsConfigured() bool {
	return e.MailgunDomain != "" && e.MailgunAPIKey != ""
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"slotwise-core"`
	SampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1.0"`
	Insecure    bool    `env:"OTEL_EXPORTER_INSECURE" envDefault:"true"`
}

// NewConfig parses configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
