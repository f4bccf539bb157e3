package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	CacheTTL            time.Duration `mapstructure:"CACHE_TTL"`
	KafkaBrokers        string        `mapstructure:"KAFKA_BROKERS"`
	OutboxPollInterval  time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize     int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxRetentionDays int           `mapstructure:"OUTBOX_RETENTION_DAYS"`
	JanitorSchedule     string        `mapstructure:"JANITOR_SCHEDULE"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL         string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience        string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	CalendarTimezone    string        `mapstructure:"CALENDAR_TIMEZONE"`
	ConflictHorizonDays int           `mapstructure:"CONFLICT_HORIZON_DAYS"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
	OTelEnabled         bool          `mapstructure:"OTEL_ENABLED"`
	OTelEndpoint        string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelSampleRatio     float64       `mapstructure:"OTEL_SAMPLING_RATIO"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "CACHE_TTL",
	"KAFKA_BROKERS", "OUTBOX_POLL_INTERVAL", "OUTBOX_BATCH_SIZE", "OUTBOX_RETENTION_DAYS",
	"JANITOR_SCHEDULE",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "CALENDAR_TIMEZONE", "CONFLICT_HORIZON_DAYS", "REQUEST_TIMEOUT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SAMPLING_RATIO",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("OUTBOX_POLL_INTERVAL", "2s")
	v.SetDefault("OUTBOX_BATCH_SIZE", 50)
	v.SetDefault("OUTBOX_RETENTION_DAYS", 7)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CALENDAR_TIMEZONE", "UTC")
	v.SetDefault("CONFLICT_HORIZON_DAYS", 90)
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_SAMPLING_RATIO", 1.0)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: requests without a bearer token act as the provider in X-Provider-ID.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves CALENDAR_TIMEZONE. Occurrence dates and times of day are
// computed in this location.
func (c *Config) Location() (*time.Location, error) {
	name := c.CalendarTimezone
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("CALENDAR_TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

// KafkaBrokerList splits KAFKA_BROKERS on commas, dropping blanks.
func (c *Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Validate checks that the configuration is safe to run. Outside development
// a token verification source (signing key or issuer/JWKS) must be set.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthIssuer == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf(
			"one of AUTH_SIGNING_KEY, AUTH_ISSUER or AUTH_JWKS_URL must be set when ENV=%q", c.Env)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.ConflictHorizonDays <= 0 {
		return fmt.Errorf("CONFLICT_HORIZON_DAYS must be positive, got %d", c.ConflictHorizonDays)
	}
	if c.OutboxRetentionDays <= 0 {
		return fmt.Errorf("OUTBOX_RETENTION_DAYS must be positive, got %d", c.OutboxRetentionDays)
	}
	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATIO must be within [0,1], got %v", c.OTelSampleRatio)
	}
	return nil
}
