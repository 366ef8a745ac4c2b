// Package config loads service settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the server and the operator CLI read.
type Config struct {
	Addr string

	DatabaseDriver string
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AdminUserIDs    string

	RedisURL          string
	RevocationBackend string

	EmailQueue         string
	EmailMaxAttempts   int
	EmailRatePerSecond float64
	RunEmailWorker     bool
	SendGridAPIKey     string
	MailFrom           string
	MailFromName       string

	LoginRatePerMinute int
	LoginRateBurst     int
	TrustedProxies     string

	SentryDSN string
	AppEnv    string
	LogPath   string
	LogLevel  string
}

// Load reads .env files (when present) and then the environment.
// Variables already set in the environment take precedence over .env.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("loading env files: %w", err)
	}

	cfg := &Config{
		Addr: GetEnvAsString("ADDR", ":8080"),

		DatabaseDriver: GetEnvAsString("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    GetEnvAsString("DATABASE_URL", "stores.sqlite3"),
		DBMaxOpenConns: GetEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns: GetEnvAsInt("DB_MAX_IDLE_CONNS", 5),

		JWTSecret:       os.Getenv("JWT_SECRET_KEY"),
		AccessTokenTTL:  GetEnvAsDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: GetEnvAsDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		AdminUserIDs:    os.Getenv("ADMIN_USER_IDS"),

		RedisURL:          os.Getenv("REDIS_URL"),
		RevocationBackend: strings.ToLower(os.Getenv("REVOCATION_BACKEND")),

		EmailQueue:         GetEnvAsString("EMAIL_QUEUE", "emails"),
		EmailMaxAttempts:   GetEnvAsInt("EMAIL_MAX_ATTEMPTS", 5),
		EmailRatePerSecond: GetEnvAsFloat("EMAIL_RATE_PER_SECOND", 5),
		RunEmailWorker:     GetEnvAsBool("RUN_EMAIL_WORKER", true),
		SendGridAPIKey:     os.Getenv("SENDGRID_API_KEY"),
		MailFrom:           GetEnvAsString("MAIL_FROM", "noreply@example.com"),
		MailFromName:       GetEnvAsString("MAIL_FROM_NAME", "Stores REST API"),

		LoginRatePerMinute: GetEnvAsInt("LOGIN_RATE_PER_MINUTE", 10),
		LoginRateBurst:     GetEnvAsInt("LOGIN_RATE_BURST", 5),
		TrustedProxies:     os.Getenv("TRUSTED_PROXIES"),

		SentryDSN: os.Getenv("SENTRY_DSN"),
		AppEnv:    GetEnvAsString("APP_ENV", "development"),
		LogPath:   os.Getenv("LOG_PATH"),
		LogLevel:  GetEnvAsString("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.DatabaseDriver) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "pgx":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER: unsupported driver %q", c.DatabaseDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL: must not be empty"))
	}

	switch c.RevocationBackend {
	case "", "memory", "sql", "redis":
	default:
		errs = append(errs, fmt.Errorf("REVOCATION_BACKEND: unknown backend %q", c.RevocationBackend))
	}
	if c.RevocationBackend == "redis" && c.RedisURL == "" {
		errs = append(errs, errors.New("REVOCATION_BACKEND: redis requires REDIS_URL"))
	}

	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL: must be positive"))
	}
	if c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL: must be positive"))
	}
	if c.EmailMaxAttempts <= 0 {
		errs = append(errs, errors.New("EMAIL_MAX_ATTEMPTS: must be positive"))
	}
	if c.LoginRatePerMinute < 0 || c.LoginRateBurst < 0 {
		errs = append(errs, errors.New("LOGIN_RATE: must not be negative"))
	}

	return errors.Join(errs...)
}

// GetEnvAsString gets environment variable as string with default value.
func GetEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsInt gets environment variable as int with default value.
func GetEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat gets environment variable as float64 with default value.
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvAsBool gets environment variable as bool with default value.
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvAsDuration gets environment variable as duration with default value.
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
