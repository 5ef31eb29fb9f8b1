package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Alerting AlertingConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string // CIDR ranges allowed to set forwarding headers
}

type AuthConfig struct {
	SigningSecret        string
	AccessTokenExpiry    time.Duration
	RefreshTokenExpiry   time.Duration // default session length
	RememberMeExpiry     time.Duration // session length with remember-me
	BcryptCost           int
	HashWorkers          int // bounded pool for bcrypt work
	LockoutThreshold     int
	LockoutWindow        time.Duration
	LockoutDuration      time.Duration
	CleanupInterval      time.Duration
	CookieSecure         bool // derived from Env unless overridden
	TwoFactorIssuer      string
}

type AlertingConfig struct {
	SentryDSN string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	secret := getEnv("AUTH_SIGNING_SECRET", "")
	if secret == "" {
		return nil, fmt.Errorf("AUTH_SIGNING_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "authcore"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseCSVEnv("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			SigningSecret:      secret,
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			RememberMeExpiry:   getEnvAsDuration("REMEMBER_ME_EXPIRY", 30*24*time.Hour),
			BcryptCost:         getEnvAsInt("BCRYPT_COST", 12),
			HashWorkers:        getEnvAsInt("HASH_WORKERS", 8),
			LockoutThreshold:   getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutWindow:      getEnvAsDuration("LOCKOUT_WINDOW", 15*time.Minute),
			LockoutDuration:    getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			CleanupInterval:    getEnvAsDuration("SESSION_CLEANUP_INTERVAL", 1*time.Hour),
			CookieSecure:       getEnvAsBool("COOKIE_SECURE", env == "production"),
			TwoFactorIssuer:    getEnv("TWO_FACTOR_ISSUER", "fairlines"),
		},
		Alerting: AlertingConfig{
			SentryDSN: getEnv("SENTRY_DSN", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateSigningSecret(secret, env); err != nil {
		return nil, err
	}

	if cfg.Auth.LockoutThreshold < 1 {
		return nil, fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1")
	}
	if cfg.Auth.HashWorkers < 1 {
		return nil, fmt.Errorf("HASH_WORKERS must be at least 1")
	}

	return cfg, nil
}

// validateSigningSecret enforces minimum strength for the token secret
func validateSigningSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("AUTH_SIGNING_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("AUTH_SIGNING_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}

func parseCSVEnv(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
