package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Redis     RedisConfig
	Email     EmailConfig
	Lockout   LockoutConfig
	RateLimit ResetRateLimitConfig
	Reset     ResetTokenConfig
	Device    DeviceConfig
	Risk      RiskConfig
	Audit     AuditConfig
	Cleanup   CleanupConfig
	Timing    TimingConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int `validate:"gte=1,lte=65535"`
	User              string
	Password          string `validate:"required"`
	Name              string
	SSLMode           string
	MaxConns          int32 `validate:"gte=1"`
	MinConns          int32 `validate:"gte=0"`
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string `validate:"oneof=development test staging production"`
	LogLevel       string `validate:"oneof=debug info warn error"`
	AdminAPIKey    string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	// Requests per minute per IP on the public security endpoints
	PublicRequestsPerMinute int `validate:"gte=1"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EmailConfig struct {
	Enabled      bool
	AWSRegion    string
	FromAddress  string
	ResetURLBase string
}

// LockoutConfig maps lockout.* options
type LockoutConfig struct {
	Enabled           bool
	MaxFailedAttempts int           `validate:"gte=1"`
	Window            time.Duration `validate:"gt=0"`
	Duration          time.Duration `validate:"gt=0"`
}

// ResetRateLimitConfig maps resetRateLimit.* options
type ResetRateLimitConfig struct {
	Backend  string        `validate:"oneof=postgres redis"`
	EmailMax int           `validate:"gte=1"`
	IPMax    int           `validate:"gte=1"`
	Window   time.Duration `validate:"gt=0"`
}

// ResetTokenConfig maps resetToken.* options
type ResetTokenConfig struct {
	TTL time.Duration `validate:"gt=0"`
}

// DeviceConfig maps device.* options
type DeviceConfig struct {
	InactivityDays int `validate:"gte=1"`
}

type RiskConfig struct {
	ResolverURL      string
	ResolverTimeout  time.Duration `validate:"gt=0"`
	UnusualHourStart int           `validate:"gte=0,lte=23"`
	UnusualHourEnd   int           `validate:"gte=0,lte=24"`
	FailureLookback  time.Duration `validate:"gt=0"`
	FailureThreshold int           `validate:"gte=1"`
	NewAccountAge    time.Duration `validate:"gt=0"`
	HistoryLookback  time.Duration `validate:"gt=0"`
}

type AuditConfig struct {
	RuleCap  int `validate:"gte=1"`
	TotalCap int `validate:"gte=1"`
	MaxScan  int `validate:"gte=1"`
}

type CleanupConfig struct {
	Interval time.Duration `validate:"gt=0"`
}

// TimingConfig pads login and reset-request responses
type TimingConfig struct {
	Base   time.Duration `validate:"gte=0"`
	Jitter time.Duration `validate:"gte=0"`
}

var validate = validator.New()

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "sentinel"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:                    getEnv("PORT", "8080"),
			Env:                     env,
			LogLevel:                strings.ToLower(getEnv("LOG_LEVEL", "info")),
			AdminAPIKey:             getEnv("ADMIN_API_KEY", ""),
			TrustedProxies:          parseList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:             getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:            getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:             getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			PublicRequestsPerMinute: getEnvAsInt("PUBLIC_REQUESTS_PER_MINUTE", 20),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Email: EmailConfig{
			Enabled:      getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			FromAddress:  getEnv("EMAIL_FROM_ADDRESS", "security@example.com"),
			ResetURLBase: getEnv("RESET_URL_BASE", "http://localhost:3000"),
		},
		Lockout: LockoutConfig{
			Enabled:           getEnvAsBool("LOCKOUT_ENABLED", true),
			MaxFailedAttempts: getEnvAsInt("LOCKOUT_MAX_FAILED_ATTEMPTS", 5),
			Window:            getEnvAsDuration("LOCKOUT_WINDOW", 15*time.Minute),
			Duration:          getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
		},
		RateLimit: ResetRateLimitConfig{
			Backend:  strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "postgres")),
			EmailMax: getEnvAsInt("RESET_RATE_LIMIT_EMAIL_MAX", 3),
			IPMax:    getEnvAsInt("RESET_RATE_LIMIT_IP_MAX", 5),
			Window:   getEnvAsDuration("RESET_RATE_LIMIT_WINDOW", 1*time.Hour),
		},
		Reset: ResetTokenConfig{
			TTL: getEnvAsDuration("RESET_TOKEN_TTL", 60*time.Minute),
		},
		Device: DeviceConfig{
			InactivityDays: getEnvAsInt("DEVICE_INACTIVITY_DAYS", 90),
		},
		Risk: RiskConfig{
			ResolverURL:      getEnv("GEO_RESOLVER_URL", "http://ip-api.com/json/%s?fields=status,country,countryCode,city,proxy,hosting"),
			ResolverTimeout:  getEnvAsDuration("RISK_RESOLVER_TIMEOUT", 3*time.Second),
			UnusualHourStart: getEnvAsInt("RISK_UNUSUAL_HOUR_START", 2),
			UnusualHourEnd:   getEnvAsInt("RISK_UNUSUAL_HOUR_END", 6),
			FailureLookback:  getEnvAsDuration("RISK_FAILURE_LOOKBACK", 7*24*time.Hour),
			FailureThreshold: getEnvAsInt("RISK_FAILURE_THRESHOLD", 3),
			NewAccountAge:    getEnvAsDuration("RISK_NEW_ACCOUNT_AGE", 7*24*time.Hour),
			HistoryLookback:  getEnvAsDuration("RISK_HISTORY_LOOKBACK", 90*24*time.Hour),
		},
		Audit: AuditConfig{
			RuleCap:  getEnvAsInt("AUDIT_RULE_CAP", 100),
			TotalCap: getEnvAsInt("AUDIT_TOTAL_CAP", 500),
			MaxScan:  getEnvAsInt("AUDIT_MAX_SCAN", 10000),
		},
		Cleanup: CleanupConfig{
			Interval: getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Timing: TimingConfig{
			Base:   getEnvAsDuration("TIMING_DELAY_BASE", 250*time.Millisecond),
			Jitter: getEnvAsDuration("TIMING_DELAY_JITTER", 100*time.Millisecond),
		},
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Risk.UnusualHourStart >= cfg.Risk.UnusualHourEnd {
		return nil, fmt.Errorf("RISK_UNUSUAL_HOUR_START must be before RISK_UNUSUAL_HOUR_END")
	}

	if env == "production" && len(cfg.Server.AdminAPIKey) < 32 {
		return nil, fmt.Errorf("ADMIN_API_KEY must be at least 32 characters in production")
	}

	return cfg, nil
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

func parseList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
