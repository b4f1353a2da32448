package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "change-me-in-production"

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	Database DatabaseConfig
	RedisURL string

	JWT      JWTConfig
	Tokens   TokenConfig
	Workflow WorkflowConfig
	Login    LoginConfig
	Kafka    KafkaConfig
	S3       S3Config

	FrontendURL       string
	AnalyticsCacheTTL time.Duration
}

type DatabaseConfig struct {
	URL           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	RunMigrations bool
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

type TokenConfig struct {
	EmailVerifyTTL   time.Duration
	PasswordResetTTL time.Duration
}

type WorkflowConfig struct {
	ExpiryWindowDays int
	WorkloadCap      int
}

type LoginConfig struct {
	MaxAttempts int
	Lockout     time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UploadURLTTL time.Duration
}

// Enabled reports whether object storage is configured
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// LoadConfig reads .env (if present) and the process environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),
		Database: DatabaseConfig{
			URL:           getEnv("DATABASE_URL", ""),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:   getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			RunMigrations: getEnvBool("RUN_MIGRATIONS", true),
		},
		RedisURL: getEnv("REDIS_URL", ""),
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", defaultJWTSecret),
			TTL:    getEnvDuration("JWT_TTL", 24*time.Hour),
		},
		Tokens: TokenConfig{
			EmailVerifyTTL:   getEnvDuration("EMAIL_VERIFY_TTL", 24*time.Hour),
			PasswordResetTTL: getEnvDuration("PASSWORD_RESET_TTL", time.Hour),
		},
		Workflow: WorkflowConfig{
			ExpiryWindowDays: getEnvInt("EXPIRY_WINDOW_DAYS", 30),
			WorkloadCap:      getEnvInt("WORKLOAD_CAP", 5),
		},
		Login: LoginConfig{
			MaxAttempts: getEnvInt("LOGIN_MAX_ATTEMPTS", 5),
			Lockout:     getEnvDuration("LOGIN_LOCKOUT", 15*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "certtrack.events"),
		},
		S3: S3Config{
			Bucket:       getEnv("S3_BUCKET", ""),
			Region:       getEnv("S3_REGION", "us-east-1"),
			Endpoint:     getEnv("S3_ENDPOINT", ""),
			AccessKey:    getEnv("S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("S3_SECRET_KEY", ""),
			UploadURLTTL: getEnvDuration("UPLOAD_URL_TTL", 15*time.Minute),
		},
		FrontendURL:       strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		AnalyticsCacheTTL: getEnvDuration("ANALYTICS_CACHE_TTL", time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Environment == "production" && c.JWT.Secret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.Workflow.ExpiryWindowDays < 1 {
		return fmt.Errorf("EXPIRY_WINDOW_DAYS must be positive, got %d", c.Workflow.ExpiryWindowDays)
	}
	if c.Workflow.WorkloadCap < 1 {
		return fmt.Errorf("WORKLOAD_CAP must be positive, got %d", c.Workflow.WorkloadCap)
	}
	if c.Tokens.EmailVerifyTTL <= 0 || c.Tokens.PasswordResetTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
