package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	DefaultOrgID int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string

	HTTPAddr string

	Queue     QueueConfig
	Payment   PaymentConfig
	Push      PushConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
	Telemetry TelemetryConfig
}

// TelemetryConfig controls the optional billing telemetry exporter. When
// disabled nothing is gathered or sent.
type TelemetryConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// QueueConfig tunes the notification queue poller.
type QueueConfig struct {
	PollInterval  time.Duration
	ClaimBatch    int
	Workers       int
	ClaimTimeout  time.Duration
	MaxErrorCount int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
}

// PaymentConfig carries the payment retry schedule: day offsets indexed by
// failed attempt count. An attempt past the end of the list is terminal.
type PaymentConfig struct {
	RetryDays []int

	Provider       string
	GatewayBaseURL string
	GatewayAPIKey  string
}

// PushConfig bounds outbound push notification delivery.
type PushConfig struct {
	Timeout     time.Duration
	MaxAttempts int
}

// EmailConfig configures the outbound SMTP relay for dunning mail. When
// disabled, deliveries become logged no-ops.
type EmailConfig struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// RateLimitConfig bounds usage ingestion. Disabled limiters admit everything.
type RateLimitConfig struct {
	Enabled bool
	RedisDB int

	IngestOrgRate      float64
	IngestOrgBurst     int
	IngestAccountRate  float64
	IngestAccountBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "duno"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		DefaultOrgID: getenvInt64("DEFAULT_ORG", 0),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		Queue: QueueConfig{
			PollInterval:  getenvDuration("QUEUE_POLL_INTERVAL", 3*time.Second),
			ClaimBatch:    getenvInt("QUEUE_CLAIM_BATCH", 100),
			Workers:       getenvInt("QUEUE_WORKERS", 8),
			ClaimTimeout:  getenvDuration("QUEUE_CLAIM_TIMEOUT", 2*time.Second),
			MaxErrorCount: getenvInt("QUEUE_MAX_ERROR_COUNT", 5),
			BackoffBase:   getenvDuration("QUEUE_BACKOFF_BASE", 30*time.Second),
			BackoffCap:    getenvDuration("QUEUE_BACKOFF_CAP", 30*time.Minute),
		},
		Payment: PaymentConfig{
			RetryDays:      parseRetryDays(getenv("PAYMENT_RETRY_DAYS", "8,8,8")),
			Provider:       getenv("PAYMENT_PROVIDER", "external"),
			GatewayBaseURL: getenv("PAYMENT_GATEWAY_BASE_URL", "http://localhost:9099"),
			GatewayAPIKey:  getenv("PAYMENT_GATEWAY_API_KEY", ""),
		},
		Push: PushConfig{
			Timeout:     getenvDuration("PUSH_TIMEOUT", 10*time.Second),
			MaxAttempts: getenvInt("PUSH_MAX_ATTEMPTS", 3),
		},
		Email: EmailConfig{
			Enabled:      getenv("EMAIL_ENABLED", "false") == "true",
			SMTPHost:     getenv("EMAIL_SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("EMAIL_SMTP_PORT", 587),
			SMTPUsername: getenv("EMAIL_SMTP_USERNAME", ""),
			SMTPPassword: getenv("EMAIL_SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("EMAIL_SMTP_FROM", "billing@localhost"),
		},
		Telemetry: TelemetryConfig{
			Enabled:   getenv("TELEMETRY_ENABLED", "false") == "true",
			Exporter:  getenv("TELEMETRY_EXPORTER", "prometheus_remote_write"),
			Endpoint:  getenv("TELEMETRY_ENDPOINT", ""),
			AuthToken: getenv("TELEMETRY_AUTH_TOKEN", ""),
			Interval:  getenvDuration("TELEMETRY_INTERVAL", 15*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:            getenv("RATE_LIMIT_ENABLED", "false") == "true",
			RedisDB:            getenvInt("RATE_LIMIT_REDIS_DB", 0),
			IngestOrgRate:      getenvFloat("RATE_LIMIT_INGEST_ORG_RATE", 200),
			IngestOrgBurst:     getenvInt("RATE_LIMIT_INGEST_ORG_BURST", 400),
			IngestAccountRate:  getenvFloat("RATE_LIMIT_INGEST_ACCOUNT_RATE", 20),
			IngestAccountBurst: getenvInt("RATE_LIMIT_INGEST_ACCOUNT_BURST", 40),
		},
	}

	return cfg
}

// Module wires application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewCollectionsConfigHolder),
)

func parseRetryDays(raw string) []int {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		days, err := strconv.Atoi(p)
		if err != nil || days <= 0 {
			continue
		}
		out = append(out, days)
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
