package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(LoadTenancy),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

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

	Redis     RedisConfig
	Email     EmailConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
	Setup     SetupConfig

	DashboardDomain string
	SeedDemoTenants bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TenantCacheTTL bounds how long a resolved key stays cached.
	TenantCacheTTL time.Duration
	// TenantNegativeTTL bounds how long an unknown key stays cached.
	TenantNegativeTTL time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type RateLimitConfig struct {
	Enabled bool
	// Failed credential attempts allowed per client, refilled per second.
	AuthFailureRate  float64
	AuthFailureBurst int
}

type WorkerConfig struct {
	Concurrency int64
	JobTimeout  time.Duration
}

type SetupConfig struct {
	// TokenHash is an argon2id hash; empty disables the setup token check.
	TokenHash string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "compligenie"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "compligenie"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Redis: RedisConfig{
			Addr:              strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password:          strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:                getenvInt("REDIS_DB", 0),
			TenantCacheTTL:    getenvDuration("TENANT_CACHE_TTL", 5*time.Minute),
			TenantNegativeTTL: getenvDuration("TENANT_CACHE_NEGATIVE_TTL", 30*time.Second),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: strings.TrimSpace(getenv("SMTP_USERNAME", "")),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@compligenie.com"),
		},
		RateLimit: RateLimitConfig{
			Enabled:          getenvBool("RATE_LIMIT_ENABLED", true),
			AuthFailureRate:  getenvFloat("RATE_LIMIT_AUTH_FAILURE_RATE", 0.5),
			AuthFailureBurst: getenvInt("RATE_LIMIT_AUTH_FAILURE_BURST", 20),
		},
		Worker: WorkerConfig{
			Concurrency: int64(getenvInt("WORKER_CONCURRENCY", 8)),
			JobTimeout:  getenvDuration("WORKER_JOB_TIMEOUT", 2*time.Minute),
		},
		Setup: SetupConfig{
			TokenHash: strings.TrimSpace(getenv("SETUP_TOKEN_HASH", "")),
		},
		DashboardDomain: getenv("DASHBOARD_DOMAIN", "compligenie.com"),
	}
	cfg.SeedDemoTenants = getenvBool("SEED_DEMO_TENANTS", !cfg.IsProduction())

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
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

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
