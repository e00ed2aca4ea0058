package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// PlaceholderKeyPrefix marks publishable keys shipped in templates that the
// hosted backend rejects.
const PlaceholderKeyPrefix = "sb_publishable_"

const (
	StoreDriverAuto     = "auto"
	StoreDriverREST     = "rest"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Addr               string
	Environment        string
	LogLevel           string
	FrontendDir        string
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseJWTSecret  string
	RecordStoreDriver  string
	DatabaseURL        string
	RunMigrations      bool
	LocalStorePath     string
	LocalStoreKey      string
	BootstrapTimeout   time.Duration
	RequestTimeout     time.Duration
	TokenRefreshMargin time.Duration
	DemoLoginDelay     time.Duration
	DemoRegisterDelay  time.Duration
	IdempotencyTTL     time.Duration
	MaxBodyBytes       int64
	AuthRatePerMinute  int
	MetricsEnabled     bool
}

func Load() Config {
	return Config{
		Addr:               getEnv("APP_ADDR", ":8080"),
		Environment:        getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		FrontendDir:        getEnv("FRONTEND_DIR", "frontend/dist"),
		SupabaseURL:        getEnv("SUPABASE_URL", getEnv("VITE_SUPABASE_URL", "")),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", getEnv("VITE_SUPABASE_ANON_KEY", "")),
		SupabaseJWTSecret:  getEnv("SUPABASE_JWT_SECRET", ""),
		RecordStoreDriver:  strings.ToLower(getEnv("RECORD_STORE_DRIVER", StoreDriverAuto)),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RunMigrations:      getEnvBool("RUN_MIGRATIONS", true),
		LocalStorePath:     getEnv("LOCAL_STORE_PATH", "data/local.db"),
		LocalStoreKey:      getEnv("LOCAL_STORE_KEY", ""),
		BootstrapTimeout:   getEnvDuration("BOOTSTRAP_TIMEOUT", 2*time.Second),
		RequestTimeout:     getEnvDuration("BACKEND_REQUEST_TIMEOUT", 10*time.Second),
		TokenRefreshMargin: getEnvDuration("TOKEN_REFRESH_MARGIN", time.Minute),
		DemoLoginDelay:     getEnvDuration("DEMO_LOGIN_DELAY", 500*time.Millisecond),
		DemoRegisterDelay:  getEnvDuration("DEMO_REGISTER_DELAY", 800*time.Millisecond),
		IdempotencyTTL:     getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		AuthRatePerMinute:  getEnvInt("AUTH_RATE_PER_MINUTE", 20),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
	}
}

// ExternalConfigured reports whether the hosted backend can be used. A missing
// endpoint or key, or a placeholder key, selects LOCAL_FALLBACK.
func (c Config) ExternalConfigured() bool {
	url := strings.TrimSpace(c.SupabaseURL)
	key := strings.TrimSpace(c.SupabaseAnonKey)
	if url == "" || key == "" {
		return false
	}
	return !strings.HasPrefix(key, PlaceholderKeyPrefix)
}

// StoreDriver resolves "auto" to a concrete record store driver.
func (c Config) StoreDriver() string {
	if c.RecordStoreDriver != "" && c.RecordStoreDriver != StoreDriverAuto {
		return c.RecordStoreDriver
	}
	if c.ExternalConfigured() {
		return StoreDriverREST
	}
	return StoreDriverMemory
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Validate() error {
	switch c.StoreDriver() {
	case StoreDriverREST:
		if !c.ExternalConfigured() {
			return fmt.Errorf("RECORD_STORE_DRIVER=rest requires SUPABASE_URL and a real SUPABASE_ANON_KEY")
		}
	case StoreDriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when RECORD_STORE_DRIVER=postgres")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown RECORD_STORE_DRIVER %q", c.RecordStoreDriver)
	}
	if c.BootstrapTimeout <= 0 {
		return fmt.Errorf("BOOTSTRAP_TIMEOUT must be positive")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.AuthRatePerMinute <= 0 {
		return fmt.Errorf("AUTH_RATE_PER_MINUTE must be positive")
	}
	if c.Environment == "production" && c.ExternalConfigured() && strings.TrimSpace(c.SupabaseJWTSecret) == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET must be set in production so access tokens are verified")
	}
	return nil
}
