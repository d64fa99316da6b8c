package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AdminJWTSecret string
	AuthJWTSecret  string

	// Timezone decides which calendar day "today" is and where months begin.
	Timezone string

	// SubscriptionFee must be positive; anything else keeps the default of
	// 150 so a lapsed subscription always carries debt.
	SubscriptionFee           int
	RenewalPeriodDays         int
	// CommissionGraceDays of 0 blocks on overdue commission from the 1st.
	CommissionGraceDays       int
	FirstAvailableHorizonDays int

	BookingLockTTL       time.Duration
	AvailabilityCacheTTL time.Duration
	AccessSweepInterval  time.Duration
	OutboxPollInterval   time.Duration

	CORSAllowedOrigins    []string
	BookingRateLimitRPS   float64
	BookingRateLimitBurst int
}

// Load reads configuration from environment variables. A .env file in the
// working directory is honoured but never overrides variables already set.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		AuthJWTSecret:  getEnv("AUTH_JWT_SECRET", ""),

		Timezone: getEnv("TIMEZONE", "UTC"),

		SubscriptionFee:           getEnvAsInt("SUBSCRIPTION_FEE", 150),
		RenewalPeriodDays:         getEnvAsInt("RENEWAL_PERIOD_DAYS", 30),
		CommissionGraceDays:       getEnvAsInt("COMMISSION_GRACE_DAYS", 5),
		FirstAvailableHorizonDays: getEnvAsInt("FIRST_AVAILABLE_HORIZON_DAYS", 30),

		BookingLockTTL:       getEnvAsDuration("BOOKING_LOCK_TTL", 10*time.Second),
		AvailabilityCacheTTL: getEnvAsDuration("AVAILABILITY_CACHE_TTL", 30*time.Second),
		AccessSweepInterval:  getEnvAsDuration("ACCESS_SWEEP_INTERVAL", time.Hour),
		OutboxPollInterval:   getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),

		CORSAllowedOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS"),
		BookingRateLimitRPS:   getEnvAsFloat("BOOKING_RATE_LIMIT_RPS", 2),
		BookingRateLimitBurst: getEnvAsInt("BOOKING_RATE_LIMIT_BURST", 10),
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || strings.TrimSpace(c.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
