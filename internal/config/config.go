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
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Remote booking API
	BookingAPIBaseURL    string
	BookingAPIKey        string
	BookingAPITimeout    time.Duration
	BookingSubmitTimeout time.Duration

	// Wizard behaviour
	AvailabilityHorizonDays int
	DefaultTimezone         string
	ServiceStepOptional     bool

	// Sessions
	SessionStore  string
	SessionTTL    time.Duration
	SessionSecret string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Submission audit trail; disabled when empty
	DatabaseURL string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	LookupMaxPerHour   int

	// Bearer token for /metrics; open when empty
	MetricsToken string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment
// variables always win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		BookingAPIBaseURL:    strings.TrimRight(getEnv("BOOKING_API_BASE_URL", "http://localhost:4000"), "/"),
		BookingAPIKey:        getEnv("BOOKING_API_KEY", ""),
		BookingAPITimeout:    getEnvAsDuration("BOOKING_API_TIMEOUT", 15*time.Second),
		BookingSubmitTimeout: getEnvAsDuration("BOOKING_SUBMIT_TIMEOUT", 20*time.Second),

		AvailabilityHorizonDays: getEnvAsInt("AVAILABILITY_HORIZON_DAYS", 60),
		DefaultTimezone:         getEnv("DEFAULT_TIMEZONE", "America/New_York"),
		ServiceStepOptional:     getEnvAsBool("SERVICE_STEP_OPTIONAL", false),

		SessionStore:  strings.ToLower(strings.TrimSpace(getEnv("SESSION_STORE", "memory"))),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 2*time.Hour),
		SessionSecret: getEnv("SESSION_SECRET", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
		LookupMaxPerHour:   getEnvAsInt("LOOKUP_MAX_PER_HOUR", 10),

		MetricsToken: getEnv("METRICS_TOKEN", ""),
	}
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
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
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
