package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	LogFormat     string
	DatabaseURL   string

	// Session signing
	SessionSecret   string
	SessionMaxAge   time.Duration
	ResetSessionTTL time.Duration
	SecureCookies   bool

	// Redis (password-reset session store)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// Endotools Clinical API Configuration
	EndotoolsBaseURL string
	EndotoolsAuthKey string
	EndotoolsTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		SessionSecret:   getEnv("SESSION_SECRET", ""),
		SessionMaxAge:   getEnvAsDuration("SESSION_MAX_AGE", 2*time.Hour),
		ResetSessionTTL: getEnvAsDuration("RESET_SESSION_TTL", 10*time.Minute),
		SecureCookies:   getEnvAsBool("SECURE_COOKIES", false),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		// SendGrid Email Configuration
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "ZENO Portal"),

		// Endotools Clinical API Configuration
		EndotoolsBaseURL: getEnv("ENDOTOOLS_BASE_URL", ""),
		EndotoolsAuthKey: getEnv("ENDOTOOLS_KEY", ""),
		EndotoolsTimeout: getEnvAsDuration("ENDOTOOLS_TIMEOUT", 30*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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
