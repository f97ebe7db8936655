package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Backend base URLs
	APIBaseURL       string
	SocialServiceURL string
	VideoServiceURL  string
	UpstreamTimeout  time.Duration

	// Session cookies
	SessionCookieName    string
	IDPSessionCookieName string
	SessionCookieSecure  bool
	SessionCookieTTL     time.Duration

	// PhonePe Configuration
	PhonePeMerchantID  string
	PhonePeSaltKey     string
	PhonePeSaltIndex   string
	PhonePeEnv         string
	PhonePeBaseURL     string
	PhonePeRedirectURL string
	PhonePeCallbackURL string

	// Payment velocity limits
	PaymentMaxInitiations int
	PaymentWindow         time.Duration
	PaymentMaxRefunds     int

	DefaultConsultationFee float64

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		APIBaseURL:       getEnv("API_BASE_URL", getEnv("NEXT_PUBLIC_API_BASE_URL", "http://localhost:8081")),
		SocialServiceURL: getEnv("SOCIAL_SERVICE_URL", "http://localhost:8082"),
		VideoServiceURL:  getEnv("VIDEO_SERVICE_URL", getEnv("BACKEND_URL", "http://localhost:8083")),
		UpstreamTimeout:  getEnvAsDuration("UPSTREAM_TIMEOUT", 30*time.Second),

		SessionCookieName:    getEnv("SESSION_COOKIE_NAME", "auth_token"),
		IDPSessionCookieName: getEnv("IDP_SESSION_COOKIE_NAME", "idp.session-token"),
		SessionCookieSecure:  getEnvAsBool("SESSION_COOKIE_SECURE", true),
		SessionCookieTTL:     getEnvAsDuration("SESSION_COOKIE_TTL", 7*24*time.Hour),

		PhonePeMerchantID:  getEnv("PHONEPE_MERCHANT_ID", ""),
		PhonePeSaltKey:     getEnv("PHONEPE_SALT_KEY", ""),
		PhonePeSaltIndex:   getEnv("PHONEPE_SALT_INDEX", "1"),
		PhonePeEnv:         strings.ToUpper(strings.TrimSpace(getEnv("PHONEPE_ENV", ""))),
		PhonePeBaseURL:     getEnv("PHONEPE_BASE_URL", ""),
		PhonePeRedirectURL: getEnv("PHONEPE_REDIRECT_URL", ""),
		PhonePeCallbackURL: getEnv("PHONEPE_CALLBACK_URL", ""),

		PaymentMaxInitiations: getEnvAsInt("PAYMENT_MAX_INITIATIONS", 5),
		PaymentWindow:         getEnvAsDuration("PAYMENT_WINDOW", time.Hour),
		PaymentMaxRefunds:     getEnvAsInt("PAYMENT_MAX_REFUNDS", 1),

		DefaultConsultationFee: getEnvAsFloat("DEFAULT_CONSULTATION_FEE", 500),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
	}
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

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
