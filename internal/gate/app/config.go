package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	BaseURL string // Externally visible origin, used in OAuth redirects and dashboard copy

	UpstreamURL      string  // Required: inference API origin requests are forwarded to
	UpstreamAdminKey string  // Required for key provisioning: admin credential for the key management API
	KeyLimitUSD      float64 // Optional: per-user spend limit applied at key creation (default: 10)
	KeyLimitReset    string  // Optional: spend limit reset period (default: monthly)
	KeyNameTemplate  string  // Optional: upstream key naming scheme, {email} is substituted

	SessionSecret string        // Required: HMAC secret for session tokens
	SessionTTL    time.Duration // Optional: session lifetime (default: 12h)

	OIDCClientID     string // Required for sign-in: OAuth2 client id
	OIDCClientSecret string // Required for sign-in: OAuth2 client secret
	AllowedDomain    string // Optional: restrict sign-in to one email domain

	SystemPrompt    string // Optional: system prompt injected into transformed requests
	CampusPrompt    string // Optional: extra prompt text for campus-mode traffic
	CampusPoolKey   string // Optional: shared upstream key for campus clients; campus mode off when empty
	CampusRanges    string // Optional: comma-separated CIDR ranges counted as on-campus
	TrustedIPHeader string // Optional: edge-injected client IP header (e.g. CF-Connecting-IP)

	DatabaseFile        string        // Optional: path to SQLite registry file (default: ./gate.db)
	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		BaseURL: getEnvOrDefault("GATE_BASE_URL", "http://localhost:8080"),

		UpstreamURL:      getEnvOrDefault("GATE_UPSTREAM_URL", "http://localhost:4000"),
		UpstreamAdminKey: os.Getenv("GATE_UPSTREAM_ADMIN_KEY"),
		KeyLimitUSD:      getEnvFloatOrDefault("GATE_KEY_LIMIT_USD", 10),
		KeyLimitReset:    getEnvOrDefault("GATE_KEY_LIMIT_RESET", "monthly"),
		KeyNameTemplate:  getEnvOrDefault("GATE_KEY_NAME_TEMPLATE", "gate-{email}"),

		SessionSecret: os.Getenv("GATE_SESSION_SECRET"),
		SessionTTL:    getEnvDurationOrDefault("GATE_SESSION_TTL", 12*time.Hour),

		OIDCClientID:     os.Getenv("OIDC_CLIENT_ID"),
		OIDCClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
		AllowedDomain:    os.Getenv("GATE_ALLOWED_DOMAIN"),

		SystemPrompt:    os.Getenv("GATE_SYSTEM_PROMPT"),
		CampusPrompt:    os.Getenv("GATE_CAMPUS_PROMPT"),
		CampusPoolKey:   os.Getenv("GATE_CAMPUS_POOL_KEY"),
		CampusRanges:    os.Getenv("GATE_CAMPUS_RANGES"),
		TrustedIPHeader: os.Getenv("GATE_TRUSTED_IP_HEADER"),

		DatabaseFile:        getEnvOrDefault("GATE_DATABASE_FILE", "gate.db"),
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
		return floatValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
