package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	UseMemoryStore bool

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Tenant (center) configuration sources
	TenantSource   string
	TenantsJSON    string
	TenantsTable   string
	TenantCacheTTL time.Duration

	SMSProvider                string
	TelnyxAPIKey               string
	TelnyxMessagingProfileID   string
	TelnyxVoiceConnectionID    string
	TelnyxWebhookSecret        string
	TelnyxFromNumber           string
	TelnyxWhatsAppNumber       string
	TelnyxRetryMaxAttempts     int
	TwilioAccountSID           string
	TwilioAuthToken            string
	TwilioFromNumber           string
	AdminJWTSecret             string
	CORSAllowedOrigins         []string
	OperatorRateLimit          float64
	OperatorRateBurst          int
	DefaultResumeURL           string
	DefaultResumeToken         string
	WebhookProcessedStoreRedis bool
	WebhookProcessedTTL        time.Duration

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Resume job execution
	ResumeQueueURL       string
	UseMemoryQueue       bool
	WorkerCount          int
	ResumeMaxAttempts    int
	ResumeRetryBaseDelay time.Duration
	ResumeHTTPTimeout    time.Duration
	ReconcileInterval    time.Duration
	ReconcileStaleAfter  time.Duration

	// Inbound flow routing
	InboundWorkers   int
	InboundQueueSize int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		TenantSource:   strings.ToLower(strings.TrimSpace(getEnv("TENANT_SOURCE", "static"))),
		TenantsJSON:    getEnv("TENANTS_JSON", ""),
		TenantsTable:   getEnv("TENANTS_TABLE", "notification_tenants"),
		TenantCacheTTL: getEnvAsDuration("TENANT_CACHE_TTL", 5*time.Minute),

		SMSProvider:                strings.ToLower(strings.TrimSpace(getEnv("SMS_PROVIDER", "auto"))),
		TelnyxAPIKey:               getEnv("TELNYX_API_KEY", ""),
		TelnyxMessagingProfileID:   getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		TelnyxVoiceConnectionID:    getEnv("TELNYX_VOICE_CONNECTION_ID", ""),
		TelnyxWebhookSecret:        getEnv("TELNYX_WEBHOOK_SECRET", ""),
		TelnyxFromNumber:           getEnv("TELNYX_FROM_NUMBER", ""),
		TelnyxWhatsAppNumber:       getEnv("TELNYX_WHATSAPP_NUMBER", ""),
		TelnyxRetryMaxAttempts:     getEnvAsInt("TELNYX_RETRY_MAX_ATTEMPTS", 2),
		TwilioAccountSID:           getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:            getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:           getEnv("TWILIO_FROM_NUMBER", ""),
		AdminJWTSecret:             getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins:         getEnvAsList("CORS_ALLOWED_ORIGINS"),
		OperatorRateLimit:          getEnvAsFloat("OPERATOR_RATE_LIMIT", 10),
		OperatorRateBurst:          getEnvAsInt("OPERATOR_RATE_BURST", 20),
		DefaultResumeURL:           getEnv("DEFAULT_RESUME_URL", ""),
		DefaultResumeToken:         getEnv("DEFAULT_RESUME_TOKEN", ""),
		WebhookProcessedStoreRedis: getEnvAsBool("WEBHOOK_DEDUPE_REDIS", false),
		WebhookProcessedTTL:        getEnvAsDuration("WEBHOOK_DEDUPE_TTL", 72*time.Hour),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ResumeQueueURL:       getEnv("RESUME_QUEUE_URL", ""),
		UseMemoryQueue:       getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 2),
		ResumeMaxAttempts:    getEnvAsInt("RESUME_MAX_ATTEMPTS", 5),
		ResumeRetryBaseDelay: getEnvAsDuration("RESUME_RETRY_BASE_DELAY", 30*time.Second),
		ResumeHTTPTimeout:    getEnvAsDuration("RESUME_HTTP_TIMEOUT", 10*time.Second),
		ReconcileInterval:    getEnvAsDuration("RECONCILE_INTERVAL", time.Minute),
		ReconcileStaleAfter:  getEnvAsDuration("RECONCILE_STALE_AFTER", 10*time.Minute),

		InboundWorkers:   getEnvAsInt("INBOUND_WORKERS", 4),
		InboundQueueSize: getEnvAsInt("INBOUND_QUEUE_SIZE", 64),
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
