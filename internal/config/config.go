package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	LogFormat          string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Employee authentication
	AdminJWTSecret string
	AdminTokenTTL  time.Duration
	// Seeded on startup when no user with AdminEmail exists.
	AdminName     string
	AdminEmail    string
	AdminPassword string

	// Completion endpoint
	LLMProvider         string
	LLMFallbackProvider string
	LLMAPIKey           string
	LLMBaseURL          string
	LLMModel            string
	LLMMaxTokens        int
	LLMTemperature      float64
	LLMTimeout          time.Duration
	BedrockModelID      string
	GeminiAPIKey        string
	GeminiModelID       string

	// Lead automation webhook
	LeadWebhookURL     string
	LeadWebhookTimeout time.Duration

	// Chat behaviour
	BusinessName          string
	BusinessContext       string
	ChatSalesLimit        int
	ChatExtendedEnabled   bool
	ChatExtendedLimit     int
	ChatRequireEmail      bool
	ChatHistoryTurns      int
	ChatTypingDelay       time.Duration
	ChatDataCompleteDelay time.Duration
	ChatSessionTTL        time.Duration
	ChatWorkers           int
	CatalogTimeout        time.Duration

	// AWS
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	ProductImagesBucket  string
	ProductImagesBaseURL string

	// Staff notifications
	EmailProvider   string
	SendGridAPIKey  string
	EmailFrom       string
	EmailFromName   string
	LeadNotifyEmail string
	SESConfigSet    string
	OutboxInterval  time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		AdminTokenTTL:  getEnvAsDuration("ADMIN_TOKEN_TTL", 12*time.Hour),
		AdminName:      getEnv("ADMIN_NAME", "Administrador"),
		AdminEmail:     strings.TrimSpace(getEnv("ADMIN_EMAIL", "")),
		AdminPassword:  getEnv("ADMIN_PASSWORD", ""),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		LLMAPIKey:           getEnv("LLM_API_KEY", ""),
		LLMBaseURL:          getEnv("LLM_BASE_URL", ""),
		LLMModel:            getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:        getEnvAsInt("LLM_MAX_TOKENS", 400),
		LLMTemperature:      getEnvAsFloat("LLM_TEMPERATURE", 0.7),
		LLMTimeout:          getEnvAsDuration("LLM_TIMEOUT", 15*time.Second),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:       getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		LeadWebhookURL:     getEnv("LEAD_WEBHOOK_URL", ""),
		LeadWebhookTimeout: getEnvAsDuration("LEAD_WEBHOOK_TIMEOUT", 10*time.Second),

		BusinessName:          getEnv("BUSINESS_NAME", "Atacadão do Cerrado"),
		BusinessContext:       getEnv("BUSINESS_CONTEXT", ""),
		ChatSalesLimit:        getEnvAsInt("CHAT_SALES_LIMIT", 5),
		ChatExtendedEnabled:   getEnvAsBool("CHAT_EXTENDED_ENABLED", true),
		ChatExtendedLimit:     getEnvAsInt("CHAT_EXTENDED_LIMIT", 5),
		ChatRequireEmail:      getEnvAsBool("CHAT_REQUIRE_EMAIL", true),
		ChatHistoryTurns:      getEnvAsInt("CHAT_HISTORY_TURNS", 6),
		ChatTypingDelay:       getEnvAsDuration("CHAT_TYPING_DELAY", 25*time.Millisecond),
		ChatDataCompleteDelay: getEnvAsDuration("CHAT_DATA_COMPLETE_DELAY", 1500*time.Millisecond),
		ChatSessionTTL:        getEnvAsDuration("CHAT_SESSION_TTL", 2*time.Hour),
		ChatWorkers:           getEnvAsInt("CHAT_WORKERS", 2),
		CatalogTimeout:        getEnvAsDuration("CATALOG_TIMEOUT", 15*time.Second),

		AWSRegion:            getEnv("AWS_REGION", "sa-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ProductImagesBucket:  getEnv("PRODUCT_IMAGES_BUCKET", ""),
		ProductImagesBaseURL: getEnv("PRODUCT_IMAGES_BASE_URL", ""),

		EmailProvider:   strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:  getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:       getEnv("EMAIL_FROM", ""),
		EmailFromName:   getEnv("EMAIL_FROM_NAME", "Atacado CRM"),
		LeadNotifyEmail: getEnv("LEAD_NOTIFY_EMAIL", ""),
		SESConfigSet:    getEnv("SES_CONFIGURATION_SET", ""),
		OutboxInterval:  getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
	}
}

// IsProduction reports whether the service runs with production settings.
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

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
