package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("CHAT_SALES_LIMIT", "")
	t.Setenv("LLM_TIMEOUT", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.ChatSalesLimit != 5 {
		t.Fatalf("expected default sales limit 5, got %d", cfg.ChatSalesLimit)
	}
	if !cfg.ChatRequireEmail {
		t.Fatalf("expected email to be required by default")
	}
	if cfg.LLMTimeout != 15*time.Second {
		t.Fatalf("expected 15s completion timeout, got %s", cfg.LLMTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("expected wildcard cors default, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.IsProduction() {
		t.Fatalf("development config must not report production")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("LLM_PROVIDER", " Bedrock ")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("CHAT_SALES_LIMIT", "3")
	t.Setenv("CHAT_EXTENDED_ENABLED", "false")
	t.Setenv("CHAT_REQUIRE_EMAIL", "false")
	t.Setenv("CHAT_TYPING_DELAY", "0s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://loja.example.com, ,https://admin.example.com")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.LLMProvider != "bedrock" {
		t.Fatalf("expected normalized provider, got %q", cfg.LLMProvider)
	}
	if cfg.LLMTemperature != 0.2 {
		t.Fatalf("expected temperature override, got %v", cfg.LLMTemperature)
	}
	if cfg.ChatSalesLimit != 3 || cfg.ChatExtendedEnabled || cfg.ChatRequireEmail {
		t.Fatalf("unexpected chat overrides: %+v", cfg)
	}
	if cfg.ChatTypingDelay != 0 {
		t.Fatalf("expected typing delay disabled, got %s", cfg.ChatTypingDelay)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CHAT_SALES_LIMIT", "five")
	t.Setenv("LLM_TIMEOUT", "soon")
	t.Setenv("REDIS_TLS", "maybe")
	cfg := Load()
	if cfg.ChatSalesLimit != 5 {
		t.Fatalf("expected fallback sales limit, got %d", cfg.ChatSalesLimit)
	}
	if cfg.LLMTimeout != 15*time.Second {
		t.Fatalf("expected fallback timeout, got %s", cfg.LLMTimeout)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis tls default false")
	}
}

func TestChatConfigMapsEnvironment(t *testing.T) {
	cfg := &Config{
		BusinessName:          "Atacadão do Cerrado",
		ChatSalesLimit:        3,
		ChatExtendedEnabled:   false,
		ChatExtendedLimit:     2,
		ChatRequireEmail:      false,
		ChatHistoryTurns:      4,
		ChatDataCompleteDelay: 0,
		LLMModel:              "gpt-4o-mini",
		LLMMaxTokens:          300,
		LLMTemperature:        0.3,
		LLMTimeout:            5 * time.Second,
		CatalogTimeout:        2 * time.Second,
	}
	chat := cfg.ChatConfig()
	if chat.BusinessName != "Atacadão do Cerrado" || chat.BusinessContext != "" {
		t.Fatalf("expected business name override with rebuilt context, got %q / %q", chat.BusinessName, chat.BusinessContext)
	}
	if chat.SalesQuestionsLimit != 3 || !chat.ExtendedChatDisabled || chat.ExtendedQuestionsLimit != 2 {
		t.Fatalf("unexpected limits: %+v", chat)
	}
	if !chat.EmailOptional {
		t.Fatalf("expected optional email")
	}
	if chat.MaxTokens != 300 || chat.LLMTimeout != 5*time.Second || chat.CatalogTimeout != 2*time.Second {
		t.Fatalf("unexpected completion settings: %+v", chat)
	}
	if chat.DataCompleteDelay != 0 {
		t.Fatalf("expected no data-complete pause, got %s", chat.DataCompleteDelay)
	}
}

func TestTypingPolicy(t *testing.T) {
	if _, ok := (&Config{}).TypingPolicy(); ok {
		t.Fatalf("expected zero delay to disable typing")
	}
	policy, ok := (&Config{ChatTypingDelay: 10 * time.Millisecond}).TypingPolicy()
	if !ok || policy.CharDelay != 10*time.Millisecond || policy.SentencePause != 120*time.Millisecond {
		t.Fatalf("unexpected policy: %+v", policy)
	}
}
