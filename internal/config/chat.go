package config

import (
	"github.com/wolfman30/atacado-crm/internal/chatbot"
)

// ChatConfig maps the chat environment onto the conversation config.
// Zero values fall back to the chatbot defaults.
func (c *Config) ChatConfig() chatbot.Config {
	cfg := chatbot.DefaultConfig()
	if c == nil {
		return cfg
	}
	if c.BusinessName != "" {
		cfg.BusinessName = c.BusinessName
		// Default context mentions the business name, so rebuild it.
		cfg.BusinessContext = ""
	}
	if c.BusinessContext != "" {
		cfg.BusinessContext = c.BusinessContext
	}
	cfg.SalesQuestionsLimit = c.ChatSalesLimit
	cfg.ExtendedChatDisabled = !c.ChatExtendedEnabled
	cfg.ExtendedQuestionsLimit = c.ChatExtendedLimit
	cfg.EmailOptional = !c.ChatRequireEmail
	cfg.HistoryTurns = c.ChatHistoryTurns
	cfg.DataCompleteDelay = c.ChatDataCompleteDelay
	cfg.Model = c.LLMModel
	cfg.MaxTokens = int32(c.LLMMaxTokens)
	cfg.Temperature = float32(c.LLMTemperature)
	cfg.LLMTimeout = c.LLMTimeout
	cfg.CatalogTimeout = c.CatalogTimeout
	return cfg
}

// TypingPolicy returns the pacing of the typing animation. A zero delay
// disables it.
func (c *Config) TypingPolicy() (chatbot.TypingPolicy, bool) {
	if c == nil || c.ChatTypingDelay <= 0 {
		return chatbot.TypingPolicy{}, false
	}
	return chatbot.DefaultTypingPolicy(c.ChatTypingDelay), true
}
