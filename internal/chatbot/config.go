package chatbot

import "time"

const (
	defaultSalesLimit        = 5
	defaultExtendedLimit     = 5
	defaultHistoryTurns      = 6
	defaultLLMTimeout        = 15 * time.Second
	defaultCatalogTimeout    = 15 * time.Second
	defaultDataCompleteDelay = 1500 * time.Millisecond
	defaultMaxTokens         = 400
	defaultTemperature       = 0.7
	defaultBusinessName      = "Atacado"
)

// Config parameterizes a conversation. The zero value is usable: empty
// fields take the defaults below and the flags are phrased so that false is
// the production behavior.
type Config struct {
	BusinessName    string
	BusinessContext string

	SalesQuestionsLimit    int
	// ExtendedChatDisabled closes the conversation when the sales quota runs
	// out instead of opening the extended chat.
	ExtendedChatDisabled   bool
	ExtendedQuestionsLimit int
	// EmailOptional sends the lead as soon as name and phone are known and
	// lets the visitor skip the e-mail question. By default the conversation
	// stays in collecting_email until an address is given.
	EmailOptional          bool

	HistoryTurns      int
	DataCompleteDelay time.Duration

	Model          string
	MaxTokens      int32
	Temperature    float32
	LLMTimeout     time.Duration
	CatalogTimeout time.Duration

	SalesPrompt    string
	ExtendedPrompt string

	Script     Script
	Extractors Extractors
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BusinessName:           defaultBusinessName,
		SalesQuestionsLimit:    defaultSalesLimit,
		ExtendedQuestionsLimit: defaultExtendedLimit,
		HistoryTurns:           defaultHistoryTurns,
		DataCompleteDelay:      defaultDataCompleteDelay,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.BusinessName == "" {
		c.BusinessName = defaultBusinessName
	}
	if c.BusinessContext == "" {
		c.BusinessContext = "Somos o " + c.BusinessName + ", distribuidora atacadista de alimentos, bebidas, limpeza e higiene. Vendemos para comércios, restaurantes e revendedores, com pedido mínimo e preços por volume."
	}
	if c.SalesQuestionsLimit <= 0 {
		c.SalesQuestionsLimit = defaultSalesLimit
	}
	if c.ExtendedQuestionsLimit <= 0 {
		c.ExtendedQuestionsLimit = defaultExtendedLimit
	}
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = defaultHistoryTurns
	}
	if c.DataCompleteDelay < 0 {
		c.DataCompleteDelay = 0
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = defaultTemperature
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = defaultLLMTimeout
	}
	if c.CatalogTimeout <= 0 {
		c.CatalogTimeout = defaultCatalogTimeout
	}
	if c.SalesPrompt == "" {
		c.SalesPrompt = defaultSalesPrompt
	}
	if c.ExtendedPrompt == "" {
		c.ExtendedPrompt = defaultExtendedPrompt
	}
	c.Script = c.Script.merged()
	c.Extractors = c.Extractors.withDefaults()
	return c
}

const defaultSalesPrompt = `Você é o assistente de vendas da loja. Responda em português do Brasil, em no máximo 3 frases curtas e cordiais.
Fale apenas sobre os produtos listados no catálogo, com os preços exatamente como aparecem.
Se o cliente pedir algo fora do catálogo, diga que a equipe pode verificar a disponibilidade.
Nunca invente produtos, preços, prazos ou promoções. Termine sempre com uma frase completa.`

const defaultExtendedPrompt = `Você é o assistente da loja em uma conversa mais aberta. Responda em português do Brasil, em no máximo 3 frases.
Pode falar sobre formas de pagamento, entrega, horário de atendimento e dúvidas gerais, sempre de forma honesta.
Quando não souber algo, diga que a equipe de vendas vai confirmar pelo telefone informado.
Nunca invente produtos, preços ou condições. Termine sempre com uma frase completa.`
