package chatbot

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/atacado-crm/internal/catalog"
	"github.com/wolfman30/atacado-crm/internal/llm"
	"github.com/wolfman30/atacado-crm/internal/observability/metrics"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

var tracer = otel.Tracer("atacado.internal.chatbot")

// CatalogReader returns the products currently on sale.
type CatalogReader interface {
	ListActive(ctx context.Context) ([]catalog.Product, error)
}

// ResponseKind records where a reply came from.
type ResponseKind string

const (
	ResponseScripted  ResponseKind = "script"
	ResponseGenerated ResponseKind = "llm"
	ResponseFallback  ResponseKind = "fallback"
)

// Request is the input to a Responder.
type Request struct {
	SessionID string
	Stage     Stage
	// Script forces a scripted table. When empty the stage decides.
	Script  ScriptKey
	Message string
	Lead    LeadRecord
	History []Turn
}

// Response is the produced reply. Text is never empty.
type Response struct {
	Text string
	Kind ResponseKind
}

// Responder produces the bot's reply for a turn. Implementations never fail:
// problems degrade to a fallback text.
type Responder interface {
	Respond(ctx context.Context, req Request) Response
}

// SourceOptions carries optional collaborators for NewResponseSource.
type SourceOptions struct {
	Logger  *logging.Logger
	Events  *EventLogger
	Metrics *metrics.ChatMetrics
	Rand    *rand.Rand
}

// ResponseSource answers scripted stages from the Script tables and sales
// stages through the completion client, grounded on the live catalog.
type ResponseSource struct {
	cfg     Config
	client  llm.Client
	catalog CatalogReader
	logger  *logging.Logger
	events  *EventLogger
	metrics *metrics.ChatMetrics

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewResponseSource(cfg Config, client llm.Client, products CatalogReader, opts SourceOptions) *ResponseSource {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &ResponseSource{
		cfg:     cfg.withDefaults(),
		client:  client,
		catalog: products,
		logger:  opts.Logger,
		events:  opts.Events,
		metrics: opts.Metrics,
		rnd:     opts.Rand,
	}
}

func (s *ResponseSource) Respond(ctx context.Context, req Request) Response {
	if req.Script == "" && req.Stage.Generative() {
		return s.generate(ctx, req)
	}
	key := req.Script
	if key == "" {
		key = scriptKeyFor(req.Stage)
	}
	return Response{Text: s.scripted(key, req.Lead), Kind: ResponseScripted}
}

func scriptKeyFor(stage Stage) ScriptKey {
	switch stage {
	case StageGreeting:
		return ScriptWelcome
	case StageCollectingName:
		return ScriptAskName
	case StageCollectingPhone:
		return ScriptAskPhone
	case StageCollectingEmail:
		return ScriptAskEmail
	case StageDataComplete:
		return ScriptDataComplete
	case StageClosing:
		return ScriptClosing
	}
	return ScriptFallback
}

func (s *ResponseSource) scripted(key ScriptKey, lead LeadRecord) string {
	templates := s.cfg.Script[key]
	if len(templates) == 0 {
		templates = s.cfg.Script[ScriptFallback]
	}
	s.mu.Lock()
	template := templates[s.rnd.IntN(len(templates))]
	s.mu.Unlock()
	return interpolate(template, lead, s.cfg.BusinessName)
}

func (s *ResponseSource) generate(ctx context.Context, req Request) Response {
	ctx, span := tracer.Start(ctx, "chatbot.generate")
	defer span.End()
	span.SetAttributes(attribute.String("chat.stage", string(req.Stage)))

	if s.client == nil {
		return s.fallback(ctx, req, errors.New("no completion client configured"), 0)
	}

	products := s.loadCatalog(ctx, req.SessionID)
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	started := time.Now()
	resp, err := s.client.Complete(callCtx, llm.Request{
		Model:       s.cfg.Model,
		System:      s.systemPrompt(req, products),
		Messages:    buildMessages(req.History, s.cfg.HistoryTurns, req.Message),
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	elapsed := time.Since(started)
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = llm.ErrEmptyCompletion
	}
	if err != nil {
		span.RecordError(err)
		return s.fallback(ctx, req, err, elapsed)
	}

	text := strings.TrimSpace(resp.Text)
	outcome := "ok"
	if reason := incompleteReason(text); reason != "" {
		outcome = "suspicious"
		s.events.ResponseSuspicious(ctx, req.SessionID, req.Stage, reason, tail(text, 40))
	}
	text = ensureTerminal(text)

	if len(products) == 0 && currencyPattern.MatchString(text) {
		s.events.PriceGuardApplied(ctx, req.SessionID, req.Stage)
		text = s.scripted(ScriptPriceDeferral, req.Lead)
	}
	s.metrics.ObserveLLM(outcome, elapsed)
	return Response{Text: text, Kind: ResponseGenerated}
}

func (s *ResponseSource) fallback(ctx context.Context, req Request, err error, elapsed time.Duration) Response {
	reason := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	s.logger.Warn("completion failed, using fallback reply",
		"session_id", req.SessionID,
		"stage", req.Stage,
		"error", err.Error(),
	)
	s.events.LLMFallback(ctx, req.SessionID, req.Stage, reason)
	s.metrics.ObserveLLM("fallback", elapsed)
	return Response{Text: s.scripted(ScriptFallback, req.Lead), Kind: ResponseFallback}
}

// loadCatalog fetches the active products on every call. Failures count as
// an empty catalog.
func (s *ResponseSource) loadCatalog(ctx context.Context, sessionID string) []catalog.Product {
	if s.catalog == nil {
		return nil
	}
	ctx, span := tracer.Start(ctx, "chatbot.catalog")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.CatalogTimeout)
	defer cancel()
	products, err := s.catalog.ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("catalog fetch failed, answering without products",
			"session_id", sessionID,
			"error", err.Error(),
		)
		return nil
	}
	span.SetAttributes(attribute.Int("catalog.products", len(products)))
	return products
}

const emptyCatalogInstruction = `O catálogo de produtos não está disponível neste momento.
NÃO cite nomes de produtos, preços, valores em reais ou promoções.
Se o cliente perguntar preço ou disponibilidade, diga que a equipe de vendas vai informar pelo telefone cadastrado.`

func (s *ResponseSource) systemPrompt(req Request, products []catalog.Product) []string {
	stagePrompt := s.cfg.SalesPrompt
	if req.Stage == StageExtendedChat {
		stagePrompt = s.cfg.ExtendedPrompt
	}
	parts := []string{s.cfg.BusinessContext, stagePrompt}

	if len(products) == 0 {
		parts = append(parts, emptyCatalogInstruction)
	} else {
		var b strings.Builder
		b.WriteString("Catálogo atual (somente estes produtos existem):\n")
		for _, p := range products {
			fmt.Fprintf(&b, "- %s", p.Name)
			if p.Category != "" {
				fmt.Fprintf(&b, " [%s]", p.Category)
			}
			fmt.Fprintf(&b, ": %s", p.PriceLabel())
			if p.Unit != "" {
				fmt.Fprintf(&b, " por %s", p.Unit)
			}
			if p.Description != "" {
				fmt.Fprintf(&b, " (%s)", p.Description)
			}
			b.WriteByte('\n')
		}
		parts = append(parts, strings.TrimSpace(b.String()))
	}

	if name := req.Lead.FirstName(); name != "" {
		parts = append(parts, "O cliente se chama "+name+". Trate-o pelo nome quando fizer sentido.")
	}
	return parts
}

// buildMessages keeps the last limit finished turns and appends the new message.
func buildMessages(history []Turn, limit int, message string) []llm.Message {
	finished := make([]Turn, 0, len(history))
	for _, turn := range history {
		if turn.IsTyping || strings.TrimSpace(turn.Content) == "" {
			continue
		}
		finished = append(finished, turn)
	}
	if limit > 0 && len(finished) > limit {
		finished = finished[len(finished)-limit:]
	}

	messages := make([]llm.Message, 0, len(finished)+1)
	for _, turn := range finished {
		role := llm.RoleUser
		if turn.Sender == SenderBot {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: message})
}

var currencyPattern = regexp.MustCompile(`(?i)(?:R?\$\s*\d)|(?:\b\d+(?:[.,]\d+)?\s*(?:reais|real|centavos)\b)`)

const minCompleteLength = 12

// incompleteReason flags replies that look truncated. An empty result means
// the reply looks complete.
func incompleteReason(text string) string {
	if utf8.RuneCountInString(text) < minCompleteLength {
		return "too_short"
	}
	last, _ := utf8.DecodeLastRuneInString(strings.TrimRight(text, "\ufe0f\u200d "))
	switch {
	case isTerminal(last) || isEmoji(last):
		return ""
	case unicode.IsLetter(last) || unicode.IsDigit(last):
		return "ends_mid_word"
	default:
		return "no_terminal_punctuation"
	}
}

// ensureTerminal guarantees the reply ends with terminal punctuation. A
// closing emoji is accepted as an ending.
func ensureTerminal(text string) string {
	trimmed := strings.TrimRight(text, " \t\n")
	last, _ := utf8.DecodeLastRuneInString(strings.TrimRight(trimmed, "\ufe0f\u200d"))
	if isTerminal(last) || isEmoji(last) {
		return trimmed
	}
	return strings.TrimRight(trimmed, ",;:- ") + "."
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func isEmoji(r rune) bool {
	return (r >= 0x1F300 && r <= 0x1FAFF) || (r >= 0x2600 && r <= 0x27BF)
}

func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
