// Command chatsim runs the storefront chatbot in a terminal, with the same
// typing animation the widget shows.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	appbootstrap "github.com/wolfman30/atacado-crm/internal/app/bootstrap"
	"github.com/wolfman30/atacado-crm/internal/catalog"
	"github.com/wolfman30/atacado-crm/internal/chatbot"
	appconfig "github.com/wolfman30/atacado-crm/internal/config"
	"github.com/wolfman30/atacado-crm/internal/leads"
	"github.com/wolfman30/atacado-crm/internal/leadsink"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: "warn", Format: "text", Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, closeLLM, err := appbootstrap.BuildLLMClient(ctx, cfg, appbootstrap.NewAWSLoader(cfg), logger)
	if err != nil {
		log.Fatalf("completion client: %v", err)
	}
	defer closeLLM()

	products := catalog.NewInMemoryRepository(demoCatalog()...)
	leadsRepo := leads.NewInMemoryRepository()
	sink := leadsink.New(leadsink.Options{
		Store:      leadsRepo,
		WebhookURL: cfg.LeadWebhookURL,
		Timeout:    cfg.LeadWebhookTimeout,
		Logger:     logger,
	})
	defer sink.Close()
	dispatcher := chatbot.NewDispatcher(sink, nil, chatbot.DispatcherOptions{Workers: 1, Logger: logger})
	dispatcher.Start()
	defer dispatcher.Close()

	chatCfg := cfg.ChatConfig()
	var typist *chatbot.Typist
	if policy, ok := cfg.TypingPolicy(); ok {
		typist = chatbot.NewTypist(policy, nil)
	}
	registry := chatbot.NewRegistry(chatbot.RegistryOptions{
		Config: chatCfg,
		Session: chatbot.SessionOptions{
			Responder: chatbot.NewResponseSource(chatCfg, client, products, chatbot.SourceOptions{Logger: logger}),
			Typist:    typist,
			Outbox:    dispatcher,
		},
		Logger: logger,
	})

	sim := newSimulator(registry.Create(ctx), os.Stdout, chatCfg.BusinessName, appbootstrap.Location())
	if err := sim.run(ctx, os.Stdin); err != nil {
		log.Fatal(err)
	}

	if list, err := leadsRepo.List(context.Background(), leads.ListLeadsFilter{}); err == nil && len(list) > 0 {
		fmt.Printf("\nleads capturados nesta sessão: %d\n", len(list))
	}
}

// simulator prints session events as a live transcript.
type simulator struct {
	session *chatbot.Session
	out     io.Writer
	botName string
	loc     *time.Location

	mu sync.Mutex
}

func newSimulator(session *chatbot.Session, out io.Writer, botName string, loc *time.Location) *simulator {
	return &simulator{session: session, out: out, botName: botName, loc: loc}
}

const helpText = "comandos: /reset reinicia, /lead mostra os dados, /historico mostra a conversa, /sair encerra"

func (s *simulator) run(ctx context.Context, in io.Reader) error {
	cancel := s.session.Observe(s.onEvent)
	defer cancel()

	fmt.Fprintf(s.out, "%s (%s)\n\n", s.botName, helpText)
	s.session.Initialize(ctx)

	scanner := bufio.NewScanner(in)
	for {
		s.prompt()
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "/sair", "/exit":
			return nil
		case "/reset":
			s.session.Reset(ctx)
			s.session.Initialize(ctx)
			continue
		case "/lead":
			lead := s.session.Lead()
			s.printf("nome=%q telefone=%q email=%q etapa=%s\n", lead.Name, lead.Phone, lead.Email, s.session.Stage())
			continue
		case "/historico":
			s.printf("%s", chatbot.RenderText(s.session.Turns(), s.loc, s.botName))
			continue
		case "/ajuda", "/help":
			s.printf("%s\n", helpText)
			continue
		}

		reply := s.session.SendMessage(ctx, line)
		if reply.Notice != "" {
			s.printf("%s: %s\n", s.botName, reply.Notice)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *simulator) prompt() {
	s.printf("Você: ")
}

func (s *simulator) onEvent(evt chatbot.Event) {
	if evt.Turn == nil || evt.Turn.Sender != chatbot.SenderBot {
		return
	}
	switch evt.Type {
	case chatbot.EventTurnAdded, chatbot.EventTurnUpdated:
		s.printf("\r\033[K%s: %s", s.botName, evt.Turn.Content)
	case chatbot.EventTurnCompleted:
		s.printf("\r\033[K%s: %s\n", s.botName, evt.Turn.Content)
	}
}

func (s *simulator) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func demoCatalog() []catalog.Product {
	now := time.Now().UTC()
	item := func(id, name, category, price, unit string) catalog.Product {
		return catalog.Product{
			ID:        id,
			Name:      name,
			Category:  category,
			Price:     decimal.RequireFromString(price),
			Unit:      unit,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return []catalog.Product{
		item("demo-1", "Arroz Tipo 1 5kg", "Alimentos", "24.90", "fardo com 6"),
		item("demo-2", "Feijão Carioca 1kg", "Alimentos", "7.49", "fardo com 10"),
		item("demo-3", "Óleo de Soja 900ml", "Alimentos", "6.99", "caixa com 20"),
		item("demo-4", "Refrigerante Cola 2L", "Bebidas", "8.50", "fardo com 6"),
		item("demo-5", "Detergente Neutro 500ml", "Limpeza", "2.19", "caixa com 24"),
		item("demo-6", "Papel Higiênico Folha Dupla", "Higiene", "19.90", "pacote com 12"),
	}
}
