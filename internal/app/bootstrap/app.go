package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/atacado-crm/cmd/mainconfig"
	"github.com/wolfman30/atacado-crm/internal/api/router"
	"github.com/wolfman30/atacado-crm/internal/auth"
	"github.com/wolfman30/atacado-crm/internal/catalog"
	"github.com/wolfman30/atacado-crm/internal/chatbot"
	"github.com/wolfman30/atacado-crm/internal/chatlog"
	appconfig "github.com/wolfman30/atacado-crm/internal/config"
	"github.com/wolfman30/atacado-crm/internal/dashboard"
	"github.com/wolfman30/atacado-crm/internal/events"
	"github.com/wolfman30/atacado-crm/internal/leads"
	"github.com/wolfman30/atacado-crm/internal/leadsink"
	"github.com/wolfman30/atacado-crm/internal/llm"
	"github.com/wolfman30/atacado-crm/internal/notify"
	"github.com/wolfman30/atacado-crm/internal/observability/metrics"
	"github.com/wolfman30/atacado-crm/internal/webchat"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

// Infra holds the external connections an App runs on. Every field is
// optional: without Postgres the repositories are in memory, without Redis
// chat sessions only live in this process.
type Infra struct {
	Pool  *pgxpool.Pool
	DB    *sql.DB
	Redis *redis.Client
	LLM   llm.Client
	Email notify.EmailSender
	// S3 enables product image uploads when a bucket is configured.
	S3 catalog.S3API
}

// BuildInfra connects to everything the config points at. The returned
// cleanup releases them in reverse order and is never nil.
func BuildInfra(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (Infra, func(), error) {
	var infra Infra
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	if cfg == nil {
		return infra, cleanup, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	pool, db, err := BuildPostgres(ctx, cfg, logger)
	if err != nil {
		return infra, cleanup, err
	}
	if pool != nil {
		infra.Pool, infra.DB = pool, db
		cleanups = append(cleanups, pool.Close, func() { _ = db.Close() })
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory repositories")
	}

	if client := BuildRedisClient(ctx, cfg, logger, true); client != nil {
		infra.Redis = client
		cleanups = append(cleanups, func() { _ = client.Close() })
	}

	loadAWS := NewAWSLoader(cfg)
	client, closeLLM, err := BuildLLMClient(ctx, cfg, loadAWS, logger)
	if err != nil {
		cleanup()
		return Infra{}, func() {}, err
	}
	infra.LLM = client
	cleanups = append(cleanups, closeLLM)

	sender, provider, reason := BuildEmailSender(ctx, cfg, loadAWS, logger)
	infra.Email = sender
	if reason != "" {
		logger.Warn("lead e-mails use the stub sender", "preference", cfg.EmailProvider, "reason", reason)
	} else {
		logger.Info("lead e-mail sender initialized", "provider", provider)
	}

	if strings.TrimSpace(cfg.ProductImagesBucket) != "" {
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			logger.Warn("product image uploads disabled", "error", err)
		} else {
			infra.S3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
				o.UsePathStyle = mainconfig.UsePathStyle(cfg)
			})
		}
	}
	return infra, cleanup, nil
}

// App is the assembled service: an HTTP handler plus the background
// workers feeding it.
type App struct {
	Handler  http.Handler
	Registry *chatbot.Registry
	Metrics  *metrics.ChatMetrics

	cfg        *appconfig.Config
	logger     *logging.Logger
	dispatcher *chatbot.Dispatcher
	deliverer  *events.Deliverer
	sink       *leadsink.Sink

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Location is the time zone used to render chat times and lead e-mails.
func Location() *time.Location {
	if loc, err := time.LoadLocation("America/Sao_Paulo"); err == nil {
		return loc
	}
	return time.FixedZone("BRT", -3*60*60)
}

// BuildApp assembles repositories, the chat runtime and the router on top
// of infra.
func BuildApp(ctx context.Context, cfg *appconfig.Config, infra Infra, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	loc := Location()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	chatMetrics := metrics.NewChatMetrics(reg)

	var (
		leadsRepo   leads.Repository
		catalogRepo catalog.Repository
		chatlogRepo chatlog.Repository
		usersRepo   auth.UserRepository
	)
	if infra.Pool != nil {
		leadsRepo = leads.NewPostgresRepository(infra.Pool)
		catalogRepo = catalog.NewPostgresRepository(infra.Pool)
		chatlogRepo = chatlog.NewPostgresRepository(infra.Pool)
		usersRepo = auth.NewPostgresUserRepository(infra.Pool)
	} else {
		leadsRepo = leads.NewInMemoryRepository()
		catalogRepo = catalog.NewInMemoryRepository()
		chatlogRepo = chatlog.NewInMemoryRepository()
		usersRepo = auth.NewInMemoryUserRepository()
	}

	sink := leadsink.New(leadsink.Options{
		Store:      leadsRepo,
		WebhookURL: cfg.LeadWebhookURL,
		Timeout:    cfg.LeadWebhookTimeout,
		Logger:     logger,
		Metrics:    chatMetrics,
	})
	mentions := chatlog.NewMentionExtractor(catalogRepo, chatlog.DefaultKeywords, cfg.CatalogTimeout, logger)
	recorder := chatlog.NewRecorder(chatlogRepo, mentions, logger, chatMetrics)
	dispatcher := chatbot.NewDispatcher(sink, recorder, chatbot.DispatcherOptions{
		Workers: cfg.ChatWorkers,
		Logger:  logger,
	})

	chatCfg := cfg.ChatConfig()
	eventLog := chatbot.NewEventLogger(logger)
	var typist *chatbot.Typist
	if policy, ok := cfg.TypingPolicy(); ok {
		typist = chatbot.NewTypist(policy, nil)
	}
	registry := chatbot.NewRegistry(chatbot.RegistryOptions{
		Config: chatCfg,
		Session: chatbot.SessionOptions{
			Responder: chatbot.NewResponseSource(chatCfg, infra.LLM, catalogRepo, chatbot.SourceOptions{
				Logger:  logger,
				Events:  eventLog,
				Metrics: chatMetrics,
			}),
			Typist: typist,
			Outbox: dispatcher,
			Events: eventLog,
		},
		Store:   BuildSnapshotStore(infra.Redis, cfg.ChatSessionTTL),
		IdleTTL: cfg.ChatSessionTTL,
		Logger:  logger,
		Metrics: chatMetrics,
	})

	routerCfg := &router.Config{
		Logger:             logger,
		LeadsHandler:       leads.NewHandler(leadsRepo, logger),
		CatalogHandler:     catalog.NewHandler(catalogRepo, catalog.NewImageStore(infra.S3, cfg.ProductImagesBucket, cfg.AWSRegion, cfg.ProductImagesBaseURL), logger),
		ChatlogHandler:     chatlog.NewHandler(chatlogRepo, logger),
		WebchatHandler:     webchat.NewHandler(registry, loc, nil, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		HealthChecks:       healthChecks(infra),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	}
	if infra.DB != nil {
		routerCfg.DashboardHandler = dashboard.NewHandler(infra.DB, logger)
	}
	if strings.TrimSpace(cfg.AdminJWTSecret) != "" {
		tokens := auth.NewTokenIssuer(cfg.AdminJWTSecret, cfg.AdminTokenTTL)
		authService := auth.NewService(usersRepo, tokens, logger)
		if err := authService.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return nil, fmt.Errorf("bootstrap: seed admin: %w", err)
		}
		routerCfg.Tokens = tokens
		routerCfg.AuthHandler = auth.NewHandler(authService, logger)
	} else {
		logger.Warn("ADMIN_JWT_SECRET not set; admin API disabled")
	}

	app := &App{
		Handler:    router.New(routerCfg),
		Registry:   registry,
		Metrics:    chatMetrics,
		cfg:        cfg,
		logger:     logger,
		dispatcher: dispatcher,
		sink:       sink,
	}

	if infra.Pool != nil {
		notifier := notify.NewService(notify.Options{
			Email:        infra.Email,
			Processed:    events.NewProcessedStore(infra.Pool),
			Recipients:   notify.ParseRecipients(cfg.LeadNotifyEmail),
			BusinessName: chatCfg.BusinessName,
			Location:     loc,
			Logger:       logger,
		})
		mux := events.NewMux().Register(events.TypeLeadCaptured, notifier)
		app.deliverer = events.NewDeliverer(events.NewOutboxStore(infra.Pool), mux, logger).
			WithInterval(cfg.OutboxInterval).
			WithMetrics(chatMetrics)
	}
	return app, nil
}

func healthChecks(infra Infra) map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if infra.Pool != nil {
		checks["postgres"] = func(ctx context.Context) error { return infra.Pool.Ping(ctx) }
	}
	if infra.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return infra.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Start launches the background workers: the chat outbox dispatcher, the
// idle-session sweeper and, with Postgres, the event outbox deliverer.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.dispatcher.Start()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Registry.Run(ctx, time.Minute)
	}()

	if a.deliverer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.deliverer.Start(ctx)
		}()
	}
}

// Shutdown stops the workers and waits for queued leads to be delivered,
// bounded by ctx.
func (a *App) Shutdown(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.dispatcher.Close()
		a.wg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("bootstrap: shutdown: %w", ctx.Err()))
	}
	if err := a.sink.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
