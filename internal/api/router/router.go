package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/atacado-crm/internal/auth"
	"github.com/wolfman30/atacado-crm/internal/catalog"
	"github.com/wolfman30/atacado-crm/internal/chatlog"
	"github.com/wolfman30/atacado-crm/internal/dashboard"
	httpmiddleware "github.com/wolfman30/atacado-crm/internal/http/middleware"
	"github.com/wolfman30/atacado-crm/internal/leads"
	"github.com/wolfman30/atacado-crm/internal/webchat"
	"github.com/wolfman30/atacado-crm/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes out.
type Config struct {
	Logger             *logging.Logger
	Tokens             *auth.TokenIssuer
	AuthHandler        *auth.Handler
	LeadsHandler       *leads.Handler
	CatalogHandler     *catalog.Handler
	ChatlogHandler     *chatlog.Handler
	DashboardHandler   *dashboard.Handler
	WebchatHandler     *webchat.Handler
	MetricsHandler     http.Handler
	HealthChecks       map[string]HealthCheck
	CORSAllowedOrigins []string

	// Public write endpoints are rate limited per client IP when RateLimitRPS > 0.
	RateLimitRPS   float64
	RateLimitBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	limited := func(h http.Handler) http.Handler { return h }
	if cfg.RateLimitRPS > 0 {
		limited = httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	// Public endpoints (storefront, widget, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.AuthHandler != nil {
			public.With(limited).Post("/auth/login", cfg.AuthHandler.Login)
		}
		if cfg.LeadsHandler != nil {
			public.With(limited).Post("/leads", cfg.LeadsHandler.CreateWebLead)
		}
		if cfg.CatalogHandler != nil {
			public.With(middleware.Compress(5)).Get("/produtos", cfg.CatalogHandler.ListPublic)
		}
		if cfg.WebchatHandler != nil {
			public.Route("/chat", func(chat chi.Router) {
				chat.Get("/widget.js", cfg.WebchatHandler.HandleWidgetJS)
				chat.Get("/ws", cfg.WebchatHandler.HandleWebSocket)
				chat.With(limited).Post("/sessions", cfg.WebchatHandler.CreateSession)
				chat.Get("/sessions/{id}", cfg.WebchatHandler.GetSession)
				chat.With(limited).Post("/sessions/{id}/messages", cfg.WebchatHandler.SendMessage)
				chat.Post("/sessions/{id}/reset", cfg.WebchatHandler.ResetSession)
			})
		}
	})

	// Admin routes (employee JWT)
	if cfg.Tokens != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.Tokens))
			admin.Use(middleware.Compress(5))

			if cfg.AuthHandler != nil {
				admin.Get("/me", cfg.AuthHandler.Me)
			}
			if cfg.DashboardHandler != nil {
				admin.Get("/dashboard", cfg.DashboardHandler.GetOverview)
			}
			if cfg.LeadsHandler != nil {
				admin.Get("/leads", cfg.LeadsHandler.ListLeads)
				admin.Get("/leads/{id}", cfg.LeadsHandler.GetLead)
				admin.Patch("/leads/{id}/status", cfg.LeadsHandler.UpdateStatus)
			}
			if cfg.ChatlogHandler != nil {
				admin.Get("/conversas", cfg.ChatlogHandler.ListBySession)
			}
			if cfg.CatalogHandler != nil {
				admin.Route("/produtos", func(products chi.Router) {
					products.Get("/", cfg.CatalogHandler.ListAdmin)
					products.Get("/{id}", cfg.CatalogHandler.Get)
					products.Group(func(write chi.Router) {
						write.Use(httpmiddleware.RequireRole(auth.RoleAdmin))
						write.Post("/", cfg.CatalogHandler.Create)
						write.Put("/{id}", cfg.CatalogHandler.Update)
						write.Delete("/{id}", cfg.CatalogHandler.Deactivate)
						write.Post("/{id}/imagem", cfg.CatalogHandler.UploadImage)
					})
				})
			}
		})
	}

	return r
}
