package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/agentdesk/internal/admin"
	"github.com/wolfman30/agentdesk/internal/agents"
	"github.com/wolfman30/agentdesk/internal/auth"
	"github.com/wolfman30/agentdesk/internal/conversation"
	"github.com/wolfman30/agentdesk/internal/handoff"
	httpmiddleware "github.com/wolfman30/agentdesk/internal/http/middleware"
	"github.com/wolfman30/agentdesk/internal/leads"
	"github.com/wolfman30/agentdesk/internal/notify"
	"github.com/wolfman30/agentdesk/internal/usage"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger      *logging.Logger
	TokenParser httpmiddleware.TokenParser

	AuthHandler         *auth.Handler
	AgentsHandler       *agents.Handler
	ConversationHandler *conversation.Handler
	HandoffHandler      *handoff.Handler
	LeadsHandler        *leads.Handler
	NotifyHandler       *notify.Handler
	AdminHandler        *admin.Handler
	UsageHandler        *usage.Handler

	MetricsHandler     http.Handler
	HealthChecks       map[string]HealthCheck
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	health := HealthHandler(cfg.HealthChecks, 2*time.Second)
	r.Get("/health", health)
	r.Get("/api/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		// Public
		api.Group(func(public chi.Router) {
			if cfg.RateLimiter != nil {
				public.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			}
			public.Post("/auth/login", cfg.AuthHandler.Login)
		})

		// Authenticated; rate limited per user
		api.Group(func(private chi.Router) {
			private.Use(httpmiddleware.RequireUser(cfg.TokenParser))
			if cfg.RateLimiter != nil {
				private.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			}

			private.Get("/auth/me", cfg.AuthHandler.Me)

			private.Route("/agents", func(r chi.Router) {
				r.Get("/", cfg.AgentsHandler.List)
				r.Post("/", cfg.AgentsHandler.Create)
				r.Post("/create", cfg.AgentsHandler.CreateMultipart)
				r.Get("/{id}", cfg.AgentsHandler.Get)
			})

			private.Post("/chat", cfg.ConversationHandler.Chat)
			private.Get("/qualification/jobs/{id}", cfg.ConversationHandler.GetJob)
			private.Route("/conversations", func(r chi.Router) {
				r.Get("/", cfg.ConversationHandler.List)
				r.Get("/{id}", cfg.ConversationHandler.Get)
				r.Post("/{id}/messages", cfg.ConversationHandler.PostMessage)
				r.Post("/{id}/request-handoff", cfg.HandoffHandler.RequestHandoff)
				r.Post("/{id}/accept-handoff", cfg.HandoffHandler.AcceptHandoff)
				r.Post("/{id}/transfer-to-ai", cfg.HandoffHandler.TransferToAI)
			})
			private.Get("/handoffs", cfg.HandoffHandler.List)

			private.Route("/leads", func(r chi.Router) {
				r.Get("/", cfg.LeadsHandler.List)
				r.Get("/{id}", cfg.LeadsHandler.Get)
			})

			private.Route("/notifications", func(r chi.Router) {
				r.Get("/", cfg.NotifyHandler.List)
				r.Post("/read-all", cfg.NotifyHandler.MarkAllRead)
				r.Post("/{id}/read", cfg.NotifyHandler.MarkRead)
				r.Get("/preferences", cfg.NotifyHandler.GetPreferences)
				r.Put("/preferences", cfg.NotifyHandler.UpdatePreferences)
				r.Post("/test", cfg.NotifyHandler.SendTest)
				r.Get("/stream", cfg.NotifyHandler.Stream)
				r.Get("/ws", cfg.NotifyHandler.WebSocket)
			})

			private.Route("/admin", func(r chi.Router) {
				r.Use(httpmiddleware.RequireRole(auth.RoleOwner, auth.RoleAdmin))
				r.Get("/users", cfg.AdminHandler.ListUsers)
				r.Get("/team/members", cfg.AdminHandler.ListTeamMembers)
				r.Get("/stats", cfg.AdminHandler.Stats)
				if cfg.UsageHandler != nil {
					r.Get("/usage", cfg.UsageHandler.Summary)
				}
			})
		})
	})

	return r
}
