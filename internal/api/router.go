package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/crewdeck/crewdeck/internal/apikeys"
	"github.com/crewdeck/crewdeck/internal/api/handlers"
	"github.com/crewdeck/crewdeck/internal/api/middleware"
	"github.com/crewdeck/crewdeck/internal/auth"
	"github.com/crewdeck/crewdeck/internal/cache"
	"github.com/crewdeck/crewdeck/internal/config"
	"github.com/crewdeck/crewdeck/internal/hub"
	"github.com/crewdeck/crewdeck/internal/message"
	"github.com/crewdeck/crewdeck/internal/presence"
	"github.com/crewdeck/crewdeck/internal/queue"
	"github.com/crewdeck/crewdeck/internal/users"
	"github.com/crewdeck/crewdeck/internal/workspace"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
	hub   *hub.Hub
	queue *queue.Client
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, h *hub.Hub, q *queue.Client) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
		hub:   h,
		queue: q,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Services
	store := auth.NewPgStore(rt.db)
	var effects auth.SideEffects = auth.NopSideEffects{}
	if rt.queue != nil {
		effects = rt.queue
	}
	resolver := auth.NewResolver(store, rt.cfg.Auth.JWTSecret, effects)
	authMW := auth.NewMiddleware(resolver, rt.cfg.Auth)

	workspaceSvc := workspace.NewService(rt.db, cache.NewCache(rt.redis))
	messageSvc := message.NewService(message.NewPgRepository(rt.db), rt.hub, workspaceSvc)
	keysSvc := apikeys.NewService(rt.db)
	usersSvc := users.NewService(rt.db)
	presenceRepo := presence.NewPgRepository(rt.db)

	authH := handlers.NewAuthHandler(usersSvc, rt.cfg.Auth.JWTSecret)
	userKeysH := handlers.NewUserKeysHandler(keysSvc)
	workspaceH := handlers.NewWorkspaceHandler(workspaceSvc, messageSvc, keysSvc, presenceRepo)
	mcpH := handlers.NewMCPHandler(messageSvc)
	wsH := handlers.NewWSHandler(rt.hub, resolver, store)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authH.Register)
			r.Post("/login", authH.Login)
			r.Post("/refresh", authH.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(authMW.RequireUser)
				r.Get("/me", authH.Me)
				r.Patch("/me", authH.UpdateMe)
				r.Post("/change-password", authH.ChangePassword)
			})
		})

		r.Route("/users/me/api-keys", func(r chi.Router) {
			r.Use(authMW.RequireUser)
			r.Post("/", userKeysH.Create)
			r.Get("/", userKeysH.List)
			r.Delete("/{id}", userKeysH.Revoke)
			r.Post("/{id}/regenerate", userKeysH.Regenerate)
		})

		r.Route("/workspaces", func(r chi.Router) {
			r.Use(authMW.RequireUser)
			r.Post("/", workspaceH.Create)
			r.Get("/", workspaceH.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", workspaceH.Get)
				r.Patch("/", workspaceH.Update)
				r.Delete("/", workspaceH.Delete)

				r.Post("/api-keys", workspaceH.CreateKey)
				r.Get("/api-keys", workspaceH.ListKeys)
				r.Delete("/api-keys/{keyID}", workspaceH.RevokeKey)

				r.Get("/messages", workspaceH.ListMessages)
				r.Post("/messages", workspaceH.PostMessage)

				r.Get("/agent-status", workspaceH.AgentStatus)
			})
		})

		// Agent surface, API-key authenticated
		r.Route("/mcp", func(r chi.Router) {
			r.Use(authMW.RequireAgent)
			r.Get("/auth/verify", mcpH.Verify)
			r.Get("/workspace", mcpH.Workspace)
			r.Post("/messages", mcpH.PostMessage)
			r.Get("/messages", mcpH.ListMessages)
			r.Post("/messages/acknowledge", mcpH.Acknowledge)
		})

		// Websocket authenticates inside the handler: the token rides
		// the query string, and auth failures come back as close codes.
		r.Get("/ws/workspaces/{id}", wsH.Serve)
	})

	return r
}
