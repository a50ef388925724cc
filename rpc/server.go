package rpc

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custodia/core"
	"custodia/gateway/auth"
	"custodia/gateway/middleware"
	"custodia/storage"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Node          *core.Node
	Store         *storage.Storage
	Authenticator *auth.Authenticator
	RateLimit     middleware.RateLimit
	Logger        *slog.Logger
}

// Server exposes the settlement node over HTTP. Every mutating route runs as
// the ledger address bound to the authenticated API credential.
type Server struct {
	node   *core.Node
	store  *storage.Storage
	auth   *auth.Authenticator
	logger *slog.Logger

	router http.Handler
}

// New constructs a configured HTTP router with authentication and rate
// limiting applied to the API surface.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		node:   cfg.Node,
		store:  cfg.Store,
		auth:   cfg.Authenticator,
		logger: logger,
	}
	srv.router = srv.buildRouter(cfg.RateLimit)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(limit middleware.RateLimit) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.NewRateLimiter(limit, s.logger).Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.authenticate)

		api.Post("/config/init", s.handleInitializeConfig)
		api.Get("/config", s.handleGetConfig)

		api.Post("/arbiters", s.handleAddArbiter)
		api.Get("/arbiters/{address}", s.handleGetArbiter)
		api.Delete("/arbiters/{address}", s.handleRemoveArbiter)

		api.Post("/escrows", s.handleCreateEscrow)
		api.Get("/escrows/{id}", s.handleGetEscrow)
		api.Post("/escrows/{id}/release", s.handleRelease)
		api.Post("/escrows/{id}/cancel", s.handleCancel)
		api.Post("/escrows/{id}/dispute", s.handleDispute)
		api.Post("/escrows/{id}/refund", s.handleRefund)
		api.Post("/escrows/{id}/resolve", s.handleResolve)

		api.Post("/reputation/init", s.handleInitializeReputation)
		api.Get("/reputation/{address}", s.handleGetReputation)
		api.Post("/reputation/{address}", s.handleUpdateReputation)

		api.Post("/fees/withdraw", s.handleWithdrawFees)

		api.Get("/accounts/{address}/balance", s.handleGetBalance)
		api.Get("/events", s.handleListEvents)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
