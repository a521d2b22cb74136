package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/pipeline"
	"github.com/opensource-finance/shrike/internal/workflow"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, p *pipeline.Pipeline, machine *workflow.Machine, version string) *Server {
	handler := NewHandler(repo, cache, bus, p, machine, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no actor required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (actor required)
	router.Route("/", func(r chi.Router) {
		r.Use(ActorMiddleware)

		// Intake
		r.Post("/complaints", handler.CreateComplaint)
		r.Post("/ingest", handler.Ingest)

		// Screening intakes
		r.Post("/screening/accounts", handler.ScreenNewAccounts)
		r.Post("/screening/mobiles", handler.ScreenMobiles)

		// Case retrieval
		r.Get("/cases", handler.ListCases)
		r.Get("/cases/{id}", handler.GetCase)
		r.Get("/cases/{id}/history", handler.GetHistory)
		r.Get("/cases/{id}/decision", handler.GetLatestDecision)
		r.Post("/cases/{id}/decision", handler.SaveDecision)
		r.Get("/cases/{id}/assignments", handler.ListAssignments)
		r.Get("/cases/{id}/audit", handler.GetAudit)

		// Workflow transitions
		r.Post("/cases/{id}/assign", handler.Assign)
		r.Post("/cases/{id}/send-back", handler.SendBack)
		r.Post("/cases/{id}/approve", handler.ApproveDepartment)
		r.Post("/cases/{id}/reject", handler.RejectDepartment)
		r.Post("/cases/{id}/reopen", handler.Reopen)

		// Bulk operations
		r.Post("/cases/bulk-close", handler.BulkClose)
		r.Post("/cases/bulk-assign", handler.BulkAssign)

		// Departmental pending edits
		r.Post("/cases/{id}/actions", handler.SaveActionDetail)
		r.Get("/cases/{id}/actions", handler.ListActionDetails)
		r.Post("/cases/{id}/documents", handler.SaveDocument)
		r.Get("/cases/{id}/documents", handler.ListDocuments)
		r.Post("/cases/{id}/templates", handler.SaveTemplateResponse)
		r.Get("/cases/{id}/templates", handler.ListTemplateResponses)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
