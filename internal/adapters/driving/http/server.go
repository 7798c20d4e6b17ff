package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/ingest-core/internal/adapters/driven/auth"
	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driving"
	"github.com/custodia-labs/ingest-core/internal/core/services"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string

	// Services
	jobs        driving.JobService
	search      driving.SearchService
	authService driving.AuthService
	bridge      *services.Bridge
	meter       *services.Meter

	// Infrastructure
	limiter  driven.RateLimiter
	quotas   *domain.QuotaTable
	blobs    driven.BlobStore
	embedder driven.EmbeddingService

	internalTokens *auth.Adapter

	defaultIndex    string
	uploadContainer string
	requiredConfig  map[string]string
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string

	// DefaultIndex is the search index used when requests omit one
	DefaultIndex string

	// UploadContainer receives multipart uploads before extraction
	UploadContainer string

	// RequiredConfig maps external-service setting names to their values;
	// the health endpoint reports degraded while any are empty
	RequiredConfig map[string]string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		DefaultIndex:    "default-index",
		UploadContainer: "uploads",
	}
}

// Dependencies bundles everything the server needs
type Dependencies struct {
	Jobs        driving.JobService
	Search      driving.SearchService
	AuthService driving.AuthService
	Bridge      *services.Bridge
	Meter       *services.Meter

	Limiter  driven.RateLimiter
	Quotas   *domain.QuotaTable
	Blobs    driven.BlobStore
	Embedder driven.EmbeddingService

	// InternalTokens guards the operator surface; nil leaves it open
	InternalTokens *auth.Adapter
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies) *Server {
	if cfg.DefaultIndex == "" {
		cfg.DefaultIndex = "default-index"
	}
	if cfg.UploadContainer == "" {
		cfg.UploadContainer = "uploads"
	}
	if deps.Quotas == nil {
		deps.Quotas = domain.DefaultQuotaTable()
	}

	s := &Server{
		router:          http.NewServeMux(),
		version:         cfg.Version,
		jobs:            deps.Jobs,
		search:          deps.Search,
		authService:     deps.AuthService,
		bridge:          deps.Bridge,
		meter:           deps.Meter,
		limiter:         deps.Limiter,
		quotas:          deps.Quotas,
		blobs:           deps.Blobs,
		embedder:        deps.Embedder,
		internalTokens:  deps.InternalTokens,
		defaultIndex:    cfg.DefaultIndex,
		uploadContainer: cfg.UploadContainer,
		requiredConfig:  cfg.RequiredConfig,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Create middleware
	recovery := NewRecoveryMiddleware()
	logging := NewLoggingMiddleware()
	apiKey := NewAPIKeyMiddleware(s.authService)
	rateLimit := NewRateLimitMiddleware(s.limiter, s.quotas)
	metering := NewMeteringMiddleware(s.meter)
	internal := NewInternalAuthMiddleware(s.internalTokens)

	base := func(h http.Handler) http.Handler {
		return recovery.Handler(logging.Handler(h))
	}
	// Gated chain: authenticate, then admit, then meter. 401s consume no
	// quota; 429s leave no usage record.
	gated := func(h http.HandlerFunc) http.Handler {
		return base(apiKey.Authenticate(rateLimit.Handler(metering.Handler(h))))
	}
	operator := func(h http.HandlerFunc) http.Handler {
		return base(internal.Handler(h))
	}

	// Metadata endpoints (no auth)
	s.router.Handle("GET /api/v1/health", base(http.HandlerFunc(s.handleHealth)))
	s.router.Handle("GET /api/v1/info", base(http.HandlerFunc(s.handleInfo)))

	// Internal operator surface
	s.router.Handle("GET /status", operator(s.handleStatusAll))
	s.router.Handle("GET /status/{id}", operator(s.handleStatusByID))
	s.router.Handle("POST /index", operator(s.handleIndex))
	s.router.Handle("GET /search", base(http.HandlerFunc(s.handleSearch)))
	s.router.Handle("POST /events/storage", operator(s.handleStorageEvent))

	// Public API v1 (API-key gated)
	s.router.Handle("POST /api/v1/document/extract", gated(s.handleExtract))
	s.router.Handle("POST /api/v1/text/chunk", gated(s.handleChunk))
	s.router.Handle("POST /api/v1/embeddings/generate", gated(s.handleEmbeddings))
	s.router.Handle("POST /api/v1/pipeline/process", gated(s.handlePipelineProcess))
	s.router.Handle("GET /api/v1/jobs/{job_id}", gated(s.handleJobStatus))
	s.router.Handle("GET /api/v1/search", gated(s.handleSearch))
}

// Handler exposes the routed handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server with graceful shutdown
func (s *Server) Start() error {
	// Channel to listen for OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-stop
	log.Println("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
