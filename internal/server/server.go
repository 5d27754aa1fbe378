package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/resume-author/internal/bundles"
	"github.com/jonathan/resume-author/internal/config"
	"github.com/jonathan/resume-author/internal/db"
	"github.com/jonathan/resume-author/internal/events"
	"github.com/jonathan/resume-author/internal/fetch"
	"github.com/jonathan/resume-author/internal/gates"
	"github.com/jonathan/resume-author/internal/llm"
	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/pipeline/stages"
	"github.com/jonathan/resume-author/internal/replan"
	"github.com/jonathan/resume-author/internal/types"
)

// Server is the HTTP front end over the run controller.
type Server struct {
	httpServer *http.Server
	store      db.Store
	bus        *events.Bus
	controller *pipeline.Controller
	trigger    *replan.Trigger
	jwtService *JWTService
	validate   *validator.Validate
	llmClient  llm.Client
}

// New assembles a server from configuration. With no DatabaseURL the agent
// runs entirely in memory; with no APIKey every stage uses its
// deterministic path.
func New(cfg config.Config) (*Server, error) {
	ctx := context.Background()

	var store db.Store
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
		store = database
	} else {
		log.Printf("[server] no DATABASE_URL set, using in-memory store")
		store = db.NewMemStore()
	}

	var llmClient llm.Client
	if cfg.APIKey != "" {
		client, err := llm.NewGeminiClient(ctx, llm.DefaultConfig(), cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		llmClient = client
	}

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}

	policy := bundles.Policy{
		Strategy:    bundles.Strategy(cfg.ReviewStrategy),
		AutoApprove: map[types.BundleKey]bool{},
	}
	if policy.Strategy == "" {
		policy.Strategy = bundles.StrategyGuided
	}
	if cfg.AutoApproveSupporting {
		policy.AutoApprove[types.BundleSupporting] = true
	}

	bus := events.NewBus()
	registry := stages.Registry(stages.Deps{
		LLM:                llmClient,
		Fetcher:            fetch.NewFetcher(cfg.UseBrowser),
		Policy:             policy,
		ReadinessThreshold: cfg.ReadinessThreshold,
	})

	s := &Server{
		store:      store,
		bus:        bus,
		controller: pipeline.NewController(store, bus, gates.NewManager(store, bus), registry),
		trigger:    replan.NewTrigger(store, bus),
		jwtService: NewJWTService(jwtConfig),
		validate:   validator.New(),
		llmClient:  llmClient,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE connections stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler builds the route table. Split out from New so tests can drive the
// mux without a listening socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /runs", s.handleCreateRun)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("GET /runs/{id}", s.runScoped(s.handleGetRun))
	mux.Handle("GET /runs/{id}/events", s.runScoped(s.handleEvents))
	mux.Handle("POST /runs/{id}/gates/{gate_id}", s.runScoped(s.handleSubmitGate))
	mux.Handle("POST /runs/{id}/advance", s.runScoped(s.handleForceAdvance))
	mux.Handle("POST /runs/{id}/benchmark", s.runScoped(s.handleBenchmarkEdit))
	mux.Handle("POST /runs/{id}/restart", s.runScoped(s.handleConfirmRestart))
	mux.Handle("POST /runs/{id}/abort", s.runScoped(s.handleAbort))
	mux.Handle("DELETE /runs/{id}", s.runScoped(s.handleArchiveRun))

	return s.withLogging(s.withCORS(mux))
}

// Start begins listening and blocks until SIGINT/SIGTERM.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if s.llmClient != nil {
		s.llmClient.Close() //nolint:errcheck
	}
	if database, ok := s.store.(*db.DB); ok {
		database.Close()
	}
	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging logs each request
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}
