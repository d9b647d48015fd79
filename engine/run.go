// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

// Package engine is the Claude Engine's request pipeline: an
// authenticating, policy-enforcing reverse proxy in front of the Anthropic
// Messages API. Every request flows through authentication, sensitive-data
// scanning, budget enforcement, model routing, and audit preparation before
// it reaches the upstream, and settles its usage and audit ledgers after
// the response closes.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/dynamo-works/claude-engine/alerts"
	"github.com/dynamo-works/claude-engine/apikeys"
	"github.com/dynamo-works/claude-engine/audit"
	"github.com/dynamo-works/claude-engine/budget"
	"github.com/dynamo-works/claude-engine/catalog"
	"github.com/dynamo-works/claude-engine/config"
	"github.com/dynamo-works/claude-engine/engine/upstream"
	"github.com/dynamo-works/claude-engine/shared/logger"
	"github.com/dynamo-works/claude-engine/storage"
)

// Version is the engine release identifier
const Version = "1.4.0"

// shutdownGrace is how long in-flight requests get to drain before the
// process exits anyway
const shutdownGrace = 10 * time.Second

// Server wires the pipeline stages to their services
type Server struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *storage.DB
	apiKeys  *apikeys.Service
	budget   *budget.Service
	audit    *audit.Service
	alerts   alerts.Publisher
	upstream *upstream.Client

	startTime time.Time
}

// NewServer constructs a Server from already-initialized collaborators.
// Tests inject fakes here; Run builds the real set.
func NewServer(cfg *config.Config, db *storage.DB, budgetCache *budget.Cache,
	alertPublisher alerts.Publisher, upstreamClient *upstream.Client) *Server {
	return &Server{
		cfg:       cfg,
		log:       logger.New("engine"),
		db:        db,
		apiKeys:   apikeys.NewService(db),
		budget:    budget.NewService(db, budgetCache),
		audit:     audit.NewService(db),
		alerts:    alertPublisher,
		upstream:  upstreamClient,
		startTime: time.Now().UTC(),
	}
}

// Router assembles the full route table with the staged middleware chain
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/prometheus", promhttp.Handler()).Methods(http.MethodGet)

	// Everything under /v1 is authenticated
	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.authMiddleware)

	api.Handle("/chat/completions",
		metricsMiddleware("chat_completions")(s.proxyPipeline(http.HandlerFunc(s.handleChatCompletions)))).Methods(http.MethodPost)
	api.Handle("/messages",
		metricsMiddleware("messages")(s.proxyPipeline(http.HandlerFunc(s.handleMessages)))).Methods(http.MethodPost)

	// Budget surface (admin summary registered before the userId wildcard)
	api.HandleFunc("/budget/admin/summary", s.handleBudgetSummary).Methods(http.MethodGet)
	api.HandleFunc("/budget/{userId}", s.handleGetBudget).Methods(http.MethodGet)

	// Admin key management
	api.HandleFunc("/admin/api-keys", s.handleCreateAPIKey).Methods(http.MethodPost)
	api.HandleFunc("/admin/api-keys", s.handleListAPIKeys).Methods(http.MethodGet)
	api.HandleFunc("/admin/api-keys/{id}", s.handleRevokeAPIKey).Methods(http.MethodDelete)
	api.HandleFunc("/admin/api-keys/{id}/rotate", s.handleRotateAPIKey).Methods(http.MethodPost)

	var handler http.Handler = r
	handler = requestIDMiddleware(handler)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{s.cfg.CORSOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Model-Downgraded", "X-Budget-Warning", "X-Sensitive-Data-Warning"},
		AllowCredentials: false,
	})
	return c.Handler(handler)
}

// proxyPipeline wires the staged middleware chain in front of a proxy
// handler: parse → audit setup → sensitive-data gate → budget enforcement
// → model routing. The order is load-bearing: each stage reads state the
// previous one wrote onto the request context.
func (s *Server) proxyPipeline(h http.Handler) http.Handler {
	h = s.modelRouterMiddleware(h)
	h = s.budgetEnforcerMiddleware(h)
	h = s.sensitiveDataMiddleware(h)
	h = s.auditSetupMiddleware(h)
	h = s.parseBodyMiddleware(h)
	return h
}

// handleHealth serves GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": Version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// Run is the engine entrypoint: load configuration, connect collaborators,
// serve until a shutdown signal, then drain.
func Run() {
	log := logger.New("engine")
	ctx := context.Background()

	var fetcher config.SecretFetcher
	if os.Getenv("UPSTREAM_API_KEY_SECRET_ARN") != "" || os.Getenv("JWT_SECRET_SECRET_ARN") != "" {
		f, err := config.NewAWSSecretFetcher(ctx, os.Getenv("AWS_REGION"))
		if err != nil {
			log.Error("", "failed to initialize secrets manager", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		fetcher = f
	}

	cfg, err := config.Load(ctx, fetcher)
	if err != nil {
		log.Error("", "invalid configuration", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	if cfg.CatalogFile != "" {
		if err := catalog.LoadFile(cfg.CatalogFile); err != nil {
			log.Error("", "failed to load catalog file", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}

	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("", "failed to connect to database", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	if db != nil {
		if err := db.InitSchema(); err != nil {
			log.Error("", "failed to initialize schema", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	} else {
		log.Warn("", "DATABASE_URL not set; persistence disabled", nil)
	}

	budgetCache, err := budget.NewCache(ctx, cfg.RedisURL)
	if err != nil {
		// The cache is an optimization; a broken Redis never stops startup
		log.Warn("", "budget cache unavailable", map[string]interface{}{"error": err.Error()})
		budgetCache = nil
	}

	var alertPublisher alerts.Publisher
	if cfg.AlertTopicARN != "" {
		p, err := alerts.NewSNSPublisher(ctx, cfg.AlertTopicARN, cfg.AWSRegion)
		if err != nil {
			log.Error("", "failed to initialize alert publisher", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		alertPublisher = p
	} else {
		alertPublisher = alerts.NewLogPublisher()
	}

	upstreamClient, err := upstream.NewClient(upstream.Config{
		APIKey:  cfg.UpstreamAPIKey,
		BaseURL: cfg.UpstreamBaseURL,
	})
	if err != nil {
		log.Error("", "failed to initialize upstream client", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	server := NewServer(cfg, db, budgetCache, alertPublisher, upstreamClient)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Router(),
	}

	go func() {
		log.Info("", "engine listening", map[string]interface{}{
			"port":        cfg.Port,
			"env":         string(cfg.Env),
			"auth_mode":   string(cfg.AuthMode),
			"enforcement": string(cfg.BudgetEnforcement),
			"persistence": db != nil,
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("", "server failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("", "shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("", "forced shutdown after drain timeout", map[string]interface{}{"error": err.Error()})
	}

	_ = budgetCache.Close()
	if err := db.Close(); err != nil {
		log.Warn("", "failed to close database", map[string]interface{}{"error": err.Error()})
	}
}
