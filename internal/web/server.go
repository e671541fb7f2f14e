package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"

	"github.com/elys-network/rebal/internal/governance"
	"github.com/elys-network/rebal/internal/incentive"
	"github.com/elys-network/rebal/internal/ledger"
	"github.com/elys-network/rebal/internal/logger"
	"github.com/elys-network/rebal/internal/metrics"
)

var webLogger = logger.GetForComponent("web_server")

var startedAt = time.Now()

// Deps are the services exposed over HTTP.
type Deps struct {
	Registry   *governance.Registry
	Governance *governance.Engine
	Incentives *incentive.Engine
	Metrics    *metrics.Metrics

	// HealthCheck reports backend health, typically the database ping.
	HealthCheck func(ctx context.Context) error
	// BasketDefaults fills unset fields of a create-basket request.
	BasketDefaults func(governance.InitParams) governance.InitParams
	// Provisioner, when set, enables the /api/dev ledger seeding routes.
	Provisioner ledger.Provisioner
}

// WebServer serves the basket governance API
type WebServer struct {
	router *mux.Router
	port   string
	deps   Deps
	server *http.Server
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, deps Deps) (*WebServer, error) {
	if deps.Registry == nil || deps.Governance == nil || deps.Incentives == nil {
		return nil, errors.New("registry, governance and incentive engines are required")
	}
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		port:   port,
		deps:   deps,
	}

	server.setupRoutes()
	return server, nil
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", ws.deps.Metrics.Handler()).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api.HandleFunc("/baskets", ws.handleCreateBasket).Methods("POST")
	api.HandleFunc("/baskets", ws.handleListBaskets).Methods("GET")
	api.HandleFunc("/baskets/{id}", ws.handleGetBasket).Methods("GET")
	api.HandleFunc("/baskets/{id}/whitelist", ws.handleSetWhitelist).Methods("PUT")
	api.HandleFunc("/baskets/{id}/proposals", ws.handleListProposals).Methods("GET")
	api.HandleFunc("/baskets/{id}/proposals", ws.handleCreateProposal).Methods("POST")
	api.HandleFunc("/baskets/{id}/rebalance", ws.handleRebalance).Methods("POST")
	api.HandleFunc("/baskets/{id}/receipts", ws.handleListReceipts).Methods("GET")
	api.HandleFunc("/baskets/{id}/summary", ws.handleSummary).Methods("GET")

	api.HandleFunc("/proposals/{id}", ws.handleGetProposal).Methods("GET")
	api.HandleFunc("/proposals/{id}/votes", ws.handleVote).Methods("POST")
	api.HandleFunc("/proposals/{id}/finalize", ws.handleFinalize).Methods("POST")

	if ws.deps.Provisioner != nil {
		ws.setupDevRoutes(api)
	}

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler { return ws.router }

// Start starts the web server and blocks until it stops.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	err := ws.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops a running server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	backendHealthy := true
	var backendErr string
	if ws.deps.HealthCheck != nil {
		if err := ws.deps.HealthCheck(r.Context()); err != nil {
			backendHealthy = false
			backendErr = err.Error()
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !backendHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(startedAt).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "rebal-basket-governance",
			"version": "1.0.0",
		},
		"backend": map[string]interface{}{
			"healthy": backendHealthy,
			"error":   backendErr,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
