// Package api provides the HTTP server for labscan. It serves the scan
// backend endpoint, health and metrics endpoints, and the live dashboard.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	apihandlers "github.com/anstrom/labscan/internal/api/handlers"
	"github.com/anstrom/labscan/internal/api/middleware"
	"github.com/anstrom/labscan/internal/config"
	"github.com/anstrom/labscan/internal/controller"
	"github.com/anstrom/labscan/internal/logging"
	"github.com/anstrom/labscan/internal/metrics"
	"github.com/anstrom/labscan/internal/scheduler"
)

// Server timeout constants.
const (
	serverShutdownTimeout = 30 * time.Second
	rateLimitCleanup      = 5 * time.Minute
)

// Dashboard is the scan controller driven by the dashboard endpoints.
type Dashboard interface {
	apihandlers.ScanTrigger
	AddPresenter(p controller.Presenter)
}

// Deps are the components the server exposes over HTTP.
type Deps struct {
	// Scanner backs POST /scan.
	Scanner apihandlers.Scanner
	// Slots reports scan capacity in the health check. Optional.
	Slots apihandlers.SlotReporter
	// Dashboard enables the dashboard endpoints. Optional.
	Dashboard Dashboard
	// Schedule reports automatic scans in the index. Optional.
	Schedule ScheduleReporter
	// Metrics defaults to the global registry.
	Metrics *metrics.PrometheusMetrics
	// InternalToken exempts the in-process dashboard client from the scan
	// rate limit. Optional.
	InternalToken string
}

// ScheduleReporter describes the automatic scan schedule.
type ScheduleReporter interface {
	Status() scheduler.Status
}

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     *config.Config
	deps       Deps
	hub        *apihandlers.DashboardHub
	limiter    *middleware.RateLimiter
	logger     *logging.Logger
	metrics    *metrics.PrometheusMetrics

	// baseCtx outlives individual requests; dashboard scan cycles run under it.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a new API server instance.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.GetGlobalMetrics()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:  mux.NewRouter(),
		config:  cfg,
		deps:    deps,
		logger:  logging.Default().WithComponent("api"),
		metrics: deps.Metrics,
		baseCtx: baseCtx,
		cancel:  cancel,
	}

	if cfg.API.RateLimitRequests > 0 && cfg.API.RateLimitWindow > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.API.RateLimitRequests, cfg.API.RateLimitWindow)
		if err := s.limiter.TrustProxies(cfg.API.TrustedProxies); err != nil {
			cancel()
			return nil, err
		}
		s.limiter.ExemptToken(deps.InternalToken)
	}

	if deps.Dashboard != nil {
		s.hub = apihandlers.NewDashboardHub(s.logger, deps.Dashboard.Snapshot)
		deps.Dashboard.AddPresenter(s.hub)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           cfg.GetAPIAddress(),
		Handler:        s.handler(),
		ReadTimeout:    cfg.API.ReadTimeout,
		WriteTimeout:   cfg.API.WriteTimeout,
		IdleTimeout:    cfg.API.IdleTimeout,
		MaxHeaderBytes: cfg.API.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return baseCtx },
	}

	return s, nil
}

// Start serves until ctx is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server",
		"address", s.httpServer.Addr,
		"target", s.deps.Scanner.Target(),
		"read_timeout", s.httpServer.ReadTimeout,
		"write_timeout", s.httpServer.WriteTimeout)

	if s.limiter != nil {
		go s.cleanupRateLimiter()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		s.cancel()
		return err
	}
}

// Stop gracefully stops the API server and disconnects dashboard clients.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if s.hub != nil {
		_ = s.hub.Close()
	}

	err := s.httpServer.Shutdown(ctx)
	s.cancel()
	if err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped successfully")
	return nil
}

// GetRouter returns the configured router.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// Handler returns the root handler, CORS included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// GetAddress returns the server address.
func (s *Server) GetAddress() string {
	return s.httpServer.Addr
}

// Hub returns the dashboard websocket hub, or nil without a dashboard.
func (s *Server) Hub() *apihandlers.DashboardHub {
	return s.hub
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	scanHandler := apihandlers.NewScanHandler(s.deps.Scanner, s.logger)
	var scan http.Handler = http.HandlerFunc(scanHandler.Scan)
	if s.limiter != nil {
		scan = middleware.RateLimit(s.limiter, s.logger)(scan)
	}
	s.router.Handle("/scan", scan).Methods(http.MethodPost)

	s.router.HandleFunc("/", s.index).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	health := apihandlers.NewHealthHandler(s.config.Lab.BinaryPath, s.deps.Slots)
	api.HandleFunc("/liveness", health.Liveness).Methods(http.MethodGet)
	api.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	api.HandleFunc("/version", health.Version).Methods(http.MethodGet)

	if s.deps.Dashboard != nil {
		dashboard := apihandlers.NewDashboardHandler(s.baseCtx, s.deps.Dashboard, s.logger)
		api.HandleFunc("/dashboard/scan", dashboard.TriggerScan).Methods(http.MethodPost)
		api.HandleFunc("/dashboard/state", dashboard.State).Methods(http.MethodGet)
		api.HandleFunc("/dashboard/ws", s.hub.ServeWS).Methods(http.MethodGet)
	}
}

// setupMiddleware configures middleware for the API server. The metrics
// middleware runs inside the router so route templates are known.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(middleware.SecurityHeaders())
}

// handler wraps the router in CORS handling when enabled.
func (s *Server) handler() http.Handler {
	if !s.config.API.EnableCORS {
		return s.router
	}
	return handlers.CORS(
		handlers.AllowedOrigins(s.config.API.CORSOrigins),
		handlers.AllowedHeaders([]string{"Content-Type", middleware.RequestIDHeader}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader}),
	)(s.router)
}

// indexResponse lists the service endpoints.
type indexResponse struct {
	Service   string            `json:"service"`
	Target    string            `json:"target"`
	Endpoints map[string]string `json:"endpoints"`
	Schedule  *scheduler.Status `json:"schedule,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// index returns API information for root requests.
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"scan":     "POST /scan",
		"liveness": "GET /api/v1/liveness",
		"health":   "GET /api/v1/health",
		"version":  "GET /api/v1/version",
		"metrics":  "GET /metrics",
	}
	if s.deps.Dashboard != nil {
		endpoints["dashboard_scan"] = "POST /api/v1/dashboard/scan"
		endpoints["dashboard_state"] = "GET /api/v1/dashboard/state"
		endpoints["dashboard_ws"] = "GET /api/v1/dashboard/ws"
	}

	response := indexResponse{
		Service:   "labscan",
		Target:    s.deps.Scanner.Target(),
		Endpoints: endpoints,
		Timestamp: time.Now().UTC(),
	}
	if s.deps.Schedule != nil {
		status := s.deps.Schedule.Status()
		response.Schedule = &status
	}

	s.writeJSON(w, r, http.StatusOK, response)
}

func (s *Server) cleanupRateLimiter() {
	ticker := time.NewTicker(rateLimitCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-s.baseCtx.Done():
			return
		case <-ticker.C:
			s.limiter.Cleanup()
		}
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response",
			"request_id", middleware.GetRequestID(r),
			"error", err,
			"path", r.URL.Path)
	}
}
