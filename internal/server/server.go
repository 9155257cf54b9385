package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/gobeyondidentity/marketo-sync/internal/config"
	"github.com/gobeyondidentity/marketo-sync/internal/marketo"
	"github.com/gobeyondidentity/marketo-sync/internal/metrics"
	"github.com/gobeyondidentity/marketo-sync/internal/store"
	syncengine "github.com/gobeyondidentity/marketo-sync/internal/sync"
)

// Version is reported by /version, /health and the version command
const Version = "0.1.0"

const defaultHistoryLimit = 20

// Server represents the HTTP server for lead sync operations
type Server struct {
	httpServer *http.Server
	logger     logrus.FieldLogger
	config     *config.Config
	syncEngine SyncEngine
	leads      LeadService
	history    RunHistory
	scheduler  *Scheduler
	stats      *Stats
	collector  *metrics.Collector
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services"`
	LastSync    *time.Time        `json:"last_sync,omitempty"`
	NextSync    *time.Time        `json:"next_sync,omitempty"`
	SyncEnabled bool              `json:"sync_enabled"`
}

// SyncResponse represents the manual sync response
type SyncResponse struct {
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Result    *store.SyncRun `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// LeadResponse wraps a single lead
type LeadResponse struct {
	Status string        `json:"status"`
	Lead   *marketo.Lead `json:"lead"`
}

// BatchRequest is the body of POST /leads/batch
type BatchRequest struct {
	Leads []*marketo.Lead `json:"leads"`
}

// BatchResponse reports a batch sync
type BatchResponse struct {
	Status   string               `json:"status"`
	Leads    []*marketo.Lead      `json:"leads"`
	Statuses []marketo.SyncStatus `json:"statuses"`
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a new HTTP server instance. history and collector may be nil.
func NewServer(cfg *config.Config, engine SyncEngine, leads LeadService, history RunHistory, collector *metrics.Collector, logger logrus.FieldLogger) *Server {
	stats := NewStats()

	var scheduler *Scheduler
	if cfg.Server.ScheduleEnabled {
		scheduler = NewScheduler(cfg.Server.Schedule, engine, logger, stats)
	}

	server := &Server{
		logger:     logger,
		config:     cfg,
		syncEngine: engine,
		leads:      leads,
		history:    history,
		scheduler:  scheduler,
		stats:      stats,
		collector:  collector,
	}

	router := mux.NewRouter()
	server.registerRoutes(router)

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// registerRoutes sets up HTTP endpoints
func (s *Server) registerRoutes(router *mux.Router) {
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Sync runs
	router.HandleFunc("/sync", s.handleSync).Methods("POST")
	router.HandleFunc("/stats", s.handleStats).Methods("GET")
	router.HandleFunc("/history", s.handleHistory).Methods("GET")

	if s.collector != nil {
		router.Handle("/metrics", s.collector.Handler()).Methods("GET")
	}

	// Direct lead operations
	router.HandleFunc("/leads", s.handleSyncLead).Methods("POST")
	router.HandleFunc("/leads/batch", s.handleSyncLeads).Methods("POST")
	router.HandleFunc("/leads/{key}/{value}", s.handleGetLead).Methods("GET")

	// Scheduler control endpoints
	if s.scheduler != nil {
		router.HandleFunc("/scheduler/start", s.handleSchedulerStart).Methods("POST")
		router.HandleFunc("/scheduler/stop", s.handleSchedulerStop).Methods("POST")
		router.HandleFunc("/scheduler/status", s.handleSchedulerStatus).Methods("GET")
	}

	router.HandleFunc("/version", s.handleVersion).Methods("GET")
}

// Start starts the HTTP server and scheduler, blocking until SIGINT or SIGTERM
func (s *Server) Start() error {
	s.logger.Infof("Starting Marketo sync server on port %d", s.config.Server.Port)

	if s.scheduler != nil {
		if err := s.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		s.logger.Info("Scheduler started successfully")
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	s.logger.Info("Marketo sync server started successfully")

	return s.waitForShutdown(errChan)
}

// waitForShutdown waits for termination signals and performs graceful shutdown
func (s *Server) waitForShutdown(errChan <-chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var serveErr error
	select {
	case sig := <-sigChan:
		s.logger.Infof("Received signal %s, starting graceful shutdown...", sig)
	case serveErr = <-errChan:
		s.logger.Errorf("HTTP server error: %v", serveErr)
	}

	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Errorf("HTTP server shutdown error: %v", err)
	} else {
		s.logger.Info("HTTP server stopped gracefully")
	}

	return serveErr
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{
		"marketo": "ok",
		"source":  s.config.Source.Type,
	}
	if s.history != nil {
		services["store"] = "ok"
	}

	response := HealthResponse{
		Status:      "healthy",
		Version:     Version,
		Timestamp:   time.Now(),
		Services:    services,
		SyncEnabled: s.scheduler != nil,
	}

	if s.scheduler != nil {
		response.LastSync = s.scheduler.GetLastSync()
		response.NextSync = s.scheduler.GetNextSync()
	}

	writeJSON(w, http.StatusOK, response)
}

// handleSync handles manual sync requests
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Manual sync requested via API")

	run, err := s.syncEngine.Run(r.Context(), syncengine.TriggerAPI)

	response := SyncResponse{
		Timestamp: time.Now(),
		Result:    run,
	}

	if errors.Is(err, syncengine.ErrRunInProgress) {
		response.Status = "busy"
		response.Message = "A sync operation is already running"
		response.Error = err.Error()
		writeJSON(w, http.StatusConflict, response)
		return
	}

	s.stats.RecordRun(run, err)

	if err != nil {
		s.logger.Errorf("Manual sync failed: %v", err)
		response.Status = "error"
		response.Message = "Sync operation failed"
		response.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, response)
		return
	}

	s.logger.Info("Manual sync completed successfully")
	response.Status = "success"
	response.Message = "Sync operation completed"
	writeJSON(w, http.StatusOK, response)
}

// handleStats handles JSON statistics requests
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.GetStats())
}

// handleHistory lists stored sync runs, newest first
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []*store.SyncRun{})
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid limit %q", raw)})
			return
		}
		limit = parsed
	}

	runs, err := s.history.Runs(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// handleGetLead looks a lead up by named key or key type
func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	lead, err := s.leads.GetByKey(r.Context(), vars["key"], vars["value"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LeadResponse{Status: "found", Lead: lead})
}

// handleSyncLead creates or updates one lead
func (s *Server) handleSyncLead(w http.ResponseWriter, r *http.Request) {
	var lead marketo.Lead
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid lead: %v", err)})
		return
	}

	if s.config.App.TestMode {
		s.logger.Infof("TEST MODE: Would sync lead %s", lead.Email)
		writeJSON(w, http.StatusOK, LeadResponse{Status: "test_mode", Lead: &lead})
		return
	}

	synced, err := s.leads.Sync(r.Context(), &lead)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LeadResponse{Status: "synced", Lead: synced})
}

// handleSyncLeads creates or updates a batch of leads; ?dedup=false turns
// off Marketo de-duplication
func (s *Server) handleSyncLeads(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid batch: %v", err)})
		return
	}
	for i, lead := range req.Leads {
		if lead == nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid batch: lead %d is empty", i)})
			return
		}
	}

	dedup := s.config.Dedup()
	if raw := r.URL.Query().Get("dedup"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid dedup %q", raw)})
			return
		}
		dedup = parsed
	}

	if s.config.App.TestMode {
		s.logger.Infof("TEST MODE: Would sync batch of %d leads", len(req.Leads))
		writeJSON(w, http.StatusOK, BatchResponse{Status: "test_mode", Leads: req.Leads})
		return
	}

	leads, statuses, err := s.leads.SyncMultiple(r.Context(), req.Leads, marketo.WithDedup(dedup))
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BatchResponse{Status: "synced", Leads: leads, Statuses: statuses})
}

// handleSchedulerStart handles scheduler start requests
func (s *Server) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.Start(); err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: fmt.Sprintf("failed to start scheduler: %v", err)})
		return
	}

	s.logger.Info("Scheduler started via API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// handleSchedulerStop handles scheduler stop requests
func (s *Server) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Stop()
	s.logger.Info("Scheduler stopped via API")

	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleSchedulerStatus handles scheduler status requests
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"running":   s.scheduler.IsRunning(),
		"schedule":  s.config.Server.Schedule,
		"last_sync": s.scheduler.GetLastSync(),
		"next_sync": s.scheduler.GetNextSync(),
	}

	writeJSON(w, http.StatusOK, status)
}

// handleVersion handles version requests
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":     Version,
		"mode":        "server",
		"api_version": s.config.Marketo.APIVersion,
	})
}

// writeError maps lead and sync errors to HTTP statuses
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var fault *marketo.Fault
	switch {
	case errors.Is(err, marketo.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, marketo.ErrLeadNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, marketo.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, syncengine.ErrRunInProgress):
		return http.StatusConflict
	case errors.As(err, &fault):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
