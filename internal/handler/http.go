package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/blockstats-server/internal/command"
	"github.com/blockstats-server/internal/domain"
	"github.com/blockstats-server/internal/snapshot"
	"github.com/blockstats-server/internal/websocket"
)

// defaultTopLimit bounds unqualified top queries.
const defaultTopLimit = 10

// Handler provides HTTP handlers for the block stats API
type Handler struct {
	dispatcher *command.Dispatcher
	scanner    command.ScanRunner
	store      *snapshot.Store
	hub        *websocket.Hub
	logger     *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	dispatcher *command.Dispatcher,
	scanner command.ScanRunner,
	store *snapshot.Store,
	hub *websocket.Hub,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		scanner:    scanner,
		store:      store,
		hub:        hub,
		logger:     logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// Chat bridge endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scan", h.TriggerScan)
		r.Post("/command", h.RunCommand)
		r.Get("/snapshot", h.GetSnapshot)

		r.Route("/leaderboards/{metric}", func(r chi.Router) {
			r.Get("/top", h.GetTop)
		})

		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// HandleWebSocket handles chat bridge upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.dispatcher, h.logger, w, r)
}

// GetWebSocketStats returns chat bridge connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// TriggerScan forces a full scan
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	updated, err := h.scanner.RunScan(r.Context())
	if err != nil {
		if domain.IsConflictError(err) {
			h.writeError(w, http.StatusConflict, err)
			return
		}
		h.logger.Error("failed to run scan", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]int{"updated": updated})
}

// CommandRequest is the body of a command invocation
type CommandRequest struct {
	Line string `json:"line"`
}

// RunCommand executes one chat command line and returns its output
func (h *Handler) RunCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.Line == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result := h.dispatcher.Dispatch(r.Context(), req.Line)
	h.hub.BroadcastLines(result.Broadcasts)
	h.writeSuccess(w, result)
}

// GetSnapshot returns the raw snapshot, unfiltered by the allow-list
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.store.Snapshot())
}

// GetTop returns the ranked, allow-list-filtered leaderboard for a metric
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	metric, err := domain.ParseMetric(chi.URLParam(r, "metric"))
	if err != nil {
		if errors.Is(err, domain.ErrUnknownMetric) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	limit := defaultTopLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		limit = parsed
	}

	h.writeSuccess(w, h.dispatcher.Top(metric, limit))
}
