package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"clearquote/internal/backend"
	"clearquote/internal/mdtable"
	"clearquote/internal/metrics"
	"clearquote/internal/models"
	"clearquote/internal/monitor"
	"clearquote/internal/storage"
)

//go:embed static/*
var embeddedStatic embed.FS

// Server wraps HTTP serving of the dashboard API + static assets.
type Server struct {
	httpServer   *http.Server
	backend      *backend.Client
	monitor      *monitor.Monitor
	store        *storage.HealthStore
	hub          *hub
	staticFS     fs.FS
	historyLimit int
	logger       *slog.Logger
}

// New creates a configured HTTP server for the dashboard.
func New(addr string, backendClient *backend.Client, mon *monitor.Monitor, store *storage.HealthStore, historyLimit int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if historyLimit <= 0 {
		historyLimit = 200
	}
	staticFS, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		panic("static assets missing: " + err.Error())
	}

	s := &Server{
		backend:      backendClient,
		monitor:      mon,
		store:        store,
		hub:          newHub(logger),
		staticFS:     staticFS,
		historyLimit: historyLimit,
		logger:       logger.With("component", "server"),
	}
	s.httpServer = &http.Server{Addr: addr, Handler: s.router()}
	return s
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down and disconnects live sockets.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	return s.httpServer.Shutdown(ctx)
}

// BroadcastHealth pushes a monitor transition to every connected socket.
// Wired as the monitor's OnUpdate callback.
func (s *Server) BroadcastHealth(snap monitor.Snapshot) {
	s.hub.broadcast(healthPayload{Snapshot: snap, Health: monitor.DeriveHealth(snap)})
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	r.Get("/", s.handleIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(s.staticFS))))
	r.Get("/ws/health", s.handleHealthWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/health/refresh", s.handleRefresh)
		r.Post("/health/visibility", s.handleVisibility)
		r.Get("/health/history", s.handleHistory)
		r.Get("/health/uptime", s.handleUptime)

		r.Get("/config/status", s.handleConfigStatus)
		r.Post("/config/api-key", s.handleSetAPIKey)
		r.Post("/config/db-url", s.handleSetDBURL)
		r.Post("/config/validate-api-key", s.handleValidateAPIKey)
		r.Post("/config/validate-db-url", s.handleValidateDBURL)

		r.Post("/query", s.handleQuery)
		r.Post("/data/fetch", s.handleDataFetch)
	})

	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(s.staticFS, "index.html")
	if err != nil {
		http.Error(w, "index missing", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

// healthPayload is what the UI reads: the raw snapshot plus the derived
// classification, recomputed on every serve.
type healthPayload struct {
	Snapshot monitor.Snapshot `json:"snapshot"`
	Health   monitor.Health   `json:"health"`
}

func (s *Server) currentHealth() healthPayload {
	snap := s.monitor.Snapshot()
	return healthPayload{Snapshot: snap, Health: monitor.DeriveHealth(snap)}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.currentHealth())
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	s.monitor.RefreshNow()
	writeJSON(w, http.StatusOK, s.currentHealth())
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible bool `json:"visible"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.monitor.SetVisible(req.Visible)
	writeJSON(w, http.StatusOK, s.currentHealth())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	samples, err := s.store.Recent(parseLimit(r, s.historyLimit))
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if samples == nil {
		samples = []models.HealthSample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	samples, err := s.store.Recent(parseLimit(r, s.historyLimit))
	if err != nil {
		s.logger.Error("uptime query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "uptime unavailable")
		return
	}
	writeJSON(w, http.StatusOK, metrics.ComputeUptime(samples))
}

// handleConfigStatus serves the monitor's view of the backend configuration
// rather than proxying, so the UI gets an answer even while the backend is
// flapping.
func (s *Server) handleConfigStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.monitor.Snapshot()
	if snap.LastStatus == nil {
		writeError(w, http.StatusServiceUnavailable, "backend status unknown")
		return
	}
	writeJSON(w, http.StatusOK, snap.LastStatus)
}

// queryReply is the backend's answer plus any table parsed out of the
// markdown answer text.
type queryReply struct {
	models.QueryResponse
	Table *mdtable.Table `json:"table,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	resp, err := s.backend.Query(r.Context(), req.Question)
	if err != nil {
		s.proxyError(w, "query", err)
		return
	}

	reply := queryReply{QueryResponse: resp}
	if table, ok := mdtable.Parse(resp.Answer); ok {
		reply.Table = &table
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleDataFetch(w http.ResponseWriter, r *http.Request) {
	var req models.TableFetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Tables) == 0 {
		writeError(w, http.StatusBadRequest, "at least one table is required")
		return
	}

	resp, err := s.backend.FetchTables(r.Context(), req.Tables, req.Limit)
	if err != nil {
		s.proxyError(w, "data fetch", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetAPIKey(w http.ResponseWriter, r *http.Request) {
	var req models.APIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		writeError(w, http.StatusBadRequest, "api_key is required")
		return
	}

	resp, err := s.backend.SetAPIKey(r.Context(), req.APIKey)
	if err != nil {
		s.proxyError(w, "set api key", err)
		return
	}
	// A credential change can flip the backend's validity; get a fresh
	// verdict instead of waiting out the poll interval.
	s.monitor.RefreshNow()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetDBURL(w http.ResponseWriter, r *http.Request) {
	var req models.DBURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.DBURL) == "" {
		writeError(w, http.StatusBadRequest, "db_url is required")
		return
	}

	resp, err := s.backend.SetDBURL(r.Context(), req.DBURL)
	if err != nil {
		s.proxyError(w, "set db url", err)
		return
	}
	s.monitor.RefreshNow()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleValidateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req models.APIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.backend.ValidateAPIKey(r.Context(), req.APIKey)
	if err != nil {
		s.proxyError(w, "validate api key", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleValidateDBURL(w http.ResponseWriter, r *http.Request) {
	var req models.DBURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.backend.ValidateDBURL(r.Context(), req.DBURL)
	if err != nil {
		s.proxyError(w, "validate db url", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) proxyError(w http.ResponseWriter, op string, err error) {
	s.logger.Warn("backend call failed", "op", op, "error", err)

	var httpErr *backend.HTTPError
	if errors.As(err, &httpErr) {
		writeError(w, http.StatusBadGateway, "backend error: "+httpErr.Status)
		return
	}
	var parseErr *backend.ParseError
	if errors.As(err, &parseErr) {
		writeError(w, http.StatusBadGateway, "backend returned an unreadable response")
		return
	}
	writeError(w, http.StatusBadGateway, "backend unreachable")
}

func parseLimit(r *http.Request, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
