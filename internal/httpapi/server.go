// Package httpapi is the trigger boundary: a small authenticated API that
// starts runs, reports history, and streams run events.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/orderdesk/sheetsync/internal/runlog"
	"github.com/orderdesk/sheetsync/internal/syncer"
)

// Runner starts one sync run. *syncer.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req syncer.RunRequest) (syncer.RunReport, error)
}

// ServerConfig wires the trigger API.
type ServerConfig struct {
	// APIKey guards every mutating route via the X-API-Key header.
	APIKey  string
	Runner  Runner
	History runlog.Store
	Hub     *Hub
	Logger  *slog.Logger
	// RunTimeout bounds a triggered run. Default 2h.
	RunTimeout time.Duration
}

// Server handles the trigger API. Runs execute asynchronously; at most one
// run is in flight at a time and overlapping triggers are rejected.
type Server struct {
	cfg     ServerConfig
	running chan struct{}
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Hour
	}
	running := make(chan struct{}, 1)
	return &Server{cfg: cfg, running: running}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v1/healthz" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/v1/run" && r.Method == http.MethodPost:
		s.handleRun(w, r)
	case r.URL.Path == "/v1/runs" && r.Method == http.MethodGet:
		s.handleRuns(w, r)
	case r.URL.Path == "/v1/events/ws" && r.Method == http.MethodGet:
		s.handleEvents(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
		return
	}
	req := syncer.RunRequest{Mode: syncer.ModeIncremental}
	if mode := r.URL.Query().Get("mode"); mode != "" {
		if mode != syncer.ModeIncremental && mode != syncer.ModeBackfill {
			writeError(w, http.StatusBadRequest, "bad_request", "unknown mode: "+mode)
			return
		}
		req.Mode = mode
	}
	if notify := r.URL.Query().Get("notify"); notify != "" {
		parsed, err := strconv.ParseBool(notify)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "notify must be a boolean")
			return
		}
		req.Notify = parsed
	}

	select {
	case s.running <- struct{}{}:
	default:
		writeError(w, http.StatusConflict, "busy", "a run is already in progress")
		return
	}

	go func() {
		defer func() { <-s.running }()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
		defer cancel()
		if _, err := s.cfg.Runner.Run(ctx, req); err != nil {
			s.cfg.Logger.Error("triggered run failed", "mode", req.Mode, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": req.Mode + " run started",
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
		return
	}
	recent, err := s.cfg.History.Recent()
	if err != nil {
		s.cfg.Logger.Error("reading run history failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "run history unavailable")
		return
	}
	if recent == nil {
		recent = []runlog.Outcome{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": recent})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
		return
	}
	if s.cfg.Hub == nil {
		writeError(w, http.StatusNotFound, "not_found", "event feed not enabled")
		return
	}
	s.cfg.Hub.serve(w, r)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.APIKey == "" {
		return false
	}
	key := r.Header.Get("X-API-Key")
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) == 1
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
