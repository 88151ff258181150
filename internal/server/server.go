// Package server exposes the healing orchestrator over HTTP: starting
// runs, querying their status and history, and streaming live model
// reasoning over websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"sentinel/internal/history"
	"sentinel/internal/manifest"
	"sentinel/internal/orchestrator"
	"sentinel/internal/server/middleware"
	"sentinel/internal/types"
)

// CycleRunner starts one healing cycle. The process-level single-run
// constraint is enforced here, not by the runner.
type CycleRunner interface {
	RunWithID(ctx context.Context, runID, root string) (*types.CycleSummary, error)
}

// Service is the HTTP handler set plus the per-process run registry.
type Service struct {
	runner  CycleRunner
	history *history.Store
	reg     *registry
	hub     *Hub
	log     hclog.Logger
}

func NewService(runner CycleRunner, hist *history.Store, log hclog.Logger) *Service {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Service{
		runner:  runner,
		history: hist,
		reg:     newRegistry(),
		hub:     NewHub(log),
		log:     log.Named("server"),
	}
}

// Hooks returns the observer callbacks to install on the orchestrator
// so stage changes and reasoning chunks reach status queries and
// websocket subscribers.
func (s *Service) Hooks() orchestrator.Hooks {
	return orchestrator.Hooks{
		OnStage: func(stage orchestrator.Stage) {
			if st, ok := s.reg.activeRun(); ok {
				s.reg.setStage(st.RunID, stage)
				s.hub.Broadcast(map[string]any{
					"type": "stage", "run_id": st.RunID, "stage": stage,
				})
			}
		},
		OnReasoning: func(e orchestrator.ReasoningEvent) {
			s.hub.Broadcast(map[string]any{
				"type": "thinking", "stage": e.Stage, "index": e.Index,
				"file": e.File, "text": e.Text,
			})
		},
	}
}

// Routes builds the full handler tree.
func (s *Service) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/scan", s.handleStartScan)
	mux.HandleFunc("GET /api/v1/scan/{run_id}", s.handleScanStatus)
	mux.HandleFunc("GET /api/v1/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/history/{run_id}", s.handleHistoryRun)
	mux.Handle("GET /api/v1/thinking/live", s.hub)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return middleware.CORS(mux)
}

type startScanRequest struct {
	Path string `json:"path"`
}

func (s *Service) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Path = strings.TrimSpace(req.Path)
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	// Reject before claiming the single-run slot; a doomed run would
	// hold it until the failure lands.
	if info, err := os.Stat(req.Path); err != nil || !info.IsDir() {
		writeError(w, http.StatusBadRequest, "directory not found")
		return
	}

	runID := orchestrator.NewRunID()
	if !s.reg.begin(runID, req.Path) {
		active, _ := s.reg.activeRun()
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":         "a scan is already in progress",
			"active_run_id": active.RunID,
		})
		return
	}

	go func() {
		// The run outlives the HTTP request that started it.
		summary, err := s.runner.RunWithID(context.Background(), runID, req.Path)
		if err != nil {
			s.log.Error("run failed", "run_id", runID, "error", err)
		}
		s.reg.finish(runID, summary, err)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": runID,
		"stage":  orchestrator.StageNotStarted,
	})
}

func (s *Service) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.reg.get(r.PathValue("run_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown run_id")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	// ?directory= reads the manifest left in a scanned repository
	// instead of the history store.
	if dir := strings.TrimSpace(r.URL.Query().Get("directory")); dir != "" {
		m, err := manifest.Load(dir)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"entries": []manifest.Entry{}})
			return
		}
		writeJSON(w, http.StatusOK, m)
		return
	}

	records, err := s.history.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []history.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": records})
}

func (s *Service) handleHistoryRun(w http.ResponseWriter, r *http.Request) {
	m, err := s.history.Get(r.Context(), r.PathValue("run_id"))
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown run_id")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Server wraps the handler tree in an h2c-capable HTTP server.
type Server struct {
	httpServer *http.Server
	log        hclog.Logger
}

func New(addr string, handler http.Handler, log hclog.Logger) *Server {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: h2c.NewHandler(handler, &http2.Server{}),
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info("starting API server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
