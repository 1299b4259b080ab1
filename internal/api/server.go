// Package api exposes the tracker's read surface and runtime tuning over
// HTTP JSON. The surface is deliberately small: health, latest estimate,
// step telemetry, persisted runs, and the runtime-tunable adaptive
// parameters. Structural parameters (backend, block layout, particle
// bounds) are build-time only and not exposed for mutation.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/depthtrack/internal/monitoring"
	"github.com/banshee-data/depthtrack/internal/track"
	storage "github.com/banshee-data/depthtrack/internal/track/storage/sqlite"
)

// Server serves the tracker API.
type Server struct {
	tracker   *track.Tracker
	runs      *storage.RunStore
	estimates *storage.EstimateStore
	telemetry *storage.TelemetryStore
}

// NewServer creates an API server for one live tracker. The stores may be
// nil if persistence is disabled; the run endpoints then return 404.
func NewServer(tracker *track.Tracker, runs *storage.RunStore, estimates *storage.EstimateStore, telemetry *storage.TelemetryStore) *Server {
	return &Server{tracker: tracker, runs: runs, estimates: estimates, telemetry: telemetry}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// logRequest wraps a handler with request logging through the package
// logger.
func logRequest(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(lrw, r)
		monitoring.Logf("api: %s %s -> %d (%s)", r.Method, r.URL.Path, lrw.statusCode, time.Since(start))
	}
}

// Routes registers all handlers on the given mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", logRequest(s.handleHealth))
	mux.HandleFunc("/api/tracker/estimate", logRequest(s.handleEstimate))
	mux.HandleFunc("/api/tracker/stats", logRequest(s.handleStats))
	mux.HandleFunc("/api/tracker/params", logRequest(s.handleParams))
	mux.HandleFunc("/api/runs", logRequest(s.handleRuns))
	mux.HandleFunc("/api/runs/", logRequest(s.handleRunEstimates))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"tracker_id": s.tracker.TrackerID,
		"backend":    s.tracker.Backend(),
	})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	est := s.tracker.LatestEstimate()
	if est == nil {
		writeError(w, http.StatusNotFound, "no estimate yet")
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tracker_id": s.tracker.TrackerID,
		"backend":    s.tracker.Backend(),
		"params":     s.tracker.Params(),
		"stats":      s.tracker.Stats(),
	})
}

// handleParams reads (GET) or updates (POST) the runtime-tunable adaptive
// parameters. Updates apply under the tracker lock; out-of-range values
// are clamped back to the previous setting, and the effective parameters
// are returned.
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.tracker.Adaptive())
	case http.MethodPost:
		var req track.AdaptiveParams
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		applied := s.tracker.UpdateAdaptive(func(p *track.AdaptiveParams) {
			if req.UpdateRate != 0 {
				p.UpdateRate = req.UpdateRate
			}
			if req.MaxKLDivergence != 0 {
				p.MaxKLDivergence = req.MaxKLDivergence
			}
		})
		writeJSON(w, http.StatusOK, applied)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run persistence disabled")
		return
	}
	runs, err := s.runs.ListRuns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleRunEstimates serves /api/runs/{run_id}/estimates and
// /api/runs/{run_id}/telemetry.
func (s *Server) handleRunEstimates(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch parts[1] {
	case "estimates":
		if s.estimates == nil {
			writeError(w, http.StatusNotFound, "run persistence disabled")
			return
		}
		ests, err := s.estimates.ListEstimates(parts[0])
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, ests)
	case "telemetry":
		if s.telemetry == nil {
			writeError(w, http.StatusNotFound, "run persistence disabled")
			return
		}
		rows, err := s.telemetry.ListStepTelemetry(parts[0])
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, rows)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}
