package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/nbekov/ytscout/engine"
	"github.com/nbekov/ytscout/telemetry"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	eng *engine.Engine
	db  *sql.DB
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(eng *engine.Engine, db *sql.DB) *Handlers {
	return &Handlers{eng: eng, db: db}
}

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "failed_check": "database"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleAnalyze runs the paid base analysis for a submitted URL or video id.
// POST body: {"user_id": 123, "url": "https://..."}
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		UserID int64  `json:"user_id"`
		URL    string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.UserID == 0 || req.URL == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id and url are required")
		return
	}

	a, err := h.eng.Analyze(r.Context(), req.UserID, req.URL)
	if err != nil {
		h.writeEngineError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleBalance returns the remaining credit balance for ?user=<id>.
func (h *Handlers) HandleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, err := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
	if err != nil || userID == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "user query parameter required")
		return
	}
	balance, err := h.eng.Balance(r.Context(), userID)
	if err != nil {
		h.writeEngineError(r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": balance})
}

// HandleVideoDispatcher routes /v1/videos/{id}/(competitors|channels|anomaly|tags).
func (h *Handlers) HandleVideoDispatcher(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/videos/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	videoID, op := parts[0], parts[1]

	switch op {
	case "competitors":
		res, err := h.eng.Discover(r.Context(), videoID)
		if err != nil {
			h.writeEngineError(r, w, err)
			return
		}
		// Empty results are a valid "insufficient comparable videos" outcome.
		writeJSON(w, http.StatusOK, res)
	case "channels":
		res, err := h.eng.Discover(r.Context(), videoID)
		if err != nil {
			h.writeEngineError(r, w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"channels": res.Channels})
	case "anomaly":
		tier, err := h.eng.Classify(r.Context(), videoID)
		if err != nil {
			h.writeEngineError(r, w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"video_id": videoID, "tier": tier.String()})
	case "tags":
		report, err := h.eng.Tags(r.Context(), videoID)
		if err != nil {
			h.writeEngineError(r, w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	default:
		http.NotFound(w, r)
	}
}

// writeEngineError maps the engine taxonomy onto HTTP statuses with distinct,
// non-confusable codes: exhausted quota tells the user to wait for the reset,
// unavailable upstream tells them to retry.
func (h *Handlers) writeEngineError(r *http.Request, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrQuotaExhausted):
		writeError(w, http.StatusTooManyRequests, "quota_exhausted", "credit balance exhausted; resets at the next boundary")
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "video not found")
	case errors.Is(err, engine.ErrUpstreamUnavailable):
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable", "upstream API unavailable; retry later")
	default:
		telemetry.LoggerWithCorr(r.Context()).Error("request failed", slog.Any("err", err), slog.String("component", "http"))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
